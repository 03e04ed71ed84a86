package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"mathsnap/api/internal/logging"
)

type Config struct {
	Port     string
	LogLevel string
	Locale   string

	LLMEngine          string
	HFToken            string
	InferenceBaseURL   string
	InferenceModel     string
	InferenceMaxTokens int
	InferenceTimeout   time.Duration
	GeminiAPIKey       string
	GeminiModel        string
	PromptsFile        string

	DatabaseURL string
	CacheTTL    time.Duration

	TelegramBotToken string
	WebhookURL       string

	CameraBackIndex  int
	CameraFrontIndex int
	SessionTTL       time.Duration
}

func mustEnv(k string) (string, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return "", fmt.Errorf("missing required env %s", k)
	}
	return v, nil
}

func getEnv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getInt(k string, def int) (int, error) {
	v := getEnv(k, "")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("env %s: %w", k, err)
	}
	return n, nil
}

func getDuration(k string, def time.Duration) (time.Duration, error) {
	v := getEnv(k, "")
	if v == "" {
		return def, nil
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("env %s: %w", k, err)
	}
	return d, nil
}

// Load reads the environment and exits the process on invalid settings.
func Load() *Config {
	cfg, err := FromEnv()
	if err != nil {
		logging.Error("config", "err", err)
		os.Exit(1)
	}
	return cfg
}

// FromEnv reads the environment. Durations accept Go syntax ("90s") or
// plain seconds.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Port:             getEnv("PORT", "8000"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		Locale:           getEnv("LOCALE", "id"),
		LLMEngine:        strings.ToLower(getEnv("LLM_ENGINE", "openai")),
		InferenceBaseURL: getEnv("INFERENCE_BASE_URL", "https://router.huggingface.co/v1"),
		InferenceModel:   getEnv("INFERENCE_MODEL", "Qwen/Qwen2.5-VL-7B-Instruct"),
		GeminiAPIKey:     getEnv("GEMINI_API_KEY", ""),
		GeminiModel:      getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		PromptsFile:      getEnv("PROMPTS_FILE", ""),
		DatabaseURL:      resolveDSN(),
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		WebhookURL:       getEnv("WEBHOOK_URL", ""),
	}
	var err error
	if cfg.InferenceMaxTokens, err = getInt("INFERENCE_MAX_TOKENS", 2048); err != nil {
		return nil, err
	}
	if cfg.InferenceTimeout, err = getDuration("INFERENCE_TIMEOUT", 180*time.Second); err != nil {
		return nil, err
	}
	if cfg.CacheTTL, err = getDuration("CACHE_TTL", 7*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.SessionTTL, err = getDuration("SESSION_TTL", 30*time.Minute); err != nil {
		return nil, err
	}
	if cfg.CameraBackIndex, err = getInt("CAMERA_BACK_INDEX", 0); err != nil {
		return nil, err
	}
	if cfg.CameraFrontIndex, err = getInt("CAMERA_FRONT_INDEX", 1); err != nil {
		return nil, err
	}

	switch cfg.LLMEngine {
	case "openai", "hf", "gpt":
		cfg.LLMEngine = "openai"
		cfg.HFToken = getEnv("HF_TOKEN", getEnv("VITE_HF_TOKEN", ""))
		if cfg.HFToken == "" {
			if _, err := mustEnv("HF_TOKEN"); err != nil {
				return nil, err
			}
		}
	case "gemini":
		if cfg.GeminiAPIKey, err = mustEnv("GEMINI_API_KEY"); err != nil {
			return nil, err
		}
		cfg.HFToken = getEnv("HF_TOKEN", getEnv("VITE_HF_TOKEN", ""))
	default:
		return nil, fmt.Errorf("unknown LLM_ENGINE %q (want openai or gemini)", cfg.LLMEngine)
	}
	return cfg, nil
}

// resolveDSN prefers DATABASE_URL and otherwise builds a DSN from POSTGRES_*
// / PG* variables. The cache is optional, so nothing set means "".
func resolveDSN() string {
	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		return v
	}
	host := getEnv("PGHOST", getEnv("POSTGRES_HOST", ""))
	if host == "" {
		return ""
	}
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(getEnv("POSTGRES_USER", "mathsnap"), os.Getenv("POSTGRES_PASSWORD")),
		Host:     net.JoinHostPort(host, getEnv("PGPORT", "5432")),
		Path:     "/" + getEnv("POSTGRES_DB", "mathsnap"),
		RawQuery: "sslmode=" + getEnv("PGSSLMODE", "disable"),
	}
	return u.String()
}

// SafeDSNSummary describes a DSN without its password.
func SafeDSNSummary(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "dsn: parse error"
	}
	user := u.User.Username()
	host := u.Host
	port := ""
	if h, p, err := net.SplitHostPort(u.Host); err == nil {
		host, port = h, p
	}
	db := strings.TrimPrefix(u.Path, "/")
	if port == "" {
		return fmt.Sprintf("host=%s db=%s user=%s", host, db, user)
	}
	return fmt.Sprintf("host=%s port=%s db=%s user=%s", host, port, db, user)
}
