package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	"golang.org/x/sync/errgroup"

	"mathsnap/api/internal/capture"
	"mathsnap/api/internal/capture/webcam"
	"mathsnap/api/internal/config"
	"mathsnap/api/internal/handle"
	"mathsnap/api/internal/httpserver"
	"mathsnap/api/internal/llm"
	"mathsnap/api/internal/llm/gemini"
	"mathsnap/api/internal/llm/openai"
	"mathsnap/api/internal/locale"
	"mathsnap/api/internal/logging"
	"mathsnap/api/internal/solver"
	"mathsnap/api/internal/store"
	"mathsnap/api/internal/telegram"
)

func main() {
	cfg := config.Load()
	logging.Init(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engines, def := buildEngines(cfg)

	prompts := solver.DefaultPrompts()
	if cfg.PromptsFile != "" {
		p, err := solver.LoadPrompts(cfg.PromptsFile)
		if err != nil {
			logging.Error("load prompts", "file", cfg.PromptsFile, "err", err)
			os.Exit(1)
		}
		prompts = p
	}
	solverOpts := []solver.Option{
		solver.WithPrompts(prompts),
		solver.WithMaxTokens(cfg.InferenceMaxTokens),
	}

	// --- Postgres answer cache (optional) ---
	var repo *store.AnswerRepo
	if cfg.DatabaseURL != "" {
		db, err := openDB(ctx, cfg.DatabaseURL)
		if err != nil {
			logging.Error("database", "dsn", config.SafeDSNSummary(cfg.DatabaseURL), "err", err)
			os.Exit(1)
		}
		defer db.Close()
		repo = store.NewAnswerRepo(db, cfg.CacheTTL)
		solverOpts = append(solverOpts, solver.WithCache(repo))
	} else {
		logging.Info("answer cache disabled (no DATABASE_URL)")
	}

	catalog := locale.New(cfg.Locale)

	deps := handle.Deps{
		Engines:       engines,
		Default:       def,
		Device:        webcam.New(cfg.CameraBackIndex, cfg.CameraFrontIndex),
		Catalog:       catalog,
		SolverOptions: solverOpts,
		SessionTTL:    cfg.SessionTTL,

		CaptureOptions: []capture.Option{capture.WithSettleDelay(capture.DefaultSettleDelay)},
	}
	if repo != nil {
		deps.Ping = repo.Ping
	}
	h := handle.New(deps)

	mux := http.NewServeMux()
	h.Routes(mux)

	g, ctx := errgroup.WithContext(ctx)

	if cfg.TelegramBotToken != "" {
		run, err := startTelegram(ctx, cfg, mux, &telegram.Router{
			Engines:       engines,
			EngManager:    llm.NewManager(def),
			Catalog:       catalog,
			SolverOptions: solverOpts,
		})
		if err != nil {
			logging.Error("telegram", "err", err)
			os.Exit(1)
		}
		if run != nil {
			g.Go(func() error { run(); return nil })
		}
	}

	if repo != nil {
		g.Go(func() error { purgeLoop(ctx, repo, cfg.CacheTTL); return nil })
	}
	g.Go(func() error { h.Run(ctx); return nil })
	g.Go(func() error {
		srv := httpserver.New(":"+cfg.Port, mux)
		logging.Info("mathsnap starting", "addr", srv.Addr, "engine", def.Name(), "model", def.GetModel())
		return httpserver.Run(ctx, srv)
	})

	if err := g.Wait(); err != nil {
		logging.Error("exit", "err", err)
		os.Exit(1)
	}
}

func buildEngines(cfg *config.Config) (*llm.Engines, llm.Engine) {
	engines := llm.NewEngines()
	if cfg.HFToken != "" {
		oa := openai.New(cfg.HFToken, cfg.InferenceModel).
			WithBaseURL(cfg.InferenceBaseURL).
			WithTimeout(cfg.InferenceTimeout)
		oa.MaxTokens = cfg.InferenceMaxTokens
		engines.Register(oa, "hf", "gpt")
	}
	if cfg.GeminiAPIKey != "" {
		gm := gemini.New(cfg.GeminiAPIKey, cfg.GeminiModel)
		gm.MaxTokens = cfg.InferenceMaxTokens
		engines.Register(gm)
	}
	def, err := engines.GetEngine(cfg.LLMEngine)
	if err != nil {
		logging.Error("default engine", "engine", cfg.LLMEngine, "err", err)
		os.Exit(1)
	}
	logging.Info("engines ready", "available", engines.Names(), "default", def.Name())
	return engines, def
}

func openDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := store.EnsureSchema(pctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	logging.Info("db connected", "dsn", config.SafeDSNSummary(dsn))
	return db, nil
}

func purgeLoop(ctx context.Context, repo *store.AnswerRepo, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	t := time.NewTicker(time.Hour)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := repo.PurgeOlderThan(ctx, ttl)
			if err != nil {
				logging.Warn("cache purge failed", "err", err)
				continue
			}
			if n > 0 {
				logging.Info("cache purged", "rows", n)
			}
		}
	}
}

// startTelegram wires the bot either as a webhook on mux or as a polling
// loop. The returned func, if any, blocks until ctx is done.
func startTelegram(ctx context.Context, cfg *config.Config, mux *http.ServeMux, r *telegram.Router) (func(), error) {
	bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, err
	}
	bot.Debug = false
	r.Bot = bot

	handleUpdate := func(upd tgbotapi.Update) { r.HandleUpdate(ctx, upd) }

	if cfg.WebhookURL != "" {
		path := telegram.WebhookPath(bot.Token)
		if err := telegram.SetWebhook(bot, cfg.WebhookURL, path); err != nil {
			return nil, err
		}
		mux.Handle("POST "+path, telegram.WebhookHandler(handleUpdate))
		logging.Info("telegram webhook registered", "bot", bot.Self.UserName)
		return nil, nil
	}

	// a webhook left over from a previous deploy blocks getUpdates
	if _, err := bot.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		logging.Warn("delete webhook", "err", err)
	}
	logging.Info("telegram polling", "bot", bot.Self.UserName)
	return func() {
		telegram.RunPolling(ctx, bot, func(upd tgbotapi.Update) { go handleUpdate(upd) })
	}, nil
}
