// Package openai talks to any OpenAI-compatible chat completions endpoint.
// The default target is the Hugging Face inference router.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"mathsnap/api/internal/llm"
	"mathsnap/api/internal/logging"
)

const (
	DefaultBaseURL   = "https://router.huggingface.co/v1"
	DefaultModel     = "Qwen/Qwen2.5-VL-7B-Instruct"
	DefaultMaxTokens = 2048
)

type Engine struct {
	APIKey    string
	Model     string
	BaseURL   string
	MaxTokens int
	httpc     *http.Client
	log       *slog.Logger
}

func New(key, model string) *Engine {
	if model == "" {
		model = DefaultModel
	}
	return &Engine{
		APIKey:    key,
		Model:     model,
		BaseURL:   DefaultBaseURL,
		MaxTokens: DefaultMaxTokens,
		httpc:     &http.Client{Timeout: 180 * time.Second},
		log:       logging.With("component", "llm.openai"),
	}
}

// WithBaseURL points the engine at another compatible endpoint.
func (e *Engine) WithBaseURL(u string) *Engine {
	if u = strings.TrimRight(strings.TrimSpace(u), "/"); u != "" {
		e.BaseURL = u
	}
	return e
}

func (e *Engine) WithHTTPClient(c *http.Client) *Engine {
	if c != nil {
		e.httpc = c
	}
	return e
}

func (e *Engine) WithTimeout(d time.Duration) *Engine {
	if d > 0 {
		e.httpc.Timeout = d
	}
	return e
}

// WithModel returns a copy bound to model.
func (e *Engine) WithModel(model string) llm.Engine {
	cp := *e
	cp.Model = model
	return &cp
}

func (e *Engine) Name() string     { return "openai" }
func (e *Engine) GetModel() string { return e.Model }

type chatMessage struct {
	Role    string `json:"role"`
	Content []any  `json:"content"`
}

// Complete sends one chat completion. There are no retries.
func (e *Engine) Complete(ctx context.Context, in llm.Request) (llm.Response, error) {
	if e.APIKey == "" {
		return llm.Response{}, llm.ErrNoAPIKey
	}
	model := e.Model
	if in.Model != "" {
		model = in.Model
	}
	maxTokens := e.MaxTokens
	if in.MaxTokens > 0 {
		maxTokens = in.MaxTokens
	}

	content := make([]any, 0, len(in.Parts))
	for _, p := range in.Parts {
		switch p.Type {
		case llm.PartText:
			content = append(content, map[string]any{"type": "text", "text": p.Text})
		case llm.PartImageURL:
			content = append(content, map[string]any{"type": "image_url", "image_url": map[string]any{"url": p.ImageURL}})
		default:
			return llm.Response{}, fmt.Errorf("openai: unsupported part type %q", p.Type)
		}
	}
	body := map[string]any{
		"model":      model,
		"messages":   []chatMessage{{Role: "user", Content: content}},
		"max_tokens": maxTokens,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return llm.Response{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return llm.Response{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.APIKey)

	start := time.Now()
	resp, err := e.httpc.Do(req)
	if err != nil {
		return llm.Response{}, fmt.Errorf("openai: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		x, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		apiErr := parseAPIError(resp.StatusCode, x)
		e.log.Warn("chat completion failed", "model", model, "status", resp.StatusCode, "elapsed", time.Since(start))
		return llm.Response{}, apiErr
	}

	var out llm.Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return llm.Response{}, fmt.Errorf("openai: decode response: %w", err)
	}
	if out.Model == "" {
		out.Model = model
	}
	e.log.Debug("chat completion", "model", model, "choices", len(out.Choices), "elapsed", time.Since(start))
	return out, nil
}

// parseAPIError understands both {"error":{"message","code"}} and the
// {"error":"..."} shape used by the Hugging Face router.
func parseAPIError(status int, body []byte) *llm.APIError {
	ae := &llm.APIError{Provider: "openai", StatusCode: status}
	var obj struct {
		Error json.RawMessage `json:"error"`
	}
	if json.Unmarshal(body, &obj) == nil && len(obj.Error) > 0 {
		var nested struct {
			Message string `json:"message"`
			Code    any    `json:"code"`
		}
		var flat string
		switch {
		case json.Unmarshal(obj.Error, &flat) == nil:
			ae.Message = flat
		case json.Unmarshal(obj.Error, &nested) == nil:
			ae.Message = nested.Message
			if nested.Code != nil {
				ae.Code = fmt.Sprint(nested.Code)
			}
		}
	}
	if ae.Message == "" {
		ae.Message = strings.TrimSpace(string(body))
	}
	if ae.Message == "" {
		ae.Message = http.StatusText(status)
	}
	return ae
}
