// Package gemini adapts Google Gemini to the llm.Engine interface.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"

	"mathsnap/api/internal/llm"
	"mathsnap/api/internal/logging"
	"mathsnap/api/internal/util"
)

const DefaultModel = "gemini-2.5-flash"

type Engine struct {
	APIKey    string
	Model     string
	MaxTokens int
	log       *slog.Logger
}

func New(key, model string) *Engine {
	if model == "" {
		model = DefaultModel
	}
	return &Engine{
		APIKey:    key,
		Model:     model,
		MaxTokens: 2048,
		log:       logging.With("component", "llm.gemini"),
	}
}

func (e *Engine) Name() string     { return "gemini" }
func (e *Engine) GetModel() string { return e.Model }

// WithModel returns a copy bound to model.
func (e *Engine) WithModel(model string) llm.Engine {
	cp := *e
	cp.Model = model
	return &cp
}

func (e *Engine) Complete(ctx context.Context, in llm.Request) (llm.Response, error) {
	if e.APIKey == "" {
		return llm.Response{}, llm.ErrNoAPIKey
	}
	parts, err := toParts(in.Parts)
	if err != nil {
		return llm.Response{}, err
	}
	model := strings.TrimSpace(e.Model)
	if in.Model != "" {
		model = in.Model
	}

	cl, err := genai.NewClient(ctx, option.WithAPIKey(e.APIKey))
	if err != nil {
		return llm.Response{}, fmt.Errorf("gemini: client: %w", err)
	}
	defer cl.Close()

	m := cl.GenerativeModel(model)
	if m == nil {
		return llm.Response{}, errors.New("gemini: model is nil")
	}
	maxTokens := e.MaxTokens
	if in.MaxTokens > 0 {
		maxTokens = in.MaxTokens
	}
	if maxTokens > 0 {
		m.SetMaxOutputTokens(int32(maxTokens))
	}

	start := time.Now()
	resp, err := m.GenerateContent(ctx, parts...)
	if err != nil {
		e.log.Warn("generate content failed", "model", model, "err", err, "elapsed", time.Since(start))
		return llm.Response{}, toAPIError(err)
	}
	e.log.Debug("generate content", "model", model, "elapsed", time.Since(start))
	return llm.Response{
		Model:   model,
		Choices: []llm.Choice{{Message: llm.Message{Role: "assistant", Content: firstText(resp)}}},
	}, nil
}

func toParts(in []llm.Part) ([]genai.Part, error) {
	out := make([]genai.Part, 0, len(in))
	for _, p := range in {
		switch p.Type {
		case llm.PartText:
			out = append(out, genai.Text(p.Text))
		case llm.PartImageURL:
			data, hint, err := util.DecodeBase64MaybeDataURL(p.ImageURL)
			if err != nil {
				return nil, fmt.Errorf("gemini: bad image data url: %w", err)
			}
			out = append(out, &genai.Blob{MIMEType: util.PickMIME("", hint, data), Data: data})
		default:
			return nil, fmt.Errorf("gemini: unsupported part type %q", p.Type)
		}
	}
	return out, nil
}

// firstText joins the text parts of the first candidate that has content.
func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		var sb strings.Builder
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				sb.WriteString(string(t))
			}
		}
		if sb.Len() > 0 {
			return sb.String()
		}
	}
	return ""
}

// toAPIError normalizes gRPC and HTTP failures to HTTP-style status codes.
func toAPIError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("gemini: %w", err)
	}
	ae := &llm.APIError{Provider: "gemini", Message: err.Error()}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		ae.StatusCode = gerr.Code
		if gerr.Message != "" {
			ae.Message = gerr.Message
		}
		return ae
	}

	apiErr, ok := apierror.FromError(err)
	if !ok {
		return fmt.Errorf("gemini: %w", err)
	}
	if apiErr.Reason() != "" {
		ae.Code = apiErr.Reason()
	}
	if code := apiErr.HTTPCode(); code > 0 {
		ae.StatusCode = code
		return ae
	}
	if st := apiErr.GRPCStatus(); st != nil {
		ae.Message = st.Message()
		ae.StatusCode = httpStatus(st.Code())
	}
	return ae
}

func httpStatus(c codes.Code) int {
	switch c {
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.NotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
