// Package solver validates a math problem (image and/or text), sends it to an
// llm.Engine and keeps the resulting outcome for presentation.
//
// A Controller allows one inference call at a time. A response that returns
// after the input has changed is discarded.
package solver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"mathsnap/api/internal/errs"
	"mathsnap/api/internal/llm"
	"mathsnap/api/internal/logging"
	"mathsnap/api/internal/util"
)

// MaxImageSize is the largest accepted image (10 MiB).
const MaxImageSize = 10 << 20

type Mode string

const (
	ModeVerbose Mode = "verbose"
	ModeConcise Mode = "concise"
)

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "verbose", "full", "lengkap":
		return ModeVerbose, nil
	case "concise", "short", "ringkas":
		return ModeConcise, nil
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

type File struct {
	Name      string
	MediaType string
	Size      int64
	Data      []byte
}

type Status string

const (
	StatusNone    Status = "none"
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

type Outcome struct {
	Status  Status
	Content string
	Err     *errs.Error
}

// ErrStale is returned by Solve when the input changed while the call was in
// flight. The response was dropped.
var ErrStale = errors.New("solver: input changed, response discarded")

// AnswerCache stores successful answers by input hash.
type AnswerCache interface {
	Find(ctx context.Context, inputHash, engine, model, mode string) (string, bool, error)
	Upsert(ctx context.Context, inputHash, engine, model, mode, content string) error
}

type Controller struct {
	mu        sync.Mutex
	engine    llm.Engine
	prompts   Prompts
	cache     AnswerCache
	maxTokens int
	log       *slog.Logger

	image    *File
	preview  string
	text     string
	mode     Mode
	outcome  Outcome
	inputErr *errs.Error
	inflight bool
	rev      uint64
}

type Option func(*Controller)

func WithPrompts(p Prompts) Option       { return func(c *Controller) { c.prompts = p } }
func WithCache(cache AnswerCache) Option { return func(c *Controller) { c.cache = cache } }
func WithLogger(l *slog.Logger) Option   { return func(c *Controller) { c.log = l } }
func WithMode(m Mode) Option             { return func(c *Controller) { c.mode = m } }
func WithMaxTokens(n int) Option         { return func(c *Controller) { c.maxTokens = n } }

func New(engine llm.Engine, opts ...Option) *Controller {
	c := &Controller{
		engine:  engine,
		prompts: DefaultPrompts(),
		mode:    ModeVerbose,
		outcome: Outcome{Status: StatusNone},
		log:     logging.With("component", "solver"),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SetImage validates and stores f. On failure the stored image is kept and
// the error is recorded as the last input error.
func (c *Controller) SetImage(f File) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(f.MediaType)), "image/") {
		c.inputErr = errs.New(errs.InvalidFileType)
		return c.inputErr
	}
	size := f.Size
	if size <= 0 {
		size = int64(len(f.Data))
	}
	if size > MaxImageSize {
		c.inputErr = errs.New(errs.FileTooLarge)
		return c.inputErr
	}

	f.Size = size
	c.image = &f
	c.preview = util.EncodeDataURL(f.MediaType, f.Data)
	c.outcome = Outcome{Status: StatusNone}
	c.inputErr = nil
	c.rev++
	return nil
}

func (c *Controller) SetText(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.text = text
	c.rev++
}

func (c *Controller) SetMode(m Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = m
	c.rev++
}

// Clear drops the image. The outcome survives while text is still present.
func (c *Controller) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.image = nil
	c.preview = ""
	if strings.TrimSpace(c.text) == "" {
		c.outcome = Outcome{Status: StatusNone}
	}
	c.inputErr = nil
	c.rev++
}

func (c *Controller) SetEngine(e llm.Engine) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.engine = e
}

func (c *Controller) Engine() llm.Engine {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.engine
}

type call struct {
	rev     uint64
	engine  llm.Engine
	req     llm.Request
	mode    Mode
	hash    string
	hasText bool
	hasImg  bool
}

// Solve sends the current input to the engine and records the outcome.
// It returns NO_INPUT or SOLVE_IN_FLIGHT without calling the engine, and
// ErrStale when the input changed before the response arrived. Engine
// failures are reported through the returned Outcome.
func (c *Controller) Solve(ctx context.Context) (Outcome, error) {
	cl, err := c.begin()
	if err != nil {
		return Outcome{}, err
	}

	start := time.Now()
	res := c.complete(ctx, cl)
	c.log.Info("solve finished",
		"engine", cl.engine.Name(), "model", cl.engine.GetModel(), "mode", cl.mode,
		"status", res.Status, "kind", kindOf(res.Err), "elapsed", time.Since(start))

	c.mu.Lock()
	c.inflight = false
	if c.rev != cl.rev {
		if c.outcome.Status == StatusPending {
			c.outcome = Outcome{Status: StatusNone}
		}
		c.mu.Unlock()
		c.log.Info("discarding stale response", "status", res.Status)
		return res, ErrStale
	}
	c.outcome = res
	c.mu.Unlock()
	return res, nil
}

func (c *Controller) begin() (call, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inflight {
		return call{}, errs.ErrSolveInFlight
	}
	hasText := strings.TrimSpace(c.text) != ""
	if c.image == nil && !hasText {
		c.inputErr = errs.New(errs.NoInput)
		return call{}, c.inputErr
	}
	if c.engine == nil {
		return call{}, errors.New("solver: no engine configured")
	}

	instruction := c.prompts.Instruction(c.mode, c.text)
	parts := []llm.Part{llm.TextPart(instruction)}
	var img []byte
	if c.image != nil {
		img = c.image.Data
		parts = append(parts, llm.ImagePart(util.EncodeDataURL(c.image.MediaType, img)))
	}

	c.outcome = Outcome{Status: StatusPending}
	c.inputErr = nil
	c.inflight = true
	return call{
		rev:     c.rev,
		engine:  c.engine,
		req:     llm.Request{Parts: parts, MaxTokens: c.maxTokens},
		mode:    c.mode,
		hash:    util.SHA256Hex([]byte(instruction), img),
		hasText: hasText,
		hasImg:  c.image != nil,
	}, nil
}

func (c *Controller) complete(ctx context.Context, cl call) Outcome {
	name, model := cl.engine.Name(), cl.engine.GetModel()
	if c.cache != nil {
		content, ok, err := c.cache.Find(ctx, cl.hash, name, model, string(cl.mode))
		switch {
		case err != nil:
			c.log.Warn("answer cache lookup failed", "err", err)
		case ok:
			c.log.Debug("answer cache hit", "hash", cl.hash)
			return Outcome{Status: StatusSuccess, Content: content}
		}
	}

	c.log.Debug("calling engine", "engine", name, "model", model, "has_image", cl.hasImg, "has_text", cl.hasText)
	resp, err := cl.engine.Complete(ctx, cl.req)
	if err != nil {
		return Outcome{Status: StatusFailure, Err: llm.AsError(err)}
	}
	var content string
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
	}
	if strings.TrimSpace(content) == "" {
		return Outcome{Status: StatusFailure, Err: errs.New(errs.EmptyResponse)}
	}

	if c.cache != nil {
		if err := c.cache.Upsert(ctx, cl.hash, name, model, string(cl.mode), content); err != nil {
			c.log.Warn("answer cache store failed", "err", err)
		}
	}
	return Outcome{Status: StatusSuccess, Content: content}
}

type State struct {
	Mode      Mode
	Text      string
	HasImage  bool
	ImageName string
	Preview   string
	InFlight  bool
	Outcome   Outcome
	InputErr  *errs.Error
	Engine    string
	Model     string
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := State{
		Mode:     c.mode,
		Text:     c.text,
		HasImage: c.image != nil,
		Preview:  c.preview,
		InFlight: c.inflight,
		Outcome:  c.outcome,
		InputErr: c.inputErr,
	}
	if c.image != nil {
		st.ImageName = c.image.Name
	}
	if c.engine != nil {
		st.Engine = c.engine.Name()
		st.Model = c.engine.GetModel()
	}
	return st
}

func kindOf(e *errs.Error) errs.Kind {
	if e == nil {
		return ""
	}
	return e.Kind
}
