package llm

import (
	"context"
	"sync"
)

// Fake is a scriptable Engine for tests and local runs.
type Fake struct {
	NameValue  string
	ModelValue string

	CompleteFunc func(ctx context.Context, req Request) (Response, error)

	mu    sync.Mutex
	calls []Request
}

func (f *Fake) Name() string {
	if f.NameValue == "" {
		return "fake"
	}
	return f.NameValue
}

func (f *Fake) GetModel() string { return f.ModelValue }

// WithModel returns a fake with the same behaviour reporting model. Calls are
// recorded separately.
func (f *Fake) WithModel(model string) Engine {
	return &Fake{NameValue: f.NameValue, ModelValue: model, CompleteFunc: f.CompleteFunc}
}

func (f *Fake) Complete(ctx context.Context, req Request) (Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.CompleteFunc != nil {
		return f.CompleteFunc(ctx, req)
	}
	return Reply(""), nil
}

// Calls returns a copy of every request seen so far.
func (f *Fake) Calls() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Request(nil), f.calls...)
}

// Reply builds a one-choice assistant response.
func Reply(content string) Response {
	return Response{Choices: []Choice{{Message: Message{Role: "assistant", Content: content}}}}
}
