// Package llm is the boundary to multimodal inference providers.
package llm

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

type Engine interface {
	Name() string
	GetModel() string
	Complete(ctx context.Context, req Request) (Response, error)
}

// Engines is the set of configured providers, keyed by name.
type Engines struct {
	mu      sync.RWMutex
	byName  map[string]Engine
	aliases map[string]string
}

func NewEngines() *Engines {
	return &Engines{byName: map[string]Engine{}, aliases: map[string]string{}}
}

// Register adds e under its Name() and any extra aliases.
func (s *Engines) Register(e Engine, aliases ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := strings.ToLower(e.Name())
	s.byName[name] = e
	for _, a := range aliases {
		s.aliases[strings.ToLower(a)] = name
	}
}

func (s *Engines) GetEngine(name string) (Engine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := s.aliases[n]; ok {
		n = alias
	}
	if e, ok := s.byName[n]; ok {
		return e, nil
	}
	return nil, fmt.Errorf("unknown llm engine: %q", name)
}

// Names lists registered engine names in sorted order.
func (s *Engines) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.byName))
	for n := range s.byName {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Manager remembers a per-chat engine choice and falls back to the default.
type Manager struct {
	def Engine
	m   sync.Map // chatID -> Engine
}

func NewManager(defaultEngine Engine) *Manager {
	return &Manager{def: defaultEngine}
}

func (m *Manager) Get(chatID int64) Engine {
	if v, ok := m.m.Load(chatID); ok {
		return v.(Engine)
	}
	return m.def
}

func (m *Manager) Set(chatID int64, e Engine) {
	m.m.Store(chatID, e)
}

// WithModel returns e bound to a different model when the provider supports it.
func WithModel(e Engine, model string) Engine {
	model = strings.TrimSpace(model)
	if model == "" || model == e.GetModel() {
		return e
	}
	if m, ok := e.(interface{ WithModel(string) Engine }); ok {
		return m.WithModel(model)
	}
	return e
}
