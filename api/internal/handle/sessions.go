package handle

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"mathsnap/api/internal/capture"
	"mathsnap/api/internal/logging"
	"mathsnap/api/internal/solver"
)

// session is one browser workspace: a solve controller plus its camera.
type session struct {
	id     string
	solver *solver.Controller
	camera *capture.Session

	mu       sync.Mutex
	lastSeen time.Time
}

func (s *session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastSeen)
}

// sessionStore is the in-memory session table. Evicting or deleting a session
// closes its camera.
type sessionStore struct {
	m   sync.Map // id -> *session
	ttl time.Duration
	now func() time.Time
}

func newSessionStore(ttl time.Duration) *sessionStore {
	return &sessionStore{ttl: ttl, now: time.Now}
}

func (s *sessionStore) Create(ctrl *solver.Controller, cam *capture.Session) *session {
	sess := &session{id: uuid.NewString(), solver: ctrl, camera: cam, lastSeen: s.now()}
	s.m.Store(sess.id, sess)
	return sess
}

func (s *sessionStore) Get(id string) (*session, bool) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, false
	}
	v, ok := s.m.Load(id)
	if !ok {
		return nil, false
	}
	sess := v.(*session)
	sess.touch(s.now())
	return sess, true
}

func (s *sessionStore) Delete(id string) bool {
	v, ok := s.m.LoadAndDelete(id)
	if !ok {
		return false
	}
	v.(*session).camera.Close()
	return true
}

// Sweep evicts sessions idle for longer than the TTL.
func (s *sessionStore) Sweep() int {
	if s.ttl <= 0 {
		return 0
	}
	now := s.now()
	n := 0
	s.m.Range(func(k, v any) bool {
		if v.(*session).idleSince(now) > s.ttl && s.Delete(k.(string)) {
			n++
		}
		return true
	})
	return n
}

func (s *sessionStore) CloseAll() {
	s.m.Range(func(k, _ any) bool {
		s.Delete(k.(string))
		return true
	})
}

func (s *sessionStore) Len() int {
	n := 0
	s.m.Range(func(_, _ any) bool { n++; return true })
	return n
}

// Janitor sweeps periodically until ctx is done, then closes every session.
func (s *sessionStore) Janitor(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			s.CloseAll()
			return
		case <-t.C:
			if n := s.Sweep(); n > 0 {
				logging.Info("evicted idle sessions", "component", "handle", "count", n)
			}
		}
	}
}
