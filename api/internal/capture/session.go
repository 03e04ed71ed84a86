package capture

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"mathsnap/api/internal/errs"
	"mathsnap/api/internal/logging"
	"mathsnap/api/internal/util"
)

// DefaultSettleDelay is the pause between releasing a stream and opening the
// next one, giving the hardware time to let go.
const DefaultSettleDelay = 100 * time.Millisecond

type State struct {
	Status       Status      `json:"status"`
	Facing       Facing      `json:"facing"`
	FramePreview string      `json:"frame_preview,omitempty"`
	Err          *errs.Error `json:"-"`
}

type Session struct {
	mu     sync.Mutex
	dev    Device
	stream Stream
	facing Facing
	frame  []byte
	status Status
	err    *errs.Error
	settle time.Duration
	log    *slog.Logger
}

type Option func(*Session)

func WithSettleDelay(d time.Duration) Option {
	return func(s *Session) { s.settle = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.log = l }
}

func NewSession(dev Device, opts ...Option) *Session {
	s := &Session{
		dev:    dev,
		facing: FacingBack,
		status: StatusIdle,
		settle: DefaultSettleDelay,
		log:    logging.With("component", "capture"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start opens a stream with the given facing. Any held stream is released
// first, so Start also serves as the retry after an error.
func (s *Session) Start(ctx context.Context, facing Facing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.release()
	s.frame = nil
	s.facing = facing
	return s.open(ctx)
}

// SwitchFacing flips between front and back. No-op unless streaming.
func (s *Session) SwitchFacing(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusStreaming {
		return nil
	}
	s.release()
	s.facing = s.facing.Flip()
	if err := s.wait(ctx); err != nil {
		return err
	}
	return s.open(ctx)
}

// Capture freezes the current frame as JPEG and stops the stream.
// No-op unless streaming.
func (s *Session) Capture(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusStreaming {
		return nil
	}
	img, err := s.stream.Frame(ctx)
	s.release()
	if err != nil {
		return s.fail(errs.Wrap(errs.CameraUnknown, err))
	}
	data, err := util.EncodeJPEG(img, util.JPEGQuality)
	if err != nil {
		return s.fail(errs.Wrap(errs.CameraUnknown, err))
	}
	s.frame = data
	s.status = StatusFrozen
	s.err = nil
	s.log.Debug("frame captured", "facing", s.facing, "bytes", len(data))
	return nil
}

// Retake drops the frozen frame and streams again with the last facing.
// No-op unless frozen.
func (s *Session) Retake(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusFrozen {
		return nil
	}
	s.frame = nil
	if err := s.wait(ctx); err != nil {
		return err
	}
	return s.open(ctx)
}

// Confirm hands over the frozen frame and returns the session to idle.
func (s *Session) Confirm() (Photo, error) {
	return s.ConfirmWith(nil)
}

// ConfirmWith passes the frozen frame to accept and returns to idle only if
// accept succeeds. On error the frame stays frozen so it can be retaken or
// confirmed again.
func (s *Session) ConfirmWith(accept func(Photo) error) (Photo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusFrozen || len(s.frame) == 0 {
		return Photo{}, ErrNotFrozen
	}
	p := Photo{
		Name:      PhotoName,
		MediaType: PhotoMediaType,
		Data:      s.frame,
		Preview:   util.EncodeDataURL(PhotoMediaType, s.frame),
	}
	if accept != nil {
		if err := accept(p); err != nil {
			return p, err
		}
	}
	s.release()
	s.frame = nil
	s.status = StatusIdle
	s.err = nil
	return p, nil
}

// Close releases everything and returns to idle. Safe in any state.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.release()
	s.frame = nil
	s.status = StatusIdle
	s.err = nil
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := State{Status: s.status, Facing: s.facing, Err: s.err}
	if s.status == StatusFrozen && len(s.frame) > 0 {
		st.FramePreview = util.EncodeDataURL(PhotoMediaType, s.frame)
	}
	return st
}

func (s *Session) open(ctx context.Context) error {
	st, err := s.dev.Open(ctx, Constraints{
		Facing:      s.facing,
		IdealWidth:  IdealWidth,
		IdealHeight: IdealHeight,
	})
	if err != nil {
		return s.fail(classify(err))
	}
	s.stream = st
	s.status = StatusStreaming
	s.err = nil
	s.log.Debug("stream opened", "facing", s.facing)
	return nil
}

func (s *Session) wait(ctx context.Context) error {
	if s.settle <= 0 {
		return nil
	}
	t := time.NewTimer(s.settle)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return s.fail(errs.Wrap(errs.CameraUnknown, ctx.Err()))
	}
}

func (s *Session) fail(e *errs.Error) error {
	s.release()
	s.status = StatusError
	s.err = e
	s.log.Warn("camera error", "kind", e.Kind, "detail", e.Detail)
	return e
}

func (s *Session) release() {
	if s.stream == nil {
		return
	}
	if err := s.stream.Close(); err != nil {
		s.log.Warn("stream close failed", "err", err)
	}
	s.stream = nil
}

func classify(err error) *errs.Error {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return errs.Wrap(errs.PermissionDenied, err)
	case errors.Is(err, ErrDeviceNotFound):
		return errs.Wrap(errs.DeviceNotFound, err)
	default:
		return errs.Wrap(errs.CameraUnknown, err)
	}
}
