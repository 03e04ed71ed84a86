// Package capture drives a single camera session: open a live stream,
// freeze one frame, and hand it over as a JPEG photo.
//
// A Session owns at most one Stream at a time. Every transition that leaves
// Streaming releases the stream before returning.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
)

type Facing string

const (
	FacingBack  Facing = "back"
	FacingFront Facing = "front"
)

func (f Facing) Flip() Facing {
	if f == FacingFront {
		return FacingBack
	}
	return FacingFront
}

// ParseFacing accepts front/back and the browser names user/environment.
// An empty string means back.
func ParseFacing(s string) (Facing, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "back", "environment", "rear":
		return FacingBack, nil
	case "front", "user":
		return FacingFront, nil
	}
	return "", fmt.Errorf("unknown facing %q", s)
}

type Status string

const (
	StatusIdle      Status = "idle"
	StatusStreaming Status = "streaming"
	StatusFrozen    Status = "frozen"
	StatusError     Status = "error"
)

const (
	IdealWidth  = 1920
	IdealHeight = 1080
)

type Constraints struct {
	Facing      Facing
	IdealWidth  int
	IdealHeight int
}

// Device opens live streams. Implementations return errors wrapping
// ErrPermissionDenied or ErrDeviceNotFound when they can tell.
type Device interface {
	Open(ctx context.Context, c Constraints) (Stream, error)
}

type Stream interface {
	// Frame returns the current frame at native resolution.
	Frame(ctx context.Context) (image.Image, error)
	// Close stops the hardware. Safe to call more than once.
	Close() error
}

var (
	ErrPermissionDenied = errors.New("capture: permission denied")
	ErrDeviceNotFound   = errors.New("capture: device not found")
	ErrNotFrozen        = errors.New("capture: no frozen frame")
)

const (
	PhotoName      = "camera-capture.jpg"
	PhotoMediaType = "image/jpeg"
)

// Photo is a confirmed capture, ready to be used as an uploaded image.
type Photo struct {
	Name      string
	MediaType string
	Data      []byte
	Preview   string
}
