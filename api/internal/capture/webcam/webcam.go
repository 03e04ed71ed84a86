// Package webcam implements capture.Device over OpenCV for cameras attached
// to the host.
package webcam

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"log/slog"
	"os"
	"runtime"
	"sync"

	"gocv.io/x/gocv"

	"mathsnap/api/internal/capture"
	"mathsnap/api/internal/logging"
)

var ErrBusy = errors.New("webcam: device busy")

// Device maps facing to an OpenCV device index. Only one stream may be open
// across all sessions.
type Device struct {
	indices map[capture.Facing]int

	mu   sync.Mutex
	busy bool
	log  *slog.Logger
}

func New(backIndex, frontIndex int) *Device {
	return &Device{
		indices: map[capture.Facing]int{
			capture.FacingBack:  backIndex,
			capture.FacingFront: frontIndex,
		},
		log: logging.With("component", "webcam"),
	}
}

func (d *Device) Open(ctx context.Context, c capture.Constraints) (capture.Stream, error) {
	idx, ok := d.indices[c.Facing]
	if !ok {
		return nil, fmt.Errorf("webcam: no device for facing %q: %w", c.Facing, capture.ErrDeviceNotFound)
	}
	if err := probe(idx); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	if d.busy {
		d.mu.Unlock()
		return nil, ErrBusy
	}
	d.busy = true
	d.mu.Unlock()

	cam, err := gocv.VideoCaptureDevice(idx)
	if err != nil || !cam.IsOpened() {
		if cam != nil {
			cam.Close()
		}
		d.free()
		if err == nil {
			err = errors.New("not opened")
		}
		return nil, fmt.Errorf("webcam: open device %d: %w", idx, err)
	}
	if c.IdealWidth > 0 && c.IdealHeight > 0 {
		cam.Set(gocv.VideoCaptureFrameWidth, float64(c.IdealWidth))
		cam.Set(gocv.VideoCaptureFrameHeight, float64(c.IdealHeight))
	}
	mat := gocv.NewMat()
	d.log.Info("camera opened", "index", idx, "facing", c.Facing,
		"width", cam.Get(gocv.VideoCaptureFrameWidth), "height", cam.Get(gocv.VideoCaptureFrameHeight))
	return &stream{dev: d, cam: cam, frame: &mat}, nil
}

func (d *Device) free() {
	d.mu.Lock()
	d.busy = false
	d.mu.Unlock()
}

type stream struct {
	dev   *Device
	cam   *gocv.VideoCapture
	frame *gocv.Mat

	mu     sync.Mutex
	closed bool
}

func (s *stream) Frame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.New("webcam: stream closed")
	}
	if !s.cam.Read(s.frame) {
		return nil, errors.New("webcam: cannot read frame")
	}
	if s.frame.Empty() {
		return nil, errors.New("webcam: frame is empty")
	}
	return s.frame.ToImage()
}

func (s *stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.cam.Close()
	if ferr := s.frame.Close(); err == nil {
		err = ferr
	}
	s.dev.free()
	return err
}

// probe classifies missing and forbidden V4L2 nodes before OpenCV hides the
// reason behind a generic failure.
func probe(idx int) error {
	if runtime.GOOS != "linux" {
		return nil
	}
	path := fmt.Sprintf("/dev/video%d", idx)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	switch {
	case err == nil:
		return f.Close()
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%s: %w", path, capture.ErrDeviceNotFound)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%s: %w", path, capture.ErrPermissionDenied)
	default:
		return fmt.Errorf("%s: %w", path, err)
	}
}
