// Package handle is the HTTP front-end. Each browser tab owns a session with
// its own solve controller and camera; all responses are JSON.
package handle

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"mathsnap/api/internal/capture"
	"mathsnap/api/internal/errs"
	"mathsnap/api/internal/latex"
	"mathsnap/api/internal/llm"
	"mathsnap/api/internal/locale"
	"mathsnap/api/internal/logging"
	"mathsnap/api/internal/solver"
)

const defaultSolveTimeout = 180 * time.Second

type Deps struct {
	Engines       *llm.Engines
	Default       llm.Engine
	Device        capture.Device
	Catalog       *locale.Catalog
	SolverOptions []solver.Option
	SessionTTL    time.Duration

	CaptureOptions []capture.Option
	// Ping checks optional backing services for /healthz.
	Ping func(ctx context.Context) error
}

type Handle struct {
	engs     *llm.Engines
	def      llm.Engine
	device   capture.Device
	catalog  *locale.Catalog
	opts     []solver.Option
	ping     func(ctx context.Context) error
	sessions *sessionStore
	log      *slog.Logger

	captureOpts []capture.Option
}

func New(d Deps) *Handle {
	cat := d.Catalog
	if cat == nil {
		cat = locale.New("id")
	}
	return &Handle{
		engs:     d.Engines,
		def:      d.Default,
		device:   d.Device,
		catalog:  cat,
		opts:     d.SolverOptions,
		ping:     d.Ping,
		sessions: newSessionStore(d.SessionTTL),
		log:      logging.With("component", "handle"),

		captureOpts: d.CaptureOptions,
	}
}

// Routes registers every endpoint on mux.
func (h *Handle) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("POST /v1/solve", h.Solve)

	mux.HandleFunc("POST /v1/sessions", h.CreateSession)
	mux.HandleFunc("GET /v1/sessions/{id}", h.withSession(h.GetSession))
	mux.HandleFunc("DELETE /v1/sessions/{id}", h.DeleteSession)
	mux.HandleFunc("POST /v1/sessions/{id}/image", h.withSession(h.SetImage))
	mux.HandleFunc("POST /v1/sessions/{id}/text", h.withSession(h.SetText))
	mux.HandleFunc("POST /v1/sessions/{id}/mode", h.withSession(h.SetMode))
	mux.HandleFunc("POST /v1/sessions/{id}/clear", h.withSession(h.Clear))
	mux.HandleFunc("POST /v1/sessions/{id}/solve", h.withSession(h.SolveSession))

	mux.HandleFunc("POST /v1/sessions/{id}/camera/start", h.withSession(h.CameraStart))
	mux.HandleFunc("POST /v1/sessions/{id}/camera/switch", h.withSession(h.CameraSwitch))
	mux.HandleFunc("POST /v1/sessions/{id}/camera/capture", h.withSession(h.CameraCapture))
	mux.HandleFunc("POST /v1/sessions/{id}/camera/retake", h.withSession(h.CameraRetake))
	mux.HandleFunc("POST /v1/sessions/{id}/camera/confirm", h.withSession(h.CameraConfirm))
	mux.HandleFunc("POST /v1/sessions/{id}/camera/close", h.withSession(h.CameraClose))
}

// Run evicts idle sessions until ctx is done and then closes the rest.
func (h *Handle) Run(ctx context.Context) {
	every := time.Minute
	if ttl := h.sessions.ttl; ttl > 0 && ttl/2 < every {
		every = ttl / 2
	}
	h.sessions.Janitor(ctx, every)
}

func (h *Handle) Healthz(w http.ResponseWriter, r *http.Request) {
	if h.ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "degraded", "db": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "sessions": h.sessions.Len()})
}

func (h *Handle) newController(e llm.Engine) *solver.Controller {
	return solver.New(e, h.opts...)
}

func (h *Handle) localizer(r *http.Request) *locale.Localizer {
	return h.catalog.Localizer(r.URL.Query().Get("lang"), r.Header.Get("Accept-Language"))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorJSON struct {
	Kind    errs.Kind `json:"kind"`
	Message string    `json:"message"`
}

func (h *Handle) errorBody(r *http.Request, err error) *errorJSON {
	if err == nil {
		return nil
	}
	kind := errs.KindOf(err)
	return &errorJSON{Kind: kind, Message: h.localizer(r).Error(err)}
}

// writeError replies with {"error":{kind,message}}.
func (h *Handle) writeError(w http.ResponseWriter, r *http.Request, code int, err error) {
	writeJSON(w, code, map[string]any{"error": h.errorBody(r, err)})
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]any{"error": errorJSON{Kind: "BAD_REQUEST", Message: msg}})
}

// statusFor picks the HTTP status for an operation error.
func statusFor(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if errors.Is(err, solver.ErrStale) {
		return http.StatusConflict
	}
	switch errs.KindOf(err) {
	case errs.InvalidFileType, errs.NoInput:
		return http.StatusUnprocessableEntity
	case errs.FileTooLarge:
		return http.StatusRequestEntityTooLarge
	case errs.SolveInFlight:
		return http.StatusConflict
	case errs.PermissionDenied:
		return http.StatusForbidden
	case errs.DeviceNotFound:
		return http.StatusNotFound
	case errs.CameraUnknown, errs.ModelLoading:
		return http.StatusServiceUnavailable
	case errs.RateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusBadGateway
	}
}

// requestTimeout reads X-Request-Timeout or ?timeoutSec (seconds).
func requestTimeout(r *http.Request) time.Duration {
	deadline := defaultSolveTimeout
	if ts := r.Header.Get("X-Request-Timeout"); ts != "" {
		if v, _ := strconv.Atoi(ts); v > 0 {
			deadline = time.Duration(v) * time.Second
		}
	} else if ts := r.URL.Query().Get("timeoutSec"); ts != "" {
		if v, _ := strconv.Atoi(ts); v > 0 {
			deadline = time.Duration(v) * time.Second
		}
	}
	return deadline
}

func normalizeContent(o solver.Outcome) string {
	return latex.Normalize(o.Content)
}
