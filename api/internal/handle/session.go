package handle

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"mathsnap/api/internal/capture"
	"mathsnap/api/internal/errs"
	"mathsnap/api/internal/llm"
	"mathsnap/api/internal/solver"
	"mathsnap/api/internal/util"
)

// Uploads above this are rejected before parsing. Anything between
// solver.MaxImageSize and this limit is rejected by the controller.
const maxUploadBytes = 64 << 20

const cameraTimeout = 15 * time.Second

type outcomeJSON struct {
	Status  solver.Status `json:"status"`
	Content string        `json:"content,omitempty"`
	Error   *errorJSON    `json:"error,omitempty"`
}

type cameraJSON struct {
	Status       capture.Status `json:"status"`
	Facing       capture.Facing `json:"facing"`
	FramePreview string         `json:"frame_preview,omitempty"`
	Error        *errorJSON     `json:"error,omitempty"`
}

type stateJSON struct {
	SessionID    string      `json:"session_id"`
	Engine       string      `json:"engine"`
	Model        string      `json:"model"`
	Mode         solver.Mode `json:"mode"`
	Text         string      `json:"text"`
	HasImage     bool        `json:"has_image"`
	ImageName    string      `json:"image_name,omitempty"`
	ImagePreview string      `json:"image_preview,omitempty"`
	InFlight     bool        `json:"in_flight"`
	Error        *errorJSON  `json:"error,omitempty"`
	Outcome      outcomeJSON `json:"outcome"`
	Camera       cameraJSON  `json:"camera"`
}

func (h *Handle) render(r *http.Request, sess *session, opErr error) stateJSON {
	st := sess.solver.State()
	cam := sess.camera.State()

	out := stateJSON{
		SessionID:    sess.id,
		Engine:       st.Engine,
		Model:        st.Model,
		Mode:         st.Mode,
		Text:         st.Text,
		HasImage:     st.HasImage,
		ImageName:    st.ImageName,
		ImagePreview: st.Preview,
		InFlight:     st.InFlight,
		Outcome:      outcomeJSON{Status: st.Outcome.Status, Content: normalizeContent(st.Outcome)},
		Camera:       cameraJSON{Status: cam.Status, Facing: cam.Facing, FramePreview: cam.FramePreview},
	}
	if st.Outcome.Err != nil {
		out.Outcome.Error = h.errorBody(r, st.Outcome.Err)
	}
	if cam.Err != nil {
		out.Camera.Error = h.errorBody(r, cam.Err)
	}
	switch {
	case opErr != nil && !errors.Is(opErr, solver.ErrStale):
		out.Error = h.errorBody(r, opErr)
	case st.InputErr != nil:
		out.Error = h.errorBody(r, st.InputErr)
	}
	return out
}

func (h *Handle) respond(w http.ResponseWriter, r *http.Request, sess *session, opErr error) {
	writeJSON(w, statusFor(opErr), h.render(r, sess, opErr))
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, sess *session)

func (h *Handle) withSession(fn sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := h.sessions.Get(r.PathValue("id"))
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": errorJSON{Kind: "SESSION_NOT_FOUND", Message: "session not found"}})
			return
		}
		fn(w, r, sess)
	}
}

// decodeOptional decodes a JSON body when one is present.
func decodeOptional(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

type createSessionRequest struct {
	LLMName string `json:"llm_name"`
	Model   string `json:"model"`
	Mode    string `json:"mode"`
}

func (h *Handle) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeOptional(r, &req); err != nil {
		writeBadRequest(w, "bad json: "+err.Error())
		return
	}
	engine, err := h.engineFor(req.LLMName, req.Model)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	ctrl := h.newController(engine)
	if req.Mode != "" {
		m, err := solver.ParseMode(req.Mode)
		if err != nil {
			writeBadRequest(w, err.Error())
			return
		}
		ctrl.SetMode(m)
	}
	sess := h.sessions.Create(ctrl, capture.NewSession(h.device, h.captureOpts...))
	h.log.Info("session created", "session", sess.id, "engine", engine.Name())
	writeJSON(w, http.StatusCreated, h.render(r, sess, nil))
}

func (h *Handle) engineFor(name, model string) (llm.Engine, error) {
	e := h.def
	if strings.TrimSpace(name) != "" {
		if h.engs == nil {
			return nil, errors.New("no engines configured")
		}
		var err error
		if e, err = h.engs.GetEngine(name); err != nil {
			return nil, err
		}
	}
	if e == nil {
		return nil, errors.New("no default engine configured")
	}
	return llm.WithModel(e, model), nil
}

func (h *Handle) GetSession(w http.ResponseWriter, r *http.Request, sess *session) {
	h.respond(w, r, sess, nil)
}

func (h *Handle) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if !h.sessions.Delete(r.PathValue("id")) {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": errorJSON{Kind: "SESSION_NOT_FOUND", Message: "session not found"}})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type imageJSONRequest struct {
	Name     string `json:"name"`
	ImageB64 string `json:"image_b64"`
	Mime     string `json:"mime"`
}

// SetImage accepts multipart field "file" or a JSON body with image_b64.
func (h *Handle) SetImage(w http.ResponseWriter, r *http.Request, sess *session) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		var req imageJSONRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.uploadError(w, r, err)
			return
		}
		data, hint, err := util.DecodeBase64MaybeDataURL(req.ImageB64)
		if err != nil || len(data) == 0 {
			writeBadRequest(w, "bad image_b64")
			return
		}
		f := solver.File{Name: req.Name, MediaType: util.PickMIME(req.Mime, hint, data), Size: int64(len(data)), Data: data}
		h.respond(w, r, sess, sess.solver.SetImage(f))
		return
	}

	if err := r.ParseMultipartForm(1 << 20); err != nil {
		h.uploadError(w, r, err)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()
	file, hdr, err := r.FormFile("file")
	if err != nil {
		writeBadRequest(w, "missing form file \"file\"")
		return
	}
	defer file.Close()

	f := solver.File{Name: hdr.Filename, MediaType: hdr.Header.Get("Content-Type"), Size: hdr.Size}
	if f.Size <= solver.MaxImageSize {
		if f.Data, err = io.ReadAll(file); err != nil {
			h.uploadError(w, r, err)
			return
		}
		if f.MediaType == "" {
			f.MediaType = util.SniffMimeHTTP(f.Data)
		}
	}
	h.respond(w, r, sess, sess.solver.SetImage(f))
}

func (h *Handle) uploadError(w http.ResponseWriter, r *http.Request, err error) {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]any{"error": errorJSON{
			Kind:    errs.FileTooLarge,
			Message: h.localizer(r).Kind(errs.FileTooLarge, ""),
		}})
		return
	}
	writeBadRequest(w, "bad upload: "+err.Error())
}

func (h *Handle) SetText(w http.ResponseWriter, r *http.Request, sess *session) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "bad json: "+err.Error())
		return
	}
	sess.solver.SetText(req.Text)
	h.respond(w, r, sess, nil)
}

func (h *Handle) SetMode(w http.ResponseWriter, r *http.Request, sess *session) {
	var req struct {
		Mode string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "bad json: "+err.Error())
		return
	}
	m, err := solver.ParseMode(req.Mode)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	sess.solver.SetMode(m)
	h.respond(w, r, sess, nil)
}

func (h *Handle) Clear(w http.ResponseWriter, r *http.Request, sess *session) {
	sess.solver.Clear()
	h.respond(w, r, sess, nil)
}

func (h *Handle) SolveSession(w http.ResponseWriter, r *http.Request, sess *session) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout(r))
	defer cancel()
	_, err := sess.solver.Solve(ctx)
	h.respond(w, r, sess, err)
}

func (h *Handle) CameraStart(w http.ResponseWriter, r *http.Request, sess *session) {
	var req struct {
		Facing string `json:"facing"`
	}
	if err := decodeOptional(r, &req); err != nil {
		writeBadRequest(w, "bad json: "+err.Error())
		return
	}
	facing, err := capture.ParseFacing(req.Facing)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), cameraTimeout)
	defer cancel()
	h.respond(w, r, sess, sess.camera.Start(ctx, facing))
}

func (h *Handle) CameraSwitch(w http.ResponseWriter, r *http.Request, sess *session) {
	ctx, cancel := context.WithTimeout(r.Context(), cameraTimeout)
	defer cancel()
	h.respond(w, r, sess, sess.camera.SwitchFacing(ctx))
}

func (h *Handle) CameraCapture(w http.ResponseWriter, r *http.Request, sess *session) {
	ctx, cancel := context.WithTimeout(r.Context(), cameraTimeout)
	defer cancel()
	h.respond(w, r, sess, sess.camera.Capture(ctx))
}

func (h *Handle) CameraRetake(w http.ResponseWriter, r *http.Request, sess *session) {
	ctx, cancel := context.WithTimeout(r.Context(), cameraTimeout)
	defer cancel()
	h.respond(w, r, sess, sess.camera.Retake(ctx))
}

// CameraConfirm moves the frozen frame into the solve controller as if it
// had been uploaded. A rejected frame keeps the camera frozen.
func (h *Handle) CameraConfirm(w http.ResponseWriter, r *http.Request, sess *session) {
	_, err := sess.camera.ConfirmWith(func(p capture.Photo) error {
		return sess.solver.SetImage(solver.File{
			Name:      p.Name,
			MediaType: p.MediaType,
			Size:      int64(len(p.Data)),
			Data:      p.Data,
		})
	})
	if errors.Is(err, capture.ErrNotFrozen) {
		err = nil
	}
	h.respond(w, r, sess, err)
}

func (h *Handle) CameraClose(w http.ResponseWriter, r *http.Request, sess *session) {
	sess.camera.Close()
	h.respond(w, r, sess, nil)
}
