package handle

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"mathsnap/api/internal/solver"
	"mathsnap/api/internal/util"
)

type SolveRequest struct {
	LLMName  string `json:"llm_name"`
	Model    string `json:"model"`
	ImageB64 string `json:"image_b64"`
	Mime     string `json:"mime"`
	Text     string `json:"text"`
	Mode     string `json:"mode"`
}

type SolveResponse struct {
	Content string `json:"content"`
	Engine  string `json:"engine"`
	Model   string `json:"model"`
}

// Solve is the one-shot endpoint: validate, call the engine, answer.
func (h *Handle) Solve(w http.ResponseWriter, r *http.Request) {
	var req SolveRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUploadBytes)).Decode(&req); err != nil {
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
	if s := strings.TrimSpace(req.ImageB64); s != "" {
		data, hint, err := util.DecodeBase64MaybeDataURL(s)
		if err != nil || len(data) == 0 {
			writeBadRequest(w, "bad image_b64")
			return
		}
		f := solver.File{Name: "upload", MediaType: util.PickMIME(req.Mime, hint, data), Size: int64(len(data)), Data: data}
		if err := ctrl.SetImage(f); err != nil {
			h.writeError(w, r, statusFor(err), err)
			return
		}
	}
	ctrl.SetText(req.Text)

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout(r))
	defer cancel()
	out, err := ctrl.Solve(ctx)
	if err != nil {
		h.writeError(w, r, statusFor(err), err)
		return
	}
	if out.Status != solver.StatusSuccess {
		h.writeError(w, r, statusFor(out.Err), out.Err)
		return
	}
	writeJSON(w, http.StatusOK, SolveResponse{
		Content: normalizeContent(out),
		Engine:  engine.Name(),
		Model:   engine.GetModel(),
	})
}
