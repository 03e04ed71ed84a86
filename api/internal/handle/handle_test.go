package handle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mathsnap/api/internal/capture"
	"mathsnap/api/internal/errs"
	"mathsnap/api/internal/llm"
	"mathsnap/api/internal/locale"
	"mathsnap/api/internal/solver"
	"mathsnap/api/internal/util"
)

type stubDevice struct {
	err error
}

func (d *stubDevice) Open(context.Context, capture.Constraints) (capture.Stream, error) {
	if d.err != nil {
		return nil, d.err
	}
	return stubStream{}, nil
}

type stubStream struct{}

func (stubStream) Frame(context.Context) (image.Image, error) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{B: 255, A: 255})
	return img, nil
}

func (stubStream) Close() error { return nil }

type fixture struct {
	h      *Handle
	srv    *httptest.Server
	engine *llm.Fake
	dev    *stubDevice
}

func newFixture(t *testing.T, reply func(ctx context.Context, req llm.Request) (llm.Response, error)) *fixture {
	t.Helper()
	fake := &llm.Fake{NameValue: "openai", ModelValue: "test-model", CompleteFunc: reply}
	engs := llm.NewEngines()
	engs.Register(fake, "hf")
	dev := &stubDevice{}
	h := New(Deps{
		Engines:        engs,
		Default:        fake,
		Device:         dev,
		Catalog:        locale.New("id"),
		SessionTTL:     time.Hour,
		CaptureOptions: []capture.Option{capture.WithSettleDelay(0)},
	})
	mux := http.NewServeMux()
	h.Routes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &fixture{h: h, srv: srv, engine: fake, dev: dev}
}

func (f *fixture) do(t *testing.T, method, path, contentType string, body []byte) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, bytes.NewReader(body))
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	if resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp.StatusCode, out
}

func (f *fixture) postJSON(t *testing.T, path string, v any) (int, map[string]any) {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return f.do(t, http.MethodPost, path, "application/json", b)
}

func (f *fixture) newSession(t *testing.T) string {
	t.Helper()
	code, body := f.do(t, http.MethodPost, "/v1/sessions", "", nil)
	require.Equal(t, http.StatusCreated, code)
	id, _ := body["session_id"].(string)
	require.NotEmpty(t, id)
	return id
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func multipartFile(t *testing.T, name, contentType string, data []byte) (string, []byte) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="file"; filename="`+name+`"`)
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return mw.FormDataContentType(), buf.Bytes()
}

func errorKind(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	k, _ := e["kind"].(string)
	return k
}

func outcome(body map[string]any) map[string]any {
	o, _ := body["outcome"].(map[string]any)
	return o
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, nil)
	code, body := f.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestHealthzReportsPingFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.h.ping = func(context.Context) error { return errors.New("db down") }
	code, body := f.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "degraded", body["status"])
}

func TestCreateSessionDefaults(t *testing.T) {
	f := newFixture(t, nil)
	code, body := f.do(t, http.MethodPost, "/v1/sessions", "", nil)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "openai", body["engine"])
	assert.Equal(t, "test-model", body["model"])
	assert.Equal(t, "verbose", body["mode"])
	assert.Equal(t, false, body["has_image"])
	assert.Equal(t, "none", outcome(body)["status"])
	cam, _ := body["camera"].(map[string]any)
	assert.Equal(t, "idle", cam["status"])
}

func TestCreateSessionWithOptions(t *testing.T) {
	f := newFixture(t, nil)
	code, body := f.postJSON(t, "/v1/sessions", map[string]string{"llm_name": "HF", "mode": "ringkas"})
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "concise", body["mode"])

	code, body = f.postJSON(t, "/v1/sessions", map[string]string{"llm_name": "nope"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "BAD_REQUEST", errorKind(body))
}

func TestUnknownSession(t *testing.T) {
	f := newFixture(t, nil)
	code, body := f.do(t, http.MethodGet, "/v1/sessions/not-a-uuid", "", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "SESSION_NOT_FOUND", errorKind(body))

	code, _ = f.do(t, http.MethodGet, "/v1/sessions/6b1d3c52-0d5e-4a43-9b7e-2f4f0c0b9a11", "", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestUploadAndSolve(t *testing.T) {
	f := newFixture(t, func(_ context.Context, req llm.Request) (llm.Response, error) {
		return llm.Reply(`Jadi \(x = 2\)`), nil
	})
	id := f.newSession(t)

	ct, body := multipartFile(t, "soal.png", "image/png", pngBytes(t))
	code, st := f.do(t, http.MethodPost, "/v1/sessions/"+id+"/image", ct, body)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, st["has_image"])
	assert.Equal(t, "soal.png", st["image_name"])
	assert.True(t, strings.HasPrefix(st["image_preview"].(string), "data:image/png;base64,"))

	code, st = f.do(t, http.MethodPost, "/v1/sessions/"+id+"/solve", "", nil)
	require.Equal(t, http.StatusOK, code)
	o := outcome(st)
	assert.Equal(t, "success", o["status"])
	assert.Equal(t, "Jadi $x = 2$", o["content"])

	calls := f.engine.Calls()
	require.Len(t, calls, 1)
	require.Len(t, calls[0].Parts, 2)
	assert.Equal(t, llm.PartImageURL, calls[0].Parts[1].Type)
}

func TestUploadJSONBody(t *testing.T) {
	f := newFixture(t, nil)
	id := f.newSession(t)
	code, st := f.postJSON(t, "/v1/sessions/"+id+"/image", map[string]string{
		"name":      "paste.png",
		"image_b64": util.EncodeDataURL("image/png", pngBytes(t)),
	})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, st["has_image"])
}

func TestUploadRejectsNonImage(t *testing.T) {
	f := newFixture(t, nil)
	id := f.newSession(t)
	ct, body := multipartFile(t, "notes.txt", "text/plain", []byte("hello"))
	code, st := f.do(t, http.MethodPost, "/v1/sessions/"+id+"/image", ct, body)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, string(errs.InvalidFileType), errorKind(st))
	assert.Equal(t, false, st["has_image"])
}

func TestUploadRejectsLargeImage(t *testing.T) {
	f := newFixture(t, nil)
	id := f.newSession(t)
	ct, body := multipartFile(t, "big.jpg", "image/jpeg", make([]byte, solver.MaxImageSize+1))
	code, st := f.do(t, http.MethodPost, "/v1/sessions/"+id+"/image", ct, body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, code)
	assert.Equal(t, string(errs.FileTooLarge), errorKind(st))
	assert.Equal(t, false, st["has_image"])
}

func TestSolveWithoutInput(t *testing.T) {
	f := newFixture(t, nil)
	id := f.newSession(t)
	code, st := f.do(t, http.MethodPost, "/v1/sessions/"+id+"/solve?lang=en", "", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, string(errs.NoInput), errorKind(st))
	e := st["error"].(map[string]any)
	assert.Equal(t, "Upload an image or type a math problem first", e["message"])
	assert.Empty(t, f.engine.Calls())
}

func TestTextModeAndClear(t *testing.T) {
	f := newFixture(t, func(context.Context, llm.Request) (llm.Response, error) {
		return llm.Reply("42"), nil
	})
	id := f.newSession(t)

	code, st := f.postJSON(t, "/v1/sessions/"+id+"/text", map[string]string{"text": "2x = 4"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "2x = 4", st["text"])

	code, st = f.postJSON(t, "/v1/sessions/"+id+"/mode", map[string]string{"mode": "concise"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "concise", st["mode"])

	code, _ = f.postJSON(t, "/v1/sessions/"+id+"/mode", map[string]string{"mode": "poetic"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, st = f.do(t, http.MethodPost, "/v1/sessions/"+id+"/solve", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "success", outcome(st)["status"])

	// text is still present, so the answer survives clearing the image
	code, st = f.do(t, http.MethodPost, "/v1/sessions/"+id+"/clear", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "success", outcome(st)["status"])
	assert.Equal(t, "2x = 4", st["text"])
}

func TestSolveEngineFailure(t *testing.T) {
	f := newFixture(t, func(context.Context, llm.Request) (llm.Response, error) {
		return llm.Response{}, &llm.APIError{Provider: "openai", StatusCode: 429, Message: "slow down"}
	})
	id := f.newSession(t)
	f.postJSON(t, "/v1/sessions/"+id+"/text", map[string]string{"text": "1+1"})

	code, st := f.do(t, http.MethodPost, "/v1/sessions/"+id+"/solve", "", nil)
	assert.Equal(t, http.StatusOK, code)
	o := outcome(st)
	assert.Equal(t, "failure", o["status"])
	assert.Equal(t, string(errs.RateLimited), errorKind(o))
}

func TestCameraCaptureAndConfirm(t *testing.T) {
	f := newFixture(t, nil)
	id := f.newSession(t)
	base := "/v1/sessions/" + id + "/camera/"

	code, st := f.postJSON(t, base+"start", map[string]string{"facing": "environment"})
	require.Equal(t, http.StatusOK, code)
	cam := st["camera"].(map[string]any)
	assert.Equal(t, "streaming", cam["status"])
	assert.Equal(t, "back", cam["facing"])

	code, st = f.do(t, http.MethodPost, base+"switch", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "front", st["camera"].(map[string]any)["facing"])

	code, st = f.do(t, http.MethodPost, base+"capture", "", nil)
	require.Equal(t, http.StatusOK, code)
	cam = st["camera"].(map[string]any)
	assert.Equal(t, "frozen", cam["status"])
	assert.NotEmpty(t, cam["frame_preview"])

	code, st = f.do(t, http.MethodPost, base+"confirm", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, st["has_image"])
	assert.Equal(t, capture.PhotoName, st["image_name"])
	assert.Equal(t, "idle", st["camera"].(map[string]any)["status"])

	// nothing frozen anymore
	code, _ = f.do(t, http.MethodPost, base+"confirm", "", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestCameraPermissionDenied(t *testing.T) {
	f := newFixture(t, nil)
	f.dev.err = capture.ErrPermissionDenied
	id := f.newSession(t)

	code, st := f.do(t, http.MethodPost, "/v1/sessions/"+id+"/camera/start", "", nil)
	assert.Equal(t, http.StatusForbidden, code)
	cam := st["camera"].(map[string]any)
	assert.Equal(t, "error", cam["status"])
	assert.Equal(t, string(errs.PermissionDenied), errorKind(cam))

	code, st = f.do(t, http.MethodPost, "/v1/sessions/"+id+"/camera/close", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "idle", st["camera"].(map[string]any)["status"])
}

func TestDeleteSession(t *testing.T) {
	f := newFixture(t, nil)
	id := f.newSession(t)

	code, _ := f.do(t, http.MethodDelete, "/v1/sessions/"+id, "", nil)
	assert.Equal(t, http.StatusNoContent, code)
	code, _ = f.do(t, http.MethodGet, "/v1/sessions/"+id, "", nil)
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = f.do(t, http.MethodDelete, "/v1/sessions/"+id, "", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestStatelessSolve(t *testing.T) {
	f := newFixture(t, func(_ context.Context, req llm.Request) (llm.Response, error) {
		return llm.Reply(`\[y = 3\]`), nil
	})
	code, body := f.postJSON(t, "/v1/solve", SolveRequest{
		ImageB64: util.EncodeDataURL("image/png", pngBytes(t)),
		Text:     "cari y",
		Mode:     "concise",
	})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "$$y = 3$$", body["content"])
	assert.Equal(t, "openai", body["engine"])

	calls := f.engine.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Parts[0].Text, "cari y")
}

func TestStatelessSolveErrors(t *testing.T) {
	f := newFixture(t, func(context.Context, llm.Request) (llm.Response, error) {
		return llm.Reply("  "), nil
	})

	code, body := f.postJSON(t, "/v1/solve", SolveRequest{})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, string(errs.NoInput), errorKind(body))

	code, body = f.postJSON(t, "/v1/solve", SolveRequest{ImageB64: "!!!"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "BAD_REQUEST", errorKind(body))

	code, body = f.postJSON(t, "/v1/solve", SolveRequest{Text: "1+1"})
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Equal(t, string(errs.EmptyResponse), errorKind(body))
}

func TestSessionSweep(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s := newSessionStore(time.Minute)
	s.now = func() time.Time { return now }

	cam := capture.NewSession(&stubDevice{}, capture.WithSettleDelay(0))
	idle := s.Create(solver.New(&llm.Fake{}), cam)
	now = now.Add(30 * time.Second)
	active := s.Create(solver.New(&llm.Fake{}), capture.NewSession(&stubDevice{}))

	require.NoError(t, cam.Start(context.Background(), capture.FacingBack))
	now = now.Add(45 * time.Second)
	assert.Equal(t, 1, s.Sweep())

	_, ok := s.Get(idle.id)
	assert.False(t, ok)
	_, ok = s.Get(active.id)
	assert.True(t, ok)
	assert.Equal(t, capture.StatusIdle, cam.State().Status)
}

func TestStatusFor(t *testing.T) {
	cases := map[errs.Kind]int{
		errs.InvalidFileType:  http.StatusUnprocessableEntity,
		errs.FileTooLarge:     http.StatusRequestEntityTooLarge,
		errs.NoInput:          http.StatusUnprocessableEntity,
		errs.SolveInFlight:    http.StatusConflict,
		errs.PermissionDenied: http.StatusForbidden,
		errs.DeviceNotFound:   http.StatusNotFound,
		errs.RateLimited:      http.StatusTooManyRequests,
		errs.Unauthorized:     http.StatusBadGateway,
	}
	for k, want := range cases {
		assert.Equal(t, want, statusFor(errs.New(k)), k)
	}
	assert.Equal(t, http.StatusOK, statusFor(nil))
	assert.Equal(t, http.StatusConflict, statusFor(solver.ErrStale))
}

func TestRequestTimeout(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/v1/solve?timeoutSec=7", nil)
	assert.Equal(t, 7*time.Second, requestTimeout(r))
	r.Header.Set("X-Request-Timeout", "3")
	assert.Equal(t, 3*time.Second, requestTimeout(r))
	assert.Equal(t, defaultSolveTimeout, requestTimeout(httptest.NewRequest(http.MethodPost, "/", nil)))
}
