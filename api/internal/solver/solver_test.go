package solver

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mathsnap/api/internal/errs"
	"mathsnap/api/internal/latex"
	"mathsnap/api/internal/llm"
)

func jpegFile(size int) File {
	data := bytes.Repeat([]byte{0xFF}, size)
	data[1] = 0xD8
	return File{Name: "soal.jpg", MediaType: "image/jpeg", Size: int64(size), Data: data}
}

func replying(content string) *llm.Fake {
	return &llm.Fake{NameValue: "openai", ModelValue: "m", CompleteFunc: func(context.Context, llm.Request) (llm.Response, error) {
		return llm.Reply(content), nil
	}}
}

func TestScenarioA_UploadAndSolve(t *testing.T) {
	eng := replying("Langkah 1: $x=2$")
	c := New(eng)

	require.NoError(t, c.SetImage(jpegFile(2<<20)))
	out, err := c.Solve(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, out.Status)
	assert.Equal(t, "Langkah 1: $x=2$", out.Content)
	assert.Equal(t, "Langkah 1: $x=2$", latex.Normalize(c.State().Outcome.Content))

	calls := eng.Calls()
	require.Len(t, calls, 1)
	parts := calls[0].Parts
	require.Len(t, parts, 2)
	assert.Equal(t, llm.PartText, parts[0].Type)
	assert.Equal(t, DefaultPrompts().Verbose, parts[0].Text)
	assert.Equal(t, llm.PartImageURL, parts[1].Type)
	assert.True(t, strings.HasPrefix(parts[1].ImageURL, "data:image/jpeg;base64,"))
}

func TestScenarioB_TooLargeKeepsPreviousImage(t *testing.T) {
	c := New(replying("ok"))
	require.NoError(t, c.SetImage(jpegFile(1024)))

	err := c.SetImage(File{Name: "big.jpg", MediaType: "image/jpeg", Size: 11 << 20})
	assert.ErrorIs(t, err, errs.ErrFileTooLarge)

	st := c.State()
	assert.True(t, st.HasImage)
	assert.Equal(t, "soal.jpg", st.ImageName)
	require.NotNil(t, st.InputErr)
	assert.Equal(t, errs.FileTooLarge, st.InputErr.Kind)
}

func TestSetImageValidation(t *testing.T) {
	tests := []struct {
		name string
		file File
		want error
	}{
		{"pdf", File{MediaType: "application/pdf", Size: 10}, errs.ErrInvalidFileType},
		{"empty type", File{Size: 10}, errs.ErrInvalidFileType},
		{"exactly 10 MiB", File{MediaType: "image/png", Size: MaxImageSize}, nil},
		{"one byte over", File{MediaType: "image/png", Size: MaxImageSize + 1}, errs.ErrFileTooLarge},
		{"size from data", File{MediaType: "image/webp", Data: make([]byte, MaxImageSize+1)}, errs.ErrFileTooLarge},
		{"upper case type", File{MediaType: "IMAGE/PNG", Size: 1}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(replying("ok"))
			err := c.SetImage(tt.file)
			if tt.want == nil {
				require.NoError(t, err)
				assert.True(t, c.State().HasImage)
				return
			}
			assert.ErrorIs(t, err, tt.want)
			assert.False(t, c.State().HasImage)
		})
	}
}

func TestSetImageClearsOutcome(t *testing.T) {
	c := New(replying("ok"))
	c.SetText("1+1")
	_, err := c.Solve(context.Background())
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, c.State().Outcome.Status)

	require.NoError(t, c.SetImage(jpegFile(10)))
	assert.Equal(t, StatusNone, c.State().Outcome.Status)
}

func TestSolveWithoutInput(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\t"} {
		eng := replying("ok")
		c := New(eng)
		c.SetText(text)

		_, err := c.Solve(context.Background())
		assert.ErrorIs(t, err, errs.ErrNoInput)
		assert.Empty(t, eng.Calls())
		assert.Equal(t, errs.NoInput, c.State().InputErr.Kind)
	}
}

func TestClearAsymmetry(t *testing.T) {
	t.Run("text remains", func(t *testing.T) {
		c := New(replying("answer"))
		require.NoError(t, c.SetImage(jpegFile(10)))
		c.SetText("2+2=?")
		_, err := c.Solve(context.Background())
		require.NoError(t, err)

		c.Clear()
		st := c.State()
		assert.False(t, st.HasImage)
		assert.Empty(t, st.Preview)
		assert.Equal(t, StatusSuccess, st.Outcome.Status)
		assert.Equal(t, "answer", st.Outcome.Content)
	})
	t.Run("no text", func(t *testing.T) {
		c := New(replying("answer"))
		require.NoError(t, c.SetImage(jpegFile(10)))
		_, err := c.Solve(context.Background())
		require.NoError(t, err)

		c.Clear()
		assert.Equal(t, StatusNone, c.State().Outcome.Status)
	})
	t.Run("blank text", func(t *testing.T) {
		c := New(replying("answer"))
		require.NoError(t, c.SetImage(jpegFile(10)))
		c.SetText("  ")
		_, err := c.Solve(context.Background())
		require.NoError(t, err)

		c.Clear()
		assert.Equal(t, StatusNone, c.State().Outcome.Status)
	})
	t.Run("clears input error", func(t *testing.T) {
		c := New(replying("answer"))
		_ = c.SetImage(File{MediaType: "text/plain"})
		c.Clear()
		assert.Nil(t, c.State().InputErr)
	})
}

func TestScenarioD_RateLimited(t *testing.T) {
	eng := &llm.Fake{CompleteFunc: func(context.Context, llm.Request) (llm.Response, error) {
		return llm.Response{}, fmt.Errorf("chat: %w", &llm.APIError{Provider: "openai", StatusCode: 429, Message: "429 Too Many Requests"})
	}}
	c := New(eng)
	c.SetText("x")

	out, err := c.Solve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusFailure, out.Status)
	require.NotNil(t, out.Err)
	assert.Equal(t, errs.RateLimited, out.Err.Kind)
	assert.Equal(t, out, c.State().Outcome)
}

func TestFailureKinds(t *testing.T) {
	tests := []struct {
		name string
		resp llm.Response
		err  error
		want errs.Kind
	}{
		{"unauthorized", llm.Response{}, &llm.APIError{StatusCode: 401}, errs.Unauthorized},
		{"loading", llm.Response{}, &llm.APIError{StatusCode: 503}, errs.ModelLoading},
		{"other", llm.Response{}, &llm.APIError{StatusCode: 500, Message: "boom"}, errs.TransportUnknown},
		{"no choices", llm.Response{}, nil, errs.EmptyResponse},
		{"blank content", llm.Reply("  \n"), nil, errs.EmptyResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(&llm.Fake{CompleteFunc: func(context.Context, llm.Request) (llm.Response, error) {
				return tt.resp, tt.err
			}})
			c.SetText("x")
			out, err := c.Solve(context.Background())
			require.NoError(t, err)
			assert.Equal(t, StatusFailure, out.Status)
			assert.Equal(t, tt.want, out.Err.Kind)

			// The session stays usable.
			assert.False(t, c.State().InFlight)
		})
	}
}

func TestScenarioE_ConciseTextOnly(t *testing.T) {
	eng := replying("$4$")
	c := New(eng)
	c.SetMode(ModeConcise)
	c.SetText("2+2=?")

	_, err := c.Solve(context.Background())
	require.NoError(t, err)

	calls := eng.Calls()
	require.Len(t, calls, 1)
	parts := calls[0].Parts
	require.Len(t, parts, 1, "no image part")
	text := parts[0].Text
	assert.True(t, strings.HasPrefix(text, DefaultPrompts().Concise))
	assert.Contains(t, text, "SEMUA angka, variabel, dan ekspresi numerik wajib ditulis dalam LaTeX")
	assert.True(t, strings.HasSuffix(text, "SOAL TAMBAHAN DARI USER: 2+2=?"))
}

func TestOverlappingSolveRejected(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	eng := &llm.Fake{CompleteFunc: func(context.Context, llm.Request) (llm.Response, error) {
		close(entered)
		<-release
		return llm.Reply("done"), nil
	}}
	c := New(eng)
	c.SetText("1+1")

	var wg sync.WaitGroup
	wg.Add(1)
	var first Outcome
	var firstErr error
	go func() {
		defer wg.Done()
		first, firstErr = c.Solve(context.Background())
	}()
	<-entered

	st := c.State()
	assert.True(t, st.InFlight)
	assert.Equal(t, StatusPending, st.Outcome.Status)

	_, err := c.Solve(context.Background())
	assert.ErrorIs(t, err, errs.ErrSolveInFlight)

	close(release)
	wg.Wait()
	require.NoError(t, firstErr)
	assert.Equal(t, "done", first.Content)
	assert.Len(t, eng.Calls(), 1)
	assert.False(t, c.State().InFlight)
}

func TestStaleResponseDiscarded(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	eng := &llm.Fake{CompleteFunc: func(context.Context, llm.Request) (llm.Response, error) {
		close(entered)
		<-release
		return llm.Reply("old answer"), nil
	}}
	c := New(eng)
	require.NoError(t, c.SetImage(jpegFile(10)))

	done := make(chan error, 1)
	go func() {
		_, err := c.Solve(context.Background())
		done <- err
	}()
	<-entered
	c.Clear()
	close(release)

	assert.ErrorIs(t, <-done, ErrStale)
	st := c.State()
	assert.Equal(t, StatusNone, st.Outcome.Status)
	assert.Empty(t, st.Outcome.Content)
}

func TestEngineReceivesContext(t *testing.T) {
	eng := &llm.Fake{CompleteFunc: func(ctx context.Context, _ llm.Request) (llm.Response, error) {
		<-ctx.Done()
		return llm.Response{}, ctx.Err()
	}}
	c := New(eng)
	c.SetText("x")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := c.Solve(ctx)
	require.NoError(t, err)
	assert.Equal(t, errs.TransportUnknown, out.Err.Kind)
}

type memCache struct {
	mu    sync.Mutex
	m     map[string]string
	finds int
}

func (m *memCache) key(h, e, mo, md string) string { return h + "|" + e + "|" + mo + "|" + md }

func (m *memCache) Find(_ context.Context, h, e, mo, md string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finds++
	v, ok := m.m[m.key(h, e, mo, md)]
	return v, ok, nil
}

func (m *memCache) Upsert(_ context.Context, h, e, mo, md, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.m[m.key(h, e, mo, md)] = content
	return nil
}

func TestAnswerCache(t *testing.T) {
	cache := &memCache{m: map[string]string{}}
	eng := replying("cached answer")

	c1 := New(eng, WithCache(cache))
	c1.SetText("3*3")
	_, err := c1.Solve(context.Background())
	require.NoError(t, err)

	c2 := New(eng, WithCache(cache))
	c2.SetText("3*3")
	out, err := c2.Solve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cached answer", out.Content)
	assert.Len(t, eng.Calls(), 1)

	c3 := New(eng, WithCache(cache), WithMode(ModeConcise))
	c3.SetText("3*3")
	_, err = c3.Solve(context.Background())
	require.NoError(t, err)
	assert.Len(t, eng.Calls(), 2, "mode changes the instruction and so the key")
}

func TestSetEngine(t *testing.T) {
	a, b := replying("a"), replying("b")
	b.NameValue = "gemini"
	c := New(a)
	c.SetEngine(b)
	c.SetText("x")
	out, err := c.Solve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "b", out.Content)
	assert.Equal(t, "gemini", c.State().Engine)
}

func TestLoadPrompts(t *testing.T) {
	p, err := LoadPrompts("")
	require.NoError(t, err)
	assert.Equal(t, DefaultPrompts(), p)

	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("concise: |\n  Jawab singkat.\n"), 0o600))
	p, err = LoadPrompts(path)
	require.NoError(t, err)
	assert.Equal(t, "Jawab singkat.", p.Concise)
	assert.Equal(t, DefaultPrompts().Verbose, p.Verbose)

	_, err = LoadPrompts(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("Concise")
	require.NoError(t, err)
	assert.Equal(t, ModeConcise, m)
	_, err = ParseMode("loud")
	assert.Error(t, err)
}
