package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhopegraphics/hivedemia-web-version-sub001/internal/ai"
	"github.com/dhopegraphics/hivedemia-web-version-sub001/internal/interpreter"
	"github.com/dhopegraphics/hivedemia-web-version-sub001/internal/orchestrator"
	"github.com/dhopegraphics/hivedemia-web-version-sub001/internal/quiz"
	"github.com/dhopegraphics/hivedemia-web-version-sub001/internal/statuscheck"
	"github.com/dhopegraphics/hivedemia-web-version-sub001/internal/store"
)

type fakeGenerator struct {
	got *quiz.Request
	out *orchestrator.Outcome
	err error
}

func (f *fakeGenerator) Generate(ctx context.Context, req *quiz.Request, progress orchestrator.Progress) (*orchestrator.Outcome, error) {
	f.got = req
	progress("Parsing AI response...")
	if f.err != nil {
		return nil, f.err
	}
	return f.out, nil
}

func newServer(opts Options) *httptest.Server {
	mux := http.NewServeMux()
	New(opts).RegisterRoutes(mux)
	return httptest.NewServer(mux)
}

func post(t *testing.T, url, body string) (*http.Response, generateResponse) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url+"/v1/quiz/generate", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "req-1")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out generateResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func TestGenerateSuccess(t *testing.T) {
	gen := &fakeGenerator{out: &orchestrator.Outcome{
		Status:   interpreter.StatusOK,
		Quiz:     &interpreter.Quiz{},
		Strategy: orchestrator.StrategyTextOnly,
	}}
	srv := newServer(Options{Generator: gen, Timeout: time.Minute})
	defer srv.Close()

	resp, out := post(t, srv.URL, `{"prompt":"photosynthesis","questionCount":5}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "req-1", resp.Header.Get("X-Request-ID"))
	assert.Equal(t, "ok", out.Status)
	assert.Equal(t, "req-1", out.RequestID)
	assert.Equal(t, []string{"Parsing AI response..."}, out.Progress)
	require.NotNil(t, out.Data)
	assert.Equal(t, orchestrator.StrategyTextOnly, out.Data.Strategy)
	assert.Equal(t, "photosynthesis", gen.got.Prompt)
	assert.Equal(t, 5, gen.got.QuestionCount)
}

func TestGenerateBadJSON(t *testing.T) {
	srv := newServer(Options{Generator: &fakeGenerator{}})
	defer srv.Close()

	resp, out := post(t, srv.URL, `{"prompt":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "error", out.Status)
	assert.Contains(t, out.Error.Message, "invalid JSON body")
}

func TestGenerateRateLimited(t *testing.T) {
	err := &orchestrator.StageError{
		Stage:           orchestrator.StageProvider,
		Err:             &ai.RateLimitError{Provider: "anthropic"},
		ContentTooLarge: true,
	}
	srv := newServer(Options{Generator: &fakeGenerator{err: err}})
	defer srv.Close()

	resp, out := post(t, srv.URL, `{"prompt":"x"}`)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "60", resp.Header.Get("Retry-After"))
	require.NotNil(t, out.Error)
	assert.Equal(t, "AI Service Temporarily Busy", out.Error.Guidance.Title)
	assert.Equal(t, 60, out.Error.RetryAfterSeconds)
	assert.Equal(t, "provider", out.Error.Stage)
	assert.True(t, out.Error.ContentTooLarge)
	assert.Contains(t, out.Error.Formatted, "Here's what you can try:")
}

func TestHTTPStatus(t *testing.T) {
	cases := map[string]struct {
		err  error
		want int
	}{
		"invalid":     {err: errors.Join(quiz.ErrInvalidRequest), want: http.StatusBadRequest},
		"timeout":     {err: context.DeadlineExceeded, want: http.StatusGatewayTimeout},
		"preparation": {err: &orchestrator.StageError{Stage: orchestrator.StagePreparation, Err: errors.New("no readable content")}, want: http.StatusUnprocessableEntity},
		"parsing":     {err: &orchestrator.StageError{Stage: orchestrator.StageParsing, Err: errors.New("bad json")}, want: http.StatusBadGateway},
		"server":      {err: &orchestrator.StageError{Stage: orchestrator.StageProvider, Err: &ai.HTTPError{StatusCode: 503, Provider: "cohere"}}, want: http.StatusServiceUnavailable},
		"auth":        {err: &orchestrator.StageError{Stage: orchestrator.StageProvider, Err: &ai.AuthError{Provider: "anthropic"}}, want: http.StatusBadGateway},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, httpStatus(tc.err))
		})
	}
}

type fakeStatus struct{}

func (fakeStatus) Get(_ context.Context, id string) (store.Status, bool, error) {
	if id != "known" {
		return store.Status{}, false, nil
	}
	return store.Status{Status: "running", Message: "generation started"}, true, nil
}

func (fakeStatus) Progress(context.Context, string) ([]string, error) {
	return []string{"Preparing files for AI processing..."}, nil
}

func TestStatusRoute(t *testing.T) {
	srv := newServer(Options{Generator: &fakeGenerator{}, Status: fakeStatus{}})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/quiz/status/known")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out statusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "running", out.Status.Status)
	assert.Equal(t, []string{"Preparing files for AI processing..."}, out.Progress)

	missing, err := http.Get(srv.URL + "/v1/quiz/status/other")
	require.NoError(t, err)
	missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

type fakeHealth struct{ ok bool }

func (f fakeHealth) Summary(context.Context) statuscheck.Summary {
	return statuscheck.Summary{OK: f.ok}
}

func TestHealthRoute(t *testing.T) {
	for _, ok := range []bool{true, false} {
		srv := newServer(Options{Generator: &fakeGenerator{}, Health: fakeHealth{ok: ok}})
		resp, err := http.Get(srv.URL + "/health")
		require.NoError(t, err)
		resp.Body.Close()
		if ok {
			assert.Equal(t, http.StatusOK, resp.StatusCode)
		} else {
			assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		}
		srv.Close()
	}
}
