// Package web exposes quiz generation over HTTP.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dhopegraphics/hivedemia-web-version-sub001/internal/ai"
	"github.com/dhopegraphics/hivedemia-web-version-sub001/internal/guidance"
	"github.com/dhopegraphics/hivedemia-web-version-sub001/internal/logger"
	"github.com/dhopegraphics/hivedemia-web-version-sub001/internal/metrics"
	"github.com/dhopegraphics/hivedemia-web-version-sub001/internal/orchestrator"
	"github.com/dhopegraphics/hivedemia-web-version-sub001/internal/quiz"
	"github.com/dhopegraphics/hivedemia-web-version-sub001/internal/statuscheck"
	"github.com/dhopegraphics/hivedemia-web-version-sub001/internal/store"
)

// maxBodyBytes leaves room for documents sent inline as data URIs.
const maxBodyBytes = 64 << 20

type Generator interface {
	Generate(ctx context.Context, req *quiz.Request, progress orchestrator.Progress) (*orchestrator.Outcome, error)
}

type StatusReader interface {
	Get(ctx context.Context, requestID string) (store.Status, bool, error)
	Progress(ctx context.Context, requestID string) ([]string, error)
}

type HealthReporter interface {
	Summary(ctx context.Context) statuscheck.Summary
}

type Options struct {
	Generator Generator
	Status    StatusReader   // nil disables the status route
	Health    HealthReporter // nil reports only liveness
	// Timeout bounds one generation; zero means no limit beyond the client's.
	Timeout time.Duration
}

type Web struct {
	opts Options
}

func New(opts Options) *Web {
	return &Web{opts: opts}
}

func (w *Web) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/quiz/generate", w.handleGenerate)
	mux.HandleFunc("GET /v1/quiz/status/{id}", w.handleStatus)
	mux.HandleFunc("GET /health", w.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())
}

type generateResponse struct {
	Status    string                `json:"status"`
	Data      *orchestrator.Outcome `json:"data,omitempty"`
	Error     *errorBody            `json:"error,omitempty"`
	Progress  []string              `json:"progress"`
	RequestID string                `json:"requestId"`
}

type errorBody struct {
	Message           string            `json:"message"`
	Stage             string            `json:"stage,omitempty"`
	Guidance          guidance.Guidance `json:"guidance"`
	RetryAfterSeconds int               `json:"retryAfterSeconds,omitempty"`
	Formatted         string            `json:"formatted"`
	ContentTooLarge   bool              `json:"contentTooLarge,omitempty"`
}

func (w *Web) handleGenerate(wr http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
	if id == "" {
		id = uuid.NewString()
	}
	wr.Header().Set("X-Request-ID", id)

	var req quiz.Request
	dec := json.NewDecoder(http.MaxBytesReader(wr, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeJSON(wr, http.StatusBadRequest, generateResponse{
			Status:    "error",
			Error:     &errorBody{Message: "invalid JSON body: " + err.Error()},
			Progress:  []string{},
			RequestID: id,
		})
		return
	}

	ctx := orchestrator.WithRequestID(r.Context(), id)
	if w.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.opts.Timeout)
		defer cancel()
	}

	var (
		mu    sync.Mutex
		lines = []string{}
	)
	out, err := w.opts.Generator.Generate(ctx, &req, func(msg string) {
		mu.Lock()
		lines = append(lines, msg)
		mu.Unlock()
	})
	mu.Lock()
	progress := append([]string(nil), lines...)
	mu.Unlock()
	if progress == nil {
		progress = []string{}
	}

	if err != nil {
		code := httpStatus(err)
		body := describe(err)
		if code == http.StatusTooManyRequests && body.RetryAfterSeconds > 0 {
			wr.Header().Set("Retry-After", strconv.Itoa(body.RetryAfterSeconds))
		}
		logger.From(ctx).Warn().Err(err).Int("http_status", code).Msg("generate request failed")
		writeJSON(wr, code, generateResponse{Status: "error", Error: body, Progress: progress, RequestID: id})
		return
	}
	writeJSON(wr, http.StatusOK, generateResponse{Status: out.Status, Data: out, Progress: progress, RequestID: id})
}

func describe(err error) *errorBody {
	g := guidance.For(err)
	body := &errorBody{
		Message:           err.Error(),
		Stage:             orchestrator.StageOf(err),
		Guidance:          g,
		RetryAfterSeconds: g.RetryAfterSeconds(),
		Formatted:         guidance.Format(g),
	}
	var se *orchestrator.StageError
	if errors.As(err, &se) {
		body.ContentTooLarge = se.ContentTooLarge
	}
	return body
}

// httpStatus maps a generation error to a response code.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, quiz.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return 499
	}
	switch orchestrator.StageOf(err) {
	case orchestrator.StagePreparation:
		return http.StatusUnprocessableEntity
	case orchestrator.StageParsing:
		return http.StatusBadGateway
	}
	switch ai.Classify(err) {
	case ai.KindRateLimit:
		return http.StatusTooManyRequests
	case ai.KindServer, ai.KindNetwork:
		return http.StatusServiceUnavailable
	}
	return http.StatusBadGateway
}

type statusResponse struct {
	RequestID string       `json:"requestId"`
	Status    store.Status `json:"status"`
	Progress  []string     `json:"progress"`
}

func (w *Web) handleStatus(wr http.ResponseWriter, r *http.Request) {
	if w.opts.Status == nil {
		http.Error(wr, "status tracking is disabled", http.StatusNotFound)
		return
	}
	id := r.PathValue("id")
	st, ok, err := w.opts.Status.Get(r.Context(), id)
	if err != nil {
		http.Error(wr, err.Error(), http.StatusServiceUnavailable)
		return
	}
	if !ok {
		http.Error(wr, "unknown request id", http.StatusNotFound)
		return
	}
	lines, err := w.opts.Status.Progress(r.Context(), id)
	if err != nil {
		http.Error(wr, err.Error(), http.StatusServiceUnavailable)
		return
	}
	if lines == nil {
		lines = []string{}
	}
	writeJSON(wr, http.StatusOK, statusResponse{RequestID: id, Status: st, Progress: lines})
}

func (w *Web) handleHealth(wr http.ResponseWriter, r *http.Request) {
	if w.opts.Health == nil {
		writeJSON(wr, http.StatusOK, map[string]bool{"ok": true})
		return
	}
	s := w.opts.Health.Summary(r.Context())
	code := http.StatusOK
	if !s.OK {
		code = http.StatusServiceUnavailable
	}
	writeJSON(wr, code, s)
}

func writeJSON(wr http.ResponseWriter, code int, v any) {
	wr.Header().Set("Content-Type", "application/json")
	wr.WriteHeader(code)
	_ = json.NewEncoder(wr).Encode(v)
}
