package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhopegraphics/hivedemia-web-version-sub001/internal/ai"
	"github.com/dhopegraphics/hivedemia-web-version-sub001/internal/chunking"
	"github.com/dhopegraphics/hivedemia-web-version-sub001/internal/document"
	"github.com/dhopegraphics/hivedemia-web-version-sub001/internal/interpreter"
	"github.com/dhopegraphics/hivedemia-web-version-sub001/internal/limiter"
	"github.com/dhopegraphics/hivedemia-web-version-sub001/internal/quiz"
	"github.com/dhopegraphics/hivedemia-web-version-sub001/internal/retry"
	"github.com/dhopegraphics/hivedemia-web-version-sub001/internal/tokens"
)

const validQuiz = "```json\n" + `{"questions":[{"type":"mcq","question":"What gas do plants release?",` +
	`"options":["Oxygen","Nitrogen","Helium","Argon"],"correctAnswer":"Oxygen",` +
	`"explanation":"Photosynthesis releases oxygen."}]}` + "\n```"

type reply struct {
	text string
	err  error
}

// scriptedClient returns replies in order and repeats the last one.
type scriptedClient struct {
	name    string
	mu      sync.Mutex
	replies []reply
	calls   []ai.Request
}

func (c *scriptedClient) Name() string { return c.name }

func (c *scriptedClient) Do(_ context.Context, req ai.Request) (ai.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, req)
	r := c.replies[len(c.replies)-1]
	if len(c.calls) <= len(c.replies) {
		r = c.replies[len(c.calls)-1]
	}
	if r.err != nil {
		return ai.Response{}, r.err
	}
	return ai.Response{Text: r.text}, nil
}

func (c *scriptedClient) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

type fakePreparer struct {
	docs map[string]*document.Prepared
}

func (f *fakePreparer) Prepare(_ context.Context, ref document.Reference) (*document.Prepared, error) {
	p, ok := f.docs[ref.Name]
	if !ok {
		return nil, &document.FilePreparationError{Name: ref.Name, Stage: "fetch", Err: errors.New("not found")}
	}
	cp := *p
	cp.Role = ref.Role
	return &cp, nil
}

type countingSegmenter struct {
	calls int
}

func (s *countingSegmenter) Segment(text string) []chunking.Chunk {
	s.calls++
	return chunking.HeuristicSegmenter{}.Segment(text)
}

type fakeCooldown struct {
	open   map[string]bool
	opened []string
	closed []string
}

func (f *fakeCooldown) IsOpen(_ context.Context, provider, _ string) (bool, error) {
	return f.open[provider], nil
}

func (f *fakeCooldown) Open(_ context.Context, provider, _ string) (time.Duration, error) {
	f.opened = append(f.opened, provider)
	return time.Second, nil
}

func (f *fakeCooldown) Close(_ context.Context, provider, _ string) (bool, error) {
	f.closed = append(f.closed, provider)
	return true, nil
}

type recorder struct {
	mu       sync.Mutex
	messages []string
}

func (r *recorder) progress(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
}

func (r *recorder) contains(sub string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages {
		if strings.Contains(m, sub) {
			return true
		}
	}
	return false
}

func quickGovernor(name string) *limiter.Governor {
	return limiter.New(name, limiter.Options{Sleep: func(context.Context, time.Duration) error { return nil }})
}

var fastRetry = retry.Config{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, BackoffMultiplier: 2}

type harness struct {
	primary   *scriptedClient
	secondary *scriptedClient
	seg       *countingSegmenter
	prep      *fakePreparer
	rec       *recorder
}

func newHarness(primary, secondary []reply) (*harness, Dependencies) {
	h := &harness{
		primary:   &scriptedClient{name: "anthropic", replies: primary},
		secondary: &scriptedClient{name: "cohere", replies: secondary},
		seg:       &countingSegmenter{},
		prep: &fakePreparer{docs: map[string]*document.Prepared{
			"notes.txt": {Name: "notes.txt", MIMEType: "text/plain", Text: "Osmosis moves water across membranes.", Tokens: 10},
		}},
		rec: &recorder{},
	}
	deps := Dependencies{
		Primary:   Service{Client: h.primary, Model: "claude", Governor: quickGovernor("anthropic")},
		Secondary: Service{Client: h.secondary, Model: "command-r", Governor: quickGovernor("cohere")},
		Documents: h.prep,
		Segmenter: h.seg,
		FileRetry: fastRetry,
		TextRetry: fastRetry,
		NewID:     func() string { return "req-test" },
	}
	return h, deps
}

func docsRequest(names ...string) *quiz.Request {
	r := &quiz.Request{QuestionCount: 5}
	for _, n := range names {
		r.Documents = append(r.Documents, document.Reference{Name: n, URI: "s3://bucket/" + n})
	}
	return r
}

func TestTextOnlyRouteSkipsSegmenter(t *testing.T) {
	h, deps := newHarness([]reply{{text: validQuiz}}, []reply{{text: validQuiz}})
	o := New(deps)

	out, err := o.Generate(context.Background(), &quiz.Request{Prompt: "Photosynthesis"}, h.rec.progress)
	require.NoError(t, err)

	assert.Equal(t, interpreter.StatusOK, out.Status)
	assert.Equal(t, StrategyTextOnly, out.Strategy)
	assert.Equal(t, "cohere", out.Provider)
	assert.Equal(t, "req-test", out.RequestID)
	require.Len(t, out.Quiz.Questions, 1)

	assert.Zero(t, h.primary.count())
	assert.Zero(t, h.seg.calls)
	require.Equal(t, 1, h.secondary.count())
	assert.Empty(t, h.secondary.calls[0].Documents)
	assert.Contains(t, h.secondary.calls[0].Prompt, "- Topic: Photosynthesis")
	assert.Equal(t, "req-test", h.secondary.calls[0].RequestID)
	assert.Equal(t, quiz.SystemPrompt, h.secondary.calls[0].SystemPrompt)
	assert.True(t, h.rec.contains("Parsing AI response"))
}

func TestFilesAreOptimizedToRoleBudget(t *testing.T) {
	h, deps := newHarness([]reply{{text: validQuiz}}, []reply{{text: validQuiz}})
	var long strings.Builder
	for i := 0; i < 400; i++ {
		long.WriteString("Chapter ")
		long.WriteString(strings.Repeat("x", i%7+1))
		long.WriteString("\nThe key principle here is an important definition with an example of osmosis in cells. ")
		long.WriteString(strings.Repeat("Water moves from low to high solute concentration across the membrane. ", 3))
		long.WriteString("\n\n")
	}
	text := long.String()
	require.Greater(t, tokens.Estimate(text), 12000)
	h.prep.docs["book.txt"] = &document.Prepared{Name: "book.txt", MIMEType: "text/plain", Text: text, Tokens: tokens.Estimate(text)}

	out, err := New(deps).Generate(context.Background(), docsRequest("book.txt"), h.rec.progress)
	require.NoError(t, err)

	assert.Equal(t, StrategyPrimaryWithFiles, out.Strategy)
	assert.Equal(t, 1, h.seg.calls)
	require.Equal(t, 1, h.primary.count())
	sent := h.primary.calls[0].Documents
	require.Len(t, sent, 1)
	assert.LessOrEqual(t, tokens.Estimate(sent[0].Text), 12000)
	assert.Equal(t, document.RolePrimary, sent[0].Role)
	assert.True(t, h.rec.contains("Preparing files for AI processing"))
	assert.True(t, h.rec.contains("Optimized book.txt"))
	assert.Zero(t, h.secondary.count())
}

func TestRateLimitFallsBackToCondensedPrompt(t *testing.T) {
	rl := &ai.RateLimitError{Provider: "anthropic", Model: "claude"}
	h, deps := newHarness([]reply{{err: rl}}, []reply{{text: validQuiz}})

	out, err := New(deps).Generate(context.Background(), docsRequest("notes.txt"), h.rec.progress)
	require.NoError(t, err)

	assert.Equal(t, StrategyCondensed, out.Strategy)
	assert.Equal(t, fastRetry.MaxRetries+1, h.primary.count())
	require.Equal(t, 1, h.secondary.count())
	call := h.secondary.calls[0]
	assert.Empty(t, call.Documents)
	assert.Contains(t, call.Prompt, "Student materials: notes.txt")
	assert.NotContains(t, call.Prompt, "Osmosis moves water")

	assert.True(t, h.rec.contains("is busy. Waiting"))
	assert.True(t, h.rec.contains("switching to text-based generation"))
	assert.True(t, h.rec.contains("Generating quiz with backup AI service"))
}

func TestLargeFileFallbackWording(t *testing.T) {
	rl := &ai.RateLimitError{Provider: "anthropic"}
	h, deps := newHarness([]reply{{err: rl}}, []reply{{text: validQuiz}})
	h.prep.docs["scan.pdf"] = &document.Prepared{Name: "scan.pdf", MIMEType: "application/pdf", Data: make([]byte, 80000)}

	_, err := New(deps).Generate(context.Background(), docsRequest("scan.pdf"), h.rec.progress)
	require.NoError(t, err)
	assert.True(t, h.rec.contains("Large files detected"))

	// the scanned PDF went to the primary service as bytes
	require.NotEmpty(t, h.primary.calls)
	assert.Len(t, h.primary.calls[0].Documents[0].Data, 80000)
}

func TestRetryThenSuccessOnPrimary(t *testing.T) {
	h, deps := newHarness([]reply{{err: &ai.HTTPError{StatusCode: 503}}, {text: validQuiz}}, []reply{{text: validQuiz}})

	out, err := New(deps).Generate(context.Background(), docsRequest("notes.txt"), h.rec.progress)
	require.NoError(t, err)
	assert.Equal(t, StrategyPrimaryWithFiles, out.Strategy)
	assert.Equal(t, 2, h.primary.count())
	assert.True(t, h.rec.contains("temporary server problem"))
	assert.True(t, h.rec.contains("attempt 2 of 3"))
}

func TestAuthErrorIsFatal(t *testing.T) {
	h, deps := newHarness([]reply{{err: &ai.AuthError{StatusCode: 401, Provider: "anthropic"}}}, []reply{{text: validQuiz}})

	_, err := New(deps).Generate(context.Background(), docsRequest("notes.txt"), h.rec.progress)
	require.Error(t, err)

	var auth *ai.AuthError
	assert.ErrorAs(t, err, &auth)
	assert.Equal(t, StageProvider, StageOf(err))
	assert.Equal(t, 1, h.primary.count())
	assert.Zero(t, h.secondary.count())
}

func TestServerErrorDoesNotUseCondensedPrompt(t *testing.T) {
	h, deps := newHarness([]reply{{err: &ai.HTTPError{StatusCode: 500}}}, []reply{{text: validQuiz}})

	_, err := New(deps).Generate(context.Background(), docsRequest("notes.txt"), h.rec.progress)
	require.Error(t, err)

	var exhausted *ExhaustedError
	assert.False(t, errors.As(err, &exhausted))
	var httpErr *ai.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, 500, httpErr.StatusCode)
	assert.Zero(t, h.secondary.count())
	assert.True(t, h.rec.contains("still unavailable"))
}

func TestBothServicesFail(t *testing.T) {
	rl := &ai.RateLimitError{Provider: "x"}
	h, deps := newHarness([]reply{{err: rl}}, []reply{{err: rl}})

	_, err := New(deps).Generate(context.Background(), docsRequest("notes.txt"), h.rec.progress)
	require.Error(t, err)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Len(t, exhausted.Attempts, 2)
	assert.Contains(t, err.Error(), "both primary and backup AI services failed")
	assert.True(t, ai.IsRateLimit(err))

	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.False(t, se.ContentTooLarge)
	assert.Equal(t, StrategyCondensed, se.Strategy)
	assert.True(t, h.rec.contains("Both primary and backup AI services are currently unavailable"))
}

func TestPreparationSkipsBrokenDocuments(t *testing.T) {
	h, deps := newHarness([]reply{{text: validQuiz}}, nil)

	out, err := New(deps).Generate(context.Background(), docsRequest("missing.pdf", "notes.txt"), h.rec.progress)
	require.NoError(t, err)
	assert.Equal(t, []string{"missing.pdf"}, out.SkippedDocuments)
	assert.True(t, h.rec.contains("Could not read missing.pdf"))
	assert.Len(t, h.primary.calls[0].Documents, 1)
}

func TestPreparationFailsWhenNothingIsReadable(t *testing.T) {
	h, deps := newHarness([]reply{{text: validQuiz}}, []reply{{text: validQuiz}})

	_, err := New(deps).Generate(context.Background(), docsRequest("a.pdf", "b.pdf"), h.rec.progress)
	require.Error(t, err)
	assert.Equal(t, StagePreparation, StageOf(err))
	var fpe *document.FilePreparationError
	assert.ErrorAs(t, err, &fpe)
	assert.Zero(t, h.primary.count())
	assert.Zero(t, h.secondary.count())
}

func TestInvalidOutputBecomesFallback(t *testing.T) {
	raw := `{"questions": [{"question": "Solve 2+2", "finalAnswer": "4", "explanation": "cut off`
	h, deps := newHarness(nil, []reply{{text: raw}})

	out, err := New(deps).Generate(context.Background(), &quiz.Request{Prompt: "arithmetic"}, h.rec.progress)
	require.NoError(t, err)
	assert.Equal(t, interpreter.StatusFallback, out.Status)
	require.NotNil(t, out.Fallback)
	assert.Equal(t, "4", out.Fallback.FinalAnswer)
	assert.True(t, h.rec.contains("incomplete"))
}

func TestUnparseableOutputFailsAtParsing(t *testing.T) {
	_, deps := newHarness(nil, []reply{{text: "I cannot help with that."}})

	_, err := New(deps).Generate(context.Background(), &quiz.Request{Prompt: "x"}, nil)
	require.Error(t, err)
	assert.Equal(t, StageParsing, StageOf(err))
	var pe *interpreter.ParseError
	assert.ErrorAs(t, err, &pe)
}

func TestBreakerSkipsPrimary(t *testing.T) {
	h, deps := newHarness([]reply{{text: validQuiz}}, []reply{{text: validQuiz}})
	cd := &fakeCooldown{open: map[string]bool{"anthropic": true}}
	deps.Breaker = cd

	out, err := New(deps).Generate(context.Background(), docsRequest("notes.txt"), h.rec.progress)
	require.NoError(t, err)
	assert.Equal(t, StrategyCondensed, out.Strategy)
	assert.Zero(t, h.primary.count())
	assert.True(t, h.rec.contains("recovering from recent failures"))
	assert.Equal(t, []string{"cohere"}, cd.closed)
}

func TestBreakerOpensAfterExhaustedRetries(t *testing.T) {
	h, deps := newHarness(nil, []reply{{err: &ai.NetworkError{Provider: "cohere", Timeout: true, Err: context.DeadlineExceeded}}})
	cd := &fakeCooldown{}
	deps.Breaker = cd

	_, err := New(deps).Generate(context.Background(), &quiz.Request{Prompt: "x"}, h.rec.progress)
	require.Error(t, err)
	assert.Equal(t, []string{"cohere"}, cd.opened)
	assert.Equal(t, fastRetry.MaxRetries+1, h.secondary.count())
	assert.True(t, h.rec.contains("connection to the AI service was interrupted"))
}

func TestCancelledContext(t *testing.T) {
	h, deps := newHarness(nil, []reply{{text: validQuiz}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(deps).Generate(ctx, &quiz.Request{Prompt: "x"}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, h.secondary.count())
}

func TestInvalidRequest(t *testing.T) {
	_, deps := newHarness(nil, []reply{{text: validQuiz}})
	_, err := New(deps).Generate(context.Background(), &quiz.Request{}, nil)
	assert.ErrorIs(t, err, quiz.ErrInvalidRequest)
}

type memoryStatus struct {
	mu       sync.Mutex
	statuses []Status
	progress []string
}

func (m *memoryStatus) Set(_ context.Context, _ string, st Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = append(m.statuses, st)
	return nil
}

func (m *memoryStatus) AppendProgress(_ context.Context, _ string, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.progress = append(m.progress, msg)
	return nil
}

func TestStatusIsTracked(t *testing.T) {
	_, deps := newHarness(nil, []reply{{text: validQuiz}})
	st := &memoryStatus{}
	deps.Status = st

	ctx := WithRequestID(context.Background(), "from-caller")
	out, err := New(deps).Generate(ctx, &quiz.Request{Prompt: "x"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "from-caller", out.RequestID)

	require.Len(t, st.statuses, 2)
	assert.Equal(t, "running", st.statuses[0].Status)
	assert.Equal(t, interpreter.StatusOK, st.statuses[1].Status)
	assert.NotNil(t, st.statuses[1].End)
	assert.Contains(t, st.progress, "Parsing AI response...")
}

func TestUnsetRetrySchedulesUseBase(t *testing.T) {
	h, deps := newHarness(nil, []reply{{err: &ai.HTTPError{StatusCode: 502}}})
	deps.FileRetry = retry.Config{}
	deps.TextRetry = retry.Config{}
	deps.Retry = retry.Config{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffMultiplier: 1}

	_, err := New(deps).Generate(context.Background(), &quiz.Request{Prompt: "x"}, nil)
	require.Error(t, err)
	assert.Equal(t, 2, h.secondary.count())

	o := New(Dependencies{})
	assert.Equal(t, retry.Default, o.deps.FileRetry)
	assert.Equal(t, retry.Default, o.deps.TextRetry)
}

func TestProcessingEstimateIsReported(t *testing.T) {
	h, deps := newHarness([]reply{{text: validQuiz}}, []reply{{text: validQuiz}})

	out, err := New(deps).Generate(context.Background(), docsRequest("notes.txt"), h.rec.progress)
	require.NoError(t, err)

	// 5 + 1 file * 8
	assert.Equal(t, 8, out.Estimate.Min)
	assert.Equal(t, 23, out.Estimate.Max)
	assert.True(t, h.rec.contains("Estimated processing time: 8-23 seconds"))

	h.rec.mu.Lock()
	defer h.rec.mu.Unlock()
	assert.Equal(t, "Preparing files for AI processing...", h.rec.messages[0])
}
