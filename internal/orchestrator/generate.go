package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dhopegraphics/hivedemia-web-version-sub001/internal/ai"
	"github.com/dhopegraphics/hivedemia-web-version-sub001/internal/document"
	"github.com/dhopegraphics/hivedemia-web-version-sub001/internal/guidance"
	"github.com/dhopegraphics/hivedemia-web-version-sub001/internal/interpreter"
	"github.com/dhopegraphics/hivedemia-web-version-sub001/internal/logger"
	"github.com/dhopegraphics/hivedemia-web-version-sub001/internal/metrics"
	"github.com/dhopegraphics/hivedemia-web-version-sub001/internal/quiz"
)

// Outcome is a finished generation. Status is interpreter.StatusOK with Quiz set, or
// interpreter.StatusFallback with Fallback set.
type Outcome struct {
	Status           string                      `json:"status"`
	Quiz             *interpreter.Quiz           `json:"quiz,omitempty"`
	Fallback         *interpreter.FallbackResult `json:"fallback,omitempty"`
	Strategy         string                      `json:"strategy"`
	Provider         string                      `json:"provider"`
	Model            string                      `json:"model"`
	RequestID        string                      `json:"requestId"`
	SkippedDocuments []string                    `json:"skippedDocuments,omitempty"`
	Estimate         guidance.Estimate           `json:"estimate"`
}

type requestIDKey struct{}

// WithRequestID makes Generate use id instead of generating one.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// generation is the state of one Generate call.
type generation struct {
	id       string
	req      *quiz.Request
	progress Progress

	docs     []*document.Prepared
	skipped  []string
	large    bool
	estimate guidance.Estimate

	attempts     []error
	lastErr      error
	lastStrategy string
}

func (g *generation) record(strategy string, err error) {
	g.attempts = append(g.attempts, &attemptError{strategy: strategy, err: err})
	g.lastErr = err
	g.lastStrategy = strategy
}

// Generate produces a quiz for req. Only invalid requests, preparation failures, fatal provider
// errors, unparseable output and exhausted fallbacks return an error; a response that fails
// validation comes back as a fallback Outcome.
func (o *Orchestrator) Generate(ctx context.Context, req *quiz.Request, progress Progress) (*Outcome, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	id, _ := ctx.Value(requestIDKey{}).(string)
	if id == "" {
		id = o.deps.NewID()
	}
	ctx = logger.WithRequest(ctx, id)
	log := logger.From(ctx)

	g := &generation{id: id, req: req}
	g.progress = func(msg string) {
		log.Debug().Str("progress", msg).Msg("progress")
		if progress != nil {
			progress(msg)
		}
		if o.deps.Status != nil {
			if err := o.deps.Status.AppendProgress(context.WithoutCancel(ctx), id, msg); err != nil {
				log.Warn().Err(err).Msg("store progress")
			}
		}
	}

	start := time.Now()
	o.setStatus(ctx, id, Status{
		Status:  "running",
		Message: "generation started",
		Start:   &start,
		Metadata: map[string]any{
			"documents": len(req.Documents),
			"questions": req.QuestionCount,
		},
	})
	log.Info().Int("documents", len(req.Documents)).Int("questions", req.QuestionCount).Msg("generation started")

	out, err := o.run(ctx, g)
	end := time.Now()
	if err != nil {
		metrics.IncResult("error")
		o.setStatus(ctx, id, Status{Status: "failed", Stage: StageOf(err), Message: err.Error(), Start: &start, End: &end})
		log.Error().Err(err).Str("stage", StageOf(err)).Dur("duration", end.Sub(start)).Msg("generation failed")
		return nil, err
	}

	metrics.IncResult(out.Status)
	o.setStatus(ctx, id, Status{
		Status:  out.Status,
		Message: "generation finished",
		Start:   &start,
		End:     &end,
		Metadata: map[string]any{
			"strategy": out.Strategy,
			"provider": out.Provider,
			"model":    out.Model,
		},
	})
	log.Info().
		Str("status", out.Status).
		Str("strategy", out.Strategy).
		Str("provider", out.Provider).
		Dur("duration", end.Sub(start)).
		Msg("generation finished")
	return out, nil
}

func (o *Orchestrator) run(ctx context.Context, g *generation) (*Outcome, error) {
	if g.req.HasDocuments() {
		if err := o.prepare(ctx, g); err != nil {
			return nil, err
		}
	}
	g.estimate = guidance.ProcessingTime(len(g.docs), g.large, g.req.QuestionCount)
	g.progress(g.estimate.Message)

	for _, s := range o.strategies {
		if !s.applies(g) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, &StageError{Stage: StageProvider, Strategy: s.name, Err: err}
		}
		if g.lastErr != nil {
			g.progress(o.fallbackMessage(g))
		}
		if o.coolingDown(ctx, g, s) {
			continue
		}

		raw, err := o.attempt(ctx, g, s)
		if err == nil {
			metrics.IncStrategy(s.name, "success")
			return o.interpret(ctx, g, s, raw)
		}
		metrics.IncStrategy(s.name, "failed")
		g.record(s.name, err)
		if ctx.Err() != nil || !ai.IsRecoverable(err) {
			return nil, &StageError{Stage: StageProvider, Strategy: s.name, Err: err}
		}
	}
	return nil, o.exhausted(g)
}

func (o *Orchestrator) fallbackMessage(g *generation) string {
	if g.large {
		return fmt.Sprintf("Large files detected. The system has automatically optimized content, but %s is still overloaded. Trying backup service...", o.deps.ServiceLabel)
	}
	return fmt.Sprintf("%s is overloaded, switching to text-based generation...", o.deps.ServiceLabel)
}

func (o *Orchestrator) exhausted(g *generation) error {
	if len(g.attempts) == 0 {
		return &StageError{Stage: StageProvider, Err: errors.New("no generation strategy applies to this request")}
	}
	var err error = g.attempts[0]
	if len(g.attempts) > 1 {
		err = &ExhaustedError{Attempts: g.attempts}
		g.progress("Both primary and backup AI services are currently unavailable. Please try again in a few minutes, or try with a shorter prompt.")
	} else {
		g.progress("The AI service is still unavailable after several attempts. Please try again in a few minutes.")
	}
	return &StageError{
		Stage:           StageProvider,
		Strategy:        g.lastStrategy,
		Err:             err,
		ContentTooLarge: g.large && ai.IsRateLimit(err),
	}
}

func (o *Orchestrator) interpret(ctx context.Context, g *generation, s strategy, raw string) (*Outcome, error) {
	g.progress("Parsing AI response...")
	res, err := o.deps.Interpreter.Parse(raw)
	if err != nil {
		return nil, &StageError{Stage: StageParsing, Strategy: s.name, Err: err}
	}

	out := &Outcome{
		Status:           res.Status,
		Quiz:             res.Quiz,
		Fallback:         res.Fallback,
		Strategy:         s.name,
		Provider:         s.service.Client.Name(),
		Model:            s.service.Model,
		RequestID:        g.id,
		SkippedDocuments: g.skipped,
		Estimate:         g.estimate,
	}
	if res.IsFallback() {
		logger.From(ctx).Warn().Str("reason", res.Fallback.Reason).Msg("response failed validation, returning fallback")
		g.progress("The AI response was incomplete. Returning the parts that could be recovered.")
	}
	return out, nil
}

func (o *Orchestrator) setStatus(ctx context.Context, id string, st Status) {
	if o.deps.Status == nil {
		return
	}
	if err := o.deps.Status.Set(context.WithoutCancel(ctx), id, st); err != nil {
		logger.From(ctx).Warn().Err(err).Msg("store status")
	}
}
