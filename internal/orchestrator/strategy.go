package orchestrator

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/dhopegraphics/hivedemia-web-version-sub001/internal/ai"
	"github.com/dhopegraphics/hivedemia-web-version-sub001/internal/logger"
	"github.com/dhopegraphics/hivedemia-web-version-sub001/internal/metrics"
	"github.com/dhopegraphics/hivedemia-web-version-sub001/internal/quiz"
	"github.com/dhopegraphics/hivedemia-web-version-sub001/internal/retry"
	"github.com/dhopegraphics/hivedemia-web-version-sub001/internal/tokens"
)

const (
	StrategyPrimaryWithFiles = "primary-with-files"
	StrategyCondensed        = "condensed-prompt"
	StrategyTextOnly         = "text-only"
)

// strategy is one way of producing raw quiz text. Strategies are tried in order; the first
// applicable one runs, and later ones only run when they apply to the failure left behind.
type strategy struct {
	name    string
	service *Service
	label   string
	retry   retry.Config
	applies func(g *generation) bool
	build   func(g *generation) (ai.Request, error)
	calling string
}

func (o *Orchestrator) defaultStrategies() []strategy {
	return []strategy{
		{
			name:    StrategyPrimaryWithFiles,
			service: &o.deps.Primary,
			label:   o.deps.ServiceLabel,
			retry:   o.deps.FileRetry,
			applies: func(g *generation) bool { return len(g.docs) > 0 && g.lastErr == nil },
			build:   filesRequest,
			calling: fmt.Sprintf("Analyzing your files with %s...", o.deps.ServiceLabel),
		},
		{
			name:    StrategyCondensed,
			service: &o.deps.Secondary,
			label:   "the backup AI service",
			retry:   o.deps.TextRetry,
			applies: func(g *generation) bool {
				return g.req.HasDocuments() && g.lastErr != nil && ai.IsRateLimit(g.lastErr)
			},
			build:   condensedRequest,
			calling: "Generating quiz with backup AI service...",
		},
		{
			name:    StrategyTextOnly,
			service: &o.deps.Secondary,
			label:   "the AI service",
			retry:   o.deps.TextRetry,
			applies: func(g *generation) bool { return !g.req.HasDocuments() && g.lastErr == nil },
			build:   textRequest,
			calling: "Generating quiz from your prompt...",
		},
	}
}

func filesRequest(g *generation) (ai.Request, error) {
	prompt, err := quiz.FileBasedPrompt(g.req)
	if err != nil {
		return ai.Request{}, err
	}
	docs := make([]ai.Document, 0, len(g.docs))
	for _, p := range g.docs {
		d := ai.Document{Title: p.Name, Role: p.Role, MIMEType: p.MIMEType, Text: p.Text}
		if p.Text == "" {
			d.Data = p.Data
		}
		docs = append(docs, d)
	}
	return ai.Request{Prompt: prompt, Documents: docs}, nil
}

func condensedRequest(g *generation) (ai.Request, error) {
	prompt, err := quiz.CondensedPrompt(g.req)
	return ai.Request{Prompt: prompt}, err
}

func textRequest(g *generation) (ai.Request, error) {
	prompt, err := quiz.TextBasedPrompt(g.req)
	return ai.Request{Prompt: prompt}, err
}

// attempt runs one strategy: admission, then the provider call under the retry policy.
func (o *Orchestrator) attempt(ctx context.Context, g *generation, s strategy) (string, error) {
	svc := s.service
	req, err := s.build(g)
	if err != nil {
		return "", err
	}
	req.RequestID = g.id
	req.Model = svc.Model
	req.SystemPrompt = quiz.SystemPrompt
	req.Temperature = o.deps.Temperature
	req.MaxTokens = o.deps.MaxTokens

	provider := svc.Client.Name()
	log := logger.From(ctx).With().Str("strategy", s.name).Str("provider", provider).Str("model", svc.Model).Logger()

	estimate := o.estimate(req)
	if svc.Governor != nil {
		g.progress(fmt.Sprintf("Waiting for an available slot with %s...", s.label))
		waitStart := time.Now()
		if err := svc.Governor.Admit(ctx, estimate); err != nil {
			return "", err
		}
		metrics.ObserveGovernorWait(provider, time.Since(waitStart))
	}

	g.progress(s.calling)
	log.Info().Int("estimated_tokens", estimate).Int("documents", len(req.Documents)).Msg("calling provider")

	text, err := retry.Run(ctx, func(ctx context.Context) (string, error) {
		started := time.Now()
		resp, err := svc.Client.Do(ctx, req)
		metrics.ObserveProvider(provider, svc.Model, resultLabel(err), time.Since(started))
		if err != nil {
			log.Warn().Err(err).Str("kind", string(ai.Classify(err))).Msg("provider call failed")
			return "", err
		}
		log.Info().
			Int("tokens_in", resp.TokensIn).
			Int("tokens_out", resp.TokensOut).
			Dur("duration", time.Since(started)).
			Msg("provider call succeeded")
		return resp.Text, nil
	}, s.retry, retry.WithOnRetry(func(attempt int, delay time.Duration, err error) {
		metrics.IncRetry(provider, string(ai.Classify(err)))
		log.Info().Int("attempt", attempt).Dur("delay", delay).Err(err).Msg("retrying provider call")
		g.progress(retryMessage(s.label, attempt, s.retry.MaxRetries+1, delay, err))
	}))

	o.recordBreaker(ctx, svc, err)
	return text, err
}

func (o *Orchestrator) estimate(req ai.Request) int {
	n := tokens.EstimateAll(req.SystemPrompt, req.Prompt)
	for _, d := range req.Documents {
		if d.Text != "" {
			n += tokens.Estimate(d.Text)
		} else {
			n += o.deps.Budgets.LargeFile
		}
	}
	return n
}

// coolingDown reports whether the strategy's provider is in breaker cooldown. A skipped strategy
// counts as a rate-limited attempt so the condensed fallback still applies.
func (o *Orchestrator) coolingDown(ctx context.Context, g *generation, s strategy) bool {
	if o.deps.Breaker == nil {
		return false
	}
	provider := s.service.Client.Name()
	open, err := o.deps.Breaker.IsOpen(ctx, provider, s.service.Model)
	if err != nil {
		logger.From(ctx).Warn().Err(err).Str("provider", provider).Msg("breaker check failed")
		return false
	}
	if !open {
		return false
	}
	metrics.BreakerSkipped(provider, s.service.Model)
	metrics.IncStrategy(s.name, "skipped")
	g.progress(fmt.Sprintf("%s is recovering from recent failures, trying another option...", capitalize(s.label)))
	g.record(s.name, &ai.RateLimitError{Provider: provider, Model: s.service.Model, Reason: "circuit breaker open"})
	return true
}

func (o *Orchestrator) recordBreaker(ctx context.Context, svc *Service, err error) {
	if o.deps.Breaker == nil || ctx.Err() != nil {
		return
	}
	provider := svc.Client.Name()
	log := logger.From(ctx)
	switch {
	case err == nil:
		closed, cerr := o.deps.Breaker.Close(ctx, provider, svc.Model)
		if cerr != nil {
			log.Warn().Err(cerr).Msg("breaker close failed")
		} else if closed {
			metrics.BreakerClosed(provider, svc.Model)
		}
	case ai.IsRecoverable(err):
		if _, oerr := o.deps.Breaker.Open(ctx, provider, svc.Model); oerr != nil {
			log.Warn().Err(oerr).Msg("breaker open failed")
			return
		}
		metrics.BreakerOpened(provider, svc.Model)
	}
}

func retryMessage(label string, attempt, maxAttempts int, delay time.Duration, err error) string {
	secs := int(math.Ceil(delay.Seconds()))
	switch ai.Classify(err) {
	case ai.KindRateLimit:
		return fmt.Sprintf("%s is busy. Waiting %ds before attempt %d of %d...", capitalize(label), secs, attempt, maxAttempts)
	case ai.KindServer:
		return fmt.Sprintf("%s had a temporary server problem. Retrying in %ds (attempt %d of %d)...", capitalize(label), secs, attempt, maxAttempts)
	case ai.KindNetwork:
		return fmt.Sprintf("The connection to %s was interrupted. Retrying in %ds (attempt %d of %d)...", label, secs, attempt, maxAttempts)
	default:
		return fmt.Sprintf("Retrying %s in %ds (attempt %d of %d)...", label, secs, attempt, maxAttempts)
	}
}

func resultLabel(err error) string {
	if err == nil {
		return "success"
	}
	return string(ai.Classify(err))
}

func capitalize(s string) string {
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
