package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/dhopegraphics/hivedemia-web-version-sub001/internal/chunking"
	"github.com/dhopegraphics/hivedemia-web-version-sub001/internal/document"
	"github.com/dhopegraphics/hivedemia-web-version-sub001/internal/logger"
	"github.com/dhopegraphics/hivedemia-web-version-sub001/internal/metrics"
	"github.com/dhopegraphics/hivedemia-web-version-sub001/internal/tokens"
)

// prepare reads every document, skipping the ones that fail, and fits each into its role budget.
func (o *Orchestrator) prepare(ctx context.Context, g *generation) error {
	n := len(g.req.Documents)
	g.progress("Preparing files for AI processing...")

	var failures []error
	for i, ref := range g.req.Documents {
		if err := ctx.Err(); err != nil {
			return &StageError{Stage: StagePreparation, Err: err}
		}
		g.progress(fmt.Sprintf("Reading %s (%d of %d)...", ref.Name, i+1, n))

		p, err := o.deps.Documents.Prepare(ctx, ref)
		if err != nil {
			if ctx.Err() != nil {
				return &StageError{Stage: StagePreparation, Err: ctx.Err()}
			}
			logger.From(ctx).Warn().Err(err).Str("file", ref.Name).Msg("document preparation failed")
			g.progress(fmt.Sprintf("Could not read %s, continuing without it.", ref.Name))
			failures = append(failures, err)
			g.skipped = append(g.skipped, ref.Name)
			continue
		}
		o.optimize(g, p)
		g.docs = append(g.docs, p)
	}

	if len(g.docs) == 0 {
		return &StageError{Stage: StagePreparation, Err: errors.Join(failures...)}
	}
	return nil
}

func (o *Orchestrator) optimize(g *generation, p *document.Prepared) {
	raw := p.Tokens
	if p.Text == "" {
		raw = len(p.Data) / tokens.CharsPerToken
	}
	if raw > o.deps.Budgets.LargeFile {
		g.large = true
	}
	if p.Text == "" {
		return
	}

	budget := o.deps.Budgets.Primary
	if p.Role == document.RoleReference {
		budget = o.deps.Budgets.Reference
	}
	opt := chunking.Optimize(o.deps.Segmenter, p.Text, chunking.Options{
		MaxTokens:           budget,
		TargetQuestionCount: g.req.QuestionCount,
		PreserveStructure:   true,
	})
	metrics.ObserveChunks(opt.ChunksUsed)
	if !opt.Reduced {
		return
	}
	p.Text = opt.Content
	p.Tokens = opt.OptimizedTokens
	g.progress(fmt.Sprintf("Optimized %s for AI processing (%d -> %d tokens).", p.Name, opt.OriginalTokens, opt.OptimizedTokens))
}
