package chunking

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/dhopegraphics/hivedemia-web-version-sub001/internal/tokens"
)

const (
	budgetShare     = 0.8
	minPerQuestion  = 200
	truncationShare = 0.6
	ellipsis        = "..."
)

// TargetTokens is the share of maxTokens spent on content, leaving headroom for the prompt.
func TargetTokens(opts Options) float64 {
	count := opts.TargetQuestionCount
	if count < 1 {
		count = 1
	}
	ceiling := float64(opts.MaxTokens)
	perQuestion := math.Max(minPerQuestion, ceiling/float64(count*2))
	return math.Min(ceiling*budgetShare, perQuestion*float64(count))
}

// Select greedily accepts chunks in priority order while they fit the target. When fewer than two
// fit, the best rejected chunk is truncated into the remaining budget so some signal is always
// forwarded. The result never exceeds opts.MaxTokens.
func Select(chunks []Chunk, opts Options) []Chunk {
	if opts.MaxTokens <= 0 || len(chunks) == 0 {
		return nil
	}
	target := TargetTokens(opts)

	var (
		selected []Chunk
		skipped  []Chunk
		running  int
	)
	for _, c := range chunks {
		if float64(running+c.TokenCount) <= target {
			selected = append(selected, c)
			running += c.TokenCount
		} else {
			skipped = append(skipped, c)
		}
	}

	if len(selected) < 2 && len(skipped) > 0 {
		limit := int(math.Floor((target - float64(running)) * truncationShare))
		if limit > 0 {
			c := skipped[0]
			content := truncate(c.Content, limit)
			c.Content = content
			c.TokenCount = tokens.Estimate(content)
			c.Summary += " (truncated)"
			selected = append(selected, c)
		}
	}
	return selected
}

// truncate cuts content to at most maxTokens, preferring whole paragraphs.
func truncate(content string, maxTokens int) string {
	maxChars := maxTokens * tokens.CharsPerToken
	if utf8.RuneCountInString(content) <= maxChars {
		return content
	}

	paragraphs := strings.Split(content, "\n\n")
	var (
		b    strings.Builder
		used int
		kept int
	)
	for _, p := range paragraphs {
		add := utf8.RuneCountInString(p)
		if kept > 0 {
			add += 2
		}
		if used+add > maxChars {
			break
		}
		if kept > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(p)
		used += add
		kept++
	}

	if used < maxChars/2 && kept < len(paragraphs) {
		sep := 0
		if kept > 0 {
			sep = 2
		}
		remaining := maxChars - used - sep - len(ellipsis)
		if remaining > 100 {
			if kept > 0 {
				b.WriteString("\n\n")
			}
			b.WriteString(clip(paragraphs[kept], remaining))
			b.WriteString(ellipsis)
		}
	}

	if b.Len() == 0 {
		return clip(content, maxChars-len(ellipsis)) + ellipsis
	}
	return b.String()
}

func clip(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// Combine joins chunks for the model: a manifest of summaries followed by labelled blocks. A single
// chunk passes through unchanged.
func Combine(chunks []Chunk) string {
	switch len(chunks) {
	case 0:
		return ""
	case 1:
		return chunks[0].Content
	}

	var b strings.Builder
	b.WriteString("Content Summary:\n")
	for i, c := range chunks {
		fmt.Fprintf(&b, "%d. %s (%d tokens)\n", i+1, c.Summary, c.TokenCount)
	}
	b.WriteString("\n---\n\n")
	for i, c := range chunks {
		fmt.Fprintf(&b, "[%s]\n", c.Section)
		b.WriteString(c.Content)
		if i < len(chunks)-1 {
			b.WriteString("\n\n---\n\n")
		}
	}
	return b.String()
}

// Optimized is the outcome of fitting one document into a budget.
type Optimized struct {
	Content         string
	OriginalTokens  int
	OptimizedTokens int
	ChunksUsed      int
	Reduced         bool
}

// Optimize returns text unchanged when it already fits opts.MaxTokens, otherwise the combined
// selection of its best chunks. A nil segmenter uses HeuristicSegmenter.
func Optimize(seg Segmenter, text string, opts Options) Optimized {
	original := tokens.Estimate(text)
	if opts.MaxTokens <= 0 || original <= opts.MaxTokens {
		return Optimized{Content: text, OriginalTokens: original, OptimizedTokens: original, ChunksUsed: 1}
	}
	if seg == nil {
		seg = HeuristicSegmenter{FocusAreas: opts.FocusAreas, SkipStructure: !opts.PreserveStructure}
	}

	selected := Select(seg.Segment(text), opts)
	content := Combine(selected)
	if content == "" {
		// Nothing viable to rank; keep the head of the document.
		content = truncate(text, int(TargetTokens(opts)))
	}
	return Optimized{
		Content:         content,
		OriginalTokens:  original,
		OptimizedTokens: tokens.Estimate(content),
		ChunksUsed:      len(selected),
		Reduced:         true,
	}
}
