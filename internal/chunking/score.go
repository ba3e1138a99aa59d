package chunking

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var highValueKeywords = []string{
	"definition", "concept", "principle", "theory", "formula", "equation",
	"example", "case study", "problem", "solution", "method", "process",
	"important", "key", "essential", "fundamental", "critical", "significant",
	"note:", "remember:", "important:", "key point:", "summary:",
}

var mediumValueKeywords = []string{
	"explain", "describe", "analyze", "compare", "contrast", "evaluate",
	"application", "use", "function", "purpose", "reason", "cause", "effect",
}

var (
	listLine      = regexp.MustCompile(`(?m)(?:^|\n)\s*(?:\d+\.|•|\*|-)\s+`)
	firstSentence = regexp.MustCompile(`[^.!?]+[.!?]+`)
)

// priority scores educational value: keyword hits, list lines and questions, damped for very
// short or very long content.
func priority(content string, focus []string) float64 {
	lower := strings.ToLower(content)
	score := 0.0
	for _, kw := range highValueKeywords {
		score += float64(strings.Count(lower, kw)) * 10
	}
	for _, kw := range mediumValueKeywords {
		score += float64(strings.Count(lower, kw)) * 5
	}
	for _, f := range focus {
		f = strings.ToLower(strings.TrimSpace(f))
		if f != "" {
			score += float64(strings.Count(lower, f)) * 10
		}
	}
	score += float64(len(listLine.FindAllStringIndex(content, -1))) * 3
	score += float64(strings.Count(content, "?")) * 8

	n := utf8.RuneCountInString(content)
	if n < 200 {
		score *= 0.5
	}
	if n > 5000 {
		score *= 0.8
	}
	return score
}

// summarize prefers a heading-like line among the first five, then the first sentence, then a
// clipped first line.
func summarize(content string) string {
	var lines []string
	for _, l := range strings.Split(content, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) == 0 {
		return "Content section"
	}

	for i, l := range lines {
		if i == 5 {
			break
		}
		n := utf8.RuneCountInString(l)
		if n > 20 && n < 100 && l[0] >= 'A' && l[0] <= 'Z' && !strings.ContainsAny(l[len(l)-1:], ".!?") {
			return l
		}
	}

	if s := strings.TrimSpace(firstSentence.FindString(content)); s != "" && utf8.RuneCountInString(s) < 150 {
		return s
	}

	r := []rune(lines[0])
	if len(r) > 100 {
		r = r[:100]
	}
	return string(r) + "..."
}
