// Package chunking splits long documents into scored sections and picks the ones that fit a
// token budget.
package chunking

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/dhopegraphics/hivedemia-web-version-sub001/internal/tokens"
)

const (
	minChunkChars     = 100
	minChunkTokens    = 50
	minParagraphChars = 50
	paragraphCeiling  = 2000
)

// Chunk is a bounded slice of document text with a relevance score.
type Chunk struct {
	Content    string
	TokenCount int
	Priority   float64
	Summary    string
	Section    string
}

// Options controls selection against a budget.
type Options struct {
	MaxTokens           int
	TargetQuestionCount int
	PreserveStructure   bool
	FocusAreas          []string
}

// Segmenter turns a document into chunks sorted by priority, highest first.
type Segmenter interface {
	Segment(text string) []Chunk
}

// Marker families shared by the section splitter and IsHeading.
const (
	numberedMarker = `(?:chapter|section|part|unit)\s+\d+`
	namedMarker    = `(?:introduction|conclusion|summary|overview|key\s+points)`
)

// sectionPatterns are tried in order; the first one producing a viable chunk wins.
var sectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:^|\n)\s*` + numberedMarker),
	regexp.MustCompile(`(?m)(?:^|\n)\s*(?:\d+\.|\d+\))\s+[A-Z]`),
	regexp.MustCompile(`(?m)(?:^|\n)\s*[A-Z][^.\n]{20,100}(?:\n|$)`),
	regexp.MustCompile(`(?i)(?:^|\n)\s*` + namedMarker),
}

var headingLine = regexp.MustCompile(`(?i)^(?:` + numberedMarker + `\b.*|` + namedMarker + `\W*)$`)

// IsHeading reports whether a single trimmed line is a chapter/section/unit marker or a named
// section such as "Introduction". Text cleaners must keep these lines for Segment to split on.
func IsHeading(line string) bool {
	return headingLine.MatchString(strings.TrimSpace(line))
}

var paragraphSplit = regexp.MustCompile(`\n\s*\n`)

// HeuristicSegmenter ranks sections with keyword and structure heuristics. It is an
// approximation, not semantic relevance.
type HeuristicSegmenter struct {
	// FocusAreas are extra terms weighted like high-value keywords.
	FocusAreas []string
	// SkipStructure goes straight to paragraph grouping.
	SkipStructure bool
}

func (s HeuristicSegmenter) Segment(text string) []Chunk {
	var chunks []Chunk
	if !s.SkipStructure {
		chunks = s.structural(text)
	}
	if len(chunks) == 0 {
		chunks = s.paragraphs(text)
	}
	sort.SliceStable(chunks, func(i, j int) bool { return chunks[i].Priority > chunks[j].Priority })
	return chunks
}

func (s HeuristicSegmenter) structural(text string) []Chunk {
	for _, re := range sectionPatterns {
		locs := re.FindAllStringIndex(text, -1)
		var chunks []Chunk
		for i, loc := range locs {
			end := len(text)
			if i+1 < len(locs) {
				end = locs[i+1][0]
			}
			content := strings.TrimSpace(text[loc[0]:end])
			if !viable(content) {
				continue
			}
			chunks = append(chunks, s.newChunk(content, fmt.Sprintf("Section %d", len(chunks)+1)))
		}
		if len(chunks) > 0 {
			return chunks
		}
	}
	return nil
}

func (s HeuristicSegmenter) paragraphs(text string) []Chunk {
	var (
		chunks  []Chunk
		current strings.Builder
		running int
	)
	flush := func() {
		content := strings.TrimSpace(current.String())
		current.Reset()
		running = 0
		if viable(content) {
			chunks = append(chunks, s.newChunk(content, fmt.Sprintf("Chunk %d", len(chunks)+1)))
		}
	}

	for _, p := range paragraphSplit.Split(text, -1) {
		p = strings.TrimSpace(p)
		if utf8.RuneCountInString(p) <= minParagraphChars {
			continue
		}
		n := tokens.Estimate(p)
		if running+n > paragraphCeiling && current.Len() > 0 {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(p)
		running += n
	}
	if current.Len() > 0 {
		flush()
	}
	return chunks
}

func (s HeuristicSegmenter) newChunk(content, section string) Chunk {
	return Chunk{
		Content:    content,
		TokenCount: tokens.Estimate(content),
		Priority:   priority(content, s.FocusAreas),
		Summary:    summarize(content),
		Section:    section,
	}
}

func viable(content string) bool {
	return utf8.RuneCountInString(content) > minChunkChars && tokens.Estimate(content) > minChunkTokens
}
