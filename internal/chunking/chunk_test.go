package chunking

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func filler(n int) string {
	const words = "the cell wall keeps water inside while light drives sugar production over time; "
	return strings.Repeat(words, n/len(words)+1)[:n]
}

func TestSegmentUsesChapterMarkers(t *testing.T) {
	text := "Chapter 1\n" + filler(400) + "\n\nChapter 2\n" +
		"Definition: an important concept. Example: a key principle?\n" + filler(400)

	chunks := HeuristicSegmenter{}.Segment(text)
	require.Len(t, chunks, 2)
	// the keyword-rich chapter ranks first
	assert.True(t, strings.HasPrefix(chunks[0].Content, "Chapter 2"))
	assert.Equal(t, "Section 2", chunks[0].Section)
	assert.Equal(t, "Section 1", chunks[1].Section)
	assert.Greater(t, chunks[0].Priority, chunks[1].Priority)
}

func TestSegmentFirstPatternWins(t *testing.T) {
	// numbered headings are ignored once chapter markers produced chunks
	text := "Chapter 1\n1. First point here\n" + filler(300) + "\n2. Second point here\n" + filler(300)
	chunks := HeuristicSegmenter{}.Segment(text)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Section 1", chunks[0].Section)
}

func TestSegmentFallsBackToParagraphs(t *testing.T) {
	p := filler(4000) // 1000 tokens
	text := strings.Join([]string{p, p, p, p, p}, "\n\n")

	chunks := HeuristicSegmenter{}.Segment(text)
	require.Len(t, chunks, 3)
	for _, c := range chunks {
		assert.True(t, strings.HasPrefix(c.Section, "Chunk "))
	}
}

func TestSegmentDropsShortContent(t *testing.T) {
	assert.Empty(t, HeuristicSegmenter{}.Segment("too short to matter"))
	assert.Empty(t, HeuristicSegmenter{}.Segment(""))
}

func TestSegmentNeverReturnsTinyChunks(t *testing.T) {
	var b strings.Builder
	for i := 1; i <= 30; i++ {
		fmt.Fprintf(&b, "Section %d\n", i)
		if i%3 == 0 {
			b.WriteString(filler(500))
		} else {
			b.WriteString("tiny")
		}
		b.WriteString("\n")
	}
	chunks := HeuristicSegmenter{}.Segment(b.String())
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.GreaterOrEqual(t, utf8.RuneCountInString(c.Content), 100)
		assert.Greater(t, c.TokenCount, 50)
	}
}

func TestPriority(t *testing.T) {
	long := filler(300)
	assert.Equal(t, 0.0, priority(long, nil))
	assert.Equal(t, 10.0, priority(long+" definition", nil))
	assert.Equal(t, 5.0, priority(long+" explain", nil))
	assert.Equal(t, 8.0, priority(long+"?", nil))
	assert.Equal(t, 6.0, priority(long+"\n- one\n- two", nil))
	assert.Equal(t, 10.0, priority(long+" mitochondria", []string{"Mitochondria"}))

	// short content is halved
	assert.Equal(t, 5.0, priority("definition", nil))
	// very long content is damped
	assert.InDelta(t, 8.0, priority(filler(6000)+" definition", nil), 0.001)
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, "Photosynthesis and the Light Reactions",
		summarize("Photosynthesis and the Light Reactions\nplants convert light."))
	assert.Equal(t, "plants convert light into sugar.",
		summarize("plants convert light into sugar. more text follows here"))

	long := strings.Repeat("a", 160)
	assert.Equal(t, strings.Repeat("a", 100)+"...", summarize(long))
	assert.Equal(t, "Content section", summarize("  \n "))
}

func TestSegmenterSortIsStable(t *testing.T) {
	text := "Chapter 1\n" + filler(300) + "\nChapter 2\n" + filler(300) + "\nChapter 3\n" + filler(300)
	chunks := HeuristicSegmenter{}.Segment(text)
	require.Len(t, chunks, 3)
	assert.Equal(t, []string{"Section 1", "Section 2", "Section 3"},
		[]string{chunks[0].Section, chunks[1].Section, chunks[2].Section})
}

func TestIsHeading(t *testing.T) {
	for _, line := range []string{"CHAPTER 1", "Chapter 12: Photosynthesis", "SECTION 2", "Unit 3", "INTRODUCTION", "Key Points", "Summary:"} {
		assert.True(t, IsHeading(line), line)
	}
	for _, line := range []string{"ANNUAL REPORT", "Chapters of history are long.", "In summary, cells divide.", "PART"} {
		assert.False(t, IsHeading(line), line)
	}
}
