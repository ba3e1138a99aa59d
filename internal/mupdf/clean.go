package mupdf

import (
	"fmt"
	"strings"

	"github.com/dhopegraphics/hivedemia-web-version-sub001/internal/chunking"
)

var footerMarkers = []string{"CONFIDENTIAL", "COPYRIGHT", "ALL RIGHTS RESERVED", "PROPRIETARY"}

// cleanText drops page numbers, running headers/footers and symbol-only lines, then rejoins
// lines broken mid-sentence. Section headings survive so the segmenter can split on them.
func cleanText(text string, pageNum int) string {
	var kept []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || isPageNumber(trimmed, pageNum) || isHeaderFooter(trimmed) || isNoise(trimmed) {
			continue
		}
		kept = append(kept, trimmed)
	}
	return strings.TrimSpace(fixBrokenLines(kept))
}

func isPageNumber(line string, pageNum int) bool {
	if line == fmt.Sprintf("%d", pageNum) {
		return true
	}
	for _, p := range []string{fmt.Sprintf("Page %d", pageNum), fmt.Sprintf("- %d -", pageNum), fmt.Sprintf("[%d]", pageNum)} {
		if strings.EqualFold(line, p) {
			return true
		}
	}
	return false
}

func isHeaderFooter(line string) bool {
	if chunking.IsHeading(line) {
		return false
	}
	if len(line) < 3 {
		return true
	}
	// short all-caps lines of one or two words
	if len(line) < 50 && strings.ToUpper(line) == line && len(strings.Fields(line)) <= 2 {
		return true
	}
	if len(line) < 100 {
		upper := strings.ToUpper(line)
		for _, m := range footerMarkers {
			if strings.Contains(upper, m) {
				return true
			}
		}
	}
	return false
}

func isNoise(line string) bool {
	for _, r := range line {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

func fixBrokenLines(lines []string) string {
	var fixed []string
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if i+1 < len(lines) {
			next := lines[i+1]
			last := line[len(line)-1]
			sentenceEnd := strings.IndexByte(".!?:;", last) >= 0
			if !sentenceEnd && next[0] >= 'a' && next[0] <= 'z' && !strings.HasSuffix(line, "-") && !chunking.IsHeading(line) {
				lines[i+1] = line + " " + next
				continue
			}
		}
		fixed = append(fixed, line)
	}
	return strings.Join(fixed, "\n")
}
