package interpreter

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Field recovery is best-effort pattern matching over text that is not valid JSON.
var fieldPatterns = map[string]*regexp.Regexp{
	"question":       fieldPattern("question"),
	"correctAnswer":  fieldPattern("correctAnswer"),
	"finalAnswer":    fieldPattern("finalAnswer"),
	"explanation":    fieldPattern("explanation"),
	"accountingType": fieldPattern("accountingType"),
}

func fieldPattern(name string) *regexp.Regexp {
	return regexp.MustCompile(`"` + name + `"\s*:\s*"((?:[^"\\]|\\.)+)"`)
}

var accountingMarkers = []string{
	"balance sheet", "income statement", "journal", "partnership", "depreciation", "financial statements",
}

// salvage collects individually valid questions and recognizable fields. It returns nil when
// nothing was found.
func (i *Interpreter) salvage(raw, doc string) *FallbackResult {
	fb := &FallbackResult{
		SolutionFormat: FormatDirectAnswer,
		RawPreview:     preview(raw),
	}

	source := raw
	if doc != raw && strings.TrimSpace(doc) != "" {
		source = doc
	}
	fb.Questions = i.salvageQuestions(source)

	fb.Question = field(raw, "question")
	fb.CorrectAnswer = field(raw, "correctAnswer")
	fb.FinalAnswer = field(raw, "finalAnswer")
	fb.Explanation = field(raw, "explanation")
	fb.AccountingType = field(raw, "accountingType")

	if len(fb.Questions) == 0 && fb.Question == "" && fb.CorrectAnswer == "" &&
		fb.FinalAnswer == "" && fb.Explanation == "" && fb.AccountingType == "" {
		return nil
	}

	if fb.AccountingType != "" || isAccounting(raw) {
		fb.SolutionFormat = FormatAccounting
		if fb.AccountingType == "" {
			fb.AccountingType = "general-accounting"
		}
	}
	return fb
}

func field(raw, name string) string {
	m := fieldPatterns[name].FindStringSubmatch(raw)
	if m == nil {
		return ""
	}
	if s, err := strconv.Unquote(`"` + m[1] + `"`); err == nil {
		return s
	}
	return m[1]
}

func isAccounting(raw string) bool {
	lower := strings.ToLower(raw)
	for _, m := range accountingMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// salvageQuestions scans for complete JSON objects that look like a single question and pass the
// option rules on their own. Unterminated objects are ignored.
func (i *Interpreter) salvageQuestions(text string) []Question {
	type span struct{ start, end int }
	var (
		stack    []int
		found    []span
		inString bool
		escaped  bool
	)
	for pos := 0; pos < len(text); pos++ {
		c := text[pos]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, pos)
		case '}':
			if len(stack) == 0 {
				continue
			}
			start := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			found = append(found, span{start, pos + 1})
		}
	}
	sort.Slice(found, func(a, b int) bool { return found[a].start < found[b].start })

	var out []Question
	for _, s := range found {
		obj := text[s.start:s.end]
		if !gjson.Valid(obj) {
			continue
		}
		item := gjson.Parse(obj)
		if item.Get("question").Type != gjson.String || item.Get("questions").Exists() {
			continue
		}
		q := toQuestion(item)
		if q.Question == "" || i.checkOptions(len(out)+1, q) != nil {
			continue
		}
		out = append(out, q)
	}
	return out
}
