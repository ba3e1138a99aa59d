package interpreter

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/xeipuuv/gojsonschema"
)

const previewLimit = 1000

// fencedBlock captures a fence's language tag and body.
var fencedBlock = regexp.MustCompile("(?s)```([A-Za-z0-9_+-]*)\\s*(.*?)\\s*```")

const quizSchema = `{
  "type": "object",
  "required": ["questions"],
  "properties": {
    "questions": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["question"],
        "properties": {
          "type": {"type": "string"},
          "question": {"type": "string", "minLength": 1},
          "options": {"type": "array"}
        }
      }
    }
  }
}`

var schema = mustSchema(quizSchema)

func mustSchema(s string) *gojsonschema.Schema {
	sc, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(s))
	if err != nil {
		panic(fmt.Sprintf("interpreter: invalid schema: %v", err))
	}
	return sc
}

// Interpreter validates model output. The zero value is not usable; use New.
type Interpreter struct {
	optionCounts map[string]int
}

type Option func(*Interpreter)

// WithOptionCount requires questions of itemType to carry exactly n options. n <= 0 removes the
// requirement.
func WithOptionCount(itemType string, n int) Option {
	return func(i *Interpreter) {
		key := strings.ToLower(itemType)
		if n <= 0 {
			delete(i.optionCounts, key)
			return
		}
		i.optionCounts[key] = n
	}
}

func New(opts ...Option) *Interpreter {
	i := &Interpreter{optionCounts: map[string]int{"mcq": 4}}
	for _, o := range opts {
		o(i)
	}
	return i
}

var defaultInterpreter = New()

// Parse uses the default rules (exactly 4 options for mcq).
func Parse(raw string) (Result, error) { return defaultInterpreter.Parse(raw) }

// Parse returns a validated quiz, or a fallback carrying recovered fields. The error is non-nil
// only when nothing at all could be recovered.
func (i *Interpreter) Parse(raw string) (Result, error) {
	if strings.TrimSpace(raw) == "" {
		return Result{}, &ParseError{Reason: "empty response"}
	}

	doc := extractJSON(raw)
	quiz, err := i.decode(doc)
	if err == nil {
		return Result{Status: StatusOK, Quiz: quiz}, nil
	}

	fb := i.salvage(raw, doc)
	if fb == nil {
		return Result{}, &ParseError{Reason: err.Error(), RawPreview: preview(raw)}
	}
	fb.Reason = err.Error()
	return Result{Status: StatusFallback, Fallback: fb}, nil
}

// extractJSON prefers a valid json-tagged fenced block, then any valid fenced block, then a
// json-tagged one even if broken, repairing stray backslashes; otherwise the raw text.
func extractJSON(raw string) string {
	blocks := fencedBlock.FindAllStringSubmatch(raw, -1)
	var valid, tagged string
	for _, m := range blocks {
		body := repairBackslashes(m[2])
		isJSON := strings.EqualFold(m[1], "json")
		if gjson.Valid(body) {
			if isJSON {
				return body
			}
			if valid == "" {
				valid = body
			}
		}
		if isJSON && tagged == "" {
			tagged = body
		}
	}
	if valid != "" {
		return valid
	}
	if tagged != "" {
		return tagged
	}

	doc := strings.TrimSpace(raw)
	if gjson.Valid(doc) {
		return doc
	}
	// Prose around a bare object.
	start, end := strings.IndexByte(doc, '{'), strings.LastIndexByte(doc, '}')
	if start >= 0 && end > start && gjson.Valid(doc[start:end+1]) {
		return doc[start : end+1]
	}
	if len(blocks) > 0 {
		return repairBackslashes(blocks[0][2])
	}
	return doc
}

// repairBackslashes doubles every backslash that does not start a valid JSON escape.
func repairBackslashes(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 8)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		if i+1 < len(s) && strings.IndexByte(`\/"bfnrtu`, s[i+1]) >= 0 {
			b.WriteByte(c)
			b.WriteByte(s[i+1])
			i++
			continue
		}
		b.WriteString(`\\`)
	}
	return b.String()
}

func (i *Interpreter) decode(doc string) (*Quiz, error) {
	if !gjson.Valid(doc) {
		return nil, errors.New("response is not valid JSON")
	}
	items := gjson.Get(doc, "questions")
	if !items.IsArray() {
		if root := gjson.Parse(doc); root.IsArray() {
			items = root
		} else {
			return nil, errors.New("response has no questions array")
		}
	}

	res, err := schema.Validate(gojsonschema.NewStringLoader(`{"questions":` + items.Raw + `}`))
	if err != nil {
		return nil, fmt.Errorf("validate response: %w", err)
	}
	if !res.Valid() {
		var msgs []string
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("response failed schema validation: %s", strings.Join(msgs, "; "))
	}

	quiz := &Quiz{}
	for idx, item := range items.Array() {
		q := toQuestion(item)
		if err := i.checkOptions(idx+1, q); err != nil {
			return nil, err
		}
		quiz.Questions = append(quiz.Questions, q)
	}
	return quiz, nil
}

func toQuestion(item gjson.Result) Question {
	q := Question{
		Type:          item.Get("type").String(),
		Question:      item.Get("question").String(),
		CorrectAnswer: item.Get("correctAnswer").String(),
		Explanation:   item.Get("explanation").String(),
	}
	for _, o := range item.Get("options").Array() {
		q.Options = append(q.Options, o.String())
	}
	if q.Options == nil {
		q.Options = []string{}
	}
	return q
}

func (i *Interpreter) checkOptions(index int, q Question) error {
	want, ok := i.optionCounts[strings.ToLower(q.Type)]
	if !ok || len(q.Options) == want {
		return nil
	}
	return &OptionCountError{Index: index, Question: q.Question, Expected: want, Got: len(q.Options)}
}

func preview(raw string) string {
	r := []rune(raw)
	if len(r) <= previewLimit {
		return raw
	}
	return string(r[:previewLimit]) + "..."
}
