package quiz

import (
	"embed"
	"strings"
	"text/template"

	"github.com/dhopegraphics/hivedemia-web-version-sub001/internal/document"
)

//go:embed templates/*.tmpl
var promptFS embed.FS

const (
	fileBasedTemplate = "file_based.tmpl"
	textBasedTemplate = "text_based.tmpl"
	condensedTemplate = "condensed.tmpl"
)

// SystemPrompt is sent with every generation call.
const SystemPrompt = "You are an experienced educator who writes clear, accurate quiz questions. " +
	"Respond with valid JSON only, without commentary."

var prompts = template.Must(template.New("").
	Funcs(template.FuncMap{"join": strings.Join}).
	ParseFS(promptFS, "templates/*.tmpl"))

type promptData struct {
	Count       int
	Types       string
	Difficulty  string
	Feedback    string
	Context     string
	Topic       string
	Primary     []string
	Reference   []string
	OptionCount int
}

func newPromptData(r *Request) promptData {
	return promptData{
		Count:       r.QuestionCount,
		Types:       strings.Join(r.QuestionTypes, ", "),
		Difficulty:  r.Difficulty,
		Feedback:    r.FeedbackMode,
		Context:     r.Prompt,
		Topic:       r.Prompt,
		Primary:     r.Names(document.RolePrimary),
		Reference:   r.Names(document.RoleReference),
		OptionCount: 4,
	}
}

// FileBasedPrompt is the instruction text that accompanies attached documents.
func FileBasedPrompt(r *Request) (string, error) {
	return render(fileBasedTemplate, newPromptData(r))
}

// TextBasedPrompt asks for a quiz on r.Prompt with no attachments.
func TextBasedPrompt(r *Request) (string, error) {
	return render(textBasedTemplate, newPromptData(r))
}

// CondensedPrompt describes the documents by name and role only. It is used when the
// document-capable service is overloaded and the request moves to the text-only service.
func CondensedPrompt(r *Request) (string, error) {
	return render(condensedTemplate, newPromptData(r))
}

func render(name string, data promptData) (string, error) {
	var b strings.Builder
	if err := prompts.ExecuteTemplate(&b, name, data); err != nil {
		return "", err
	}
	return strings.TrimSpace(b.String()), nil
}
