// Package guidance turns generation failures into advice a student can act on.
package guidance

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dhopegraphics/hivedemia-web-version-sub001/internal/ai"
	"github.com/dhopegraphics/hivedemia-web-version-sub001/internal/document"
)

type Guidance struct {
	Title       string        `json:"title"`
	Message     string        `json:"message"`
	Suggestions []string      `json:"suggestions"`
	ShouldRetry bool          `json:"shouldRetry"`
	RetryDelay  time.Duration `json:"-"`
}

// RetryAfterSeconds is the delay rounded up, zero when retrying is pointless.
func (g Guidance) RetryAfterSeconds() int {
	if !g.ShouldRetry {
		return 0
	}
	return int(math.Ceil(g.RetryDelay.Seconds()))
}

var (
	busy = Guidance{
		Title:   "AI Service Temporarily Busy",
		Message: "The AI service is currently handling many requests. This is normal during peak usage.",
		Suggestions: []string{
			"Wait 1-2 minutes and try again",
			"For large PDFs, try breaking them into smaller sections",
			"Consider using text-based prompts instead of file uploads",
			"Try during off-peak hours for faster processing",
		},
		ShouldRetry: true,
		RetryDelay:  time.Minute,
	}
	fileProblem = Guidance{
		Title:   "File Processing Error",
		Message: "There was an issue processing your uploaded file.",
		Suggestions: []string{
			"Check that your file is a valid PDF",
			"Try reducing the file size (under 10MB works best)",
			"Ensure the file contains readable text (not just images)",
			"Try re-uploading the file",
		},
		ShouldRetry: true,
		RetryDelay:  5 * time.Second,
	}
	connection = Guidance{
		Title:   "Connection Issue",
		Message: "There was a temporary connection problem with the AI service.",
		Suggestions: []string{
			"Check your internet connection",
			"Try again in a few moments",
			"If the problem persists, try switching networks",
		},
		ShouldRetry: true,
		RetryDelay:  10 * time.Second,
	}
	access = Guidance{
		Title:   "Access Issue",
		Message: "There was an authentication problem with the AI service.",
		Suggestions: []string{
			"Try logging out and logging back in",
			"Check your subscription status",
			"Contact support if the issue continues",
		},
	}
	generic = Guidance{
		Title:   "AI Generation Error",
		Message: "An unexpected error occurred during quiz generation.",
		Suggestions: []string{
			"Try simplifying your request",
			"Check your internet connection",
			"Try again in a few minutes",
			"Contact support if the problem persists",
		},
		ShouldRetry: true,
		RetryDelay:  5 * time.Second,
	}
)

// For picks the guidance matching err's classification.
func For(err error) Guidance {
	var fpe *document.FilePreparationError
	switch {
	case ai.IsRateLimit(err):
		return busy
	case errors.As(err, &fpe):
		return fileProblem
	}
	switch ai.Classify(err) {
	case ai.KindServer, ai.KindNetwork:
		return connection
	case ai.KindAuth:
		return access
	}
	return generic
}

// Format renders guidance as plain text.
func Format(g Guidance) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n%s\n\n", g.Title, g.Message)
	if len(g.Suggestions) > 0 {
		b.WriteString("Here's what you can try:\n")
		for i, s := range g.Suggestions {
			fmt.Fprintf(&b, "%d. %s\n", i+1, s)
		}
	}
	if secs := g.RetryAfterSeconds(); secs > 0 {
		fmt.Fprintf(&b, "\nThis usually resolves itself in about %d seconds.", secs)
	}
	return strings.TrimSpace(b.String())
}

type Estimate struct {
	Min     int    `json:"min"`
	Max     int    `json:"max"`
	Message string `json:"message"`
}

// ProcessingTime estimates how long generation takes, in seconds.
func ProcessingTime(files int, largeFiles bool, questions int) Estimate {
	base := 5
	if files > 0 {
		per := 8
		if largeFiles {
			per = 15
		}
		base += files * per
	}
	if questions > 10 {
		base += (questions - 10 + 4) / 5 * 3
	}

	e := Estimate{Min: max(base-5, 3), Max: base + 10}
	e.Message = fmt.Sprintf("Estimated processing time: %d-%d seconds", e.Min, e.Max)
	if files > 0 {
		e.Message += "\n• File processing may take longer during peak hours"
	}
	if questions > 15 {
		e.Message += "\n• Larger quizzes require more processing time"
	}
	return e
}
