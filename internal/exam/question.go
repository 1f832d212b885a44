package exam

import (
	"strconv"
	"strings"

	"github.com/mirkovic-academy/quantframe/internal/answer"
)

// Format selects how an answer is compared to the canonical answer.
type Format string

const (
	FormatMath           Format = "math"
	FormatMultipleChoice Format = "multiple_choice"
	FormatText           Format = "text"
)

// Question is one evaluable unit. Questions are immutable once a session
// has started.
type Question struct {
	ID            string   `json:"id" yaml:"id"`
	Prompt        string   `json:"prompt" yaml:"prompt"`
	Hint          string   `json:"hint,omitempty" yaml:"hint"`
	Solution      string   `json:"solution,omitempty" yaml:"solution"`
	Format        Format   `json:"format,omitempty" yaml:"format"`
	Answer        string   `json:"answer,omitempty" yaml:"answer"`
	Options       []string `json:"options,omitempty" yaml:"options"`
	CorrectOption int      `json:"correct_option_index,omitempty" yaml:"correct_option_index"`
	Order         int      `json:"order" yaml:"order"`
	Section       string   `json:"section,omitempty" yaml:"section"`
}

// Kind returns the effective format, inferring multiple choice from the
// presence of options.
func (q Question) Kind() Format {
	if q.Format != "" {
		return q.Format
	}
	if len(q.Options) > 0 {
		return FormatMultipleChoice
	}
	return FormatMath
}

// Check compares a raw answer with the canonical answer. It ignores
// solution viewing; grading applies that separately.
func (q Question) Check(raw string) bool {
	switch q.Kind() {
	case FormatMultipleChoice:
		idx, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || idx < 0 || idx >= len(q.Options) {
			return false
		}
		return idx == q.CorrectOption
	case FormatText:
		return answer.MatchText(raw, q.Answer)
	default:
		return answer.Equivalent(raw, q.Answer)
	}
}
