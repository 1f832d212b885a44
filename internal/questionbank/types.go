package questionbank

import "github.com/mirkovic-academy/quantframe/internal/exam"

// DefaultQuizPassingPercent applies to lesson quizzes that set no pass mark.
const DefaultQuizPassingPercent = 80

// Instance is one exam or lesson quiz loaded from YAML.
type Instance struct {
	ID             string          `yaml:"id" json:"id"`
	Mode           exam.Mode       `yaml:"mode" json:"mode"`
	Title          string          `yaml:"title" json:"title"`
	LessonID       string          `yaml:"lesson_id" json:"lesson_id,omitempty"`
	PassingPercent int             `yaml:"passing_percent" json:"passing_percent"`
	Questions      []exam.Question `yaml:"questions" json:"questions"`
	Notes          string          `yaml:"-" json:"notes,omitempty"`
}
