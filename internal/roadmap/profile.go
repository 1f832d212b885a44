package roadmap

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Goal is the learner's primary goal. It selects the phase 4 content.
type Goal string

const (
	GoalInternship Goal = "internship"
	GoalJob        Goal = "job"
	GoalTrade      Goal = "trade"
	GoalResearch   Goal = "research"
)

// Challenge categories a learner can flag as current struggles.
const (
	ChallengeMath     = "math"
	ChallengeCoding   = "coding"
	ChallengeMarkets  = "markets"
	ChallengeProjects = "projects"
	ChallengeCareer   = "career"
)

// Accepted profile values.
var (
	Stages          = []string{"student", "graduate", "career_switcher", "professional"}
	Goals           = []Goal{GoalInternship, GoalJob, GoalTrade, GoalResearch}
	MathSkills      = []string{"calculus", "linear_algebra", "probability", "statistics", "differential_equations", "real_analysis", "stochastic_calculus"}
	CSSkills        = []string{"python", "data_structures", "sql", "git", "cpp", "machine_learning"}
	MarketSkills    = []string{"markets_basics", "derivatives", "options", "fixed_income", "portfolio_theory"}
	LearningStyles  = []string{"visual", "reading", "hands_on", "mixed"}
	ChallengeValues = []string{ChallengeMath, ChallengeCoding, ChallengeMarkets, ChallengeProjects, ChallengeCareer}
)

// subjectChallenge maps a node subject to its parent challenge category.
var subjectChallenge = map[Subject]string{
	SubjectMath:    ChallengeMath,
	SubjectCS:      ChallengeCoding,
	SubjectMarkets: ChallengeMarkets,
	SubjectProject: ChallengeProjects,
	SubjectCareer:  ChallengeCareer,
}

// ErrInvalidProfile wraps every profile validation failure.
var ErrInvalidProfile = errors.New("invalid profile")

// Profile is the read-only input to roadmap generation.
type Profile struct {
	CurrentStage     string   `json:"current_stage"`
	PrimaryGoal      Goal     `json:"primary_goal"`
	MathBackground   []string `json:"math_background"`
	CSSkills         []string `json:"cs_skills"`
	MarketKnowledge  []string `json:"market_knowledge"`
	LearningStyle    string   `json:"learning_style"`
	MotivationLevel  int      `json:"motivation_level"`
	CurrentChallenge []string `json:"current_challenge"`
}

// Validate reports every problem with the profile in one error.
func (p Profile) Validate() error {
	var problems []string
	if p.CurrentStage != "" && !slices.Contains(Stages, p.CurrentStage) {
		problems = append(problems, fmt.Sprintf("unknown current_stage %q", p.CurrentStage))
	}
	if !slices.Contains(Goals, p.PrimaryGoal) {
		problems = append(problems, fmt.Sprintf("unknown primary_goal %q", p.PrimaryGoal))
	}
	if p.LearningStyle != "" && !slices.Contains(LearningStyles, p.LearningStyle) {
		problems = append(problems, fmt.Sprintf("unknown learning_style %q", p.LearningStyle))
	}
	if p.MotivationLevel < 1 || p.MotivationLevel > 10 {
		problems = append(problems, fmt.Sprintf("motivation_level %d outside 1..10", p.MotivationLevel))
	}
	problems = append(problems, unknownValues("math_background", p.MathBackground, MathSkills)...)
	problems = append(problems, unknownValues("cs_skills", p.CSSkills, CSSkills)...)
	problems = append(problems, unknownValues("market_knowledge", p.MarketKnowledge, MarketSkills)...)
	problems = append(problems, unknownValues("current_challenge", p.CurrentChallenge, ChallengeValues)...)

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidProfile, strings.Join(problems, "; "))
	}
	return nil
}

func unknownValues(field string, got, allowed []string) []string {
	var out []string
	for _, v := range got {
		if !slices.Contains(allowed, v) {
			out = append(out, fmt.Sprintf("unknown %s value %q", field, v))
		}
	}
	return out
}

// Normalized returns a copy with sets sorted and deduplicated, so equal
// profiles have one canonical form.
func (p Profile) Normalized() Profile {
	out := p
	out.MathBackground = sortedSet(p.MathBackground)
	out.CSSkills = sortedSet(p.CSSkills)
	out.MarketKnowledge = sortedSet(p.MarketKnowledge)
	out.CurrentChallenge = sortedSet(p.CurrentChallenge)
	return out
}

func sortedSet(in []string) []string {
	out := slices.Clone(in)
	slices.Sort(out)
	out = slices.Compact(out)
	if out == nil {
		out = []string{}
	}
	return out
}

// knowledge answers the mastery questions the rules ask about a profile.
type knowledge struct {
	skills     map[Subject]map[string]bool
	challenges map[string]bool
}

func newKnowledge(p Profile) knowledge {
	set := func(vs []string) map[string]bool {
		m := make(map[string]bool, len(vs))
		for _, v := range vs {
			m[v] = true
		}
		return m
	}
	return knowledge{
		skills: map[Subject]map[string]bool{
			SubjectMath:    set(p.MathBackground),
			SubjectCS:      set(p.CSSkills),
			SubjectMarkets: set(p.MarketKnowledge),
		},
		challenges: set(p.CurrentChallenge),
	}
}

// known reports whether the profile marks the node's skill as mastered.
func (k knowledge) known(n CatalogNode) bool {
	return n.Skill != "" && k.skills[n.Subject][n.Skill]
}

// challenged reports whether the node's parent category is a current
// challenge.
func (k knowledge) challenged(n CatalogNode) bool {
	return k.challenges[subjectChallenge[n.Subject]]
}

// suppressed nodes are known and not challenged; they may only appear as a
// prerequisite review.
func (k knowledge) suppressed(n CatalogNode) bool {
	return k.known(n) && !k.challenged(n)
}

// reinforced nodes are known and challenged; they appear as reinforcement.
func (k knowledge) reinforced(n CatalogNode) bool {
	return k.known(n) && k.challenged(n)
}
