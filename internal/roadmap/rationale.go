package roadmap

import (
	"fmt"
	"strings"
)

var challengeLabels = map[string]string{
	ChallengeMath:     "math",
	ChallengeCoding:   "coding",
	ChallengeMarkets:  "markets",
	ChallengeProjects: "projects",
	ChallengeCareer:   "career",
}

// rationale renders the deterministic why_included text for a placement.
func (pl *planner) rationale(p placement) string {
	goal := string(pl.profile.PrimaryGoal)
	n := p.node
	var s string
	switch p.why.code {
	case reasonGoalTable:
		s = fmt.Sprintf("Required in the final phase for the %s goal.", goal)
	case reasonGoalOptional:
		s = fmt.Sprintf("Added because %s is one of your current challenges.", challengeLabels[ChallengeCareer])
	case reasonResearchTopic:
		s = "Research-track depth topic not covered earlier in the roadmap."
	case reasonGoalPrerequisite:
		s = fmt.Sprintf("Needed before %s, which the %s goal depends on.", p.why.ref, goal)
	case reasonAnchor:
		s = fmt.Sprintf("Portfolio project anchoring the %s phase.", PhaseTitles[p.phase-1])
	case reasonAnchorPrerequisite:
		s = fmt.Sprintf("Needed before %s.", p.why.ref)
	case reasonReview:
		s = fmt.Sprintf("Short review of material you already know, ahead of %s.", p.why.ref)
	case reasonReinforcement:
		s = fmt.Sprintf("You know this, but flagged %s as a challenge; reinforcing it.", challengeLabels[subjectChallenge[n.Subject]])
	case reasonMathCoverage:
		s = "Builds math depth beyond your current background."
	case reasonProjectCoverage:
		s = "Gives you a concrete project to show."
	case reasonChallenge:
		s = fmt.Sprintf("Targets your %s challenge.", challengeLabels[subjectChallenge[n.Subject]])
	case reasonGoalAligned:
		s = fmt.Sprintf("Aligned with your %s goal.", goal)
	default:
		s = fmt.Sprintf("Rounds out the %s phase.", PhaseTitles[p.phase-1])
	}
	if len(p.cover) > 0 && p.kind != KindPrerequisiteReview {
		s += " Your background covers " + strings.Join(p.cover, ", ") + "."
	}
	return s
}
