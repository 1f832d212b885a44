// Package roadmap generates a four-phase learning roadmap from a learner
// profile with a deterministic rule engine, and checks roadmaps against the
// same hard constraints.
package roadmap

// PhaseTitles are the fixed phase titles in order.
var PhaseTitles = [4]string{
	"Foundation / Stabilize",
	"Build Proof",
	"Specialize Toward Goal",
	"Break In / Execute",
}

const (
	minPhaseNodes = 4
	maxPhaseNodes = 6
	minTotalNodes = 16

	minMathNodes        = 3
	minUnknownMathNodes = 2
	minProjectNodes     = 2
)

// Effort weights in hours.
const (
	HoursLight  = 6
	HoursMedium = 10
	HoursHeavy  = 15
)

// Kind tags why a node carries its effort weight.
type Kind string

const (
	KindFoundation    Kind = "foundation"
	KindCore          Kind = "core"
	KindAdvanced      Kind = "advanced"
	KindProject       Kind = "project"
	KindCareer        Kind = "career"
	KindReinforcement Kind = "reinforcement"
	// KindPrerequisiteReview is a known subject included at reduced effort
	// only because a later node needs it.
	KindPrerequisiteReview Kind = "prerequisite_review"
)

var tierWeight = map[Tier]int{
	TierFoundation: HoursMedium,
	TierCore:       HoursMedium,
	TierAdvanced:   HoursHeavy,
	TierProject:    HoursHeavy,
	TierCareer:     HoursMedium,
}

// hoursFor returns the effort weight a node of the given kind must carry.
func hoursFor(kind Kind, tier Tier) int {
	switch kind {
	case KindPrerequisiteReview:
		return HoursLight
	case KindReinforcement:
		return HoursMedium
	}
	return tierWeight[tier]
}

// Node is one placed roadmap entry.
type Node struct {
	Title   string  `json:"title"`
	Subject Subject `json:"subject"`
	Kind    Kind    `json:"kind"`
	Hours   int     `json:"hours"`
	// Prerequisites lists only nodes placed earlier in the roadmap.
	Prerequisites []string `json:"prerequisites"`
	// CoveredByBackground lists prerequisites the profile already masters.
	CoveredByBackground []string `json:"covered_by_background,omitempty"`
	WhyIncluded         string   `json:"why_included"`
}

// Phase is one of the four roadmap phases.
type Phase struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Nodes  []Node `json:"nodes"`
}

// Hours sums the effort of the phase.
func (p Phase) Hours() int {
	total := 0
	for _, n := range p.Nodes {
		total += n.Hours
	}
	return total
}

// Roadmap is a generated four-phase plan.
type Roadmap struct {
	Goal           Goal    `json:"goal"`
	CatalogVersion string  `json:"catalog_version"`
	Phases         []Phase `json:"phases"`
}

// TotalHours sums the effort of every phase.
func (r Roadmap) TotalHours() int {
	total := 0
	for _, p := range r.Phases {
		total += p.Hours()
	}
	return total
}

// NodeCount returns the number of placed nodes.
func (r Roadmap) NodeCount() int {
	n := 0
	for _, p := range r.Phases {
		n += len(p.Nodes)
	}
	return n
}

// Titles returns every placed title in roadmap order.
func (r Roadmap) Titles() []string {
	var out []string
	for _, p := range r.Phases {
		for _, n := range p.Nodes {
			out = append(out, n.Title)
		}
	}
	return out
}

// Find returns the phase number and node for a title.
func (r Roadmap) Find(title string) (int, Node, bool) {
	for _, p := range r.Phases {
		for _, n := range p.Nodes {
			if n.Title == title {
				return p.Number, n, true
			}
		}
	}
	return 0, Node{}, false
}

// Phase 4 goal tables.
var (
	internshipCareer = []string{
		"Resume building",
		"GitHub portfolio",
		"Networking strategies",
		"Technical interview prep",
		"Case study practice",
	}
	jobCareer = []string{
		"Resume building",
		"GitHub portfolio",
		"Networking strategies",
		"Technical interview prep",
		"Behavioral interview prep",
		"Case study practice",
	}
	tradeRequired = []string{
		"Trading Strategies",
		"Backtesting & Execution",
		"Risk Management",
		"Project: Risk Model",
	}
	tradeCareerAddOns   = []string{"Networking strategies", "Technical interview prep"}
	researchTopics      = []string{"Stochastic Calculus", "Numerical Methods", "Options Pricing"}
	researchProjects    = []string{"Project: Research Paper Replication", "Project: Statistical Arbitrage Study"}
	researchCareer      = []string{"Networking strategies", "Case study practice"}
	behavioralInterview = "Behavioral interview prep"
)

// requiredPhase4 returns the titles phase 4 must contain for a goal,
// not counting the research topic.
func requiredPhase4(g Goal) []string {
	switch g {
	case GoalInternship:
		return internshipCareer
	case GoalJob:
		return jobCareer
	case GoalTrade:
		return tradeRequired
	case GoalResearch:
		return researchCareer
	}
	return nil
}

// fixedPhase4 returns the goal table content in placement order, with the
// optional additions the profile asks for.
func fixedPhase4(g Goal, k knowledge) []string {
	careerFocus := k.challenges[ChallengeCareer]
	var out []string
	switch g {
	case GoalInternship:
		out = append(out, internshipCareer...)
		if careerFocus {
			out = append(out, behavioralInterview)
		}
	case GoalJob:
		out = append(out, jobCareer...)
	case GoalTrade:
		out = append(out, tradeRequired...)
		if careerFocus {
			out = append(out, tradeCareerAddOns...)
		}
	case GoalResearch:
		out = append(out, researchProjects...)
		out = append(out, researchCareer...)
	}
	return out
}
