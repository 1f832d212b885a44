package roadmap

import (
	"fmt"
	"slices"
	"strings"
)

// Violation is one broken hard constraint. Rule numbers follow the
// constraint list: 1 phase shape, 2 phase sizes, 3 unique titles,
// 4 prerequisites, 5 suppression, 6 reinforcement, 7 math coverage,
// 8 project coverage, 9 phase 1 exclusions, 10 phase 4 goal table,
// 11 effort weights. Rule 0 is a node missing from the catalog.
type Violation struct {
	Rule    int    `json:"rule"`
	Phase   int    `json:"phase,omitempty"`
	Node    string `json:"node,omitempty"`
	Message string `json:"message"`
}

// ConstraintError lists every violation found in a roadmap.
type ConstraintError struct {
	Violations []Violation `json:"violations"`
}

func (e *ConstraintError) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.Message
	}
	return fmt.Sprintf("roadmap violates %d constraint(s): %s", len(e.Violations), strings.Join(msgs, "; "))
}

// Rules returns the distinct rule numbers that were violated.
func (e *ConstraintError) Rules() []int {
	var out []int
	for _, v := range e.Violations {
		if !slices.Contains(out, v.Rule) {
			out = append(out, v.Rule)
		}
	}
	slices.Sort(out)
	return out
}

// Validate checks a roadmap against every hard constraint independently of
// how it was produced. It returns nil or a *ConstraintError.
func Validate(rm Roadmap, p Profile, c *Catalog, opts Options) error {
	if c == nil {
		c = DefaultCatalog()
	}
	v := &validator{rm: rm, p: p, cat: c, opts: opts, k: newKnowledge(p)}
	v.run()
	if len(v.out) == 0 {
		return nil
	}
	return &ConstraintError{Violations: v.out}
}

type validator struct {
	rm   Roadmap
	p    Profile
	cat  *Catalog
	opts Options
	k    knowledge
	out  []Violation
}

func (v *validator) add(rule, phase int, node, format string, args ...any) {
	v.out = append(v.out, Violation{Rule: rule, Phase: phase, Node: node, Message: fmt.Sprintf(format, args...)})
}

func (v *validator) run() {
	v.checkShape()

	// position of every title: phase*100+index, first occurrence.
	pos := make(map[string]int)
	for _, ph := range v.rm.Phases {
		for i, n := range ph.Nodes {
			if _, dup := pos[n.Title]; dup {
				v.add(3, ph.Number, n.Title, "%q appears more than once", n.Title)
				continue
			}
			pos[n.Title] = ph.Number*100 + i
		}
	}

	mathTotal, mathUnknown := 0, 0
	projects := map[int]int{}
	for _, ph := range v.rm.Phases {
		for i, n := range ph.Nodes {
			cn, ok := v.cat.Node(n.Title)
			if !ok {
				v.add(0, ph.Number, n.Title, "%q is not in the catalog", n.Title)
				continue
			}
			here := ph.Number*100 + i
			v.checkPrerequisites(ph.Number, n, cn, pos, here)
			v.checkKnowledge(ph.Number, n, cn, pos, here)
			v.checkPlacement(ph.Number, cn)
			v.checkEffort(ph.Number, n, cn)

			if ph.Number <= 3 && cn.Subject == SubjectMath && n.Kind != KindPrerequisiteReview {
				mathTotal++
				if !v.k.known(cn) {
					mathUnknown++
				}
			}
			if cn.Subject == SubjectProject {
				projects[ph.Number]++
			}
		}
	}

	if mathTotal < minMathNodes {
		v.add(7, 0, "", "phases 1-3 hold %d math nodes, need at least %d", mathTotal, minMathNodes)
	}
	if mathUnknown < minUnknownMathNodes {
		v.add(7, 0, "", "phases 1-3 hold %d math nodes outside the math background, need at least %d", mathUnknown, minUnknownMathNodes)
	}
	if projects[2] < 1 {
		v.add(8, 2, "", "phase 2 has no project node")
	}
	if projects[2]+projects[3] < minProjectNodes {
		v.add(8, 0, "", "phases 2-3 hold %d project nodes, need at least %d", projects[2]+projects[3], minProjectNodes)
	}
	v.checkPhase4(pos)
}

func (v *validator) checkShape() {
	if len(v.rm.Phases) != len(PhaseTitles) {
		v.add(1, 0, "", "roadmap has %d phases, want %d", len(v.rm.Phases), len(PhaseTitles))
	}
	total := 0
	for i, ph := range v.rm.Phases {
		if i < len(PhaseTitles) && (ph.Number != i+1 || ph.Title != PhaseTitles[i]) {
			v.add(1, ph.Number, "", "phase %d is %d %q, want %d %q", i+1, ph.Number, ph.Title, i+1, PhaseTitles[i])
		}
		if len(ph.Nodes) < minPhaseNodes || len(ph.Nodes) > maxPhaseNodes {
			v.add(2, ph.Number, "", "phase %d has %d nodes, want %d-%d", ph.Number, len(ph.Nodes), minPhaseNodes, maxPhaseNodes)
		}
		total += len(ph.Nodes)
	}
	if total < minTotalNodes {
		v.add(2, 0, "", "roadmap has %d nodes, want at least %d", total, minTotalNodes)
	}
}

func (v *validator) checkPrerequisites(phase int, n Node, cn CatalogNode, pos map[string]int, here int) {
	earlier := func(t string) bool {
		at, ok := pos[t]
		return ok && at < here
	}
	for _, q := range cn.Prerequisites {
		if earlier(q) || v.k.known(cn) {
			continue
		}
		if qn, ok := v.cat.Node(q); ok && v.k.known(qn) {
			continue
		}
		v.add(4, phase, n.Title, "%q needs %q earlier in the roadmap or in the learner's background", n.Title, q)
	}
	for _, q := range n.Prerequisites {
		if !earlier(q) {
			v.add(4, phase, n.Title, "%q lists prerequisite %q that is not placed before it", n.Title, q)
		}
	}
}

func (v *validator) checkKnowledge(phase int, n Node, cn CatalogNode, pos map[string]int, here int) {
	switch {
	case n.Kind == KindPrerequisiteReview:
		if !v.k.suppressed(cn) {
			v.add(5, phase, n.Title, "%q is tagged as a prerequisite review but is not a known, unchallenged subject", n.Title)
		} else if !v.neededLater(cn.Title, pos, here) {
			v.add(5, phase, n.Title, "%q is reviewed but no later node needs it", n.Title)
		}
	case v.k.suppressed(cn):
		v.add(5, phase, n.Title, "%q is already known and not a current challenge; it may only appear as a prerequisite review", n.Title)
	}

	reinforced := v.k.reinforced(cn)
	if reinforced && n.Kind != KindReinforcement {
		v.add(6, phase, n.Title, "%q is known and challenged; it must be tagged as reinforcement", n.Title)
	}
	if !reinforced && n.Kind == KindReinforcement {
		v.add(6, phase, n.Title, "%q is tagged as reinforcement but is not a known, challenged subject", n.Title)
	}
}

func (v *validator) neededLater(title string, pos map[string]int, here int) bool {
	for _, ph := range v.rm.Phases {
		for _, n := range ph.Nodes {
			if pos[n.Title] <= here {
				continue
			}
			if cn, ok := v.cat.Node(n.Title); ok && slices.Contains(cn.Prerequisites, title) {
				return true
			}
		}
	}
	return false
}

func (v *validator) checkPlacement(phase int, cn CatalogNode) {
	if phase == 1 && cn.Phase1Forbidden {
		v.add(9, 1, cn.Title, "%q is advanced material and may not appear in phase 1", cn.Title)
	}
	if phase == 1 && cn.Subject == SubjectProject {
		v.add(8, 1, cn.Title, "project %q may not appear in phase 1", cn.Title)
	}
	if phase != 4 && cn.Subject == SubjectCareer {
		v.add(10, phase, cn.Title, "career node %q belongs in phase 4", cn.Title)
	}
}

func (v *validator) checkEffort(phase int, n Node, cn CatalogNode) {
	switch n.Kind {
	case KindPrerequisiteReview, KindReinforcement:
	default:
		if n.Kind != Kind(cn.Tier) {
			v.add(11, phase, n.Title, "%q is tagged %s, want %s", n.Title, n.Kind, cn.Tier)
		}
	}
	if want := hoursFor(n.Kind, cn.Tier); n.Hours != want {
		v.add(11, phase, n.Title, "%q carries %d hours, want %d", n.Title, n.Hours, want)
	}
}

func (v *validator) checkPhase4(pos map[string]int) {
	var phase4 []string
	if len(v.rm.Phases) == len(PhaseTitles) {
		for _, n := range v.rm.Phases[3].Nodes {
			phase4 = append(phase4, n.Title)
		}
	}
	goal := v.p.PrimaryGoal
	for _, t := range requiredPhase4(goal) {
		if !slices.Contains(phase4, t) {
			v.add(10, 4, t, "phase 4 for the %s goal must include %q", goal, t)
		}
	}
	if goal == GoalResearch {
		placed := slices.ContainsFunc(researchTopics, func(t string) bool {
			_, ok := pos[t]
			return ok
		})
		if !placed {
			v.add(10, 4, "", "the research goal needs one of %s", strings.Join(researchTopics, ", "))
		}
	}
}
