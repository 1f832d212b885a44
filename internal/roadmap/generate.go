package roadmap

import "slices"

// Options tune generation without relaxing any constraint.
type Options struct {
	// ReviewKnownPrerequisites places a 6-hour prerequisite review of a
	// suppressed known subject right before the node that needs it. When
	// false the learner's mastery stands in for the prerequisite.
	ReviewKnownPrerequisites bool `json:"review_known_prerequisites"`
}

// Generate builds the roadmap for a profile. The result is a pure function
// of its inputs. A roadmap that breaks any hard constraint is never
// returned; the error is a *ConstraintError listing every violation.
func Generate(p Profile, c *Catalog, opts Options) (Roadmap, error) {
	if err := p.Validate(); err != nil {
		return Roadmap{}, err
	}
	if c == nil {
		c = DefaultCatalog()
	}
	p = p.Normalized()

	rm := newPlanner(p, c, opts).plan()
	if err := Validate(rm, p, c, opts); err != nil {
		return Roadmap{}, err
	}
	return rm, nil
}

type reasonCode int

const (
	reasonFill reasonCode = iota
	reasonGoalTable
	reasonGoalOptional
	reasonResearchTopic
	reasonGoalPrerequisite
	reasonAnchor
	reasonAnchorPrerequisite
	reasonReview
	reasonReinforcement
	reasonMathCoverage
	reasonProjectCoverage
	reasonChallenge
	reasonGoalAligned
)

type reason struct {
	code reasonCode
	ref  string
}

type placement struct {
	node   CatalogNode
	phase  int
	kind   Kind
	why    reason
	before []string // prerequisites already placed
	cover  []string // prerequisites covered by mastery
}

type planner struct {
	profile Profile
	cat     *Catalog
	opts    Options
	k       knowledge

	fixed         []string
	reserved      map[string]bool
	researchTopic string
	deadline      map[string]int
	neededBy      map[string]string
	anchors       map[string]int

	placed map[string]bool
	order  []placement
}

func newPlanner(p Profile, c *Catalog, opts Options) *planner {
	k := newKnowledge(p)
	pl := &planner{
		profile:  p,
		cat:      c,
		opts:     opts,
		k:        k,
		fixed:    fixedPhase4(p.PrimaryGoal, k),
		reserved: make(map[string]bool),
		deadline: make(map[string]int),
		neededBy: make(map[string]string),
		anchors:  make(map[string]int),
		placed:   make(map[string]bool),
	}
	for _, t := range pl.fixed {
		pl.reserved[t] = true
	}
	if p.PrimaryGoal == GoalResearch {
		for _, t := range researchTopics {
			if n, ok := c.Node(t); ok && !k.suppressed(n) {
				pl.researchTopic = t
				break
			}
		}
	}
	return pl
}

func (pl *planner) plan() Roadmap {
	pl.requireGoalPrerequisites()
	pl.chooseAnchors()
	for phase := 1; phase <= 3; phase++ {
		pl.fillPhase(phase)
	}
	pl.placePhase4()
	return pl.roadmap()
}

// requireGoalPrerequisites gives every unmastered prerequisite of the
// phase 4 topics a deadline of phase 3.
func (pl *planner) requireGoalPrerequisites() {
	targets := slices.Clone(pl.fixed)
	if pl.researchTopic != "" {
		targets = append(targets, pl.researchTopic)
	}
	for _, t := range targets {
		n, ok := pl.cat.Node(t)
		if !ok || n.Subject == SubjectCareer {
			continue
		}
		for _, q := range n.Prerequisites {
			pl.require(q, 3, t)
		}
	}
}

func (pl *planner) require(title string, phase int, dependent string) {
	n, ok := pl.cat.Node(title)
	if !ok || pl.k.known(n) || pl.reserved[title] {
		return
	}
	if d, ok := pl.deadline[title]; ok && d <= phase {
		return
	}
	pl.deadline[title] = phase
	if _, ok := pl.neededBy[title]; !ok {
		pl.neededBy[title] = dependent
	}
	for _, q := range n.Prerequisites {
		pl.require(q, phase, title)
	}
}

// chooseAnchors reserves one project for phase 2 and one for phase 3 so
// project coverage never depends on the greedy fill.
func (pl *planner) chooseAnchors() {
	var projects []CatalogNode
	for _, n := range pl.cat.nodes {
		if n.Subject == SubjectProject && !pl.reserved[n.Title] {
			projects = append(projects, n)
		}
	}
	goal := pl.profile.PrimaryGoal
	slices.SortStableFunc(projects, func(a, b CatalogNode) int {
		aa, ba := a.alignedWith(goal), b.alignedWith(goal)
		switch {
		case aa && !ba:
			return -1
		case ba && !aa:
			return 1
		}
		return pl.cat.position(a.Title) - pl.cat.position(b.Title)
	})

	limits := []struct{ phase, maxNew int }{{2, 3}, {3, 4}}
	for _, lim := range limits {
		for _, n := range projects {
			if _, taken := pl.anchors[n.Title]; taken {
				continue
			}
			closure := make(map[string]bool)
			if !pl.closure(n, closure) {
				continue
			}
			if lim.phase == 2 && pl.anyPhase1Forbidden(closure) {
				continue
			}
			extra := 0
			for q := range closure {
				if d, ok := pl.deadline[q]; !ok || d > lim.phase {
					extra++
				}
			}
			if extra > lim.maxNew {
				continue
			}
			pl.anchors[n.Title] = lim.phase
			pl.setDeadline(n.Title, lim.phase, "")
			for q := range closure {
				pl.setDeadline(q, lim.phase, n.Title)
			}
			break
		}
	}
}

func (pl *planner) setDeadline(title string, phase int, dependent string) {
	if d, ok := pl.deadline[title]; !ok || phase < d {
		pl.deadline[title] = phase
	}
	if _, ok := pl.neededBy[title]; !ok && dependent != "" {
		pl.neededBy[title] = dependent
	}
}

// closure collects the unmastered prerequisite closure of n. It fails when
// the closure reaches a node reserved for phase 4.
func (pl *planner) closure(n CatalogNode, acc map[string]bool) bool {
	for _, q := range n.Prerequisites {
		qn, ok := pl.cat.Node(q)
		if !ok || pl.reserved[q] {
			return false
		}
		if pl.k.known(qn) || acc[q] {
			continue
		}
		acc[q] = true
		if !pl.closure(qn, acc) {
			return false
		}
	}
	return true
}

func (pl *planner) anyPhase1Forbidden(titles map[string]bool) bool {
	for t := range titles {
		if n, ok := pl.cat.Node(t); ok && n.Phase1Forbidden {
			return true
		}
	}
	return false
}

type candidate struct {
	node      CatalogNode
	pos       int
	urgent    bool
	mandatory bool
	hits      int
	aligned   bool
	affinity  int
	style     int
	why       reason
}

// beats orders candidates: urgent deadlines, then other mandatory nodes,
// then unmet coverage, goal alignment, phase fit, learning style and
// finally catalog order.
func (a candidate) beats(b candidate) bool {
	if a.urgent != b.urgent {
		return a.urgent
	}
	if a.mandatory != b.mandatory {
		return a.mandatory
	}
	if a.hits != b.hits {
		return a.hits > b.hits
	}
	if a.aligned != b.aligned {
		return a.aligned
	}
	if a.affinity != b.affinity {
		return a.affinity > b.affinity
	}
	if a.style != b.style {
		return a.style > b.style
	}
	return a.pos < b.pos
}

// tierPhase is twice the phase a tier fits best.
var tierPhase = map[Tier]int{
	TierFoundation: 2,
	TierCore:       4,
	TierAdvanced:   6,
	TierProject:    5,
	TierCareer:     8,
}

func (pl *planner) phaseTarget() int {
	switch m := pl.profile.MotivationLevel; {
	case m <= 3:
		return minPhaseNodes
	case m >= 8:
		return maxPhaseNodes
	}
	return 5
}

func (pl *planner) fillPhase(phase int) {
	target := pl.phaseTarget()
	size := 0
	skipped := make(map[string]bool)

	for size < maxPhaseNodes {
		best, ok := pl.bestCandidate(phase, skipped)
		if !ok {
			return
		}
		if size >= target && !best.urgent {
			return
		}

		var reviews []CatalogNode
		if pl.opts.ReviewKnownPrerequisites {
			reviews = pl.reviewsFor(best.node, phase)
		}
		if size+len(reviews)+1 > maxPhaseNodes {
			skipped[best.node.Title] = true
			continue
		}
		for _, r := range reviews {
			pl.place(r, phase, KindPrerequisiteReview, reason{code: reasonReview, ref: best.node.Title})
			size++
		}
		kind := Kind(best.node.Tier)
		if pl.k.reinforced(best.node) {
			kind = KindReinforcement
		}
		pl.place(best.node, phase, kind, best.why)
		size++
	}
}

func (pl *planner) bestCandidate(phase int, skipped map[string]bool) (candidate, bool) {
	mathCount, unknownMath := pl.mathCoverage()
	projects := pl.projectCount()
	covered := pl.coveredCategories()
	goal := pl.profile.PrimaryGoal

	var best candidate
	found := false
	for i, n := range pl.cat.nodes {
		if !pl.eligible(n, phase) || skipped[n.Title] {
			continue
		}
		c := candidate{node: n, pos: i, why: reason{code: reasonFill}}

		known := pl.k.known(n)
		isMath := n.Subject == SubjectMath
		mathGap := isMath && mathCount < minMathNodes
		unknownGap := isMath && unknownMath < minUnknownMathNodes && !known
		projectGap := n.Subject == SubjectProject && projects < minProjectNodes
		challenge := pl.k.reinforced(n) || (pl.k.challenged(n) && !covered[subjectChallenge[n.Subject]])
		for _, hit := range []bool{mathGap, unknownGap, projectGap, challenge} {
			if hit {
				c.hits++
			}
		}

		d, isMandatory := pl.deadline[n.Title]
		c.mandatory = isMandatory
		c.urgent = (isMandatory && d <= phase) || (phase == 3 && (mathGap || unknownGap))
		c.aligned = n.alignedWith(goal)
		c.affinity = -abs(tierPhase[n.Tier] - 2*phase)
		if pl.profile.LearningStyle == "hands_on" && n.Subject == SubjectProject {
			c.style = 1
		}
		c.why = pl.explainChoice(c, mathGap || unknownGap, projectGap, challenge)

		if !found || c.beats(best) {
			best, found = c, true
		}
	}
	return best, found
}

func (pl *planner) explainChoice(c candidate, math, project, challenge bool) reason {
	t := c.node.Title
	if _, ok := pl.anchors[t]; ok {
		return reason{code: reasonAnchor}
	}
	if c.mandatory {
		dep := pl.neededBy[t]
		if _, ok := pl.anchors[dep]; ok {
			return reason{code: reasonAnchorPrerequisite, ref: dep}
		}
		return reason{code: reasonGoalPrerequisite, ref: dep}
	}
	switch {
	case pl.k.reinforced(c.node):
		return reason{code: reasonReinforcement}
	case math:
		return reason{code: reasonMathCoverage}
	case project:
		return reason{code: reasonProjectCoverage}
	case challenge:
		return reason{code: reasonChallenge}
	case c.aligned:
		return reason{code: reasonGoalAligned}
	}
	return reason{code: reasonFill}
}

// eligible reports whether n may be placed next in phase.
func (pl *planner) eligible(n CatalogNode, phase int) bool {
	switch {
	case pl.placed[n.Title], pl.reserved[n.Title]:
		return false
	case n.Subject == SubjectCareer:
		return false
	case n.Subject == SubjectProject && phase < 2:
		return false
	case n.Phase1Forbidden && phase == 1:
		return false
	case pl.k.suppressed(n):
		return false
	}
	for _, q := range n.Prerequisites {
		if !pl.satisfied(q, n) {
			return false
		}
	}
	return true
}

// satisfied reports whether prerequisite q of n is placed already or is
// covered by the learner's mastery of q or of n itself.
func (pl *planner) satisfied(q string, n CatalogNode) bool {
	if pl.placed[q] || pl.k.known(n) {
		return true
	}
	qn, ok := pl.cat.Node(q)
	return ok && pl.k.known(qn)
}

func (pl *planner) reviewsFor(n CatalogNode, phase int) []CatalogNode {
	var out []CatalogNode
	for _, q := range n.Prerequisites {
		qn, ok := pl.cat.Node(q)
		if !ok || pl.placed[q] || !pl.k.suppressed(qn) {
			continue
		}
		if phase == 1 && qn.Phase1Forbidden {
			continue
		}
		out = append(out, qn)
	}
	return out
}

func (pl *planner) place(n CatalogNode, phase int, kind Kind, why reason) {
	p := placement{node: n, phase: phase, kind: kind, why: why}
	for _, q := range n.Prerequisites {
		if pl.placed[q] {
			p.before = append(p.before, q)
		} else {
			p.cover = append(p.cover, q)
		}
	}
	pl.placed[n.Title] = true
	pl.order = append(pl.order, p)
}

func (pl *planner) mathCoverage() (total, unknown int) {
	for _, p := range pl.order {
		if p.phase > 3 || p.kind == KindPrerequisiteReview || p.node.Subject != SubjectMath {
			continue
		}
		total++
		if !pl.k.known(p.node) {
			unknown++
		}
	}
	return total, unknown
}

func (pl *planner) projectCount() int {
	n := 0
	for _, p := range pl.order {
		if p.node.Subject == SubjectProject && p.phase >= 2 && p.phase <= 3 {
			n++
		}
	}
	return n
}

func (pl *planner) coveredCategories() map[string]bool {
	out := make(map[string]bool)
	for _, p := range pl.order {
		if p.kind != KindPrerequisiteReview {
			out[subjectChallenge[p.node.Subject]] = true
		}
	}
	return out
}

func (pl *planner) placePhase4() {
	titles := slices.Clone(pl.fixed)
	if pl.researchTopic != "" && !slices.ContainsFunc(researchTopics, func(t string) bool { return pl.placed[t] }) {
		titles = append([]string{pl.researchTopic}, titles...)
	}
	required := requiredPhase4(pl.profile.PrimaryGoal)
	for _, t := range titles {
		n, ok := pl.cat.Node(t)
		if !ok {
			continue
		}
		kind := Kind(n.Tier)
		if pl.k.reinforced(n) {
			kind = KindReinforcement
		}
		why := reason{code: reasonGoalOptional}
		switch {
		case t == pl.researchTopic:
			why = reason{code: reasonResearchTopic}
		case slices.Contains(required, t), pl.profile.PrimaryGoal == GoalResearch:
			why = reason{code: reasonGoalTable}
		}
		pl.place(n, 4, kind, why)
	}
}

func (pl *planner) roadmap() Roadmap {
	rm := Roadmap{
		Goal:           pl.profile.PrimaryGoal,
		CatalogVersion: pl.cat.Version,
		Phases:         make([]Phase, len(PhaseTitles)),
	}
	for i, title := range PhaseTitles {
		rm.Phases[i] = Phase{Number: i + 1, Title: title, Nodes: []Node{}}
	}
	for _, p := range pl.order {
		ph := &rm.Phases[p.phase-1]
		ph.Nodes = append(ph.Nodes, Node{
			Title:               p.node.Title,
			Subject:             p.node.Subject,
			Kind:                p.kind,
			Hours:               hoursFor(p.kind, p.node.Tier),
			Prerequisites:       nonNil(p.before),
			CoveredByBackground: p.cover,
			WhyIncluded:         pl.rationale(p),
		})
	}
	return rm
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
