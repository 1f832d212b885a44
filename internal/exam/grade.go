package exam

// Outcome classifies one question in a graded attempt.
type Outcome string

const (
	OutcomeCorrect    Outcome = "correct"
	OutcomeIncorrect  Outcome = "incorrect"
	OutcomeUnanswered Outcome = "unanswered"
	// OutcomeDisqualified marks an answer that matched after the solution
	// had been viewed. It scores as incorrect.
	OutcomeDisqualified Outcome = "disqualified"
)

// QuestionResult is the graded detail for one question.
type QuestionResult struct {
	QuestionID     string  `json:"question_id"`
	Answer         string  `json:"answer,omitempty"`
	Answered       bool    `json:"answered"`
	RawCorrect     bool    `json:"raw_correct"`
	SolutionViewed bool    `json:"solution_viewed"`
	Outcome        Outcome `json:"outcome"`
}

// Result is the immutable outcome of a submitted attempt.
type Result struct {
	AttemptNumber  int              `json:"attempt_number"`
	Total          int              `json:"total"`
	Score          int              `json:"score"`
	Passed         bool             `json:"passed"`
	PassingPercent int              `json:"passing_percent"`
	Questions      []QuestionResult `json:"questions"`
}

// Correctness maps question id to whether it earned credit.
func (r Result) Correctness() map[string]bool {
	out := make(map[string]bool, len(r.Questions))
	for _, q := range r.Questions {
		out[q.QuestionID] = q.Outcome == OutcomeCorrect
	}
	return out
}

// Detail returns the graded detail for a question id.
func (r Result) Detail(id string) (QuestionResult, bool) {
	for _, q := range r.Questions {
		if q.QuestionID == id {
			return q, true
		}
	}
	return QuestionResult{}, false
}

// Unanswered counts questions with no committed answer.
func (r Result) Unanswered() int {
	n := 0
	for _, q := range r.Questions {
		if !q.Answered {
			n++
		}
	}
	return n
}

// Grade scores answers against questions. A question earns credit only if
// the answer matches and its solution was not viewed. The attempt passes
// when score/total >= percent/100; the comparison is done in integers.
func Grade(questions []Question, answers map[string]string, viewed map[string]bool, percent int) Result {
	res := Result{
		Total:          len(questions),
		PassingPercent: percent,
		Questions:      make([]QuestionResult, 0, len(questions)),
	}

	for _, q := range questions {
		raw, answered := answers[q.ID]
		qr := QuestionResult{
			QuestionID:     q.ID,
			Answer:         raw,
			Answered:       answered,
			SolutionViewed: viewed[q.ID],
		}
		if answered {
			qr.RawCorrect = q.Check(raw)
		}

		switch {
		case !answered:
			qr.Outcome = OutcomeUnanswered
		case qr.RawCorrect && qr.SolutionViewed:
			qr.Outcome = OutcomeDisqualified
		case qr.RawCorrect:
			qr.Outcome = OutcomeCorrect
			res.Score++
		default:
			qr.Outcome = OutcomeIncorrect
		}
		res.Questions = append(res.Questions, qr)
	}

	res.Passed = res.Total > 0 && res.Score*100 >= percent*res.Total
	return res
}
