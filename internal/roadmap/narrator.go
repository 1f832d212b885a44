package roadmap

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mirkovic-academy/quantframe/internal/ai"
)

// BudgetScope is the budget scope narration is charged to.
const BudgetScope = "roadmap"

const (
	narratorMaxTokens = 1500
	maxRationaleLen   = 400
)

const narratorSystemPrompt = `You write short explanations for a quantitative finance learning roadmap.
For every topic you receive, rewrite its reason in one or two friendly sentences addressed to the learner.
Keep every fact in the given reason. Do not add, remove or reorder topics.
Reply with one JSON object mapping each topic title to its new explanation.`

// Narrator rephrases why_included text with a language model. It only
// touches prose: titles, phases and order are never changed, and any
// failure leaves the deterministic rationale in place.
type Narrator struct {
	llm    ai.Completer
	budget ai.BudgetChecker
}

// NewNarrator creates a narrator. budget may be nil for no limit.
func NewNarrator(llm ai.Completer, budget ai.BudgetChecker) *Narrator {
	return &Narrator{llm: llm, budget: budget}
}

type narrationTopic struct {
	Title  string `json:"title"`
	Phase  int    `json:"phase"`
	Reason string `json:"reason"`
}

type narrationInput struct {
	Goal   Goal             `json:"goal"`
	Topics []narrationTopic `json:"topics"`
}

// Narrate returns a copy of rm with rephrased rationales. The boolean
// reports whether the model's text was used.
func (n *Narrator) Narrate(ctx context.Context, userID string, rm Roadmap) (Roadmap, bool) {
	if n == nil || n.llm == nil {
		return rm, false
	}
	if n.budget != nil {
		ok, err := n.budget.Check(BudgetScope, userID)
		if err != nil || !ok {
			slog.Info("roadmap narration skipped", "user_id", userID, "reason", "budget", "error", err)
			return rm, false
		}
	}

	prose, tokens, err := n.complete(ctx, rm)
	if n.budget != nil && tokens > 0 {
		if rerr := n.budget.Record(BudgetScope, userID, tokens); rerr != nil {
			slog.Warn("recording narration tokens failed", "user_id", userID, "error", rerr)
		}
	}
	if err != nil {
		slog.Warn("roadmap narration failed, using rule text", "user_id", userID, "error", err)
		return rm, false
	}

	out := cloneRoadmap(rm)
	used := false
	for i := range out.Phases {
		for j := range out.Phases[i].Nodes {
			node := &out.Phases[i].Nodes[j]
			text := strings.TrimSpace(prose[node.Title])
			if text == "" || len(text) > maxRationaleLen {
				continue
			}
			node.WhyIncluded = text
			used = true
		}
	}
	return out, used
}

func (n *Narrator) complete(ctx context.Context, rm Roadmap) (map[string]string, int, error) {
	in := narrationInput{Goal: rm.Goal}
	for _, p := range rm.Phases {
		for _, node := range p.Nodes {
			in.Topics = append(in.Topics, narrationTopic{Title: node.Title, Phase: p.Number, Reason: node.WhyIncluded})
		}
	}
	payload, err := json.Marshal(in)
	if err != nil {
		return nil, 0, fmt.Errorf("marshal topics: %w", err)
	}

	resp, err := n.llm.Complete(ctx, ai.CompletionRequest{
		Messages: []ai.Message{
			{Role: "system", Content: narratorSystemPrompt},
			{Role: "user", Content: string(payload)},
		},
		MaxTokens:  narratorMaxTokens,
		Task:       ai.TaskRationale,
		JSONOutput: true,
	})
	if err != nil {
		return nil, 0, err
	}

	var prose map[string]string
	if err := json.Unmarshal([]byte(extractJSONObject(resp.Content)), &prose); err != nil {
		return nil, resp.TotalTokens(), fmt.Errorf("parse narration: %w", err)
	}
	return prose, resp.TotalTokens(), nil
}

// extractJSONObject strips code fences or chatter around the first JSON
// object in s.
func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return s
	}
	return s[start : end+1]
}

func cloneRoadmap(rm Roadmap) Roadmap {
	out := rm
	out.Phases = make([]Phase, len(rm.Phases))
	for i, p := range rm.Phases {
		out.Phases[i] = p
		out.Phases[i].Nodes = append([]Node(nil), p.Nodes...)
	}
	return out
}
