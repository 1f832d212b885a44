package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/mirkovic-academy/quantframe/internal/answer"
	"github.com/mirkovic-academy/quantframe/internal/report"
	"github.com/mirkovic-academy/quantframe/internal/roadmap"
)

type checkRequest struct {
	Input     string `json:"input"`
	Canonical string `json:"canonical"`
	// Text selects the exact text match instead of numeric equivalence.
	Text bool `json:"text,omitempty"`
}

func handleAnswerCheck(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	match := answer.Equivalent(req.Input, req.Canonical)
	if req.Text {
		match = answer.MatchText(req.Input, req.Canonical)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"match": match})
}

type roadmapRequest struct {
	UserID  string          `json:"user_id"`
	Profile json.RawMessage `json:"profile"`
	Options roadmap.Options `json:"options"`
}

// profileSchema is built from the accepted value lists so the HTTP check
// and Profile.Validate agree.
var profileSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	stringSet := func(values any) map[string]any {
		return map[string]any{
			"type":        "array",
			"uniqueItems": true,
			"items":       map[string]any{"type": "string", "enum": values},
		}
	}
	doc := map[string]any{
		"$schema":              "http://json-schema.org/draft-07/schema#",
		"type":                 "object",
		"required":             []string{"primary_goal", "motivation_level"},
		"additionalProperties": false,
		"properties": map[string]any{
			"current_stage":     map[string]any{"type": "string", "enum": roadmap.Stages},
			"primary_goal":      map[string]any{"type": "string", "enum": roadmap.Goals},
			"math_background":   stringSet(roadmap.MathSkills),
			"cs_skills":         stringSet(roadmap.CSSkills),
			"market_knowledge":  stringSet(roadmap.MarketSkills),
			"learning_style":    map[string]any{"type": "string", "enum": roadmap.LearningStyles},
			"motivation_level":  map[string]any{"type": "integer", "minimum": 1, "maximum": 10},
			"current_challenge": stringSet(roadmap.ChallengeValues),
		},
	}
	return gojsonschema.NewSchema(gojsonschema.NewGoLoader(doc))
})

// decodeProfile validates the raw profile against the schema and decodes
// it. The returned problems are for the client.
func decodeProfile(raw json.RawMessage) (roadmap.Profile, []string, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return roadmap.Profile{}, []string{"profile is required"}, nil
	}
	schema, err := profileSchema()
	if err != nil {
		return roadmap.Profile{}, nil, fmt.Errorf("compiling profile schema: %w", err)
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return roadmap.Profile{}, []string{"profile is not valid JSON"}, nil
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			problems = append(problems, e.String())
		}
		return roadmap.Profile{}, problems, nil
	}

	var p roadmap.Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return roadmap.Profile{}, []string{err.Error()}, nil
	}
	return p, nil, nil
}

// generateRoadmap handles request decoding and error responses shared by
// both roadmap endpoints. It reports false when a response was written.
func (s *Server) generateRoadmap(w http.ResponseWriter, r *http.Request) (roadmap.Roadmap, bool) {
	var req roadmapRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return roadmap.Roadmap{}, false
	}
	p, problems, err := decodeProfile(req.Profile)
	if err != nil {
		slog.Error("profile validation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return roadmap.Roadmap{}, false
	}
	if len(problems) > 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid profile", Details: problems})
		return roadmap.Roadmap{}, false
	}

	rm, err := s.deps.Roadmaps.Generate(r.Context(), req.UserID, p, req.Options)
	var ce *roadmap.ConstraintError
	switch {
	case err == nil:
		return rm, true
	case errors.As(err, &ce):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "no roadmap satisfies every constraint", Details: ce.Violations})
	case errors.Is(err, roadmap.ErrInvalidProfile):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("roadmap generation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
	return roadmap.Roadmap{}, false
}

func (s *Server) handleRoadmap(w http.ResponseWriter, r *http.Request) {
	rm, ok := s.generateRoadmap(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, rm)
}

func (s *Server) handleRoadmapExport(w http.ResponseWriter, r *http.Request) {
	rm, ok := s.generateRoadmap(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := report.WriteRoadmap(&buf, rm); err != nil {
		slog.Error("writing roadmap workbook failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="roadmap.xlsx"`)
	w.Write(buf.Bytes())
}
