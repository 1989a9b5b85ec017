package prompt

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/yungbote/ideaforge-backend/internal/platform/apierr"
)

// Payload is the structured idea the model returns.
type Payload struct {
	Domain               string                   `json:"domain"`
	Problem              string                   `json:"problem"`
	Solution             string                   `json:"solution"`
	Summary              string                   `json:"summary"`
	Example              Example                  `json:"example"`
	Criteria             map[string]CriterionEval `json:"criteria"`
	RegulatoryComplexity float64                  `json:"regulatoryComplexity"`
	Components           map[string]any           `json:"components,omitempty"`
	Metadata             map[string]any           `json:"metadata,omitempty"`
}

type Example struct {
	Situation string `json:"situation"`
	Action    string `json:"action"`
	Outcome   string `json:"outcome"`
}

type CriterionEval struct {
	Score     float64 `json:"score"`
	Reasoning string  `json:"reasoning"`
	QA        []QA    `json:"qa"`
}

type QA struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Scores flattens the criteria to name -> score.
func (p *Payload) Scores() map[string]float64 {
	out := make(map[string]float64, len(p.Criteria))
	for k, v := range p.Criteria {
		out[k] = v.Score
	}
	return out
}

// Parse extracts the JSON object from model output, tolerating code fences
// and surrounding prose.
func Parse(text string) (*Payload, error) {
	body := extractJSONObject(text)
	if body == "" {
		return nil, apierr.Validation("response_not_json", errors.New("model response contains no JSON object"))
	}
	var p Payload
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		return nil, apierr.Validation("response_not_json", fmt.Errorf("model response is not valid JSON: %w", err))
	}
	return &p, nil
}

func extractJSONObject(text string) string {
	s := strings.TrimSpace(text)
	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			rest = rest[:end]
		}
		s = strings.TrimSpace(rest)
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

// Validate checks that every required section is present: the core text
// fields, a three-part example, and one entry per configured criterion with
// a score in [1,10] and at least one answered question.
func (p *Payload) Validate(criteria []string) error {
	var problems []string
	req := func(name, v string) {
		if strings.TrimSpace(v) == "" {
			problems = append(problems, name+" is missing")
		}
	}
	req("domain", p.Domain)
	req("problem", p.Problem)
	req("solution", p.Solution)
	req("summary", p.Summary)
	req("example.situation", p.Example.Situation)
	req("example.action", p.Example.Action)
	req("example.outcome", p.Example.Outcome)

	names := append([]string(nil), criteria...)
	sort.Strings(names)
	for _, name := range names {
		ev, ok := p.Criteria[name]
		if !ok {
			problems = append(problems, fmt.Sprintf("criterion %s is missing", name))
			continue
		}
		if ev.Score < 1 || ev.Score > 10 {
			problems = append(problems, fmt.Sprintf("criterion %s score %.1f is outside 1-10", name, ev.Score))
		}
		if !hasAnsweredQA(ev.QA) {
			problems = append(problems, fmt.Sprintf("criterion %s has no supporting Q&A", name))
		}
	}
	if len(problems) == 0 {
		return nil
	}
	return apierr.Validation("invalid_generation_payload",
		fmt.Errorf("generated idea failed validation: %s", strings.Join(problems, "; "))).
		WithDetail("problems", problems)
}

func hasAnsweredQA(qa []QA) bool {
	for _, q := range qa {
		if strings.TrimSpace(q.Question) != "" && strings.TrimSpace(q.Answer) != "" {
			return true
		}
	}
	return false
}
