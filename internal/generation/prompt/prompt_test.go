package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/ideaforge-backend/internal/generation/profile"
	"github.com/yungbote/ideaforge-backend/internal/platform/apierr"
)

func testProfile() *profile.Profile {
	return &profile.Profile{
		ID:         "p",
		Frameworks: []string{"Jobs to be done"},
		Domains:    []string{"Logistics", "Health"},
		Samples:    map[string][]string{"customer": {"nurses"}},
		Prompts: profile.Prompts{
			System:   "You are an analyst.",
			Template: "Use {{.Framework}} in {{.Domain}} for {{index .Samples \"customer\"}}.{{range .Criteria}} [{{.Label}}]{{end}}",
		},
		Criteria: []profile.Criterion{
			{Name: "marketSize", Label: "Market", Weight: 1},
			{Name: "technicalFeasibility", Label: "Tech", Weight: 2},
		},
	}
}

func TestBuild(t *testing.T) {
	b := NewBuilder(1)
	p, err := b.Build(testProfile(), Overrides{Domain: "Fintech"})
	require.NoError(t, err)

	assert.Equal(t, "Jobs to be done", p.Framework)
	assert.Equal(t, "Fintech", p.Domain)
	assert.Equal(t, "nurses", p.Samples["customer"])
	assert.Equal(t, "You are an analyst.", p.System)
	assert.True(t, strings.HasPrefix(p.User, "Use Jobs to be done in Fintech for nurses. [Market] [Tech]"))
	assert.Contains(t, p.User, `"marketSize"`)
	assert.Contains(t, p.User, `"technicalFeasibility"`)
}

func TestBuild_SamplesFromPools(t *testing.T) {
	b := NewBuilder(7)
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		p, err := b.Build(testProfile(), Overrides{})
		require.NoError(t, err)
		seen[p.Domain] = true
	}
	assert.True(t, seen["Logistics"])
	assert.True(t, seen["Health"])
}

func TestBuild_BadTemplate(t *testing.T) {
	prof := testProfile()
	prof.Prompts.Template = "{{.Nope"
	_, err := NewBuilder(1).Build(prof, Overrides{})
	require.Error(t, err)
	assert.Equal(t, apierr.KindInternal, apierr.KindOf(err))
}

const validJSON = `{
  "domain": "Health",
  "problem": "Clinics lose patients in queues",
  "solution": "Async triage app",
  "summary": "Triage before arrival",
  "example": {"situation": "Flu season", "action": "Patient self-triages", "outcome": "Shorter wait"},
  "regulatoryComplexity": 7,
  "criteria": {
    "marketSize": {"score": 6, "reasoning": "Large", "qa": [{"question": "Who pays?", "answer": "Clinics"}]},
    "technicalFeasibility": {"score": 8, "reasoning": "Simple", "qa": [{"question": "Stack?", "answer": "Web"}]}
  }
}`

func TestParse_ToleratesFencesAndProse(t *testing.T) {
	for name, text := range map[string]string{
		"plain":  validJSON,
		"fenced": "```json\n" + validJSON + "\n```",
		"prose":  "Here is your idea:\n" + validJSON + "\nHope it helps!",
	} {
		t.Run(name, func(t *testing.T) {
			p, err := Parse(text)
			require.NoError(t, err)
			assert.Equal(t, "Health", p.Domain)
			assert.Equal(t, 7.0, p.RegulatoryComplexity)
			assert.Equal(t, map[string]float64{"marketSize": 6, "technicalFeasibility": 8}, p.Scores())
			assert.NoError(t, p.Validate([]string{"marketSize", "technicalFeasibility"}))
		})
	}
}

func TestParse_NotJSON(t *testing.T) {
	_, err := Parse("I cannot help with that.")
	require.Error(t, err)
	assert.Equal(t, apierr.KindValidation, apierr.KindOf(err))

	_, err = Parse("{not json}")
	assert.Equal(t, apierr.KindValidation, apierr.KindOf(err))
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	p, err := Parse(validJSON)
	require.NoError(t, err)
	p.Summary = " "
	p.Example.Outcome = ""
	ev := p.Criteria["marketSize"]
	ev.Score = 11
	ev.QA = []QA{{Question: "Who?", Answer: ""}}
	p.Criteria["marketSize"] = ev

	err = p.Validate([]string{"marketSize", "technicalFeasibility", "timeToMarket"})
	require.Error(t, err)
	assert.Equal(t, apierr.KindValidation, apierr.KindOf(err))
	msg := err.Error()
	for _, want := range []string{"summary is missing", "example.outcome is missing", "marketSize score 11.0", "marketSize has no supporting Q&A", "timeToMarket is missing"} {
		assert.Contains(t, msg, want)
	}
}
