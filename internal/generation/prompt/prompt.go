package prompt

import (
	"bytes"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"text/template"

	"github.com/yungbote/ideaforge-backend/internal/generation/profile"
	"github.com/yungbote/ideaforge-backend/internal/platform/apierr"
)

// Overrides pin values that would otherwise be sampled.
type Overrides struct {
	Framework string
	Domain    string
}

// Prompt is a rendered prompt plus the values that were sampled into it.
type Prompt struct {
	System    string            `json:"-"`
	User      string            `json:"-"`
	Framework string            `json:"framework"`
	Domain    string            `json:"domain"`
	Samples   map[string]string `json:"samples,omitempty"`
}

// TemplateData is what profile templates render against.
type TemplateData struct {
	Framework string
	Domain    string
	Samples   map[string]string
	Criteria  []profile.Criterion
}

type Builder struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewBuilder(seed int64) *Builder {
	return &Builder{rng: rand.New(rand.NewSource(seed))}
}

func (b *Builder) pick(pool []string) string {
	clean := make([]string, 0, len(pool))
	for _, s := range pool {
		if s = strings.TrimSpace(s); s != "" {
			clean = append(clean, s)
		}
	}
	if len(clean) == 0 {
		return ""
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return clean[b.rng.Intn(len(clean))]
}

// Build renders the profile's templates with sampled values and appends the
// JSON response contract.
func (b *Builder) Build(p *profile.Profile, o Overrides) (*Prompt, error) {
	if p == nil {
		return nil, apierr.Internal("prompt_no_profile", fmt.Errorf("no profile supplied"))
	}
	framework := strings.TrimSpace(o.Framework)
	if framework == "" {
		framework = b.pick(p.Frameworks)
	}
	domain := strings.TrimSpace(o.Domain)
	if domain == "" {
		domain = b.pick(p.Domains)
	}

	keys := make([]string, 0, len(p.Samples))
	for k := range p.Samples {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	samples := make(map[string]string, len(keys))
	for _, k := range keys {
		samples[k] = b.pick(p.Samples[k])
	}

	data := TemplateData{Framework: framework, Domain: domain, Samples: samples, Criteria: p.Criteria}
	user, err := render("template", p.Prompts.Template, data)
	if err != nil {
		return nil, apierr.Internal("prompt_render_failed", fmt.Errorf("profile %s: %w", p.ID, err))
	}
	system, err := render("system", p.Prompts.System, data)
	if err != nil {
		return nil, apierr.Internal("prompt_render_failed", fmt.Errorf("profile %s: %w", p.ID, err))
	}

	return &Prompt{
		System:    strings.TrimSpace(system),
		User:      strings.TrimSpace(user) + "\n\n" + ResponseContract(p.Criteria),
		Framework: framework,
		Domain:    domain,
		Samples:   samples,
	}, nil
}

func render(name, text string, data TemplateData) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	tmpl, err := template.New(name).Option("missingkey=zero").Parse(text)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// ResponseContract describes the JSON object the model must return.
func ResponseContract(criteria []profile.Criterion) string {
	var b strings.Builder
	b.WriteString("Respond with a single JSON object and nothing else, using exactly these fields:\n")
	b.WriteString(`{"domain": string, "problem": string, "solution": string, "summary": string,` + "\n")
	b.WriteString(` "example": {"situation": string, "action": string, "outcome": string},` + "\n")
	b.WriteString(` "regulatoryComplexity": number 1-10,` + "\n")
	b.WriteString(` "components": object,` + "\n")
	b.WriteString(` "criteria": {` + "\n")
	for i, c := range criteria {
		fmt.Fprintf(&b, `   %q: {"score": integer 1-10, "reasoning": string, "qa": [{"question": string, "answer": string}]}`, c.Name)
		if i < len(criteria)-1 {
			b.WriteString(",")
		}
		if q := strings.TrimSpace(c.Question); q != "" {
			fmt.Fprintf(&b, "  // %s", q)
		}
		b.WriteString("\n")
	}
	b.WriteString(" }}")
	return b.String()
}
