package profile

import (
	"fmt"
	"strings"
)

// Profile is one YAML-defined generation configuration: prompts, sampling
// pools, evaluation criteria and model parameters.
type Profile struct {
	ID                 string              `yaml:"id" json:"id"`
	Name               string              `yaml:"name" json:"name"`
	Description        string              `yaml:"description" json:"description,omitempty"`
	LLM                LLMConfig           `yaml:"llm" json:"llm"`
	Prompts            Prompts             `yaml:"prompts" json:"-"`
	Frameworks         []string            `yaml:"frameworks" json:"frameworks"`
	Domains            []string            `yaml:"domains" json:"domains"`
	Samples            map[string][]string `yaml:"samples" json:"samples,omitempty"`
	Criteria           []Criterion         `yaml:"criteria" json:"criteria"`
	ComplexityKeys     ComplexityKeys      `yaml:"complexity_keys" json:"complexity_keys"`
	DuplicateThreshold float64             `yaml:"duplicate_threshold" json:"duplicate_threshold,omitempty"`
}

type LLMConfig struct {
	Provider    string   `yaml:"provider" json:"provider"`
	Model       string   `yaml:"model" json:"model"`
	Temperature *float64 `yaml:"temperature" json:"temperature,omitempty"`
	MaxTokens   int      `yaml:"max_tokens" json:"max_tokens"`
}

type Prompts struct {
	System   string `yaml:"system"`
	Template string `yaml:"template"`
}

// Criterion is one scored evaluation axis. Names are open-ended.
type Criterion struct {
	Name     string  `yaml:"name" json:"name"`
	Label    string  `yaml:"label" json:"label"`
	Weight   float64 `yaml:"weight" json:"weight"`
	Question string  `yaml:"question" json:"question"`
}

// ComplexityKeys names the criteria the complexity metrics are derived from.
type ComplexityKeys struct {
	TechnicalFeasibility string `yaml:"technical_feasibility" json:"technical_feasibility"`
	MarketSize           string `yaml:"market_size" json:"market_size"`
	MonetizationClarity  string `yaml:"monetization_clarity" json:"monetization_clarity"`
}

const (
	DefaultTechnicalFeasibilityKey = "technicalFeasibility"
	DefaultMarketSizeKey           = "marketSize"
	DefaultMonetizationClarityKey  = "monetizationClarity"
	DefaultMaxTokens               = 4000
)

func (p *Profile) Weights() map[string]float64 {
	out := make(map[string]float64, len(p.Criteria))
	for _, c := range p.Criteria {
		out[c.Name] = c.Weight
	}
	return out
}

func (p *Profile) CriterionNames() []string {
	out := make([]string, 0, len(p.Criteria))
	for _, c := range p.Criteria {
		out = append(out, c.Name)
	}
	return out
}

// applyDefaults fills optional fields and checks required ones.
func (p *Profile) applyDefaults() error {
	p.ID = strings.TrimSpace(p.ID)
	if p.ID == "" {
		return fmt.Errorf("profile id is required")
	}
	if p.Name == "" {
		p.Name = p.ID
	}
	if strings.TrimSpace(p.Prompts.Template) == "" {
		return fmt.Errorf("profile %s: prompts.template is required", p.ID)
	}
	if len(p.Criteria) == 0 {
		return fmt.Errorf("profile %s: at least one criterion is required", p.ID)
	}
	seen := make(map[string]bool, len(p.Criteria))
	for i := range p.Criteria {
		c := &p.Criteria[i]
		c.Name = strings.TrimSpace(c.Name)
		if c.Name == "" {
			return fmt.Errorf("profile %s: criterion %d has no name", p.ID, i)
		}
		if seen[c.Name] {
			return fmt.Errorf("profile %s: duplicate criterion %q", p.ID, c.Name)
		}
		seen[c.Name] = true
		if c.Weight < 0 {
			return fmt.Errorf("profile %s: criterion %q has negative weight", p.ID, c.Name)
		}
		if c.Label == "" {
			c.Label = c.Name
		}
	}
	if p.LLM.MaxTokens <= 0 {
		p.LLM.MaxTokens = DefaultMaxTokens
	}
	if p.ComplexityKeys.TechnicalFeasibility == "" {
		p.ComplexityKeys.TechnicalFeasibility = DefaultTechnicalFeasibilityKey
	}
	if p.ComplexityKeys.MarketSize == "" {
		p.ComplexityKeys.MarketSize = DefaultMarketSizeKey
	}
	if p.ComplexityKeys.MonetizationClarity == "" {
		p.ComplexityKeys.MonetizationClarity = DefaultMonetizationClarityKey
	}
	if p.DuplicateThreshold < 0 || p.DuplicateThreshold > 1 {
		return fmt.Errorf("profile %s: duplicate_threshold must be within [0,1]", p.ID)
	}
	return nil
}
