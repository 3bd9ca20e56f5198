package prompt

import (
	"sort"
	"strings"

	"github.com/spigell/resume-analyzer/internal/config"
)

const (
	PersonaHRBP       = "hrbp"
	PersonaCandidate  = "candidate"
	PersonaHeadhunter = "headhunter"
)

type Persona struct {
	Key          string
	Name         string
	Description  string
	SystemPrompt string
}

// Personas is read-only once built.
type Personas struct {
	byKey    map[string]Persona
	fallback string
}

func builtinPersonas() map[string]Persona {
	return map[string]Persona{
		PersonaHRBP: {
			Key:          PersonaHRBP,
			Name:         "Senior HRBP",
			Description:  "Direct, result-oriented, harsh but professional",
			SystemPrompt: mustTemplate("persona_hrbp.md"),
		},
		PersonaCandidate: {
			Key:          PersonaCandidate,
			Name:         "Candidate Coach",
			Description:  "Friendly, supportive, encouraging",
			SystemPrompt: mustTemplate("persona_candidate.md"),
		},
		PersonaHeadhunter: {
			Key:          PersonaHeadhunter,
			Name:         "B-Side Headhunter",
			Description:  "Client-facing, risk-aware, sales-driven",
			SystemPrompt: mustTemplate("persona_headhunter.md"),
		},
	}
}

// NewPersonas merges configured overrides over the built-in personas.
// Unknown keys add new personas; empty override fields keep built-in values.
// fallback names the persona used for unknown keys and defaults to hrbp.
func NewPersonas(overrides map[string]config.PersonaConfig, fallback string) *Personas {
	byKey := builtinPersonas()
	for key, o := range overrides {
		key = strings.ToLower(strings.TrimSpace(key))
		if key == "" {
			continue
		}
		p := byKey[key]
		p.Key = key
		if o.Name != "" {
			p.Name = o.Name
		}
		if o.Description != "" {
			p.Description = o.Description
		}
		if o.SystemPrompt != "" {
			p.SystemPrompt = o.SystemPrompt
		}
		if p.Name == "" {
			p.Name = key
		}
		byKey[key] = p
	}

	fallback = strings.ToLower(strings.TrimSpace(fallback))
	if _, ok := byKey[fallback]; !ok {
		fallback = PersonaHRBP
	}
	return &Personas{byKey: byKey, fallback: fallback}
}

// Resolve returns the persona for key, or the fallback persona when key is unknown.
func (p *Personas) Resolve(key string) Persona {
	if persona, ok := p.byKey[strings.ToLower(strings.TrimSpace(key))]; ok {
		return persona
	}
	return p.byKey[p.fallback]
}

// List returns all personas sorted by key.
func (p *Personas) List() []Persona {
	out := make([]Persona, 0, len(p.byKey))
	for _, persona := range p.byKey {
		out = append(out, persona)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
