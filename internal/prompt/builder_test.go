package prompt

import (
	"errors"
	"strings"
	"testing"

	"github.com/spigell/resume-analyzer/internal/config"
)

func TestBuildEveryTask(t *testing.T) {
	t.Parallel()

	personas := NewPersonas(nil, "")
	in := Inputs{
		Resume:         "RESUME-BODY",
		JD:             "JD-BODY",
		Text:           "TEXT-BODY",
		TargetLanguage: "English",
		Message:        Message{Kind: MessageInvite, CandidateName: "Li Lei", Role: "Go Engineer"},
	}

	seen := make(map[string]Task)
	for _, task := range Tasks() {
		t.Run(task.String(), func(t *testing.T) {
			system, user, err := Build(task, personas.Resolve(PersonaHRBP), in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if strings.TrimSpace(system) == "" || strings.TrimSpace(user) == "" {
				t.Fatalf("expected both messages, got system=%q user=%q", system, user)
			}
			if strings.Contains(user, "{{") {
				t.Fatalf("unrendered placeholder in %q", user)
			}
			if other, dup := seen[system]; dup && task != MatchAnalysis && other != MatchAnalysis {
				t.Fatalf("%s shares a system template with %s", task, other)
			}
			seen[system] = task
		})
	}
}

func TestBuildMatchAnalysisUsesPersona(t *testing.T) {
	t.Parallel()

	personas := NewPersonas(nil, "")
	in := Inputs{Resume: "R", JD: "J"}

	hrSystem, hrUser, _ := Build(MatchAnalysis, personas.Resolve(PersonaHRBP), in)
	coachSystem, coachUser, _ := Build(MatchAnalysis, personas.Resolve(PersonaCandidate), in)
	hhSystem, hhUser, _ := Build(MatchAnalysis, personas.Resolve(PersonaHeadhunter), in)

	if hrSystem == coachSystem || hrSystem == hhSystem {
		t.Fatal("expected persona-specific system prompts")
	}
	if hrUser != coachUser {
		t.Fatal("expected hrbp and candidate to share the analysis template")
	}
	if hhUser == hrUser || !strings.Contains(hhUser, "Executive Summary") {
		t.Fatalf("expected headhunter presentation template, got %q", hhUser)
	}
}

func TestBuildDoesNotExpandPlaceholdersInInputs(t *testing.T) {
	t.Parallel()

	_, user, _ := Build(FieldExtraction, Persona{}, Inputs{Resume: "I wrote {{JD}} templates"})
	if !strings.Contains(user, "I wrote {{JD}} templates") {
		t.Fatalf("input was modified: %q", user)
	}
}

func TestBuildMatchEvaluationWeights(t *testing.T) {
	t.Parallel()

	_, defaults, _ := Build(MatchEvaluation, Persona{}, Inputs{Resume: "R", JD: "J"})
	if !strings.Contains(defaults, "- Skills: 30%") || !strings.Contains(defaults, "- Soft Skills: 20%") {
		t.Fatalf("expected default weights, got %q", defaults)
	}

	custom := Weights{Skills: 50, Experience: 40, Education: 5, SoftSkills: 5}
	_, user, _ := Build(MatchEvaluation, Persona{}, Inputs{Resume: "R", JD: "J", Weights: &custom})
	if !strings.Contains(user, "- Skills: 50%") || !strings.Contains(user, "- Education: 5%") {
		t.Fatalf("expected custom weights, got %q", user)
	}
}

func TestBuildMessageKinds(t *testing.T) {
	t.Parallel()

	_, reject, err := Build(MessageGeneration, Persona{}, Inputs{Message: Message{Kind: MessageReject, CandidateName: "Han Meimei", Role: "SRE", Reason: "needs more Kubernetes"}})
	if err != nil || !strings.Contains(reject, "rejection") || !strings.Contains(reject, "needs more Kubernetes") {
		t.Fatalf("unexpected reject prompt %q err=%v", reject, err)
	}

	_, invite, err := Build(MessageGeneration, Persona{}, Inputs{Message: Message{Kind: MessageInvite, Time: "Monday 10:00"}})
	if err != nil || !strings.Contains(invite, "Monday 10:00") || !strings.Contains(invite, "the candidate") {
		t.Fatalf("unexpected invite prompt %q err=%v", invite, err)
	}

	if _, _, err := Build(MessageGeneration, Persona{}, Inputs{Message: Message{Kind: "promote"}}); !errors.Is(err, ErrInvalidMessageKind) {
		t.Fatalf("expected invalid message kind, got %v", err)
	}
}

func TestWeightsString(t *testing.T) {
	t.Parallel()

	base := DefaultWeights()
	changed := base
	changed.SoftSkills = 25
	if base.String() == changed.String() {
		t.Fatal("expected every weight to be part of the canonical form")
	}
}

func TestPersonas(t *testing.T) {
	t.Parallel()

	personas := NewPersonas(map[string]config.PersonaConfig{
		"hrbp":    {SystemPrompt: "custom hr"},
		"Startup": {Name: "Startup CTO", SystemPrompt: "ship it"},
	}, "candidate")

	if got := personas.Resolve("hrbp"); got.SystemPrompt != "custom hr" || got.Name != "Senior HRBP" {
		t.Fatalf("unexpected override merge: %+v", got)
	}
	if got := personas.Resolve("startup"); got.Name != "Startup CTO" {
		t.Fatalf("expected new persona, got %+v", got)
	}
	if got := personas.Resolve("unknown"); got.Key != PersonaCandidate {
		t.Fatalf("expected configured fallback, got %q", got.Key)
	}
	if got := NewPersonas(nil, "nope").Resolve(""); got.Key != PersonaHRBP {
		t.Fatalf("expected hrbp fallback, got %q", got.Key)
	}
	if len(personas.List()) != 4 {
		t.Fatalf("unexpected persona count %d", len(personas.List()))
	}
}
