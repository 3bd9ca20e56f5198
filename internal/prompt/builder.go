package prompt

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/spigell/resume-analyzer/internal/config"
)

//go:embed templates/*.md
var templateFS embed.FS

const DefaultLanguage = config.DefaultLanguage

var ErrInvalidMessageKind = errors.New("invalid message type")

type MessageKind string

const (
	MessageReject MessageKind = "reject"
	MessageInvite MessageKind = "invite"
)

// Message carries the details of a candidate email.
type Message struct {
	Kind          MessageKind
	CandidateName string
	Reason        string
	Role          string
	Style         string
	Time          string
	Interviewer   string
	Tips          string
}

// Inputs are interpolated into the user template of a task.
type Inputs struct {
	Resume         string
	JD             string
	Text           string
	TargetLanguage string
	// Language is the output language of the report.
	Language string
	Weights  *Weights
	Message  Message
}

func mustTemplate(name string) string {
	data, err := templateFS.ReadFile("templates/" + name)
	if err != nil {
		panic(fmt.Sprintf("prompt: missing template %s: %v", name, err))
	}
	return strings.TrimSpace(string(data))
}

// Build renders the system and user messages for task. The system message of
// a match analysis comes from the persona; other tasks carry their own.
func Build(task Task, persona Persona, in Inputs) (system, user string, err error) {
	lang := strings.TrimSpace(in.Language)
	if lang == "" {
		lang = DefaultLanguage
	}

	switch task {
	case MatchAnalysis:
		name := "match_analysis.user.md"
		if persona.Key == PersonaHeadhunter {
			name = "match_analysis_headhunter.user.md"
		}
		return persona.SystemPrompt, render(name, "{{JD}}", in.JD, "{{RESUME}}", in.Resume, "{{LANGUAGE}}", lang), nil

	case JDOptimization:
		return render("jd_optimization.system.md", "{{LANGUAGE}}", lang),
			render("jd_optimization.user.md", "{{JD}}", in.JD), nil

	case FieldExtraction:
		return mustTemplate("field_extraction.system.md"),
			render("field_extraction.user.md", "{{RESUME}}", in.Resume), nil

	case MatchEvaluation:
		weights := DefaultWeights()
		if in.Weights != nil {
			weights = *in.Weights
		}
		return render("match_evaluation.system.md", "{{LANGUAGE}}", lang),
			render("match_evaluation.user.md", "{{JD}}", in.JD, "{{WEIGHTS}}", weights.Instruction(), "{{RESUME}}", in.Resume), nil

	case Diagnostic:
		return render("diagnostic.system.md", "{{LANGUAGE}}", lang),
			render("diagnostic.user.md", "{{RESUME}}", in.Resume), nil

	case MessageGeneration:
		user, err := buildMessage(in.Message, lang)
		if err != nil {
			return "", "", err
		}
		return mustTemplate("message.system.md"), user, nil

	case Translation:
		target := strings.TrimSpace(in.TargetLanguage)
		if target == "" {
			target = "Chinese"
		}
		return mustTemplate("translation.system.md"),
			render("translation.user.md", "{{TARGET_LANGUAGE}}", target, "{{TEXT}}", in.Text), nil

	case BulletRewrite:
		return render("bullet_rewrite.system.md", "{{LANGUAGE}}", lang),
			render("bullet_rewrite.user.md", "{{JD}}", in.JD, "{{TEXT}}", in.Text), nil
	}

	return "", "", fmt.Errorf("no template for %s", task)
}

func buildMessage(m Message, lang string) (string, error) {
	name := orDefault(m.CandidateName, "the candidate")
	role := orDefault(m.Role, "the position")

	switch m.Kind {
	case MessageReject:
		return render("message_reject.user.md",
			"{{STYLE}}", orDefault(m.Style, "Professional"),
			"{{NAME}}", name,
			"{{ROLE}}", role,
			"{{REASON}}", orDefault(m.Reason, "not a match at this time"),
			"{{LANGUAGE}}", lang,
		), nil
	case MessageInvite:
		return render("message_invite.user.md",
			"{{NAME}}", name,
			"{{ROLE}}", role,
			"{{TIME}}", orDefault(m.Time, "to be confirmed"),
			"{{INTERVIEWER}}", m.Interviewer,
			"{{TIPS}}", m.Tips,
			"{{LANGUAGE}}", lang,
		), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMessageKind, m.Kind)
}

// render substitutes placeholders in a single pass so inputs containing
// placeholder text are never expanded.
func render(name string, oldnew ...string) string {
	return strings.NewReplacer(oldnew...).Replace(mustTemplate(name))
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v == "" {
		return def
	}
	return v
}
