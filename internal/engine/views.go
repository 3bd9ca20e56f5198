package engine

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spigell/resume-analyzer/internal/response"
)

// Dimension is one weighted facet of a match evaluation.
type Dimension struct {
	Score   int    `mapstructure:"score" json:"score"`
	Comment string `mapstructure:"comment" json:"comment"`
}

// MatchEvaluation is the typed view of an EvaluateMatch payload.
type MatchEvaluation struct {
	Score          int                  `mapstructure:"score" json:"score"`
	Status         string               `mapstructure:"status" json:"status"`
	Reason         string               `mapstructure:"reason" json:"reason"`
	Dimensions     map[string]Dimension `mapstructure:"dimensions" json:"dimensions,omitempty"`
	Strengths      []string             `mapstructure:"strengths" json:"strengths,omitempty"`
	Missing        []string             `mapstructure:"missing" json:"missing,omitempty"`
	Recommendation string               `mapstructure:"recommendation" json:"recommendation,omitempty"`
	Raw            string               `mapstructure:"raw" json:"raw,omitempty"`
}

type Education struct {
	School string `mapstructure:"school" json:"school"`
	Degree string `mapstructure:"degree" json:"degree"`
	Major  string `mapstructure:"major" json:"major"`
	Year   string `mapstructure:"year" json:"year"`
}

type Experience struct {
	Company         string `mapstructure:"company" json:"company"`
	Title           string `mapstructure:"title" json:"title"`
	Duration        string `mapstructure:"duration" json:"duration"`
	KeyAchievements any    `mapstructure:"key_achievements" json:"key_achievements,omitempty"`
}

// ResumeFields is the typed view of an ExtractResumeFields payload.
type ResumeFields struct {
	Name              string       `mapstructure:"name" json:"name"`
	Email             string       `mapstructure:"email" json:"email"`
	Phone             string       `mapstructure:"phone" json:"phone"`
	Education         []Education  `mapstructure:"education" json:"education,omitempty"`
	Experience        []Experience `mapstructure:"experience" json:"experience,omitempty"`
	Skills            []string     `mapstructure:"skills" json:"skills,omitempty"`
	YearsOfExperience float64      `mapstructure:"years_of_experience" json:"years_of_experience"`
	CurrentCompany    string       `mapstructure:"current_company" json:"current_company"`
	CurrentPosition   string       `mapstructure:"current_position" json:"current_position"`
}

// ErrNoVerdict marks an evaluation payload that carries no usable score:
// unparseable model output, an error status or a missing score.
var ErrNoVerdict = errors.New("evaluation has no verdict")

// DecodeEvaluation converts an evaluation payload into its typed view. Model
// output is loosely typed, so numbers given as strings are accepted. Payloads
// without a verdict return ErrNoVerdict and must not be read as a score.
func DecodeEvaluation(payload map[string]any) (MatchEvaluation, error) {
	if response.ParseFailed(payload) {
		return MatchEvaluation{}, fmt.Errorf("%w: %s", ErrNoVerdict, response.ParseFailure)
	}
	if strings.EqualFold(response.CoerceString(payload["status"]), evaluationErrorStatus) {
		return MatchEvaluation{}, fmt.Errorf("%w: %s", ErrNoVerdict, response.CoerceString(payload["reason"]))
	}
	rawScore, ok := payload["score"]
	if !ok {
		return MatchEvaluation{}, fmt.Errorf("%w: score is missing", ErrNoVerdict)
	}
	score := response.CoerceFloat(rawScore)
	if math.IsNaN(score) || score < 0 || score > 100 {
		return MatchEvaluation{}, fmt.Errorf("%w: invalid score %v", ErrNoVerdict, rawScore)
	}

	rest := make(map[string]any, len(payload))
	for k, v := range payload {
		if k != "score" {
			rest[k] = v
		}
	}
	var out MatchEvaluation
	if err := decodeLoose(rest, &out); err != nil {
		return MatchEvaluation{}, fmt.Errorf("decode evaluation: %w", err)
	}
	out.Score = int(math.Round(score))
	return out, nil
}

// DecodeResumeFields converts an extraction payload into its typed view.
func DecodeResumeFields(payload map[string]any) (ResumeFields, error) {
	if response.ParseFailed(payload) {
		return ResumeFields{}, fmt.Errorf("decode resume fields: %s", response.ParseFailure)
	}
	var out ResumeFields
	if err := decodeLoose(payload, &out); err != nil {
		return ResumeFields{}, fmt.Errorf("decode resume fields: %w", err)
	}
	return out, nil
}

func decodeLoose(in map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(in)
}
