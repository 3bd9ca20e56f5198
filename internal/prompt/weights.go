package prompt

import (
	"fmt"
	"strings"
)

// Weights steer the overall score of a match evaluation. They are percentages
// but need not sum to 100.
type Weights struct {
	Skills     int `json:"skills" mapstructure:"skills"`
	Experience int `json:"experience" mapstructure:"experience"`
	Education  int `json:"education" mapstructure:"education"`
	SoftSkills int `json:"soft_skills" mapstructure:"soft_skills"`
}

func DefaultWeights() Weights {
	return Weights{Skills: 30, Experience: 30, Education: 20, SoftSkills: 20}
}

// String is a canonical form covering every weight, suitable for cache keys.
func (w Weights) String() string {
	return fmt.Sprintf("skills=%d,experience=%d,education=%d,soft_skills=%d", w.Skills, w.Experience, w.Education, w.SoftSkills)
}

// Instruction renders the weighting directive appended to the user message.
func (w Weights) Instruction() string {
	var b strings.Builder
	b.WriteString("SCORING WEIGHTS PREFERENCE:\n")
	fmt.Fprintf(&b, "- Skills: %d%%\n", w.Skills)
	fmt.Fprintf(&b, "- Experience: %d%%\n", w.Experience)
	fmt.Fprintf(&b, "- Education: %d%%\n", w.Education)
	fmt.Fprintf(&b, "- Soft Skills: %d%%\n", w.SoftSkills)
	b.WriteString("\nPlease calculate the overall score based on these weights.")
	return b.String()
}
