// Package response interprets raw model output.
package response

import (
	"regexp"
	"strconv"
)

// scorePatterns are tried in order; the first one whose captured value lies
// within [0,100] wins.
var scorePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Score.*?(\d+)`),
	regexp.MustCompile(`(?i)(\d+)/100`),
	regexp.MustCompile(`(?i)(\d+)分`),
	regexp.MustCompile(`(?i)Match.*?(\d+)`),
}

// ExtractScore finds a 0-100 score in free text. ok is false when none is found.
func ExtractScore(text string) (score int, ok bool) {
	for _, re := range scorePatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		v, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if v >= 0 && v <= 100 {
			return v, true
		}
	}
	return 0, false
}

// ScorePtr is ExtractScore returning nil when no score is present.
func ScorePtr(text string) *int {
	if v, ok := ExtractScore(text); ok {
		return &v
	}
	return nil
}
