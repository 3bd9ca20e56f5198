// Package prompt builds the system and user messages for every engine task.
package prompt

import "fmt"

// Task is the closed set of prompt-producing operations.
type Task int

const (
	MatchAnalysis Task = iota
	JDOptimization
	FieldExtraction
	MatchEvaluation
	Diagnostic
	MessageGeneration
	Translation
	BulletRewrite
)

var taskTags = map[Task]string{
	MatchAnalysis:     "match-analysis",
	JDOptimization:    "jd-optimization",
	FieldExtraction:   "field-extraction",
	MatchEvaluation:   "match-evaluation",
	Diagnostic:        "diagnostic",
	MessageGeneration: "message-generation",
	Translation:       "translation",
	BulletRewrite:     "bullet-rewrite",
}

// String returns the stable tag used in logs and cache keys.
func (t Task) String() string {
	if tag, ok := taskTags[t]; ok {
		return tag
	}
	return fmt.Sprintf("task(%d)", int(t))
}

// Tasks lists all tasks in declaration order.
func Tasks() []Task {
	return []Task{MatchAnalysis, JDOptimization, FieldExtraction, MatchEvaluation, Diagnostic, MessageGeneration, Translation, BulletRewrite}
}
