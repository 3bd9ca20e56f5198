// Package providers wires every built-in LLM backend into an ai.Registry.
package providers

import (
	"github.com/spigell/resume-analyzer/internal/ai"
	"github.com/spigell/resume-analyzer/internal/ai/anthropic"
	"github.com/spigell/resume-analyzer/internal/ai/gemini"
	"github.com/spigell/resume-analyzer/internal/ai/openai"
)

// Default returns a registry with the gemini, openai, deepseek and anthropic kinds.
func Default() *ai.Registry {
	r := ai.NewRegistry()
	r.Register(gemini.Kind, gemini.New)
	r.Register(openai.KindOpenAI, openai.NewOpenAI)
	r.Register(openai.KindDeepSeek, openai.NewDeepSeek)
	r.Register(anthropic.Kind, anthropic.New)
	return r
}
