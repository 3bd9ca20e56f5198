package cmd

import (
	"fmt"
	"os"

	"github.com/manifoldco/promptui"

	"github.com/spigell/resume-analyzer/internal/prompt"
)

// choosePersona asks for a persona when none was given on an interactive terminal.
func choosePersona(current string, personas []prompt.Persona) (string, error) {
	if current != "" || !isTerminal(os.Stdin) {
		return current, nil
	}

	sel := promptui.Select{
		Label: "Choose a persona",
		Items: personas,
		Templates: &promptui.SelectTemplates{
			Label:    "{{ . }}",
			Active:   "▸ {{ .Name | cyan }} ({{ .Key }})",
			Inactive: "  {{ .Name }} ({{ .Key }})",
			Selected: "persona: {{ .Name }}",
			Details:  "{{ .Description }}",
		},
	}

	idx, _, err := sel.Run()
	if err != nil {
		return "", fmt.Errorf("choose persona: %w", err)
	}
	return personas[idx].Key, nil
}

// chooseMessageKind asks for the message type when none was given on an interactive terminal.
func chooseMessageKind(current string) (string, error) {
	if current != "" || !isTerminal(os.Stdin) {
		return current, nil
	}

	sel := promptui.Select{
		Label: "Message type",
		Items: []string{string(prompt.MessageInvite), string(prompt.MessageReject)},
	}
	_, kind, err := sel.Run()
	if err != nil {
		return "", fmt.Errorf("choose message type: %w", err)
	}
	return kind, nil
}
