package types

import (
	"github.com/google/uuid"
)

// Prompt is a named system-prompt template, bound to a conversation at
// creation time only.
type Prompt struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	Group   string    `json:"group"`
	Content string    `json:"content,omitempty"`
}

// WithoutContent strips the template body for list responses.
func (p Prompt) WithoutContent() Prompt {
	p.Content = ""
	return p
}

type PromptList struct {
	Prompts []Prompt `json:"prompts"`
}
