// Package model resolves logical role names (chat, plan, summary, ...) to
// configured text-generation backends. Roles let pipeline stages run on
// cheaper or faster models than the main chat role.
package model

import "time"

// Spec describes one generation backend configuration.
type Spec struct {
	Provider       string
	Model          string
	Temperature    float64
	APIKeyEnv      string
	BaseURL        string
	MaxRetries     int
	RequestTimeout time.Duration
}

// Message is a single chat turn sent to a backend.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
