// Package chat generates assistant replies from a transcript, prior
// conversation turns, and retrieved knowledge context.
package chat

import "context"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one prior conversation turn.
type Message struct {
	Role    string
	Content string
}

// Request carries everything a reply generation needs.
type Request struct {
	// UserText is the latest transcribed user utterance.
	UserText string
	// History holds prior turns, oldest first.
	History []Message
	// Knowledge holds retrieved context snippets, most relevant
	// first. Leave empty when UserText was already composed with
	// ComposeUserMessage.
	Knowledge []string
}

// Generator produces an assistant reply for a request.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}
