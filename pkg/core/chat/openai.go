package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	openai "github.com/sashabaranov/go-openai"
)

const (
	defaultChatModel   = "gpt-4-turbo-preview"
	defaultTemperature = 0.7
	defaultMaxTokens   = 500
)

// DefaultSystemPrompt steers the assistant persona. Overridable via
// configuration for other deployments.
const DefaultSystemPrompt = `You are Hanna, a virtual receptionist.

Your personality:
- Friendly, professional, and welcoming
- Deeply familiar with the venue and its services
- Speaks naturally and conversationally
- Answers concisely (three sentences at most)
- Always offers further help

Guidelines:
1. Use the provided context to answer accurately
2. If you do not know something, say so and offer to find out
3. Keep a warm, conversational tone
4. Focus on resolving the visitor's need
5. Always close by asking if you can help with anything else`

// chatCompleter is the slice of the OpenAI client this generator needs.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIGenerator implements Generator using OpenAI chat completions.
type OpenAIGenerator struct {
	client       chatCompleter
	model        string
	systemPrompt string
	temperature  float32
	maxTokens    int
}

var _ Generator = (*OpenAIGenerator)(nil)

type Option func(*OpenAIGenerator)

func WithModel(model string) Option {
	return func(g *OpenAIGenerator) {
		if model != "" {
			g.model = model
		}
	}
}

func WithSystemPrompt(prompt string) Option {
	return func(g *OpenAIGenerator) {
		if prompt != "" {
			g.systemPrompt = prompt
		}
	}
}

// NewOpenAI creates a new OpenAI chat generator.
func NewOpenAI(apiKey string, opts ...Option) *OpenAIGenerator {
	return NewOpenAIWithClient(openai.NewClient(apiKey), opts...)
}

// NewOpenAIWithClient creates a generator around an existing client.
func NewOpenAIWithClient(client *openai.Client, opts ...Option) *OpenAIGenerator {
	g := newGenerator(client)
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func newGenerator(client chatCompleter) *OpenAIGenerator {
	return &OpenAIGenerator{
		client:       client,
		model:        defaultChatModel,
		systemPrompt: DefaultSystemPrompt,
		temperature:  defaultTemperature,
		maxTokens:    defaultMaxTokens,
	}
}

// Generate produces an assistant reply. Retrieved knowledge snippets
// are folded into the final user message rather than the system prompt
// so they scope to the current question only.
func (g *OpenAIGenerator) Generate(ctx context.Context, req Request) (string, error) {
	if req.UserText == "" {
		return "", errors.New("empty user text")
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: g.systemPrompt,
	})
	for _, m := range req.History {
		role := openai.ChatMessageRoleUser
		if m.Role == RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    role,
			Content: m.Content,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: ComposeUserMessage(req.UserText, req.Knowledge),
	})

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    messages,
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
	})
	if err != nil {
		return "", errors.Wrap(err, "create chat completion")
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// ComposeUserMessage folds retrieved knowledge into a single user
// message. Callers that record conversation history should append the
// composed form so later turns replay the same context the model saw.
// With no knowledge it returns the text unchanged.
func ComposeUserMessage(userText string, knowledge []string) string {
	if len(knowledge) == 0 {
		return userText
	}
	var b strings.Builder
	b.WriteString("Context:\nRelevant information:\n")
	for i, snippet := range knowledge {
		fmt.Fprintf(&b, "%d. %s\n\n", i+1, snippet)
	}
	b.WriteString("\nUser question: ")
	b.WriteString(userText)
	return b.String()
}
