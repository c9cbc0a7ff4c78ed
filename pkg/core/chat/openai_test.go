package chat

import (
	"context"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"
)

type fakeCompleter struct {
	gotReq openai.ChatCompletionRequest
	reply  string
	err    error
}

func (f *fakeCompleter) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.gotReq = req
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: f.reply}},
		},
	}, nil
}

func TestGenerateComposesMessages(t *testing.T) {
	fake := &fakeCompleter{reply: "happy to help"}
	g := newGenerator(fake)

	out, err := g.Generate(context.Background(), Request{
		UserText: "what are your opening hours?",
		History: []Message{
			{Role: RoleUser, Content: "hi"},
			{Role: RoleAssistant, Content: "hello, how can I help?"},
		},
		Knowledge: []string{"open weekdays 8am to 8pm", "closed on public holidays"},
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if out != "happy to help" {
		t.Fatalf("reply=%q", out)
	}

	msgs := fake.gotReq.Messages
	if len(msgs) != 4 {
		t.Fatalf("messages=%d, want 4 (system + 2 history + user)", len(msgs))
	}
	if msgs[0].Role != openai.ChatMessageRoleSystem {
		t.Fatalf("first message role=%q, want system", msgs[0].Role)
	}
	if msgs[1].Content != "hi" || msgs[2].Role != openai.ChatMessageRoleAssistant {
		t.Fatalf("history not replayed in order: %+v", msgs[1:3])
	}

	last := msgs[3].Content
	if !strings.Contains(last, "1. open weekdays 8am to 8pm") {
		t.Fatalf("knowledge not numbered into user message: %q", last)
	}
	if !strings.Contains(last, "User question: what are your opening hours?") {
		t.Fatalf("user text missing from final message: %q", last)
	}

	if fake.gotReq.Model != defaultChatModel {
		t.Fatalf("model=%q", fake.gotReq.Model)
	}
	if fake.gotReq.Temperature != 0.7 || fake.gotReq.MaxTokens != 500 {
		t.Fatalf("temperature/max_tokens not applied: %+v", fake.gotReq)
	}
}

func TestGenerateWithoutKnowledgePassesTextThrough(t *testing.T) {
	fake := &fakeCompleter{reply: "ok"}
	g := newGenerator(fake)

	if _, err := g.Generate(context.Background(), Request{UserText: "hello"}); err != nil {
		t.Fatalf("generate: %v", err)
	}
	last := fake.gotReq.Messages[len(fake.gotReq.Messages)-1]
	if last.Content != "hello" {
		t.Fatalf("plain question must pass through unchanged, got %q", last.Content)
	}
}

func TestGenerateEmptyUserText(t *testing.T) {
	g := newGenerator(&fakeCompleter{})
	if _, err := g.Generate(context.Background(), Request{}); err == nil {
		t.Fatalf("expected error for empty user text")
	}
}

func TestGenerateNoChoices(t *testing.T) {
	fake := &fakeCompleter{}
	g := newGenerator(fake)
	fake.reply = ""
	fake.gotReq = openai.ChatCompletionRequest{}
	// Force a response with zero choices.
	g.client = completerFunc(func(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		return openai.ChatCompletionResponse{}, nil
	})
	if _, err := g.Generate(context.Background(), Request{UserText: "hi"}); err == nil {
		t.Fatalf("expected error when no choices returned")
	}
}

type completerFunc func(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)

func (f completerFunc) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	return f(ctx, req)
}
