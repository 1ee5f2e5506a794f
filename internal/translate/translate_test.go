package translate

import (
	"testing"
	"time"
)

func floatPtr(f float64) *float64 { return &f }
func intPtr(i int) *int           { return &i }

func TestChatRequestToNative_MapsAllowlistedOptions(t *testing.T) {
	req := ChatCompletionRequest{
		Model:       "llama3",
		Messages:    []OpenAIMessage{{Role: "user", Content: "hi"}},
		Temperature: floatPtr(0.5),
		TopP:        floatPtr(0.9),
		MaxTokens:   intPtr(128),
		Stop:        []string{"\n"},
	}

	native := ChatRequestToNative(req)

	if native.Model != "llama3" {
		t.Fatalf("Model = %q", native.Model)
	}
	if native.Options == nil {
		t.Fatal("expected Options to be populated")
	}
	if *native.Options.Temperature != 0.5 || *native.Options.TopP != 0.9 {
		t.Fatalf("Options = %+v", native.Options)
	}
	if native.Options.NumPredict == nil || *native.Options.NumPredict != 128 {
		t.Fatalf("NumPredict = %v, want 128", native.Options.NumPredict)
	}
}

func TestChatRequestToNative_NoOptionsWhenNoneSet(t *testing.T) {
	native := ChatRequestToNative(ChatCompletionRequest{Model: "llama3"})
	if native.Options != nil {
		t.Fatalf("Options = %+v, want nil", native.Options)
	}
}

func TestChatInputText_ConcatenatesWithRolePrefixes(t *testing.T) {
	got := ChatInputText([]OpenAIMessage{
		{Role: "system", Content: "be terse"},
		{Role: "user", Content: "hello"},
	})
	want := "system: be terse\nuser: hello"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestChatResponseFromNative_WrapsShape(t *testing.T) {
	native := NativeChatResponse{Model: "llama3", Message: NativeMessage{Role: "assistant", Content: "hi there"}, Done: true}
	resp := ChatResponseFromNative("req-1", native, OpenAIUsage{}, time.Unix(100, 0))

	if resp.Object != "chat.completion" {
		t.Fatalf("Object = %q", resp.Object)
	}
	if len(resp.Choices) != 1 || resp.Choices[0].Message.Content != "hi there" {
		t.Fatalf("Choices = %+v", resp.Choices)
	}
	if resp.Choices[0].FinishReason != "stop" {
		t.Fatalf("FinishReason = %q, want stop", resp.Choices[0].FinishReason)
	}
}

func TestChatStreamChunkFromNative_FinalChunkHasEmptyDeltaAndFinishReason(t *testing.T) {
	chunk := ChatStreamChunkFromNative("id", "llama3", 0, NativeChatResponse{Done: true})
	if chunk.Choices[0].Delta.Content != "" {
		t.Fatalf("final chunk delta = %q, want empty", chunk.Choices[0].Delta.Content)
	}
	if chunk.Choices[0].FinishReason == nil || *chunk.Choices[0].FinishReason != "stop" {
		t.Fatal("final chunk must carry finish_reason stop")
	}
}

func TestChatStreamChunkFromNative_MidStreamChunkCarriesDeltaNoFinishReason(t *testing.T) {
	chunk := ChatStreamChunkFromNative("id", "llama3", 0, NativeChatResponse{
		Message: NativeMessage{Content: "partial"},
		Done:    false,
	})
	if chunk.Choices[0].Delta.Content != "partial" {
		t.Fatalf("delta = %q, want partial", chunk.Choices[0].Delta.Content)
	}
	if chunk.Choices[0].FinishReason != nil {
		t.Fatal("mid-stream chunk must not carry a finish_reason")
	}
}

func TestCompletionStreamChunkFromNative_FinalChunkClearsText(t *testing.T) {
	chunk := CompletionStreamChunkFromNative("id", "llama3", 0, NativeGenerateResponse{Response: "trailing", Done: true})
	if chunk.Choices[0].Text != "" {
		t.Fatalf("final chunk text = %q, want empty", chunk.Choices[0].Text)
	}
	if chunk.Choices[0].FinishReason == nil || *chunk.Choices[0].FinishReason != "stop" {
		t.Fatal("final chunk must carry finish_reason stop")
	}
}
