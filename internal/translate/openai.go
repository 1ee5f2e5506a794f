package translate

import (
	"strings"
	"time"
)

// OpenAIMessage is one chat turn in the OpenAI dialect's request shape.
type OpenAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionRequest is the POST /v1/chat/completions body. Only the
// option fields on the allowlist are translated to native Options; any
// other field present on the wire is accepted and ignored rather than
// rejected, matching spec §4.5's "best-effort" egress/ingress framing.
type ChatCompletionRequest struct {
	Model       string          `json:"model"`
	Messages    []OpenAIMessage `json:"messages"`
	Stream      bool            `json:"stream"`
	Temperature *float64        `json:"temperature,omitempty"`
	TopP        *float64        `json:"top_p,omitempty"`
	MaxTokens   *int            `json:"max_tokens,omitempty"`
	Stop        []string        `json:"stop,omitempty"`
}

// CompletionRequest is the POST /v1/completions body.
type CompletionRequest struct {
	Model       string   `json:"model"`
	Prompt      string   `json:"prompt"`
	Stream      bool     `json:"stream"`
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

func allowlistedOptions(temperature, topP *float64, maxTokens *int, stop []string) *Options {
	if temperature == nil && topP == nil && maxTokens == nil && len(stop) == 0 {
		return nil
	}
	opts := &Options{Temperature: temperature, TopP: topP, Stop: stop}
	if maxTokens != nil {
		opts.NumPredict = maxTokens
	}
	return opts
}

// ChatRequestToNative converts an OpenAI chat-completions request into the
// native chat request, prefixing each message with its role for the
// accumulated "dialog order with role prefixes" text-extraction rule (the
// caller extracts scan text separately via ChatInputText; this method only
// builds the upstream body).
func ChatRequestToNative(req ChatCompletionRequest) NativeChatRequest {
	messages := make([]NativeMessage, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = NativeMessage{Role: m.Role, Content: m.Content}
	}
	return NativeChatRequest{
		Model:    req.Model,
		Messages: messages,
		Stream:   req.Stream,
		Options:  allowlistedOptions(req.Temperature, req.TopP, req.MaxTokens, req.Stop),
	}
}

// CompletionRequestToNative converts an OpenAI completion request into the
// native generate request.
func CompletionRequestToNative(req CompletionRequest) NativeGenerateRequest {
	return NativeGenerateRequest{
		Model:   req.Model,
		Prompt:  req.Prompt,
		Stream:  req.Stream,
		Options: allowlistedOptions(req.Temperature, req.TopP, req.MaxTokens, req.Stop),
	}
}

// ChatInputText concatenates chat messages in dialog order with role
// prefixes, per spec §4.5's input text-extraction rule.
func ChatInputText(messages []OpenAIMessage) string {
	var b strings.Builder
	for i, m := range messages {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
	}
	return b.String()
}

// OpenAIChoiceMessage is one non-streaming chat choice's message.
type OpenAIChoiceMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// OpenAIChatChoice is one choice in a non-streaming chat-completion
// response.
type OpenAIChatChoice struct {
	Index        int                 `json:"index"`
	Message      OpenAIChoiceMessage `json:"message"`
	FinishReason string              `json:"finish_reason"`
}

// OpenAIUsage carries best-effort token counts; the native dialect does not
// reliably expose these, so zero values are acceptable per spec §4.5.
type OpenAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatCompletionResponse is the non-streaming POST /v1/chat/completions
// response body.
type ChatCompletionResponse struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Model   string             `json:"model"`
	Choices []OpenAIChatChoice `json:"choices"`
	Usage   OpenAIUsage        `json:"usage"`
}

// ChatResponseFromNative wraps a native chat response in the OpenAI
// non-streaming chat-completion shape. id is caller-supplied (a UUID) so
// this package has no dependency on a specific ID generator.
func ChatResponseFromNative(id string, native NativeChatResponse, usage OpenAIUsage, now time.Time) ChatCompletionResponse {
	return ChatCompletionResponse{
		ID:      id,
		Object:  "chat.completion",
		Created: now.Unix(),
		Model:   native.Model,
		Choices: []OpenAIChatChoice{{
			Index:        0,
			Message:      OpenAIChoiceMessage{Role: "assistant", Content: native.Message.Content},
			FinishReason: "stop",
		}},
		Usage: usage,
	}
}

// OpenAICompletionChoice is one choice in a non-streaming completion
// response.
type OpenAICompletionChoice struct {
	Index        int    `json:"index"`
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason"`
}

// CompletionResponse is the non-streaming POST /v1/completions response
// body.
type CompletionResponse struct {
	ID      string                    `json:"id"`
	Object  string                    `json:"object"`
	Created int64                     `json:"created"`
	Model   string                    `json:"model"`
	Choices []OpenAICompletionChoice  `json:"choices"`
	Usage   OpenAIUsage               `json:"usage"`
}

// CompletionResponseFromNative wraps a native generate response in the
// OpenAI non-streaming completion shape.
func CompletionResponseFromNative(id string, native NativeGenerateResponse, usage OpenAIUsage, now time.Time) CompletionResponse {
	return CompletionResponse{
		ID:      id,
		Object:  "text_completion",
		Created: now.Unix(),
		Model:   native.Model,
		Choices: []OpenAICompletionChoice{{
			Index:        0,
			Text:         native.Response,
			FinishReason: "stop",
		}},
		Usage: usage,
	}
}
