package translate

import "github.com/cortexshield/llmguard/internal/scanner"

// OpenAIStreamDelta is the incremental content of one chat streaming chunk.
type OpenAIStreamDelta struct {
	Content string `json:"content,omitempty"`
}

// OpenAIChatStreamChoice is one choice in a streaming chat chunk.
type OpenAIChatStreamChoice struct {
	Index        int               `json:"index"`
	Delta        OpenAIStreamDelta `json:"delta"`
	FinishReason *string           `json:"finish_reason"`
}

// OpenAIChatStreamChunk is the JSON payload of one `data:` SSE frame for
// chat completions.
type OpenAIChatStreamChunk struct {
	ID      string                   `json:"id"`
	Object  string                   `json:"object"`
	Created int64                    `json:"created"`
	Model   string                   `json:"model"`
	Choices []OpenAIChatStreamChoice `json:"choices"`
}

// ChatStreamChunkFromNative maps one native /api/chat NDJSON line to an
// OpenAI chat streaming chunk. The final chunk (native.Done) carries an
// empty delta and finish_reason "stop", per spec §4.5.
func ChatStreamChunkFromNative(id, model string, created int64, native NativeChatResponse) OpenAIChatStreamChunk {
	choice := OpenAIChatStreamChoice{Index: 0}
	if native.Done {
		stop := "stop"
		choice.FinishReason = &stop
	} else {
		choice.Delta.Content = native.Message.Content
	}
	return OpenAIChatStreamChunk{
		ID:      id,
		Object:  "chat.completion.chunk",
		Created: created,
		Model:   model,
		Choices: []OpenAIChatStreamChoice{choice},
	}
}

// OpenAICompletionStreamChoice is one choice in a streaming completion
// chunk.
type OpenAICompletionStreamChoice struct {
	Index        int     `json:"index"`
	Text         string  `json:"text"`
	FinishReason *string `json:"finish_reason"`
}

// OpenAICompletionStreamChunk is the JSON payload of one `data:` SSE frame
// for text completions.
type OpenAICompletionStreamChunk struct {
	ID      string                          `json:"id"`
	Object  string                          `json:"object"`
	Created int64                           `json:"created"`
	Model   string                          `json:"model"`
	Choices []OpenAICompletionStreamChoice  `json:"choices"`
}

// CompletionStreamChunkFromNative maps one native /api/generate NDJSON
// line to an OpenAI completion streaming chunk.
func CompletionStreamChunkFromNative(id, model string, created int64, native NativeGenerateResponse) OpenAICompletionStreamChunk {
	choice := OpenAICompletionStreamChoice{Index: 0, Text: native.Response}
	if native.Done {
		stop := "stop"
		choice.FinishReason = &stop
		choice.Text = ""
	}
	return OpenAICompletionStreamChunk{
		ID:      id,
		Object:  "text_completion",
		Created: created,
		Model:   model,
		Choices: []OpenAICompletionStreamChoice{choice},
	}
}

// NativeErrorFrame is the error-frame shape for the native dialect: a
// single-line JSON object with done:true and the error payload.
type NativeErrorFrame struct {
	Done           bool                    `json:"done"`
	Error          string                  `json:"error"`
	Type           string                  `json:"type"`
	Message        string                  `json:"message"`
	FailedScanners []scanner.FailedScanner `json:"failed_scanners,omitempty"`
}

// OpenAIErrorBody is the error-frame shape for the OpenAI dialect.
type OpenAIErrorBody struct {
	Error OpenAIError `json:"error"`
}

// OpenAIError is the inner error object of OpenAIErrorBody.
type OpenAIError struct {
	Message        string                  `json:"message"`
	Type           string                  `json:"type"`
	Code           string                  `json:"code"`
	FailedScanners []scanner.FailedScanner `json:"failed_scanners,omitempty"`
}
