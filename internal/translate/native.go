// Package translate maps between the native (Ollama-compatible) wire
// dialect and the OpenAI-compatible dialect, for both request ingress and
// response/stream-chunk egress. Grounded on the teacher's OpenAI-compatible
// provider's wire-shape marshaling idiom (buildRequest/parseResponse),
// generalized from a chat-completions-only client into a two-way gateway
// translator covering chat, completion, and streaming chunk shapes.
package translate

import "encoding/json"

// Options carries the native dialect's free-form generation parameters.
// Only the fields in the explicit OpenAI option allowlist (temperature,
// top_p, max_tokens→num_predict, stop) are populated by FromOpenAI*; the
// native dialect may accept others but the translator does not invent
// values for them.
type Options struct {
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	NumPredict  *int     `json:"num_predict,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

// NativeMessage is one chat turn in the native dialect.
type NativeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NativeChatRequest is the native POST /api/chat body.
type NativeChatRequest struct {
	Model    string          `json:"model"`
	Messages []NativeMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  *Options        `json:"options,omitempty"`
}

// NativeGenerateRequest is the native POST /api/generate body.
type NativeGenerateRequest struct {
	Model   string   `json:"model"`
	Prompt  string   `json:"prompt"`
	Stream  bool     `json:"stream"`
	Options *Options `json:"options,omitempty"`
}

// NativeChatResponse is one native /api/chat NDJSON line.
type NativeChatResponse struct {
	Model   string        `json:"model"`
	Message NativeMessage `json:"message"`
	Done    bool          `json:"done"`
}

// NativeGenerateResponse is one native /api/generate NDJSON line.
type NativeGenerateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// DecodeNativeChatResponse parses one NDJSON line of a chat response.
func DecodeNativeChatResponse(line []byte) (NativeChatResponse, error) {
	var r NativeChatResponse
	err := json.Unmarshal(line, &r)
	return r, err
}

// DecodeNativeGenerateResponse parses one NDJSON line of a generate
// response.
func DecodeNativeGenerateResponse(line []byte) (NativeGenerateResponse, error) {
	var r NativeGenerateResponse
	err := json.Unmarshal(line, &r)
	return r, err
}
