package translate

import "strings"

// NativeEmbedRequest is the native POST /api/embed body. Input may be a
// single string or a list of strings on the wire; callers that need the
// list form should decode the raw body themselves and only use this type
// for the single-string path the gateway scans and forwards.
type NativeEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// NativeEmbedResponse is the native /api/embed response.
type NativeEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float64 `json:"embeddings"`
}

// OpenAIEmbeddingsRequest is the POST /v1/embeddings body.
type OpenAIEmbeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// EmbeddingsRequestToNative converts an OpenAI embeddings request into the
// native embed request.
func EmbeddingsRequestToNative(req OpenAIEmbeddingsRequest) NativeEmbedRequest {
	return NativeEmbedRequest{Model: req.Model, Input: req.Input}
}

// EmbedInputText concatenates embedding inputs for scanning, one per line.
func EmbedInputText(input []string) string {
	return strings.Join(input, "\n")
}

// OpenAIEmbeddingObject is one vector in an embeddings response.
type OpenAIEmbeddingObject struct {
	Object    string    `json:"object"`
	Index     int       `json:"index"`
	Embedding []float64 `json:"embedding"`
}

// OpenAIEmbeddingsResponse is the POST /v1/embeddings response body.
type OpenAIEmbeddingsResponse struct {
	Object string                  `json:"object"`
	Model  string                  `json:"model"`
	Data   []OpenAIEmbeddingObject `json:"data"`
	Usage  OpenAIUsage             `json:"usage"`
}

// EmbeddingsResponseFromNative wraps a native embed response in the OpenAI
// embeddings shape.
func EmbeddingsResponseFromNative(native NativeEmbedResponse) OpenAIEmbeddingsResponse {
	data := make([]OpenAIEmbeddingObject, len(native.Embeddings))
	for i, vec := range native.Embeddings {
		data[i] = OpenAIEmbeddingObject{Object: "embedding", Index: i, Embedding: vec}
	}
	return OpenAIEmbeddingsResponse{
		Object: "list",
		Model:  native.Model,
		Data:   data,
	}
}

// NativeModelInfo is one entry of a native GET /api/tags response.
type NativeModelInfo struct {
	Name string `json:"name"`
}

// NativeTagsResponse is the native GET /api/tags response body.
type NativeTagsResponse struct {
	Models []NativeModelInfo `json:"models"`
}

// OpenAIModelObject is one entry of a GET /v1/models response.
type OpenAIModelObject struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// OpenAIModelsResponse is the GET /v1/models response body.
type OpenAIModelsResponse struct {
	Object string              `json:"object"`
	Data   []OpenAIModelObject `json:"data"`
}

// ModelsResponseFromNative maps a native tags list into the OpenAI models
// list shape. created is caller-supplied since the native dialect does not
// expose a model creation timestamp.
func ModelsResponseFromNative(native NativeTagsResponse, created int64) OpenAIModelsResponse {
	data := make([]OpenAIModelObject, len(native.Models))
	for i, m := range native.Models {
		data[i] = OpenAIModelObject{ID: m.Name, Object: "model", Created: created, OwnedBy: "library"}
	}
	return OpenAIModelsResponse{Object: "list", Data: data}
}
