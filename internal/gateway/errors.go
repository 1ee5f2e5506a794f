package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/cortexshield/llmguard/internal/scanner"
	"github.com/cortexshield/llmguard/internal/translate"
)

// errorKind names one of spec §7's error kinds, used for both HTTP status
// mapping and the Prometheus "kind" label.
type errorKind string

const (
	kindInputBlocked  errorKind = "input_blocked"
	kindOutputBlocked errorKind = "output_blocked"
	kindQueueFull     errorKind = "queue_full"
	kindUnavailable   errorKind = "upstream_unavailable"
	kindTimeout       errorKind = "upstream_timeout"
	kindUpstreamError errorKind = "upstream_error"
	kindIPDenied      errorKind = "ip_denied"
	kindBadRequest    errorKind = "bad_request"
)

var statusForKind = map[errorKind]int{
	kindInputBlocked:  http.StatusUnavailableForLegalReasons,
	kindOutputBlocked: http.StatusUnavailableForLegalReasons,
	kindQueueFull:     http.StatusServiceUnavailable,
	kindUnavailable:   http.StatusBadGateway,
	kindTimeout:       http.StatusGatewayTimeout,
	kindUpstreamError: http.StatusBadGateway,
	kindIPDenied:      http.StatusForbidden,
	kindBadRequest:    http.StatusBadRequest,
}

// openaiTypeForKind maps each errorKind to the OpenAI dialect's
// `error.type` field. Only actual scan blocks are labeled
// content_policy_violation; queue/upstream/request errors get the
// conventional OpenAI error types so a client's error-handling branch
// (rate limit vs. bad request vs. server error) doesn't misfire.
var openaiTypeForKind = map[errorKind]string{
	kindInputBlocked:  "content_policy_violation",
	kindOutputBlocked: "content_policy_violation",
	kindQueueFull:     "rate_limit_exceeded",
	kindUnavailable:   "server_error",
	kindTimeout:       "server_error",
	kindUpstreamError: "server_error",
	kindIPDenied:      "invalid_request_error",
	kindBadRequest:    "invalid_request_error",
}

// writeNativeError writes a non-streaming error body in the native
// dialect's error shape (spec §4.5: `{error, type, message, failed_scanners?}`).
func writeNativeError(w http.ResponseWriter, kind errorKind, message string, failed []scanner.FailedScanner) {
	status := statusForKind[kind]
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(translate.NativeErrorFrame{
		Done:           true,
		Error:          message,
		Type:           string(kind),
		Message:        message,
		FailedScanners: failed,
	})
}

// writeOpenAIError writes a non-streaming error body in the OpenAI
// dialect's error shape (spec §4.5: `{error:{message, type, code, failed_scanners?}}`).
func writeOpenAIError(w http.ResponseWriter, kind errorKind, message string, failed []scanner.FailedScanner) {
	status := statusForKind[kind]
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(translate.OpenAIErrorBody{
		Error: translate.OpenAIError{
			Message:        message,
			Type:           openaiTypeForKind[kind],
			Code:           string(kind),
			FailedScanners: failed,
		},
	})
}

// nativeTerminalFrame builds the single NDJSON terminal line emitted
// mid-stream on a violation (spec §4.6 step 1).
func nativeTerminalFrame(failed []scanner.FailedScanner) []byte {
	frame := translate.NativeErrorFrame{
		Done:           true,
		Error:          "content_policy_violation",
		Type:           string(kindOutputBlocked),
		Message:        "response blocked by content-safety policy",
		FailedScanners: failed,
	}
	raw, _ := json.Marshal(frame)
	return append(raw, '\n')
}

// openaiTerminalFrame builds the SSE `data:` frame (followed by `[DONE]`)
// emitted mid-stream on a violation.
func openaiTerminalFrame(failed []scanner.FailedScanner) []byte {
	body := translate.OpenAIErrorBody{
		Error: translate.OpenAIError{
			Message:        "response blocked by content-safety policy",
			Type:           "content_policy_violation",
			Code:           string(kindOutputBlocked),
			FailedScanners: failed,
		},
	}
	raw, _ := json.Marshal(body)
	return []byte("data: " + string(raw) + "\n\ndata: [DONE]\n\n")
}
