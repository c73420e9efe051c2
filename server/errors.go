package server

import (
	"encoding/json"
	"net/http"

	"ghibli_backend/stylize"
)

// StatusClientClosedRequest is logged when the client disconnects before
// the result is ready. The client never sees it.
const StatusClientClosedRequest = 499

// Client-facing details for the fixed error responses.
const (
	DetailNotFound         = "Not Found"
	DetailNoImage          = "No image available"
	DetailMethodNotAllowed = "Method Not Allowed"
	DetailShuttingDown     = "Server is shutting down"
)

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// statusForKind maps a stylization failure to its HTTP status.
func statusForKind(kind stylize.Kind) int {
	switch kind {
	case stylize.KindBadRequest:
		return http.StatusBadRequest
	case stylize.KindTooLarge:
		return http.StatusRequestEntityTooLarge
	case stylize.KindModelUnavailable, stylize.KindBusy:
		return http.StatusServiceUnavailable
	case stylize.KindTimeout:
		return http.StatusGatewayTimeout
	case stylize.KindCanceled:
		return StatusClientClosedRequest
	default:
		// Undecodable uploads are reported as 500 as well; existing
		// clients only distinguish success from failure.
		return http.StatusInternalServerError
	}
}

func writeStylizeError(w http.ResponseWriter, err error) {
	writeError(w, statusForKind(stylize.KindOf(err)), err.Error())
}

func writeError(w http.ResponseWriter, status int, detail string) {
	if detail == "" {
		detail = http.StatusText(status)
	}
	writeJSON(w, status, ErrorResponse{Detail: detail})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Best effort: headers are already written.
	_ = json.NewEncoder(w).Encode(data)
}
