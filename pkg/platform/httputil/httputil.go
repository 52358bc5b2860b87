// Package httputil holds the JSON envelope helpers shared by every handler.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "waterlily/pkg/domain-errors"
)

// CauseCoder is implemented by storage errors that carry a driver error code
// (SQLSTATE, MySQL error number, SQLite extended code).
type CauseCoder interface {
	CauseCode() string
}

// ErrorResponse is the envelope written for every failed request.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
	Cause            string `json:"cause,omitempty"`
	CauseCode        string `json:"cause_code,omitempty"`
}

// StatusFor maps a domain error code to an HTTP status.
func StatusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeAlreadySubmitted, dErrors.CodeMalformedInput:
		return http.StatusBadRequest
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden:
		return http.StatusForbidden
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// WriteError translates err into the JSON error envelope. Errors without a
// domain code are reported as internal errors with no description. The
// underlying cause is only exposed when debug is set.
func WriteError(w http.ResponseWriter, err error, debug bool) {
	code := dErrors.CodeOf(err)
	resp := ErrorResponse{Error: string(code)}
	var de *dErrors.Error
	if errors.As(err, &de) {
		resp.ErrorDescription = de.Message
		if debug && de.Err != nil {
			resp.Cause = de.Err.Error()
		}
	}
	if debug {
		var coder CauseCoder
		if errors.As(err, &coder) {
			resp.CauseCode = coder.CauseCode()
		}
	}
	WriteJSON(w, StatusFor(code), resp)
}

// WriteJSON encodes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
