// Package response writes HTTP responses for the sails server. Errors use a
// consistent envelope with an error field; blueprint actions answer with the
// bare record as JSON or, for JSONP requests, wrapped in a callback.
package response

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"regexp"

	"github.com/agentstation/sails/pkg/errors"
)

// Response represents the standardized API response structure.
type Response struct {
	Data  any    `json:"data"`
	Error *Error `json:"error"`
}

// Error represents an API error with code, message, and optional details.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Success creates a successful response with data.
func Success(data any) Response {
	return Response{Data: data}
}

// Fail creates an error response.
func Fail(code, message, details string) Response {
	return Response{
		Error: &Error{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// JSON writes an enveloped JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, resp Response) {
	Raw(w, status, resp)
}

// Raw writes v as JSON without the envelope.
func Raw(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Encoding errors are ignored as headers are already sent (best effort)
	_ = json.NewEncoder(w).Encode(v)
}

var callbackUnsafe = regexp.MustCompile(`[^\[\]\w$.]`)

// SanitizeCallback strips every character that cannot appear in a JavaScript
// property path from a JSONP callback name.
func SanitizeCallback(name string) string {
	return callbackUnsafe.ReplaceAllString(name, "")
}

// JSONP writes v wrapped in a call to callback. An empty callback, after
// sanitizing, falls back to plain JSON.
func JSONP(w http.ResponseWriter, status int, callback string, v any) {
	callback = SanitizeCallback(callback)
	if callback == "" {
		Raw(w, status, v)
		return
	}

	// json.Marshal escapes U+2028 and U+2029, which are not valid in
	// JavaScript string literals.
	body, err := json.Marshal(v)
	if err != nil {
		InternalError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = w.Write([]byte("/**/ typeof " + callback + " === 'function' && " + callback + "(" + string(body) + ");"))
}

// OK writes a successful response with 200 status.
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, Success(data))
}

// BadRequest writes a 400 error response.
func BadRequest(w http.ResponseWriter, message, details string) {
	JSON(w, http.StatusBadRequest, Fail("BAD_REQUEST", message, details))
}

// Unauthorized writes a 401 error response.
func Unauthorized(w http.ResponseWriter, message, details string) {
	JSON(w, http.StatusUnauthorized, Fail("UNAUTHORIZED", message, details))
}

// NotFound writes a 404 error response.
func NotFound(w http.ResponseWriter, message, details string) {
	JSON(w, http.StatusNotFound, Fail("NOT_FOUND", message, details))
}

// MethodNotAllowed writes a 405 error response.
func MethodNotAllowed(w http.ResponseWriter, method string) {
	JSON(w, http.StatusMethodNotAllowed, Fail(
		"METHOD_NOT_ALLOWED",
		"Method not allowed",
		"Method "+method+" is not supported for this endpoint",
	))
}

// TooLarge writes a 413 error response.
func TooLarge(w http.ResponseWriter, details string) {
	JSON(w, http.StatusRequestEntityTooLarge, Fail("TOO_LARGE", "Request body too large", details))
}

// RateLimited writes a 429 error response.
func RateLimited(w http.ResponseWriter, message string) {
	JSON(w, http.StatusTooManyRequests, Fail(
		"RATE_LIMITED",
		"Rate limit exceeded",
		message,
	))
}

// InternalError writes a 500 error response. The error itself is not exposed;
// callers log it.
func InternalError(w http.ResponseWriter, _ error) {
	ServerError(w, "Internal server error")
}

// ServerError writes a 500 error response with a fixed message.
func ServerError(w http.ResponseWriter, message string) {
	JSON(w, http.StatusInternalServerError, Fail(
		"INTERNAL_ERROR",
		message,
		"An unexpected error occurred",
	))
}

// ServiceUnavailable writes a 503 error response.
func ServiceUnavailable(w http.ResponseWriter, message string) {
	JSON(w, http.StatusServiceUnavailable, Fail(
		"SERVICE_UNAVAILABLE",
		"Service unavailable",
		message,
	))
}

// ErrorFromType maps typed errors to appropriate HTTP responses.
func ErrorFromType(w http.ResponseWriter, err error) {
	var (
		notFound   *errors.NotFoundError
		validation *errors.ValidationError
		parse      *errors.ParseError
	)
	switch {
	case errors.IsTooLarge(err):
		TooLarge(w, err.Error())
	case stderrors.As(err, &parse):
		BadRequest(w, "Malformed request body", parse.Error())
	case stderrors.As(err, &validation):
		BadRequest(w, "Validation failed", validation.Error())
	case stderrors.As(err, &notFound):
		NotFound(w, notFound.Error(), "")
	case errors.IsUnauthorized(err):
		Unauthorized(w, err.Error(), "")
	case errors.IsTimeout(err):
		ServiceUnavailable(w, "The request timed out")
	default:
		InternalError(w, err)
	}
}
