package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sailsErrors "github.com/agentstation/sails/pkg/errors"
)

// TestFail tests the Fail helper function.
func TestFail(t *testing.T) {
	resp := Fail("TEST_ERROR", "Test error message", "Additional details")

	assert.Nil(t, resp.Data)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "TEST_ERROR", resp.Error.Code)
	assert.Equal(t, "Test error message", resp.Error.Message)
	assert.Equal(t, "Additional details", resp.Error.Details)
}

// TestOK tests the enveloped success helper.
func TestOK(t *testing.T) {
	w := httptest.NewRecorder()
	OK(w, map[string]int{"count": 42})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"data":{"count":42},"error":null}`, w.Body.String())
}

// TestRaw tests that raw bodies are not enveloped.
func TestRaw(t *testing.T) {
	w := httptest.NewRecorder()
	Raw(w, http.StatusOK, map[string]any{"id": "1", "name": "bob"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"id":"1","name":"bob"}`, w.Body.String())
}

// TestJSONP tests callback wrapping and sanitizing.
func TestJSONP(t *testing.T) {
	tests := []struct {
		name        string
		callback    string
		wantBody    string
		wantType    string
		wantNosniff bool
	}{
		{
			name:        "simple callback",
			callback:    "cb",
			wantBody:    `/**/ typeof cb === 'function' && cb({"id":"1"});`,
			wantType:    "text/javascript; charset=utf-8",
			wantNosniff: true,
		},
		{
			name:        "property path",
			callback:    "jQuery.handlers[0]",
			wantBody:    `/**/ typeof jQuery.handlers[0] === 'function' && jQuery.handlers[0]({"id":"1"});`,
			wantType:    "text/javascript; charset=utf-8",
			wantNosniff: true,
		},
		{
			name:        "unsafe characters stripped",
			callback:    "alert(1);cb",
			wantBody:    `/**/ typeof alert1cb === 'function' && alert1cb({"id":"1"});`,
			wantType:    "text/javascript; charset=utf-8",
			wantNosniff: true,
		},
		{
			name:     "empty callback falls back to json",
			callback: "();",
			wantBody: "{\"id\":\"1\"}\n",
			wantType: "application/json",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			JSONP(w, http.StatusOK, tt.callback, map[string]any{"id": "1"})

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.wantType, w.Header().Get("Content-Type"))
			assert.Equal(t, tt.wantBody, w.Body.String())
			if tt.wantNosniff {
				assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
			}
		})
	}
}

func TestJSONP_EscapesLineSeparators(t *testing.T) {
	w := httptest.NewRecorder()
	JSONP(w, http.StatusOK, "cb", map[string]any{"s": "a\u2028b\u2029c"})

	assert.Contains(t, w.Body.String(), `a\u2028b\u2029c`)
	assert.NotContains(t, w.Body.String(), "\u2028")
}

// TestErrorHelpers tests all error response helpers.
func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name           string
		fn             func(w http.ResponseWriter)
		expectedStatus int
		expectedCode   string
	}{
		{"BadRequest", func(w http.ResponseWriter) { BadRequest(w, "bad", "") }, http.StatusBadRequest, "BAD_REQUEST"},
		{"Unauthorized", func(w http.ResponseWriter) { Unauthorized(w, "no", "") }, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"NotFound", func(w http.ResponseWriter) { NotFound(w, "gone", "") }, http.StatusNotFound, "NOT_FOUND"},
		{"MethodNotAllowed", func(w http.ResponseWriter) { MethodNotAllowed(w, "DELETE") }, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED"},
		{"TooLarge", func(w http.ResponseWriter) { TooLarge(w, "1 MiB max") }, http.StatusRequestEntityTooLarge, "TOO_LARGE"},
		{"RateLimited", func(w http.ResponseWriter) { RateLimited(w, "slow down") }, http.StatusTooManyRequests, "RATE_LIMITED"},
		{"InternalError", func(w http.ResponseWriter) { InternalError(w, errors.New("boom")) }, http.StatusInternalServerError, "INTERNAL_ERROR"},
		{"ServerError", func(w http.ResponseWriter) { ServerError(w, "No instances returned from update.") }, http.StatusInternalServerError, "INTERNAL_ERROR"},
		{"ServiceUnavailable", func(w http.ResponseWriter) { ServiceUnavailable(w, "down") }, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.fn(w)

			assert.Equal(t, tt.expectedStatus, w.Code)
			var resp Response
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.expectedCode, resp.Error.Code)
		})
	}
}

func TestInternalErrorHidesDetails(t *testing.T) {
	w := httptest.NewRecorder()
	InternalError(w, errors.New("password=hunter2"))

	assert.NotContains(t, w.Body.String(), "hunter2")
}

// TestErrorFromType tests typed error mapping.
func TestErrorFromType(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedCode   string
	}{
		{"NotFoundError", sailsErrors.NewNotFoundError("user", "1"), http.StatusNotFound, "NOT_FOUND"},
		{"ValidationError", sailsErrors.NewValidationError("age", "x", "must be an integer"), http.StatusBadRequest, "BAD_REQUEST"},
		{"wrapped ValidationError", fmt.Errorf("update: %w", sailsErrors.NewValidationError("age", "x", "bad")), http.StatusBadRequest, "BAD_REQUEST"},
		{"Unauthorized", fmt.Errorf("token: %w", sailsErrors.ErrUnauthorized), http.StatusUnauthorized, "UNAUTHORIZED"},
		{"ParseError", sailsErrors.NewParseError("json", "", "unexpected end of input", errors.New("eof")), http.StatusBadRequest, "BAD_REQUEST"},
		{"TooLarge", fmt.Errorf("body: %w", sailsErrors.ErrTooLarge), http.StatusRequestEntityTooLarge, "TOO_LARGE"},
		{"Timeout", sailsErrors.ErrTimeout, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"},
		{"AdapterError", sailsErrors.NewAdapterError("sqlite", "update", "user", errors.New("locked")), http.StatusInternalServerError, "INTERNAL_ERROR"},
		{"Generic error", errors.New("generic error"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			ErrorFromType(w, tt.err)

			assert.Equal(t, tt.expectedStatus, w.Code)
			var resp Response
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.Nil(t, resp.Data)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.expectedCode, resp.Error.Code)
		})
	}
}

func TestValidationDetails(t *testing.T) {
	w := httptest.NewRecorder()
	ErrorFromType(w, sailsErrors.NewValidationError("age", "x", "must be an integer"))

	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "Validation failed", resp.Error.Message)
	assert.Equal(t, "validation failed for field age: must be an integer", resp.Error.Details)
}
