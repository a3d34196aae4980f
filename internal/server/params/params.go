// Package params merges request parameters from the route pattern, the
// request body and the query string.
package params

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/agentstation/sails/pkg/constants"
	"github.com/agentstation/sails/pkg/errors"
)

// Transports a request can arrive on.
const (
	TransportHTTP   = "http"
	TransportSocket = "socket"
)

type contextKey int

const socketKey contextKey = iota

// WithSocket marks ctx as belonging to a virtual request sent over the socket
// with the given client id.
func WithSocket(ctx context.Context, socketID string) context.Context {
	return context.WithValue(ctx, socketKey, socketID)
}

// SocketID returns the id of the socket that issued r, or "" for plain HTTP.
func SocketID(r *http.Request) string {
	id, _ := r.Context().Value(socketKey).(string)
	return id
}

// Transport returns TransportSocket for virtual socket requests and
// TransportHTTP otherwise.
func Transport(r *http.Request) string {
	if SocketID(r) != "" {
		return TransportSocket
	}
	return TransportHTTP
}

// Param looks up a single parameter: the route pattern first, then the body,
// then the query string. Missing parameters return "", and an unreadable
// body is skipped.
func Param(r *http.Request, name string) string {
	if v := r.PathValue(name); v != "" {
		return v
	}
	body, _ := Body(r)
	if v, ok := body[name]; ok && v != nil {
		return stringify(v)
	}
	return r.URL.Query().Get(name)
}

// All merges every parameter on r. Path values win over body values, which
// win over query values. It fails when Body does.
func All(r *http.Request) (map[string]any, error) {
	body, err := Body(r)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any)
	for k, vs := range r.URL.Query() {
		if len(vs) == 1 {
			out[k] = vs[0]
			continue
		}
		list := make([]any, len(vs))
		for i, v := range vs {
			list[i] = v
		}
		out[k] = list
	}
	for k, v := range body {
		out[k] = v
	}
	for _, name := range wildcards(r.Pattern) {
		if v := r.PathValue(name); v != "" {
			out[name] = v
		}
	}
	return out, nil
}

// Body decodes the request body as JSON or as a url-encoded form. The body is
// restored afterwards so it can be read again. A body over
// constants.MaxRequestBodySize fails with errors.ErrTooLarge and one that
// does not decode fails with an *errors.ParseError. An empty body is nil.
func Body(r *http.Request) (map[string]any, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, constants.MaxRequestBodySize+1))
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(raw))
	if err != nil {
		return nil, errors.WrapIO("read", "request body", err)
	}
	if len(raw) > constants.MaxRequestBodySize {
		return nil, fmt.Errorf("%w: limit is %d bytes", errors.ErrTooLarge, constants.MaxRequestBodySize)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" {
		values, err := url.ParseQuery(string(raw))
		if err != nil {
			return nil, errors.NewParseError("form", "", err.Error(), err)
		}
		out := make(map[string]any, len(values))
		for k, vs := range values {
			if len(vs) > 0 {
				out[k] = vs[len(vs)-1]
			}
		}
		return out, nil
	}

	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errors.NewParseError("json", "", err.Error(), err)
	}
	return out, nil
}

// wildcards extracts the {name} segments of a ServeMux pattern.
func wildcards(pattern string) []string {
	var names []string
	for {
		start := strings.IndexByte(pattern, '{')
		if start < 0 {
			return names
		}
		end := strings.IndexByte(pattern[start:], '}')
		if end < 0 {
			return names
		}
		name := strings.TrimSuffix(pattern[start+1:start+end], "...")
		if name != "$" && name != "" {
			names = append(names, name)
		}
		pattern = pattern[start+end+1:]
	}
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		b, _ := json.Marshal(t)
		return string(b)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
