package server

import (
	"context"
	"io"
	"net/http"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Request is the framework-supplied view of an incoming request.
type Request struct {
	raw    *http.Request
	params map[string]string
}

func newRequest(r *http.Request) *Request {
	return &Request{raw: r, params: Params(r)}
}

// Raw returns the underlying *http.Request.
func (r *Request) Raw() *http.Request {
	return r.raw
}

// Context returns the request context.
func (r *Request) Context() context.Context {
	return r.raw.Context()
}

// Method returns the HTTP method.
func (r *Request) Method() string {
	return r.raw.Method
}

// Path returns the request URL path.
func (r *Request) Path() string {
	return r.raw.URL.Path
}

// Param returns a path parameter or "".
func (r *Request) Param(name string) string {
	return r.params[name]
}

// Query returns a query-string value or "".
func (r *Request) Query(name string) string {
	return r.raw.URL.Query().Get(name)
}

// Header returns a request header value.
func (r *Request) Header(name string) string {
	return r.raw.Header.Get(name)
}

// ID returns the request ID assigned by the RequestID middleware.
func (r *Request) ID() string {
	return RequestIDFromContext(r.raw.Context())
}

// Decode reads the JSON body into v.
func (r *Request) Decode(v any) error {
	if r.raw.Body == nil {
		return io.EOF
	}

	defer r.raw.Body.Close()

	return json.NewDecoder(r.raw.Body).Decode(v)
}
