package server

import (
	"net/http"
)

// Reply writes the response for a route handler.
type Reply struct {
	w      http.ResponseWriter
	status int
	sent   bool
}

func newReply(w http.ResponseWriter) *Reply {
	return &Reply{w: w, status: http.StatusOK}
}

// Status sets the status code used by the next write.
func (r *Reply) Status(code int) *Reply {
	r.status = code

	return r
}

// Header sets a response header.
func (r *Reply) Header(key, value string) *Reply {
	r.w.Header().Set(key, value)

	return r
}

// StatusCode returns the status code that was or will be written.
func (r *Reply) StatusCode() int {
	return r.status
}

// Sent reports whether the response head has been written.
func (r *Reply) Sent() bool {
	return r.sent
}

// Writer returns the underlying response writer.
func (r *Reply) Writer() http.ResponseWriter {
	return r.w
}

// Send writes v. Strings and byte slices are written as text, anything else
// is encoded as JSON.
func (r *Reply) Send(v any) error {
	var (
		body        []byte
		contentType string
	)

	switch val := v.(type) {
	case string:
		body, contentType = []byte(val), "text/plain; charset=utf-8"
	case []byte:
		body, contentType = val, "application/octet-stream"
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return err
		}

		body, contentType = encoded, "application/json; charset=utf-8"
	}

	if r.w.Header().Get("Content-Type") == "" {
		r.w.Header().Set("Content-Type", contentType)
	}

	r.writeHead()

	_, err := r.w.Write(body)

	return err
}

// Chunk streams an HTML fragment and flushes it to the client.
func (r *Reply) Chunk(s string) error {
	if !r.sent {
		r.w.Header().Set("Content-Type", "text/html; charset=UTF-8")
	}

	r.writeHead()

	if _, err := r.w.Write([]byte(s)); err != nil {
		return err
	}

	if f, ok := r.w.(http.Flusher); ok {
		f.Flush()
	}

	return nil
}

// End writes the status without a body if nothing was sent yet.
func (r *Reply) End() {
	r.writeHead()
}

func (r *Reply) writeHead() {
	if r.sent {
		return
	}

	r.sent = true
	r.w.WriteHeader(r.status)
}
