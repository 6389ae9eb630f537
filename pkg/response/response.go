// Package response wraps an HTTP response with its buffered body and timing.
package response

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// Response is the result of invoking a route.
type Response struct {
	StatusCode int
	Status     string
	Method     string
	URL        string
	Header     http.Header
	Cookies    map[string]string
	Elapsed    time.Duration

	mu      sync.Mutex
	content []byte
	stream  io.ReadCloser
	readErr error
}

// FromHTTP builds a Response from resp. Unless stream is set the body is read
// fully and closed. Streaming responses keep the body open: it can be consumed
// through Stream, or read once on the first Content, Text or JSON call.
func FromHTTP(resp *http.Response, elapsed time.Duration, stream bool) (*Response, error) {
	if resp == nil {
		return nil, ErrNilResponse
	}
	r := &Response{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Header:     resp.Header.Clone(),
		Cookies:    make(map[string]string),
		Elapsed:    elapsed,
	}
	if resp.Request != nil {
		r.Method = resp.Request.Method
		if resp.Request.URL != nil {
			r.URL = resp.Request.URL.String()
		}
	}
	for _, c := range resp.Cookies() {
		r.Cookies[c.Name] = c.Value
	}

	if stream {
		r.stream = resp.Body
		return r, nil
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReadBody, err)
	}
	r.content = body
	return r, nil
}

// New builds an in-memory Response, mainly for tests and hooks.
func New(status int, header http.Header, body []byte) *Response {
	if header == nil {
		header = http.Header{}
	}
	return &Response{
		StatusCode: status,
		Status:     fmt.Sprintf("%d %s", status, http.StatusText(status)),
		Header:     header,
		Cookies:    map[string]string{},
		content:    body,
	}
}

// Content returns the body. A streamed body is read and closed on the first
// call; later calls return the same bytes.
func (r *Response) Content() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.load()
	return r.content
}

// load reads the open stream, if any. Callers hold mu.
func (r *Response) load() {
	if r.stream == nil {
		return
	}
	body, err := io.ReadAll(r.stream)
	_ = r.stream.Close()
	r.stream = nil
	r.content = body
	if err != nil {
		r.readErr = fmt.Errorf("%w: %w", ErrReadBody, err)
	}
}

// Err returns the error from reading a streamed body, if any.
func (r *Response) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.readErr
}

// Text returns the body as a string.
func (r *Response) Text() string { return string(r.Content()) }

// JSON decodes the body into v.
func (r *Response) JSON(v any) error {
	body := r.Content()
	if err := r.Err(); err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %w", ErrDecodeJSON, err)
	}
	return nil
}

// JSONValue decodes the body into a generic value.
func (r *Response) JSONValue() (any, error) {
	var v any
	if err := r.JSON(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// Headers flattens Header to the first value per canonical key.
func (r *Response) Headers() map[string]string {
	out := make(map[string]string, len(r.Header))
	for k, v := range r.Header {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

// OK reports a status below 400.
func (r *Response) OK() bool { return r.StatusCode < http.StatusBadRequest }

// Stream returns the open body of a streaming response. It is nil for buffered
// responses and once the body was read through Content or released by Close.
func (r *Response) Stream() io.ReadCloser {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stream
}

// Close releases a streaming body that was not read. It is a no-op otherwise.
func (r *Response) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stream == nil {
		return nil
	}
	err := r.stream.Close()
	r.stream = nil
	return err
}

func (r *Response) String() string {
	return fmt.Sprintf("<Response [%d]>", r.StatusCode)
}
