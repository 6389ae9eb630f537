// Package hook runs user callbacks around a route invocation.
package hook

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/broutes/pkg/meta"
	"github.com/okian/broutes/pkg/response"
)

// Hook events.
const (
	EventRequest  = "request"
	EventResponse = "response"
)

// RequestFunc runs before a request is sent and may modify its metadata.
type RequestFunc func(ctx context.Context, method, url string, m *meta.Meta) error

// ResponseFunc runs once a response has been received.
type ResponseFunc func(ctx context.Context, resp *response.Response) error

// Set holds request and response hooks. The zero value is ready to use.
type Set struct {
	mu       sync.RWMutex
	request  []RequestFunc
	response []ResponseFunc
}

// Add registers fn for event. fn must be a RequestFunc for "request" and a
// ResponseFunc for "response" (plain funcs with those signatures work too).
func (s *Set) Add(event string, fn any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch event {
	case EventRequest:
		var f RequestFunc
		switch t := fn.(type) {
		case RequestFunc:
			f = t
		case func(context.Context, string, string, *meta.Meta) error:
			f = t
		}
		if f == nil {
			return fmt.Errorf("%w: %T is not a request hook", ErrInvalidHook, fn)
		}
		s.request = append(s.request, f)
	case EventResponse:
		var f ResponseFunc
		switch t := fn.(type) {
		case ResponseFunc:
			f = t
		case func(context.Context, *response.Response) error:
			f = t
		}
		if f == nil {
			return fmt.Errorf("%w: %T is not a response hook", ErrInvalidHook, fn)
		}
		s.response = append(s.response, f)
	default:
		return fmt.Errorf("%w: got %q", ErrInvalidEvent, event)
	}
	return nil
}

// ApplyRequest runs request hooks in order and stops at the first error.
func (s *Set) ApplyRequest(ctx context.Context, method, url string, m *meta.Meta) error {
	s.mu.RLock()
	hooks := append([]RequestFunc(nil), s.request...)
	s.mu.RUnlock()
	for _, h := range hooks {
		if err := h(ctx, method, url, m); err != nil {
			return err
		}
	}
	return nil
}

// ApplyResponse runs response hooks in order and stops at the first error.
func (s *Set) ApplyResponse(ctx context.Context, resp *response.Response) error {
	s.mu.RLock()
	hooks := append([]ResponseFunc(nil), s.response...)
	s.mu.RUnlock()
	for _, h := range hooks {
		if err := h(ctx, resp); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of hooks registered for event.
func (s *Set) Len(event string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch event {
	case EventRequest:
		return len(s.request)
	case EventResponse:
		return len(s.response)
	}
	return 0
}

// Merge returns a new Set with s's hooks followed by other's.
func (s *Set) Merge(other *Set) *Set {
	out := &Set{}
	for _, src := range []*Set{s, other} {
		if src == nil {
			continue
		}
		src.mu.RLock()
		out.request = append(out.request, src.request...)
		out.response = append(out.response, src.response...)
		src.mu.RUnlock()
	}
	return out
}
