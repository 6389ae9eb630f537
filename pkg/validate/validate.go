// Package validate checks responses against expectations.
package validate

import (
	"errors"
	"net/http"
	"sort"
	"sync"

	"github.com/okian/broutes/pkg/response"
)

// Validation kinds, used as metric labels.
const (
	KindStatusCode = "status_code"
	KindHeader     = "header"
)

// Validator checks a response.
type Validator interface {
	Validate(resp *response.Response) error
}

// Func adapts a function to Validator.
type Func func(resp *response.Response) error

func (f Func) Validate(resp *response.Response) error { return f(resp) }

// StatusCode expects an exact status code.
type StatusCode struct {
	Expected int
}

func (v StatusCode) Validate(resp *response.Response) error {
	if resp.StatusCode != v.Expected {
		return newStatusError(v.Expected, resp.StatusCode)
	}
	return nil
}

// Header expects each header to carry the given value.
type Header struct {
	Expected map[string]string
}

func (v Header) Validate(resp *response.Response) error {
	keys := make([]string, 0, len(v.Expected))
	for k := range v.Expected {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		want := v.Expected[k]
		if got := resp.Header.Get(http.CanonicalHeaderKey(k)); got != want {
			return newHeaderError(k, want, got)
		}
	}
	return nil
}

// Manager applies a list of validators. It is enabled by default.
type Manager struct {
	mu         sync.RWMutex
	validators []Validator
	disabled   bool
}

// NewManager returns a Manager holding vs.
func NewManager(vs ...Validator) *Manager {
	m := &Manager{}
	for _, v := range vs {
		m.Add(v)
	}
	return m
}

// Add appends v. Nil validators are ignored.
func (m *Manager) Add(v Validator) {
	if v == nil {
		return
	}
	m.mu.Lock()
	m.validators = append(m.validators, v)
	m.mu.Unlock()
}

// Apply runs every validator and joins their failures. Disabled managers
// accept any response.
func (m *Manager) Apply(resp *response.Response) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.disabled {
		return nil
	}
	var errs []error
	for _, v := range m.validators {
		if err := v.Validate(resp); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) Enable() {
	m.mu.Lock()
	m.disabled = false
	m.mu.Unlock()
}

func (m *Manager) Disable() {
	m.mu.Lock()
	m.disabled = true
	m.mu.Unlock()
}

// Enabled reports whether Apply checks responses.
func (m *Manager) Enabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.disabled
}

// Len returns the number of validators.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.validators)
}

// Clone copies the validator list and enabled flag.
func (m *Manager) Clone() *Manager {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return &Manager{
		validators: append([]Validator(nil), m.validators...),
		disabled:   m.disabled,
	}
}

// Failures extracts every *ValidationError from err.
func Failures(err error) []*ValidationError {
	if err == nil {
		return nil
	}
	var out []*ValidationError
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			out = append(out, Failures(e)...)
		}
		return out
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		out = append(out, ve)
	}
	return out
}
