package hook

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// After hook scopes, in execution order.
const (
	ScopeRoute    = "route"
	ScopeMethod   = "method"
	ScopeScenario = "scenario"
)

// Scopes lists the valid after-hook scopes in execution order.
var Scopes = []string{ScopeRoute, ScopeMethod, ScopeScenario} //nolint:gochecknoglobals // read-only list

// AfterFunc runs after a response has been received.
type AfterFunc func(ctx context.Context) error

// After holds after hooks per scope.
type After struct {
	mu    sync.Mutex
	hooks map[string][]AfterFunc
}

// Set replaces the hooks of scope.
func (a *After) Set(scope string, fns ...AfterFunc) error {
	if !validScope(scope) {
		return fmt.Errorf("%w: scope: '%s' is not a valid hook scope. valid scopes: %s",
			ErrInvalidScope, scope, strings.Join(Scopes, ", "))
	}
	for i, fn := range fns {
		if fn == nil {
			return fmt.Errorf("%w: after hook %d for scope '%s' is nil", ErrInvalidHook, i, scope)
		}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.hooks == nil {
		a.hooks = make(map[string][]AfterFunc)
	}
	a.hooks[scope] = append([]AfterFunc(nil), fns...)
	return nil
}

// Run executes route, then method, then scenario hooks and stops at the
// first error.
func (a *After) Run(ctx context.Context) error {
	a.mu.Lock()
	var ordered []AfterFunc
	for _, scope := range Scopes {
		ordered = append(ordered, a.hooks[scope]...)
	}
	a.mu.Unlock()
	for _, fn := range ordered {
		if err := fn(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Reset clears every scope.
func (a *After) Reset() {
	a.mu.Lock()
	a.hooks = nil
	a.mu.Unlock()
}

// Len returns the number of hooks across all scopes.
func (a *After) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, hs := range a.hooks {
		n += len(hs)
	}
	return n
}

func validScope(scope string) bool {
	for _, s := range Scopes {
		if s == scope {
			return true
		}
	}
	return false
}
