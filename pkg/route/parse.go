package route

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/okian/broutes/pkg/args"
	"github.com/okian/broutes/pkg/hook"
	"github.com/okian/broutes/pkg/logger"
	"github.com/okian/broutes/pkg/meta"
)

// Request argument keys with special handling.
const (
	KeyURL             = "url"
	KeyURLPlaceholders = "url_placeholders"
)

// commonKeys are accepted for every method.
var commonKeys = []string{ //nolint:gochecknoglobals // read-only list
	"url", "headers", "cookies", "auth", "timeout", "allow_redirects",
	"proxies", "verify", "stream", "cert",
}

// methodKeys are accepted in addition to commonKeys.
var methodKeys = map[string][]string{ //nolint:gochecknoglobals // read-only lookup
	"GET":     {"params"},
	"OPTIONS": {"params"},
	"HEAD":    {"params"},
	"POST":    {"data", "json", "files"},
	"PUT":     {"data", "json", "files"},
	"PATCH":   {"data", "json", "files"},
	"DELETE":  {},
}

// AllowedKeys returns the request argument keys method accepts, sorted.
func AllowedKeys(method string) []string {
	keys := append(slices.Clone(commonKeys), methodKeys[strings.ToUpper(method)]...)
	slices.Sort(keys)
	return keys
}

// ParsedRequestArgs merges the route, method and scenario layers with kwargs,
// resolves the URL and checks the keys against method. Nothing is sent.
func (r *Route) ParsedRequestArgs(ctx context.Context, method string, kwargs ...args.Map) (args.Map, error) {
	a, _, err := r.parse(ctx, method, kwargs)
	return a, err
}

func (r *Route) parse(ctx context.Context, method string, kwargs []args.Map) (args.Map, *Call, error) {
	method = strings.ToUpper(method)
	if !meta.ValidMethod(method) {
		return nil, nil, fmt.Errorf("%w: %s", ErrInvalidMethod, method)
	}

	call := &Call{
		Ctx:    ctx,
		Method: method,
		Route:  r,
		hooks:  &hook.Set{},
		after:  &hook.After{},
	}

	layers := make([]args.Map, 0, 3+len(kwargs))
	for _, l := range []struct {
		scope string
		fn    ArgsFunc
	}{
		{hook.ScopeRoute, r.routeArgs},
		{hook.ScopeMethod, r.methodArgs[method]},
		{hook.ScopeScenario, r.scenario},
	} {
		if l.fn == nil {
			continue
		}
		call.scope = l.scope
		a := args.New(nil)
		if err := l.fn(call, a); err != nil {
			return nil, nil, fmt.Errorf("%w: %s: %w", ErrLayer, l.scope, err)
		}
		m, err := a.ToMap()
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %s: %w", ErrLayer, l.scope, err)
		}
		layers = append(layers, m)
	}
	call.scope = ""
	layers = append(layers, kwargs...)

	merged, err := args.Merge(layers...)
	if err != nil {
		return nil, nil, err
	}

	placeholders, err := popPlaceholders(merged)
	if err != nil {
		return nil, nil, err
	}
	if _, ok := merged[KeyURL]; !ok {
		if r.endpoint == "" {
			r.log.Error(ctx, "endpoint missing")
			return nil, nil, ErrEndpointMissing
		}
		u, err := formatURL(r.baseURL+r.endpoint, placeholders)
		if err != nil {
			return nil, nil, err
		}
		merged[KeyURL] = u
	}

	if err := checkKeys(method, merged); err != nil {
		r.log.Error(ctx, "invalid request args", logger.Error(err))
		return nil, nil, err
	}
	return merged, call, nil
}

func popPlaceholders(m args.Map) (args.Map, error) {
	raw, ok := m[KeyURLPlaceholders]
	if !ok {
		return nil, nil
	}
	delete(m, KeyURLPlaceholders)
	switch t := raw.(type) {
	case nil:
		return nil, nil
	case args.Map:
		return t, nil
	}
	return nil, fmt.Errorf("%w: url_placeholders must be a mapping, got %T", ErrPlaceholder, raw)
}

// formatURL replaces {name} with placeholders[name]. "{{" and "}}" produce
// literal braces.
func formatURL(tmpl string, placeholders args.Map) (string, error) {
	var b strings.Builder
	for i := 0; i < len(tmpl); i++ {
		ch := tmpl[i]
		switch {
		case ch == '{' && i+1 < len(tmpl) && tmpl[i+1] == '{':
			b.WriteByte('{')
			i++
		case ch == '}' && i+1 < len(tmpl) && tmpl[i+1] == '}':
			b.WriteByte('}')
			i++
		case ch == '{':
			end := strings.IndexByte(tmpl[i:], '}')
			if end < 0 {
				return "", fmt.Errorf("%w: unmatched '{' in %q", ErrPlaceholder, tmpl)
			}
			name := tmpl[i+1 : i+end]
			v, ok := placeholders[name]
			if !ok {
				return "", fmt.Errorf("%w: missing value for '%s' in %q", ErrPlaceholder, name, tmpl)
			}
			b.WriteString(fmt.Sprint(v))
			i += end
		case ch == '}':
			return "", fmt.Errorf("%w: single '}' in %q", ErrPlaceholder, tmpl)
		default:
			b.WriteByte(ch)
		}
	}
	return b.String(), nil
}

func checkKeys(method string, m args.Map) error {
	allowed := AllowedKeys(method)
	var invalid []string
	for k := range m {
		if !slices.Contains(allowed, k) {
			invalid = append(invalid, k)
		}
	}
	if len(invalid) == 0 {
		return nil
	}
	slices.Sort(invalid)
	return &ArgumentsError{Method: method, Keys: invalid}
}

func sortedNames[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
