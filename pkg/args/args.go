// Package args holds request arguments as nested, auto-vivifying maps and
// merges argument layers with per-key merge strategies.
package args

import (
	"fmt"
	"sort"
	"strings"
)

// Map is the plain form of request arguments.
type Map = map[string]any

// reservedKeys cannot be converted back to a plain map.
var reservedKeys = map[string]struct{}{"items": {}, "keys": {}} //nolint:gochecknoglobals // read-only lookup

// Args is a nested argument dictionary. Nested maps are stored as child *Args
// so that callers can build deep structures without creating each level:
//
//	a := args.New(nil)
//	a.Child("params").Child("userDetails").Set("DOB", "29/02/1996")
//
// Args is not safe for concurrent use.
type Args struct {
	data map[string]any
}

// New wraps m. Nested maps are wrapped recursively; m itself is not retained.
func New(m Map) *Args {
	a := &Args{data: make(map[string]any, len(m))}
	for k, v := range m {
		a.data[k] = wrap(v)
	}
	return a
}

func wrap(v any) any {
	switch t := v.(type) {
	case *Args:
		return t
	case map[string]any:
		return New(t)
	case map[string]string:
		m := make(Map, len(t))
		for k, s := range t {
			m[k] = s
		}
		return New(m)
	default:
		return v
	}
}

// Child returns the nested Args stored at key, creating it when the key is
// missing or holds a non-mapping value.
func (a *Args) Child(key string) *Args {
	if c, ok := a.data[key].(*Args); ok {
		return c
	}
	c := New(nil)
	a.data[key] = c
	return c
}

// Set stores v at key and returns a for chaining. Maps are wrapped.
func (a *Args) Set(key string, v any) *Args {
	a.data[key] = wrap(v)
	return a
}

// SetPath stores v at a dotted path, creating intermediate children.
func (a *Args) SetPath(path string, v any) *Args {
	parts := strings.Split(path, ".")
	cur := a
	for _, p := range parts[:len(parts)-1] {
		cur = cur.Child(p)
	}
	cur.Set(parts[len(parts)-1], v)
	return a
}

// Update sets every key of m on a.
func (a *Args) Update(m Map) *Args {
	for k, v := range m {
		a.Set(k, v)
	}
	return a
}

// Value returns the raw value at key. Nested values are returned as *Args.
func (a *Args) Value(key string) (any, bool) {
	v, ok := a.data[key]
	return v, ok
}

// Has reports whether key is present.
func (a *Args) Has(key string) bool {
	_, ok := a.data[key]
	return ok
}

// Delete removes key.
func (a *Args) Delete(key string) {
	delete(a.data, key)
}

// Keys returns the keys in sorted order.
func (a *Args) Keys() []string {
	keys := make([]string, 0, len(a.data))
	for k := range a.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of keys at this level.
func (a *Args) Len() int { return len(a.data) }

// ToMap converts a to plain nested maps. It fails with ErrReservedKey when any
// level holds the key "items" or "keys".
func (a *Args) ToMap() (Map, error) {
	out := make(Map, len(a.data))
	for k, v := range a.data {
		if _, reserved := reservedKeys[k]; reserved {
			return nil, fmt.Errorf("%w: found %q", ErrReservedKey, k)
		}
		if c, ok := v.(*Args); ok {
			m, err := c.ToMap()
			if err != nil {
				return nil, err
			}
			out[k] = m
			continue
		}
		out[k] = v
	}
	return out, nil
}

// Clone returns a deep copy.
func (a *Args) Clone() *Args {
	c := New(nil)
	for k, v := range a.data {
		if child, ok := v.(*Args); ok {
			c.data[k] = child.Clone()
			continue
		}
		c.data[k] = copyValue(v)
	}
	return c
}

func (a *Args) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range a.Keys() {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%q: %v", k, a.data[k])
	}
	b.WriteByte('}')
	return b.String()
}
