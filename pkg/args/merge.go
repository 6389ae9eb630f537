package args

import (
	"fmt"
	"sort"
	"strings"
)

// StrategyKey is the marker a mapping uses to choose how it merges with the
// mapping already present under the same key.
const StrategyKey = "_merge_strategy"

// Merge strategies.
const (
	DeepMerge = "deep_merge"
	Replace   = "replace"
	Remove    = "remove"
)

// ValidStrategies lists the accepted StrategyKey values.
var ValidStrategies = []string{DeepMerge, Replace, Remove} //nolint:gochecknoglobals // read-only list

// Merge combines argument layers from lowest to highest precedence.
//
// Scalars in later layers overwrite earlier ones. When both sides are
// mappings, the later mapping's StrategyKey decides: deep_merge (default)
// recurses, replace substitutes the mapping, remove drops the key. Strategy
// markers never appear in the result and inputs are not modified.
func Merge(layers ...Map) (Map, error) {
	merged := make(Map)
	for _, layer := range layers {
		if err := mergeInto(merged, layer); err != nil {
			return nil, err
		}
	}
	return merged, nil
}

// MergeArgs is Merge over *Args layers. Nil layers are skipped.
func MergeArgs(layers ...*Args) (Map, error) {
	maps := make([]Map, 0, len(layers))
	for _, l := range layers {
		if l == nil {
			continue
		}
		m, err := l.ToMap()
		if err != nil {
			return nil, err
		}
		maps = append(maps, m)
	}
	return Merge(maps...)
}

func mergeInto(dst, src Map) error {
	keys := make([]string, 0, len(src))
	for k := range src {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value, err := plain(src[key])
		if err != nil {
			return err
		}

		existing, exists := dst[key].(Map)
		incoming, isMap := value.(Map)
		if exists && isMap {
			strategy, err := strategyOf(incoming)
			if err != nil {
				return err
			}
			switch strategy {
			case DeepMerge:
				body := make(Map, len(incoming))
				for k, v := range incoming {
					if k != StrategyKey {
						body[k] = v
					}
				}
				m, err := Merge(existing, body)
				if err != nil {
					return err
				}
				dst[key] = m
			case Replace:
				dst[key] = stripMarkers(incoming)
			case Remove:
				delete(dst, key)
			}
			continue
		}

		if key == StrategyKey {
			continue
		}
		if isMap {
			dst[key] = stripMarkers(incoming)
			continue
		}
		dst[key] = copyValue(value)
	}
	return nil
}

func strategyOf(m Map) (string, error) {
	raw, ok := m[StrategyKey]
	if !ok {
		return DeepMerge, nil
	}
	s, _ := raw.(string)
	for _, valid := range ValidStrategies {
		if s == valid {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: '%v'. valid merge strategies: %s",
		ErrInvalidMergeStrategy, raw, strings.Join(ValidStrategies, ", "))
}

// stripMarkers deep-copies m without strategy markers at any level.
func stripMarkers(m Map) Map {
	out := make(Map, len(m))
	for k, v := range m {
		if k == StrategyKey {
			continue
		}
		if nested, ok := v.(Map); ok {
			out[k] = stripMarkers(nested)
			continue
		}
		out[k] = copyValue(v)
	}
	return out
}

// plain normalises supported mapping types to Map.
func plain(v any) (any, error) {
	switch t := v.(type) {
	case *Args:
		return t.ToMap()
	case map[string]string:
		m := make(Map, len(t))
		for k, s := range t {
			m[k] = s
		}
		return m, nil
	default:
		return v, nil
	}
}

func copyValue(v any) any {
	switch t := v.(type) {
	case Map:
		out := make(Map, len(t))
		for k, val := range t {
			out[k] = copyValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = copyValue(val)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	case []byte:
		return append([]byte(nil), t...)
	default:
		return v
	}
}

// Copy deep-copies a plain argument map.
func Copy(m Map) Map {
	if m == nil {
		return nil
	}
	return copyValue(m).(Map)
}

// CopyValue deep-copies maps and slices inside v.
func CopyValue(v any) any { return copyValue(v) }
