package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/okian/broutes/pkg/logger"
)

// Supported formats.
const (
	FormatYAML = "yaml"
	FormatTOML = "toml"
)

// FormatOf returns the format implied by the file extension.
func FormatOf(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("%w: %w: %q", ErrInvalidCatalog, ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// Load reads and validates the catalog at path.
func Load(ctx context.Context, path string) (*Catalog, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrInvalidCatalog, path, err)
	}
	c, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	c.source = path

	logger.Named("catalog").Debug(ctx, "catalog loaded",
		logger.String("path", path),
		logger.Int("routes", len(c.Routes)),
		logger.Int("plans", len(c.Plans)),
	)
	return c, nil
}

// Parse decodes and validates catalog data in the given format. Unknown
// fields are rejected.
func Parse(data []byte, format string) (*Catalog, error) {
	var c Catalog
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: decode yaml: %w", ErrInvalidCatalog, err)
		}
	case FormatTOML:
		md, err := toml.Decode(string(data), &c)
		if err != nil {
			return nil, fmt.Errorf("%w: decode toml: %w", ErrInvalidCatalog, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("%w: unknown fields: %s", ErrInvalidCatalog, strings.Join(keys, ", "))
		}
	default:
		return nil, fmt.Errorf("%w: %w: %q", ErrInvalidCatalog, ErrUnsupportedFormat, format)
	}

	c.normalize()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// normalize converts YAML mappings with non-string keys so argument maps hold
// only map[string]any.
func (c *Catalog) normalize() {
	for name, r := range c.Routes {
		r.Args = normalizeMap(r.Args)
		for m, a := range r.Methods {
			r.Methods[m] = normalizeMap(a)
		}
		for s, a := range r.Scenarios {
			r.Scenarios[s] = normalizeMap(a)
		}
		for _, g := range r.Groups {
			for s, a := range g {
				g[s] = normalizeMap(a)
			}
		}
		c.Routes[name] = r
	}
	for name, p := range c.Plans {
		for i := range p.Steps {
			p.Steps[i].Args = normalizeMap(p.Steps[i].Args)
		}
		c.Plans[name] = p
	}
}

func normalizeMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return normalizeMap(t)
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalizeValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalizeValue(val)
		}
		return out
	case []map[string]any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalizeMap(val)
		}
		return out
	default:
		return v
	}
}
