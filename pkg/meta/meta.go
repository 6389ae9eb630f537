// Package meta holds typed request metadata and turns it into HTTP requests.
package meta

import (
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/okian/broutes/pkg/args"
)

// Attribute names accepted by Get, Set and FromMap.
const (
	AttrParams          = "params"
	AttrHeaders         = "headers"
	AttrCookies         = "cookies"
	AttrExtensions      = "extensions"
	AttrAuth            = "auth"
	AttrFollowRedirects = "follow_redirects"
	AttrAllowRedirects  = "allow_redirects"
	AttrTimeout         = "timeout"
	AttrContent         = "content"
	AttrData            = "data"
	AttrFiles           = "files"
	AttrJSON            = "json"
	AttrURL             = "url"
	AttrProxies         = "proxies"
	AttrVerify          = "verify"
	AttrStream          = "stream"
	AttrCert            = "cert"
)

// Attributes lists every Meta attribute in display order.
var Attributes = []string{ //nolint:gochecknoglobals // read-only list
	AttrParams, AttrHeaders, AttrCookies, AttrAuth, AttrFollowRedirects, AttrTimeout,
	AttrExtensions, AttrContent, AttrData, AttrFiles, AttrJSON,
	AttrURL, AttrProxies, AttrVerify, AttrStream, AttrCert,
}

// HTTP methods a Meta can be converted for.
var validMethods = map[string]struct{}{ //nolint:gochecknoglobals // read-only lookup
	http.MethodGet: {}, http.MethodPost: {}, http.MethodPut: {}, http.MethodPatch: {},
	http.MethodDelete: {}, http.MethodHead: {}, http.MethodOptions: {},
}

// ValidMethod reports whether method (any case) is supported.
func ValidMethod(method string) bool {
	_, ok := validMethods[strings.ToUpper(method)]
	return ok
}

// HasBody reports whether method carries a request body.
func HasBody(method string) bool {
	switch strings.ToUpper(method) {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return false
}

// Meta is request metadata. Mapping attributes are plain nested maps; the
// remaining attributes accept the shapes documented on Prepare.
type Meta struct {
	Params     args.Map
	Headers    args.Map
	Cookies    args.Map
	Extensions args.Map

	Auth            any
	FollowRedirects *bool
	Timeout         any

	Content any
	Data    any
	Files   any
	JSON    any

	URL     string
	Proxies any
	Verify  any
	Stream  *bool
	Cert    any
}

// FromMap builds a Meta from merged request arguments. allow_redirects is
// accepted as an alias of follow_redirects.
func FromMap(m args.Map) (*Meta, error) {
	out := &Meta{}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := out.Set(k, m[k]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Get returns the attribute called name.
func (m *Meta) Get(name string) (any, error) {
	switch name {
	case AttrParams:
		return m.Params, nil
	case AttrHeaders:
		return m.Headers, nil
	case AttrCookies:
		return m.Cookies, nil
	case AttrExtensions:
		return m.Extensions, nil
	case AttrAuth:
		return m.Auth, nil
	case AttrFollowRedirects, AttrAllowRedirects:
		return boolValue(m.FollowRedirects), nil
	case AttrTimeout:
		return m.Timeout, nil
	case AttrContent:
		return m.Content, nil
	case AttrData:
		return m.Data, nil
	case AttrFiles:
		return m.Files, nil
	case AttrJSON:
		return m.JSON, nil
	case AttrURL:
		if m.URL == "" {
			return nil, nil
		}
		return m.URL, nil
	case AttrProxies:
		return m.Proxies, nil
	case AttrVerify:
		return m.Verify, nil
	case AttrStream:
		return boolValue(m.Stream), nil
	case AttrCert:
		return m.Cert, nil
	}
	return nil, metaErr(ErrAttributeNotFound, "attribute '%s' not found in Meta", name)
}

// Set assigns the attribute called name. Mapping attributes accept any map
// shape understood by the args package.
func (m *Meta) Set(name string, v any) error {
	switch name {
	case AttrParams, AttrHeaders, AttrCookies, AttrExtensions:
		mv, err := toMap(name, v)
		if err != nil {
			return err
		}
		switch name {
		case AttrParams:
			m.Params = mv
		case AttrHeaders:
			m.Headers = mv
		case AttrCookies:
			m.Cookies = mv
		default:
			m.Extensions = mv
		}
	case AttrFollowRedirects, AttrAllowRedirects:
		b, err := toBool(name, v)
		if err != nil {
			return err
		}
		m.FollowRedirects = b
	case AttrStream:
		b, err := toBool(name, v)
		if err != nil {
			return err
		}
		m.Stream = b
	case AttrURL:
		switch s := v.(type) {
		case nil:
			m.URL = ""
		case string:
			m.URL = s
		default:
			return metaErr(ErrInvalidAttribute, "url must be a string, got %T", v)
		}
	case AttrAuth:
		m.Auth = plainValue(v)
	case AttrTimeout:
		m.Timeout = v
	case AttrContent:
		m.Content = plainValue(v)
	case AttrData:
		m.Data = plainValue(v)
	case AttrFiles:
		m.Files = plainValue(v)
	case AttrJSON:
		m.JSON = plainValue(v)
	case AttrProxies:
		m.Proxies = plainValue(v)
	case AttrVerify:
		m.Verify = v
	case AttrCert:
		m.Cert = plainValue(v)
	default:
		return metaErr(ErrAttributeNotFound, "attribute '%s' not found in Meta", name)
	}
	return nil
}

// Copy returns a deep copy.
func (m *Meta) Copy() *Meta {
	c := *m
	c.Params = args.Copy(m.Params)
	c.Headers = args.Copy(m.Headers)
	c.Cookies = args.Copy(m.Cookies)
	c.Extensions = args.Copy(m.Extensions)
	c.Auth = args.CopyValue(m.Auth)
	c.Content = args.CopyValue(m.Content)
	c.Data = args.CopyValue(m.Data)
	c.Files = args.CopyValue(m.Files)
	c.JSON = args.CopyValue(m.JSON)
	c.Proxies = args.CopyValue(m.Proxies)
	c.Cert = args.CopyValue(m.Cert)
	if m.FollowRedirects != nil {
		b := *m.FollowRedirects
		c.FollowRedirects = &b
	}
	if m.Stream != nil {
		b := *m.Stream
		c.Stream = &b
	}
	return &c
}

// Add returns m combined with other. Mappings deep-merge with other winning
// on conflicts; any other attribute set on other replaces m's value.
func (m *Meta) Add(other *Meta) (*Meta, error) {
	if other == nil {
		return nil, metaErr(ErrInvalidAddition, "cannot add nil Meta")
	}
	out := m.Copy()
	for _, pair := range []struct {
		dst       *args.Map
		base, add args.Map
	}{
		{&out.Params, m.Params, other.Params},
		{&out.Headers, m.Headers, other.Headers},
		{&out.Cookies, m.Cookies, other.Cookies},
		{&out.Extensions, m.Extensions, other.Extensions},
	} {
		if pair.add == nil {
			continue
		}
		merged, err := args.Merge(pair.base, pair.add)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMeta, err)
		}
		*pair.dst = merged
	}

	if other.Auth != nil {
		out.Auth = args.CopyValue(other.Auth)
	}
	if other.FollowRedirects != nil {
		b := *other.FollowRedirects
		out.FollowRedirects = &b
	}
	if other.Timeout != nil {
		out.Timeout = other.Timeout
	}
	if other.Content != nil {
		out.Content = args.CopyValue(other.Content)
	}
	if other.Data != nil {
		out.Data = args.CopyValue(other.Data)
	}
	if other.Files != nil {
		out.Files = args.CopyValue(other.Files)
	}
	if other.JSON != nil {
		out.JSON = args.CopyValue(other.JSON)
	}
	if other.URL != "" {
		out.URL = other.URL
	}
	if other.Proxies != nil {
		out.Proxies = args.CopyValue(other.Proxies)
	}
	if other.Verify != nil {
		out.Verify = other.Verify
	}
	if other.Stream != nil {
		b := *other.Stream
		out.Stream = &b
	}
	if other.Cert != nil {
		out.Cert = args.CopyValue(other.Cert)
	}
	return out, nil
}

// ToMap returns every attribute by name, unset ones as nil.
func (m *Meta) ToMap() args.Map {
	out := make(args.Map, len(Attributes))
	for _, name := range Attributes {
		v, _ := m.Get(name)
		out[name] = v
	}
	return out
}

// ToRequestArgs returns the arguments a client needs for method, leaving out
// anything unset or empty. Body-carrying methods get the first non-empty of
// json, data, files and content; other methods only get content.
func (m *Meta) ToRequestArgs(method string) (args.Map, error) {
	if !ValidMethod(method) {
		return nil, fmt.Errorf("%w: %w: failed to convert to request args: %w: %s",
			ErrMeta, ErrInvalidArguments, ErrInvalidHTTPMethod, method)
	}
	out := args.Map{}
	for _, name := range []string{
		AttrParams, AttrHeaders, AttrCookies, AttrAuth, AttrFollowRedirects,
		AttrTimeout, AttrExtensions, AttrURL, AttrProxies, AttrVerify, AttrStream, AttrCert,
	} {
		v, _ := m.Get(name)
		if !isEmpty(v) {
			out[name] = args.CopyValue(v)
		}
	}
	if name, v := m.body(method); name != "" {
		out[name] = args.CopyValue(v)
	}
	return out, nil
}

// body picks the payload attribute used for method.
func (m *Meta) body(method string) (string, any) {
	if !HasBody(method) {
		if !isEmpty(m.Content) {
			return AttrContent, m.Content
		}
		return "", nil
	}
	for _, c := range []struct {
		name string
		v    any
	}{{AttrJSON, m.JSON}, {AttrData, m.Data}, {AttrFiles, m.Files}, {AttrContent, m.Content}} {
		if !isEmpty(c.v) {
			return c.name, c.v
		}
	}
	return "", nil
}

func (m *Meta) String() string {
	b, err := json.MarshalIndent(m.ToMap(), "", "    ")
	if err != nil {
		return fmt.Sprintf("Meta(%v)", m.ToMap())
	}
	return string(b)
}

func boolValue(b *bool) any {
	if b == nil {
		return nil
	}
	return *b
}

func toMap(name string, v any) (args.Map, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case args.Map:
		return args.Copy(t), nil
	case *args.Args:
		mv, err := t.ToMap()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMeta, err)
		}
		return mv, nil
	case map[string]string:
		out := make(args.Map, len(t))
		for k, s := range t {
			out[k] = s
		}
		return out, nil
	}
	return nil, metaErr(ErrInvalidAttribute, "%s must be a mapping, got %T", name, v)
}

func toBool(name string, v any) (*bool, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case bool:
		return &t, nil
	case *bool:
		if t == nil {
			return nil, nil
		}
		b := *t
		return &b, nil
	case string:
		switch strings.ToLower(t) {
		case "true", "1", "yes":
			b := true
			return &b, nil
		case "false", "0", "no":
			b := false
			return &b, nil
		}
	}
	return nil, metaErr(ErrInvalidAttribute, "%s must be a bool, got %v", name, v)
}

// plainValue converts *args.Args to a plain map; other values pass through.
func plainValue(v any) any {
	if a, ok := v.(*args.Args); ok {
		if mv, err := a.ToMap(); err == nil {
			return mv
		}
	}
	return v
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.String, reflect.Array:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// durationOf converts a timeout attribute to a duration. Numbers are seconds;
// a two-element list is read as connect and read timeouts and summed.
func durationOf(v any) (time.Duration, error) {
	switch t := v.(type) {
	case nil:
		return 0, nil
	case time.Duration:
		return t, nil
	case int:
		return time.Duration(t) * time.Second, nil
	case int64:
		return time.Duration(t) * time.Second, nil
	case float64:
		return time.Duration(t * float64(time.Second)), nil
	case float32:
		return time.Duration(float64(t) * float64(time.Second)), nil
	case string:
		if d, err := time.ParseDuration(t); err == nil {
			return d, nil
		}
		var secs float64
		if _, err := fmt.Sscanf(t, "%g", &secs); err == nil {
			return time.Duration(secs * float64(time.Second)), nil
		}
	case []any:
		var total time.Duration
		for _, part := range t {
			d, err := durationOf(part)
			if err != nil {
				return 0, err
			}
			total += d
		}
		return total, nil
	}
	return 0, metaErr(ErrInvalidAttribute, "unsupported timeout %v (%T)", v, v)
}
