package meta

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/okian/broutes/pkg/args"
)

// Content types set when the caller did not send one.
const (
	ContentTypeJSON = "application/json"
	ContentTypeForm = "application/x-www-form-urlencoded"
)

// Prepared is a Meta resolved for one method: everything a transport needs
// to send the request.
type Prepared struct {
	Method  string
	URL     string
	Header  http.Header
	Cookies []*http.Cookie
	Body    []byte

	Timeout         time.Duration
	FollowRedirects *bool
	Stream          bool

	// Proxies maps a URL scheme (or "all") to a proxy URL.
	Proxies map[string]string
	// Verify is nil when the transport default applies.
	Verify *bool
	// CAFile is set when verify named a CA bundle.
	CAFile   string
	CertFile string
	KeyFile  string
}

// Prepare resolves m for method.
//
// Shapes understood beyond plain values:
//   - params: nested maps flatten to a[b]=v, lists repeat the key
//   - auth: [user, pass] or {username, password} for basic, a string for bearer
//   - data: maps are form encoded, strings and bytes are sent as is
//   - files: name -> content, {filename, content, content_type} or [filename, content]
//   - content: strings and bytes as is, anything else as JSON
//   - timeout: seconds, a duration string, or [connect, read]
//   - proxies: a proxy URL for every scheme or a scheme -> URL map
//   - verify: bool, or a CA bundle path
//   - cert: a combined PEM path or [cert, key]
func (m *Meta) Prepare(method string) (*Prepared, error) {
	method = strings.ToUpper(method)
	if !ValidMethod(method) {
		return nil, fmt.Errorf("%w: %w: %w: %s", ErrMeta, ErrInvalidArguments, ErrInvalidHTTPMethod, method)
	}
	if m.URL == "" {
		return nil, metaErr(ErrInvalidArguments, "request url is not set")
	}

	u, err := url.Parse(m.URL)
	if err != nil {
		return nil, metaErr(ErrInvalidArguments, "invalid url %q: %v", m.URL, err)
	}
	if len(m.Params) > 0 {
		q := u.Query()
		flattenParams(q, "", m.Params)
		u.RawQuery = q.Encode()
	}

	p := &Prepared{
		Method:          method,
		URL:             u.String(),
		Header:          http.Header{},
		FollowRedirects: m.FollowRedirects,
		Stream:          m.Stream != nil && *m.Stream,
	}

	for _, k := range sortedKeys(m.Headers) {
		for _, v := range stringList(m.Headers[k]) {
			p.Header.Add(k, v)
		}
	}
	for _, k := range sortedKeys(m.Cookies) {
		p.Cookies = append(p.Cookies, &http.Cookie{Name: k, Value: fmt.Sprint(m.Cookies[k])})
	}

	if !isEmpty(m.Auth) {
		auth, err := authorization(m.Auth)
		if err != nil {
			return nil, err
		}
		p.Header.Set("Authorization", auth)
	}

	if name, v := m.body(method); name != "" {
		body, contentType, err := encodeBody(name, v)
		if err != nil {
			return nil, err
		}
		p.Body = body
		if contentType != "" && p.Header.Get("Content-Type") == "" {
			p.Header.Set("Content-Type", contentType)
		}
	}

	if p.Timeout, err = durationOf(m.Timeout); err != nil {
		return nil, err
	}
	if p.Proxies, err = proxiesOf(m.Proxies); err != nil {
		return nil, err
	}
	switch t := m.Verify.(type) {
	case nil:
	case bool:
		p.Verify = &t
	case string:
		p.CAFile = t
	default:
		return nil, metaErr(ErrInvalidAttribute, "verify must be a bool or a CA bundle path, got %T", m.Verify)
	}
	switch t := m.Cert.(type) {
	case nil:
	case string:
		if t == "" {
			break
		}
		p.CertFile, p.KeyFile = t, t
	default:
		pair := stringList(t)
		if len(pair) != 2 {
			return nil, metaErr(ErrInvalidAttribute, "cert must be a path or [cert, key], got %v", m.Cert)
		}
		p.CertFile, p.KeyFile = pair[0], pair[1]
	}
	return p, nil
}

// NewRequest builds the *http.Request for p.
func (p *Prepared) NewRequest(ctx context.Context) (*http.Request, error) {
	var body io.Reader = http.NoBody
	if len(p.Body) > 0 {
		body = bytes.NewReader(p.Body)
	}
	req, err := http.NewRequestWithContext(ctx, p.Method, p.URL, body)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrMeta, err)
	}
	req.Header = p.Header.Clone()
	for _, c := range p.Cookies {
		req.AddCookie(c)
	}
	return req, nil
}

// NeedsCustomTransport reports whether p overrides TLS or proxy settings.
func (p *Prepared) NeedsCustomTransport() bool {
	return p.Verify != nil || p.CAFile != "" || p.CertFile != "" || len(p.Proxies) > 0
}

func flattenParams(q url.Values, prefix string, v any) {
	switch t := v.(type) {
	case args.Map:
		for _, k := range sortedKeys(t) {
			key := k
			if prefix != "" {
				key = prefix + "[" + k + "]"
			}
			flattenParams(q, key, t[k])
		}
	case []any:
		for _, item := range t {
			flattenParams(q, prefix, item)
		}
	case []string:
		for _, item := range t {
			q.Add(prefix, item)
		}
	case nil:
	default:
		q.Add(prefix, fmt.Sprint(t))
	}
}

func sortedKeys(m args.Map) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func stringList(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			out = append(out, fmt.Sprint(item))
		}
		return out
	default:
		return []string{fmt.Sprint(t)}
	}
}

func authorization(v any) (string, error) {
	basic := func(user, pass string) string {
		return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
	}
	switch t := v.(type) {
	case string:
		return "Bearer " + t, nil
	case args.Map:
		user, _ := t["username"].(string)
		pass, _ := t["password"].(string)
		if user == "" {
			return "", metaErr(ErrInvalidAttribute, "auth mapping needs a username")
		}
		return basic(user, pass), nil
	default:
		pair := stringList(t)
		if len(pair) != 2 {
			return "", metaErr(ErrInvalidAttribute, "auth must be [user, pass], a mapping or a token, got %v", v)
		}
		return basic(pair[0], pair[1]), nil
	}
}

func encodeBody(name string, v any) ([]byte, string, error) {
	switch name {
	case AttrJSON:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, "", metaErr(ErrUnsupportedPayload, "json: %v", err)
		}
		return b, ContentTypeJSON, nil
	case AttrData:
		switch t := v.(type) {
		case string:
			return []byte(t), "", nil
		case []byte:
			return t, "", nil
		case args.Map:
			form := url.Values{}
			for _, k := range sortedKeys(t) {
				for _, s := range stringList(t[k]) {
					form.Add(k, s)
				}
			}
			return []byte(form.Encode()), ContentTypeForm, nil
		}
		return nil, "", metaErr(ErrUnsupportedPayload, "data must be a mapping, string or bytes, got %T", v)
	case AttrFiles:
		files, ok := v.(args.Map)
		if !ok {
			return nil, "", metaErr(ErrUnsupportedPayload, "files must be a mapping, got %T", v)
		}
		return encodeMultipart(files)
	default:
		switch t := v.(type) {
		case string:
			return []byte(t), "", nil
		case []byte:
			return t, "", nil
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, "", metaErr(ErrUnsupportedPayload, "content: %v", err)
		}
		return b, "", nil
	}
}

func encodeMultipart(files args.Map) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, field := range sortedKeys(files) {
		filename, content, contentType := field, []byte(nil), "application/octet-stream"
		switch t := files[field].(type) {
		case string:
			content = []byte(t)
		case []byte:
			content = t
		case args.Map:
			if s, ok := t["filename"].(string); ok {
				filename = s
			}
			if s, ok := t["content_type"].(string); ok {
				contentType = s
			}
			switch c := t["content"].(type) {
			case string:
				content = []byte(c)
			case []byte:
				content = c
			}
		case []any:
			parts := stringList(t)
			if len(parts) < 2 {
				return nil, "", metaErr(ErrUnsupportedPayload, "file %q needs [filename, content]", field)
			}
			filename, content = parts[0], []byte(parts[1])
			if len(parts) > 2 {
				contentType = parts[2]
			}
		default:
			return nil, "", metaErr(ErrUnsupportedPayload, "file %q has unsupported type %T", field, t)
		}

		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
		h.Set("Content-Type", contentType)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", metaErr(ErrUnsupportedPayload, "multipart: %v", err)
		}
		if _, err := part.Write(content); err != nil {
			return nil, "", metaErr(ErrUnsupportedPayload, "multipart: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", metaErr(ErrUnsupportedPayload, "multipart: %v", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func proxiesOf(v any) (map[string]string, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		return map[string]string{"all": t}, nil
	case args.Map:
		out := make(map[string]string, len(t))
		for k, p := range t {
			s, ok := p.(string)
			if !ok {
				return nil, metaErr(ErrInvalidAttribute, "proxy for %q must be a string", k)
			}
			out[k] = s
		}
		return out, nil
	}
	return nil, metaErr(ErrInvalidAttribute, "proxies must be a URL or a mapping, got %T", v)
}
