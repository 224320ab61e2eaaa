package http

import (
	"net/textproto"
	"strconv"
	"strings"

	"github.com/searchktools/tiny-server/core/extensions"
)

// Param is a single path parameter captured by the router
type Param struct {
	Key   string
	Value string
}

// Params holds path parameters in the order they appear in the pattern
type Params []Param

// Get returns the value of the named parameter
func (ps Params) Get(key string) (string, bool) {
	for _, p := range ps {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// Request is a parsed HTTP request
type Request struct {
	Method     Method
	RawMethod  string
	Path       string
	RawQuery   string
	Version    Version
	Header     map[string]string
	Query      map[string]string
	Body       []byte
	RemoteAddr string

	params Params
	state  extensions.Reader
}

// NewRequest creates a request for method and target, e.g. in tests.
// The target may carry a query string.
func NewRequest(method Method, target string) *Request {
	req := &Request{
		Method:    method,
		RawMethod: method.String(),
		Version:   HTTP10,
		Header:    make(map[string]string),
	}
	req.Path = target
	if idx := strings.IndexByte(target, '?'); idx != -1 {
		req.Path = target[:idx]
		req.RawQuery = target[idx+1:]
		req.Query = parseQuery(req.RawQuery)
	}
	return req
}

// Attach binds the matched path parameters and the application's shared
// state to the request. The dispatcher calls it before running handlers.
func (r *Request) Attach(params Params, state extensions.Reader) {
	r.params = params
	r.state = state
}

// Params returns all captured path parameters
func (r *Request) Params() Params {
	return r.params
}

// Param returns a path parameter, or "" if absent
func (r *Request) Param(key string) string {
	v, _ := r.params.Get(key)
	return v
}

// State returns the application's shared state. It is never nil once the
// request went through a dispatcher.
func (r *Request) State() extensions.Reader {
	return r.state
}

// QueryValue returns a query parameter, or "" if absent
func (r *Request) QueryValue(key string) string {
	return r.Query[key]
}

// HeaderValue returns a request header; key matching is case-insensitive
func (r *Request) HeaderValue(key string) string {
	return r.Header[textproto.CanonicalMIMEHeaderKey(key)]
}

// SetHeader sets a request header under its canonical key
func (r *Request) SetHeader(key, value string) {
	if r.Header == nil {
		r.Header = make(map[string]string)
	}
	r.Header[textproto.CanonicalMIMEHeaderKey(key)] = value
}

// AcceptsGzip reports whether Accept-Encoding admits gzip with a non-zero
// quality value. An explicit gzip entry takes precedence over "*".
func (r *Request) AcceptsGzip() bool {
	accept := r.HeaderValue("Accept-Encoding")
	if accept == "" {
		return false
	}

	gzipQ, starQ := -1.0, -1.0
	for _, part := range strings.Split(accept, ",") {
		coding, params, _ := strings.Cut(part, ";")
		coding = strings.TrimSpace(coding)
		switch {
		case strings.EqualFold(coding, "gzip"):
			gzipQ = max(gzipQ, qValue(params))
		case coding == "*":
			starQ = max(starQ, qValue(params))
		}
	}
	if gzipQ >= 0 {
		return gzipQ > 0
	}
	return starQ > 0
}

// qValue extracts the q parameter from a ';' separated parameter list. A
// missing q means 1; a malformed one means 0.
func qValue(params string) float64 {
	for _, p := range strings.Split(params, ";") {
		key, value, _ := strings.Cut(p, "=")
		if !strings.EqualFold(strings.TrimSpace(key), "q") {
			continue
		}
		q, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil || q < 0 {
			return 0
		}
		return q
	}
	return 1
}
