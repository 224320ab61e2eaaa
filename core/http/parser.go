package http

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
)

// Parser errors
var (
	ErrInvalidRequest = errors.New("invalid HTTP request")
	ErrHeaderTooLarge = errors.New("request header too large")
	ErrBodyTooLarge   = errors.New("request body too large")
)

// MaxHeaders bounds the number of header lines accepted per request
const MaxHeaders = 100

const bodyPrealloc = 64 << 10

// ReadRequest reads one request head and its Content-Length delimited body
// from br. A body larger than maxBody yields ErrBodyTooLarge; maxBody <= 0
// disables the check.
func ReadRequest(br *bufio.Reader, maxBody int64) (*Request, error) {
	line, err := readLine(br)
	if err != nil {
		return nil, err
	}

	// METHOD TARGET PROTO
	sp1 := bytes.IndexByte(line, ' ')
	if sp1 <= 0 {
		return nil, ErrInvalidRequest
	}
	sp2 := bytes.IndexByte(line[sp1+1:], ' ')
	if sp2 <= 0 {
		return nil, ErrInvalidRequest
	}
	sp2 += sp1 + 1

	req := &Request{
		RawMethod: string(line[:sp1]),
		Header:    make(map[string]string),
	}
	req.Method = ParseMethod(req.RawMethod)

	version, ok := ParseVersion(string(line[sp2+1:]))
	if !ok {
		return nil, fmt.Errorf("%w: unsupported protocol %q", ErrInvalidRequest, line[sp2+1:])
	}
	req.Version = version

	target := string(line[sp1+1 : sp2])
	if target == "" || target[0] != '/' {
		return nil, fmt.Errorf("%w: bad target %q", ErrInvalidRequest, target)
	}
	req.Path = target
	if idx := strings.IndexByte(target, '?'); idx != -1 {
		req.Path = target[:idx]
		req.RawQuery = target[idx+1:]
		req.Query = parseQuery(req.RawQuery)
	}

	if err := parseHeaders(br, req); err != nil {
		return nil, err
	}

	if err := readBody(br, req, maxBody); err != nil {
		return nil, err
	}

	return req, nil
}

// parseHeaders reads header lines until the blank line ending the head
func parseHeaders(br *bufio.Reader, req *Request) error {
	for n := 0; ; n++ {
		line, err := readLine(br)
		if err != nil {
			return err
		}
		if len(line) == 0 {
			return nil
		}
		if n >= MaxHeaders {
			return ErrHeaderTooLarge
		}

		colon := bytes.IndexByte(line, ':')
		if colon <= 0 {
			return fmt.Errorf("%w: malformed header line", ErrInvalidRequest)
		}
		key := string(bytes.TrimSpace(line[:colon]))
		value := string(bytes.TrimSpace(line[colon+1:]))
		req.SetHeader(key, value)
	}
}

func readBody(br *bufio.Reader, req *Request, maxBody int64) error {
	raw := req.HeaderValue(HeaderContentLength)
	if raw == "" {
		return nil
	}
	size, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || size < 0 {
		return fmt.Errorf("%w: bad Content-Length %q", ErrInvalidRequest, raw)
	}
	if maxBody > 0 && size > maxBody {
		return ErrBodyTooLarge
	}
	if size == 0 {
		return nil
	}

	// Content-Length is client supplied: grow with the data actually read
	// instead of allocating it up front.
	body := bytes.NewBuffer(make([]byte, 0, min(size, bodyPrealloc)))
	n, err := io.Copy(body, io.LimitReader(br, size))
	if err != nil {
		return err
	}
	if n < size {
		return fmt.Errorf("%w: truncated body", ErrInvalidRequest)
	}
	req.Body = body.Bytes()
	return nil
}

// readLine returns one line without its CRLF or LF terminator. The slice is
// only valid until the next read from br.
func readLine(br *bufio.Reader) ([]byte, error) {
	line, err := br.ReadSlice('\n')
	if err != nil {
		if errors.Is(err, bufio.ErrBufferFull) {
			return nil, ErrHeaderTooLarge
		}
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return nil, fmt.Errorf("%w: unterminated line", ErrInvalidRequest)
		}
		return nil, err
	}
	line = line[:len(line)-1]
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return line, nil
}

// parseQuery parses a raw query string. Later duplicates win.
func parseQuery(raw string) map[string]string {
	query := make(map[string]string)
	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		k, v, _ := strings.Cut(pair, "=")
		if uk, err := url.QueryUnescape(k); err == nil {
			k = uk
		}
		if uv, err := url.QueryUnescape(v); err == nil {
			v = uv
		}
		query[k] = v
	}
	return query
}
