package http

import (
	"encoding/json"
	"errors"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/valyala/bytebufferpool"
	"google.golang.org/protobuf/proto"
)

// Header names written by the serializer
const (
	HeaderContentType     = "Content-Type"
	HeaderContentLength   = "Content-Length"
	HeaderContentEncoding = "Content-Encoding"
)

var errFinished = errors.New("http: response builder already finished")

// WriteError reports a failure while putting a response on the wire.
// Bytes already handed to the transport are not retracted.
type WriteError struct {
	Op  string
	Err error
}

func (e *WriteError) Error() string {
	return "http: " + e.Op + " response: " + e.Err.Error()
}

func (e *WriteError) Unwrap() error { return e.Err }

// Response is an immutable response produced by ResponseBuilder.Finish
type Response struct {
	version Version
	status  StatusCode
	headers map[string]string
	body    Body
}

// Version returns the protocol version of the status line
func (r *Response) Version() Version { return r.version }

// Status returns the status code
func (r *Response) Status() StatusCode { return r.status }

// Body returns the response body
func (r *Response) Body() Body { return r.body }

// Header returns the value set for key
func (r *Response) Header(key string) (string, bool) {
	v, ok := r.headers[key]
	return v, ok
}

// HeaderKeys returns header names in emission order
func (r *Response) HeaderKeys() []string {
	keys := make([]string, 0, len(r.headers))
	for k := range r.headers {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Rebuild returns a builder over a copy of r, for middleware that needs to
// amend a finished response. The body bytes are shared, not copied.
func (r *Response) Rebuild() *ResponseBuilder {
	cp := *r
	cp.headers = make(map[string]string, len(r.headers))
	for k, v := range r.headers {
		cp.headers[k] = v
	}
	return &ResponseBuilder{res: &cp}
}

// Send serializes the response onto w. With compress set and a BodyBytes
// body, the payload is gzipped in memory first so Content-Length can carry
// the compressed size. Header keys are written in sorted order. The
// zero-length branch ends right after its Content-Length line.
//
// The whole response is assembled in a pooled buffer and handed to w in
// one Write; any failure is returned as *WriteError.
func (r *Response) Send(w io.Writer, compress bool) error {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	if err := r.encode(buf, compress); err != nil {
		return err
	}

	n, err := w.Write(buf.B)
	if err == nil && n < len(buf.B) {
		err = io.ErrShortWrite
	}
	if err != nil {
		return &WriteError{Op: "write", Err: err}
	}
	return nil
}

// AppendTo appends the serialized response to dst
func (r *Response) AppendTo(dst []byte, compress bool) ([]byte, error) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	if err := r.encode(buf, compress); err != nil {
		return dst, err
	}
	return append(dst, buf.B...), nil
}

func (r *Response) encode(buf *bytebufferpool.ByteBuffer, compress bool) error {
	buf.B = append(buf.B, r.version.String()...)
	buf.B = append(buf.B, ' ')
	buf.B = strconv.AppendInt(buf.B, int64(r.status), 10)
	buf.B = append(buf.B, ' ')
	buf.B = append(buf.B, r.status.Phrase()...)
	buf.B = append(buf.B, "\r\n"...)

	for _, key := range r.HeaderKeys() {
		buf.B = append(buf.B, key...)
		buf.B = append(buf.B, ": "...)
		buf.B = append(buf.B, r.headers[key]...)
		buf.B = append(buf.B, "\r\n"...)
	}

	switch {
	case r.body.Kind() != BodyBytes:
		buf.B = append(buf.B, "Content-Length: 0\r\n"...)

	case compress:
		gz := bytebufferpool.Get()
		defer bytebufferpool.Put(gz)

		if err := gzipInto(gz, r.body.data); err != nil {
			return &WriteError{Op: "compress", Err: err}
		}

		buf.B = append(buf.B, "Content-Encoding: gzip\r\n"...)
		buf.B = append(buf.B, "Content-Length: "...)
		buf.B = strconv.AppendInt(buf.B, int64(gz.Len()), 10)
		buf.B = append(buf.B, "\r\n\r\n"...)
		buf.B = append(buf.B, gz.B...)

	default:
		buf.B = append(buf.B, "Content-Length: "...)
		buf.B = strconv.AppendInt(buf.B, int64(len(r.body.data)), 10)
		buf.B = append(buf.B, "\r\n\r\n"...)
		buf.B = append(buf.B, r.body.data...)
	}

	return nil
}

func gzipInto(w io.Writer, data []byte) error {
	zw, err := gzip.NewWriterLevel(w, gzip.DefaultCompression)
	if err != nil {
		return err
	}
	if _, err := zw.Write(data); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}

// ResponseBuilder accumulates status, headers and body for one response.
// It is not safe for concurrent use.
type ResponseBuilder struct {
	res *Response
}

// NewResponse starts a HTTP/1.0 response with the given status and no body
func NewResponse(status StatusCode) *ResponseBuilder {
	return &ResponseBuilder{
		res: &Response{
			version: HTTP10,
			status:  status,
			headers: make(map[string]string),
			body:    EmptyBody(),
		},
	}
}

// OK starts a 200 response
func OK() *ResponseBuilder { return NewResponse(StatusOK) }

// NotFound starts a 404 response
func NotFound() *ResponseBuilder { return NewResponse(StatusNotFound) }

// BadRequest starts a 400 response
func BadRequest() *ResponseBuilder { return NewResponse(StatusBadRequest) }

// InternalServerError starts a 500 response
func InternalServerError() *ResponseBuilder { return NewResponse(StatusInternalServerError) }

func (b *ResponseBuilder) inner() *Response {
	if b.res == nil {
		panic(errFinished)
	}
	return b.res
}

// Status replaces the status code
func (b *ResponseBuilder) Status(code StatusCode) *ResponseBuilder {
	b.inner().status = code
	return b
}

// Version replaces the protocol version
func (b *ResponseBuilder) Version(v Version) *ResponseBuilder {
	b.inner().version = v
	return b
}

// Header sets key to value, replacing any earlier value for key.
// Content-Length is computed by the serializer and cannot be set here.
// CR and LF are replaced by spaces so a header cannot split the head.
func (b *ResponseBuilder) Header(key, value string) *ResponseBuilder {
	res := b.inner()
	key = sanitizeHeader(key)
	if strings.EqualFold(key, HeaderContentLength) {
		return b
	}
	res.headers[key] = sanitizeHeader(value)
	return b
}

// Body sets the body variant
func (b *ResponseBuilder) Body(body Body) *ResponseBuilder {
	b.inner().body = body
	return b
}

// Bytes sets a BodyBytes body
func (b *ResponseBuilder) Bytes(data []byte) *ResponseBuilder {
	return b.Body(BytesBody(data))
}

// String sets a text body
func (b *ResponseBuilder) String(s string) *ResponseBuilder {
	return b.Body(StringBody(s))
}

// JSON encodes v as the body and sets Content-Type. An unencodable value
// turns the response into a 500 with a plain-text explanation.
func (b *ResponseBuilder) JSON(v any) *ResponseBuilder {
	data, err := json.Marshal(v)
	if err != nil {
		return b.Status(StatusInternalServerError).
			Header(HeaderContentType, "text/plain").
			String("JSON marshal error")
	}
	return b.Header(HeaderContentType, "application/json").Bytes(data)
}

// Proto encodes m in protobuf wire format as the body
func (b *ResponseBuilder) Proto(m proto.Message) *ResponseBuilder {
	data, err := proto.Marshal(m)
	if err != nil {
		return b.Status(StatusInternalServerError).
			Header(HeaderContentType, "text/plain").
			String("protobuf marshal error")
	}
	return b.Header(HeaderContentType, "application/x-protobuf").Bytes(data)
}

// Finish hands over the response. The builder cannot be used afterwards.
func (b *ResponseBuilder) Finish() *Response {
	res := b.inner()
	b.res = nil
	return res
}

func sanitizeHeader(s string) string {
	if !strings.ContainsAny(s, "\r\n") {
		return s
	}
	return strings.Map(func(r rune) rune {
		if r == '\r' || r == '\n' {
			return ' '
		}
		return r
	}, s)
}
