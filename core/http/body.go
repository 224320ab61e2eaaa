package http

// BodyKind identifies which variant of Body is active
type BodyKind uint8

// Body variants
const (
	// BodyNone means the response has no body concept at all
	BodyNone BodyKind = iota
	// BodyEmpty is an explicit zero-length body
	BodyEmpty
	// BodyBytes carries an owned byte slice
	BodyBytes
)

// String implements fmt.Stringer
func (k BodyKind) String() string {
	switch k {
	case BodyNone:
		return "none"
	case BodyEmpty:
		return "empty"
	case BodyBytes:
		return "bytes"
	default:
		return "invalid"
	}
}

// Body is what, if anything, follows the response head.
type Body struct {
	kind BodyKind
	data []byte
}

// NoBody returns the BodyNone variant
func NoBody() Body { return Body{kind: BodyNone} }

// EmptyBody returns the BodyEmpty variant
func EmptyBody() Body { return Body{kind: BodyEmpty} }

// BytesBody takes ownership of b. A nil or empty slice is still the
// BodyBytes variant and is written with a blank line and no payload.
func BytesBody(b []byte) Body { return Body{kind: BodyBytes, data: b} }

// StringBody copies s into a BodyBytes body
func StringBody(s string) Body { return Body{kind: BodyBytes, data: []byte(s)} }

// Kind returns the active variant
func (b Body) Kind() BodyKind { return b.kind }

// Bytes returns the payload; nil unless Kind is BodyBytes
func (b Body) Bytes() []byte {
	if b.kind != BodyBytes {
		return nil
	}
	return b.data
}

// Len returns the payload length before any compression
func (b Body) Len() int {
	return len(b.Bytes())
}
