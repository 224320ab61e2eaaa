package http

// Method is an HTTP request method. Values are ordered; the router relies on
// that order to keep its per-method tables in a fixed, deterministic layout.
type Method uint8

// Supported methods
const (
	MethodUnknown Method = iota
	MethodGet
	MethodHead
	MethodPost
	MethodPut
	MethodDelete
	MethodConnect
	MethodOptions
	MethodTrace
	MethodPatch

	methodCount
)

// MethodCount is the number of distinct Method values, MethodUnknown included.
const MethodCount = int(methodCount)

var methodNames = [methodCount]string{
	MethodUnknown: "UNKNOWN",
	MethodGet:     "GET",
	MethodHead:    "HEAD",
	MethodPost:    "POST",
	MethodPut:     "PUT",
	MethodDelete:  "DELETE",
	MethodConnect: "CONNECT",
	MethodOptions: "OPTIONS",
	MethodTrace:   "TRACE",
	MethodPatch:   "PATCH",
}

// String returns the method token as it appears on the wire
func (m Method) String() string {
	if m >= methodCount {
		return methodNames[MethodUnknown]
	}
	return methodNames[m]
}

// Valid reports whether m is a known method
func (m Method) Valid() bool {
	return m > MethodUnknown && m < methodCount
}

// ParseMethod maps a request-line token to a Method. Method tokens are case
// sensitive; anything unrecognised is MethodUnknown.
func ParseMethod(s string) Method {
	switch s {
	case "GET":
		return MethodGet
	case "HEAD":
		return MethodHead
	case "POST":
		return MethodPost
	case "PUT":
		return MethodPut
	case "DELETE":
		return MethodDelete
	case "CONNECT":
		return MethodConnect
	case "OPTIONS":
		return MethodOptions
	case "TRACE":
		return MethodTrace
	case "PATCH":
		return MethodPatch
	default:
		return MethodUnknown
	}
}
