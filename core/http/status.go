package http

// StatusCode is a numeric HTTP status
type StatusCode int

// Common status codes
const (
	StatusContinue            StatusCode = 100
	StatusSwitchingProtocols  StatusCode = 101
	StatusOK                  StatusCode = 200
	StatusCreated             StatusCode = 201
	StatusAccepted            StatusCode = 202
	StatusNoContent           StatusCode = 204
	StatusMovedPermanently    StatusCode = 301
	StatusFound               StatusCode = 302
	StatusSeeOther            StatusCode = 303
	StatusNotModified         StatusCode = 304
	StatusTemporaryRedirect   StatusCode = 307
	StatusPermanentRedirect   StatusCode = 308
	StatusBadRequest          StatusCode = 400
	StatusUnauthorized        StatusCode = 401
	StatusForbidden           StatusCode = 403
	StatusNotFound            StatusCode = 404
	StatusMethodNotAllowed    StatusCode = 405
	StatusRequestTimeout      StatusCode = 408
	StatusConflict            StatusCode = 409
	StatusGone                StatusCode = 410
	StatusLengthRequired      StatusCode = 411
	StatusPayloadTooLarge     StatusCode = 413
	StatusURITooLong          StatusCode = 414
	StatusUnsupportedMedia    StatusCode = 415
	StatusTooManyRequests     StatusCode = 429
	StatusInternalServerError StatusCode = 500
	StatusNotImplemented      StatusCode = 501
	StatusBadGateway          StatusCode = 502
	StatusServiceUnavailable  StatusCode = 503
	StatusGatewayTimeout      StatusCode = 504
	StatusVersionNotSupported StatusCode = 505
)

// Phrase returns the reason phrase for the status line
func (s StatusCode) Phrase() string {
	switch s {
	case StatusContinue:
		return "Continue"
	case StatusSwitchingProtocols:
		return "Switching Protocols"
	case StatusOK:
		return "OK"
	case StatusCreated:
		return "Created"
	case StatusAccepted:
		return "Accepted"
	case StatusNoContent:
		return "No Content"
	case StatusMovedPermanently:
		return "Moved Permanently"
	case StatusFound:
		return "Found"
	case StatusSeeOther:
		return "See Other"
	case StatusNotModified:
		return "Not Modified"
	case StatusTemporaryRedirect:
		return "Temporary Redirect"
	case StatusPermanentRedirect:
		return "Permanent Redirect"
	case StatusBadRequest:
		return "Bad Request"
	case StatusUnauthorized:
		return "Unauthorized"
	case StatusForbidden:
		return "Forbidden"
	case StatusNotFound:
		return "Not Found"
	case StatusMethodNotAllowed:
		return "Method Not Allowed"
	case StatusRequestTimeout:
		return "Request Timeout"
	case StatusConflict:
		return "Conflict"
	case StatusGone:
		return "Gone"
	case StatusLengthRequired:
		return "Length Required"
	case StatusPayloadTooLarge:
		return "Payload Too Large"
	case StatusURITooLong:
		return "URI Too Long"
	case StatusUnsupportedMedia:
		return "Unsupported Media Type"
	case StatusTooManyRequests:
		return "Too Many Requests"
	case StatusInternalServerError:
		return "Internal Server Error"
	case StatusNotImplemented:
		return "Not Implemented"
	case StatusBadGateway:
		return "Bad Gateway"
	case StatusServiceUnavailable:
		return "Service Unavailable"
	case StatusGatewayTimeout:
		return "Gateway Timeout"
	case StatusVersionNotSupported:
		return "HTTP Version Not Supported"
	default:
		return "Unknown"
	}
}

// Version is the protocol version written on the status line
type Version uint8

// Protocol versions
const (
	HTTP10 Version = iota
	HTTP11
)

// String returns the version token
func (v Version) String() string {
	if v == HTTP11 {
		return "HTTP/1.1"
	}
	return "HTTP/1.0"
}

// ParseVersion maps a request-line protocol token to a Version
func ParseVersion(s string) (Version, bool) {
	switch s {
	case "HTTP/1.0":
		return HTTP10, true
	case "HTTP/1.1":
		return HTTP11, true
	default:
		return HTTP10, false
	}
}
