package http

// Handler turns a request into a response or fails with an error.
// Errors are opaque to the framework and passed back to the caller
// unchanged.
type Handler interface {
	Serve(req *Request) (*Response, error)
}

// HandlerFunc adapts an ordinary function to Handler
type HandlerFunc func(req *Request) (*Response, error)

// Serve calls f(req)
func (f HandlerFunc) Serve(req *Request) (*Response, error) {
	return f(req)
}

// NotFoundHandler answers every request with an empty 404
func NotFoundHandler() Handler {
	return HandlerFunc(func(*Request) (*Response, error) {
		return NotFound().Finish(), nil
	})
}
