// Package app runs a frozen engine behind a TCP listener.
package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"

	"github.com/searchktools/tiny-server/config"
	"github.com/searchktools/tiny-server/core"
	"github.com/searchktools/tiny-server/core/http"
)

// ErrShutdownTimeout is returned when connections are still open once the
// shutdown grace period has elapsed
var ErrShutdownTimeout = errors.New("app: shutdown timed out")

// App is the application instance: one configuration, one frozen engine
type App struct {
	cfg    *config.Config
	engine *core.Engine
	log    *zap.Logger

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// New creates an application instance. A nil logger discards output.
func New(cfg *config.Config, engine *core.Engine, log *zap.Logger) *App {
	if log == nil {
		log = zap.NewNop()
	}
	return &App{
		cfg:    cfg,
		engine: engine,
		log:    log,
		conns:  make(map[net.Conn]struct{}),
	}
}

// Engine returns the engine requests are dispatched to
func (a *App) Engine() *core.Engine {
	return a.engine
}

// Run listens on the configured address and serves until ctx is cancelled
func (a *App) Run(ctx context.Context) error {
	lc := net.ListenConfig{}
	if a.cfg.ReusePort {
		lc.Control = reusePort
	}

	ln, err := lc.Listen(ctx, "tcp", a.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", a.cfg.Addr(), err)
	}
	return a.Serve(ctx, ln)
}

// Serve accepts connections from ln until ctx is cancelled, then waits up to
// ShutdownTimeout for in-flight connections before closing them. At most
// MaxConns connections are open at once; further clients wait in the
// listen backlog. ln is closed on return.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	a.log.Info("server starting",
		zap.String("addr", ln.Addr().String()),
		zap.String("env", a.cfg.Env),
		zap.Int("routes", len(a.engine.Routes())),
		zap.Bool("compression", a.cfg.Compression),
	)

	if a.cfg.MaxConns > 0 {
		ln = netutil.LimitListener(ln, a.cfg.MaxConns)
	}
	var conns errgroup.Group

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		return ignoreClosed(ln.Close())
	})
	g.Go(func() error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if gctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("accept: %w", err)
			}
			a.track(conn)
			conns.Go(func() error {
				a.serveConn(conn)
				return nil
			})
		}
	})
	err := g.Wait()

	a.log.Info("server shutting down", zap.Int("in_flight", a.active()))
	return multierr.Append(err, a.drain(&conns))
}

func (a *App) drain(conns *errgroup.Group) error {
	done := make(chan struct{})
	go func() {
		_ = conns.Wait()
		close(done)
	}()

	timer := time.NewTimer(a.cfg.ShutdownTimeout)
	defer timer.Stop()

	select {
	case <-done:
		a.log.Info("server stopped")
		return nil
	case <-timer.C:
	}

	// Handlers still running are abandoned; their connections are closed
	// under them and they finish on their own.
	a.log.Warn("shutdown grace period elapsed, closing connections", zap.Int("in_flight", a.active()))
	return multierr.Append(ErrShutdownTimeout, a.closeAll())
}

func (a *App) serveConn(conn net.Conn) {
	defer a.untrack(conn)

	log := a.log.With(zap.String("remote", conn.RemoteAddr().String()))
	res, compress := a.handle(conn, log)
	if res == nil {
		return
	}

	if a.cfg.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(a.cfg.WriteTimeout))
	}
	if err := res.Send(conn, compress); err != nil {
		log.Debug("write response", zap.Error(err))
	}
}

// handle reads one request and produces the response to send, or nil when
// the connection should be dropped without one.
func (a *App) handle(conn net.Conn, log *zap.Logger) (*http.Response, bool) {
	if a.cfg.ReadTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(a.cfg.ReadTimeout))
	}

	br := bufio.NewReaderSize(conn, a.cfg.MaxHeaderBytes)
	req, err := http.ReadRequest(br, a.cfg.MaxBodyBytes)
	if err != nil {
		status, ok := parseStatus(err)
		if !ok {
			log.Debug("read request", zap.Error(err))
			return nil, false
		}
		log.Debug("rejecting request", zap.Int("status", int(status)), zap.Error(err))
		return errorResponse(status), false
	}
	req.RemoteAddr = conn.RemoteAddr().String()

	res, err := a.engine.Dispatch(req)
	if err != nil {
		log.Error("handler failed",
			zap.String("method", req.RawMethod),
			zap.String("path", req.Path),
			zap.Error(err),
		)
		return errorResponse(http.StatusInternalServerError), false
	}
	return res, a.cfg.Compression && req.AcceptsGzip()
}

// parseStatus maps a ReadRequest error to the status sent back. Connection
// errors other than timeouts get no response.
func parseStatus(err error) (http.StatusCode, bool) {
	var ne net.Error
	switch {
	case errors.Is(err, http.ErrBodyTooLarge):
		return http.StatusPayloadTooLarge, true
	case errors.Is(err, http.ErrHeaderTooLarge), errors.Is(err, http.ErrInvalidRequest):
		return http.StatusBadRequest, true
	case errors.As(err, &ne) && ne.Timeout():
		return http.StatusRequestTimeout, true
	default:
		return 0, false
	}
}

func errorResponse(status http.StatusCode) *http.Response {
	return http.NewResponse(status).
		JSON(map[string]any{"error": status.Phrase()}).
		Finish()
}

func (a *App) track(conn net.Conn) {
	a.mu.Lock()
	a.conns[conn] = struct{}{}
	a.mu.Unlock()
}

func (a *App) untrack(conn net.Conn) {
	a.mu.Lock()
	delete(a.conns, conn)
	a.mu.Unlock()
	_ = conn.Close()
}

func (a *App) active() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.conns)
}

func (a *App) closeAll() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	var err error
	for conn := range a.conns {
		err = multierr.Append(err, ignoreClosed(conn.Close()))
	}
	return err
}

func ignoreClosed(err error) error {
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
