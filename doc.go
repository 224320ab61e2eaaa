/*
Package tinyserver is a small HTTP/1.0 application framework built around a
configure-then-freeze lifecycle.

An application is assembled on a core.Builder: routes, middleware, shared
state and a fallback handler. Build turns it into a core.Engine that is never
written again, so any number of goroutines can dispatch through it without
locking.

Quick Start

	package main

	import (
	    "context"
	    "os"
	    "os/signal"

	    "github.com/searchktools/tiny-server/app"
	    "github.com/searchktools/tiny-server/config"
	    "github.com/searchktools/tiny-server/core"
	    "github.com/searchktools/tiny-server/core/http"
	)

	func main() {
	    cfg, err := config.Load(os.Args[1:])
	    if err != nil {
	        panic(err)
	    }

	    engine := core.New().
	        GET("/hello", func(*http.Request) (*http.Response, error) {
	            return http.OK().String("Hello, World!").Finish(), nil
	        }).
	        Build()

	    ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	    defer stop()
	    if err := app.New(cfg, engine, nil).Run(ctx); err != nil {
	        panic(err)
	    }
	}

Modules

  - app: listener, accept loop and graceful shutdown
  - config: environment and flag configuration, logger construction
  - core: the Builder and the frozen Engine
  - core/extensions: shared state keyed by type
  - core/http: requests, responses and the wire format
  - core/router: per-method path trees
  - core/middleware: middleware chains and the built-in middleware

Responses are always written as HTTP/1.0 unless the handler asks otherwise,
and one request is served per connection.
*/
package tinyserver
