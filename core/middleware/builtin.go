package middleware

import (
	"bytes"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/searchktools/tiny-server/core/http"
)

// HeaderRequestID carries the per-request identifier
const HeaderRequestID = "X-Request-ID"

// Recovery turns a panicking handler into a 500 response. A nil logger
// discards output.
func Recovery(log *zap.Logger) Middleware {
	if log == nil {
		log = zap.NewNop()
	}
	return Func(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(req *http.Request) (res *http.Response, err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error("panic recovered",
						zap.String("method", req.RawMethod),
						zap.String("path", req.Path),
						zap.Any("panic", r),
						zap.Stack("stack"),
					)
					res = http.InternalServerError().
						JSON(map[string]any{"error": "Internal Server Error"}).
						Finish()
					err = nil
				}
			}()
			return next.Serve(req)
		})
	})
}

// Logger writes one log entry per request
func Logger(log *zap.Logger) Middleware {
	if log == nil {
		log = zap.NewNop()
	}
	return Func(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(req *http.Request) (*http.Response, error) {
			start := time.Now()
			res, err := next.Serve(req)

			fields := []zap.Field{
				zap.String("method", req.RawMethod),
				zap.String("path", req.Path),
				zap.Duration("duration", time.Since(start)),
			}
			if res != nil {
				fields = append(fields, zap.Int("status", int(res.Status())))
			}
			if err != nil {
				log.Warn("request failed", append(fields, zap.Error(err))...)
			} else {
				log.Info("request", fields...)
			}
			return res, err
		})
	})
}

// RequestID tags every response with X-Request-ID. A well-formed id sent
// by the client is echoed back; otherwise a random UUID is generated.
func RequestID() Middleware {
	return Func(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(req *http.Request) (*http.Response, error) {
			id := req.HeaderValue(HeaderRequestID)
			if _, err := uuid.Parse(id); err != nil {
				id = uuid.NewString()
				req.SetHeader(HeaderRequestID, id)
			}

			res, err := next.Serve(req)
			if res == nil {
				return res, err
			}
			return res.Rebuild().Header(HeaderRequestID, id).Finish(), err
		})
	})
}

// CORS adds cross-origin headers and answers preflight requests. With no
// origins every origin is allowed.
func CORS(origins ...string) Middleware {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}

	allowOrigin := func(req *http.Request) string {
		if len(allowed) == 0 {
			return "*"
		}
		origin := req.HeaderValue("Origin")
		if _, ok := allowed[origin]; ok {
			return origin
		}
		return ""
	}

	return Func(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(req *http.Request) (*http.Response, error) {
			origin := allowOrigin(req)

			if req.Method == http.MethodOptions {
				b := http.NewResponse(http.StatusNoContent).Body(http.NoBody())
				if origin != "" {
					b.Header("Access-Control-Allow-Origin", origin).
						Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, PATCH, OPTIONS").
						Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
				}
				return b.Finish(), nil
			}

			res, err := next.Serve(req)
			if res == nil || origin == "" {
				return res, err
			}
			b := res.Rebuild().Header("Access-Control-Allow-Origin", origin)
			if origin != "*" {
				b.Header("Vary", "Origin")
			}
			return b.Finish(), err
		})
	})
}

// RateLimit rejects requests beyond rps (with the given burst) with 429.
// The limit is shared by every route the middleware wraps.
func RateLimit(rps float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(rps), burst)

	return Func(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(req *http.Request) (*http.Response, error) {
			if !limiter.Allow() {
				return http.NewResponse(http.StatusTooManyRequests).
					Header("Retry-After", "1").
					JSON(map[string]any{"error": "Too Many Requests"}).
					Finish(), nil
			}
			return next.Serve(req)
		})
	})
}

// Metrics records request counts and latencies on reg. It panics if the
// collectors cannot be registered, like prometheus.MustRegister.
func Metrics(reg prometheus.Registerer, namespace string) Middleware {
	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "status"},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"method"},
	)
	reg.MustRegister(requests, duration)

	return Func(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(req *http.Request) (*http.Response, error) {
			start := time.Now()
			res, err := next.Serve(req)

			status := "error"
			if err == nil && res != nil {
				status = strconv.Itoa(int(res.Status()))
			}
			method := req.Method.String()
			requests.WithLabelValues(method, status).Inc()
			duration.WithLabelValues(method).Observe(time.Since(start).Seconds())
			return res, err
		})
	})
}

// MetricsHandler exposes everything gathered by g in the Prometheus text
// format, for mounting at e.g. GET /metrics.
func MetricsHandler(g prometheus.Gatherer) http.Handler {
	format := expfmt.NewFormat(expfmt.TypeTextPlain)

	return http.HandlerFunc(func(*http.Request) (*http.Response, error) {
		families, err := g.Gather()
		if err != nil {
			return nil, err
		}

		var buf bytes.Buffer
		enc := expfmt.NewEncoder(&buf, format)
		for _, mf := range families {
			if err := enc.Encode(mf); err != nil {
				return nil, err
			}
		}
		return http.OK().
			Header(http.HeaderContentType, string(format)).
			Bytes(buf.Bytes()).
			Finish(), nil
	})
}
