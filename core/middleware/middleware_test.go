package middleware

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/searchktools/tiny-server/core/http"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(*http.Request) (*http.Response, error) {
		return http.OK().String("ok").Finish(), nil
	})
}

func recorder(order *[]string, name string) Middleware {
	return Func(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(req *http.Request) (*http.Response, error) {
			*order = append(*order, name+">")
			res, err := next.Serve(req)
			*order = append(*order, "<"+name)
			return res, err
		})
	})
}

func TestChainOrder(t *testing.T) {
	var order []string
	chain := NewChain(recorder(&order, "1"), recorder(&order, "2")).
		Append(recorder(&order, "3"))

	final := http.HandlerFunc(func(*http.Request) (*http.Response, error) {
		order = append(order, "handler")
		return http.OK().Finish(), nil
	})

	_, err := chain.Then(final).Serve(http.NewRequest(http.MethodGet, "/"))
	require.NoError(t, err)
	assert.Equal(t, []string{"1>", "2>", "3>", "handler", "<3", "<2", "<1"}, order)
	assert.Equal(t, 3, chain.Len())
}

func TestChainEmptyAndNil(t *testing.T) {
	final := okHandler()

	var nilChain *Chain
	assert.Equal(t, 0, nilChain.Len())
	res, err := nilChain.Then(final).Serve(http.NewRequest(http.MethodGet, "/"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.Status())

	chain := NewChain(nil)
	assert.Equal(t, 0, chain.Len())
}

func TestChainClone(t *testing.T) {
	var order []string
	chain := NewChain(recorder(&order, "a"))
	clone := chain.Clone().Append(recorder(&order, "b"))
	assert.Equal(t, 1, chain.Len())
	assert.Equal(t, 2, clone.Len())
}

func TestChainShortCircuit(t *testing.T) {
	reached := false
	deny := Func(func(http.Handler) http.Handler {
		return http.HandlerFunc(func(*http.Request) (*http.Response, error) {
			return http.NewResponse(http.StatusForbidden).Finish(), nil
		})
	})
	final := http.HandlerFunc(func(*http.Request) (*http.Response, error) {
		reached = true
		return http.OK().Finish(), nil
	})

	res, err := NewChain(deny).Then(final).Serve(http.NewRequest(http.MethodGet, "/"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, res.Status())
	assert.False(t, reached)
}

func TestRecovery(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	h := Recovery(zap.New(core)).Wrap(http.HandlerFunc(func(*http.Request) (*http.Response, error) {
		panic("test panic")
	}))

	res, err := h.Serve(http.NewRequest(http.MethodGet, "/boom"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, res.Status())

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "panic recovered", entry.Message)
	assert.Equal(t, "/boom", entry.ContextMap()["path"])
}

func TestNilLoggers(t *testing.T) {
	panicking := http.HandlerFunc(func(*http.Request) (*http.Response, error) {
		panic("test panic")
	})

	var res *http.Response
	assert.NotPanics(t, func() {
		res, _ = Recovery(nil).Wrap(panicking).Serve(http.NewRequest(http.MethodGet, "/"))
	})
	require.NotNil(t, res)
	assert.Equal(t, http.StatusInternalServerError, res.Status())

	assert.NotPanics(t, func() {
		res, _ = Logger(nil).Wrap(okHandler()).Serve(http.NewRequest(http.MethodGet, "/"))
	})
	assert.Equal(t, http.StatusOK, res.Status())
}

func TestLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := zap.New(core)

	_, err := Logger(log).Wrap(okHandler()).Serve(http.NewRequest(http.MethodPost, "/items"))
	require.NoError(t, err)

	errBoom := errors.New("boom")
	failing := http.HandlerFunc(func(*http.Request) (*http.Response, error) { return nil, errBoom })
	_, err = Logger(log).Wrap(failing).Serve(http.NewRequest(http.MethodGet, "/fail"))
	assert.ErrorIs(t, err, errBoom, "errors pass through untouched")

	require.Equal(t, 2, logs.Len())
	first := logs.All()[0]
	assert.Equal(t, "request", first.Message)
	assert.Equal(t, "POST", first.ContextMap()["method"])
	assert.EqualValues(t, 200, first.ContextMap()["status"])

	second := logs.All()[1]
	assert.Equal(t, zapcore.WarnLevel, second.Level)
	assert.Equal(t, "boom", second.ContextMap()["error"])
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID().Wrap(http.HandlerFunc(func(req *http.Request) (*http.Response, error) {
		seen = req.HeaderValue(HeaderRequestID)
		return http.OK().Finish(), nil
	}))

	res, err := h.Serve(http.NewRequest(http.MethodGet, "/"))
	require.NoError(t, err)
	id, ok := res.Header(HeaderRequestID)
	require.True(t, ok)
	_, perr := uuid.Parse(id)
	assert.NoError(t, perr)
	assert.Equal(t, id, seen)

	supplied := uuid.NewString()
	req := http.NewRequest(http.MethodGet, "/")
	req.SetHeader(HeaderRequestID, supplied)
	res, err = h.Serve(req)
	require.NoError(t, err)
	id, _ = res.Header(HeaderRequestID)
	assert.Equal(t, supplied, id)

	req = http.NewRequest(http.MethodGet, "/")
	req.SetHeader(HeaderRequestID, "not a uuid\r\n")
	res, err = h.Serve(req)
	require.NoError(t, err)
	id, _ = res.Header(HeaderRequestID)
	assert.NotEqual(t, "not a uuid\r\n", id)
}

func TestCORS(t *testing.T) {
	h := CORS("https://a.example").Wrap(okHandler())

	req := http.NewRequest(http.MethodGet, "/")
	req.SetHeader("Origin", "https://a.example")
	res, err := h.Serve(req)
	require.NoError(t, err)
	origin, _ := res.Header("Access-Control-Allow-Origin")
	assert.Equal(t, "https://a.example", origin)
	vary, _ := res.Header("Vary")
	assert.Equal(t, "Origin", vary)

	req = http.NewRequest(http.MethodGet, "/")
	req.SetHeader("Origin", "https://evil.example")
	res, err = h.Serve(req)
	require.NoError(t, err)
	_, ok := res.Header("Access-Control-Allow-Origin")
	assert.False(t, ok)

	res, err = CORS().Wrap(okHandler()).Serve(http.NewRequest(http.MethodOptions, "/"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, res.Status())
	assert.Equal(t, http.BodyNone, res.Body().Kind())
	origin, _ = res.Header("Access-Control-Allow-Origin")
	assert.Equal(t, "*", origin)
}

func TestRateLimit(t *testing.T) {
	h := RateLimit(0.001, 2).Wrap(okHandler())

	for i := 0; i < 2; i++ {
		res, err := h.Serve(http.NewRequest(http.MethodGet, "/"))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, res.Status(), "request %d", i)
	}

	res, err := h.Serve(http.NewRequest(http.MethodGet, "/"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, res.Status())
}

func TestRateLimitSharedAcrossRoutes(t *testing.T) {
	mw := RateLimit(0.001, 1)
	a := mw.Wrap(okHandler())
	b := mw.Wrap(okHandler())

	res, _ := a.Serve(http.NewRequest(http.MethodGet, "/a"))
	assert.Equal(t, http.StatusOK, res.Status())
	res, _ = b.Serve(http.NewRequest(http.MethodGet, "/b"))
	assert.Equal(t, http.StatusTooManyRequests, res.Status())
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	mw := Metrics(reg, "test")

	ok := mw.Wrap(okHandler())
	failing := mw.Wrap(http.HandlerFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("fail")
	}))

	_, _ = ok.Serve(http.NewRequest(http.MethodGet, "/"))
	_, _ = ok.Serve(http.NewRequest(http.MethodGet, "/"))
	_, _ = failing.Serve(http.NewRequest(http.MethodPost, "/"))

	families, err := reg.Gather()
	require.NoError(t, err)

	counts := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != "test_http_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			var method, status string
			for _, l := range m.GetLabel() {
				switch l.GetName() {
				case "method":
					method = l.GetValue()
				case "status":
					status = l.GetValue()
				}
			}
			counts[method+" "+status] = m.GetCounter().GetValue()
		}
	}
	assert.Equal(t, map[string]float64{"GET 200": 2, "POST error": 1}, counts)

	assert.Panics(t, func() { Metrics(reg, "test") }, "duplicate registration")
}

func TestMetricsHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	h := Metrics(reg, "test").Wrap(okHandler())
	_, _ = h.Serve(http.NewRequest(http.MethodGet, "/"))

	res, err := MetricsHandler(reg).Serve(http.NewRequest(http.MethodGet, "/metrics"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.Status())

	ct, _ := res.Header(http.HeaderContentType)
	assert.Contains(t, ct, "text/plain")
	body := string(res.Body().Bytes())
	assert.Contains(t, body, `test_http_requests_total{method="GET",status="200"} 1`)
	assert.Contains(t, body, "# TYPE test_http_request_duration_seconds histogram")
}
