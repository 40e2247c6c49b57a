package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/testutil"

	applog "github.com/janisto/hello-world/internal/platform/logging"
)

func newTestRouter(m *Metrics) chi.Router {
	router := chi.NewRouter()
	router.Use(m.Middleware())
	router.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	router.Get("/items/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	router.Handle("/metrics", m.Handler())
	return router
}

func TestMiddlewareCountsByRoutePattern(t *testing.T) {
	m := New()
	router := newTestRouter(m)

	for _, path := range []string{"/", "/", "/items/1", "/items/2", "/nope"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	tests := []struct {
		route  string
		status string
		want   float64
	}{
		{"/", "200", 2},
		{"/items/{id}", "204", 2},
		{unmatchedRoute, "404", 1},
	}
	for _, tt := range tests {
		got := testutil.ToFloat64(m.requests.WithLabelValues(http.MethodGet, tt.route, tt.status))
		if got != tt.want {
			t.Errorf("route %s status %s: got %v, want %v", tt.route, tt.status, got, tt.want)
		}
	}

	if n := testutil.CollectAndCount(m.duration); n != 3 {
		t.Fatalf("expected 3 duration series, got %d", n)
	}
}

func TestMiddlewareWithoutChiContext(t *testing.T) {
	m := New()
	h := m.Middleware()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if got := testutil.ToFloat64(m.requests.WithLabelValues(http.MethodGet, unmatchedRoute, "200")); got != 1 {
		t.Fatalf("expected 1 unmatched request, got %v", got)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	router := newTestRouter(m)
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`hello_world_http_requests_total{method="GET",route="/",status="200"} 1`,
		"hello_world_http_request_duration_seconds_bucket",
		"go_goroutines",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected exposition to contain %q", want)
		}
	}
}

func TestNewUsesIsolatedRegistries(t *testing.T) {
	a, b := New(), New()
	if a.registry == b.registry {
		t.Fatal("expected distinct registries")
	}
}

func scrapeOpenMetrics(t *testing.T, router http.Handler) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Accept", "application/openmetrics-text; version=1.0.0")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 from /metrics, got %d", resp.Code)
	}
	return resp.Body.String()
}

func TestMiddlewareAttachesTraceExemplar(t *testing.T) {
	m := New()
	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID, applog.RequestLogger(), m.Middleware())
	router.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle("/metrics", m.Handler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(chimiddleware.RequestIDHeader, "req-42")
	router.ServeHTTP(httptest.NewRecorder(), req)

	body := scrapeOpenMetrics(t, router)
	if !strings.Contains(body, `# {trace_id="req-42"} 1`) {
		t.Fatalf("expected trace exemplar on request counter, got:\n%s", body)
	}
}

func TestMiddlewareSkipsExemplarWithoutTraceID(t *testing.T) {
	m := New()
	router := newTestRouter(m)
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if body := scrapeOpenMetrics(t, router); strings.Contains(body, "trace_id=") {
		t.Fatalf("expected no exemplars, got:\n%s", body)
	}
}

func TestMiddlewareSkipsOversizedExemplar(t *testing.T) {
	m := New()
	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID, applog.RequestLogger(), m.Middleware())
	router.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(chimiddleware.RequestIDHeader, strings.Repeat("a", 128))
	router.ServeHTTP(httptest.NewRecorder(), req)

	if got := testutil.ToFloat64(m.requests.WithLabelValues(http.MethodGet, "/", "200")); got != 1 {
		t.Fatalf("expected request counted once, got %v", got)
	}
}
