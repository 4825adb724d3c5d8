package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fulmenhq/gofulmen/telemetry/exporters"

	"github.com/keygate/keygate/internal/observability"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func stubMetricsProxy(t *testing.T, rt roundTripFunc) {
	t.Helper()
	original := metricsProxyClient
	metricsProxyClient = &http.Client{Transport: rt}

	observability.PrometheusExporter = exporters.NewPrometheusExporter("test", ":9090")
	t.Cleanup(func() {
		metricsProxyClient = original
		observability.PrometheusExporter = nil
	})
}

func decodeErrorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp.Error.Code
}

func TestMetricsHandlerProxiesLimiterSeries(t *testing.T) {
	stubMetricsProxy(t, func(req *http.Request) (*http.Response, error) {
		if observability.GetMetricsPort() == 0 && req.URL.Host != "127.0.0.1:9464" {
			t.Errorf("expected configured metrics port, got %s", req.URL.Host)
		}
		body := "# HELP keygate_ratelimit_decisions_total Admission decisions\n" +
			"keygate_ratelimit_decisions_total{outcome=\"rejected\"} 4\n" +
			"keygate_http_requests_total{endpoint=\"/api/keys/generate\"} 9\n"
		resp := &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader(body)),
			Header:     make(http.Header),
		}
		resp.Header.Set("Content-Type", prometheusContentType)
		resp.Header.Set("Connection", "keep-alive")
		return resp, nil
	})

	srv := &Server{opts: Options{MetricsPort: 9464}}
	rec := httptest.NewRecorder()
	srv.MetricsHandler(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != prometheusContentType {
		t.Fatalf("expected Prometheus content type, got %s", got)
	}
	if rec.Header().Get("Connection") != "" {
		t.Fatal("hop-by-hop headers must not be forwarded")
	}
	if !strings.Contains(rec.Body.String(), `keygate_ratelimit_decisions_total{outcome="rejected"} 4`) {
		t.Fatalf("expected limiter series in output, got: %s", rec.Body.String())
	}
}

func TestMetricsHandlerExporterDown(t *testing.T) {
	stubMetricsProxy(t, func(req *http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})

	srv := &Server{}
	rec := httptest.NewRecorder()
	srv.MetricsHandler(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected status 502, got %d", rec.Code)
	}
	if code := decodeErrorCode(t, rec); code != "EXTERNAL_SERVICE_ERROR" {
		t.Fatalf("expected EXTERNAL_SERVICE_ERROR, got %s", code)
	}
}

func TestMetricsHandlerWithoutExporter(t *testing.T) {
	observability.PrometheusExporter = nil

	srv := &Server{opts: Options{MetricsPort: 9464}}
	rec := httptest.NewRecorder()
	srv.MetricsHandler(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rec.Code)
	}
	if code := decodeErrorCode(t, rec); code != "SERVICE_UNAVAILABLE" {
		t.Fatalf("expected SERVICE_UNAVAILABLE, got %s", code)
	}
}

func TestMetricsURL(t *testing.T) {
	if observability.GetMetricsPort() != 0 {
		t.Skip("exporter already bound in this process")
	}
	if got := (&Server{}).metricsURL(); got != "http://127.0.0.1:9090/metrics" {
		t.Fatalf("unexpected default url %s", got)
	}
	if got := (&Server{opts: Options{MetricsPort: 9464}}).metricsURL(); got != "http://127.0.0.1:9464/metrics" {
		t.Fatalf("unexpected configured url %s", got)
	}
}
