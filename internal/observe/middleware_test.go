package observe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestInstrumentCorrelationHeader(t *testing.T) {
	m, _ := newTestMetrics(t)
	installTestTracer(t)

	var inCtx string
	h := Instrument(m, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inCtx = CorrelationID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))

	if inCtx == "" {
		t.Fatal("handler saw no correlation ID in its context")
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != inCtx {
		t.Errorf("X-Correlation-ID = %q, want %q", got, inCtx)
	}
}

func TestInstrumentRecordsDuration(t *testing.T) {
	m, reader := newTestMetrics(t)
	installTestTracer(t)

	h := Instrument(m, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/statusz", nil))

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	met := findMetric(rm, "homepi.http.request.duration")
	if met == nil {
		t.Fatal("request duration histogram not recorded")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok || len(hist.DataPoints) == 0 {
		t.Fatalf("unexpected metric data %T", met.Data)
	}
	dp := hist.DataPoints[0]
	if dp.Count != 1 {
		t.Errorf("sample count = %d, want 1", dp.Count)
	}
	var method, path string
	for _, kv := range dp.Attributes.ToSlice() {
		switch string(kv.Key) {
		case "method":
			method = kv.Value.AsString()
		case "path":
			path = kv.Value.AsString()
		}
	}
	if method != "GET" || path != "/statusz" {
		t.Errorf("attributes method=%q path=%q, want GET /statusz", method, path)
	}
}

func TestInstrumentSpanCarriesStatus(t *testing.T) {
	m, _ := newTestMetrics(t)
	exp := installTestTracer(t)

	h := Instrument(m, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/missing", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("response code = %d, want 404", rec.Code)
	}
	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	if spans[0].Name != "status /missing" {
		t.Errorf("span name = %q, want %q", spans[0].Name, "status /missing")
	}
	var status int64 = -1
	for _, a := range spans[0].Attributes {
		if string(a.Key) == "http.status" {
			status = a.Value.AsInt64()
		}
	}
	if status != 404 {
		t.Errorf("span http.status = %d, want 404", status)
	}
}
