package server

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/nightfall-quant/perpscan/internal/model"
	"github.com/nightfall-quant/perpscan/internal/scanengine"
)

func testServer() *Server {
	return New(Config{Port: 0, Log: zerolog.Nop()})
}

func TestHandleHealth_ReturnsOK(t *testing.T) {
	s := testServer()
	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "ok", body["status"])
}

func TestHandleLastScan_BeforeAnyScan_ReturnsUnavailable(t *testing.T) {
	s := testServer()
	req := httptest.NewRequest("GET", "/scan/last", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, 503, rec.Code)
}

func TestHandleLastScan_AfterSetLastScan_ReturnsBundle(t *testing.T) {
	s := testServer()
	s.SetLastScan(&scanengine.Bundle{
		Results: []scanengine.Result{{Symbol: "BTCUSDT", Decision: model.GateDecision{Score: 72}}},
		Meta:    scanengine.Meta{ScanID: "scan-1", Stats: scanengine.Stats{Pairs: 10, Qualified: 1, Returned: 1}},
	})

	req := httptest.NewRequest("GET", "/scan/last", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	var bundle scanengine.Bundle
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bundle))
	require.Equal(t, "scan-1", bundle.Meta.ScanID)
	require.Len(t, bundle.Results, 1)
	require.Equal(t, "BTCUSDT", bundle.Results[0].Symbol)
}

func TestHandleMetrics_ExposesPrometheusFormat(t *testing.T) {
	s := testServer()
	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	require.Contains(t, rec.Body.String(), "go_goroutines")
}
