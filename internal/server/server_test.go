package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Adda-Baaj/fia-docwatch/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeController struct {
	status    pipeline.Status
	accept    bool
	triggered int
}

func (f *fakeController) Status() pipeline.Status { return f.status }
func (f *fakeController) Trigger() bool {
	f.triggered++
	return f.accept
}

func serve(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	rec := serve(t, NewServer(nil, nil).Handler(), http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestStatusReportsLastCycle(t *testing.T) {
	ctrl := &fakeController{status: pipeline.Status{
		Cycles:    3,
		LastStart: time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC),
		LastReports: []pipeline.SourceReport{
			{SourceID: "fia-f1", Mode: "timestamp_log", Detected: 2, Delivered: 1, Failed: 1, Error: "deliver failed"},
		},
		Sources: []string{"fia-f1"},
	}}

	rec := serve(t, NewServer(ctrl, nil).Handler(), http.MethodGet, "/v1/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var got pipeline.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, int64(3), got.Cycles)
	require.Len(t, got.LastReports, 1)
	assert.Equal(t, "deliver failed", got.LastReports[0].Error)
}

func TestTriggerCycle(t *testing.T) {
	ctrl := &fakeController{accept: true}
	h := NewServer(ctrl, nil).Handler()

	rec := serve(t, h, http.MethodPost, "/v1/cycles")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	ctrl.accept = false
	rec = serve(t, h, http.MethodPost, "/v1/cycles")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, 2, ctrl.triggered)
}

func TestStatusWithoutWatcher(t *testing.T) {
	rec := serve(t, NewServer(nil, nil).Handler(), http.MethodGet, "/v1/status")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	rec := serve(t, NewServer(nil, nil).Handler(), http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
}
