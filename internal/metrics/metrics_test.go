package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitIsIdempotent(t *testing.T) {
	Init()
	first := cyclesTotal
	Init()
	assert.Same(t, first, cyclesTotal)
}

func TestObserveHelpers(t *testing.T) {
	Init()

	before := testutil.ToFloat64(documentsTotal.WithLabelValues("fia-test", "sent"))
	ObserveDocument("fia-test", "sent")
	ObserveDocument("fia-test", "sent")
	assert.Equal(t, before+2, testutil.ToFloat64(documentsTotal.WithLabelValues("fia-test", "sent")))

	ObservePageChange("hash-test")
	assert.Equal(t, float64(1), testutil.ToFloat64(pageChangesTotal.WithLabelValues("hash-test")))

	ts := time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC)
	SetWatermark("fia-test", ts)
	assert.Equal(t, float64(ts.Unix()), testutil.ToFloat64(watermarkTimestampGauge.WithLabelValues("fia-test")))

	ObserveFetch("fia-test", "error")
	assert.Equal(t, float64(1), testutil.ToFloat64(fetchesTotal.WithLabelValues("fia-test", "error")))
}

func TestHandlerExposesCollectors(t *testing.T) {
	ObserveCycle("ok", 1500*time.Millisecond)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `docwatch_cycles_total{status="ok"}`))
	assert.True(t, strings.Contains(string(body), "docwatch_cycle_duration_seconds_bucket"))
}
