package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordStoreMutation(t *testing.T) {
	okBefore := testutil.ToFloat64(storeMutationsTotal.WithLabelValues("create", "success"))
	errBefore := testutil.ToFloat64(storeMutationsTotal.WithLabelValues("create", "error"))

	RecordStoreMutation("create", nil)
	RecordStoreMutation("create", errors.New("boom"))
	RecordStoreMutation("create", nil)

	assert.Equal(t, okBefore+2, testutil.ToFloat64(storeMutationsTotal.WithLabelValues("create", "success")))
	assert.Equal(t, errBefore+1, testutil.ToFloat64(storeMutationsTotal.WithLabelValues("create", "error")))
}

func TestRecordGateAttempt(t *testing.T) {
	before := testutil.ToFloat64(gateAttemptsTotal.WithLabelValues("failure"))
	RecordGateAttempt(false)
	assert.Equal(t, before+1, testutil.ToFloat64(gateAttemptsTotal.WithLabelValues("failure")))
}

func TestLiveConnectionGauge(t *testing.T) {
	before := testutil.ToFloat64(liveConnectionsActive)
	LiveConnectionOpened()
	LiveConnectionOpened()
	LiveConnectionClosed()
	assert.Equal(t, before+1, testutil.ToFloat64(liveConnectionsActive))
	LiveConnectionClosed()
}

func TestHandlerExposesMetrics(t *testing.T) {
	RecordHTTPRequest(http.MethodGet, "/api/files", http.StatusOK, 5*time.Millisecond)
	RecordCompose(time.Millisecond, true)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `mobilecoder_http_requests_total{method="GET",path="/api/files",status="200"}`))
	assert.True(t, strings.Contains(body, "mobilecoder_preview_placeholders_total"))
}
