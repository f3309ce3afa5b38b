package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCountsSeries(t *testing.T) {
	recorder := NewRecorder()

	recorder.ObserveCall("product.push", OutcomeSuccess, 20*time.Millisecond)
	recorder.ObserveCall("product.push", OutcomeSuccess, 30*time.Millisecond)
	recorder.ObserveCall("product.push", OutcomeError, time.Millisecond)
	recorder.AddEntities("product", "push", 3)
	recorder.AddEntities("product", "push", 0)
	recorder.AddSoftFailure("product", "category")
	recorder.AddAcks(4, 1)

	assert.Equal(t, 2.0, testutil.ToFloat64(recorder.calls.WithLabelValues("product.push", OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(recorder.calls.WithLabelValues("product.push", OutcomeError)))
	assert.Equal(t, 3.0, testutil.ToFloat64(recorder.entities.WithLabelValues("product", "push")))
	assert.Equal(t, 1.0, testutil.ToFloat64(recorder.softFailures.WithLabelValues("product", "category")))
	assert.Equal(t, 4.0, testutil.ToFloat64(recorder.links.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(recorder.links.WithLabelValues(OutcomeError)))
}

func TestRecorderHandlerExposesSeries(t *testing.T) {
	recorder := NewRecorder()
	recorder.AddEntities("category", "pull", 2)

	response := httptest.NewRecorder()
	recorder.Handler().ServeHTTP(response, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, response.Code)
	body := response.Body.String()
	assert.True(t, strings.Contains(body, `erplink_sync_entities_total{kind="category",operation="pull"} 2`), body)
	assert.Contains(t, body, "go_goroutines")
}

func TestNilRecorderIsNoOp(t *testing.T) {
	var recorder *Recorder
	recorder.ObserveCall("core.statistic", OutcomeSuccess, time.Second)
	recorder.AddEntities("product", "pull", 1)
	recorder.AddSoftFailure("product", "product")
	recorder.AddAcks(1, 1)
}
