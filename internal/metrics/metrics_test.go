package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/sakif/tabletop/internal/apperror"
)

func TestOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "success"},
		{apperror.NotFound("game", 1), "not_found"},
		{apperror.Conflict("dup"), "conflict"},
		{apperror.ValidationFailed("rating", "out of range"), "invalid"},
		{apperror.Forbidden("no"), "forbidden"},
		{apperror.Storage("rating.submit", errors.New("locked")), "error"},
		{fmt.Errorf("wrapped: %w", apperror.NotFound("user", 2)), "not_found"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Outcome(tt.err), "Outcome(%v)", tt.err)
	}
}

func TestRecordStoreOperation(t *testing.T) {
	storeOperationsTotal.Reset()
	storeOperationDuration.Reset()

	RecordStoreOperation("rating.submit", 3*time.Millisecond, nil)
	RecordStoreOperation("rating.submit", 2*time.Millisecond, nil)
	RecordStoreOperation("rating.submit", time.Second, apperror.Storage("rating.submit", errors.New("timeout")))

	assert.Equal(t, 2.0, testutil.ToFloat64(storeOperationsTotal.WithLabelValues("rating.submit", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(storeOperationsTotal.WithLabelValues("rating.submit", "error")))
	assert.Equal(t, 2, testutil.CollectAndCount(storeOperationDuration))
}

func TestRecordHTTPRequest(t *testing.T) {
	httpRequestsTotal.Reset()

	RecordHTTPRequest(http.MethodGet, "/api/games/{id}", http.StatusOK, time.Millisecond)
	RecordHTTPRequest(http.MethodGet, "/api/games/{id}", http.StatusNotFound, time.Millisecond)
	RecordHTTPRequest(http.MethodGet, "/api/games/{id}", http.StatusOK, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/api/games/{id}", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/api/games/{id}", "404")))
}

func TestChatGauges(t *testing.T) {
	before := testutil.ToFloat64(chatSubscribers)
	SubscriberOpened()
	SubscriberOpened()
	SubscriberClosed()
	assert.Equal(t, before+1, testutil.ToFloat64(chatSubscribers))

	RecordChatMessage("memory")
	assert.GreaterOrEqual(t, testutil.ToFloat64(chatMessagesTotal.WithLabelValues("memory")), 1.0)
}

func TestHandler_ExposesCollectors(t *testing.T) {
	RecordStoreOperation("catalog.game", time.Millisecond, nil)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tabletop_store_operations_total")
}
