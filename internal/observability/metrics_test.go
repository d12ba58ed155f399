package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMetricsEndpointExposesDomainCounters(t *testing.T) {
	m := NewMetrics()
	m.ChallanIssued("INSTALLMENT")
	m.ChallanIssued("MIXED")
	m.PaymentRecorded()
	m.PromotionAttempt("promoted")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.Contains(t, body, `campusledger_challans_issued_total{type="INSTALLMENT"} 1`)
	require.Contains(t, body, `campusledger_challans_issued_total{type="MIXED"} 1`)
	require.Contains(t, body, "campusledger_payments_recorded_total 1")
	require.Contains(t, body, `campusledger_promotions_total{outcome="promoted"} 1`)
}

func TestMiddlewareCountsRequests(t *testing.T) {
	m := NewMetrics()
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)

	metricsRec := httptest.NewRecorder()
	m.Handler().ServeHTTP(metricsRec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.True(t, strings.Contains(metricsRec.Body.String(), `code="418"`))
}
