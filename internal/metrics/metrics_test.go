package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSetEmergency(t *testing.T) {
	SetEmergency(true)
	if value := testutil.ToFloat64(EmergencyActive); value != 1 {
		t.Fatalf("expected 1, got %f", value)
	}
	SetEmergency(false)
	if value := testutil.ToFloat64(EmergencyActive); value != 0 {
		t.Fatalf("expected 0, got %f", value)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	BetDecisions.WithLabelValues("approved").Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "economy_bet_decisions_total") {
		t.Fatalf("expected bet decision counter in output")
	}
}
