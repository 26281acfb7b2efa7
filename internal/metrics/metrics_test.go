package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Settlement("settled")
	m.RoundStarted()
	m.Claim("ok")
	m.OracleRequest("latest", nil)
	m.SchedulerFailures(3)
	m.TxConfirmed("settle", time.Second)
}

func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	m.Settlement("settled")
	m.Settlement("already_settled")
	m.OracleRequest("historical", errors.New("boom"))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		`orionkeeper_settlements_total{status="settled"} 1`,
		`orionkeeper_settlements_total{status="already_settled"} 1`,
		`orionkeeper_oracle_requests_total{kind="historical",status="error"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
