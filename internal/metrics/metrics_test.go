package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	m := New()
	m.AccountCreated("password")
	m.AccountCreated("password")
	m.Login("password", "failure")
	m.WelcomeEmail("error")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.accountsCreated.WithLabelValues("password")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.logins.WithLabelValues("password", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.welcomeEmails.WithLabelValues("error")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.AccountCreated("google")
	m.Login("google", "success")
	m.WelcomeEmail("sent")
}

func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	m.Login("google", "success")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `accounts_logins_total{method="google",result="success"} 1`))
}
