package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchCounters(t *testing.T) {
	d := New()
	d.ObserveCall("lua", "ok", 5*time.Millisecond)
	d.ObserveCall("lua", "ok", time.Millisecond)
	d.ObserveCall("lua", "not_found", time.Millisecond)
	d.SymbolNotFound()
	d.Forwarded()
	d.Forwarded()

	assert.Equal(t, 2.0, testutil.ToFloat64(d.callsTotal.WithLabelValues("lua", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(d.callsTotal.WithLabelValues("lua", "not_found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(d.notFoundTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(d.forwardedTotal))
	assert.Equal(t, 1, testutil.CollectAndCount(d.callDuration))
}

func TestNilDispatchIsNoop(t *testing.T) {
	var d *Dispatch
	assert.NotPanics(t, func() {
		d.ObserveCall("lua", "ok", time.Second)
		d.SymbolNotFound()
		d.Forwarded()
	})
	assert.Nil(t, d.Registry())
}

func TestSeparateRegistries(t *testing.T) {
	a, b := New(), New()
	a.SymbolNotFound()
	assert.Equal(t, 1.0, testutil.ToFloat64(a.notFoundTotal))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.notFoundTotal))
}

func TestHandler(t *testing.T) {
	d := New()
	d.ObserveCall("sql", "error", time.Millisecond)

	rec := httptest.NewRecorder()
	d.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `rigz_dispatch_total{module="sql",status="error"} 1`), body)
}
