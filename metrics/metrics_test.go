package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	jobs := NewJobs(reg)

	jobs.ObserveDuration("freeze", 250*time.Millisecond)
	jobs.IncSuccess("freeze", "frozen")
	jobs.IncSuccess("freeze", "frozen")
	jobs.IncSuccess("freeze", "")
	jobs.IncFailure("freeze")
	jobs.AddRows("freeze", 3)
	jobs.AddRows("freeze", 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(jobs.success.WithLabelValues("freeze", "frozen")))
	assert.Equal(t, 1.0, testutil.ToFloat64(jobs.success.WithLabelValues("freeze", "unknown")))
	assert.Equal(t, 1.0, testutil.ToFloat64(jobs.failure.WithLabelValues("freeze")))
	assert.Equal(t, 3.0, testutil.ToFloat64(jobs.rows.WithLabelValues("freeze")))

	n, err := testutil.GatherAndCount(reg, "vcdash_job_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestHTTPObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	h := NewHTTP(reg)

	h.Observe("GET", "/state/{key}", 200, 5*time.Millisecond)
	h.Observe("GET", "/state/{key}", 200, 5*time.Millisecond)
	h.Observe("PUT", "", 400, time.Millisecond)

	want := `
# HELP vcdash_http_requests_total HTTP requests by method, route and status.
# TYPE vcdash_http_requests_total counter
vcdash_http_requests_total{method="GET",route="/state/{key}",status="200"} 2
vcdash_http_requests_total{method="PUT",route="unknown",status="400"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(want), "vcdash_http_requests_total"))
}

func TestNilRecordersAreSafe(t *testing.T) {
	var jobs *Jobs
	jobs.ObserveDuration("freeze", time.Second)
	jobs.IncSuccess("freeze", "frozen")
	jobs.IncFailure("freeze")
	jobs.AddRows("freeze", 1)

	NewJobs(nil).IncFailure("freeze")

	var h *HTTP
	h.Observe("GET", "/", 200, time.Second)
	NewHTTP(nil).Observe("GET", "/", 200, time.Second)
}
