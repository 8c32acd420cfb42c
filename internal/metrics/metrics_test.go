package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsHelpers(t *testing.T) {
	m := New(prometheus.NewRegistry(), "test")

	m.IncFilesDownloaded("artifactory", 100, 400)
	m.IncFilesDownloaded("artifactory", 50, 200)
	m.IncFilesSkipped("xray", "locked")
	m.AddLocksReclaimed("xray", 2)
	m.AddFilesPurged(3)
	m.ObserveCycle("completed", 1.5)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.FilesDownloaded.WithLabelValues("artifactory")))
	assert.Equal(t, 150.0, testutil.ToFloat64(m.BytesDownloaded.WithLabelValues("artifactory")))
	assert.Equal(t, 600.0, testutil.ToFloat64(m.BytesExtracted.WithLabelValues("artifactory")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FilesSkipped.WithLabelValues("xray", "locked")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.LocksReclaimed.WithLabelValues("xray")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.FilesPurged))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Cycles.WithLabelValues("completed")))
}
