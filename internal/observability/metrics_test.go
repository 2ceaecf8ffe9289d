package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// promauto registers with the default registry, so each test uses a
// unique namespace to avoid duplicate-registration panics.

func TestNewMetrics(t *testing.T) {
	m := NewMetrics("test_discovery_new")

	assert.NotNil(t, m.SearchesStarted)
	assert.NotNil(t, m.SearchesCompleted)
	assert.NotNil(t, m.SearchesFailed)
	assert.NotNil(t, m.SearchDuration)
	assert.NotNil(t, m.ResultsPerSearch)
	assert.NotNil(t, m.SourceSearches)
	assert.NotNil(t, m.SourceFailures)
	assert.NotNil(t, m.SourceSearchDuration)
	assert.NotNil(t, m.SourceRecords)
	assert.NotNil(t, m.RecordsMerged)
	assert.NotNil(t, m.CacheHits)
	assert.NotNil(t, m.CacheMisses)
	assert.NotNil(t, m.ResolutionAttempts)
	assert.NotNil(t, m.RecordsExhausted)
	assert.NotNil(t, m.ResolutionDuration)
}

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics("test_discovery_counters")

	m.SearchesStarted.Inc()
	m.SearchesStarted.Inc()
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SearchesStarted))

	m.CacheHits.Inc()
	m.CacheMisses.Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHits))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMisses))

	m.RecordsMerged.Add(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.RecordsMerged))
}

func TestMetrics_LabeledCounters(t *testing.T) {
	m := NewMetrics("test_discovery_labels")

	m.SourceSearches.WithLabelValues("geo").Inc()
	m.SourceSearches.WithLabelValues("geo").Inc()
	m.SourceSearches.WithLabelValues("crossref").Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.SourceSearches.WithLabelValues("geo")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SourceSearches.WithLabelValues("crossref")))

	m.SourceFailures.WithLabelValues("geo", "timeout").Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SourceFailures.WithLabelValues("geo", "timeout")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.SourceFailures.WithLabelValues("geo", "error")))

	m.ResolutionAttempts.WithLabelValues("unpaywall", "resolved").Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ResolutionAttempts.WithLabelValues("unpaywall", "resolved")))
}

func TestMetrics_Histograms(t *testing.T) {
	m := NewMetrics("test_discovery_histograms")

	m.SearchDuration.Observe(0.3)
	m.SearchDuration.Observe(1.2)

	count, err := histogramSampleCount(m.SearchDuration)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)

	m.ResolutionDuration.Observe(4.5)
	count, err = histogramSampleCount(m.ResolutionDuration)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}

func histogramSampleCount(h prometheus.Histogram) (uint64, error) {
	var metric dto.Metric
	if err := h.Write(&metric); err != nil {
		return 0, err
	}
	return metric.GetHistogram().GetSampleCount(), nil
}
