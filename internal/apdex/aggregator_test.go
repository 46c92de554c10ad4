package apdex

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAggregator(t *testing.T) *Aggregator {
	t.Helper()
	agg, err := NewAggregator(DefaultThresholds)
	require.NoError(t, err)
	return agg
}

func TestThresholds_Validate(t *testing.T) {
	assert.NoError(t, DefaultThresholds.Validate())

	for _, th := range []Thresholds{{0, 1500}, {-1, 10}, {500, 500}, {1500, 500}, {math.NaN(), 10}} {
		err := th.Validate()
		assert.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidThresholds))
	}

	_, err := NewAggregator(Thresholds{T: 10, F: 5})
	assert.ErrorIs(t, err, ErrInvalidThresholds)
}

func TestThresholds_Zone(t *testing.T) {
	th := DefaultThresholds
	cases := map[float64]Zone{
		0:       Satisfied,
		499.9:   Satisfied,
		500:     Satisfied,
		500.001: Tolerating,
		1500:    Tolerating,
		1500.01: Frustrated,
		9000:    Frustrated,
	}
	for latency, want := range cases {
		assert.Equal(t, want, th.Zone(latency), "latency=%v", latency)
	}
}

func TestAggregator_RecordBuckets(t *testing.T) {
	agg := newTestAggregator(t)

	for _, l := range []float64{100, 800, 2000} {
		agg.Record(NoCache, l)
	}

	s := agg.Summarize(NoCache)
	assert.Equal(t, uint64(3), s.TotalRequests)
	assert.Equal(t, uint64(1), s.Satisfied)
	assert.Equal(t, uint64(1), s.Tolerating)
	assert.Equal(t, uint64(1), s.Frustrated)
	assert.InDelta(t, 0.5, s.ApdexScore, 1e-9)

	assert.InDelta(t, 966.6666, s.ResponseTimes.Avg, 1e-3)
	assert.Equal(t, 100.0, s.ResponseTimes.Min)
	assert.Equal(t, 2000.0, s.ResponseTimes.Max)
	assert.Equal(t, 800.0, s.ResponseTimes.Med)

	// 其它分类不受影响
	assert.Equal(t, CategoryStats{}, agg.Summarize(CacheHit))
}

func TestAggregator_EmptySummary(t *testing.T) {
	agg := newTestAggregator(t)

	for _, c := range Categories {
		s := agg.Summarize(c)
		assert.Equal(t, uint64(0), s.TotalRequests)
		assert.Equal(t, 0.0, s.ApdexScore)
		assert.Equal(t, ResponseTimes{}, s.ResponseTimes)
	}

	r := agg.Report()
	assert.Equal(t, RunSummary{}, r)
}

func TestAggregator_ApdexRange(t *testing.T) {
	t.Run("all satisfied scores 1", func(t *testing.T) {
		agg := newTestAggregator(t)
		agg.Record(CacheHit, 10)
		agg.Record(CacheHit, 500)
		assert.Equal(t, 1.0, agg.Summarize(CacheHit).ApdexScore)
	})

	t.Run("one tolerating drops below 1", func(t *testing.T) {
		agg := newTestAggregator(t)
		agg.Record(CacheHit, 10)
		agg.Record(CacheHit, 501)
		score := agg.Summarize(CacheHit).ApdexScore
		assert.Less(t, score, 1.0)
		assert.InDelta(t, 0.75, score, 1e-9)
	})

	t.Run("all frustrated scores 0", func(t *testing.T) {
		agg := newTestAggregator(t)
		agg.Record(CacheMiss, 5000)
		assert.Equal(t, 0.0, agg.Summarize(CacheMiss).ApdexScore)
	})
}

func TestAggregator_Percentiles(t *testing.T) {
	agg := newTestAggregator(t)
	for i := 100; i >= 1; i-- {
		agg.Record(CacheMiss, float64(i))
	}

	rt := agg.Summarize(CacheMiss).ResponseTimes
	assert.Equal(t, 1.0, rt.Min)
	assert.Equal(t, 100.0, rt.Max)
	assert.InDelta(t, 50.5, rt.Avg, 1e-9)
	assert.InDelta(t, 50.5, rt.Med, 1e-9)
	assert.InDelta(t, 90.1, rt.P90, 1e-9)
	assert.InDelta(t, 95.05, rt.P95, 1e-9)
	assert.InDelta(t, 99.01, rt.P99, 1e-9)

	// Summarize 不改变记录顺序
	lat := agg.Latencies(CacheMiss)
	assert.Equal(t, 100.0, lat[0])
}

func TestAggregator_Report(t *testing.T) {
	agg := newTestAggregator(t)

	agg.Record(NoCache, 200)
	agg.Record(NoCache, 200)
	agg.Record(CacheHit, 100)
	agg.Record(CacheHit, 100)
	agg.Record(CacheHit, 100)
	agg.Record(CacheHit, 100)
	agg.Record(CacheMiss, 400)

	r := agg.Report()
	assert.Equal(t, uint64(4), r.CacheStatistics.TotalHits)
	assert.Equal(t, uint64(1), r.CacheStatistics.TotalMisses)
	assert.InDelta(t, 80.0, r.CacheStatistics.HitRate, 1e-9)
	assert.InDelta(t, 50.0, r.CacheStatistics.ImprovementHitVsNoCache, 1e-9)
	assert.InDelta(t, 75.0, r.CacheStatistics.ImprovementHitVsMiss, 1e-9)

	assert.Equal(t, r.CacheHit, r.Category(CacheHit))
	assert.Equal(t, agg.Summarize(NoCache), r.NoCache)
}

func TestAggregator_Idempotent(t *testing.T) {
	agg := newTestAggregator(t)
	for _, l := range []float64{120, 730, 1800, 45} {
		agg.Record(CacheHit, l)
		agg.Record(CacheMiss, l*2)
	}

	assert.Equal(t, agg.Summarize(CacheHit), agg.Summarize(CacheHit))
	assert.Equal(t, agg.Report(), agg.Report())
}

func TestAggregator_InvalidCategory(t *testing.T) {
	agg := newTestAggregator(t)
	agg.Record(Category(42), 100)
	assert.Equal(t, CategoryStats{}, agg.Summarize(Category(42)))
	assert.Equal(t, RunSummary{}, agg.Report())
	assert.Nil(t, agg.Latencies(Category(-1)))
}

func TestAggregator_ConcurrentRecord(t *testing.T) {
	agg := newTestAggregator(t)

	const workers = 64
	const perWorker = 250

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				c := Categories[(w+i)%len(Categories)]
				agg.RecordObservation(Observation{Category: c, LatencyMs: float64(w*perWorker + i)})
				if i%50 == 0 {
					_ = agg.Report()
				}
			}
		}(w)
	}
	wg.Wait()

	var total uint64
	for _, c := range Categories {
		s := agg.Summarize(c)
		assert.Equal(t, s.TotalRequests, uint64(len(agg.Latencies(c))))
		total += s.TotalRequests
	}
	assert.Equal(t, uint64(workers*perWorker), total)
}

func TestHitRate(t *testing.T) {
	assert.Equal(t, 80.0, HitRate(80, 20))
	assert.Equal(t, 0.0, HitRate(0, 0))
	assert.Equal(t, 100.0, HitRate(3, 0))
}

func TestImprovement(t *testing.T) {
	assert.Equal(t, 50.0, Improvement(200, 100))
	assert.Equal(t, -50.0, Improvement(100, 150))
	assert.Equal(t, 0.0, Improvement(0, 150))
}

func TestCategory(t *testing.T) {
	assert.Equal(t, CacheHit, CategoryFor(Hit))
	assert.Equal(t, CacheMiss, CategoryFor(Miss))
	assert.Equal(t, "no_cache", NoCache.String())
	assert.Equal(t, "Cache MISS", CacheMiss.Title())
}
