package apdex

import (
	"math"
	"sort"
)

// ResponseTimes 延迟分布统计 (ms)
type ResponseTimes struct {
	Avg float64 `json:"avg"`
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Med float64 `json:"med"`
	P90 float64 `json:"p90"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

// CategoryStats 单个分类的汇总
type CategoryStats struct {
	TotalRequests uint64        `json:"total_requests"`
	ApdexScore    float64       `json:"apdex_score"`
	ResponseTimes ResponseTimes `json:"response_times"`
	Satisfied     uint64        `json:"satisfied"`
	Tolerating    uint64        `json:"tolerating"`
	Frustrated    uint64        `json:"frustrated"`
}

// CacheStatistics 缓存效果统计
type CacheStatistics struct {
	HitRate                 float64 `json:"hit_rate"`
	TotalHits               uint64  `json:"total_hits"`
	TotalMisses             uint64  `json:"total_misses"`
	ImprovementHitVsNoCache float64 `json:"improvement_hit_vs_nocache"`
	ImprovementHitVsMiss    float64 `json:"improvement_hit_vs_miss"`
}

// RunSummary 一次运行的最终汇总
type RunSummary struct {
	NoCache         CategoryStats   `json:"no_cache"`
	CacheHit        CategoryStats   `json:"cache_hit"`
	CacheMiss       CategoryStats   `json:"cache_miss"`
	CacheStatistics CacheStatistics `json:"cache_statistics"`
}

// Category 按分类取汇总
func (s RunSummary) Category(c Category) CategoryStats {
	switch c {
	case NoCache:
		return s.NoCache
	case CacheHit:
		return s.CacheHit
	case CacheMiss:
		return s.CacheMiss
	}
	return CategoryStats{}
}

// HitRate 命中率（百分比），分母为 0 时返回 0
func HitRate(hits, misses uint64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total) * 100
}

// Improvement 相对 baseline 的提升百分比，允许为负；baseline 为 0 时返回 0
func Improvement(baseline, candidate float64) float64 {
	if baseline == 0 {
		return 0
	}
	return (baseline - candidate) / baseline * 100
}

// summarizeLatencies 计算延迟分布，空输入返回全 0。会对 values 原地排序。
func summarizeLatencies(values []float64) ResponseTimes {
	if len(values) == 0 {
		return ResponseTimes{}
	}
	sort.Float64s(values)

	var sum float64
	for _, v := range values {
		sum += v
	}

	return ResponseTimes{
		Avg: sum / float64(len(values)),
		Min: values[0],
		Max: values[len(values)-1],
		Med: percentile(values, 0.50),
		P90: percentile(values, 0.90),
		P95: percentile(values, 0.95),
		P99: percentile(values, 0.99),
	}
}

// percentile 在已排序数据上做线性插值
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := float64(len(sorted)-1) * p
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}
