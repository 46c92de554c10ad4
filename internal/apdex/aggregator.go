package apdex

import "sync"

// Category 观测分类
type Category int

const (
	NoCache Category = iota
	CacheHit
	CacheMiss

	numCategories
)

// Categories 固定输出顺序
var Categories = []Category{NoCache, CacheHit, CacheMiss}

// String 返回用于 JSON/指标的前缀名
func (c Category) String() string {
	switch c {
	case NoCache:
		return "no_cache"
	case CacheHit:
		return "cache_hit"
	case CacheMiss:
		return "cache_miss"
	default:
		return "unknown"
	}
}

// Title 返回用于控制台/CSV 的显示名
func (c Category) Title() string {
	switch c {
	case NoCache:
		return "No Cache"
	case CacheHit:
		return "Cache HIT"
	case CacheMiss:
		return "Cache MISS"
	default:
		return "Unknown"
	}
}

// CategoryFor 缓存探测结果对应的分类
func CategoryFor(o Outcome) Category {
	if o == Hit {
		return CacheHit
	}
	return CacheMiss
}

// Observation 一次成功请求的观测值
type Observation struct {
	Category  Category
	LatencyMs float64
}

type bucket struct {
	satisfied  uint64
	tolerating uint64
	frustrated uint64
	latencies  []float64
}

// Aggregator 按分类累计 Apdex 计数与延迟分布，并发安全。
// 每次运行创建一个实例，Record 与 Summarize/Report 可任意交错。
type Aggregator struct {
	thresholds Thresholds

	mu      sync.RWMutex
	buckets [numCategories]bucket
}

// NewAggregator 创建聚合器，阈值非法时返回 ErrInvalidThresholds
func NewAggregator(t Thresholds) (*Aggregator, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &Aggregator{thresholds: t}, nil
}

// Thresholds 返回聚合器使用的阈值
func (a *Aggregator) Thresholds() Thresholds {
	return a.thresholds
}

// Record 记录一次观测，计数与延迟追加作为一个整体完成
func (a *Aggregator) Record(c Category, latencyMs float64) Zone {
	zone := a.thresholds.Zone(latencyMs)
	if c < 0 || c >= numCategories {
		return zone
	}

	a.mu.Lock()
	b := &a.buckets[c]
	b.latencies = append(b.latencies, latencyMs)
	switch zone {
	case Satisfied:
		b.satisfied++
	case Tolerating:
		b.tolerating++
	default:
		b.frustrated++
	}
	a.mu.Unlock()

	return zone
}

// RecordObservation Record 的 Observation 版本
func (a *Aggregator) RecordObservation(o Observation) Zone {
	return a.Record(o.Category, o.LatencyMs)
}

// Summarize 返回分类的当前汇总，空桶返回零值
func (a *Aggregator) Summarize(c Category) CategoryStats {
	if c < 0 || c >= numCategories {
		return CategoryStats{}
	}
	a.mu.RLock()
	b := a.snapshotLocked(c)
	a.mu.RUnlock()
	return b.stats()
}

// Report 基于同一时刻的三个分类快照计算整体汇总
func (a *Aggregator) Report() RunSummary {
	var snaps [numCategories]bucket
	a.mu.RLock()
	for _, c := range Categories {
		snaps[c] = a.snapshotLocked(c)
	}
	a.mu.RUnlock()

	s := RunSummary{
		NoCache:   snaps[NoCache].stats(),
		CacheHit:  snaps[CacheHit].stats(),
		CacheMiss: snaps[CacheMiss].stats(),
	}

	hitAvg := s.CacheHit.ResponseTimes.Avg
	s.CacheStatistics = CacheStatistics{
		HitRate:                 HitRate(s.CacheHit.TotalRequests, s.CacheMiss.TotalRequests),
		TotalHits:               s.CacheHit.TotalRequests,
		TotalMisses:             s.CacheMiss.TotalRequests,
		ImprovementHitVsNoCache: Improvement(s.NoCache.ResponseTimes.Avg, hitAvg),
		ImprovementHitVsMiss:    Improvement(s.CacheMiss.ResponseTimes.Avg, hitAvg),
	}
	return s
}

// Overall 所有分类合并后的延迟分布
func (a *Aggregator) Overall() ResponseTimes {
	a.mu.RLock()
	n := 0
	for _, c := range Categories {
		n += len(a.buckets[c].latencies)
	}
	all := make([]float64, 0, n)
	for _, c := range Categories {
		all = append(all, a.buckets[c].latencies...)
	}
	a.mu.RUnlock()
	return summarizeLatencies(all)
}

// Latencies 返回分类延迟的副本（按记录顺序）
func (a *Aggregator) Latencies(c Category) []float64 {
	if c < 0 || c >= numCategories {
		return nil
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]float64, len(a.buckets[c].latencies))
	copy(out, a.buckets[c].latencies)
	return out
}

// 调用方需持有读锁；延迟切片为副本，后续排序不影响原数据
func (a *Aggregator) snapshotLocked(c Category) bucket {
	b := a.buckets[c]
	lat := make([]float64, len(b.latencies))
	copy(lat, b.latencies)
	b.latencies = lat
	return b
}

func (b bucket) stats() CategoryStats {
	return CategoryStats{
		TotalRequests: b.satisfied + b.tolerating + b.frustrated,
		ApdexScore:    Score(b.satisfied, b.tolerating, b.frustrated),
		ResponseTimes: summarizeLatencies(b.latencies),
		Satisfied:     b.satisfied,
		Tolerating:    b.tolerating,
		Frustrated:    b.frustrated,
	}
}
