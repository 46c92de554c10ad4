package main

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"cache-apdex-tester/internal/apdex"
)

// ===============================
// 负载调度
// ===============================

const (
	defaultSchedulerTick = 100 * time.Millisecond
	defaultGracefulStop  = 30 * time.Second
)

// Runner 按阶段调度虚拟用户，每个 VU 循环执行三次探测
type Runner struct {
	cfg     *Config
	client  *http.Client
	agg     *apdex.Aggregator
	metrics *Metrics
	checks  *CheckStats
	limiter *rate.Limiter
	log     *zap.Logger

	tick         time.Duration // 调度器采样间隔
	gracefulStop time.Duration // 结束时等待 VU 完成当前迭代的上限
	iterations   atomic.Int64
}

// NewRunner 创建调度器；agg 由调用方持有，运行结束后用于生成报告
func NewRunner(cfg *Config, client *http.Client, agg *apdex.Aggregator, metrics *Metrics, log *zap.Logger) *Runner {
	r := &Runner{
		cfg:          cfg,
		client:       client,
		agg:          agg,
		metrics:      metrics,
		checks:       &CheckStats{},
		log:          log,
		tick:         defaultSchedulerTick,
		gracefulStop: defaultGracefulStop,
	}
	if cfg.MaxRPS > 0 {
		burst := int(math.Ceil(cfg.MaxRPS))
		r.limiter = rate.NewLimiter(rate.Limit(cfg.MaxRPS), burst)
	}
	return r
}

// Checks 返回探测检查计数
func (r *Runner) Checks() *CheckStats {
	return r.checks
}

// Run 执行全部阶段。ctx 取消时提前结束，已收集的数据仍然有效。
func (r *Runner) Run(ctx context.Context) (*RunStats, error) {
	stats := &RunStats{StartTime: time.Now()}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)

	var stops []chan struct{}
	nextID := 0
	start := time.Now()

	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()

	lastTarget := -1
schedule:
	for {
		target, done := stageTarget(r.cfg.Stages, time.Since(start))
		if done {
			break
		}

		// 扩容
		for len(stops) < target {
			stop := make(chan struct{})
			stops = append(stops, stop)
			id := nextID
			nextID++
			g.Go(func() error {
				return r.runVU(gctx, id, stop)
			})
		}
		// 缩容：多出的 VU 完成当前迭代后退出
		for len(stops) > target {
			last := len(stops) - 1
			close(stops[last])
			stops = stops[:last]
		}
		if target != lastTarget {
			r.log.Debug("VU 数量调整", zap.Int("target", target), zap.Duration("elapsed", time.Since(start)))
			lastTarget = target
		}

		select {
		case <-gctx.Done():
			stats.Interrupted = ctx.Err() != nil
			break schedule
		case <-ticker.C:
		}
	}

	for _, stop := range stops {
		close(stop)
	}

	waitDone := make(chan error, 1)
	go func() { waitDone <- g.Wait() }()

	var err error
	select {
	case err = <-waitDone:
	case <-time.After(r.gracefulStop):
		r.log.Info("等待 VU 超时，强制结束", zap.Duration("graceful_stop", r.gracefulStop))
		cancel()
		err = <-waitDone
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	stats.Iterations = r.iterations.Load()
	stats.Checks = r.checks.Results()
	stats.FailRate = r.checks.FailRate()
	stats.Summary = r.agg.Report()
	stats.Overall = r.agg.Overall()
	stats.Thresholds = evaluateThresholds(r.cfg.Checks, stats.Overall, stats.FailRate)

	if err != nil {
		return stats, fmt.Errorf("负载执行失败: %w", err)
	}
	return stats, nil
}

// stageTarget 计算 elapsed 时刻的目标 VU 数，阶段内线性插值，起始为 0。
// done=true 表示所有阶段已结束。
func stageTarget(stages []Stage, elapsed time.Duration) (int, bool) {
	from := 0
	for _, s := range stages {
		if elapsed < s.Duration {
			progress := float64(elapsed) / float64(s.Duration)
			return from + int(math.Floor(float64(s.Target-from)*progress)), false
		}
		elapsed -= s.Duration
		from = s.Target
	}
	return from, true
}

func (r *Runner) runVU(ctx context.Context, id int, stop <-chan struct{}) error {
	r.metrics.vuStarted()
	defer r.metrics.vuStopped()

	for iter := 0; ; iter++ {
		select {
		case <-ctx.Done():
			return nil
		case <-stop:
			return nil
		default:
		}
		r.iterate(ctx, id, iter)
	}
}

// iterate 一轮迭代：无缓存 → 缓存 → 强制 MISS，每次探测后等待 ThinkTime
func (r *Runner) iterate(ctx context.Context, vu, iter int) {
	for _, p := range Probes {
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return
			}
		}

		res := r.probe(ctx, p)
		// 运行被中断时的失败不计入统计
		if ctx.Err() != nil {
			return
		}
		res.VU = vu
		res.Iteration = iter
		r.handle(res)

		if !sleepCtx(ctx, r.cfg.ThinkTime) {
			return
		}
	}
	r.iterations.Add(1)
}

func (r *Runner) probe(ctx context.Context, p Probe) RequestResult {
	var target string
	switch p {
	case ProbeNoCache:
		target = r.cfg.NoCacheURL()
	case ProbeCache:
		target = r.cfg.CacheURL()
	case ProbeForcedMiss:
		u, err := cacheBustURL(r.cfg.CacheURL())
		if err != nil {
			return RequestResult{Probe: p, Error: err.Error()}
		}
		target = u
	}

	res := measureRequest(ctx, r.client, target)
	res.Probe = p
	return res
}

// handle 将结果分类并写入聚合器；非 200 的请求只计入检查失败
func (r *Runner) handle(res RequestResult) {
	r.checks.observe(res)
	r.metrics.ObserveRequest(res)

	if !res.OK() {
		r.log.Debug("请求失败",
			zap.String("probe", res.Probe.String()),
			zap.Int("vu", res.VU),
			zap.Int("status", res.StatusCode),
			zap.String("error", res.Error),
		)
		return
	}

	var category apdex.Category
	switch res.Probe {
	case ProbeNoCache:
		category = apdex.NoCache
	case ProbeCache:
		outcome := apdex.Classify(res.Headers)
		r.metrics.ObserveOutcome(outcome)
		category = apdex.CategoryFor(outcome)
	default:
		category = apdex.CacheMiss
	}

	latency := res.DurationMs()
	zone := r.agg.Record(category, latency)
	r.metrics.ObserveRecord(category, zone, latency)
}

// sleepCtx 可取消的等待，返回 false 表示 ctx 已结束
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// ===============================
// 检查与阈值
// ===============================

// CheckStats 每种探测的请求数与失败数
type CheckStats struct {
	total  [3]atomic.Int64
	failed [3]atomic.Int64
}

// CheckResult 单项检查结果
type CheckResult struct {
	Name   string `json:"name"`
	Passes int64  `json:"passes"`
	Fails  int64  `json:"fails"`
}

func (c *CheckStats) observe(res RequestResult) {
	i := int(res.Probe)
	if i < 0 || i >= len(c.total) {
		return
	}
	c.total[i].Add(1)
	if !res.OK() {
		c.failed[i].Add(1)
	}
}

// Results 按探测顺序返回检查结果
func (c *CheckStats) Results() []CheckResult {
	out := make([]CheckResult, 0, len(Probes))
	for _, p := range Probes {
		total := c.total[p].Load()
		fails := c.failed[p].Load()
		out = append(out, CheckResult{
			Name:   p.CheckName(),
			Passes: total - fails,
			Fails:  fails,
		})
	}
	return out
}

// FailRate 所有请求的失败比例，没有请求时为 0
func (c *CheckStats) FailRate() float64 {
	var total, fails int64
	for i := range c.total {
		total += c.total[i].Load()
		fails += c.failed[i].Load()
	}
	if total == 0 {
		return 0
	}
	return float64(fails) / float64(total)
}

// ThresholdResult 阈值判定结果
type ThresholdResult struct {
	Name   string  `json:"name"`
	Limit  float64 `json:"limit"`
	Actual float64 `json:"actual"`
	Passed bool    `json:"passed"`
}

func evaluateThresholds(th CheckThresholds, overall apdex.ResponseTimes, failRate float64) []ThresholdResult {
	return []ThresholdResult{
		{
			Name:   "http_req_duration p(95)",
			Limit:  th.P95Ms,
			Actual: overall.P95,
			Passed: overall.P95 < th.P95Ms,
		},
		{
			Name:   "http_req_failed rate",
			Limit:  th.MaxFailRate,
			Actual: failRate,
			Passed: failRate < th.MaxFailRate,
		},
	}
}

// RunStats 一次运行的完整结果
type RunStats struct {
	StartTime   time.Time
	EndTime     time.Time
	Duration    time.Duration
	Iterations  int64
	Interrupted bool
	Checks      []CheckResult
	FailRate    float64
	Summary     apdex.RunSummary
	Overall     apdex.ResponseTimes
	Thresholds  []ThresholdResult
}

// Passed 所有阈值是否通过
func (s *RunStats) Passed() bool {
	for _, t := range s.Thresholds {
		if !t.Passed {
			return false
		}
	}
	return true
}
