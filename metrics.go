package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"cache-apdex-tester/internal/apdex"
)

// ===============================
// 实时指标
// ===============================

// Metrics 运行期间的 Prometheus 指标，使用独立 registry
type Metrics struct {
	registry  *prometheus.Registry
	requests  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	zones     *prometheus.CounterVec
	outcomes  *prometheus.CounterVec
	activeVUs prometheus.Gauge
}

// NewMetrics 注册指标；Apdex 分数在抓取时从聚合器实时计算
func NewMetrics(agg *apdex.Aggregator) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_apdex_requests_total",
				Help: "Requests issued per probe, split by result",
			},
			[]string{"probe", "result"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cache_apdex_request_duration_seconds",
				Help:    "Duration of successful requests per category",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 0.75, 1, 1.5, 2, 3, 5, 10},
			},
			[]string{"category"},
		),
		zones: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_apdex_zone_total",
				Help: "Apdex zone classification per category",
			},
			[]string{"category", "zone"},
		),
		outcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_apdex_cache_outcome_total",
				Help: "Cache probe outcomes derived from response headers",
			},
			[]string{"outcome"},
		),
		activeVUs: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "cache_apdex_active_vus",
				Help: "Number of running virtual users",
			},
		),
	}

	for _, c := range apdex.Categories {
		factory.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name:        "cache_apdex_score",
				Help:        "Current Apdex score per category",
				ConstLabels: prometheus.Labels{"category": c.String()},
			},
			func() float64 { return agg.Summarize(c).ApdexScore },
		)
	}

	return m
}

// Registry 返回内部 registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveRequest 记录一次请求结果
func (m *Metrics) ObserveRequest(res RequestResult) {
	result := "ok"
	if !res.OK() {
		result = "failed"
	}
	m.requests.WithLabelValues(res.Probe.String(), result).Inc()
}

// ObserveRecord 记录一次进入聚合器的观测
func (m *Metrics) ObserveRecord(c apdex.Category, z apdex.Zone, latencyMs float64) {
	m.duration.WithLabelValues(c.String()).Observe(latencyMs / 1000)
	m.zones.WithLabelValues(c.String(), z.String()).Inc()
}

// ObserveOutcome 记录缓存探测结果
func (m *Metrics) ObserveOutcome(o apdex.Outcome) {
	m.outcomes.WithLabelValues(o.String()).Inc()
}

func (m *Metrics) vuStarted() { m.activeVUs.Inc() }
func (m *Metrics) vuStopped() { m.activeVUs.Dec() }

// Router 指标与实时汇总接口
func (m *Metrics) Router(agg *apdex.Aggregator) http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	r.Get("/summary", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(agg.Report())
	})
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

// Serve 在 ctx 结束前持续提供指标接口
func (m *Metrics) Serve(ctx context.Context, addr string, agg *apdex.Aggregator, log *zap.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           m.Router(agg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("指标服务已启动", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
