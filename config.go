package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"cache-apdex-tester/internal/apdex"
)

// ===============================
// 配置加载模块
// ===============================

// 默认配置文件路径
const defaultConfigPath = "config.yaml"

// 默认测试目标
const (
	defaultNoCacheBaseURL = "https://hightide-no-cache.sple.my.id"
	defaultCacheBaseURL   = "https://hightide-cache.sple.my.id"
	defaultEndpoint       = "/call/automatic-report-twolevel/list"
	defaultPayloadSize    = 10
)

// Config 运行时配置
type Config struct {
	NoCacheBaseURL string // 未启用缓存的站点
	CacheBaseURL   string // 启用缓存的站点
	Endpoint       string // API路径
	PayloadSize    int    // 数据量标签（仅用于输出）
	TestRunID      string // 本次运行ID

	Thresholds apdex.Thresholds // Apdex 阈值 (ms)
	Stages     []Stage          // VU 阶段
	ThinkTime  time.Duration    // 每次探测后的等待
	MaxRPS     float64          // 全局请求速率上限，0 表示不限制

	Timeout            time.Duration // 请求超时
	Protocol           Protocol      // 协议
	PinIP              string        // 固定连接的IP，空表示正常解析
	InsecureSkipVerify bool          // 跳过证书校验

	Checks CheckThresholds // 运行结束后的通过条件

	// 输出配置
	OutputDir   string // 输出目录
	EnableLog   bool   // 是否启用日志文件
	EnableJSON  bool   // 是否生成 JSON 报告
	EnableCSV   bool   // 是否生成 CSV 报告
	EnableHTML  bool   // 是否生成 HTML 报告
	HistoryDB   string // 历史记录 SQLite 路径，空表示不记录
	MetricsAddr string // Prometheus 指标监听地址，空表示不启动
}

// Stage 一个负载阶段：在 Duration 内线性过渡到 Target 个 VU
type Stage struct {
	Duration time.Duration `json:"duration"`
	Target   int           `json:"target"`
}

// CheckThresholds 运行通过条件
type CheckThresholds struct {
	P95Ms       float64 `json:"p95_ms"`        // 全部成功请求的 P95 上限
	MaxFailRate float64 `json:"max_fail_rate"` // 失败率上限 (0-1)
}

// Protocol 协议类型
type Protocol int

const (
	HTTP1 Protocol = iota
	HTTP2
	HTTP3
)

func (p Protocol) String() string {
	switch p {
	case HTTP1:
		return "HTTP/1.1"
	case HTTP2:
		return "HTTP/2"
	case HTTP3:
		return "HTTP/3"
	default:
		return "Unknown"
	}
}

// parseProtocol 解析协议字符串，空值默认 HTTP/2（与常规客户端 ALPN 协商一致）
func parseProtocol(s string) Protocol {
	switch s {
	case "HTTP/3", "http3", "h3":
		return HTTP3
	case "HTTP/1.1", "http1", "h1":
		return HTTP1
	default:
		return HTTP2
	}
}

// 默认负载阶段：20 VU 预热后提升到 50 VU
func defaultStages() []Stage {
	return []Stage{
		{Duration: 30 * time.Second, Target: 20},
		{Duration: time.Minute, Target: 20},
		{Duration: 30 * time.Second, Target: 50},
		{Duration: time.Minute, Target: 50},
		{Duration: 30 * time.Second, Target: 0},
	}
}

// NoCacheURL 无缓存探测地址
func (c *Config) NoCacheURL() string {
	return strings.TrimRight(c.NoCacheBaseURL, "/") + c.Endpoint
}

// CacheURL 缓存探测地址（HIT 与强制 MISS 共用）
func (c *Config) CacheURL() string {
	return strings.TrimRight(c.CacheBaseURL, "/") + c.Endpoint
}

// MaxVUs 所有阶段中的最大 VU 数
func (c *Config) MaxVUs() int {
	n := 0
	for _, s := range c.Stages {
		if s.Target > n {
			n = s.Target
		}
	}
	return n
}

// TotalDuration 所有阶段总时长
func (c *Config) TotalDuration() time.Duration {
	var d time.Duration
	for _, s := range c.Stages {
		d += s.Duration
	}
	return d
}

// AdaptiveMaxVUs 按数据量给出的建议 VU 上限。
// 只用于报告标签，不参与实际调度。
func AdaptiveMaxVUs(payloadSize int) int {
	switch {
	case payloadSize >= 32000:
		return 25
	case payloadSize >= 8000:
		return 35
	default:
		return 50
	}
}

// ===============================
// YAML 配置结构
// ===============================

type yamlConfig struct {
	NoCacheBaseURL     string  `yaml:"no_cache_base_url"`
	CacheBaseURL       string  `yaml:"cache_base_url"`
	Endpoint           string  `yaml:"endpoint"`
	PayloadSize        int     `yaml:"payload_size"`
	TestRunID          string  `yaml:"test_run_id"`
	ThinkTime          string  `yaml:"think_time"`
	MaxRPS             float64 `yaml:"max_rps"`
	Timeout            string  `yaml:"timeout"`
	Protocol           string  `yaml:"protocol"`
	PinIP              string  `yaml:"pin_ip"`
	InsecureSkipVerify *bool   `yaml:"insecure_skip_verify"`
	MetricsAddr        string  `yaml:"metrics_addr"`
	Apdex              struct {
		T float64 `yaml:"t"`
		F float64 `yaml:"f"`
	} `yaml:"apdex"`
	Stages []struct {
		Duration string `yaml:"duration"`
		Target   int    `yaml:"target"`
	} `yaml:"stages"`
	Thresholds struct {
		P95Ms       *float64 `yaml:"p95_ms"`
		MaxFailRate *float64 `yaml:"max_fail_rate"`
	} `yaml:"thresholds"`
	Output struct {
		Dir        string `yaml:"dir"`
		EnableLog  bool   `yaml:"enable_log"`
		EnableJSON *bool  `yaml:"enable_json"`
		EnableCSV  *bool  `yaml:"enable_csv"`
		EnableHTML bool   `yaml:"enable_html"`
		HistoryDB  string `yaml:"history_db"`
	} `yaml:"output"`
}

// LoadConfig 从 YAML 文件加载配置，再应用环境变量覆盖。
// path 为空时读取默认路径，默认文件不存在则全部使用默认值。
func LoadConfig(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = defaultConfigPath
	}

	var yc yamlConfig
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &yc); err != nil {
			return nil, fmt.Errorf("解析配置文件失败: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
		// 使用默认值
	default:
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	cfg, err := yc.toConfig()
	if err != nil {
		return nil, err
	}
	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (yc *yamlConfig) toConfig() (*Config, error) {
	cfg := &Config{
		NoCacheBaseURL:     orDefault(yc.NoCacheBaseURL, defaultNoCacheBaseURL),
		CacheBaseURL:       orDefault(yc.CacheBaseURL, defaultCacheBaseURL),
		Endpoint:           orDefault(yc.Endpoint, defaultEndpoint),
		PayloadSize:        yc.PayloadSize,
		TestRunID:          yc.TestRunID,
		Thresholds:         apdex.Thresholds{T: yc.Apdex.T, F: yc.Apdex.F},
		MaxRPS:             yc.MaxRPS,
		Protocol:           parseProtocol(yc.Protocol),
		PinIP:              yc.PinIP,
		InsecureSkipVerify: boolOr(yc.InsecureSkipVerify, true),
		Checks: CheckThresholds{
			P95Ms:       floatOr(yc.Thresholds.P95Ms, 1000),
			MaxFailRate: floatOr(yc.Thresholds.MaxFailRate, 0.01),
		},
		OutputDir:   orDefault(yc.Output.Dir, "./results"),
		EnableLog:   yc.Output.EnableLog,
		EnableJSON:  boolOr(yc.Output.EnableJSON, true),
		EnableCSV:   boolOr(yc.Output.EnableCSV, true),
		EnableHTML:  yc.Output.EnableHTML,
		HistoryDB:   yc.Output.HistoryDB,
		MetricsAddr: yc.MetricsAddr,
	}

	if cfg.PayloadSize == 0 {
		cfg.PayloadSize = defaultPayloadSize
	}
	if cfg.Thresholds.T == 0 && cfg.Thresholds.F == 0 {
		cfg.Thresholds = apdex.DefaultThresholds
	}

	// 解析等待时间
	thinkTime, err := time.ParseDuration(yc.ThinkTime)
	if err != nil {
		thinkTime = 500 * time.Millisecond
	}
	cfg.ThinkTime = thinkTime

	// 解析超时时间
	timeout, err := time.ParseDuration(yc.Timeout)
	if err != nil {
		timeout = 30 * time.Second
	}
	cfg.Timeout = timeout

	// 转换阶段配置
	if len(yc.Stages) == 0 {
		cfg.Stages = defaultStages()
	} else {
		cfg.Stages = make([]Stage, len(yc.Stages))
		for i, s := range yc.Stages {
			d, err := time.ParseDuration(s.Duration)
			if err != nil {
				return nil, fmt.Errorf("解析第 %d 个阶段时长失败: %w", i+1, err)
			}
			cfg.Stages[i] = Stage{Duration: d, Target: s.Target}
		}
	}

	return cfg, nil
}

// applyEnv 环境变量覆盖（兼容原有 PAYLOAD_SIZE / TEST_RUN_ID / ENDPOINT 用法）
func applyEnv(cfg *Config) {
	cfg.PayloadSize = getEnvAsInt("PAYLOAD_SIZE", cfg.PayloadSize)
	cfg.TestRunID = getEnv("TEST_RUN_ID", cfg.TestRunID)
	cfg.Endpoint = getEnv("ENDPOINT", cfg.Endpoint)
	cfg.NoCacheBaseURL = getEnv("NO_CACHE_BASE_URL", cfg.NoCacheBaseURL)
	cfg.CacheBaseURL = getEnv("CACHE_BASE_URL", cfg.CacheBaseURL)
	cfg.MetricsAddr = getEnv("METRICS_ADDR", cfg.MetricsAddr)

	if cfg.TestRunID == "" {
		cfg.TestRunID = newRunID(time.Now())
	}
}

// newRunID ISO 时间戳，替换掉文件名中不友好的 ':' 与 '.'
func newRunID(t time.Time) string {
	id := t.UTC().Format("2006-01-02T15:04:05.000Z")
	return strings.NewReplacer(":", "-", ".", "-").Replace(id)
}

// Validate 校验配置
func (c *Config) Validate() error {
	if err := c.Thresholds.Validate(); err != nil {
		return err
	}
	if !strings.HasPrefix(c.Endpoint, "/") {
		return fmt.Errorf("endpoint 必须以 / 开头: %q", c.Endpoint)
	}
	if c.NoCacheBaseURL == "" || c.CacheBaseURL == "" {
		return errors.New("no_cache_base_url 与 cache_base_url 不能为空")
	}
	if len(c.Stages) == 0 {
		return errors.New("至少需要一个负载阶段")
	}
	for i, s := range c.Stages {
		if s.Duration <= 0 || s.Target < 0 {
			return fmt.Errorf("第 %d 个阶段非法: duration=%s target=%d", i+1, s.Duration, s.Target)
		}
	}
	if c.MaxRPS < 0 {
		return fmt.Errorf("max_rps 不能为负: %v", c.MaxRPS)
	}
	if c.Checks.MaxFailRate < 0 || c.Checks.MaxFailRate > 1 {
		return fmt.Errorf("max_fail_rate 必须在 0-1 之间: %v", c.Checks.MaxFailRate)
	}
	return nil
}

// ===============================
// 环境变量工具
// ===============================

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func floatOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}
