package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cache-apdex-tester/internal/apdex"
)

// clearEnv 屏蔽宿主机上可能存在的覆盖变量
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"PAYLOAD_SIZE", "TEST_RUN_ID", "ENDPOINT", "NO_CACHE_BASE_URL", "CACHE_BASE_URL", "METRICS_ADDR"} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig(writeConfig(t, ""))
	require.NoError(t, err)

	assert.Equal(t, defaultNoCacheBaseURL+defaultEndpoint, cfg.NoCacheURL())
	assert.Equal(t, defaultCacheBaseURL+defaultEndpoint, cfg.CacheURL())
	assert.Equal(t, defaultPayloadSize, cfg.PayloadSize)
	assert.Equal(t, apdex.DefaultThresholds, cfg.Thresholds)
	assert.Equal(t, defaultStages(), cfg.Stages)
	assert.Equal(t, 50, cfg.MaxVUs())
	assert.Equal(t, 3*time.Minute+30*time.Second, cfg.TotalDuration())
	assert.Equal(t, 500*time.Millisecond, cfg.ThinkTime)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, HTTP2, cfg.Protocol)
	assert.True(t, cfg.InsecureSkipVerify)
	assert.Equal(t, CheckThresholds{P95Ms: 1000, MaxFailRate: 0.01}, cfg.Checks)
	assert.Equal(t, "./results", cfg.OutputDir)
	assert.True(t, cfg.EnableJSON)
	assert.True(t, cfg.EnableCSV)
	assert.False(t, cfg.EnableHTML)
	assert.NotEmpty(t, cfg.TestRunID)
}

func TestLoadConfig_YAML(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, `
no_cache_base_url: http://origin.local/
cache_base_url: http://edge.local
endpoint: /call/income/list
payload_size: 8000
test_run_id: run-1
apdex: { t: 200, f: 800 }
stages:
  - { duration: 10s, target: 5 }
  - { duration: 20s, target: 0 }
think_time: 0s
protocol: h1
insecure_skip_verify: false
thresholds: { p95_ms: 300, max_fail_rate: 0.05 }
output:
  dir: /tmp/out
  enable_csv: false
  enable_html: true
  history_db: /tmp/out/h.db
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "http://origin.local/call/income/list", cfg.NoCacheURL())
	assert.Equal(t, "http://edge.local/call/income/list", cfg.CacheURL())
	assert.Equal(t, 8000, cfg.PayloadSize)
	assert.Equal(t, "run-1", cfg.TestRunID)
	assert.Equal(t, apdex.Thresholds{T: 200, F: 800}, cfg.Thresholds)
	assert.Equal(t, []Stage{{10 * time.Second, 5}, {20 * time.Second, 0}}, cfg.Stages)
	assert.Equal(t, time.Duration(0), cfg.ThinkTime)
	assert.Equal(t, HTTP1, cfg.Protocol)
	assert.False(t, cfg.InsecureSkipVerify)
	assert.Equal(t, CheckThresholds{P95Ms: 300, MaxFailRate: 0.05}, cfg.Checks)
	assert.True(t, cfg.EnableJSON)
	assert.False(t, cfg.EnableCSV)
	assert.True(t, cfg.EnableHTML)
	assert.Equal(t, "/tmp/out/h.db", cfg.HistoryDB)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PAYLOAD_SIZE", "32000")
	t.Setenv("TEST_RUN_ID", "from-env")
	t.Setenv("ENDPOINT", "/call/income/list")
	t.Setenv("CACHE_BASE_URL", "http://edge.example")

	cfg, err := LoadConfig(writeConfig(t, "payload_size: 10\ntest_run_id: from-file\n"))
	require.NoError(t, err)

	assert.Equal(t, 32000, cfg.PayloadSize)
	assert.Equal(t, "from-env", cfg.TestRunID)
	assert.Equal(t, "http://edge.example/call/income/list", cfg.CacheURL())
}

func TestLoadConfig_InvalidPayloadEnvIgnored(t *testing.T) {
	clearEnv(t)
	t.Setenv("PAYLOAD_SIZE", "lots")

	cfg, err := LoadConfig(writeConfig(t, "payload_size: 80\n"))
	require.NoError(t, err)
	assert.Equal(t, 80, cfg.PayloadSize)
}

func TestLoadConfig_Errors(t *testing.T) {
	clearEnv(t)

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "stages: [ {duration: soon, target: 1} ]"))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "apdex: { t: 900, f: 300 }"))
	assert.ErrorIs(t, err, apdex.ErrInvalidThresholds)

	_, err = LoadConfig(writeConfig(t, "endpoint: no-slash"))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "thresholds: { max_fail_rate: 2 }"))
	assert.Error(t, err)
}

func TestParseProtocol(t *testing.T) {
	assert.Equal(t, HTTP3, parseProtocol("h3"))
	assert.Equal(t, HTTP3, parseProtocol("HTTP/3"))
	assert.Equal(t, HTTP1, parseProtocol("http1"))
	assert.Equal(t, HTTP2, parseProtocol(""))
	assert.Equal(t, HTTP2, parseProtocol("whatever"))
	assert.Equal(t, "HTTP/1.1", HTTP1.String())
}

func TestAdaptiveMaxVUs(t *testing.T) {
	cases := map[int]int{
		10:    50,
		7999:  50,
		8000:  35,
		31999: 35,
		32000: 25,
		64000: 25,
	}
	for payload, want := range cases {
		assert.Equal(t, want, AdaptiveMaxVUs(payload), "payload=%d", payload)
	}
}

func TestNewRunID(t *testing.T) {
	ts := time.Date(2024, 5, 6, 7, 8, 9, 123000000, time.FixedZone("X", 3600))
	assert.Equal(t, "2024-05-06T06-08-09-123Z", newRunID(ts))
}
