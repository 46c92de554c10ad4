package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLogger_ConsoleOnly(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&buf, t.TempDir(), false)
	require.NoError(t, err)

	logger.Printf("数据量: %d\n", 10)
	logger.Info("开始测试", zap.Int("max_vus", 50))
	logger.Debug("不会输出")
	require.NoError(t, logger.Close())

	assert.Empty(t, logger.GetLogPath())
	out := buf.String()
	assert.Contains(t, out, "数据量: 10")
	assert.Contains(t, out, "开始测试")
	assert.Contains(t, out, "max_vus")
	assert.NotContains(t, out, "不会输出")
}

func TestLogger_File(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	logger, err := newLogger(&buf, dir, true)
	require.NoError(t, err)

	logger.Section("测试配置")
	logger.Debug("调试信息", zap.String("probe", "Cache"))
	require.NoError(t, logger.Close())

	path := logger.GetLogPath()
	assert.Equal(t, filepath.Join(dir, "logs"), filepath.Dir(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	// 文件中既有纯文本，也有 JSON 结构化日志
	assert.Contains(t, string(data), "==================== 测试配置 ====================")
	assert.Contains(t, string(data), `"msg":"调试信息"`)
	assert.Contains(t, string(data), `"probe":"Cache"`)
	assert.NotContains(t, buf.String(), "调试信息")
}

func TestLogger_LogConfig(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&buf, "", false)
	require.NoError(t, err)

	cfg := testConfig("http://origin", "http://edge")
	cfg.MaxRPS = 12.5
	logger.LogConfig(*cfg)

	out := buf.String()
	assert.Contains(t, out, "http://origin/call/list")
	assert.Contains(t, out, "速率上限: 12.5 req/s")
	assert.Contains(t, out, "1. 100ms -> 2 VUs")
}

func TestLogger_Elapsed(t *testing.T) {
	logger := NewNopLogger()
	time.Sleep(5 * time.Millisecond)
	assert.GreaterOrEqual(t, logger.Elapsed(), 5*time.Millisecond)
	assert.Less(t, logger.Elapsed(), time.Minute)
}
