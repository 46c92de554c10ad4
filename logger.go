package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ===============================
// 日志模块
// ===============================

// Logger 控制台输出 + 结构化日志
//
// Printf/Println 写纯文本（报告、进度），Info/Error/Debug 走 zap；
// 启用日志文件时两者都会额外写入 <output>/logs/<时间戳>.log。
type Logger struct {
	zap       *zap.Logger
	file      *lumberjack.Logger
	textOut   io.Writer
	startTime time.Time
	logPath   string
}

// NewLogger 创建新的日志记录器，控制台输出到 stdout
func NewLogger(outputDir string, enabled bool) (*Logger, error) {
	return newLogger(os.Stdout, outputDir, enabled)
}

// NewNopLogger 丢弃所有输出，用于测试
func NewNopLogger() *Logger {
	return &Logger{
		zap:       zap.NewNop(),
		textOut:   io.Discard,
		startTime: time.Now(),
	}
}

func newLogger(console io.Writer, outputDir string, enabled bool) (*Logger, error) {
	logger := &Logger{
		startTime: time.Now(),
		textOut:   console,
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	consoleCore := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(console), zap.InfoLevel)

	if !enabled {
		logger.zap = zap.New(consoleCore)
		return logger, nil
	}

	logDir := filepath.Join(outputDir, "logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("创建日志目录失败: %w", err)
	}

	timestamp := logger.startTime.Format("2006-01-02_15-04-05")
	logger.logPath = filepath.Join(logDir, fmt.Sprintf("%s.log", timestamp))
	logger.file = &lumberjack.Logger{
		Filename:   logger.logPath,
		MaxSize:    100, // MB
		MaxBackups: 10,
		MaxAge:     30, // 天
		Compress:   true,
	}

	fileCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		zapcore.AddSync(logger.file),
		zap.DebugLevel,
	)
	logger.zap = zap.New(zapcore.NewTee(consoleCore, fileCore))
	logger.textOut = io.MultiWriter(console, logger.file)

	return logger, nil
}

// Close 刷新并关闭日志文件
func (l *Logger) Close() error {
	_ = l.zap.Sync()
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Zap 返回底层 zap.Logger，供其它组件使用
func (l *Logger) Zap() *zap.Logger {
	return l.zap
}

// Writer 纯文本输出目标（控制台，启用时同时写文件）
func (l *Logger) Writer() io.Writer {
	return l.textOut
}

// GetLogPath 获取日志文件路径
func (l *Logger) GetLogPath() string {
	return l.logPath
}

// Elapsed 自日志创建以来的耗时
func (l *Logger) Elapsed() time.Duration {
	return time.Since(l.startTime)
}

// Printf 格式化输出
func (l *Logger) Printf(format string, args ...interface{}) {
	fmt.Fprintf(l.textOut, format, args...)
}

// Println 输出一行
func (l *Logger) Println(args ...interface{}) {
	fmt.Fprintln(l.textOut, args...)
}

// Info 结构化信息日志
func (l *Logger) Info(msg string, fields ...zap.Field) {
	l.zap.Info(msg, fields...)
}

// Error 结构化错误日志
func (l *Logger) Error(msg string, fields ...zap.Field) {
	l.zap.Error(msg, fields...)
}

// Debug 调试日志，只写入日志文件
func (l *Logger) Debug(msg string, fields ...zap.Field) {
	l.zap.Debug(msg, fields...)
}

// Section 输出分隔区域
func (l *Logger) Section(title string) {
	l.Println()
	l.Printf("==================== %s ====================\n", title)
}

// LogConfig 记录配置信息
func (l *Logger) LogConfig(cfg Config) {
	l.Section("测试配置")
	l.Printf("无缓存地址: %s\n", cfg.NoCacheURL())
	l.Printf("缓存地址: %s\n", cfg.CacheURL())
	l.Printf("数据量: %d records\n", cfg.PayloadSize)
	l.Printf("运行ID: %s\n", cfg.TestRunID)
	l.Printf("APDEX T: %.0fms | F: %.0fms\n", cfg.Thresholds.T, cfg.Thresholds.F)
	l.Printf("协议: %s\n", cfg.Protocol)
	l.Printf("请求超时: %s, 探测间隔: %s\n", cfg.Timeout, cfg.ThinkTime)
	if cfg.MaxRPS > 0 {
		l.Printf("速率上限: %.1f req/s\n", cfg.MaxRPS)
	}
	l.Println("负载阶段:")
	for i, s := range cfg.Stages {
		l.Printf("  %d. %s -> %d VUs\n", i+1, s.Duration, s.Target)
	}
}
