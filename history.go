package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"cache-apdex-tester/internal/apdex"
)

// ===============================
// 运行历史（SQLite）
// ===============================

// HistoryStore 保存每次运行的汇总，便于跨数据量/跨配置对比
type HistoryStore struct {
	db   *sql.DB
	path string
}

// HistoryEntry 历史列表中的一行
type HistoryEntry struct {
	ID             int64
	TestRunID      string
	PayloadSize    string
	StartedAt      time.Time
	DurationMs     int64
	Passed         bool
	HitRate        float64
	ImprovementNC  float64 // HIT vs NO-CACHE
	ImprovementMS  float64 // HIT vs MISS
	NoCacheApdex   float64
	CacheHitApdex  float64
	CacheMissApdex float64
}

// OpenHistory 打开（必要时创建）历史数据库
func OpenHistory(path string) (*HistoryStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("创建数据库目录失败: %w", err)
		}
	}

	// modernc.org/sqlite 使用 _pragma= 语法设置 PRAGMA
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := initHistorySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("初始化数据库 schema 失败: %w", err)
	}

	return &HistoryStore{db: db, path: path}, nil
}

func initHistorySchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			test_run_id TEXT NOT NULL,
			payload_size TEXT NOT NULL,
			started_at INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL,
			iterations INTEGER NOT NULL,
			fail_rate REAL NOT NULL,
			passed INTEGER NOT NULL,
			hit_rate REAL NOT NULL,
			improvement_hit_vs_nocache REAL NOT NULL,
			improvement_hit_vs_miss REAL NOT NULL,
			report_json TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS category_stats (
			run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			category TEXT NOT NULL,
			total_requests INTEGER NOT NULL,
			apdex_score REAL NOT NULL,
			avg_ms REAL NOT NULL,
			p95_ms REAL NOT NULL,
			satisfied INTEGER NOT NULL,
			tolerating INTEGER NOT NULL,
			frustrated INTEGER NOT NULL,
			PRIMARY KEY (run_id, category)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_payload ON runs(payload_size, started_at)`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Save 写入一次运行，返回记录ID
func (h *HistoryStore) Save(ctx context.Context, report *TestReport) (int64, error) {
	data, err := json.Marshal(report)
	if err != nil {
		return 0, fmt.Errorf("序列化报告失败: %w", err)
	}

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("开启事务失败: %w", err)
	}
	defer tx.Rollback()

	cs := report.CacheStatistics
	res, err := tx.ExecContext(ctx, `INSERT INTO runs (
			test_run_id, payload_size, started_at, duration_ms, iterations, fail_rate, passed,
			hit_rate, improvement_hit_vs_nocache, improvement_hit_vs_miss, report_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.TestConfiguration.TestRunID,
		report.TestConfiguration.PayloadSize,
		report.Run.StartTime.UnixMilli(),
		report.Run.DurationMs,
		report.Run.Iterations,
		report.Run.FailRate,
		report.Run.Passed,
		cs.HitRate,
		cs.ImprovementHitVsNoCache,
		cs.ImprovementHitVsMiss,
		string(data),
	)
	if err != nil {
		return 0, fmt.Errorf("写入运行记录失败: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("读取记录ID失败: %w", err)
	}

	for _, c := range apdex.Categories {
		s := report.Category(c)
		if _, err := tx.ExecContext(ctx, `INSERT INTO category_stats (
				run_id, category, total_requests, apdex_score, avg_ms, p95_ms, satisfied, tolerating, frustrated
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, c.String(), int64(s.TotalRequests), s.ApdexScore,
			s.ResponseTimes.Avg, s.ResponseTimes.P95,
			int64(s.Satisfied), int64(s.Tolerating), int64(s.Frustrated),
		); err != nil {
			return 0, fmt.Errorf("写入分类统计失败: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("提交事务失败: %w", err)
	}
	return id, nil
}

// List 按时间倒序列出最近 limit 条运行，payloadSize 非空时只看该数据量
func (h *HistoryStore) List(ctx context.Context, payloadSize string, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := h.db.QueryContext(ctx, `
		SELECT r.id, r.test_run_id, r.payload_size, r.started_at, r.duration_ms, r.passed,
			r.hit_rate, r.improvement_hit_vs_nocache, r.improvement_hit_vs_miss,
			COALESCE(MAX(CASE WHEN c.category = 'no_cache' THEN c.apdex_score END), 0),
			COALESCE(MAX(CASE WHEN c.category = 'cache_hit' THEN c.apdex_score END), 0),
			COALESCE(MAX(CASE WHEN c.category = 'cache_miss' THEN c.apdex_score END), 0)
		FROM runs r
		LEFT JOIN category_stats c ON c.run_id = r.id
		WHERE (? = '' OR r.payload_size = ?)
		GROUP BY r.id
		ORDER BY r.started_at DESC, r.id DESC
		LIMIT ?`, payloadSize, payloadSize, limit)
	if err != nil {
		return nil, fmt.Errorf("查询历史失败: %w", err)
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var startedAt int64
		if err := rows.Scan(&e.ID, &e.TestRunID, &e.PayloadSize, &startedAt, &e.DurationMs, &e.Passed,
			&e.HitRate, &e.ImprovementNC, &e.ImprovementMS,
			&e.NoCacheApdex, &e.CacheHitApdex, &e.CacheMissApdex); err != nil {
			return nil, fmt.Errorf("读取历史失败: %w", err)
		}
		e.StartedAt = time.UnixMilli(startedAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Load 读取某次运行的完整报告
func (h *HistoryStore) Load(ctx context.Context, id int64) (*TestReport, error) {
	var data string
	err := h.db.QueryRowContext(ctx, `SELECT report_json FROM runs WHERE id = ?`, id).Scan(&data)
	if err != nil {
		return nil, fmt.Errorf("读取运行记录失败: %w", err)
	}
	var report TestReport
	if err := json.Unmarshal([]byte(data), &report); err != nil {
		return nil, fmt.Errorf("解析运行记录失败: %w", err)
	}
	return &report, nil
}

// Close 关闭数据库
func (h *HistoryStore) Close() error {
	return h.db.Close()
}
