package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"cache-apdex-tester/internal/apdex"
)

// ===============================
// 报告导出模块
// ===============================

// TestReport 完整测试报告，apdex.RunSummary 的字段平铺在顶层
type TestReport struct {
	TestConfiguration TestConfiguration `json:"test_configuration"`
	apdex.RunSummary
	Checks     []CheckResult     `json:"checks"`
	Thresholds []ThresholdResult `json:"thresholds"`
	Run        RunInfo           `json:"run"`
}

// TestConfiguration 配置快照（用于报告）
type TestConfiguration struct {
	Timestamp         time.Time   `json:"timestamp"`
	PayloadSize       string      `json:"payload_size"`
	TestRunID         string      `json:"test_run_id"`
	ApdexT            float64     `json:"apdex_t"`
	ApdexF            float64     `json:"apdex_f"`
	APINoCache        string      `json:"api_no_cache"`
	APIWithCache      string      `json:"api_with_cache"`
	Protocol          string      `json:"protocol"`
	AdaptiveVUScaling bool        `json:"adaptive_vu_scaling"`
	MaxVUs            int         `json:"max_vus"`
	Stages            []StageInfo `json:"stages"`
}

// StageInfo 阶段信息（用于报告）
type StageInfo struct {
	Duration string `json:"duration"`
	Target   int    `json:"target"`
}

// RunInfo 运行信息
type RunInfo struct {
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	DurationMs  int64     `json:"duration_ms"`
	Iterations  int64     `json:"iterations"`
	FailRate    float64   `json:"fail_rate"`
	Interrupted bool      `json:"interrupted"`
	Passed      bool      `json:"passed"`
}

// NewTestReport 根据配置与运行结果创建报告
func NewTestReport(cfg *Config, stats *RunStats) *TestReport {
	stages := make([]StageInfo, len(cfg.Stages))
	for i, s := range cfg.Stages {
		stages[i] = StageInfo{Duration: s.Duration.String(), Target: s.Target}
	}

	return &TestReport{
		TestConfiguration: TestConfiguration{
			Timestamp:         stats.EndTime,
			PayloadSize:       strconv.Itoa(cfg.PayloadSize),
			TestRunID:         cfg.TestRunID,
			ApdexT:            cfg.Thresholds.T,
			ApdexF:            cfg.Thresholds.F,
			APINoCache:        cfg.NoCacheURL(),
			APIWithCache:      cfg.CacheURL(),
			Protocol:          cfg.Protocol.String(),
			AdaptiveVUScaling: true,
			MaxVUs:            AdaptiveMaxVUs(cfg.PayloadSize),
			Stages:            stages,
		},
		RunSummary: stats.Summary,
		Checks:     stats.Checks,
		Thresholds: stats.Thresholds,
		Run: RunInfo{
			StartTime:   stats.StartTime,
			EndTime:     stats.EndTime,
			DurationMs:  stats.Duration.Milliseconds(),
			Iterations:  stats.Iterations,
			FailRate:    stats.FailRate,
			Interrupted: stats.Interrupted,
			Passed:      stats.Passed(),
		},
	}
}

// reportPath 结果文件路径: <dir>/test_<payload>_records_<runID>.<ext>
func reportPath(report *TestReport, outputDir, ext string) string {
	name := fmt.Sprintf("test_%s_records_%s.%s",
		report.TestConfiguration.PayloadSize, report.TestConfiguration.TestRunID, ext)
	return filepath.Join(outputDir, name)
}

// ExportJSON 导出 JSON 格式报告
func ExportJSON(report *TestReport, outputDir string) (string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("创建报告目录失败: %w", err)
	}
	filePath := reportPath(report, outputDir, "json")

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("JSON 序列化失败: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return "", fmt.Errorf("写入 JSON 文件失败: %w", err)
	}

	return filePath, nil
}

// LoadReport 读取 JSON 报告
func LoadReport(path string) (*TestReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取报告失败: %w", err)
	}
	var report TestReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("解析报告失败: %w", err)
	}
	return &report, nil
}

// csvHeader CSV 表头
var csvHeader = []string{"Metric", "No Cache", "Cache HIT", "Cache MISS"}

// csvRows 每个分类一列；数值保留完整精度
func csvRows(s apdex.RunSummary) [][]string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	u := func(v uint64) string { return strconv.FormatUint(v, 10) }

	row := func(name string, get func(apdex.CategoryStats) string) []string {
		out := []string{name}
		for _, c := range apdex.Categories {
			out = append(out, get(s.Category(c)))
		}
		return out
	}

	rows := [][]string{
		row("Total Requests", func(c apdex.CategoryStats) string { return u(c.TotalRequests) }),
		row("APDEX Score", func(c apdex.CategoryStats) string { return f(c.ApdexScore) }),
		row("Avg Response (ms)", func(c apdex.CategoryStats) string { return f(c.ResponseTimes.Avg) }),
		row("Min Response (ms)", func(c apdex.CategoryStats) string { return f(c.ResponseTimes.Min) }),
		row("Max Response (ms)", func(c apdex.CategoryStats) string { return f(c.ResponseTimes.Max) }),
		row("Median Response (ms)", func(c apdex.CategoryStats) string { return f(c.ResponseTimes.Med) }),
		row("P90 Response (ms)", func(c apdex.CategoryStats) string { return f(c.ResponseTimes.P90) }),
		row("P95 Response (ms)", func(c apdex.CategoryStats) string { return f(c.ResponseTimes.P95) }),
		row("P99 Response (ms)", func(c apdex.CategoryStats) string { return f(c.ResponseTimes.P99) }),
		row("Satisfied Count", func(c apdex.CategoryStats) string { return u(c.Satisfied) }),
		row("Tolerating Count", func(c apdex.CategoryStats) string { return u(c.Tolerating) }),
		row("Frustrated Count", func(c apdex.CategoryStats) string { return u(c.Frustrated) }),
	}

	cs := s.CacheStatistics
	rows = append(rows,
		[]string{"Hit Rate (%)", f(cs.HitRate), "", ""},
		[]string{"Total Hits", u(cs.TotalHits), "", ""},
		[]string{"Total Misses", u(cs.TotalMisses), "", ""},
		[]string{"Improvement HIT vs NO-CACHE (%)", f(cs.ImprovementHitVsNoCache), "", ""},
		[]string{"Improvement HIT vs MISS (%)", f(cs.ImprovementHitVsMiss), "", ""},
	)
	return rows
}

// ExportCSV 导出 CSV 格式报告
func ExportCSV(report *TestReport, outputDir string) (string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("创建报告目录失败: %w", err)
	}
	filePath := reportPath(report, outputDir, "csv")

	file, err := os.Create(filePath)
	if err != nil {
		return "", fmt.Errorf("创建 CSV 文件失败: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write(csvHeader); err != nil {
		return "", fmt.Errorf("写入 CSV 失败: %w", err)
	}
	if err := w.WriteAll(csvRows(report.RunSummary)); err != nil {
		return "", fmt.Errorf("写入 CSV 失败: %w", err)
	}

	return filePath, nil
}

// ExportHTML 导出 HTML 格式报告
func ExportHTML(report *TestReport, outputDir string) (string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("创建报告目录失败: %w", err)
	}
	filePath := reportPath(report, outputDir, "html")

	file, err := os.Create(filePath)
	if err != nil {
		return "", fmt.Errorf("创建 HTML 文件失败: %w", err)
	}
	defer file.Close()

	type categoryView struct {
		Title string
		Stats apdex.CategoryStats
	}

	tmpl, err := template.New("report").Funcs(template.FuncMap{
		"formatTime": func(t time.Time) string {
			return t.Format("2006-01-02 15:04:05")
		},
		// 根据 Apdex 分数返回颜色类
		"apdexClass": func(score float64) string {
			switch {
			case score >= 0.94:
				return "perf-excellent"
			case score >= 0.85:
				return "perf-good"
			case score >= 0.70:
				return "perf-fair"
			}
			return "perf-poor"
		},
		"signedClass": func(v float64) string {
			if v < 0 {
				return "perf-poor"
			}
			return "perf-excellent"
		},
		"categories": func(s apdex.RunSummary) []categoryView {
			out := make([]categoryView, 0, len(apdex.Categories))
			for _, c := range apdex.Categories {
				out = append(out, categoryView{Title: c.Title(), Stats: s.Category(c)})
			}
			return out
		},
	}).Parse(htmlTemplate)
	if err != nil {
		return "", fmt.Errorf("解析 HTML 模板失败: %w", err)
	}

	if err := tmpl.Execute(file, report); err != nil {
		return "", fmt.Errorf("渲染 HTML 模板失败: %w", err)
	}

	return filePath, nil
}

// HTML 模板
const htmlTemplate = `<!DOCTYPE html>
<html lang="zh-CN">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>缓存 Apdex 测试报告 - {{.TestConfiguration.TestRunID}}</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif;
            background: linear-gradient(135deg, #0f0f1a 0%, #1a1a2e 50%, #16213e 100%);
            color: #e8e8e8;
            min-height: 100vh;
            padding: 20px;
        }
        .container { max-width: 1200px; margin: 0 auto; }
        h1 { text-align: center; font-size: 2.2em; margin-bottom: 10px; color: #00d4ff; }
        .subtitle { text-align: center; color: #888; margin-bottom: 30px; }
        .card {
            background: rgba(255, 255, 255, 0.03);
            border-radius: 16px;
            padding: 24px;
            margin-bottom: 24px;
            border: 1px solid rgba(255, 255, 255, 0.08);
        }
        .card h2 { font-size: 1.3em; margin-bottom: 16px; color: #00d4ff; }
        .config-grid { display: grid; grid-template-columns: repeat(auto-fit, minmax(200px, 1fr)); gap: 16px; }
        .config-item { padding: 12px; background: rgba(0, 0, 0, 0.3); border-radius: 8px; }
        .config-item label { display: block; font-size: 0.85em; color: #888; margin-bottom: 4px; }
        .config-item span { font-size: 1.1em; font-weight: 600; color: #fff; word-break: break-all; }
        table { width: 100%; border-collapse: collapse; font-size: 0.9em; }
        th, td { padding: 10px 12px; text-align: right; border-bottom: 1px solid rgba(255, 255, 255, 0.06); }
        th:first-child, td:first-child { text-align: left; }
        th { color: #888; font-weight: 500; }
        .perf-excellent { color: #34d399; }
        .perf-good { color: #4ade80; }
        .perf-fair { color: #fbbf24; }
        .perf-poor { color: #f87171; }
    </style>
</head>
<body>
<div class="container">
    <h1>缓存 Apdex 测试报告</h1>
    <p class="subtitle">生成时间: {{formatTime .TestConfiguration.Timestamp}} | 耗时: {{.Run.DurationMs}} ms | 迭代: {{.Run.Iterations}}</p>

    <div class="card">
        <h2>⚙️ 测试配置</h2>
        <div class="config-grid">
            <div class="config-item"><label>数据量</label><span>{{.TestConfiguration.PayloadSize}} records</span></div>
            <div class="config-item"><label>运行ID</label><span>{{.TestConfiguration.TestRunID}}</span></div>
            <div class="config-item"><label>APDEX T / F</label><span>{{.TestConfiguration.ApdexT}} / {{.TestConfiguration.ApdexF}} ms</span></div>
            <div class="config-item"><label>Max VUs</label><span>{{.TestConfiguration.MaxVUs}}</span></div>
            <div class="config-item"><label>无缓存</label><span>{{.TestConfiguration.APINoCache}}</span></div>
            <div class="config-item"><label>缓存</label><span>{{.TestConfiguration.APIWithCache}}</span></div>
        </div>
    </div>

    <div class="card">
        <h2>📊 Apdex 汇总</h2>
        <table>
            <tr><th>分类</th><th>请求数</th><th>Apdex</th><th>均值</th><th>P50</th><th>P90</th><th>P95</th><th>P99</th><th>满意</th><th>可容忍</th><th>失望</th></tr>
            {{range categories .RunSummary}}
            <tr>
                <td>{{.Title}}</td>
                <td>{{.Stats.TotalRequests}}</td>
                <td class="{{apdexClass .Stats.ApdexScore}}">{{printf "%.4f" .Stats.ApdexScore}}</td>
                <td>{{printf "%.2f" .Stats.ResponseTimes.Avg}}</td>
                <td>{{printf "%.2f" .Stats.ResponseTimes.Med}}</td>
                <td>{{printf "%.2f" .Stats.ResponseTimes.P90}}</td>
                <td>{{printf "%.2f" .Stats.ResponseTimes.P95}}</td>
                <td>{{printf "%.2f" .Stats.ResponseTimes.P99}}</td>
                <td>{{.Stats.Satisfied}}</td>
                <td>{{.Stats.Tolerating}}</td>
                <td>{{.Stats.Frustrated}}</td>
            </tr>
            {{end}}
        </table>
    </div>

    <div class="card">
        <h2>🚀 缓存效果</h2>
        <div class="config-grid">
            <div class="config-item"><label>命中率</label><span>{{printf "%.2f" .CacheStatistics.HitRate}}%</span></div>
            <div class="config-item"><label>HIT / MISS</label><span>{{.CacheStatistics.TotalHits}} / {{.CacheStatistics.TotalMisses}}</span></div>
            <div class="config-item"><label>HIT vs NO-CACHE</label><span class="{{signedClass .CacheStatistics.ImprovementHitVsNoCache}}">{{printf "%.2f" .CacheStatistics.ImprovementHitVsNoCache}}%</span></div>
            <div class="config-item"><label>HIT vs MISS</label><span class="{{signedClass .CacheStatistics.ImprovementHitVsMiss}}">{{printf "%.2f" .CacheStatistics.ImprovementHitVsMiss}}%</span></div>
        </div>
    </div>

    <div class="card">
        <h2>✅ 检查与阈值</h2>
        <table>
            <tr><th>检查</th><th>通过</th><th>失败</th></tr>
            {{range .Checks}}<tr><td>{{.Name}}</td><td>{{.Passes}}</td><td>{{.Fails}}</td></tr>{{end}}
        </table>
        <br>
        <table>
            <tr><th>阈值</th><th>上限</th><th>实际</th><th>结果</th></tr>
            {{range .Thresholds}}<tr><td>{{.Name}}</td><td>{{.Limit}}</td><td>{{printf "%.4f" .Actual}}</td><td class="{{if .Passed}}perf-excellent{{else}}perf-poor{{end}}">{{if .Passed}}通过{{else}}未通过{{end}}</td></tr>{{end}}
        </table>
    </div>
</div>
</body>
</html>
`
