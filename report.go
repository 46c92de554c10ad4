package main

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"

	"cache-apdex-tester/internal/apdex"
)

// ===============================
// 控制台输出
// ===============================

const boxLine = "═══════════════════════════════════════════════════════════════"

// printSummaryBox 打印文本汇总
func printSummaryBox(w io.Writer, report *TestReport, savedTo []string) {
	tc := report.TestConfiguration

	fmt.Fprintln(w)
	fmt.Fprintln(w, "╔═══════════════════════════════════════════════════════════════╗")
	fmt.Fprintln(w, "║                    CACHE APDEX TEST SUMMARY                   ║")
	fmt.Fprintln(w, "╚═══════════════════════════════════════════════════════════════╝")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Test Configuration:")
	fmt.Fprintf(w, "  Payload Size: %s records\n", tc.PayloadSize)
	fmt.Fprintf(w, "  Test Run ID: %s\n", tc.TestRunID)
	fmt.Fprintf(w, "  APDEX T: %.0fms | F: %.0fms\n", tc.ApdexT, tc.ApdexF)
	fmt.Fprintf(w, "  Max VUs: %d\n", tc.MaxVUs)
	fmt.Fprintln(w)
	fmt.Fprintln(w, boxLine)

	for _, c := range apdex.Categories {
		s := report.Category(c)
		fmt.Fprintln(w)
		fmt.Fprintf(w, "%s Results:\n", c.Title())
		fmt.Fprintf(w, "  Total Requests: %d\n", s.TotalRequests)
		fmt.Fprintf(w, "  APDEX Score: %.4f\n", s.ApdexScore)
		fmt.Fprintf(w, "  Avg Response: %.2fms\n", s.ResponseTimes.Avg)
		fmt.Fprintf(w, "  P95 Response: %.2fms\n", s.ResponseTimes.P95)
		fmt.Fprintf(w, "  Satisfied: %d | Tolerating: %d | Frustrated: %d\n", s.Satisfied, s.Tolerating, s.Frustrated)
	}

	cs := report.CacheStatistics
	fmt.Fprintln(w)
	fmt.Fprintln(w, boxLine)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Cache Performance:")
	fmt.Fprintf(w, "  Hit Rate: %.2f%%\n", cs.HitRate)
	fmt.Fprintf(w, "  Improvement (HIT vs NO-CACHE): %.2f%%\n", cs.ImprovementHitVsNoCache)
	fmt.Fprintf(w, "  Improvement (HIT vs MISS): %.2f%%\n", cs.ImprovementHitVsMiss)
	fmt.Fprintln(w)
	fmt.Fprintln(w, boxLine)

	if len(savedTo) > 0 {
		fmt.Fprintln(w, "✓ Results saved to:")
		for _, p := range savedTo {
			fmt.Fprintf(w, "  - %s\n", p)
		}
		fmt.Fprintln(w, boxLine)
	}
}

// printSummaryTable 打印分类对比表格
func printSummaryTable(w io.Writer, summary apdex.RunSummary) {
	fmt.Fprintln(w, "\n📈 分类汇总:")

	table := tablewriter.NewTable(w,
		tablewriter.WithHeader([]string{
			"分类", "请求数", "Apdex",
			"均值", "最小", "最大", "P50", "P90", "P95", "P99",
			"满意", "可容忍", "失望",
		}),
	)

	for _, c := range apdex.Categories {
		s := summary.Category(c)
		rt := s.ResponseTimes
		table.Append([]string{
			c.Title(),
			fmt.Sprintf("%d", s.TotalRequests),
			fmt.Sprintf("%.4f", s.ApdexScore),
			fmt.Sprintf("%.2f", rt.Avg),
			fmt.Sprintf("%.2f", rt.Min),
			fmt.Sprintf("%.2f", rt.Max),
			fmt.Sprintf("%.2f", rt.Med),
			fmt.Sprintf("%.2f", rt.P90),
			fmt.Sprintf("%.2f", rt.P95),
			fmt.Sprintf("%.2f", rt.P99),
			fmt.Sprintf("%d", s.Satisfied),
			fmt.Sprintf("%d", s.Tolerating),
			fmt.Sprintf("%d", s.Frustrated),
		})
	}

	table.Render()
	fmt.Fprintln(w, "\n💡 说明: 所有时间单位均为毫秒(ms)")
	fmt.Fprintln(w, "   - Apdex = (满意 + 可容忍/2) / 总数")
	fmt.Fprintln(w, "   - Cache HIT/MISS 由 X-Cache-Status、Age、X-Cache 响应头判定")
}

// printChecks 打印检查与阈值结果
func printChecks(w io.Writer, report *TestReport) {
	fmt.Fprintln(w, "\n✅ 检查:")
	checks := tablewriter.NewTable(w,
		tablewriter.WithHeader([]string{"检查", "通过", "失败", "通过率"}),
	)
	for _, c := range report.Checks {
		rate := "-"
		if total := c.Passes + c.Fails; total > 0 {
			rate = fmt.Sprintf("%.2f%%", float64(c.Passes)/float64(total)*100)
		}
		checks.Append([]string{c.Name, fmt.Sprintf("%d", c.Passes), fmt.Sprintf("%d", c.Fails), rate})
	}
	checks.Render()

	fmt.Fprintln(w, "\n🎯 阈值:")
	thresholds := tablewriter.NewTable(w,
		tablewriter.WithHeader([]string{"阈值", "上限", "实际", "结果"}),
	)
	for _, t := range report.Thresholds {
		result := "✓ 通过"
		if !t.Passed {
			result = "✗ 未通过"
		}
		thresholds.Append([]string{t.Name, fmt.Sprintf("%g", t.Limit), fmt.Sprintf("%.4f", t.Actual), result})
	}
	thresholds.Render()
}
