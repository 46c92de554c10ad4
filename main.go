package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cache-apdex-tester/internal/apdex"
)

// errThresholdsFailed 运行完成但阈值未通过
var errThresholdsFailed = errors.New("阈值未通过")

var (
	configPath string
	envFile    string
)

var rootCmd = &cobra.Command{
	Use:   "cache-apdex-tester",
	Short: "对比无缓存 / 缓存命中 / 缓存未命中三种情况下的 Apdex",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env 可选
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("加载 %s 失败: %w", envFile, err)
		}
		return nil
	},
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "执行负载测试并生成报告",
	RunE:  runRun,
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "生成收入记录测试数据（SQL 文件或直接导入 PostgreSQL）",
	RunE:  runSeed,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "查看历史运行记录",
	RunE:  runHistory,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "配置文件路径 (默认 config.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "环境变量文件")

	runCmd.Flags().Int("payload-size", 0, "数据量标签，覆盖 PAYLOAD_SIZE")
	runCmd.Flags().String("run-id", "", "运行ID，覆盖 TEST_RUN_ID")
	runCmd.Flags().String("endpoint", "", "API路径，覆盖 ENDPOINT")
	runCmd.Flags().String("metrics-addr", "", "Prometheus 指标监听地址，如 :9090")

	seedCmd.Flags().IntP("records", "n", 0, "收入记录数")
	seedCmd.Flags().String("out", "seeds", "SQL 文件输出目录")
	seedCmd.Flags().Int64("seed", 0, "随机种子（0 表示按当前时间）")
	seedCmd.Flags().String("dsn", "", "PostgreSQL DSN，设置后直接导入而不写文件")
	_ = seedCmd.MarkFlagRequired("records")

	historyCmd.Flags().String("db", "", "历史数据库路径（默认使用配置中的 output.history_db）")
	historyCmd.Flags().String("payload", "", "只显示该数据量的记录")
	historyCmd.Flags().Int("limit", 20, "最多显示条数")

	rootCmd.AddCommand(runCmd, seedCmd, historyCmd)
}

// ===============================
// 主函数
// ===============================

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}
	if err := applyRunFlags(cmd, cfg); err != nil {
		return err
	}

	logger, err := NewLogger(cfg.OutputDir, cfg.EnableLog)
	if err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Println("🚀 缓存 Apdex 测试工具")
	logger.Println("==============================")
	logger.LogConfig(*cfg)

	report, err := executeRun(ctx, cfg, logger)
	if err != nil {
		return err
	}

	logger.Printf("⏱️  总耗时: %s\n", logger.Elapsed().Round(time.Millisecond))
	if logger.GetLogPath() != "" {
		logger.Printf("📝 日志文件: %s\n", logger.GetLogPath())
	}

	if !report.Run.Passed {
		return errThresholdsFailed
	}
	logger.Println("\n✅ 测试完成!")
	return nil
}

func applyRunFlags(cmd *cobra.Command, cfg *Config) error {
	flags := cmd.Flags()
	if flags.Changed("payload-size") {
		cfg.PayloadSize, _ = flags.GetInt("payload-size")
	}
	if flags.Changed("run-id") {
		cfg.TestRunID, _ = flags.GetString("run-id")
	}
	if flags.Changed("endpoint") {
		cfg.Endpoint, _ = flags.GetString("endpoint")
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr, _ = flags.GetString("metrics-addr")
	}
	return cfg.Validate()
}

// executeRun 执行一次完整测试：负载 → 汇总 → 导出 → 历史记录
func executeRun(ctx context.Context, cfg *Config, logger *Logger) (*TestReport, error) {
	agg, err := apdex.NewAggregator(cfg.Thresholds)
	if err != nil {
		return nil, err
	}
	metrics := NewMetrics(agg)

	client := NewHTTPClient(ClientOptions{
		Protocol:           cfg.Protocol,
		PinIP:              cfg.PinIP,
		Timeout:            cfg.Timeout,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		MaxConns:           cfg.MaxVUs() * 2,
	})

	if cfg.MetricsAddr != "" {
		metricsCtx, cancelMetrics := context.WithCancel(context.Background())
		defer cancelMetrics()
		go func() {
			if err := metrics.Serve(metricsCtx, cfg.MetricsAddr, agg, logger.Zap()); err != nil {
				logger.Error("指标服务异常", zap.Error(err))
			}
		}()
	}

	logger.Section("负载执行")
	logger.Info("开始测试",
		zap.Int("max_vus", cfg.MaxVUs()),
		zap.Duration("duration", cfg.TotalDuration()),
		zap.String("run_id", cfg.TestRunID),
	)

	runner := NewRunner(cfg, client, agg, metrics, logger.Zap())
	stats, err := runner.Run(ctx)
	if err != nil {
		return nil, err
	}
	if stats.Interrupted {
		logger.Info("测试被中断，使用已收集的数据生成报告", zap.Int64("iterations", stats.Iterations))
	}

	report := NewTestReport(cfg, stats)

	out := logger.Writer()
	printSummaryTable(out, report.RunSummary)
	printChecks(out, report)

	logger.Section("报告生成")
	var saved []string

	if cfg.EnableJSON {
		path, err := ExportJSON(report, cfg.OutputDir)
		if err != nil {
			logger.Error("导出 JSON 报告失败", zap.Error(err))
		} else {
			saved = append(saved, "JSON: "+path)
		}
	}

	if cfg.EnableCSV {
		path, err := ExportCSV(report, cfg.OutputDir)
		if err != nil {
			logger.Error("导出 CSV 报告失败", zap.Error(err))
		} else {
			saved = append(saved, "CSV:  "+path)
		}
	}

	if cfg.EnableHTML {
		path, err := ExportHTML(report, cfg.OutputDir)
		if err != nil {
			logger.Error("导出 HTML 报告失败", zap.Error(err))
		} else {
			saved = append(saved, "HTML: "+path)
		}
	}

	if cfg.HistoryDB != "" {
		if err := saveHistory(ctx, cfg.HistoryDB, report); err != nil {
			logger.Error("写入历史记录失败", zap.Error(err))
		} else {
			saved = append(saved, "DB:   "+cfg.HistoryDB)
		}
	}

	printSummaryBox(out, report, saved)
	return report, nil
}

func saveHistory(ctx context.Context, path string, report *TestReport) error {
	store, err := OpenHistory(path)
	if err != nil {
		return err
	}
	defer store.Close()

	// 运行被中断时 ctx 已取消，历史写入不应受影响
	_, err = store.Save(context.WithoutCancel(ctx), report)
	return err
}

func runSeed(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	records, _ := flags.GetInt("records")
	outDir, _ := flags.GetString("out")
	seed, _ := flags.GetInt64("seed")
	dsn, _ := flags.GetString("dsn")

	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	opts := SeedOptions{Records: records, Seed: seed}

	if dsn != "" {
		if err := ApplySeed(cmd.Context(), dsn, opts); err != nil {
			return err
		}
		fmt.Printf("✓ 已导入 %d 条收入记录\n", records)
		return nil
	}

	path, err := WriteSeedFile(outDir, opts)
	if err != nil {
		return err
	}
	fmt.Printf("✓ SQL 文件已生成: %s\n", path)
	fmt.Printf("✓ 包含 %d 条收入记录（最近 365 天）\n", records)
	fmt.Printf("\n导入方式:\n  psql -U postgres -d <database> -f %s\n", path)
	fmt.Printf("  或: cache-apdex-tester seed -n %d --dsn <postgres-dsn>\n", records)
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	dbPath, _ := flags.GetString("db")
	payload, _ := flags.GetString("payload")
	limit, _ := flags.GetInt("limit")

	if dbPath == "" {
		cfg, err := LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}
		dbPath = cfg.HistoryDB
	}
	if dbPath == "" {
		return errors.New("未指定历史数据库：使用 --db 或在配置中设置 output.history_db")
	}

	store, err := OpenHistory(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.List(cmd.Context(), payload, limit)
	if err != nil {
		return err
	}

	table := tablewriter.NewTable(os.Stdout,
		tablewriter.WithHeader([]string{
			"ID", "运行ID", "数据量", "开始时间", "耗时(s)", "命中率",
			"Apdex NC", "Apdex HIT", "Apdex MISS", "HIT vs NC", "HIT vs MISS", "阈值",
		}),
	)
	for _, e := range entries {
		passed := "✓"
		if !e.Passed {
			passed = "✗"
		}
		table.Append([]string{
			fmt.Sprintf("%d", e.ID),
			e.TestRunID,
			e.PayloadSize,
			e.StartedAt.Format("2006-01-02 15:04:05"),
			fmt.Sprintf("%.1f", float64(e.DurationMs)/1000),
			fmt.Sprintf("%.2f%%", e.HitRate),
			fmt.Sprintf("%.4f", e.NoCacheApdex),
			fmt.Sprintf("%.4f", e.CacheHitApdex),
			fmt.Sprintf("%.4f", e.CacheMissApdex),
			fmt.Sprintf("%.2f%%", e.ImprovementNC),
			fmt.Sprintf("%.2f%%", e.ImprovementMS),
			passed,
		})
	}
	table.Render()
	return nil
}
