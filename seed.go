package main

import (
	"bufio"
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// ===============================
// 测试数据生成
// ===============================

// 测试接口返回的记录数由这里生成的数据决定，PayloadSize 标签应与 Records 一致

const defaultSeedStartID = 1001

var (
	seedPaymentMethods = []string{"Transfer Bank", "Cash", "E-Wallet", "Kartu Kredit", "Kartu Debit"}
	seedDescriptions   = []string{
		"Donasi dari masyarakat umum",
		"Sumbangan untuk program pendidikan",
		"Hibah pemerintah",
		"Donasi perusahaan CSR",
		"Hasil investasi",
		"Pendapatan jasa konsultasi",
		"Sumbangan acara charity",
		"Donasi anonymous",
		"Hasil penjualan produk",
		"Pendapatan dari event fundraising",
	}
	seedCOAIDs = []int{401, 402, 403, 404, 405}
	// 大部分记录不关联 program，避免外键问题
	seedProgramIDs = []string{"NULL", "NULL", "NULL", "NULL", "NULL", "NULL", "0", "1", "2"}
)

// SeedOptions 生成参数
type SeedOptions struct {
	Records int       // 收入记录数
	StartID int       // 起始ID，默认 1001
	Seed    int64     // 随机种子，相同种子生成相同数据
	Now     time.Time // 日期基准，默认当前时间
}

func (o *SeedOptions) normalize() error {
	if o.Records <= 0 {
		return errors.New("记录数必须大于 0")
	}
	if o.StartID <= 0 {
		o.StartID = defaultSeedStartID
	}
	if o.Now.IsZero() {
		o.Now = time.Now()
	}
	return nil
}

// GenerateSeedSQL 生成收入记录的 SQL
func GenerateSeedSQL(w io.Writer, opts SeedOptions) error {
	if err := opts.normalize(); err != nil {
		return err
	}
	rng := rand.New(rand.NewSource(opts.Seed))
	bw := bufio.NewWriter(w)

	fmt.Fprintln(bw, "-- ========================================")
	fmt.Fprintln(bw, "-- Seed Income Records for /call/income/list")
	fmt.Fprintf(bw, "-- Generated: %d records\n", opts.Records)
	fmt.Fprintln(bw, "-- ========================================")
	fmt.Fprintln(bw)

	// 依赖的科目与项目
	fmt.Fprintln(bw, "-- Ensure Chart of Account records exist")
	fmt.Fprintln(bw, "INSERT INTO chartofaccount_comp (id) VALUES")
	coa := make([]string, len(seedCOAIDs))
	for i, id := range seedCOAIDs {
		coa[i] = fmt.Sprintf("(%d)", id)
	}
	writeValues(bw, coa, "id")

	fmt.Fprintln(bw, "INSERT INTO chartofaccount_impl (id, code, name, description, isvisible) VALUES")
	writeValues(bw, []string{
		"(401, 4001, 'Sumbangan Donasi', 'Pendapatan dari donasi masyarakat', 'true')",
		"(402, 4002, 'Hibah', 'Pendapatan dari hibah institusi', 'true')",
		"(403, 4003, 'Jasa Layanan', 'Pendapatan dari jasa layanan', 'true')",
		"(404, 4004, 'Investasi', 'Pendapatan dari hasil investasi', 'true')",
		"(405, 4005, 'Lain-lain', 'Pendapatan lain-lain', 'true')",
	}, "id")

	fmt.Fprintln(bw, "-- Ensure Program records exist (for foreign key references)")
	fmt.Fprintln(bw, "INSERT INTO program_comp (idprogram, name, description, executiondate, logourl, partner, target) VALUES")
	writeValues(bw, []string{
		"(0, 'Program Umum', 'Program kegiatan umum', '2024-01-01', 'https://example.com/logo0.png', 'Internal', 'Umum')",
		"(1, 'Program Pendidikan', 'Program bantuan pendidikan', '2024-01-15', 'https://example.com/logo1.png', 'Yayasan Pendidikan', 'Anak sekolah')",
		"(2, 'Program Kesehatan', 'Program kesehatan gratis', '2024-02-20', 'https://example.com/logo2.png', 'Klinik Sehat', 'Masyarakat umum')",
	}, "idprogram")

	fmt.Fprintln(bw, "INSERT INTO program_activity (idprogram) VALUES")
	writeValues(bw, []string{"(0)", "(1)", "(2)"}, "idprogram")

	// 财务记录
	comp := make([]string, opts.Records)
	impl := make([]string, opts.Records)
	income := make([]string, opts.Records)
	for i := 0; i < opts.Records; i++ {
		id := opts.StartID + i
		amount := 100 + rng.Intn(9901)
		date := opts.Now.AddDate(0, 0, -rng.Intn(366)).Format("2006-01-02")
		desc := seedDescriptions[rng.Intn(len(seedDescriptions))]
		coaID := seedCOAIDs[rng.Intn(len(seedCOAIDs))]
		program := seedProgramIDs[rng.Intn(len(seedProgramIDs))]

		comp[i] = fmt.Sprintf("(%d, %d, '%s', '%s', %d, %s)", id, amount, date, desc, coaID, program)
		impl[i] = fmt.Sprintf("(%d)", id)
		income[i] = fmt.Sprintf("(%d, '%s')", id, seedPaymentMethods[rng.Intn(len(seedPaymentMethods))])
	}

	fmt.Fprintln(bw, "-- Insert Financial Report Component records")
	fmt.Fprintln(bw, "INSERT INTO financialreport_comp (id, amount, datestamp, description, coa_id, program_idprogram) VALUES")
	writeValues(bw, comp, "id")

	fmt.Fprintln(bw, "-- Insert Financial Report Implementation records")
	fmt.Fprintln(bw, "INSERT INTO financialreport_impl (id) VALUES")
	writeValues(bw, impl, "id")

	fmt.Fprintln(bw, "-- Insert Income-specific records with payment method")
	fmt.Fprintln(bw, "INSERT INTO financialreport_income (id, paymentmethod) VALUES")
	writeValues(bw, income, "id")

	fmt.Fprintln(bw, "-- Update hibernate_sequence to avoid ID conflicts")
	fmt.Fprintf(bw, "SELECT setval('hibernate_sequence', %d, true);\n\n", opts.StartID+opts.Records+100)
	fmt.Fprintln(bw, "SELECT COUNT(*) FROM financialreport_comp;")

	return bw.Flush()
}

func writeValues(w io.Writer, values []string, conflictKey string) {
	fmt.Fprintln(w, strings.Join(values, ",\n"))
	fmt.Fprintf(w, "ON CONFLICT (%s) DO NOTHING;\n\n", conflictKey)
}

// SeedFileName seeds/seed_income_<N>_records.sql
func SeedFileName(dir string, records int) string {
	return filepath.Join(dir, fmt.Sprintf("seed_income_%d_records.sql", records))
}

// WriteSeedFile 生成 SQL 文件
func WriteSeedFile(dir string, opts SeedOptions) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("创建目录失败: %w", err)
	}
	path := SeedFileName(dir, opts.Records)

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("创建 SQL 文件失败: %w", err)
	}
	defer file.Close()

	if err := GenerateSeedSQL(file, opts); err != nil {
		return "", err
	}
	return path, nil
}

// ApplySeed 直接导入 PostgreSQL（单个事务）
func ApplySeed(ctx context.Context, dsn string, opts SeedOptions) error {
	var buf bytes.Buffer
	if err := GenerateSeedSQL(&buf, opts); err != nil {
		return err
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("打开数据库失败: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("连接数据库失败: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启事务失败: %w", err)
	}
	defer tx.Rollback()

	// 无参数时 lib/pq 走 simple query 协议，支持一次执行多条语句
	if _, err := tx.ExecContext(ctx, buf.String()); err != nil {
		return fmt.Errorf("导入数据失败: %w", err)
	}
	return tx.Commit()
}
