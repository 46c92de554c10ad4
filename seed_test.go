package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSeedSQL(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	opts := SeedOptions{Records: 25, Seed: 42, Now: now}

	var a, b bytes.Buffer
	require.NoError(t, GenerateSeedSQL(&a, opts))
	require.NoError(t, GenerateSeedSQL(&b, opts))
	assert.Equal(t, a.String(), b.String())

	sql := a.String()
	assert.Contains(t, sql, "-- Generated: 25 records")
	assert.Contains(t, sql, "(1001, ")
	assert.Contains(t, sql, "(1025, ")
	assert.NotContains(t, sql, "(1026, ")
	assert.Contains(t, sql, "SELECT setval('hibernate_sequence', 1126, true);")
	assert.Equal(t, 7, strings.Count(sql, "ON CONFLICT"))

	var c bytes.Buffer
	require.NoError(t, GenerateSeedSQL(&c, SeedOptions{Records: 25, Seed: 43, Now: now}))
	assert.NotEqual(t, sql, c.String())
}

func TestGenerateSeedSQL_DatesWithinYear(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	require.NoError(t, GenerateSeedSQL(&buf, SeedOptions{Records: 200, Seed: 7, Now: now, StartID: 5000}))

	earliest := now.AddDate(0, 0, -365).Format("2006-01-02")
	latest := now.Format("2006-01-02")
	for _, line := range strings.Split(buf.String(), "\n") {
		if !strings.HasPrefix(line, "(5") {
			continue
		}
		parts := strings.Split(line, ", ")
		if len(parts) < 3 {
			continue
		}
		date := strings.Trim(parts[2], "'")
		assert.GreaterOrEqual(t, date, earliest)
		assert.LessOrEqual(t, date, latest)
	}
}

func TestGenerateSeedSQL_InvalidRecords(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, GenerateSeedSQL(&buf, SeedOptions{Records: 0}))
	assert.Zero(t, buf.Len())
}

func TestWriteSeedFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "seeds")

	path, err := WriteSeedFile(dir, SeedOptions{Records: 3, Seed: 1})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "seed_income_3_records.sql"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "INSERT INTO financialreport_income")
}
