package backtest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCSV(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestLoadCSV(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "BTCUSDT_15m.csv", `timestamp,open,high,low,close,volume
1704067200000,100.0,101.0,99.0,100.5,1500
1704068100000,100.5,102.0,100.0,101.5,1200
`)

	candles, err := LoadCSV(filepath.Join(dir, "BTCUSDT_15m.csv"), "BTCUSDT", "15m")
	require.NoError(t, err)
	require.Len(t, candles, 2)

	first := candles[0]
	assert.Equal(t, "BTCUSDT", first.Symbol)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), first.OpenTime)
	assert.Equal(t, first.OpenTime.Add(15*time.Minute), first.CloseTime)
	assert.Equal(t, 100.0, first.Open)
	assert.Equal(t, 101.0, first.High)
	assert.Equal(t, 99.0, first.Low)
	assert.Equal(t, 100.5, first.Close)
	assert.Equal(t, 1500.0, first.Volume)
}

func TestLoadCSV_ColumnAliasesAndOrder(t *testing.T) {
	dir := t.TempDir()
	// Колонки в другом порядке и с другим именем времени
	writeCSV(t, dir, "eth.csv", `close,open_time,volume,low,high,open
101.5,2024-01-01 00:00:00,1200,100.0,102.0,100.5
`)

	candles, err := LoadCSV(filepath.Join(dir, "eth.csv"), "ETHUSDT", "15m")
	require.NoError(t, err)
	require.Len(t, candles, 1)
	assert.Equal(t, 101.5, candles[0].Close)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), candles[0].OpenTime)
}

func TestLoadCSV_SortsByOpenTime(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "raw.csv", `timestamp,open,high,low,close,volume
1704068100,100,100,100,100,1
1704067200,100,100,100,100,1
`)

	candles, err := LoadCSV(filepath.Join(dir, "raw.csv"), "BTCUSDT", "15m")
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.True(t, candles[0].OpenTime.Before(candles[1].OpenTime))
}

func TestLoadCSV_MalformedRowFails(t *testing.T) {
	dir := t.TempDir()
	// Битая строка посередине: загрузка падает, а не обрезает серию
	writeCSV(t, dir, "broken.csv", `timestamp,open,high,low,close,volume
1704067200,100,101,99,100.5,1500
1704068100,100.5,102
1704069000,101.5,103,101,102.5,1100
`)

	candles, err := LoadCSV(filepath.Join(dir, "broken.csv"), "BTCUSDT", "15m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "строка 3")
	assert.Nil(t, candles)
}

func TestLoadCSV_MissingColumn(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "bad.csv", `timestamp,open,high,low,close
1704067200,100,100,100,100
`)

	_, err := LoadCSV(filepath.Join(dir, "bad.csv"), "BTCUSDT", "15m")
	assert.Error(t, err)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "BTCUSDT_15m.csv", `timestamp,open,high,low,close,volume
1704067200,100,100,100,100,1
`)
	writeCSV(t, dir, "ETHUSDT.csv", `timestamp,open,high,low,close,volume
1704067200,200,200,200,200,1
`)

	// SOLUSDT без файла пропускается, остальные загружаются
	series, err := LoadDir(dir, "15m", []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"})
	require.NoError(t, err)
	assert.Len(t, series, 2)
	assert.Contains(t, series, "BTCUSDT")
	assert.Contains(t, series, "ETHUSDT")
	assert.NotContains(t, series, "SOLUSDT")
}

func TestLoadDir_Empty(t *testing.T) {
	_, err := LoadDir(t.TempDir(), "15m", []string{"BTCUSDT"})
	assert.Error(t, err)
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for _, raw := range []string{
		"1704067200",
		"1704067200000",
		"2024-01-01T00:00:00Z",
		"2024-01-01 00:00:00",
		"2024-01-01",
	} {
		got, err := parseTimestamp(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}

	_, err := parseTimestamp("вчера")
	assert.Error(t, err)
}
