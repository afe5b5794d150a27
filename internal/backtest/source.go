package backtest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/skalibog/gintrader/pkg/logger"
	"github.com/skalibog/gintrader/pkg/models"
)

// LoadDir загружает кэш исторических свечей для указанных пар.
// Для каждой пары ищутся файлы <SYMBOL>_<interval>.csv и <SYMBOL>.csv.
// Пары без данных пропускаются с предупреждением.
func LoadDir(dir, interval string, symbols []string) (map[string][]models.Candle, error) {
	series := make(map[string][]models.Candle, len(symbols))

	for _, symbol := range symbols {
		candidates := []string{
			fmt.Sprintf("%s_%s.csv", symbol, interval),
			symbol + ".csv",
		}

		var loaded bool
		for _, name := range candidates {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err != nil {
				continue
			}
			candles, err := LoadCSV(path, symbol, interval)
			if err != nil {
				return nil, fmt.Errorf("загрузка %s: %w", path, err)
			}
			series[symbol] = candles
			logger.Info("Загружены исторические свечи",
				zap.String("symbol", symbol), zap.String("file", name), zap.Int("count", len(candles)))
			loaded = true
			break
		}
		if !loaded {
			logger.Warn("Исторические данные не найдены", zap.String("symbol", symbol))
		}
	}

	if len(series) == 0 {
		return nil, fmt.Errorf("в каталоге %s нет данных ни для одной пары", dir)
	}
	return series, nil
}

// LoadCSV читает свечи из CSV-файла. Первая строка — заголовок; колонки
// распознаются по именам независимо от порядка и регистра.
func LoadCSV(path, symbol, interval string) ([]models.Candle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("чтение заголовка: %w", err)
	}

	cols, err := mapColumns(header)
	if err != nil {
		return nil, err
	}

	step := models.IntervalDuration(interval)
	var candles []models.Candle
	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Битая строка не конец файла: молча обрезать серию нельзя
			return nil, fmt.Errorf("строка %d: %w", line+1, err)
		}
		line++

		openTime, err := parseTimestamp(row[cols["timestamp"]])
		if err != nil {
			return nil, fmt.Errorf("строка %d: %w", line, err)
		}

		candle := models.Candle{
			Symbol:    symbol,
			Interval:  interval,
			OpenTime:  openTime,
			CloseTime: openTime.Add(step),
		}
		if candle.Open, err = strconv.ParseFloat(row[cols["open"]], 64); err != nil {
			return nil, fmt.Errorf("строка %d: open: %w", line, err)
		}
		if candle.High, err = strconv.ParseFloat(row[cols["high"]], 64); err != nil {
			return nil, fmt.Errorf("строка %d: high: %w", line, err)
		}
		if candle.Low, err = strconv.ParseFloat(row[cols["low"]], 64); err != nil {
			return nil, fmt.Errorf("строка %d: low: %w", line, err)
		}
		if candle.Close, err = strconv.ParseFloat(row[cols["close"]], 64); err != nil {
			return nil, fmt.Errorf("строка %d: close: %w", line, err)
		}
		if candle.Volume, err = strconv.ParseFloat(row[cols["volume"]], 64); err != nil {
			return nil, fmt.Errorf("строка %d: volume: %w", line, err)
		}

		candles = append(candles, candle)
	}

	sort.Slice(candles, func(i, j int) bool {
		return candles[i].OpenTime.Before(candles[j].OpenTime)
	})

	return candles, nil
}

// mapColumns сопоставляет имена колонок заголовка позициям
func mapColumns(header []string) (map[string]int, error) {
	aliases := map[string]string{
		"timestamp": "timestamp",
		"open_time": "timestamp",
		"time":      "timestamp",
		"datetime":  "timestamp",
		"open":      "open",
		"high":      "high",
		"low":       "low",
		"close":     "close",
		"volume":    "volume",
	}

	cols := make(map[string]int)
	for i, name := range header {
		if canonical, ok := aliases[strings.ToLower(strings.TrimSpace(name))]; ok {
			if _, exists := cols[canonical]; !exists {
				cols[canonical] = i
			}
		}
	}

	for _, required := range []string{"timestamp", "open", "high", "low", "close", "volume"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("в заголовке нет колонки %q", required)
		}
	}
	return cols, nil
}

// parseTimestamp разбирает метку времени: unix в секундах или
// миллисекундах, либо текстовая дата
func parseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)

	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if n > 1e10 { // миллисекунды
			return time.Unix(n/1000, n%1000*int64(time.Millisecond)).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}

	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("нераспознанная метка времени %q", raw)
}
