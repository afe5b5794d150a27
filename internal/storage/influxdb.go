package storage

import (
	"context"
	"fmt"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/skalibog/gintrader/internal/config"
	"github.com/skalibog/gintrader/pkg/models"
)

// InfluxDBStorage реализует интерфейс Storage с использованием InfluxDB
type InfluxDBStorage struct {
	client   influxdb2.Client
	queryAPI api.QueryAPI
	writeAPI api.WriteAPI
	org      string
	bucket   string
}

// NewInfluxDBStorage создает новое хранилище InfluxDB
func NewInfluxDBStorage(cfg config.StorageConfig) (*InfluxDBStorage, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	// Проверка соединения
	health, err := client.Health(context.Background())
	if err != nil {
		return nil, fmt.Errorf("ошибка соединения с InfluxDB: %w", err)
	}
	if health == nil || health.Status != "pass" {
		return nil, fmt.Errorf("InfluxDB не в состоянии 'pass': %+v", health)
	}

	return &InfluxDBStorage{
		client:   client,
		queryAPI: client.QueryAPI(cfg.Organization),
		writeAPI: client.WriteAPI(cfg.Organization, cfg.Bucket),
		org:      cfg.Organization,
		bucket:   cfg.Bucket,
	}, nil
}

// Close закрывает соединение с базой данных
func (s *InfluxDBStorage) Close() {
	s.writeAPI.Flush()
	s.client.Close()
}

// SaveCandles сохраняет серию свечей
func (s *InfluxDBStorage) SaveCandles(ctx context.Context, candles []models.Candle) error {
	for _, candle := range candles {
		point := influxdb2.NewPoint(
			"candles",
			map[string]string{
				"symbol":   candle.Symbol,
				"interval": candle.Interval,
			},
			map[string]interface{}{
				"open":   candle.Open,
				"high":   candle.High,
				"low":    candle.Low,
				"close":  candle.Close,
				"volume": candle.Volume,
			},
			candle.OpenTime,
		)
		s.writeAPI.WritePoint(point)
	}

	s.writeAPI.Flush()
	return nil
}

// GetCandles получает исторические свечи в порядке возрастания времени
func (s *InfluxDBStorage) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error) {
	// Формируем Flux-запрос
	query := fmt.Sprintf(`
		from(bucket: "%s")
			|> range(start: -30d)
			|> filter(fn: (r) => r._measurement == "candles")
			|> filter(fn: (r) => r.symbol == "%s")
			|> filter(fn: (r) => r.interval == "%s")
			|> pivot(rowKey:["_time"], columnKey: ["_field"], valueColumn: "_value")
			|> sort(columns: ["_time"], desc: true)
			|> limit(n: %d)
			|> sort(columns: ["_time"])
	`, s.bucket, symbol, interval, limit)

	result, err := s.queryAPI.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса свечей: %w", err)
	}

	var candles []models.Candle
	for result.Next() {
		record := result.Record()

		timestamp := record.Time()
		open, _ := record.ValueByKey("open").(float64)
		high, _ := record.ValueByKey("high").(float64)
		low, _ := record.ValueByKey("low").(float64)
		closePrice, _ := record.ValueByKey("close").(float64)
		volume, _ := record.ValueByKey("volume").(float64)

		candles = append(candles, models.Candle{
			Symbol:    symbol,
			Interval:  interval,
			OpenTime:  timestamp,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePrice,
			Volume:    volume,
			CloseTime: timestamp.Add(models.IntervalDuration(interval)),
		})
	}

	if result.Err() != nil {
		return nil, fmt.Errorf("ошибка при обработке результатов: %w", result.Err())
	}

	return candles, nil
}

// SaveTrade сохраняет запись о закрытой сделке
func (s *InfluxDBStorage) SaveTrade(ctx context.Context, trade models.TradeRecord) error {
	point := influxdb2.NewPoint(
		"trades",
		map[string]string{
			"symbol": trade.Symbol,
			"reason": string(trade.ExitReason),
		},
		map[string]interface{}{
			"entry_time":   trade.EntryTime.Unix(),
			"entry_price":  trade.EntryPrice,
			"exit_price":   trade.ExitPrice,
			"quantity":     trade.Quantity,
			"leverage":     trade.Leverage,
			"rsi_at_entry": trade.RSIAtEntry,
			"pnl_pct":      trade.PnLPct,
			"pnl_abs":      trade.PnLAbs,
		},
		trade.ExitTime,
	)

	s.writeAPI.WritePoint(point)
	s.writeAPI.Flush()

	return nil
}
