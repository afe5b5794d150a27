package storage

import (
	"context"

	"github.com/skalibog/gintrader/pkg/models"
)

// Storage интерфейс для работы с хранилищем данных
type Storage interface {
	// Методы для свечей
	SaveCandles(ctx context.Context, candles []models.Candle) error
	GetCandles(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error)

	// Методы для журнала сделок
	SaveTrade(ctx context.Context, trade models.TradeRecord) error

	Close()
}

// Noop — заглушка хранилища: используется, когда хранилище не
// сконфигурировано. Все операции успешны и ничего не делают.
type Noop struct{}

// NewNoop создает заглушку хранилища
func NewNoop() *Noop {
	return &Noop{}
}

func (n *Noop) SaveCandles(_ context.Context, _ []models.Candle) error {
	return nil
}

func (n *Noop) GetCandles(_ context.Context, _, _ string, _ int) ([]models.Candle, error) {
	return nil, nil
}

func (n *Noop) SaveTrade(_ context.Context, _ models.TradeRecord) error {
	return nil
}

func (n *Noop) Close() {}
