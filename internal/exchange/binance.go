package exchange

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"

	"github.com/skalibog/gintrader/internal/config"
	"github.com/skalibog/gintrader/pkg/models"
)

// BinanceClient — клиент фьючерсов Binance. Служит источником свечей и
// живой реализацией порта исполнения: маркет-ордера на открытие и
// закрытие позиций.
type BinanceClient struct {
	futures *futures.Client

	// Кэш шагов лота по парам, чтобы не дергать exchangeInfo на каждый ордер
	mu    sync.Mutex
	steps map[string]decimal.Decimal
}

// NewBinanceClient создает новый клиент Binance
func NewBinanceClient(cfg config.BinanceConfig) (*BinanceClient, error) {
	futures.UseTestnet = cfg.Testnet
	futuresClient := futures.NewClient(cfg.APIKey, cfg.APISecret)

	return &BinanceClient{
		futures: futuresClient,
		steps:   make(map[string]decimal.Decimal),
	}, nil
}

// Ping проверяет доступность счета: запускаться с нерабочими ключами
// бессмысленно
func (c *BinanceClient) Ping(ctx context.Context) error {
	if _, err := c.futures.NewGetAccountService().Do(ctx); err != nil {
		return fmt.Errorf("ошибка доступа к счету: %w", err)
	}
	return nil
}

// GetKlines получает исторические свечи
func (c *BinanceClient) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error) {
	klines, err := c.futures.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения свечей: %w", err)
	}

	candles := make([]models.Candle, 0, len(klines))
	for _, k := range klines {
		candle := models.Candle{
			Symbol:    symbol,
			Interval:  interval,
			OpenTime:  time.Unix(k.OpenTime/1000, 0).UTC(),
			CloseTime: time.Unix(k.CloseTime/1000, 0).UTC(),
		}
		if candle.Open, err = strconv.ParseFloat(k.Open, 64); err != nil {
			return nil, fmt.Errorf("разбор open: %w", err)
		}
		if candle.High, err = strconv.ParseFloat(k.High, 64); err != nil {
			return nil, fmt.Errorf("разбор high: %w", err)
		}
		if candle.Low, err = strconv.ParseFloat(k.Low, 64); err != nil {
			return nil, fmt.Errorf("разбор low: %w", err)
		}
		if candle.Close, err = strconv.ParseFloat(k.Close, 64); err != nil {
			return nil, fmt.Errorf("разбор close: %w", err)
		}
		if candle.Volume, err = strconv.ParseFloat(k.Volume, 64); err != nil {
			return nil, fmt.Errorf("разбор volume: %w", err)
		}
		candles = append(candles, candle)
	}

	return candles, nil
}

// CurrentPrice получает текущую цену пары
func (c *BinanceClient) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	prices, err := c.futures.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("ошибка получения цены: %w", err)
	}
	if len(prices) == 0 {
		return 0, fmt.Errorf("нет данных о цене для %s", symbol)
	}
	price, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil {
		return 0, fmt.Errorf("разбор цены: %w", err)
	}
	return price, nil
}

// Open открывает лонг маркет-ордером: выставляет плечо и покупает
// округленный до шага лота объем
func (c *BinanceClient) Open(ctx context.Context, symbol string, quantity float64, leverage int) (models.Fill, error) {
	if _, err := c.futures.NewChangeLeverageService().
		Symbol(symbol).
		Leverage(leverage).
		Do(ctx); err != nil {
		return models.Fill{}, fmt.Errorf("ошибка установки плеча: %w", err)
	}

	qty, err := c.roundQuantity(ctx, symbol, quantity)
	if err != nil {
		return models.Fill{}, err
	}

	order, err := c.futures.NewCreateOrderService().
		Symbol(symbol).
		Side(futures.SideTypeBuy).
		Type(futures.OrderTypeMarket).
		Quantity(qty).
		NewOrderResponseType(futures.NewOrderRespTypeRESULT).
		Do(ctx)
	if err != nil {
		return models.Fill{}, fmt.Errorf("ошибка размещения ордера: %w", err)
	}

	return c.fillFromOrder(ctx, symbol, order)
}

// Close закрывает лонг встречным маркет-ордером reduce-only
func (c *BinanceClient) Close(ctx context.Context, symbol string, quantity float64) (models.Fill, error) {
	qty, err := c.roundQuantity(ctx, symbol, quantity)
	if err != nil {
		return models.Fill{}, err
	}

	order, err := c.futures.NewCreateOrderService().
		Symbol(symbol).
		Side(futures.SideTypeSell).
		Type(futures.OrderTypeMarket).
		Quantity(qty).
		ReduceOnly(true).
		NewOrderResponseType(futures.NewOrderRespTypeRESULT).
		Do(ctx)
	if err != nil {
		return models.Fill{}, fmt.Errorf("ошибка закрытия позиции: %w", err)
	}

	return c.fillFromOrder(ctx, symbol, order)
}

// fillFromOrder извлекает цену и время заполнения из ответа биржи.
// Если средняя цена в ответе нулевая, берется текущая цена пары.
func (c *BinanceClient) fillFromOrder(ctx context.Context, symbol string, order *futures.CreateOrderResponse) (models.Fill, error) {
	price, err := strconv.ParseFloat(order.AvgPrice, 64)
	if err != nil || price == 0 {
		price, err = c.CurrentPrice(ctx, symbol)
		if err != nil {
			return models.Fill{}, fmt.Errorf("цена заполнения недоступна: %w", err)
		}
	}

	filledAt := time.Unix(0, order.UpdateTime*int64(time.Millisecond)).UTC()
	if order.UpdateTime == 0 {
		filledAt = time.Now().UTC()
	}

	return models.Fill{Price: price, Time: filledAt}, nil
}

// roundQuantity округляет объем вниз до шага лота пары
func (c *BinanceClient) roundQuantity(ctx context.Context, symbol string, quantity float64) (string, error) {
	step, err := c.lotStep(ctx, symbol)
	if err != nil {
		return "", err
	}

	qty := decimal.NewFromFloat(quantity)
	rounded := qty.Div(step).Floor().Mul(step)
	if rounded.IsZero() {
		return "", fmt.Errorf("объем %v меньше шага лота %s для %s", quantity, step, symbol)
	}
	return rounded.String(), nil
}

// lotStep возвращает шаг лота пары, подгружая exchangeInfo при первом
// обращении
func (c *BinanceClient) lotStep(ctx context.Context, symbol string) (decimal.Decimal, error) {
	c.mu.Lock()
	step, ok := c.steps[symbol]
	c.mu.Unlock()
	if ok {
		return step, nil
	}

	info, err := c.futures.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("ошибка получения exchangeInfo: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range info.Symbols {
		filter := s.LotSizeFilter()
		if filter == nil {
			continue
		}
		parsed, err := decimal.NewFromString(filter.StepSize)
		if err != nil || parsed.IsZero() {
			continue
		}
		c.steps[s.Symbol] = parsed
	}

	step, ok = c.steps[symbol]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("шаг лота для %s не найден", symbol)
	}
	return step, nil
}
