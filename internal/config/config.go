package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v2"
)

// Config представляет полную конфигурацию приложения
type Config struct {
	Binance  BinanceConfig  `yaml:"binance"`
	Trading  TradingConfig  `yaml:"trading"`
	Telegram TelegramConfig `yaml:"telegram"`
	Storage  StorageConfig  `yaml:"storage"`
	Backtest BacktestConfig `yaml:"backtest"`
}

// BinanceConfig содержит настройки подключения к Binance
type BinanceConfig struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	Testnet   bool   `yaml:"testnet"`
}

// TradingConfig содержит настройки торговли
type TradingConfig struct {
	Interval      string                `yaml:"interval"`
	CandleHistory int                   `yaml:"candle_history"`
	Pairs         map[string]PairConfig `yaml:"pairs"`
}

// PairConfig содержит пер-парные настройки стратегии.
// Неизменяемые в течение запуска, один экземпляр на пару.
type PairConfig struct {
	Enabled           bool    `yaml:"enabled"`
	Leverage          int     `yaml:"leverage"`
	ShadowDistancePct float64 `yaml:"shadow_distance_threshold_pct"`
	TradeVolume       float64 `yaml:"trade_volume"`
	RSILongThreshold  float64 `yaml:"rsi_long_threshold"`
	RSIShortThreshold float64 `yaml:"rsi_short_threshold"`
	TakeProfitPct     float64 `yaml:"take_profit_pct"`
	StopLossPct       float64 `yaml:"stop_loss_pct"`
}

// TelegramConfig содержит настройки уведомлений
type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
}

// StorageConfig содержит настройки хранения данных
type StorageConfig struct {
	URL          string `yaml:"url"`
	Token        string `yaml:"token"`
	Organization string `yaml:"organization"`
	Bucket       string `yaml:"bucket"`
}

// BacktestConfig содержит настройки бэктеста
type BacktestConfig struct {
	DataDir string `yaml:"data_dir"`
	// stop_first (по умолчанию) или profit_first
	IntrabarPolicy string `yaml:"intrabar_policy"`
}

// Load загружает конфигурацию из файла
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения файла конфигурации: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("ошибка разбора файла конфигурации: %w", err)
	}

	// Ключи API можно переопределить через окружение
	if v := os.Getenv("BINANCE_API_KEY"); v != "" {
		config.Binance.APIKey = v
	}
	if v := os.Getenv("BINANCE_API_SECRET"); v != "" {
		config.Binance.APISecret = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		config.Telegram.BotToken = v
	}

	if config.Trading.Interval == "" {
		config.Trading.Interval = "15m"
	}
	if config.Trading.CandleHistory == 0 {
		config.Trading.CandleHistory = 100
	}
	if config.Backtest.IntrabarPolicy == "" {
		config.Backtest.IntrabarPolicy = "stop_first"
	}

	return &config, nil
}

// Validate проверяет конфигурацию перед запуском.
// Любая ошибка здесь фатальна: с невалидной конфигурацией торговать нельзя.
func (c *Config) Validate() error {
	enabled := c.EnabledSymbols()
	if len(enabled) == 0 {
		return fmt.Errorf("ни одна пара не включена в конфигурации")
	}

	if c.Backtest.IntrabarPolicy != "stop_first" && c.Backtest.IntrabarPolicy != "profit_first" {
		return fmt.Errorf("неизвестная политика intrabar_policy: %q", c.Backtest.IntrabarPolicy)
	}

	for _, symbol := range enabled {
		if err := c.Trading.Pairs[symbol].Validate(); err != nil {
			return fmt.Errorf("пара %s: %w", symbol, err)
		}
	}
	return nil
}

// Validate проверяет настройки одной пары
func (p PairConfig) Validate() error {
	if p.Leverage <= 0 {
		return fmt.Errorf("leverage должен быть положительным, получено %d", p.Leverage)
	}
	if p.Leverage > 125 {
		return fmt.Errorf("слишком большое плечо: %d", p.Leverage)
	}
	if p.TradeVolume <= 0 {
		return fmt.Errorf("trade_volume должен быть положительным, получено %v", p.TradeVolume)
	}
	if p.RSILongThreshold <= 0 || p.RSILongThreshold >= 100 {
		return fmt.Errorf("rsi_long_threshold должен быть в (0, 100), получено %v", p.RSILongThreshold)
	}
	if p.RSIShortThreshold != 0 && (p.RSIShortThreshold <= 0 || p.RSIShortThreshold >= 100) {
		return fmt.Errorf("rsi_short_threshold должен быть в (0, 100), получено %v", p.RSIShortThreshold)
	}
	if p.ShadowDistancePct <= 0 {
		return fmt.Errorf("shadow_distance_threshold_pct должен быть положительным, получено %v", p.ShadowDistancePct)
	}
	if p.TakeProfitPct <= 0 {
		return fmt.Errorf("take_profit_pct должен быть положительным, получено %v", p.TakeProfitPct)
	}
	if p.StopLossPct <= 0 || p.StopLossPct >= 100 {
		return fmt.Errorf("stop_loss_pct должен быть в (0, 100), получено %v", p.StopLossPct)
	}
	return nil
}

// EnabledSymbols возвращает отсортированный список включенных пар.
// Порядок стабильный, чтобы обход пар был детерминированным.
func (c *Config) EnabledSymbols() []string {
	symbols := make([]string, 0, len(c.Trading.Pairs))
	for symbol, pair := range c.Trading.Pairs {
		if pair.Enabled {
			symbols = append(symbols, symbol)
		}
	}
	sort.Strings(symbols)
	return symbols
}
