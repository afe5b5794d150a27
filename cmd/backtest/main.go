package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/skalibog/gintrader/internal/backtest"
	"github.com/skalibog/gintrader/internal/config"
	"github.com/skalibog/gintrader/internal/indicator"
	"github.com/skalibog/gintrader/pkg/logger"
)

func main() {
	logger.Init()
	defer logger.GetLogger().Sync()

	configPath := flag.String("config", "config.yaml", "путь к файлу конфигурации")
	dataDir := flag.String("data", "", "каталог с CSV-файлами свечей")
	policy := flag.String("policy", "", "разрешение TP/SL внутри свечи: stop_first или profit_first")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("Ошибка загрузки конфигурации", zap.Error(err))
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("Неверная конфигурация", zap.Error(err))
	}

	// Флаги имеют приоритет над конфигом
	resolved := cfg.Backtest.IntrabarPolicy
	if *policy != "" {
		resolved = *policy
	}
	dir := cfg.Backtest.DataDir
	if *dataDir != "" {
		dir = *dataDir
	}
	if dir == "" {
		dir = "data"
	}

	symbols := cfg.EnabledSymbols()
	logger.Info("Загрузка исторических свечей",
		zap.String("dir", dir),
		zap.Strings("symbols", symbols))

	series, err := backtest.LoadDir(dir, cfg.Trading.Interval, symbols)
	if err != nil {
		logger.Fatal("Ошибка загрузки свечей", zap.Error(err))
	}
	if len(series) == 0 {
		logger.Fatal("Не найдено ни одного файла со свечами", zap.String("dir", dir))
	}

	engine := backtest.NewEngine(indicator.NewDefaultEngine(), backtest.Policy(resolved))
	result, err := engine.Run(series, cfg.Trading.Pairs)
	if err != nil {
		logger.Fatal("Ошибка прогона", zap.Error(err))
	}

	fmt.Fprintln(os.Stdout, result.Render())
}
