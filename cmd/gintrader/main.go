package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/skalibog/gintrader/internal/config"
	"github.com/skalibog/gintrader/internal/exchange"
	"github.com/skalibog/gintrader/internal/indicator"
	"github.com/skalibog/gintrader/internal/notify"
	"github.com/skalibog/gintrader/internal/runner"
	"github.com/skalibog/gintrader/internal/storage"
	"github.com/skalibog/gintrader/pkg/logger"
)

func main() {
	logger.Init()
	defer logger.GetLogger().Sync()

	// Обработка флагов командной строки
	configPath := flag.String("config", "config.yaml", "путь к файлу конфигурации")
	flag.Parse()

	// Проверяем наличие файла конфигурации
	logger.Info("Проверка наличия файла конфигурации", zap.String("path", *configPath))
	if _, err := os.Stat(*configPath); os.IsNotExist(err) {
		logger.Fatal("Файл конфигурации не найден", zap.String("path", *configPath))
	}

	// Загружаем конфигурацию: невалидный конфиг — фатальная ошибка запуска
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("Ошибка загрузки конфигурации", zap.Error(err))
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("Неверная конфигурация", zap.Error(err))
	}

	// Создаем контекст с возможностью отмены через сигналы
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nЗавершение работы...")
		cancel()
	}()

	// Инициализируем хранилище: InfluxDB при заданном URL, иначе заглушка
	var store storage.Storage
	if cfg.Storage.URL != "" {
		store, err = storage.NewInfluxDBStorage(cfg.Storage)
		if err != nil {
			logger.Fatal("Ошибка инициализации хранилища", zap.Error(err))
		}
	} else {
		logger.Info("Хранилище не настроено, свечи и сделки не сохраняются")
		store = storage.NewNoop()
	}
	defer store.Close()

	// Инициализируем клиент биржи
	client, err := exchange.NewBinanceClient(cfg.Binance)
	if err != nil {
		logger.Fatal("Ошибка инициализации клиента биржи", zap.Error(err))
	}
	if err := client.Ping(ctx); err != nil {
		logger.Fatal("Биржа недоступна", zap.Error(err))
	}

	// Уведомления в Telegram (отключены при пустом токене)
	notifier, err := notify.NewTelegram(cfg.Telegram)
	if err != nil {
		logger.Fatal("Ошибка инициализации уведомлений", zap.Error(err))
	}

	r := runner.New(cfg, client, indicator.NewDefaultEngine(), store, notifier)
	if err := r.Run(ctx); err != nil && err != context.Canceled {
		logger.Fatal("Торговый цикл завершился с ошибкой", zap.Error(err))
	}
}
