package notify

import (
	"fmt"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/skalibog/gintrader/internal/config"
	"github.com/skalibog/gintrader/pkg/logger"
	"github.com/skalibog/gintrader/pkg/models"
)

// Notifier получает события ядра: открытие и закрытие позиций, ошибки.
// Доставка fire-and-forget: сбой отправки не влияет на торговый цикл.
type Notifier interface {
	PositionOpened(pos models.Position)
	PositionClosed(trade models.TradeRecord)
	Errorf(format string, args ...interface{})
}

// Telegram отправляет уведомления в Telegram-чат. Без токена или chat_id
// работает в выключенном режиме: события только логируются.
type Telegram struct {
	bot    *tgbot.BotAPI
	chatID int64
}

// NewTelegram создает нотификатор. Пустой токен не ошибка: уведомления
// просто отключаются.
func NewTelegram(cfg config.TelegramConfig) (*Telegram, error) {
	if cfg.BotToken == "" || cfg.ChatID == 0 {
		logger.Warn("Уведомления Telegram отключены: не задан bot_token или chat_id")
		return &Telegram{}, nil
	}

	bot, err := tgbot.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("ошибка инициализации Telegram: %w", err)
	}

	return &Telegram{bot: bot, chatID: cfg.ChatID}, nil
}

// Send отправляет произвольное сообщение
func (t *Telegram) Send(msg string) {
	if t == nil || t.bot == nil || t.chatID == 0 {
		logger.Debug("Уведомление (отключено)", zap.String("msg", msg))
		return
	}
	if _, err := t.bot.Send(tgbot.NewMessage(t.chatID, msg)); err != nil {
		logger.Error("Ошибка отправки уведомления", zap.Error(err))
	}
}

// PositionOpened уведомляет об открытии позиции
func (t *Telegram) PositionOpened(pos models.Position) {
	t.Send(fmt.Sprintf(
		"🟢 Открыта позиция\n%s LONG %.6f @ %.4f\nПлечо: %dx\nRSI на входе: %.2f\nTP: %.4f / SL: %.4f",
		pos.Symbol, pos.Quantity, pos.EntryPrice, pos.Leverage, pos.RSIAtEntry,
		pos.TakeProfit, pos.StopLoss))
}

// PositionClosed уведомляет о закрытии позиции
func (t *Telegram) PositionClosed(trade models.TradeRecord) {
	emoji := "✅"
	if trade.PnLAbs < 0 {
		emoji = "🔻"
	}
	t.Send(fmt.Sprintf(
		"%s Закрыта позиция (%s)\n%s LONG %.6f\nВход: %.4f → Выход: %.4f\nPnL: %+.2f USDT (%+.2f%%)",
		emoji, trade.ExitReason, trade.Symbol, trade.Quantity,
		trade.EntryPrice, trade.ExitPrice, trade.PnLAbs, trade.PnLPct))
}

// Errorf уведомляет об ошибке
func (t *Telegram) Errorf(format string, args ...interface{}) {
	t.Send("❗️ " + fmt.Sprintf(format, args...))
}
