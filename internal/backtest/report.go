package backtest

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Стили отчета
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#ffffff")).
			Background(lipgloss.Color("#0077cc")).
			Padding(0, 1)
	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#0077cc"))
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#333333")).
			Padding(0, 1)
	profitStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#33cc33"))
	lossStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#cc3300"))
)

// maxTradesInReport ограничивает список последних сделок в отчете
const maxTradesInReport = 20

// Render формирует текстовый отчет по итогам прогона
func (r *Result) Render() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("GINTRADER — ОТЧЕТ БЭКТЕСТА"))
	b.WriteString("\n\n")

	b.WriteString(boxStyle.Render(renderSummary(r.Summary)))
	b.WriteString("\n\n")

	b.WriteString(sectionStyle.Render("По парам"))
	b.WriteString("\n")
	for _, symbol := range r.Symbols {
		sum := r.PerSymbol[symbol]
		b.WriteString(fmt.Sprintf("  %-12s сделок=%d  win=%.1f%%  pnl=%s  dd=%.2f  gaps=%d\n",
			symbol, sum.TotalTrades, sum.WinRate, renderPnL(sum.NetPnL), sum.MaxDrawdown, sum.DataGaps))
	}
	b.WriteString("\n")

	if len(r.Trades) > 0 {
		b.WriteString(sectionStyle.Render("Последние сделки"))
		b.WriteString("\n")
		start := 0
		if len(r.Trades) > maxTradesInReport {
			start = len(r.Trades) - maxTradesInReport
		}
		for _, t := range r.Trades[start:] {
			b.WriteString(fmt.Sprintf("  %s  %-12s вход %.4f → выход %.4f  %-11s  %s\n",
				t.ExitTime.UTC().Format("2006-01-02 15:04"),
				t.Symbol, t.EntryPrice, t.ExitPrice, t.ExitReason,
				renderPnL(t.PnLAbs)))
		}
	}

	return b.String()
}

// renderSummary формирует общий блок статистики
func renderSummary(s Summary) string {
	lines := []string{
		fmt.Sprintf("Всего сделок:      %d", s.TotalTrades),
		fmt.Sprintf("Прибыльных:        %d (%.2f%%)", s.WinningTrades, s.WinRate),
		fmt.Sprintf("Убыточных:         %d", s.LosingTrades),
		fmt.Sprintf("Чистый PnL:        %s USDT", renderPnL(s.NetPnL)),
		fmt.Sprintf("Профит-фактор:     %.2f", s.ProfitFactor),
		fmt.Sprintf("Средняя прибыль:   %.2f / убыток: %.2f", s.AvgWin, s.AvgLoss),
		fmt.Sprintf("Макс. просадка:    %.2f USDT", s.MaxDrawdown),
		fmt.Sprintf("Среднее удержание: %s", s.AvgDuration.Round(time.Minute)),
		fmt.Sprintf("TP / SL:           %d / %d", s.TakeProfits, s.StopLosses),
		fmt.Sprintf("Пропущено циклов:  %d (мало истории), разрывов данных: %d",
			s.SkippedInsufficient, s.DataGaps),
	}
	if s.OpenAtEnd > 0 {
		lines = append(lines, fmt.Sprintf("Открыто на конец:  %d", s.OpenAtEnd))
	}
	return strings.Join(lines, "\n")
}

func renderPnL(v float64) string {
	s := fmt.Sprintf("%+.2f", v)
	if v < 0 {
		return lossStyle.Render(s)
	}
	return profitStyle.Render(s)
}
