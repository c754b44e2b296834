package notifier

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"PatternScout/internal/model"
)

// FormatSignal formats a freshly detected pattern into a Telegram message.
func FormatSignal(sig *model.PatternSignal) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("🔍 <b>Pattern found</b> | %s\n\n", sig.Symbol))
	b.WriteString(fmt.Sprintf("Reference low: %.1f @ %s\n", sig.ReferenceLow, sig.ReferenceLowTime.Format("15:04:05")))
	b.WriteString(fmt.Sprintf("Resistance: %.1f / %.1f\n", sig.Resistance1, sig.Resistance2))
	b.WriteString(fmt.Sprintf("Entry zone: %.1f | Stop: %.1f\n", sig.EntryPrice, sig.StopPrice))
	b.WriteString(fmt.Sprintf("Reward ratio: %.1f\n", sig.RewardRatio))
	return b.String()
}

// FormatEntry formats an opened trade.
func FormatEntry(trade *model.ActiveTrade) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("🚀 <b>Trade entered</b> | %s (%s)\n\n", trade.Symbol, trade.Mode))
	b.WriteString(fmt.Sprintf("Entry: %.1f | Stop: %.1f | Target: %.1f\n",
		trade.EntryPrice, trade.StopPrice, trade.TargetPrice))
	b.WriteString(fmt.Sprintf("Quantity: %s\n", humanize.Comma(int64(trade.Quantity))))
	return b.String()
}

// FormatExit formats a closed trade.
func FormatExit(rec *model.HistoryRecord) string {
	icon := "✅"
	if rec.Outcome == model.OutcomeStop {
		icon = "🛑"
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s <b>Trade closed: %s</b> | %s\n\n", icon, rec.Outcome, rec.Symbol))
	b.WriteString(fmt.Sprintf("Entry: %.1f → Exit: %.1f × %s\n",
		rec.EntryPrice, rec.ExitPrice, humanize.Comma(int64(rec.Quantity))))
	b.WriteString(fmt.Sprintf("PnL: %s\n", humanize.CommafWithDigits(rec.PnL, 2)))
	return b.String()
}

// FormatSignalList formats the tracked-symbol table for a command reply.
func FormatSignalList(signals []model.PatternSignal) string {
	if len(signals) == 0 {
		return "No tracked symbols yet."
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📊 <b>Tracked symbols</b> | %s\n\n", time.Now().Format("2006-01-02")))
	for _, sig := range signals {
		if sig.State == model.StateFound || sig.State == model.StateEntered {
			b.WriteString(fmt.Sprintf("%s [%s] entry %.1f stop %.1f rr %.1f ltp %.1f\n",
				sig.Symbol, sig.State, sig.EntryPrice, sig.StopPrice, sig.RewardRatio, sig.LastPrice))
		} else {
			b.WriteString(fmt.Sprintf("%s [%s] ltp %.1f\n", sig.Symbol, sig.State, sig.LastPrice))
		}
	}
	return b.String()
}

// FormatTradeList formats open positions for a command reply.
func FormatTradeList(trades []model.ActiveTrade) string {
	if len(trades) == 0 {
		return "No active trades."
	}
	var b strings.Builder
	b.WriteString("🚀 <b>Active trades</b>\n\n")
	for _, trade := range trades {
		b.WriteString(fmt.Sprintf("%s entry %.1f stop %.1f target %.1f qty %s\n",
			trade.Symbol, trade.EntryPrice, trade.StopPrice, trade.TargetPrice,
			humanize.Comma(int64(trade.Quantity))))
	}
	return b.String()
}

// FormatHistory formats recent closed trades for a command reply.
func FormatHistory(records []model.HistoryRecord) string {
	if len(records) == 0 {
		return "No closed trades yet."
	}
	var b strings.Builder
	b.WriteString("📜 <b>Trade history</b>\n\n")
	var total float64
	for _, rec := range records {
		total += rec.PnL
		b.WriteString(fmt.Sprintf("%s %s %.1f → %.1f pnl %s (%s)\n",
			rec.Symbol, rec.Outcome, rec.EntryPrice, rec.ExitPrice,
			humanize.CommafWithDigits(rec.PnL, 2), rec.ClosedAt.Format("01-02 15:04")))
	}
	b.WriteString(fmt.Sprintf("\nTotal PnL: %s\n", humanize.CommafWithDigits(total, 2)))
	return b.String()
}

// FormatCapital formats the capital pool state for a command reply.
func FormatCapital(state *model.CapitalState) string {
	var b strings.Builder
	b.WriteString("📦 <b>Capital</b>\n\n")
	b.WriteString(fmt.Sprintf("Total: %s\n", humanize.CommafWithDigits(state.TotalCapital, 0)))
	b.WriteString(fmt.Sprintf("Available: %s\n", humanize.CommafWithDigits(state.Available, 0)))
	b.WriteString(fmt.Sprintf("Updated: %s\n", state.UpdatedAt.Format("2006-01-02 15:04")))
	return b.String()
}
