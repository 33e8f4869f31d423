package notify

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/alejandrodnm/polysniper/internal/domain"
	"github.com/olekukonko/tablewriter"
)

// Console implementa ports.Notifier escribiendo a un io.Writer.
type Console struct {
	out io.Writer
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w}
}

// NotifyTrade imprime el cierre en una línea compacta.
func (c *Console) NotifyTrade(_ context.Context, t domain.TradeRecord) error {
	sign := "+"
	if t.PnL < 0 {
		sign = "-"
	}
	held := t.ExitTime.Sub(t.EntryTime).Round(time.Second)
	fmt.Fprintf(c.out, "[%s] %s %s %s %.2f→%.2f ×%.2f  %s$%.4f  (%s, held %s)\n",
		t.ExitTime.Format("15:04:05"),
		t.ExitReason,
		compactName(t.MarketSlug, 32),
		t.Side,
		t.EntryPrice, t.ExitPrice, t.Shares,
		sign, math.Abs(t.PnL),
		formatID(t.ID), held,
	)
	return nil
}

// NotifyBacktest imprime el reporte completo del replay: tabla de trades,
// resumen de métricas y estado final de la cuenta.
func (c *Console) NotifyBacktest(_ context.Context, r domain.BacktestResult) error {
	m := r.Metrics

	fmt.Fprintf(c.out, "\n=== BACKTEST — %d trades ===\n\n", m.TotalTrades)

	if len(r.Trades) > 0 {
		c.printTrades(r.Trades)
	}

	fmt.Fprintf(c.out, "\n  --- RESULTS ---\n")
	fmt.Fprintf(c.out, "  Trades:          %d  (W:%d L:%d)\n", m.TotalTrades, m.Wins, m.Losses)
	fmt.Fprintf(c.out, "  Win rate:        %.1f%%\n", m.WinRate*100)
	fmt.Fprintf(c.out, "  Total PnL:       $%.4f\n", m.TotalPnL)
	fmt.Fprintf(c.out, "  Avg PnL/trade:   $%.4f  (win $%.4f / loss $%.4f)\n", m.AvgPnL, m.AvgWin, m.AvgLoss)
	fmt.Fprintf(c.out, "  Gross P/L:       $%.4f / $%.4f\n", m.GrossProfit, m.GrossLoss)
	fmt.Fprintf(c.out, "  Profit factor:   %s\n", profitFactorLabel(m.ProfitFactor))
	fmt.Fprintf(c.out, "  Expectancy:      $%.4f\n", m.Expectancy)
	fmt.Fprintf(c.out, "  Sharpe (per-trade): %.2f\n", m.Sharpe)
	fmt.Fprintf(c.out, "  Max drawdown:    $%.4f (%.1f%%)\n", m.MaxDrawdown, m.MaxDrawdownPct*100)
	fmt.Fprintf(c.out, "  Streaks:         %dW / %dL\n", m.LongestWinStreak, m.LongestLossStreak)

	fmt.Fprintf(c.out, "\n  --- ACCOUNT ---\n")
	fmt.Fprintf(c.out, "  Final balance:   $%.4f\n", r.FinalBalance)
	fmt.Fprintf(c.out, "  Saved profit:    $%.4f\n", r.SavedProfit)
	fmt.Fprintf(c.out, "  Total equity:    $%.4f\n", r.FinalBalance+r.SavedProfit)
	fmt.Fprintln(c.out)
	return nil
}

// printTrades imprime la tabla de trades cerrados.
func (c *Console) printTrades(trades []domain.TradeRecord) {
	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Market", "Side", "Entry", "Exit", "Shares", "PnL", "Reason")

	for i, t := range trades {
		table.Append(
			fmt.Sprintf("%d", i+1),
			compactName(t.MarketSlug, 34),
			t.Side,
			fmt.Sprintf("%.4f", t.EntryPrice),
			fmt.Sprintf("%.4f", t.ExitPrice),
			fmt.Sprintf("%.2f", t.Shares),
			fmt.Sprintf("$%.4f", t.PnL),
			string(t.ExitReason),
		)
	}
	table.Render()
}

// --- helpers ---

func profitFactorLabel(pf float64) string {
	if math.IsInf(pf, 1) {
		return "INF (sin pérdidas)"
	}
	return fmt.Sprintf("%.2f", pf)
}

func formatID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func compactName(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-1] + "…"
}
