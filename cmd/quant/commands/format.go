package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/wonny/quantlab/internal/backtest"
	"github.com/wonny/quantlab/internal/optimizer"
	"github.com/wonny/quantlab/internal/walkforward"
)

// ═══════════════════════════════════════════════════════════
// Common Formatting Utilities
// 모든 커맨드가 동일한 출력 포맷을 사용하도록 통일
// ═══════════════════════════════════════════════════════════

// PrintHeader prints a formatted command header
func PrintHeader(title string, lines ...string) {
	fmt.Println()
	PrintDoubleSeparator()
	fmt.Printf("  %s\n", title)
	if len(lines) > 0 {
		PrintSeparator()
		for _, l := range lines {
			fmt.Printf("  %s\n", l)
		}
	}
	PrintDoubleSeparator()
}

// PrintSeparator prints a visual separator
func PrintSeparator() {
	fmt.Println("───────────────────────────────────────────────────────────")
}

// PrintDoubleSeparator prints a double-line separator
func PrintDoubleSeparator() {
	fmt.Println("═══════════════════════════════════════════════════════════")
}

// PrintWarning prints a warning message
func PrintWarning(message string) {
	fmt.Printf("⚠️  %s\n", message)
}

// PrintSuccess prints a success message
func PrintSuccess(message string) {
	fmt.Printf("✅ %s\n", message)
}

// PrintError prints an error message
func PrintError(message string) {
	fmt.Printf("❌ %s\n", message)
}

// PrintTableHeader prints a table header
func PrintTableHeader(columns []string, widths []int) {
	PrintTableRow(columns, widths)

	totalWidth := 0
	for i, width := range widths {
		totalWidth += width
		if i < len(widths)-1 {
			totalWidth += 2 // spacing
		}
	}
	fmt.Println(strings.Repeat("─", totalWidth))
}

// PrintTableRow prints a table row
func PrintTableRow(values []string, widths []int) {
	for i, val := range values {
		fmt.Printf("%-*s", widths[i], val)
		if i < len(values)-1 {
			fmt.Print("  ")
		}
	}
	fmt.Println()
}

// PrintKeyValue prints key-value pairs
func PrintKeyValue(key string, value string, keyWidth int) {
	fmt.Printf("   %-*s : %s\n", keyWidth, key, value)
}

// formatNumber adds thousands separators
func formatNumber(n int64) string {
	if n < 0 {
		return "-" + formatNumber(-n)
	}
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}

	var b strings.Builder
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
	}
	for i := pre; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

func pct(v float64) string {
	return fmt.Sprintf("%+.2f%%", v*100)
}

// writeJSON saves v to path (no-op when path is empty)
func writeJSON(path string, v interface{}) error {
	if path == "" {
		return nil
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	PrintSuccess("Saved " + path)
	return nil
}

func printReport(r *backtest.Report) {
	fmt.Println()
	fmt.Println("📊 Summary")
	PrintKeyValue("Run ID", r.RunID, 14)
	PrintKeyValue("Strategy", r.Strategy, 14)
	PrintKeyValue("Symbols", strings.Join(r.Symbols, ", "), 14)
	PrintKeyValue("Period", fmt.Sprintf("%s ~ %s", r.ActualStart.Format(dateLayout), r.ActualEnd.Format(dateLayout)), 14)
	PrintKeyValue("Status", r.Status, 14)
	if r.Error != "" {
		PrintKeyValue("Error", r.Error, 14)
	}
	fmt.Println()

	p := r.Performance
	fmt.Println("💰 Performance")
	PrintKeyValue("Initial Equity", formatNumber(int64(p.InitialEquity)), 14)
	PrintKeyValue("Final Equity", formatNumber(int64(p.FinalEquity)), 14)
	PrintKeyValue("Total Return", pct(p.TotalReturn), 14)
	PrintKeyValue("Annualized", pct(p.AnnualizedReturn), 14)
	PrintKeyValue("Volatility", fmt.Sprintf("%.2f%%", p.Volatility*100), 14)
	PrintKeyValue("Sharpe", fmt.Sprintf("%.2f", p.Sharpe), 14)
	PrintKeyValue("Sortino", fmt.Sprintf("%.2f", p.Sortino), 14)
	PrintKeyValue("Max Drawdown", fmt.Sprintf("%.2f%%", p.MaxDrawdown*100), 14)
	PrintKeyValue("VaR/CVaR 95", fmt.Sprintf("%.2f%% / %.2f%%", p.VaR95*100, p.CVaR95*100), 14)
	fmt.Println()

	fmt.Println("💹 Trading")
	PrintKeyValue("Trades", fmt.Sprintf("%d (win %.1f%%)", p.TradeCount, p.WinRate*100), 14)
	PrintKeyValue("Expectancy", fmt.Sprintf("%.2fR", p.Expectancy), 14)
	PrintKeyValue("Profit Factor", fmt.Sprintf("%.2f", p.ProfitFactor), 14)
	PrintKeyValue("Fees", formatNumber(int64(p.TotalFees)), 14)
	PrintKeyValue("Rejections", fmt.Sprintf("%d", len(r.Rejections)), 14)
	fmt.Println()

	fmt.Println("📈 Baseline")
	if b, ok := r.Baseline.Get(); ok {
		PrintKeyValue(b.Symbol, pct(b.BaselineReturn), 14)
		PrintKeyValue("Strategy", pct(b.StrategyReturn), 14)
	} else {
		PrintKeyValue("not computed", r.Baseline.Reason(), 14)
	}

	for _, n := range r.Notes {
		PrintWarning(n)
	}
}

func printWalkForward(res *walkforward.Result) {
	fmt.Println()
	fmt.Printf("🔁 Walk-forward (%s, %d folds, warmup %d days)\n", res.Mode, len(res.Folds), res.WarmupDays)
	fmt.Println()

	widths := []int{4, 23, 23, 10, 10, 8}
	PrintTableHeader([]string{"#", "Train", "Test", "Train Ret", "Test Ret", "Degr"}, widths)
	for _, f := range res.Folds {
		PrintTableRow([]string{
			fmt.Sprintf("%d", f.Index),
			f.Train.Start.Format(dateLayout) + "~" + f.Train.End.Format(dateLayout),
			f.Test.Start.Format(dateLayout) + "~" + f.Test.End.Format(dateLayout),
			pct(f.TrainMetrics.TotalReturn),
			pct(f.TestMetrics.TotalReturn),
			fmt.Sprintf("%.2f", f.Degradation.Value),
		}, widths)
	}
	for _, fl := range res.Failures {
		PrintError(fmt.Sprintf("fold %d (%s): %s", fl.Index, fl.Phase, fl.Error))
	}
	fmt.Println()

	risk, ok := res.OverfittingRisk.Get()
	if !ok {
		PrintWarning("Overfitting risk not computed: " + res.OverfittingRisk.Reason())
		return
	}
	fmt.Printf("🧪 Overfitting risk: %.1f / 10 (%s)\n", risk.Score, risk.Level)
	for _, w := range risk.Warnings {
		PrintWarning(w.Message)
	}
	for _, s := range risk.Suggestions {
		fmt.Printf("   • %s\n", s)
	}
}

func printSweep(s *optimizer.Sweep) {
	fmt.Println()
	fmt.Printf("🔍 Sweep %s: %d/%d completed, %d failed, %d skipped (%s)\n",
		s.ID, s.Completed, s.Total, s.Failed, s.Skipped, s.Objective)
	if s.Cancelled {
		PrintWarning("Sweep was cancelled; ranking covers completed combinations only")
	}
	fmt.Println()

	names := make([]string, 0, len(s.Axes))
	for _, a := range s.Axes {
		names = append(names, a.Name)
	}
	sort.Strings(names)

	cols := append([]string{"Rank", "Objective", "Return", "MDD"}, names...)
	widths := make([]int, len(cols))
	for i, c := range cols {
		widths[i] = max(len(c), 10)
	}
	PrintTableHeader(cols, widths)
	for _, r := range s.Top {
		row := []string{
			fmt.Sprintf("%d", r.Rank),
			fmt.Sprintf("%.4f", r.Objective),
			pct(r.Performance.TotalReturn),
			fmt.Sprintf("%.2f%%", r.Performance.MaxDrawdown*100),
		}
		for _, n := range names {
			row = append(row, fmt.Sprintf("%g", r.Params[n]))
		}
		PrintTableRow(row, widths)
	}

	if v, ok := s.Sensitivity.Get(); ok {
		fmt.Printf("\nSensitivity (std/|mean|): %.3f\n", v)
	}
}
