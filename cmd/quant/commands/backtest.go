package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wonny/quantlab/internal/history"
)

// backtestCmd represents the backtest command
var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "단일 백테스트 실행",
	Long: `전략 설정 하나로 지정 기간을 시뮬레이션합니다.

백테스트는 다음을 보고합니다:
- 수익률 / Sharpe / Sortino / MDD
- 거래 내역과 승률, expectancy
- 벤치마크(buy & hold) 대비 성과
- 거부된 주문 (현금 부족, 최대 보유 종목 수)

Flags:
  --config      전략 YAML 파일
  --strategy    전략 variant (config 없이 기본 파라미터로 실행)
  --symbols     종목 코드 (쉼표 구분)
  --start/--end 기간 (YYYY-MM-DD)
  --out         리포트 JSON 저장 경로

Example:
  go run ./cmd/quant backtest --config config/strategy/threshold.yaml --symbols 005930,000660
  go run ./cmd/quant backtest --strategy momentum --symbols 005930 --start 2022-01-01 --out report.json`,
	RunE: runBacktest,
}

var backtestFlags runFlags

func init() {
	rootCmd.AddCommand(backtestCmd)
	addRunFlags(backtestCmd, &backtestFlags)
}

func runBacktest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	_, req, hash, err := backtestFlags.resolve(rt.cfg)
	if err != nil {
		return err
	}

	PrintHeader("Backtest",
		"Strategy  : "+req.Strategy,
		"Symbols   : "+strings.Join(req.Symbols, ", "),
		"Source    : "+rt.loader.Name(),
		"Params    : "+req.Params.String(),
	)

	report, runErr := rt.engine().Run(ctx, req)
	if report != nil {
		saveRun(ctx, rt, func() (*history.Record, error) { return history.FromReport(report, hash) })
		printReport(report)
		if err := writeJSON(backtestFlags.out, report); err != nil {
			return err
		}
	}
	if runErr != nil {
		return fmt.Errorf("backtest failed: %w", runErr)
	}

	fmt.Println()
	PrintSuccess("Backtest completed in " + report.Duration.String())
	return nil
}
