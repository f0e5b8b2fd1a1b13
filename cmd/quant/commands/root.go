package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "quant",
	Short: "quantlab - 전략 백테스트/검증 엔진",
	Long: `quantlab Unified CLI

일봉 데이터 위에서 전략을 시뮬레이션하고,
walk-forward 와 파라미터 탐색으로 과최적화 여부를 검증합니다.

Usage:
  go run ./cmd/quant [command]

Examples:
  go run ./cmd/quant backtest --config config/strategy/threshold.yaml --symbols 005930
  go run ./cmd/quant walkforward --config config/strategy/threshold.yaml --symbols 005930,000660
  go run ./cmd/quant optimize --config config/strategy/threshold.yaml --symbols 005930 --validate
  go run ./cmd/quant import --dir ./csv --symbols 005930
  go run ./cmd/quant api
  go run ./cmd/quant check`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug 로그 출력")
}
