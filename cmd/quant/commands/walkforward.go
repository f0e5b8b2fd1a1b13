package commands

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/wonny/quantlab/internal/history"
	"github.com/wonny/quantlab/internal/walkforward"
)

// walkforwardCmd represents the walkforward command
var walkforwardCmd = &cobra.Command{
	Use:   "walkforward",
	Short: "Walk-forward 검증",
	Long: `학습/검증 구간을 나눠 같은 파라미터의 성과 저하를 측정합니다.

모드:
  split    - 전체 기간을 split_ratio 로 한 번 분할
  rolling  - train_months / test_months 윈도우를 step_months 씩 이동

결과:
- fold 별 train/test 성과와 degradation
- 과최적화 위험 점수 (0~10) 와 경고

Example:
  go run ./cmd/quant walkforward --config config/strategy/threshold.yaml --symbols 005930,000660
  go run ./cmd/quant walkforward --config config/strategy/momentum_atr.yaml --symbols 005930 --out wf.json`,
	RunE: runWalkForward,
}

var walkforwardFlags runFlags

func init() {
	rootCmd.AddCommand(walkforwardCmd)
	addRunFlags(walkforwardCmd, &walkforwardFlags)
}

func runWalkForward(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	sc, req, hash, err := walkforwardFlags.resolve(rt.cfg)
	if err != nil {
		return err
	}

	wf := sc.WalkForward
	PrintHeader("Walk-forward Validation",
		"Strategy  : "+req.Strategy,
		"Symbols   : "+strings.Join(req.Symbols, ", "),
		fmt.Sprintf("Windows   : %s train=%dm test=%dm step=%dm", wf.Mode, wf.TrainMonths, wf.TestMonths, wf.StepMonths),
	)

	validator := walkforward.NewValidator(rt.engine(), rt.log)
	result, err := validator.Validate(ctx, req, wf, walkforward.Options{})
	if err != nil {
		return fmt.Errorf("walk-forward failed: %w", err)
	}

	id := uuid.New().String()
	saveRun(ctx, rt, func() (*history.Record, error) {
		return history.FromWalkForward(id, result, req.Params, hash)
	})

	printWalkForward(result)
	return writeJSON(walkforwardFlags.out, result)
}
