package commands

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wonny/quantlab/internal/history"
	"github.com/wonny/quantlab/internal/optimizer"
	"github.com/wonny/quantlab/internal/walkforward"
)

// optimizeCmd represents the optimize command
var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "파라미터 그리드 탐색",
	Long: `설정 파일의 optimize.grid 전체 조합을 병렬로 백테스트하고 목표 지표로 순위를 매깁니다.

목표 지표:
  sharpe             - Sharpe ratio
  annualized_return  - 연환산 수익률
  return_drawdown    - 연환산 수익률 / MDD

--validate 를 주면 1위 조합으로 walk-forward 검증까지 실행하고,
탐색 결과의 민감도(std/|mean|)를 과최적화 점수에 반영합니다.

Ctrl+C 로 중단하면 완료된 조합만으로 순위를 출력합니다.

Example:
  go run ./cmd/quant optimize --config config/strategy/threshold.yaml --symbols 005930
  go run ./cmd/quant optimize --config config/strategy/threshold.yaml --symbols 005930 --objective return_drawdown --top 5 --validate`,
	RunE: runOptimize,
}

var (
	optimizeFlags     runFlags
	optimizeObjective string
	optimizeTopN      int
	optimizeWorkers   int
	optimizeValidate  bool
)

func init() {
	rootCmd.AddCommand(optimizeCmd)
	addRunFlags(optimizeCmd, &optimizeFlags)

	optimizeCmd.Flags().StringVar(&optimizeObjective, "objective", "", "목표 지표 (기본: 설정 파일)")
	optimizeCmd.Flags().IntVar(&optimizeTopN, "top", 0, "출력할 상위 조합 수 (기본: 설정 파일)")
	optimizeCmd.Flags().IntVar(&optimizeWorkers, "workers", 0, "동시 시뮬레이션 수 (기본: OPTIMIZER_WORKERS)")
	optimizeCmd.Flags().BoolVar(&optimizeValidate, "validate", false, "1위 조합을 walk-forward 로 검증")
}

func runOptimize(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	sc, base, hash, err := optimizeFlags.resolve(rt.cfg)
	if err != nil {
		return err
	}

	objective := sc.Optimize.Objective
	if optimizeObjective != "" {
		objective = optimizeObjective
	}
	topN := sc.Optimize.TopN
	if optimizeTopN > 0 {
		topN = optimizeTopN
	}
	workers := rt.cfg.Optimizer.MaxWorkers
	if optimizeWorkers > 0 {
		workers = optimizeWorkers
	}

	grid, err := optimizer.NewGridFor(base.Strategy, sc.Optimize.Grid)
	if err != nil {
		return err
	}

	PrintHeader("Parameter Sweep",
		"Strategy  : "+base.Strategy,
		"Symbols   : "+strings.Join(base.Symbols, ", "),
		fmt.Sprintf("Grid      : %d combinations", grid.Size()),
		fmt.Sprintf("Objective : %s (top %d, %d workers)", objective, topN, workers),
	)

	req := optimizer.Request{
		Base:      base,
		Grid:      sc.Optimize.Grid,
		Objective: optimizer.Objective(objective),
		TopN:      topN,
	}

	step := max(grid.Size()/20, 1)
	progress := func(completed, total int) {
		if completed%step == 0 || completed == total {
			fmt.Printf("\r[Optimize] %d/%d (%.0f%%)", completed, total, float64(completed)/float64(total)*100)
		}
	}

	opt := optimizer.New(rt.engine(), workers, rt.log)
	sweep, err := opt.Run(ctx, req, progress)
	fmt.Println()
	if err != nil {
		return fmt.Errorf("optimize failed: %w", err)
	}

	saveRun(ctx, rt, func() (*history.Record, error) {
		return history.FromSweep(sweep, base.Params, hash)
	})
	printSweep(sweep)

	out := map[string]interface{}{"sweep": sweep}
	if optimizeValidate && len(sweep.Top) > 0 && !sweep.Cancelled {
		best := base
		best.Params = base.Params.ApplyAll(sweep.Top[0].Params)

		opts := walkforward.Options{}
		if v, ok := sweep.Sensitivity.Get(); ok {
			opts.Sensitivity = &v
		}

		fmt.Println()
		fmt.Printf("🔁 Validating rank 1: %s\n", best.Params.String())
		result, err := walkforward.NewValidator(rt.engine(), rt.log).Validate(ctx, best, sc.WalkForward, opts)
		if err != nil {
			PrintError("walk-forward failed: " + err.Error())
		} else {
			printWalkForward(result)
			out["walkforward"] = result
		}
	}

	return writeJSON(optimizeFlags.out, out)
}
