package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/wonny/quantlab/internal/backtest"
	"github.com/wonny/quantlab/internal/contracts"
	"github.com/wonny/quantlab/internal/datasource"
	"github.com/wonny/quantlab/internal/history"
	"github.com/wonny/quantlab/internal/strategyconfig"
	"github.com/wonny/quantlab/pkg/config"
	"github.com/wonny/quantlab/pkg/database"
	"github.com/wonny/quantlab/pkg/logger"
	"github.com/wonny/quantlab/pkg/redis"
)

const dateLayout = "2006-01-02"

// runtime holds the process-wide dependencies every command shares
type runtime struct {
	cfg    *config.Config
	log    *logger.Logger
	db     *database.DB // nil without DATABASE_URL
	redis  *redis.Client
	loader contracts.DatasetLoader
	store  history.Store
}

// newRuntime wires config → logger → database → redis → data source → history
func newRuntime(ctx context.Context) (*runtime, error) {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	// 2. Initialize logger
	log := logger.New(cfg)
	rt := &runtime{cfg: cfg, log: log}

	// 3. Connect to database (optional)
	var pool *pgxpool.Pool
	if cfg.HasDatabase() {
		db, err := database.New(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		rt.db = db
		pool = db.Pool
		log.Debug("Connected to database")
	}

	// 4. Redis (optional, disabled falls back to no-op)
	rc, err := redis.New(ctx, cfg)
	if err != nil {
		log.WithError(err).Warn("Redis unavailable, continuing without dataset cache")
		rc = redis.Disabled()
	}
	rt.redis = rc

	var cache *redis.Cache
	if rc.Enabled() {
		cache = redis.NewCache(rc, "dataset")
	}

	// 5. Data source
	rt.loader, err = datasource.New(cfg, pool, cache, log)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("init data source: %w", err)
	}

	// 6. Run history
	if pool != nil {
		store := history.NewPostgresStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			rt.Close()
			return nil, fmt.Errorf("ensure history schema: %w", err)
		}
		rt.store = store
	} else {
		rt.store = history.NewMemoryStore()
	}

	return rt, nil
}

// engine creates a backtest engine over the configured data source
func (rt *runtime) engine() *backtest.Engine {
	return backtest.NewEngine(rt.loader, rt.log)
}

// Close releases connections
func (rt *runtime) Close() {
	if rt.redis != nil {
		_ = rt.redis.Close()
	}
	if rt.db != nil {
		rt.db.Close()
	}
}

// runFlags are shared by backtest, walkforward and optimize
type runFlags struct {
	configFile string
	variant    string
	symbols    []string
	start      string
	end        string
	benchmark  string
	out        string
}

func addRunFlags(cmd *cobra.Command, f *runFlags) {
	cmd.Flags().StringVar(&f.configFile, "config", "", "전략 YAML 파일 (없으면 기본 파라미터)")
	cmd.Flags().StringVar(&f.variant, "strategy", "", "전략 variant (threshold|momentum|conservative)")
	cmd.Flags().StringSliceVar(&f.symbols, "symbols", nil, "종목 코드 (쉼표 구분, 필수)")
	cmd.Flags().StringVar(&f.start, "start", "", "시작 날짜 (YYYY-MM-DD, 기본: 데이터 시작)")
	cmd.Flags().StringVar(&f.end, "end", "", "종료 날짜 (YYYY-MM-DD, 기본: 데이터 끝)")
	cmd.Flags().StringVar(&f.benchmark, "benchmark", "", "벤치마크 종목 (기본: 설정 파일 또는 BENCHMARK_SYMBOL)")
	cmd.Flags().StringVar(&f.out, "out", "", "결과 JSON 저장 경로")

	_ = cmd.MarkFlagRequired("symbols")
}

// resolve loads the strategy file and builds the engine request
func (f *runFlags) resolve(cfg *config.Config) (*strategyconfig.Config, backtest.Request, string, error) {
	var sc *strategyconfig.Config
	if f.configFile != "" {
		loaded, _, err := strategyconfig.Load(f.configFile)
		if err != nil {
			return nil, backtest.Request{}, "", err
		}
		sc = loaded
	} else {
		sc = strategyconfig.DefaultConfig(f.variant)
	}
	if f.variant != "" {
		sc.Strategy.Variant = f.variant
	}
	if err := strategyconfig.Validate(sc); err != nil {
		return nil, backtest.Request{}, "", err
	}

	start, err := parseDate(f.start)
	if err != nil {
		return nil, backtest.Request{}, "", fmt.Errorf("invalid start date: %w", err)
	}
	end, err := parseDate(f.end)
	if err != nil {
		return nil, backtest.Request{}, "", fmt.Errorf("invalid end date: %w", err)
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return nil, backtest.Request{}, "", fmt.Errorf("end %s is before start %s", f.end, f.start)
	}

	benchmark := f.benchmark
	if benchmark == "" {
		benchmark = sc.Benchmark
	}
	if benchmark == "" {
		benchmark = cfg.Data.Benchmark
	}

	hash, err := strategyconfig.Hash(sc)
	if err != nil {
		return nil, backtest.Request{}, "", err
	}

	req := backtest.Request{
		Strategy:  sc.Strategy.Variant,
		Symbols:   normalizeSymbols(f.symbols),
		Start:     start,
		End:       end,
		Params:    sc.Params,
		Benchmark: benchmark,
	}
	return sc, req, hash, nil
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(dateLayout, s)
}

func normalizeSymbols(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// saveRun persists a run; history failures never fail the command.
// Interrupted runs are still saved.
func saveRun(ctx context.Context, rt *runtime, build func() (*history.Record, error)) {
	rec, err := build()
	if err == nil {
		err = rt.store.Save(context.WithoutCancel(ctx), rec)
	}
	if err != nil {
		rt.log.WithError(err).Warn("Failed to save run history")
	}
}
