package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/quantlab/internal/datasource"
)

// importCmd represents the import command
var importCmd = &cobra.Command{
	Use:   "import",
	Short: "CSV 일봉/지표 데이터 적재",
	Long: `CSV 파일(<SYMBOL>.csv)을 읽어 parquet 디렉토리 또는 PostgreSQL 에 적재합니다.

CSV 형식:
  date,open,high,low,close,volume[,indicator...]
  지표 컬럼의 빈 값 / NaN 은 결측으로 저장하지 않습니다.

Targets:
  parquet   - DATA_DIR/daily, DATA_DIR/indicators (기본)
  postgres  - data.daily_prices, data.indicators

Example:
  go run ./cmd/quant import --dir ./csv
  go run ./cmd/quant import --dir ./csv --symbols 005930,000660 --target postgres`,
	RunE: runImport,
}

var (
	importDir     string
	importSymbols []string
	importTarget  string
)

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().StringVar(&importDir, "dir", "", "CSV 디렉토리 (필수)")
	importCmd.Flags().StringSliceVar(&importSymbols, "symbols", nil, "적재할 종목 (기본: 디렉토리 전체)")
	importCmd.Flags().StringVar(&importTarget, "target", datasource.SourceParquet, "저장 대상 (parquet|postgres)")

	_ = importCmd.MarkFlagRequired("dir")
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	src := datasource.NewCSVSource(importDir, rt.log)
	symbols := normalizeSymbols(importSymbols)
	if len(symbols) == 0 {
		if symbols, err = src.Symbols(); err != nil {
			return fmt.Errorf("list csv files: %w", err)
		}
	}
	if len(symbols) == 0 {
		PrintWarning("No csv files found in " + importDir)
		return nil
	}

	var write func(sym string) error
	ds, err := src.Load(ctx, symbols, time.Time{}, time.Time{})
	if err != nil {
		return err
	}

	switch importTarget {
	case datasource.SourceParquet:
		dst := datasource.NewParquetSource(rt.cfg.Data.Dir, rt.log)
		write = func(sym string) error {
			s, _ := ds.Series(sym)
			return dst.WriteSeries(s)
		}
	case datasource.SourcePostgres:
		if rt.db == nil {
			return fmt.Errorf("--target postgres requires DATABASE_URL")
		}
		dst := datasource.NewPostgresSource(rt.db.Pool, rt.log)
		if err := dst.EnsureSchema(ctx); err != nil {
			return err
		}
		write = func(sym string) error {
			s, _ := ds.Series(sym)
			return dst.SaveSeries(ctx, s)
		}
	default:
		return fmt.Errorf("unknown import target %q (parquet, postgres)", importTarget)
	}

	PrintHeader("Import",
		"Source    : "+importDir,
		"Target    : "+importTarget,
		fmt.Sprintf("Symbols   : %d", len(ds.Symbols())),
	)

	start := time.Now()
	for i, sym := range ds.Symbols() {
		if err := write(sym); err != nil {
			return fmt.Errorf("import %s: %w", sym, err)
		}
		s, _ := ds.Series(sym)
		fmt.Printf("[Import] %s: %d bars [%d/%d]\n", sym, s.Len(), i+1, len(ds.Symbols()))
	}

	fmt.Println()
	PrintSuccess(fmt.Sprintf("Imported %d symbols in %.2fs", len(ds.Symbols()), time.Since(start).Seconds()))
	return nil
}
