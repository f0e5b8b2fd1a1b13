package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/quantlab/internal/api"
	"github.com/wonny/quantlab/internal/api/handlers"
	"github.com/wonny/quantlab/internal/optimizer"
	"github.com/wonny/quantlab/internal/walkforward"
	"github.com/wonny/quantlab/pkg/redis"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "API 서버 시작",
	Long: `REST API 서버를 시작합니다.

이 명령어는:
- 백테스트 / walk-forward 동기 실행
- 파라미터 탐색 비동기 실행 (WebSocket 진행률)
- 실행 이력 조회

Endpoints:
  GET    /health                    - Health check
  POST   /api/backtests             - 백테스트 실행
  POST   /api/walkforward           - Walk-forward 검증
  POST   /api/optimize              - 파라미터 탐색 제출
  GET    /api/optimize/{id}         - 탐색 진행 상태
  DELETE /api/optimize/{id}         - 탐색 취소
  GET    /api/optimize/{id}/stream  - 진행률 WebSocket
  GET    /api/runs                  - 실행 이력 목록
  GET    /api/runs/{id}             - 실행 이력 상세

Example:
  go run ./cmd/quant api
  go run ./cmd/quant api --port 8080`,
	RunE: runAPIServer,
}

var (
	apiPort string
)

func init() {
	rootCmd.AddCommand(apiCmd)

	// Flags
	apiCmd.Flags().StringVar(&apiPort, "port", "", "API 서버 포트 (기본: PORT)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	fmt.Println("=== quantlab API Server ===")

	// 1. Runtime (config, logger, database, redis, data source, history)
	rt, err := newRuntime(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.Close()

	cfg, log := rt.cfg, rt.log
	if apiPort != "" {
		cfg.Port = apiPort
	}

	log.WithFields(map[string]interface{}{
		"port":        cfg.Port,
		"env":         cfg.Env,
		"data_source": rt.loader.Name(),
		"database":    rt.db != nil,
		"redis":       rt.redis.Enabled(),
	}).Info("Initializing API server")

	// 2. Engines
	engine := rt.engine()
	validator := walkforward.NewValidator(engine, log)
	opt := optimizer.New(engine, cfg.Optimizer.MaxWorkers, log)

	// 3. Handlers
	// 최적화 작업은 서버 종료 시 baseCtx 취소로 함께 중단
	baseCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()

	h := api.Handlers{
		Health:   handlers.NewHealthHandler(rt.db, rt.redis, rt.loader.Name()),
		Backtest: handlers.NewBacktestHandler(engine, validator, rt.store, log),
		Optimize: handlers.NewOptimizeHandler(baseCtx, opt, rt.store, redis.NewRateLimiter(rt.redis, "ratelimit"), log),
		Runs:     handlers.NewRunsHandler(rt.store, log),
	}

	// 4. Router + server
	router := api.NewRouter(h, log)
	server := api.New(cfg, log, router)

	// 5. Start server with graceful shutdown
	go func() {
		if err := server.Start(); err != nil {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	log.Info("API server started successfully")
	fmt.Printf("\n✅ Server running on http://localhost:%s\n", cfg.Port)
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")
	cancelJobs()

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("Server stopped")
	return nil
}
