package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"

	"github.com/hitoshi/bookclub/internal/admin"
	"github.com/hitoshi/bookclub/internal/backend"
	"github.com/hitoshi/bookclub/internal/config"
	"github.com/hitoshi/bookclub/internal/database"
	"github.com/hitoshi/bookclub/internal/handler"
	"github.com/hitoshi/bookclub/internal/home"
	"github.com/hitoshi/bookclub/internal/logger"
	"github.com/hitoshi/bookclub/internal/metrics"
	"github.com/hitoshi/bookclub/internal/middleware"
	"github.com/hitoshi/bookclub/internal/security"
	"github.com/hitoshi/bookclub/internal/view"
	"github.com/hitoshi/bookclub/internal/worker/cleanup"
	"github.com/hitoshi/bookclub/internal/worker/supplement"
)

// shutdownTimeout はグレースフルシャットダウンの待機時間。
const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// .envがあれば環境変数に読み込み、JSON構造化ログをセットアップしてConfigを返す。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. .envの読み込み（存在しない場合は無視し、既存の環境変数を優先する）
	_ = godotenv.Load()

	// 2. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, os.Getenv("LOG_LEVEL"))

	// 3. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。SIGINTまたはSIGTERMで停止する。
func Run(w io.Writer, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return RunContext(ctx, w, args)
}

// RunContext はctxがキャンセルされるまでサブコマンドを実行する。
func RunContext(ctx context.Context, w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(ctx, port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	var rest []string
	if len(args) > 1 {
		rest = args[1:]
	}

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg, rest)
	case CommandProvision:
		return runProvision(ctx, cfg, w, rest)
	default:
		return runServe(ctx, cfg)
	}
}

// rateLimiterConfig は設定のreq/min値をレートリミッターの設定（req/sec）に変換する。
func rateLimiterConfig(cfg *config.Config) middleware.RateLimiterConfig {
	rlc := middleware.DefaultRateLimiterConfig()
	if cfg.RateLimitGeneral > 0 {
		rlc.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
		rlc.GeneralBurst = cfg.RateLimitGeneral
	}
	if cfg.RateLimitSignIn > 0 {
		rlc.SignInRate = rate.Limit(float64(cfg.RateLimitSignIn) / 60.0)
		rlc.SignInBurst = cfg.RateLimitSignIn
	}
	return rlc
}

// newMetrics はプロセスとGoランタイムのコレクターを含むレジストリを構築する。
func newMetrics() (*metrics.Collector, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return metrics.NewCollector(reg), reg
}

// buildRouter はバックエンドクライアントから全依存関係をワイヤリングしたルーターを構築する。
func buildRouter(cfg *config.Config, client *backend.Client, limiter *middleware.RateLimiter, collector *metrics.Collector, gatherer prometheus.Gatherer) (http.Handler, error) {
	sanitizer := security.NewSanitizer()
	renderer, err := view.NewRenderer(cfg.SiteTitle, cfg.Location, sanitizer)
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}

	homeService := home.NewService(client.Meetings, client.Readings, collector, slog.Default())
	adminService := admin.NewService(
		client.Readings, client.Meetings, security.NewURLGuard(), collector, cfg.Location, slog.Default(),
	)

	deps := &handler.RouterDeps{
		Logger:        slog.Default(),
		Authenticator: client.Auth,
		RateLimiter:   limiter,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},

		Renderer:   renderer,
		Home:       homeService,
		Workspaces: adminService,

		AuthService: client.Auth,
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},
		AuthEvents: client.Auth,

		HealthChecker: client.DB(),
		Metrics:       collector,
		Gatherer:      gatherer,
	}
	return handler.NewRouter(deps), nil
}

// runServe はHTTPサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	// 1. バックエンド接続
	client, err := backend.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	// 2. 共有状態（レート制限、メトリクス）
	limiter := middleware.NewRateLimiter(rateLimiterConfig(cfg))
	defer limiter.Stop()
	collector, registry := newMetrics()

	// 3. ルーターの構築
	router, err := buildRouter(cfg, client, limiter, collector, registry)
	if err != nil {
		return err
	}

	// 4. HTTPサーバーの起動
	// /events はストリームのため書き込みタイムアウトを設定しない
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("HTTP server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 補足資料の取り込みと期限切れセッションの削除をctxがキャンセルされるまで実行する。
func runWorker(ctx context.Context, cfg *config.Config) error {
	// 1. バックエンド接続
	client, err := backend.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	// ワーカーは/metricsを公開しないため、レジストリは集計のみに使う
	collector, _ := newMetrics()
	guard := security.NewURLGuard()

	// 2. 補足資料の取り込み
	fetcher := supplement.NewFetcher(
		guard.NewSafeClient(cfg.SupplementTimeout),
		guard,
		security.NewSanitizer(),
		slog.Default(),
		cfg.SupplementMaxSize,
		cfg.SupplementMaxEntries,
	)
	scheduler := supplement.NewScheduler(client.Supplements, fetcher, collector, slog.Default(), supplement.SchedulerConfig{
		MaxConcurrency: cfg.SupplementMaxConcurrent,
		TTL:            cfg.SupplementTTL,
	})

	// 3. 期限切れセッションの削除
	cleanupJob := cleanup.NewCleanupJob(client.Sessions, collector, slog.Default())

	slog.Info("worker starting",
		slog.Duration("supplement_interval", cfg.SupplementInterval),
		slog.Int("max_concurrent", cfg.SupplementMaxConcurrent),
		slog.Duration("session_cleanup_interval", cfg.SessionCleanupInterval),
	)

	done := make(chan struct{})
	go func() {
		defer close(done)
		cleanupJob.Start(ctx, cfg.SessionCleanupInterval)
	}()

	// 取り込みスケジューラをメインgoroutineで実行（ブロッキング）
	scheduler.Start(ctx, cfg.SupplementInterval)
	<-done

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// 引数なしの場合は未適用分をすべて適用し、"down [steps]" の場合は指定数（デフォルト1）だけ巻き戻す。
func runMigrate(cfg *config.Config, args []string) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if len(args) > 0 && args[0] == "down" {
		steps := 1
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil || n <= 0 {
				return fmt.Errorf("invalid rollback steps: %q", args[1])
			}
			steps = n
		}
		version, err := database.RollbackMigrations(cfg.DatabaseURL, steps)
		if err != nil {
			return fmt.Errorf("migration rollback failed: %w", err)
		}
		slog.Info("database migrations rolled back",
			slog.Int("steps", steps),
			slog.Uint64("version", uint64(version)),
		)
		return nil
	}

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(ctx context.Context, port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
