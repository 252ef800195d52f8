package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/gtlovell/subtracker/internal/backfill"
	"github.com/gtlovell/subtracker/internal/config"
	"github.com/gtlovell/subtracker/internal/database"
	"github.com/gtlovell/subtracker/internal/handler"
	"github.com/gtlovell/subtracker/internal/logger"
	"github.com/gtlovell/subtracker/internal/metrics"
	"github.com/gtlovell/subtracker/internal/middleware"
	"github.com/gtlovell/subtracker/internal/post"
	"github.com/gtlovell/subtracker/internal/reddit"
	"github.com/gtlovell/subtracker/internal/repository"
	"github.com/gtlovell/subtracker/internal/security"
	"github.com/gtlovell/subtracker/internal/subreddit"
	"github.com/gtlovell/subtracker/internal/worker/cleanup"
	"github.com/gtlovell/subtracker/internal/worker/sweep"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// services はワイヤリング済みのサービス層一式。
type services struct {
	subRepo          repository.SubredditRepository
	subredditService *subreddit.Service
	postService      *post.Service
	orchestrator     *backfill.Orchestrator
	collector        *metrics.Collector
	registry         *prometheus.Registry
}

// buildServices はDB接続からサービス層までの依存関係をワイヤリングする。
// serveモードとworkerモードの両方で共通に使用する。
func buildServices(cfg *config.Config, db *sql.DB) *services {
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	subRepo := repository.NewPostgresSubredditRepo(db)
	postRepo := repository.NewPostgresPostRepo(db)

	client := reddit.NewClient(
		&http.Client{Timeout: cfg.UpstreamTimeout},
		reddit.Credentials{
			ClientID:     cfg.RedditClientID,
			ClientSecret: cfg.RedditClientSecret,
			Username:     cfg.RedditUsername,
			Password:     cfg.RedditPassword,
			UserAgent:    cfg.RedditUserAgent,
		},
		reddit.ClientConfig{
			MaxRetries:        cfg.UpstreamMaxRetries,
			RequestsPerMinute: cfg.UpstreamRequestsPerMinute,
		},
		slog.Default(),
	)

	sanitizer := security.NewContentSanitizer()

	subService := subreddit.NewService(subRepo, client, collector, slog.Default(), cfg.StalenessWindow)
	postService := post.NewService(subService, client, postRepo, sanitizer, collector, slog.Default())

	orchestrator := backfill.NewOrchestrator(postService, collector, slog.Default(), backfill.Config{
		PageDelay:       cfg.BackfillPageDelay,
		DefaultMaxPages: cfg.BackfillMaxPages,
		DefaultMaxPosts: cfg.BackfillMaxPosts,
		PageSize:        cfg.ListingLimit,
	})

	return &services{
		subRepo:          subRepo,
		subredditService: subService,
		postService:      postService,
		orchestrator:     orchestrator,
		collector:        collector,
		registry:         registry,
	}
}

// buildRateLimiterConfig はRATE_LIMIT_GENERAL（req/min/IP）を反映した
// レート制限設定を返す。未設定の場合はデフォルト値を使用する。
func buildRateLimiterConfig(cfg *config.Config) middleware.RateLimiterConfig {
	rlCfg := middleware.DefaultRateLimiterConfig()
	if cfg.RateLimitGeneral > 0 {
		rlCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
		rlCfg.GeneralBurst = cfg.RateLimitGeneral
	}
	return rlCfg
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. サービス層のワイヤリング
	svcs := buildServices(cfg, db)

	// 3. cronエンドポイント用のスイーパー（ワーカーと同じコードパス）
	sweeper := sweep.NewSweeper(
		svcs.subRepo, svcs.subredditService, svcs.postService,
		slog.Default(), sweep.Config{
			EntityDelay:  cfg.SweepEntityDelay,
			ListingLimit: cfg.SweepListingLimit,
		},
	)

	// 4. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(buildRateLimiterConfig(cfg))
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		Logger:      slog.Default(),
		RateLimiter: rateLimiter,
		CronSecret:  cfg.CronSecret,
		Gatherer:    svcs.registry,

		SubredditService: svcs.subredditService,
		PostService:      svcs.postService,
		BackfillRunner:   svcs.orchestrator,
		Sweeper:          sweeper,

		DB: db,
	}

	router := handler.NewRouter(deps)

	// 5. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // バックフィルは複数ページのフェッチを伴う
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、追跡対象サブレディットのスイープをティッカーで定期実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. サービス層のワイヤリング
	svcs := buildServices(cfg, db)

	// 3. スイーパーの初期化
	sweeper := sweep.NewSweeper(
		svcs.subRepo, svcs.subredditService, svcs.postService,
		slog.Default(), sweep.Config{
			EntityDelay:  cfg.SweepEntityDelay,
			ListingLimit: cfg.SweepListingLimit,
		},
	)

	// 4. クリーンアップジョブの初期化
	cleanupJob := cleanup.NewCleanupJob(db, slog.Default())

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("sweep_interval", cfg.SweepInterval),
		slog.Duration("entity_delay", cfg.SweepEntityDelay),
	)

	// クリーンアップジョブを日次でバックグラウンド実行
	go func() {
		// 起動直後に1回実行
		if err := cleanupJob.Run(ctx); err != nil {
			slog.Error("cleanup job failed", slog.String("error", err.Error()))
		}

		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := cleanupJob.Run(ctx); err != nil {
					slog.Error("cleanup job failed", slog.String("error", err.Error()))
				}
			}
		}
	}()

	// スイープをメインgoroutineで実行（ブロッキング）
	sweeper.Start(ctx, cfg.SweepInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
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
