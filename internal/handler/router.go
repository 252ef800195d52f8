package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/gtlovell/subtracker/internal/metrics"
	"github.com/gtlovell/subtracker/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger      *slog.Logger
	RateLimiter *middleware.RateLimiter
	CronSecret  string

	// メトリクス
	Gatherer prometheus.Gatherer

	// サービス層
	SubredditService SubredditServiceInterface
	PostService      PostServiceInterface
	BackfillRunner   BackfillRunnerInterface
	Sweeper          SweeperInterface

	// ヘルスチェック
	DB DBPinger
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RecoveryMiddleware → LoggingMiddleware → RateLimiter
//
// /health と /metrics はレート制限の外に配置する。
// 同期・バックフィルのトリガー系ルートには上流フェッチを伴うため
// 専用のSyncMiddlewareを追加で適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))

	subHandler := NewSubredditHandler(deps.SubredditService)
	postHandler := NewPostHandler(deps.PostService)
	backfillHandler := NewBackfillHandler(deps.BackfillRunner)
	cronHandler := NewCronHandler(deps.Sweeper)
	healthHandler := NewHealthHandler(deps.DB)

	// --- レート制限外のルート ---

	r.Get("/health", healthHandler.Health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))

	// --- APIルート ---
	// ミドルウェアスタック: RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Route("/api/subreddits/{name}", func(r chi.Router) {
			r.Get("/", subHandler.GetSubreddit)
			r.Get("/posts", postHandler.ListPosts)

			// トリガー系（上流フェッチを伴う）は同期専用レート制限を追加
			r.With(deps.RateLimiter.SyncMiddleware()).Post("/sync", subHandler.SyncSubreddit)
			r.With(deps.RateLimiter.SyncMiddleware()).Post("/posts/sync", postHandler.SyncPosts)
			r.With(deps.RateLimiter.SyncMiddleware()).Post("/backfill", backfillHandler.RunBackfill)
		})

		// cronルート（CRON_SECRETによるBearer認証）
		r.Route("/api/cron", func(r chi.Router) {
			r.Use(middleware.NewCronAuthMiddleware(deps.CronSecret))

			r.Get("/sync-metadata", cronHandler.SyncMetadataCron)
			r.Get("/sync-new-posts", cronHandler.SyncNewPostsCron)
		})
	})

	return r
}
