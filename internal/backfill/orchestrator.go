// Package backfill はカーソルページネーションによる履歴投稿の取り込みを提供する。
//
// Orchestrator はリスティング同期を1ページずつ順次実行するステートマシンで、
// 前ページの最終投稿からカーソルを導出して次ページへ進む。すべての実行は
// completed / limit_reached / parent_missing / error のいずれか1つの
// 終了状態で終わり、障害も実行サマリに変換される（呼び出し元へは伝播しない）。
package backfill

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gtlovell/subtracker/internal/metrics"
	"github.com/gtlovell/subtracker/internal/model"
	"github.com/gtlovell/subtracker/internal/post"
)

// maxPagesCeiling は1回の実行で取得できるページ数のハードリミット。
// 呼び出し元の指定値に関わらずこれを超えない。
const maxPagesCeiling = 20

// ListingSyncer はリスティング1ページ分の同期のインターフェース。
// post.Serviceを抽象化する。
type ListingSyncer interface {
	SyncListingPage(ctx context.Context, name string, kind model.ListingKind, opts post.ListingOptions) ([]*model.Post, error)
}

// Config はOrchestratorの動作パラメータ。
type Config struct {
	// PageDelay はページ間の待機時間。上流のレート制限への配慮であり、
	// これ以上の順序保証は持たない。
	PageDelay time.Duration
	// DefaultMaxPages はmax_pages未指定時のページ数上限。
	DefaultMaxPages int
	// DefaultMaxPosts はmax_posts未指定時の投稿数上限。
	DefaultMaxPosts int
	// PageSize は1ページあたりの取得件数。
	PageSize int
}

// Options は1回のバックフィル実行のオプション。
type Options struct {
	ListingKind  model.ListingKind // 未指定の場合はtop
	Timeframe    model.Timeframe   // top/controversialで必須
	MaxPages     int               // 0の場合はデフォルト。ハードリミットにクランプされる
	MaxPosts     int               // 0の場合はデフォルト
	InitialAfter string            // 再開用カーソル（fullname形式）
}

// Orchestrator はバックフィル実行のステートマシン。
type Orchestrator struct {
	listing ListingSyncer
	metrics metrics.MetricsCollector
	logger  *slog.Logger
	config  Config

	// sleep はテストでページ間待機を差し替えるためのフック。
	sleep func(ctx context.Context, d time.Duration) error
}

// NewOrchestrator はOrchestratorの新しいインスタンスを生成する。
func NewOrchestrator(listing ListingSyncer, collector metrics.MetricsCollector, logger *slog.Logger, config Config) *Orchestrator {
	return &Orchestrator{
		listing: listing,
		metrics: collector,
		logger:  logger,
		config:  config,
		sleep:   sleepContext,
	}
}

// Run はバックフィルを実行し実行サマリを返す。
// パラメータ不正のみエラーとして返し、実行中の障害はすべて
// status=errorのサマリに変換される（それまでのカウントは保持される）。
//
// ページは厳密に逐次実行される。カーソルは前ページの最終投稿から
// 導出されるため、各ページのフェッチと保存が完了するまで次ページへ進まない。
func (o *Orchestrator) Run(ctx context.Context, name string, opts Options) (*model.BackfillRun, error) {
	kind := opts.ListingKind
	if kind == "" {
		kind = model.ListingTop
	}
	if !kind.IsValid() {
		return nil, model.NewInvalidParametersError(fmt.Sprintf("サポートされていないリスティング種別です: %s", kind))
	}
	if kind.RequiresTimeframe() && opts.Timeframe == "" {
		return nil, model.NewInvalidParametersError(fmt.Sprintf("リスティング種別 %s にはtimeframeの指定が必要です", kind))
	}
	if opts.Timeframe != "" && !opts.Timeframe.IsValid() {
		return nil, model.NewInvalidParametersError(fmt.Sprintf("サポートされていないtimeframeです: %s", opts.Timeframe))
	}
	if opts.MaxPages < 0 || opts.MaxPosts < 0 {
		return nil, model.NewInvalidParametersError("max_pagesとmax_postsは正の整数で指定してください")
	}

	maxPages := opts.MaxPages
	if maxPages == 0 {
		maxPages = o.config.DefaultMaxPages
	}
	if maxPages > maxPagesCeiling {
		maxPages = maxPagesCeiling
	}
	maxPosts := opts.MaxPosts
	if maxPosts == 0 {
		maxPosts = o.config.DefaultMaxPosts
	}

	normalized := model.NormalizeSubredditName(name)
	run := &model.BackfillRun{
		Subreddit:   normalized,
		ListingKind: kind,
		Timeframe:   opts.Timeframe,
	}
	after := opts.InitialAfter

	o.logger.Info("バックフィルを開始します",
		slog.String("subreddit", normalized),
		slog.String("listing", string(kind)),
		slog.Int("max_pages", maxPages),
		slog.Int("max_posts", maxPosts),
	)

loop:
	for {
		posts, err := o.listing.SyncListingPage(ctx, normalized, kind, post.ListingOptions{
			Limit:     o.config.PageSize,
			Cursor:    after,
			Timeframe: opts.Timeframe,
		})
		if err != nil {
			run.Status = model.BackfillError
			run.Message = err.Error()
			break loop
		}
		if posts == nil {
			run.Status = model.BackfillParentMissing
			run.Message = "サブレディットが存在しません"
			break loop
		}
		if len(posts) == 0 {
			run.Status = model.BackfillCompleted
			run.Message = "リスティングの末尾に到達しました"
			break loop
		}

		run.PagesFetched++
		run.PostsProcessed += len(posts)

		cursor := model.Fullname(model.ItemKindPost, posts[len(posts)-1].RedditID)
		if cursor == "" {
			// カーソルを導出できない場合はこれ以上進めない
			run.Status = model.BackfillCompleted
			run.Message = "次ページのカーソルを導出できませんでした"
			break loop
		}

		// ページ数・投稿数の上限は毎イテレーションで判定する
		if run.PagesFetched >= maxPages {
			run.Status = model.BackfillLimitReached
			run.Message = fmt.Sprintf("ページ数の上限（%d）に到達しました", maxPages)
			break loop
		}
		if run.PostsProcessed >= maxPosts {
			run.Status = model.BackfillLimitReached
			run.Message = fmt.Sprintf("投稿数の上限（%d）に到達しました", maxPosts)
			break loop
		}

		after = cursor

		if err := o.sleep(ctx, o.config.PageDelay); err != nil {
			run.Status = model.BackfillError
			run.Message = err.Error()
			break loop
		}
	}

	o.metrics.RecordBackfillRun(string(run.Status))
	o.logger.Info("バックフィルが終了しました",
		slog.String("subreddit", normalized),
		slog.String("status", string(run.Status)),
		slog.Int("pages_fetched", run.PagesFetched),
		slog.Int("posts_processed", run.PostsProcessed),
	)

	return run, nil
}

// sleepContext はコンテキストキャンセルで中断可能な待機。
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
