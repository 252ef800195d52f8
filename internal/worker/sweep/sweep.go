// Package sweep は追跡対象サブレディットの定期リフレッシュ処理を提供する。
//
// 追跡対象（is_tracked = true）の全サブレディットを逐次走査し、
// メタデータ同期または新着リスティングの小規模同期を実行する。
// 1エンティティの失敗はログに記録してスキップし、スイープ全体を
// 中断させない。cronエンドポイントとworkerサブコマンドの両方から
// 同じコードパスで呼び出される。
package sweep

import (
	"context"
	"log/slog"
	"time"

	"github.com/gtlovell/subtracker/internal/model"
	"github.com/gtlovell/subtracker/internal/post"
	"github.com/gtlovell/subtracker/internal/repository"
)

// MetadataSyncer はエンティティメタデータ同期のインターフェース。
// subreddit.Serviceを抽象化する。
type MetadataSyncer interface {
	SyncMetadata(ctx context.Context, name string) (*model.Subreddit, error)
}

// ListingSyncer はリスティング同期のインターフェース。
// post.Serviceを抽象化する。
type ListingSyncer interface {
	SyncListingPage(ctx context.Context, name string, kind model.ListingKind, opts post.ListingOptions) ([]*model.Post, error)
}

// Result は1回のスイープ実行のサマリ。
type Result struct {
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"-"`
}

// Config はSweeperの動作パラメータ。
type Config struct {
	// EntityDelay はエンティティ間の待機時間。上流のレート制限への配慮。
	EntityDelay time.Duration
	// ListingLimit は新着スイープで取得する1ページの件数（小規模固定値）。
	ListingLimit int
}

// Sweeper は追跡対象サブレディットのスイープを実行する。
// エンティティは厳密に逐次処理される。
type Sweeper struct {
	subRepo  repository.SubredditRepository
	metadata MetadataSyncer
	listing  ListingSyncer
	logger   *slog.Logger
	config   Config

	// sleep はテストでエンティティ間待機を差し替えるためのフック。
	sleep func(ctx context.Context, d time.Duration) error
}

// NewSweeper はSweeperの新しいインスタンスを生成する。
func NewSweeper(
	subRepo repository.SubredditRepository,
	metadata MetadataSyncer,
	listing ListingSyncer,
	logger *slog.Logger,
	config Config,
) *Sweeper {
	return &Sweeper{
		subRepo:  subRepo,
		metadata: metadata,
		listing:  listing,
		logger:   logger,
		config:   config,
		sleep:    sleepContext,
	}
}

// SyncAllMetadata は追跡対象の全サブレディットのメタデータを逐次同期する。
// 1エンティティの失敗はログに記録して次へ進む。
// 追跡対象の取得自体に失敗した場合のみエラーを返す。
func (s *Sweeper) SyncAllMetadata(ctx context.Context) (*Result, error) {
	return s.sweep(ctx, "metadata", func(ctx context.Context, name string) error {
		_, err := s.metadata.SyncMetadata(ctx, name)
		return err
	})
}

// SyncAllNewPosts は追跡対象の全サブレディットの新着リスティングを
// 小規模固定件数で逐次同期する。
func (s *Sweeper) SyncAllNewPosts(ctx context.Context) (*Result, error) {
	return s.sweep(ctx, "new_posts", func(ctx context.Context, name string) error {
		_, err := s.listing.SyncListingPage(ctx, name, model.ListingNew, post.ListingOptions{
			Limit: s.config.ListingLimit,
		})
		return err
	})
}

// sweep は追跡対象を列挙し、各エンティティへsyncOneを逐次適用する。
func (s *Sweeper) sweep(ctx context.Context, kind string, syncOne func(ctx context.Context, name string) error) (*Result, error) {
	start := time.Now()

	tracked, err := s.subRepo.ListTracked(ctx)
	if err != nil {
		return nil, model.NewStoreError("追跡対象サブレディットの取得", err)
	}

	result := &Result{Total: len(tracked)}
	if len(tracked) == 0 {
		s.logger.Info("追跡対象のサブレディットはありません",
			slog.String("sweep", kind),
		)
		return result, nil
	}

	s.logger.Info("スイープを開始します",
		slog.String("sweep", kind),
		slog.Int("subreddit_count", len(tracked)),
	)

	for i, sub := range tracked {
		if err := ctx.Err(); err != nil {
			// 中断時はここまでの結果を返す
			s.logger.Warn("スイープが中断されました",
				slog.String("sweep", kind),
				slog.String("error", err.Error()),
			)
			break
		}

		if err := syncOne(ctx, sub.Name); err != nil {
			// 1エンティティの失敗でスイープを止めない
			result.Failed++
			s.logger.Error("サブレディットの同期に失敗しました",
				slog.String("sweep", kind),
				slog.String("subreddit", sub.Name),
				slog.String("error", err.Error()),
			)
		} else {
			result.Succeeded++
		}

		// 最終エンティティの後には待機しない
		if i < len(tracked)-1 {
			if err := s.sleep(ctx, s.config.EntityDelay); err != nil {
				break
			}
		}
	}

	result.Duration = time.Since(start)
	s.logger.Info("スイープが完了しました",
		slog.String("sweep", kind),
		slog.Int("total", result.Total),
		slog.Int("succeeded", result.Succeeded),
		slog.Int("failed", result.Failed),
		slog.Float64("duration_ms", float64(result.Duration.Milliseconds())),
	)

	return result, nil
}

// Start は指定間隔のティッカーでスイープを起動する。
// 各ティックでメタデータスイープと新着スイープを順に実行し、
// コンテキストがキャンセルされるまで継続する。
func (s *Sweeper) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("スイープワーカーを開始しました",
		slog.Duration("interval", interval),
	)

	// 起動直後に1回実行
	s.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("スイープワーカーを停止しました")
			return
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

// runCycle はメタデータスイープと新着スイープを1回ずつ実行する。
func (s *Sweeper) runCycle(ctx context.Context) {
	if _, err := s.SyncAllMetadata(ctx); err != nil {
		s.logger.Error("メタデータスイープの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}
	if _, err := s.SyncAllNewPosts(ctx); err != nil {
		s.logger.Error("新着スイープの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}
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
