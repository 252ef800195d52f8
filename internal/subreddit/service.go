// Package subreddit はサブレディットメタデータのキャッシュ同期を提供する。
//
// SyncMetadata はこのシステムの基礎となるキャッシュプリミティブで、
// ストアの鮮度判定（hit/miss/stale）→ 上流フェッチ → マッピング → UPSERT
// のフローを統括する。上位のリスティング同期・バックフィル・スイープは
// すべてこの操作の上に構築される。
package subreddit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gtlovell/subtracker/internal/metrics"
	"github.com/gtlovell/subtracker/internal/model"
	"github.com/gtlovell/subtracker/internal/reddit"
	"github.com/gtlovell/subtracker/internal/repository"
)

// Gateway は上流APIからのサブレディット取得のインターフェース。
// テスタビリティのためreddit.Clientを抽象化する。
type Gateway interface {
	FetchSubreddit(ctx context.Context, name string) (*reddit.SubredditData, error)
}

// Service はサブレディットメタデータの同期サービス層。
// 鮮度判定 → 上流フェッチ → マッピング → UPSERT のフローを統括する。
type Service struct {
	repo            repository.SubredditRepository
	gateway         Gateway
	metrics         metrics.MetricsCollector
	logger          *slog.Logger
	stalenessWindow time.Duration
	locker          *nameLocker

	// now はテストで時刻を固定するために差し替え可能。
	now func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	repo repository.SubredditRepository,
	gateway Gateway,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	stalenessWindow time.Duration,
) *Service {
	return &Service{
		repo:            repo,
		gateway:         gateway,
		metrics:         collector,
		logger:          logger,
		stalenessWindow: stalenessWindow,
		locker:          newNameLocker(),
		now:             time.Now,
	}
}

// SyncMetadata はサブレディットのメタデータを同期し、キャッシュ済みの行を返す。
// フロー:
//  1. 名前の正規化（空 → INVALID_PARAMETERS）
//  2. 同一名の並行同期を直列化
//  3. 既存行が鮮度内ならネットワーク呼び出しなしでそのまま返す（キャッシュヒット）
//  4. miss/staleの場合のみ上流をフェッチする（1回の呼び出しにつき最大1フェッチ）
//  5. 上流がnil（404）または一時的障害の場合、既存行があればそれを返す
//     （一時的障害でキャッシュを消さないため）
//  6. 取得データをマッピングしnameをキーにUPSERT。is_trackedと内部idは変更しない
//
// 上流にもストアにも存在しない場合は (nil, nil) を返す。
func (s *Service) SyncMetadata(ctx context.Context, name string) (*model.Subreddit, error) {
	normalized := model.NormalizeSubredditName(name)
	if normalized == "" {
		return nil, model.NewInvalidParametersError("サブレディット名が空です")
	}

	s.locker.lock(normalized)
	defer s.locker.unlock(normalized)

	existing, err := s.repo.FindByName(ctx, normalized)
	if err != nil {
		return nil, model.NewStoreError("サブレディットの検索", err)
	}

	now := s.now()
	if existing != nil && existing.IsFresh(now, s.stalenessWindow) {
		s.metrics.RecordCacheLookup(metrics.CacheResultHit)
		return existing, nil
	}
	if existing != nil {
		s.metrics.RecordCacheLookup(metrics.CacheResultStale)
	} else {
		s.metrics.RecordCacheLookup(metrics.CacheResultMiss)
	}

	start := time.Now()
	data, err := s.gateway.FetchSubreddit(ctx, normalized)
	s.metrics.RecordSyncLatency(time.Since(start))
	if err != nil {
		s.metrics.RecordUpstreamFailure("subreddit_fetch")
		if existing != nil {
			// 一時的障害で有効なキャッシュを失わせない
			s.logger.Warn("上流フェッチに失敗したためキャッシュ済みの行を返します",
				slog.String("subreddit", normalized),
				slog.String("error", err.Error()),
			)
			return existing, nil
		}
		return nil, err
	}
	s.metrics.RecordUpstreamSuccess()

	if data == nil {
		// 上流に存在しない。既存行は消さずそのまま返す
		if existing != nil {
			s.logger.Warn("上流に存在しないサブレディットのキャッシュ済みの行を返します",
				slog.String("subreddit", normalized),
			)
		}
		return existing, nil
	}

	mapped := mapSubreddit(data, normalized, now)
	stored, err := s.repo.Upsert(ctx, mapped)
	if err != nil {
		return nil, model.NewStoreError("サブレディットの保存", err)
	}

	s.logger.Info("サブレディットメタデータを同期しました",
		slog.String("subreddit", normalized),
		slog.Int("subscribers", stored.Subscribers),
	)

	return stored, nil
}

// GetCached はキャッシュ済みのサブレディット行を返す。上流呼び出しは行わない。
// 存在しない場合は (nil, nil) を返す。
func (s *Service) GetCached(ctx context.Context, name string) (*model.Subreddit, error) {
	normalized := model.NormalizeSubredditName(name)
	if normalized == "" {
		return nil, model.NewInvalidParametersError("サブレディット名が空です")
	}

	row, err := s.repo.FindByName(ctx, normalized)
	if err != nil {
		return nil, model.NewStoreError("サブレディットの検索", err)
	}
	return row, nil
}

// mapSubreddit は上流の表現を内部スキーマにマッピングする。
// nameは正規化済みの値を使用し、上流のdisplay_nameの大文字小文字には依存しない。
func mapSubreddit(data *reddit.SubredditData, name string, now time.Time) *model.Subreddit {
	sub := &model.Subreddit{
		ID:           uuid.New().String(), // 既存行にはUPSERTで無視される
		RedditID:     data.ID,
		Name:         name,
		Title:        data.Title,
		Description:  data.PublicDescription,
		Subscribers:  data.Subscribers,
		ActiveUsers:  data.AccountsActive,
		IconURL:      firstNonEmpty(data.CommunityIcon, data.IconImg),
		BannerURL:    firstNonEmpty(data.BannerBackgroundImage, data.BannerImg),
		LastSyncedAt: &now,
	}
	if data.CreatedUTC > 0 {
		created := time.Unix(int64(data.CreatedUTC), 0).UTC()
		sub.CreatedUTC = &created
	}
	return sub
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
