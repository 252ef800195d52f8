// Package post はリスティング1ページ分の投稿同期を提供する。
package post

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gtlovell/subtracker/internal/metrics"
	"github.com/gtlovell/subtracker/internal/model"
	"github.com/gtlovell/subtracker/internal/reddit"
	"github.com/gtlovell/subtracker/internal/repository"
	"github.com/gtlovell/subtracker/internal/security"
)

// defaultListingLimit はlimit未指定時の1ページあたりの取得件数。
const defaultListingLimit = 50

// maxListingLimit は上流APIが許容する1ページの最大件数。
const maxListingLimit = 100

// Gateway は上流APIからのリスティング取得のインターフェース。
type Gateway interface {
	FetchListingPage(ctx context.Context, name string, kind model.ListingKind, opts reddit.PageOptions) ([]reddit.PostData, error)
}

// ParentService は親サブレディットの同期・参照のインターフェース。
// subreddit.Serviceを抽象化する。
type ParentService interface {
	SyncMetadata(ctx context.Context, name string) (*model.Subreddit, error)
	GetCached(ctx context.Context, name string) (*model.Subreddit, error)
}

// ListingOptions はリスティング1ページ分の同期オプション。
type ListingOptions struct {
	Limit     int             // 未指定（0）の場合はdefaultListingLimit
	Cursor    string          // ページネーションカーソル（fullname形式）
	Timeframe model.Timeframe // top/controversialで必須
}

// Service はリスティングページの同期サービス層。
// 親同期 → ページフェッチ → マッピング → 一括UPSERT のフローを統括する。
type Service struct {
	parent    ParentService
	gateway   Gateway
	posts     repository.PostRepository
	sanitizer security.ContentSanitizerService
	metrics   metrics.MetricsCollector
	logger    *slog.Logger

	// now はテストで時刻を固定するために差し替え可能。
	now func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	parent ParentService,
	gateway Gateway,
	posts repository.PostRepository,
	sanitizer security.ContentSanitizerService,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
) *Service {
	return &Service{
		parent:    parent,
		gateway:   gateway,
		posts:     posts,
		sanitizer: sanitizer,
		metrics:   collector,
		logger:    logger,
		now:       time.Now,
	}
}

// SyncListingPage はリスティング1ページ分の投稿を同期し、保存された行を返す。
// フロー:
//  1. パラメータ検証（種別、timeframe、limit範囲）
//  2. 親サブレディットの同期。親が存在しない場合は (nil, nil) を返し、
//     リスティングフェッチは行わない
//  3. ページフェッチ。空ページは正常な結果（リスティング終端または空のサブレディット）
//  4. マッピング（削除済み投稿者のセンチネル、本文HTMLのサニタイズを含む）
//  5. reddit_idをキーに一括UPSERT。失敗はそのページにとって致命的
//
// 一時的な上流障害とストア障害は呼び出し元へ伝播する。
func (s *Service) SyncListingPage(ctx context.Context, name string, kind model.ListingKind, opts ListingOptions) ([]*model.Post, error) {
	if !kind.IsValid() {
		return nil, model.NewInvalidParametersError(fmt.Sprintf("サポートされていないリスティング種別です: %s", kind))
	}
	if kind.RequiresTimeframe() {
		if opts.Timeframe == "" {
			return nil, model.NewInvalidParametersError(fmt.Sprintf("リスティング種別 %s にはtimeframeの指定が必要です", kind))
		}
	}
	if opts.Timeframe != "" && !opts.Timeframe.IsValid() {
		return nil, model.NewInvalidParametersError(fmt.Sprintf("サポートされていないtimeframeです: %s", opts.Timeframe))
	}
	limit := opts.Limit
	if limit == 0 {
		limit = defaultListingLimit
	}
	if limit < 1 || limit > maxListingLimit {
		return nil, model.NewInvalidParametersError(fmt.Sprintf("limitは1〜%dの範囲で指定してください", maxListingLimit))
	}

	// 親サブレディットの同期。存在しない場合はリスティングフェッチを試みない
	parent, err := s.parent.SyncMetadata(ctx, name)
	if err != nil {
		return nil, err
	}
	if parent == nil {
		return nil, nil
	}

	data, err := s.gateway.FetchListingPage(ctx, parent.Name, kind, reddit.PageOptions{
		Limit:     limit,
		After:     opts.Cursor,
		Timeframe: opts.Timeframe,
	})
	if err != nil {
		s.metrics.RecordUpstreamFailure("listing_fetch")
		return nil, err
	}
	s.metrics.RecordUpstreamSuccess()

	// 空ページ（またはリスティング自体の404）は正常な結果
	if len(data) == 0 {
		return []*model.Post{}, nil
	}

	now := s.now()
	mapped := make([]*model.Post, 0, len(data))
	for _, item := range data {
		mapped = append(mapped, s.mapPost(&item, parent.ID, now))
	}

	stored, err := s.posts.UpsertAll(ctx, mapped)
	if err != nil {
		return nil, model.NewStoreError("投稿の一括保存", err)
	}
	s.metrics.RecordPostsUpserted(len(stored))

	s.logger.Info("リスティングページを同期しました",
		slog.String("subreddit", parent.Name),
		slog.String("listing", string(kind)),
		slog.Int("posts_count", len(stored)),
	)

	return stored, nil
}

// GetCachedPosts はキャッシュ済みの投稿をcreated_utc降順で返す。上流呼び出しは行わない。
// 親サブレディットが存在しない場合は (nil, nil) を返す。
func (s *Service) GetCachedPosts(ctx context.Context, name string, limit int) ([]*model.Post, error) {
	if limit == 0 {
		limit = defaultListingLimit
	}
	if limit < 1 || limit > maxListingLimit {
		return nil, model.NewInvalidParametersError(fmt.Sprintf("limitは1〜%dの範囲で指定してください", maxListingLimit))
	}

	parent, err := s.parent.GetCached(ctx, name)
	if err != nil {
		return nil, err
	}
	if parent == nil {
		return nil, nil
	}

	rows, err := s.posts.ListBySubreddit(ctx, parent.ID, limit)
	if err != nil {
		return nil, model.NewStoreError("投稿の検索", err)
	}
	if rows == nil {
		// 親は存在するが投稿が0件。nilは親不在を意味するため空スライスに正規化する
		rows = []*model.Post{}
	}
	return rows, nil
}

// mapPost は上流の表現を内部スキーマにマッピングする。
// 投稿者が削除済み（上流で削除マーカーまたは欠落）の場合はセンチネル値を設定する。
func (s *Service) mapPost(data *reddit.PostData, subredditID string, now time.Time) *model.Post {
	authorName := data.Author
	authorRedditID := data.AuthorFullname
	if authorName == "" || authorName == model.DeletedAuthorName {
		authorName = model.DeletedAuthorName
		authorRedditID = ""
	}

	post := &model.Post{
		ID:             uuid.New().String(), // 既存行にはUPSERTで無視される
		RedditID:       data.ID,
		SubredditID:    subredditID,
		AuthorRedditID: authorRedditID,
		AuthorName:     authorName,
		Title:          data.Title,
		Body:           data.Selftext,
		BodyHTML:       s.sanitizer.Sanitize(data.SelftextHTML),
		URL:            data.URL,
		Permalink:      data.Permalink,
		Score:          data.Score,
		NumComments:    data.NumComments,
		CreatedUTC:     time.Unix(int64(data.CreatedUTC), 0).UTC(),
		LastSyncedAt:   &now,
		FlairText:      data.LinkFlairText,
		IsSelf:         data.IsSelf,
		IsVideo:        data.IsVideo,
		IsOC:           data.IsOriginalContent,
		IsOver18:       data.Over18,
	}
	if data.UpvoteRatio > 0 {
		ratio := data.UpvoteRatio
		post.UpvoteRatio = &ratio
	}
	return post
}
