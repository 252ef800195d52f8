package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gtlovell/subtracker/internal/model"
	"github.com/gtlovell/subtracker/internal/post"
)

// PostServiceInterface は投稿ハンドラーが必要とするサービスインターフェース。
type PostServiceInterface interface {
	// SyncListingPage はリスティング1ページ分を同期する。
	SyncListingPage(ctx context.Context, name string, kind model.ListingKind, opts post.ListingOptions) ([]*model.Post, error)
	// GetCachedPosts はキャッシュ済みの投稿をcreated_utc降順で返す。
	GetCachedPosts(ctx context.Context, name string, limit int) ([]*model.Post, error)
}

// PostHandler は投稿リスティングのHTTPハンドラー。
type PostHandler struct {
	service PostServiceInterface
}

// NewPostHandler はPostHandlerを生成する。
func NewPostHandler(service PostServiceInterface) *PostHandler {
	return &PostHandler{service: service}
}

// postResponse は投稿のAPIレスポンス。
type postResponse struct {
	ID           string     `json:"id"`
	RedditID     string     `json:"reddit_id"`
	SubredditID  string     `json:"subreddit_id"`
	AuthorName   string     `json:"author_name"`
	Title        string     `json:"title"`
	Body         string     `json:"body,omitempty"`
	BodyHTML     string     `json:"body_html,omitempty"`
	URL          string     `json:"url"`
	Permalink    string     `json:"permalink"`
	Score        int        `json:"score"`
	UpvoteRatio  *float64   `json:"upvote_ratio,omitempty"`
	NumComments  int        `json:"num_comments"`
	CreatedUTC   time.Time  `json:"created_utc"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
	FlairText    string     `json:"flair_text,omitempty"`
	IsSelf       bool       `json:"is_self"`
	IsVideo      bool       `json:"is_video"`
	IsOC         bool       `json:"is_oc"`
	IsOver18     bool       `json:"is_over_18"`
}

// postListResponse は投稿一覧のAPIレスポンス。
type postListResponse struct {
	Subreddit string         `json:"subreddit"`
	Count     int            `json:"count"`
	Posts     []postResponse `json:"posts"`
}

// SyncPosts はリスティング1ページ分の同期をトリガーする。
// POST /api/subreddits/{name}/posts/sync?type=&limit=&after=&time=
//
// typeのデフォルトはhot。top/controversialの場合はtimeが必須。
// 親サブレディットが上流にもキャッシュにも存在しない場合は404を返す。
func (h *PostHandler) SyncPosts(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	q := r.URL.Query()

	kind := model.ListingKind(q.Get("type"))
	if kind == "" {
		kind = model.ListingHot
	}

	limit := 0
	if rawLimit := q.Get("limit"); rawLimit != "" {
		parsed, err := strconv.Atoi(rawLimit)
		if err != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest,
				model.NewInvalidParametersError(fmt.Sprintf("limitが数値ではありません: %q", rawLimit)))
			return
		}
		limit = parsed
	}

	opts := post.ListingOptions{
		Limit:     limit,
		Cursor:    q.Get("after"),
		Timeframe: model.Timeframe(q.Get("time")),
	}

	posts, err := h.service.SyncListingPage(r.Context(), name, kind, opts)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if posts == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewSubredditNotFoundError(name))
		return
	}

	writeJSONResponse(w, http.StatusOK, toPostListResponse(name, posts))
}

// ListPosts はキャッシュ済みの投稿一覧を返す。
// GET /api/subreddits/{name}/posts?limit=
//
// 上流呼び出しは行わない。親サブレディットがキャッシュにない場合は404を返す。
func (h *PostHandler) ListPosts(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	limit := 0
	if rawLimit := r.URL.Query().Get("limit"); rawLimit != "" {
		parsed, err := strconv.Atoi(rawLimit)
		if err != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest,
				model.NewInvalidParametersError(fmt.Sprintf("limitが数値ではありません: %q", rawLimit)))
			return
		}
		limit = parsed
	}

	posts, err := h.service.GetCachedPosts(r.Context(), name, limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if posts == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewSubredditNotFoundError(name))
		return
	}

	writeJSONResponse(w, http.StatusOK, toPostListResponse(name, posts))
}

// toPostListResponse はmodel.Postのスライスから一覧レスポンスに変換する。
func toPostListResponse(name string, posts []*model.Post) postListResponse {
	items := make([]postResponse, 0, len(posts))
	for _, p := range posts {
		items = append(items, postResponse{
			ID:           p.ID,
			RedditID:     p.RedditID,
			SubredditID:  p.SubredditID,
			AuthorName:   p.AuthorName,
			Title:        p.Title,
			Body:         p.Body,
			BodyHTML:     p.BodyHTML,
			URL:          p.URL,
			Permalink:    p.Permalink,
			Score:        p.Score,
			UpvoteRatio:  p.UpvoteRatio,
			NumComments:  p.NumComments,
			CreatedUTC:   p.CreatedUTC,
			LastSyncedAt: p.LastSyncedAt,
			FlairText:    p.FlairText,
			IsSelf:       p.IsSelf,
			IsVideo:      p.IsVideo,
			IsOC:         p.IsOC,
			IsOver18:     p.IsOver18,
		})
	}
	return postListResponse{
		Subreddit: model.NormalizeSubredditName(name),
		Count:     len(items),
		Posts:     items,
	}
}
