// Package handler はHTTP APIのハンドラーとルーティングを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gtlovell/subtracker/internal/model"
)

// SubredditServiceInterface はサブレディットハンドラーが必要とするサービスインターフェース。
type SubredditServiceInterface interface {
	// SyncMetadata はstaleness判定つきでメタデータを同期する。
	SyncMetadata(ctx context.Context, name string) (*model.Subreddit, error)
	// GetCached はキャッシュ済みの行を返す。上流呼び出しは行わない。
	GetCached(ctx context.Context, name string) (*model.Subreddit, error)
}

// SubredditHandler はサブレディットメタデータのHTTPハンドラー。
type SubredditHandler struct {
	service SubredditServiceInterface
}

// NewSubredditHandler はSubredditHandlerを生成する。
func NewSubredditHandler(service SubredditServiceInterface) *SubredditHandler {
	return &SubredditHandler{service: service}
}

// subredditResponse はサブレディットメタデータのAPIレスポンス。
type subredditResponse struct {
	ID           string     `json:"id"`
	RedditID     string     `json:"reddit_id"`
	Name         string     `json:"name"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Subscribers  int        `json:"subscribers"`
	ActiveUsers  int        `json:"active_users"`
	IconURL      string     `json:"icon_url,omitempty"`
	BannerURL    string     `json:"banner_url,omitempty"`
	CreatedUTC   *time.Time `json:"created_utc,omitempty"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
	IsTracked    bool       `json:"is_tracked"`
}

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// SyncSubreddit はサブレディットメタデータの同期をトリガーする。
// POST /api/subreddits/{name}/sync
//
// キャッシュが新鮮な場合は上流を呼ばずにキャッシュを返す。
// 上流にも存在せずキャッシュもない場合は404を返す。
func (h *SubredditHandler) SyncSubreddit(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	sub, err := h.service.SyncMetadata(r.Context(), name)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if sub == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewSubredditNotFoundError(name))
		return
	}

	writeJSONResponse(w, http.StatusOK, toSubredditResponse(sub))
}

// GetSubreddit はキャッシュ済みのサブレディットメタデータを返す。
// GET /api/subreddits/{name}
//
// 上流呼び出しは行わない。キャッシュに存在しない場合は404を返す。
func (h *SubredditHandler) GetSubreddit(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	sub, err := h.service.GetCached(r.Context(), name)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if sub == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewSubredditNotFoundError(name))
		return
	}

	writeJSONResponse(w, http.StatusOK, toSubredditResponse(sub))
}

// --- ヘルパー関数 ---

// toSubredditResponse はmodel.SubredditからAPIレスポンスに変換する。
func toSubredditResponse(sub *model.Subreddit) subredditResponse {
	return subredditResponse{
		ID:           sub.ID,
		RedditID:     sub.RedditID,
		Name:         sub.Name,
		Title:        sub.Title,
		Description:  sub.Description,
		Subscribers:  sub.Subscribers,
		ActiveUsers:  sub.ActiveUsers,
		IconURL:      sub.IconURL,
		BannerURL:    sub.BannerURL,
		CreatedUTC:   sub.CreatedUTC,
		LastSyncedAt: sub.LastSyncedAt,
		IsTracked:    sub.IsTracked,
	}
}

// writeJSONResponse はJSONレスポンスを書き込む。
func writeJSONResponse(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		writeAPIErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     model.ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidParameters:
		return http.StatusBadRequest
	case model.ErrCodeSubredditNotFound:
		return http.StatusNotFound
	case model.ErrCodeUpstreamUnavailable:
		return http.StatusBadGateway
	case model.ErrCodeStoreError:
		return http.StatusInternalServerError
	case model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
