package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gtlovell/subtracker/internal/backfill"
	"github.com/gtlovell/subtracker/internal/model"
)

// BackfillRunnerInterface はバックフィルハンドラーが必要とするインターフェース。
type BackfillRunnerInterface interface {
	// Run はバックフィルを実行し、実行サマリを返す。
	// パラメータ不正の場合のみエラーを返し、実行中の障害はサマリに変換される。
	Run(ctx context.Context, name string, opts backfill.Options) (*model.BackfillRun, error)
}

// BackfillHandler はリスティングバックフィルのHTTPハンドラー。
type BackfillHandler struct {
	runner BackfillRunnerInterface
}

// NewBackfillHandler はBackfillHandlerを生成する。
func NewBackfillHandler(runner BackfillRunnerInterface) *BackfillHandler {
	return &BackfillHandler{runner: runner}
}

// backfillRequest はバックフィル実行リクエストのボディ。全フィールド省略可。
type backfillRequest struct {
	Type     string `json:"type"`
	Time     string `json:"time"`
	MaxPages int    `json:"max_pages"`
	MaxPosts int    `json:"max_posts"`
	After    string `json:"after"`
}

// backfillRunResponse はバックフィル実行サマリのAPIレスポンス。
type backfillRunResponse struct {
	Subreddit      string `json:"subreddit"`
	Type           string `json:"type"`
	Time           string `json:"time,omitempty"`
	PagesFetched   int    `json:"pages_fetched"`
	PostsProcessed int    `json:"posts_processed"`
	Status         string `json:"status"`
	Message        string `json:"message,omitempty"`
}

// RunBackfill はサブレディットのリスティングバックフィルを実行する。
// POST /api/subreddits/{name}/backfill
//
// パラメータ不正のみ400を返す。実行中のフェッチ・保存障害や親不在は
// statusフィールド（error / parent_missing など）つきの200サマリになる。
func (h *BackfillHandler) RunBackfill(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req backfillRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest,
				model.NewInvalidParametersError("リクエストボディの解析に失敗しました"))
			return
		}
	}

	opts := backfill.Options{
		ListingKind:  model.ListingKind(req.Type),
		Timeframe:    model.Timeframe(req.Time),
		MaxPages:     req.MaxPages,
		MaxPosts:     req.MaxPosts,
		InitialAfter: req.After,
	}

	run, err := h.runner.Run(r.Context(), name, opts)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, backfillRunResponse{
		Subreddit:      run.Subreddit,
		Type:           string(run.ListingKind),
		Time:           string(run.Timeframe),
		PagesFetched:   run.PagesFetched,
		PostsProcessed: run.PostsProcessed,
		Status:         string(run.Status),
		Message:        run.Message,
	})
}
