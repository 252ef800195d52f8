package handler

import (
	"context"
	"net/http"

	"github.com/gtlovell/subtracker/internal/worker/sweep"
)

// SweeperInterface はcronハンドラーが必要とするスイープインターフェース。
type SweeperInterface interface {
	// SyncAllMetadata は追跡対象全件のメタデータを逐次同期する。
	SyncAllMetadata(ctx context.Context) (*sweep.Result, error)
	// SyncAllNewPosts は追跡対象全件の新着リスティングを逐次同期する。
	SyncAllNewPosts(ctx context.Context) (*sweep.Result, error)
}

// CronHandler はスケジュール実行トリガーのHTTPハンドラー。
// CRON_SECRETによるBearer認証はミドルウェア側で行う。
type CronHandler struct {
	sweeper SweeperInterface
}

// NewCronHandler はCronHandlerを生成する。
func NewCronHandler(sweeper SweeperInterface) *CronHandler {
	return &CronHandler{sweeper: sweeper}
}

// cronResultResponse はスイープ実行サマリのAPIレスポンス。
type cronResultResponse struct {
	Job        string `json:"job"`
	Total      int    `json:"total"`
	Succeeded  int    `json:"succeeded"`
	Failed     int    `json:"failed"`
	DurationMS int64  `json:"duration_ms"`
}

// SyncMetadataCron は追跡対象全件のメタデータスイープを実行する。
// GET /api/cron/sync-metadata
//
// 個別エンティティの失敗はサマリのfailedに計上され、レスポンスは常に200。
func (h *CronHandler) SyncMetadataCron(w http.ResponseWriter, r *http.Request) {
	result, err := h.sweeper.SyncAllMetadata(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, toCronResultResponse("sync-metadata", result))
}

// SyncNewPostsCron は追跡対象全件の新着リスティングスイープを実行する。
// GET /api/cron/sync-new-posts
func (h *CronHandler) SyncNewPostsCron(w http.ResponseWriter, r *http.Request) {
	result, err := h.sweeper.SyncAllNewPosts(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, toCronResultResponse("sync-new-posts", result))
}

// toCronResultResponse はsweep.ResultからAPIレスポンスに変換する。
func toCronResultResponse(job string, result *sweep.Result) cronResultResponse {
	return cronResultResponse{
		Job:        job,
		Total:      result.Total,
		Succeeded:  result.Succeeded,
		Failed:     result.Failed,
		DurationMS: result.Duration.Milliseconds(),
	}
}
