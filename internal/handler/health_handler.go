package handler

import (
	"context"
	"net/http"

	"github.com/gtlovell/subtracker/internal/model"
)

// DBPinger はヘルスチェックで使用するDB疎通確認のインターフェース。
// *sql.DB を受け付けることができる。
type DBPinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler はヘルスチェックのHTTPハンドラー。
type HealthHandler struct {
	db DBPinger
}

// NewHealthHandler はHealthHandlerを生成する。
func NewHealthHandler(db DBPinger) *HealthHandler {
	return &HealthHandler{db: db}
}

// healthResponse はヘルスチェックのAPIレスポンス。
type healthResponse struct {
	Status string `json:"status"`
}

// Health はDB疎通を含むヘルスチェックを行う。
// GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.db.PingContext(r.Context()); err != nil {
		writeAPIErrorResponse(w, http.StatusServiceUnavailable, &model.APIError{
			Code:     "UNHEALTHY",
			Message:  "データベースに接続できません。",
			Category: "system",
			Action:   "しばらく待ってから再度お試しください。",
			Err:      err,
		})
		return
	}

	writeJSONResponse(w, http.StatusOK, healthResponse{Status: "ok"})
}
