package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gtlovell/subtracker/internal/model"
)

// NewCronAuthMiddleware はスケジュール実行エンドポイント用の共有シークレット認証
// ミドルウェアを返す。Authorizationヘッダーの`Bearer <secret>`を設定値と
// 定数時間比較し、不一致の場合は401を返す。
func NewCronAuthMiddleware(secret string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
				slog.Warn("cron認証に失敗しました",
					slog.String("path", r.URL.Path),
					slog.String("client_ip", clientIPFromRequest(r)),
				)
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
