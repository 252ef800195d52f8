// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, subreddit, upstream, store, auth, system
	Action   string // ユーザー向け対処方法
	Err      error  // 原因となった下位エラー（任意）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap は原因となった下位エラーを返す。
func (e *APIError) Unwrap() error {
	return e.Err
}

// 定義済みエラーコード
const (
	ErrCodeInvalidParameters   = "INVALID_PARAMETERS"
	ErrCodeSubredditNotFound   = "SUBREDDIT_NOT_FOUND"
	ErrCodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	ErrCodeStoreError          = "STORE_ERROR"
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeInternal            = "INTERNAL_ERROR"
)

// NewInvalidParametersError は入力パラメータ不正エラーを生成する。
// ネットワーク・ストアへの副作用が発生する前に呼び出し元へ返される。
func NewInvalidParametersError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidParameters,
		Message:  fmt.Sprintf("パラメータが不正です: %s", reason),
		Category: "validation",
		Action:   "リクエストパラメータを確認してください。",
	}
}

// NewSubredditNotFoundError はサブレディット未検出エラーを生成する。
func NewSubredditNotFoundError(name string) *APIError {
	return &APIError{
		Code:     ErrCodeSubredditNotFound,
		Message:  fmt.Sprintf("指定されたサブレディットが見つかりません: r/%s", name),
		Category: "subreddit",
		Action:   "サブレディット名を確認してください。",
	}
}

// NewUpstreamUnavailableError は上流API障害エラーを生成する。
// 認可エラー・レート制限・5xxなどの一時的障害を表す。404はここに含めない。
func NewUpstreamUnavailableError(cause error) *APIError {
	return &APIError{
		Code:     ErrCodeUpstreamUnavailable,
		Message:  "Reddit APIへのアクセスに失敗しました。",
		Category: "upstream",
		Action:   "しばらく待ってから再度お試しください。",
		Err:      cause,
	}
}

// NewStoreError はデータストア障害エラーを生成する。
// 現在の操作にとって致命的であり、呼び出し元へそのまま伝播される。
func NewStoreError(op string, cause error) *APIError {
	return &APIError{
		Code:     ErrCodeStoreError,
		Message:  fmt.Sprintf("データストアの操作に失敗しました: %s", op),
		Category: "store",
		Action:   "しばらく待ってから再度お試しください。",
		Err:      cause,
	}
}

// NewUnauthorizedError は認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "有効な認証情報を指定してください。",
	}
}
