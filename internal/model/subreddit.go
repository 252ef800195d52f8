// Package model はドメインモデルを定義する。
package model

import (
	"strings"
	"time"
)

// Subreddit はキャッシュされたサブレディットのメタデータを表す。
// nameは小文字に正規化された自然キーで、UPSERTのコンフリクトキーとして使用される。
type Subreddit struct {
	ID           string
	RedditID     string
	Name         string
	Title        string
	Description  string
	Subscribers  int
	ActiveUsers  int
	IconURL      string
	BannerURL    string
	CreatedUTC   *time.Time
	LastSyncedAt *time.Time
	IsTracked    bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsFresh は最終同期時刻がstaleness window以内であるかを判定する。
// last_synced_atが未設定の場合は常にfalse（= 再フェッチが必要）。
func (s *Subreddit) IsFresh(now time.Time, stalenessWindow time.Duration) bool {
	if s.LastSyncedAt == nil {
		return false
	}
	return now.Sub(*s.LastSyncedAt) < stalenessWindow
}

// NormalizeSubredditName はサブレディット名を正規化する。
// 前後の空白を除去し小文字に変換する。書き込み・読み取りの両方で適用する。
func NormalizeSubredditName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
