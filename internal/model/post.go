// Package model はドメインモデルを定義する。
package model

import "time"

// DeletedAuthorName は投稿者がReddit上で削除済みの場合のセンチネル値。
const DeletedAuthorName = "[deleted]"

// Post はサブレディットから取得した投稿を表す。
// reddit_idはプレフィックスなしのReddit投稿ID（例: "abc12"）。
type Post struct {
	ID             string
	RedditID       string
	SubredditID    string
	AuthorRedditID string // 投稿者削除済みの場合は空
	AuthorName     string // 投稿者削除済みの場合は DeletedAuthorName
	Title          string
	Body           string
	BodyHTML       string // サニタイズ済みHTML
	URL            string
	Permalink      string
	Score          int
	UpvoteRatio    *float64
	NumComments    int
	CreatedUTC     time.Time
	LastSyncedAt   *time.Time
	FlairText      string
	IsSelf         bool
	IsVideo        bool
	IsOC           bool
	IsOver18       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ListingKind はリスティングの種別を表す。
type ListingKind string

const (
	// ListingHot は人気順リスティング。
	ListingHot ListingKind = "hot"
	// ListingNew は新着順リスティング。
	ListingNew ListingKind = "new"
	// ListingTop はトップリスティング。timeframeが必須。
	ListingTop ListingKind = "top"
	// ListingControversial は賛否両論リスティング。timeframeが必須。
	ListingControversial ListingKind = "controversial"
)

// IsValid はサポート対象のリスティング種別であるかを判定する。
func (k ListingKind) IsValid() bool {
	switch k {
	case ListingHot, ListingNew, ListingTop, ListingControversial:
		return true
	}
	return false
}

// RequiresTimeframe はtimeframe指定が必須のリスティング種別であるかを判定する。
func (k ListingKind) RequiresTimeframe() bool {
	return k == ListingTop || k == ListingControversial
}

// Timeframe はtop/controversialリスティングの集計期間を表す。
type Timeframe string

const (
	TimeframeHour  Timeframe = "hour"
	TimeframeDay   Timeframe = "day"
	TimeframeWeek  Timeframe = "week"
	TimeframeMonth Timeframe = "month"
	TimeframeYear  Timeframe = "year"
	TimeframeAll   Timeframe = "all"
)

// IsValid はサポート対象のtimeframeであるかを判定する。
func (t Timeframe) IsValid() bool {
	switch t {
	case TimeframeHour, TimeframeDay, TimeframeWeek, TimeframeMonth, TimeframeYear, TimeframeAll:
		return true
	}
	return false
}

// ItemKind はRedditのfullname規約における種別プレフィックスを表す。
type ItemKind string

const (
	// ItemKindComment はコメント（t1）。
	ItemKindComment ItemKind = "t1"
	// ItemKindAccount はアカウント（t2）。
	ItemKindAccount ItemKind = "t2"
	// ItemKindPost は投稿（t3）。
	ItemKindPost ItemKind = "t3"
)

// Fullname はReddit IDをfullname形式（例: "t3_abc12"）に変換する。
// ページネーションカーソルの構築に使用する。IDが空の場合は空文字列を返す。
func Fullname(kind ItemKind, redditID string) string {
	if redditID == "" {
		return ""
	}
	return string(kind) + "_" + redditID
}
