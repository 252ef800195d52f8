// Package model はドメインモデルを定義する。
package model

// BackfillStatus はバックフィル実行の終了状態を表す。
// すべての実行はいずれか1つの終了状態で終わる。
type BackfillStatus string

const (
	// BackfillCompleted はリスティングの末尾に到達して正常終了した状態。
	BackfillCompleted BackfillStatus = "completed"
	// BackfillLimitReached はページ数または投稿数の上限に到達して終了した状態。
	BackfillLimitReached BackfillStatus = "limit_reached"
	// BackfillParentMissing は親サブレディットが存在せず中断した状態。
	BackfillParentMissing BackfillStatus = "parent_missing"
	// BackfillError はフェッチまたは保存の障害により中断した状態。
	// それまでに処理したカウントは保持される。
	BackfillError BackfillStatus = "error"
)

// BackfillRun は1回のバックフィル実行のサマリを表す。
// 永続化されず、実行の呼び出し結果としてのみ存在する。
type BackfillRun struct {
	Subreddit      string
	ListingKind    ListingKind
	Timeframe      Timeframe
	PagesFetched   int
	PostsProcessed int
	Status         BackfillStatus
	Message        string
}
