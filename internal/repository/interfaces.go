// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/gtlovell/subtracker/internal/model"
)

// SubredditRepository はサブレディットデータの永続化インターフェース。
type SubredditRepository interface {
	// FindByName は正規化済みの名前でサブレディットを検索する。見つからない場合はnilを返す。
	FindByName(ctx context.Context, name string) (*model.Subreddit, error)

	// Upsert はサブレディットをname をコンフリクトキーとして冪等にUPSERTする。
	// 既存行のis_trackedと内部IDは保持され、マッピングされたフィールドのみ上書きされる。
	// ストアに保存された行を返す。
	Upsert(ctx context.Context, subreddit *model.Subreddit) (*model.Subreddit, error)

	// ListTracked はis_tracked = trueの全サブレディットをname昇順で返す。
	ListTracked(ctx context.Context) ([]*model.Subreddit, error)
}

// PostRepository は投稿データの永続化インターフェース。
type PostRepository interface {
	// UpsertAll は投稿をreddit_idをコンフリクトキーとして冪等にUPSERTする。
	// スコアやコメント数などランク依存のフィールドは常に最新値で上書きされる。
	// ストアに保存された行を入力順で返す。
	UpsertAll(ctx context.Context, posts []*model.Post) ([]*model.Post, error)

	// ListBySubreddit は指定サブレディットの投稿をcreated_utc降順で返す。
	ListBySubreddit(ctx context.Context, subredditID string, limit int) ([]*model.Post, error)
}
