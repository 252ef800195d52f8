package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/gtlovell/subtracker/internal/model"
)

// PostgresSubredditRepo はPostgreSQLを使用したサブレディットリポジトリ。
type PostgresSubredditRepo struct {
	db *sql.DB
}

// NewPostgresSubredditRepo はPostgresSubredditRepoを生成する。
func NewPostgresSubredditRepo(db *sql.DB) *PostgresSubredditRepo {
	return &PostgresSubredditRepo{db: db}
}

// subredditColumns はSELECT句で使用するカラムリスト。
const subredditColumns = `id, reddit_id, name, title, description, subscribers, active_users,
	        icon_url, banner_url, created_utc, last_synced_at, is_tracked,
	        created_at, updated_at`

// FindByName は正規化済みの名前でサブレディットを検索する。見つからない場合はnilを返す。
func (r *PostgresSubredditRepo) FindByName(ctx context.Context, name string) (*model.Subreddit, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+subredditColumns+` FROM subreddits WHERE name = $1`,
		name,
	)

	sub, err := scanSubreddit(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("サブレディットの検索に失敗しました: %w", err)
	}

	return sub, nil
}

// Upsert はサブレディットをnameをコンフリクトキーとして冪等にUPSERTする。
// 既存行のis_trackedと内部IDは保持される。ストアに保存された行を返す。
func (r *PostgresSubredditRepo) Upsert(ctx context.Context, subreddit *model.Subreddit) (*model.Subreddit, error) {
	row := r.db.QueryRowContext(ctx,
		`INSERT INTO subreddits (id, reddit_id, name, title, description, subscribers,
		                         active_users, icon_url, banner_url, created_utc,
		                         last_synced_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now(), now())
		 ON CONFLICT (name) DO UPDATE SET
		    reddit_id = EXCLUDED.reddit_id,
		    title = EXCLUDED.title,
		    description = EXCLUDED.description,
		    subscribers = EXCLUDED.subscribers,
		    active_users = EXCLUDED.active_users,
		    icon_url = EXCLUDED.icon_url,
		    banner_url = EXCLUDED.banner_url,
		    created_utc = EXCLUDED.created_utc,
		    last_synced_at = EXCLUDED.last_synced_at,
		    updated_at = now()
		 RETURNING `+subredditColumns,
		subreddit.ID, subreddit.RedditID, subreddit.Name,
		nullString(subreddit.Title), nullString(subreddit.Description),
		subreddit.Subscribers, subreddit.ActiveUsers,
		nullString(subreddit.IconURL), nullString(subreddit.BannerURL),
		nullTime(subreddit.CreatedUTC), nullTime(subreddit.LastSyncedAt),
	)

	stored, err := scanSubreddit(row)
	if err != nil {
		return nil, fmt.Errorf("サブレディットのUPSERTに失敗しました: %w", err)
	}

	return stored, nil
}

// ListTracked はis_tracked = trueの全サブレディットをname昇順で返す。
func (r *PostgresSubredditRepo) ListTracked(ctx context.Context) ([]*model.Subreddit, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+subredditColumns+` FROM subreddits WHERE is_tracked ORDER BY name ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("追跡対象サブレディットの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var subs []*model.Subreddit
	for rows.Next() {
		sub, err := scanSubreddit(rows)
		if err != nil {
			return nil, fmt.Errorf("追跡対象サブレディットの読み取りに失敗しました: %w", err)
		}
		subs = append(subs, sub)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("追跡対象サブレディットの走査に失敗しました: %w", err)
	}

	return subs, nil
}

// rowScanner はsql.Rowとsql.Rowsの共通Scanインターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// scanSubreddit は1行をSubredditモデルに読み取る。
func scanSubreddit(row rowScanner) (*model.Subreddit, error) {
	sub := &model.Subreddit{}
	var title, description, iconURL, bannerURL sql.NullString
	var createdUTC, lastSyncedAt sql.NullTime

	err := row.Scan(
		&sub.ID, &sub.RedditID, &sub.Name, &title, &description,
		&sub.Subscribers, &sub.ActiveUsers, &iconURL, &bannerURL,
		&createdUTC, &lastSyncedAt, &sub.IsTracked,
		&sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	sub.Title = nullStringValue(title)
	sub.Description = nullStringValue(description)
	sub.IconURL = nullStringValue(iconURL)
	sub.BannerURL = nullStringValue(bannerURL)
	if createdUTC.Valid {
		sub.CreatedUTC = &createdUTC.Time
	}
	if lastSyncedAt.Valid {
		sub.LastSyncedAt = &lastSyncedAt.Time
	}

	return sub, nil
}

// compile-time interface check
var _ SubredditRepository = (*PostgresSubredditRepo)(nil)
