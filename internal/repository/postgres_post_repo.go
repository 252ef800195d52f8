package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/gtlovell/subtracker/internal/model"
)

// PostgresPostRepo はPostgreSQLを使用した投稿リポジトリ。
type PostgresPostRepo struct {
	db *sql.DB
}

// NewPostgresPostRepo はPostgresPostRepoを生成する。
func NewPostgresPostRepo(db *sql.DB) *PostgresPostRepo {
	return &PostgresPostRepo{db: db}
}

// postColumns はSELECT句で使用するカラムリスト。
const postColumns = `id, reddit_id, subreddit_id, author_reddit_id, author_name, title, body,
	        body_html, url, permalink, score, upvote_ratio, num_comments,
	        created_utc, last_synced_at, flair_text, is_self, is_video, is_oc,
	        is_over_18, created_at, updated_at`

// UpsertAll は投稿をreddit_idをコンフリクトキーとして冪等にUPSERTする。
// 行ごとのUPSERTは独立してアトミックであり、行間トランザクションは使用しない。
// ストアに保存された行を入力順で返す。
func (r *PostgresPostRepo) UpsertAll(ctx context.Context, posts []*model.Post) ([]*model.Post, error) {
	if len(posts) == 0 {
		return nil, nil
	}

	stored := make([]*model.Post, 0, len(posts))
	for _, post := range posts {
		row := r.db.QueryRowContext(ctx,
			`INSERT INTO posts (id, reddit_id, subreddit_id, author_reddit_id, author_name,
			                    title, body, body_html, url, permalink, score, upvote_ratio,
			                    num_comments, created_utc, last_synced_at, flair_text,
			                    is_self, is_video, is_oc, is_over_18, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
			         $13, $14, $15, $16, $17, $18, $19, $20, now(), now())
			 ON CONFLICT (reddit_id) DO UPDATE SET
			    subreddit_id = EXCLUDED.subreddit_id,
			    author_reddit_id = EXCLUDED.author_reddit_id,
			    author_name = EXCLUDED.author_name,
			    title = EXCLUDED.title,
			    body = EXCLUDED.body,
			    body_html = EXCLUDED.body_html,
			    url = EXCLUDED.url,
			    permalink = EXCLUDED.permalink,
			    score = EXCLUDED.score,
			    upvote_ratio = EXCLUDED.upvote_ratio,
			    num_comments = EXCLUDED.num_comments,
			    created_utc = EXCLUDED.created_utc,
			    last_synced_at = EXCLUDED.last_synced_at,
			    flair_text = EXCLUDED.flair_text,
			    is_self = EXCLUDED.is_self,
			    is_video = EXCLUDED.is_video,
			    is_oc = EXCLUDED.is_oc,
			    is_over_18 = EXCLUDED.is_over_18,
			    updated_at = now()
			 RETURNING `+postColumns,
			post.ID, post.RedditID, post.SubredditID,
			nullString(post.AuthorRedditID), nullString(post.AuthorName),
			nullString(post.Title), nullString(post.Body), nullString(post.BodyHTML),
			nullString(post.URL), nullString(post.Permalink),
			post.Score, nullFloat(post.UpvoteRatio), post.NumComments,
			post.CreatedUTC, nullTime(post.LastSyncedAt), nullString(post.FlairText),
			post.IsSelf, post.IsVideo, post.IsOC, post.IsOver18,
		)

		p, err := scanPost(row)
		if err != nil {
			return nil, fmt.Errorf("投稿のUPSERTに失敗しました (reddit_id=%s): %w", post.RedditID, err)
		}
		stored = append(stored, p)
	}

	return stored, nil
}

// ListBySubreddit は指定サブレディットの投稿をcreated_utc降順で返す。
func (r *PostgresPostRepo) ListBySubreddit(ctx context.Context, subredditID string, limit int) ([]*model.Post, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+postColumns+` FROM posts WHERE subreddit_id = $1
		 ORDER BY created_utc DESC LIMIT $2`,
		subredditID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("投稿一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var posts []*model.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("投稿の読み取りに失敗しました: %w", err)
		}
		posts = append(posts, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("投稿一覧の走査に失敗しました: %w", err)
	}

	return posts, nil
}

// scanPost は1行をPostモデルに読み取る。
func scanPost(row rowScanner) (*model.Post, error) {
	p := &model.Post{}
	var authorRedditID, authorName, title, body, bodyHTML sql.NullString
	var url, permalink, flairText sql.NullString
	var upvoteRatio sql.NullFloat64
	var lastSyncedAt sql.NullTime

	err := row.Scan(
		&p.ID, &p.RedditID, &p.SubredditID, &authorRedditID, &authorName,
		&title, &body, &bodyHTML, &url, &permalink,
		&p.Score, &upvoteRatio, &p.NumComments,
		&p.CreatedUTC, &lastSyncedAt, &flairText,
		&p.IsSelf, &p.IsVideo, &p.IsOC, &p.IsOver18,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.AuthorRedditID = nullStringValue(authorRedditID)
	p.AuthorName = nullStringValue(authorName)
	p.Title = nullStringValue(title)
	p.Body = nullStringValue(body)
	p.BodyHTML = nullStringValue(bodyHTML)
	p.URL = nullStringValue(url)
	p.Permalink = nullStringValue(permalink)
	p.FlairText = nullStringValue(flairText)
	if upvoteRatio.Valid {
		p.UpvoteRatio = &upvoteRatio.Float64
	}
	if lastSyncedAt.Valid {
		p.LastSyncedAt = &lastSyncedAt.Time
	}

	return p, nil
}

// nullString は空文字列をsql.NullStringに変換する。
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullStringValue はsql.NullStringから文字列を取得する。
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// nullTime は*time.Timeをsql.NullTimeに変換する。
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// nullFloat は*float64をsql.NullFloat64に変換する。
func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

// compile-time interface check
var _ PostRepository = (*PostgresPostRepo)(nil)
