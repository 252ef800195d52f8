// Package reddit はReddit Data APIのクライアントを提供する。
// OAuth2パスワードグラントによるトークン取得、レート制御、
// 一時的障害に対する指数バックオフ付きリトライを含む。
package reddit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"

	"github.com/gtlovell/subtracker/internal/model"
)

const (
	// defaultTokenURL はOAuth2トークン取得エンドポイント。
	defaultTokenURL = "https://www.reddit.com/api/v1/access_token"
	// defaultAPIBaseURL は認証済みAPIのベースURL。
	defaultAPIBaseURL = "https://oauth.reddit.com"
	// tokenExpiryMargin はトークン期限切れ前に再取得を行うマージン。
	tokenExpiryMargin = 60 * time.Second
)

// errNotFound は上流の404を表す内部センチネル。
// 呼び出し側にはエラーではなくnil/空結果として正規化される。
var errNotFound = errors.New("reddit: resource not found")

// Credentials はReddit APIの認証情報を保持する。
type Credentials struct {
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	UserAgent    string
}

// SubredditData はaboutエンドポイントが返すサブレディットのメタデータ。
type SubredditData struct {
	ID                    string  `json:"id"`
	DisplayName           string  `json:"display_name"`
	Title                 string  `json:"title"`
	PublicDescription     string  `json:"public_description"`
	Subscribers           int     `json:"subscribers"`
	AccountsActive        int     `json:"accounts_active"`
	IconImg               string  `json:"icon_img"`
	CommunityIcon         string  `json:"community_icon"`
	BannerBackgroundImage string  `json:"banner_background_image"`
	BannerImg             string  `json:"banner_img"`
	CreatedUTC            float64 `json:"created_utc"`
}

// PostData はリスティングエンドポイントが返す投稿データ。
type PostData struct {
	ID                string  `json:"id"`
	Name              string  `json:"name"` // fullname（例: t3_abc12）
	Author            string  `json:"author"`
	AuthorFullname    string  `json:"author_fullname"`
	Title             string  `json:"title"`
	Selftext          string  `json:"selftext"`
	SelftextHTML      string  `json:"selftext_html"`
	URL               string  `json:"url"`
	Permalink         string  `json:"permalink"`
	Score             int     `json:"score"`
	UpvoteRatio       float64 `json:"upvote_ratio"`
	NumComments       int     `json:"num_comments"`
	CreatedUTC        float64 `json:"created_utc"`
	LinkFlairText     string  `json:"link_flair_text"`
	IsSelf            bool    `json:"is_self"`
	IsVideo           bool    `json:"is_video"`
	IsOriginalContent bool    `json:"is_original_content"`
	Over18            bool    `json:"over_18"`
}

// PageOptions はリスティング1ページ分の取得オプション。
type PageOptions struct {
	Limit     int             // 1〜100
	After     string          // ページネーションカーソル（fullname形式）
	Timeframe model.Timeframe // top/controversialでのみ使用
}

// ClientConfig はClientの動作パラメータ。
type ClientConfig struct {
	// MaxRetries は一時的障害に対する最大リトライ回数（初回試行を含まない）。
	MaxRetries int
	// RequestsPerMinute はAPI呼び出しのレート上限。
	RequestsPerMinute int
}

// DefaultClientConfig はデフォルトのクライアント設定を返す。
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		MaxRetries:        3,
		RequestsPerMinute: 60,
	}
}

// Client はReddit Data APIのクライアント。
// ゲートウェイとして上流の404をnil/空結果に正規化し、
// 認可・レート制限・5xxなどの一時的障害をUPSTREAM_UNAVAILABLEとして通知する。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	creds      Credentials
	config     ClientConfig
	limiter    *rate.Limiter

	tokenURL   string // テスト用にエンドポイントを差し替え可能
	apiBaseURL string

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, creds Credentials, config ClientConfig, logger *slog.Logger) *Client {
	if config.MaxRetries <= 0 {
		config.MaxRetries = DefaultClientConfig().MaxRetries
	}
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = DefaultClientConfig().RequestsPerMinute
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		creds:      creds,
		config:     config,
		limiter:    rate.NewLimiter(rate.Limit(float64(config.RequestsPerMinute)/60.0), 5),
		tokenURL:   defaultTokenURL,
		apiBaseURL: defaultAPIBaseURL,
	}
}

// FetchSubreddit はサブレディットのメタデータを取得する。
// 上流に存在しない場合（404）はエラーではなくnilを返す。
// 一時的障害の場合はUPSTREAM_UNAVAILABLEエラーを返す。
func (c *Client) FetchSubreddit(ctx context.Context, name string) (*SubredditData, error) {
	if name == "" {
		return nil, model.NewInvalidParametersError("サブレディット名が空です")
	}

	var envelope struct {
		Data SubredditData `json:"data"`
	}

	err := c.getJSON(ctx, fmt.Sprintf("/r/%s/about", url.PathEscape(name)), nil, &envelope)
	if errors.Is(err, errNotFound) {
		c.logger.Warn("サブレディットが上流に存在しません",
			slog.String("subreddit", name),
		)
		return nil, nil
	}
	if err != nil {
		return nil, model.NewUpstreamUnavailableError(err)
	}

	return &envelope.Data, nil
}

// FetchListingPage はサブレディットのリスティング1ページ分を取得する。
// 空ページはリスティング末尾を意味する正常な結果であり、空スライスを返す。
// 上流に存在しない場合（404）はnilを返す。
// timeframeの要否検証は呼び出し側の責務であり、ここでは行わない。
func (c *Client) FetchListingPage(ctx context.Context, name string, kind model.ListingKind, opts PageOptions) ([]PostData, error) {
	if name == "" {
		return nil, model.NewInvalidParametersError("サブレディット名が空です")
	}

	query := url.Values{}
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.After != "" {
		query.Set("after", opts.After)
	}
	if opts.Timeframe != "" {
		query.Set("t", string(opts.Timeframe))
	}
	query.Set("raw_json", "1")

	var envelope struct {
		Data struct {
			Children []struct {
				Data PostData `json:"data"`
			} `json:"children"`
			After string `json:"after"`
		} `json:"data"`
	}

	err := c.getJSON(ctx, fmt.Sprintf("/r/%s/%s", url.PathEscape(name), string(kind)), query, &envelope)
	if errors.Is(err, errNotFound) {
		c.logger.Warn("リスティングが上流に存在しません",
			slog.String("subreddit", name),
			slog.String("listing", string(kind)),
		)
		return nil, nil
	}
	if err != nil {
		return nil, model.NewUpstreamUnavailableError(err)
	}

	posts := make([]PostData, 0, len(envelope.Data.Children))
	for _, child := range envelope.Data.Children {
		posts = append(posts, child.Data)
	}

	return posts, nil
}

// getJSON は認証済みGETリクエストを実行しレスポンスJSONをデコードする。
// 一時的障害（429/5xx/トランスポートエラー）は指数バックオフでリトライし、
// 404はリトライせずerrNotFoundを返す。
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, v any) error {
	operation := func() ([]byte, error) {
		// レート制御（コンテキストキャンセルで中断可能）
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(err)
		}

		token, err := c.ensureToken(ctx)
		if err != nil {
			return nil, err
		}

		reqURL := c.apiBaseURL + path
		if len(query) > 0 {
			reqURL += "?" + query.Encode()
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err))
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("User-Agent", c.creds.UserAgent)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("HTTPリクエストに失敗しました: %w", err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
			}
			return body, nil

		case resp.StatusCode == http.StatusNotFound:
			return nil, backoff.Permanent(errNotFound)

		case resp.StatusCode == http.StatusUnauthorized:
			// トークン失効の可能性があるため破棄してリトライ
			c.invalidateToken()
			return nil, fmt.Errorf("reddit APIがステータス %d を返しました", resp.StatusCode)

		default:
			// 403/429/5xxは一時的障害としてリトライ対象
			return nil, fmt.Errorf("reddit APIがステータス %d を返しました", resp.StatusCode)
		}
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = 500 * time.Millisecond

	body, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(uint(c.config.MaxRetries+1)),
	)
	if err != nil {
		if !errors.Is(err, errNotFound) {
			c.logger.Error("reddit APIの呼び出しに失敗しました",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
		}
		return err
	}

	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}

	return nil
}

// ensureToken は有効なアクセストークンを返す。
// 未取得または期限切れ間近の場合はパスワードグラントで再取得する。
func (c *Client) ensureToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry.Add(-tokenExpiryMargin)) {
		return c.accessToken, nil
	}

	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", c.creds.Username)
	form.Set("password", c.creds.Password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("トークンリクエストの作成に失敗しました: %w", err)
	}
	req.SetBasicAuth(c.creds.ClientID, c.creds.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.creds.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("トークンの取得に失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("トークンエンドポイントがステータス %d を返しました", resp.StatusCode)
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("トークンレスポンスのパースに失敗しました: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return "", errors.New("トークンレスポンスにaccess_tokenが含まれていません")
	}

	c.accessToken = tokenResp.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)

	c.logger.Info("redditアクセストークンを取得しました",
		slog.Time("expires_at", c.tokenExpiry),
	)

	return c.accessToken, nil
}

// invalidateToken は保持中のトークンを破棄する。次回呼び出し時に再取得される。
func (c *Client) invalidateToken() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = ""
	c.tokenExpiry = time.Time{}
}
