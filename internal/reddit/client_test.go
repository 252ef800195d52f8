package reddit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/gtlovell/subtracker/internal/model"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, nil))
}

func testCredentials() Credentials {
	return Credentials{
		ClientID:     "test-client",
		ClientSecret: "test-secret",
		Username:     "test-user",
		Password:     "test-pass",
		UserAgent:    "subtracker/1.0 test",
	}
}

// newTestClient はトークン・APIエンドポイントをテストサーバーに差し替えたClientを生成する。
func newTestClient(t *testing.T, apiHandler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/access_token", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("トークンリクエストのメソッドが不正: %s", r.Method)
		}
		if user, pass, ok := r.BasicAuth(); !ok || user != "test-client" || pass != "test-secret" {
			t.Error("トークンリクエストにBasic認証が設定されていない")
		}
		fmt.Fprint(w, `{"access_token": "test-token", "expires_in": 3600}`)
	})
	mux.HandleFunc("/", apiHandler)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	var buf bytes.Buffer
	client := NewClient(server.Client(), testCredentials(), ClientConfig{
		MaxRetries:        1,
		RequestsPerMinute: 60000, // テストではレート制御で待たない
	}, newTestLogger(&buf))
	client.tokenURL = server.URL + "/api/v1/access_token"
	client.apiBaseURL = server.URL

	return client, server
}

func TestFetchSubreddit_Success(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/r/golang/about" {
			t.Errorf("リクエストパスが不正: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-token" {
			t.Errorf("Authorizationヘッダが不正: %s", r.Header.Get("Authorization"))
		}
		if r.Header.Get("User-Agent") != "subtracker/1.0 test" {
			t.Errorf("User-Agentヘッダが不正: %s", r.Header.Get("User-Agent"))
		}
		fmt.Fprint(w, `{"kind": "t5", "data": {
			"id": "2rc7j",
			"display_name": "golang",
			"title": "The Go Programming Language",
			"public_description": "Ask questions and post articles about Go",
			"subscribers": 250000,
			"accounts_active": 1200,
			"created_utc": 1254954660
		}}`)
	})

	data, err := client.FetchSubreddit(context.Background(), "golang")
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if data == nil {
		t.Fatal("データがnilであってはならない")
	}
	if data.ID != "2rc7j" {
		t.Errorf("ID = %q, want %q", data.ID, "2rc7j")
	}
	if data.DisplayName != "golang" {
		t.Errorf("DisplayName = %q, want %q", data.DisplayName, "golang")
	}
	if data.Subscribers != 250000 {
		t.Errorf("Subscribers = %d, want 250000", data.Subscribers)
	}
}

// 上流404はエラーではなくnilを返すことを検証
func TestFetchSubreddit_NotFound_ReturnsNil(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	data, err := client.FetchSubreddit(context.Background(), "doesnotexist")
	if err != nil {
		t.Fatalf("404はエラーとして扱ってはならない: %v", err)
	}
	if data != nil {
		t.Error("404の結果はnilであるべき")
	}
}

// 5xxの継続はUPSTREAM_UNAVAILABLEとして通知されることを検証
func TestFetchSubreddit_ServerError_ReturnsUpstreamUnavailable(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.FetchSubreddit(context.Background(), "golang")
	if err == nil {
		t.Fatal("5xxはエラーを返すべき")
	}

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("APIErrorであるべき: %v", err)
	}
	if apiErr.Code != model.ErrCodeUpstreamUnavailable {
		t.Errorf("Code = %q, want %q", apiErr.Code, model.ErrCodeUpstreamUnavailable)
	}

	// MaxRetries=1なので合計2回試行される
	if got := calls.Load(); got != 2 {
		t.Errorf("試行回数 = %d, want 2", got)
	}
}

// 404はリトライされないことを検証
func TestFetchSubreddit_NotFound_NoRetry(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	})

	if _, err := client.FetchSubreddit(context.Background(), "gone"); err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("404は1回のみ試行されるべき: got %d", got)
	}
}

// 空の名前はネットワーク呼び出しなしでINVALID_PARAMETERSを返すことを検証
func TestFetchSubreddit_EmptyName_ReturnsInvalidParameters(t *testing.T) {
	called := false
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	_, err := client.FetchSubreddit(context.Background(), "")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidParameters {
		t.Fatalf("INVALID_PARAMETERSであるべき: %v", err)
	}
	if called {
		t.Error("空の名前でネットワーク呼び出しが行われてはならない")
	}
}

func TestFetchListingPage_Success(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/r/golang/top" {
			t.Errorf("リクエストパスが不正: %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("limit") != "50" {
			t.Errorf("limit = %q, want %q", q.Get("limit"), "50")
		}
		if q.Get("after") != "t3_abc12" {
			t.Errorf("after = %q, want %q", q.Get("after"), "t3_abc12")
		}
		if q.Get("t") != "week" {
			t.Errorf("t = %q, want %q", q.Get("t"), "week")
		}
		fmt.Fprint(w, `{"kind": "Listing", "data": {
			"children": [
				{"kind": "t3", "data": {
					"id": "def34",
					"name": "t3_def34",
					"author": "gopher",
					"author_fullname": "t2_xyz",
					"title": "Go 1.26 released",
					"score": 512,
					"upvote_ratio": 0.97,
					"num_comments": 87,
					"created_utc": 1754954660,
					"is_self": false
				}},
				{"kind": "t3", "data": {
					"id": "ghi56",
					"name": "t3_ghi56",
					"author": "[deleted]",
					"title": "Old post",
					"score": 3,
					"created_utc": 1454954660,
					"is_self": true
				}}
			],
			"after": "t3_ghi56"
		}}`)
	})

	posts, err := client.FetchListingPage(context.Background(), "golang", model.ListingTop, PageOptions{
		Limit:     50,
		After:     "t3_abc12",
		Timeframe: model.TimeframeWeek,
	})
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if len(posts) != 2 {
		t.Fatalf("投稿数 = %d, want 2", len(posts))
	}
	if posts[0].ID != "def34" {
		t.Errorf("posts[0].ID = %q, want %q", posts[0].ID, "def34")
	}
	if posts[0].UpvoteRatio != 0.97 {
		t.Errorf("posts[0].UpvoteRatio = %v, want 0.97", posts[0].UpvoteRatio)
	}
	if posts[1].Author != "[deleted]" {
		t.Errorf("posts[1].Author = %q, want %q", posts[1].Author, "[deleted]")
	}
}

// 空リスティングは正常な結果として空スライスを返すことを検証
func TestFetchListingPage_Empty(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"kind": "Listing", "data": {"children": [], "after": null}}`)
	})

	posts, err := client.FetchListingPage(context.Background(), "golang", model.ListingNew, PageOptions{Limit: 25})
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if posts == nil || len(posts) != 0 {
		t.Errorf("空リスティングは空スライスを返すべき: %v", posts)
	}
}

// 401でトークンが破棄され再取得されることを検証
func TestClient_TokenRefreshOn401(t *testing.T) {
	var apiCalls atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if apiCalls.Add(1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"kind": "t5", "data": {"id": "2rc7j", "display_name": "golang"}}`)
	})

	data, err := client.FetchSubreddit(context.Background(), "golang")
	if err != nil {
		t.Fatalf("401後のリトライで成功するべき: %v", err)
	}
	if data == nil || data.ID != "2rc7j" {
		t.Errorf("リトライ後のデータが不正: %+v", data)
	}
}
