package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/gtlovell/subtracker/internal/backfill"
	"github.com/gtlovell/subtracker/internal/model"
)

// mockBackfillRunner はBackfillRunnerInterfaceのモック実装。
type mockBackfillRunner struct {
	run *model.BackfillRun
	err error

	lastName string
	lastOpts backfill.Options
}

func (m *mockBackfillRunner) Run(ctx context.Context, name string, opts backfill.Options) (*model.BackfillRun, error) {
	m.lastName = name
	m.lastOpts = opts
	return m.run, m.err
}

func newBackfillTestRouter(runner BackfillRunnerInterface) http.Handler {
	r := chi.NewRouter()
	h := NewBackfillHandler(runner)
	r.Post("/api/subreddits/{name}/backfill", h.RunBackfill)
	return r
}

func TestRunBackfill_ParsesRequestBody(t *testing.T) {
	runner := &mockBackfillRunner{
		run: &model.BackfillRun{
			Subreddit:      "golang",
			ListingKind:    model.ListingTop,
			Timeframe:      model.TimeframeAll,
			PagesFetched:   3,
			PostsProcessed: 150,
			Status:         model.BackfillCompleted,
		},
	}
	router := newBackfillTestRouter(runner)

	body := `{"type":"top","time":"all","max_pages":3,"max_posts":150,"after":"t3_abc12"}`
	req := httptest.NewRequest(http.MethodPost, "/api/subreddits/golang/backfill", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}

	if runner.lastName != "golang" {
		t.Errorf("name = %q, want %q", runner.lastName, "golang")
	}
	if runner.lastOpts.ListingKind != model.ListingTop {
		t.Errorf("listing kind = %q, want %q", runner.lastOpts.ListingKind, model.ListingTop)
	}
	if runner.lastOpts.Timeframe != model.TimeframeAll {
		t.Errorf("timeframe = %q, want %q", runner.lastOpts.Timeframe, model.TimeframeAll)
	}
	if runner.lastOpts.MaxPages != 3 {
		t.Errorf("max_pages = %d, want 3", runner.lastOpts.MaxPages)
	}
	if runner.lastOpts.MaxPosts != 150 {
		t.Errorf("max_posts = %d, want 150", runner.lastOpts.MaxPosts)
	}
	if runner.lastOpts.InitialAfter != "t3_abc12" {
		t.Errorf("after = %q, want %q", runner.lastOpts.InitialAfter, "t3_abc12")
	}
}

func TestRunBackfill_EmptyBody_UsesDefaults(t *testing.T) {
	runner := &mockBackfillRunner{
		run: &model.BackfillRun{
			Subreddit:   "golang",
			ListingKind: model.ListingTop,
			Status:      model.BackfillCompleted,
		},
	}
	router := newBackfillTestRouter(runner)

	// ボディなしでもデフォルトオプションで実行される
	req := httptest.NewRequest(http.MethodPost, "/api/subreddits/golang/backfill", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}

	if runner.lastOpts != (backfill.Options{}) {
		t.Errorf("opts = %+v, want zero value", runner.lastOpts)
	}
}

func TestRunBackfill_MalformedJSON_Returns400(t *testing.T) {
	runner := &mockBackfillRunner{}
	router := newBackfillTestRouter(runner)

	req := httptest.NewRequest(http.MethodPost, "/api/subreddits/golang/backfill", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusBadRequest)
	}

	if runner.lastName != "" {
		t.Error("runner should not be called for malformed JSON")
	}
}

func TestRunBackfill_InvalidParameters_Returns400(t *testing.T) {
	// timeframe欠落などのパラメータ不正のみエラーとして返る
	runner := &mockBackfillRunner{err: model.NewInvalidParametersError("timeframeの指定が必要です")}
	router := newBackfillTestRouter(runner)

	body := `{"type":"top"}`
	req := httptest.NewRequest(http.MethodPost, "/api/subreddits/golang/backfill", strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusBadRequest)
	}
}

func TestRunBackfill_ErrorStatus_StillReturns200(t *testing.T) {
	// 実行中のフェッチ障害はエラーではなくstatus=errorのサマリとして返る
	runner := &mockBackfillRunner{
		run: &model.BackfillRun{
			Subreddit:      "golang",
			ListingKind:    model.ListingTop,
			Timeframe:      model.TimeframeAll,
			PagesFetched:   2,
			PostsProcessed: 100,
			Status:         model.BackfillError,
			Message:        "上流サービスが一時的に利用できません。",
		},
	}
	router := newBackfillTestRouter(runner)

	req := httptest.NewRequest(http.MethodPost, "/api/subreddits/golang/backfill", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}

	var body backfillRunResponse
	if err := json.NewDecoder(w.Result().Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if body.Status != string(model.BackfillError) {
		t.Errorf("status = %q, want %q", body.Status, model.BackfillError)
	}
	if body.PagesFetched != 2 {
		t.Errorf("pages_fetched = %d, want 2", body.PagesFetched)
	}
	if body.PostsProcessed != 100 {
		t.Errorf("posts_processed = %d, want 100", body.PostsProcessed)
	}
	if body.Message == "" {
		t.Error("message should describe the fault")
	}
}

func TestRunBackfill_ParentMissing_Returns200WithStatus(t *testing.T) {
	runner := &mockBackfillRunner{
		run: &model.BackfillRun{
			Subreddit:   "doesnotexist",
			ListingKind: model.ListingTop,
			Status:      model.BackfillParentMissing,
			Message:     "サブレディットが存在しません。",
		},
	}
	router := newBackfillTestRouter(runner)

	req := httptest.NewRequest(http.MethodPost, "/api/subreddits/doesnotexist/backfill", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}

	var body backfillRunResponse
	if err := json.NewDecoder(w.Result().Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Status != string(model.BackfillParentMissing) {
		t.Errorf("status = %q, want %q", body.Status, model.BackfillParentMissing)
	}
}
