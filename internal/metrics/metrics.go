// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// キャッシュ照会結果のラベル値。
const (
	CacheResultHit   = "hit"
	CacheResultMiss  = "miss"
	CacheResultStale = "stale"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ワーカーやサービス層から利用する。
type MetricsCollector interface {
	RecordCacheLookup(result string)
	RecordUpstreamSuccess()
	RecordUpstreamFailure(reason string)
	RecordSyncLatency(duration time.Duration)
	RecordPostsUpserted(count int)
	RecordBackfillRun(status string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	cacheLookups    *prometheus.CounterVec
	upstreamSuccess prometheus.Counter
	upstreamFail    *prometheus.CounterVec
	syncLatency     prometheus.Histogram
	postsUpserted   prometheus.Counter
	backfillRuns    *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "subtracker_cache_lookups_total",
			Help: "キャッシュ照会の結果別合計数（hit/miss/stale）",
		}, []string{"result"}),
		upstreamSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "subtracker_upstream_success_total",
			Help: "上流API呼び出し成功の合計数",
		}),
		upstreamFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "subtracker_upstream_fail_total",
			Help: "上流API呼び出し失敗の理由別合計数",
		}, []string{"reason"}),
		syncLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "subtracker_sync_latency_seconds",
			Help:    "同期処理のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		postsUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "subtracker_posts_upserted_total",
			Help: "アップサートされた投稿の合計数",
		}),
		backfillRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "subtracker_backfill_runs_total",
			Help: "バックフィル実行の終了ステータス別合計数",
		}, []string{"status"}),
	}

	reg.MustRegister(
		c.cacheLookups,
		c.upstreamSuccess,
		c.upstreamFail,
		c.syncLatency,
		c.postsUpserted,
		c.backfillRuns,
	)

	return c
}

// RecordCacheLookup はキャッシュ照会の結果を記録する。
func (c *Collector) RecordCacheLookup(result string) {
	c.cacheLookups.WithLabelValues(result).Inc()
}

// RecordUpstreamSuccess は上流API呼び出しの成功を記録する。
func (c *Collector) RecordUpstreamSuccess() {
	c.upstreamSuccess.Inc()
}

// RecordUpstreamFailure は上流API呼び出しの失敗を理由付きで記録する。
func (c *Collector) RecordUpstreamFailure(reason string) {
	c.upstreamFail.WithLabelValues(reason).Inc()
}

// RecordSyncLatency は同期処理のレイテンシを記録する。
func (c *Collector) RecordSyncLatency(duration time.Duration) {
	c.syncLatency.Observe(duration.Seconds())
}

// RecordPostsUpserted はアップサートされた投稿数を記録する。
func (c *Collector) RecordPostsUpserted(count int) {
	c.postsUpserted.Add(float64(count))
}

// RecordBackfillRun はバックフィル実行の終了ステータスを記録する。
func (c *Collector) RecordBackfillRun(status string) {
	c.backfillRuns.WithLabelValues(status).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
