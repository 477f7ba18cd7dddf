// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層・クレデンシャル層・HTTPミドルウェアから利用する。
type MetricsCollector interface {
	RecordMessageAppended(role string)
	RecordAppendLatency(duration time.Duration)
	RecordRefreshSuccess()
	RecordRefreshFailure()
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	messagesAppended *prometheus.CounterVec
	appendLatency    prometheus.Histogram
	refreshSuccess   prometheus.Counter
	refreshFail      prometheus.Counter
	httpStatus       *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		messagesAppended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatkeep_messages_appended_total",
			Help: "追記されたメッセージのロール別合計数",
		}, []string{"role"}),
		appendLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chatkeep_append_latency_seconds",
			Help:    "メッセージ追記のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		refreshSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatkeep_credential_refresh_success_total",
			Help: "クレデンシャルリフレッシュ成功の合計数",
		}),
		refreshFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatkeep_credential_refresh_fail_total",
			Help: "クレデンシャルリフレッシュ失敗の合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatkeep_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.messagesAppended,
		c.appendLatency,
		c.refreshSuccess,
		c.refreshFail,
		c.httpStatus,
	)

	return c
}

// RecordMessageAppended はメッセージ追記をロール別に記録する。
func (c *Collector) RecordMessageAppended(role string) {
	c.messagesAppended.WithLabelValues(role).Inc()
}

// RecordAppendLatency はメッセージ追記のレイテンシを記録する。
func (c *Collector) RecordAppendLatency(duration time.Duration) {
	c.appendLatency.Observe(duration.Seconds())
}

// RecordRefreshSuccess はクレデンシャルリフレッシュ成功を記録する。
func (c *Collector) RecordRefreshSuccess() {
	c.refreshSuccess.Inc()
}

// RecordRefreshFailure はクレデンシャルリフレッシュ失敗を記録する。
func (c *Collector) RecordRefreshFailure() {
	c.refreshFail.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
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
