// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// resultラベルの値
const (
	ResultSuccess      = "success"
	ResultFailure      = "failure"
	ResultParseFailure = "parse_failure"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ハンドラー、ビューのワークフロー、ワーカーから利用する。
type MetricsCollector interface {
	RecordHTTPStatus(statusCode int)
	RecordBackendError(operation string)
	RecordSignIn(result string)
	RecordSupplementFetch(result string)
	RecordSupplementLatency(duration time.Duration)
	RecordSupplementsStored(count int)
	RecordSessionsCleaned(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	httpStatus        *prometheus.CounterVec
	backendErrors     *prometheus.CounterVec
	signIns           *prometheus.CounterVec
	supplementFetches *prometheus.CounterVec
	supplementLatency prometheus.Histogram
	supplementsStored prometheus.Counter
	sessionsCleaned   prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bookclub_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		backendErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bookclub_backend_errors_total",
			Help: "操作別のバックエンドクエリ失敗数",
		}, []string{"operation"}),
		signIns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bookclub_sign_in_total",
			Help: "結果別のサインイン試行数",
		}, []string{"result"}),
		supplementFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bookclub_supplement_fetch_total",
			Help: "結果別の補足資料フェッチ数",
		}, []string{"result"}),
		supplementLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bookclub_supplement_fetch_latency_seconds",
			Help:    "補足資料フェッチのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		supplementsStored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bookclub_supplements_stored_total",
			Help: "保存された補足資料エントリの合計数",
		}),
		sessionsCleaned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bookclub_sessions_cleaned_total",
			Help: "削除された期限切れセッションの合計数",
		}),
	}

	reg.MustRegister(
		c.httpStatus,
		c.backendErrors,
		c.signIns,
		c.supplementFetches,
		c.supplementLatency,
		c.supplementsStored,
		c.sessionsCleaned,
	)

	return c
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordBackendError はバックエンドクエリの失敗を記録する。
func (c *Collector) RecordBackendError(operation string) {
	c.backendErrors.WithLabelValues(operation).Inc()
}

// RecordSignIn はサインイン試行の結果を記録する。
func (c *Collector) RecordSignIn(result string) {
	c.signIns.WithLabelValues(result).Inc()
}

// RecordSupplementFetch は補足資料フェッチの結果を記録する。
func (c *Collector) RecordSupplementFetch(result string) {
	c.supplementFetches.WithLabelValues(result).Inc()
}

// RecordSupplementLatency は補足資料フェッチのレイテンシを記録する。
func (c *Collector) RecordSupplementLatency(duration time.Duration) {
	c.supplementLatency.Observe(duration.Seconds())
}

// RecordSupplementsStored は保存した補足資料エントリ数を記録する。
func (c *Collector) RecordSupplementsStored(count int) {
	c.supplementsStored.Add(float64(count))
}

// RecordSessionsCleaned は削除した期限切れセッション数を記録する。
func (c *Collector) RecordSessionsCleaned(count int64) {
	c.sessionsCleaned.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
