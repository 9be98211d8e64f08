package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics はアプリケーションのメトリクスを管理する
type Metrics struct {
	// HTTPリクエストの総数（method, path, status_code）
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTPリクエストのレイテンシ（method, path）
	HTTPRequestDuration *prometheus.HistogramVec

	// 注文作成の総数（strategy, status: success, insufficient, busy, duplicate, validation, error）
	OrdersTotal *prometheus.CounterVec

	// 分散ロックの操作時間（kind, operation: acquire/release, status: success/failed）
	DistributedLockDuration *prometheus.HistogramVec

	// キャッシュ階層ごとのアクセス数（tier: local/redis, result: hit/miss）
	CacheTierRequests *prometheus.CounterVec

	// 在庫遷移エンジンの実行数（operation: reserve/release, result）
	InventoryMutationsTotal *prometheus.CounterVec

	// 補償（逆遷移）の実行数（result: success/failed）
	// failed は手動リコンシリエーションが必要な状態を意味する
	CompensationsTotal *prometheus.CounterVec

	// 未払い注文の現在数
	UnpaidOrders prometheus.Gauge
}

// New は新しいMetricsインスタンスを作成し、デフォルトレジストリに登録する
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry は指定したレジストリにメトリクスを登録する
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		OrdersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orders_total",
				Help: "Total number of order creation attempts",
			},
			[]string{"strategy", "status"},
		),
		DistributedLockDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "distributed_lock_duration_seconds",
				Help:    "Time spent on distributed lock operations",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"kind", "operation", "status"},
		),
		CacheTierRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_tier_requests_total",
				Help: "Inventory cache requests per tier",
			},
			[]string{"tier", "result"},
		),
		InventoryMutationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inventory_mutations_total",
				Help: "Atomic inventory mutation attempts",
			},
			[]string{"operation", "result"},
		),
		CompensationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "compensations_total",
				Help: "Compensating inventory mutations after downstream failures",
			},
			[]string{"result"},
		),
		UnpaidOrders: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "unpaid_orders",
				Help: "Current number of unpaid orders",
			},
		),
	}

	// レジストリに登録
	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.OrdersTotal,
		m.DistributedLockDuration,
		m.CacheTierRequests,
		m.InventoryMutationsTotal,
		m.CompensationsTotal,
		m.UnpaidOrders,
	)

	return m
}

// デフォルトのメトリクスインスタンス
var defaultMetrics *Metrics

// Init はデフォルトのメトリクスインスタンスを初期化する
func Init() *Metrics {
	defaultMetrics = New()
	return defaultMetrics
}

// Get はデフォルトのメトリクスインスタンスを返す
func Get() *Metrics {
	return defaultMetrics
}
