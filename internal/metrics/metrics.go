// Package metrics 定义业务指标。HTTP 层指标见 middleware.Metrics。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ViewsRecorded 按国家统计成功记录的浏览次数。
	ViewsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "viewisland_post_views_recorded_total",
			Help: "Total number of post views recorded, by resolved country",
		},
		[]string{"country"},
	)

	// ViewsRateLimited 统计被限流拒绝的浏览请求。
	ViewsRateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "viewisland_view_rate_limited_total",
			Help: "Total number of view requests rejected by the rate limiter",
		},
	)

	dbOpenConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "viewisland_db_open_connections",
			Help: "Number of open database connections",
		},
	)
)

// SetDBOpenConnections 更新数据库连接数（由 main 周期调用）。
func SetDBOpenConnections(n int) {
	dbOpenConnections.Set(float64(n))
}
