package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "retailpos_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "retailpos_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	saleAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "retailpos_sale_attempts_total",
		Help: "Checkout attempts by result kind",
	}, []string{"result"})

	saleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "retailpos_sale_duration_seconds",
		Help:    "Duration of checkout attempts",
		Buckets: prometheus.DefBuckets,
	}, []string{"result"})

	saleRevenue = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "retailpos_sale_revenue_total",
		Help: "Revenue of committed sales by payment method",
	}, []string{"payment_method"})
)

// ObserveHTTPRequest records an HTTP request metric. route is the matched
// route pattern, not the raw path.
func ObserveHTTPRequest(method, route, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, status).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveSale records a checkout attempt with its result label.
func ObserveSale(result string, duration time.Duration) {
	saleAttempts.WithLabelValues(result).Inc()
	saleDuration.WithLabelValues(result).Observe(duration.Seconds())
}

// AddRevenue adds a committed sale total.
func AddRevenue(paymentMethod string, total decimal.Decimal) {
	saleRevenue.WithLabelValues(paymentMethod).Add(total.InexactFloat64())
}
