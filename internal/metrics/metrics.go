package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

const namespace = "giftcard"

var (
	spendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "spends_total",
		Help:      "Card payments by outcome",
	}, []string{"outcome"})

	spendAmountTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "spend_amount_total",
		Help:      "Sum of amounts charged to cards",
	})

	refundsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "refunds_total",
		Help:      "Contract refunds by outcome",
	}, []string{"outcome"})

	refundAmountTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "refund_amount_total",
		Help:      "Sum of amounts credited back to cards",
	})

	sweptCardsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "swept_cards_total",
		Help:      "Cards moved by the status sweep",
	}, []string{"status"})

	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

// Outcome labels shared by spend and refund counters.
const (
	OutcomeOK           = "ok"
	OutcomeInsufficient = "insufficient"
	OutcomeInvalid      = "invalid"
	OutcomeConflict     = "conflict"
	OutcomeError        = "error"
)

// RecordSpend counts a payment attempt. amount is only added on success.
func RecordSpend(outcome string, amount decimal.Decimal) {
	spendsTotal.WithLabelValues(outcome).Inc()
	if outcome == OutcomeOK {
		spendAmountTotal.Add(amount.InexactFloat64())
	}
}

// RecordRefund counts a refund attempt and the amount actually credited.
func RecordRefund(outcome string, amount decimal.Decimal) {
	refundsTotal.WithLabelValues(outcome).Inc()
	if outcome == OutcomeOK && amount.IsPositive() {
		refundAmountTotal.Add(amount.InexactFloat64())
	}
}

// RecordSweep counts cards moved to status by one sweep batch.
func RecordSweep(status string, n int64) {
	if n > 0 {
		sweptCardsTotal.WithLabelValues(status).Add(float64(n))
	}
}

// HTTP records request counts and latencies per route.
func HTTP() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}
		route := c.Route().Path
		if route == "" || (route == "/" && c.Path() != "/") {
			route = "not_found"
		}
		labels := []string{c.Method(), route, strconv.Itoa(status)}
		httpRequestsTotal.WithLabelValues(labels...).Inc()
		httpRequestDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
		return err
	}
}

// Handler serves the default registry in the Prometheus text format.
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
