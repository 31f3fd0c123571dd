package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "fulfillment"

// チェックアウトと決済照合のメトリクス
type Metrics struct {
	checkout   *prometheus.CounterVec
	reconcile  *prometheus.CounterVec
	gateway    *prometheus.HistogramVec
	sweep      *prometheus.CounterVec
	intentLost prometheus.Counter
}

// regに登録する（nilならどこにも登録しない）
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		checkout: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "checkout_total",
			Help: "Checkout attempts by outcome.",
		}, []string{"outcome"}),
		reconcile: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "reconcile_total",
			Help: "Payment webhook reconciliations by outcome.",
		}, []string{"outcome"}),
		gateway: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "gateway_request_duration_seconds",
			Help:    "Latency of payment intent creation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"result"}),
		sweep: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "payment_sweep_total",
			Help: "Payments re-initiated by the sweeper by result.",
		}, []string{"result"}),
		intentLost: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "intent_attach_failed_total",
			Help: "Intents created at the gateway whose id could not be stored.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.checkout, m.reconcile, m.gateway, m.sweep, m.intentLost)
	}
	return m
}

func (m *Metrics) CheckoutOutcome(outcome string) {
	m.checkout.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ReconcileOutcome(outcome string) {
	m.reconcile.WithLabelValues(outcome).Inc()
}

func (m *Metrics) GatewayDuration(result string, d time.Duration) {
	m.gateway.WithLabelValues(result).Observe(d.Seconds())
}

func (m *Metrics) SweepResult(result string) {
	m.sweep.WithLabelValues(result).Inc()
}

func (m *Metrics) IntentAttachFailed() {
	m.intentLost.Inc()
}
