package metrics

import "github.com/prometheus/client_golang/prometheus"

// BridgeMetrics exposes counters/histograms for the SMS-ticket bridge.
type BridgeMetrics struct {
	inboundTotal   *prometheus.CounterVec
	outboundTotal  *prometheus.CounterVec
	webhookLatency *prometheus.HistogramVec
}

func NewBridgeMetrics(reg prometheus.Registerer) *BridgeMetrics {
	m := &BridgeMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smsdesk",
			Subsystem: "bridge",
			Name:      "inbound_webhook_total",
			Help:      "Total inbound SMS webhooks by outcome",
		}, []string{"action", "status"}),
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smsdesk",
			Subsystem: "bridge",
			Name:      "outbound_total",
			Help:      "Total outbound reply dispatches",
		}, []string{"status", "skipped"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "smsdesk",
			Subsystem: "bridge",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"webhook"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.outboundTotal, m.webhookLatency)
	return m
}

func (m *BridgeMetrics) ObserveInbound(action, status string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(action, status).Inc()
}

func (m *BridgeMetrics) ObserveOutbound(status string, skipped bool) {
	if m == nil {
		return
	}
	label := "false"
	if skipped {
		label = "true"
	}
	m.outboundTotal.WithLabelValues(status, label).Inc()
}

func (m *BridgeMetrics) ObserveWebhookLatency(webhook string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(webhook).Observe(seconds)
}
