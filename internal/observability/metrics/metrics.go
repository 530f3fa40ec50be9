package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DeskMetrics exposes counters/histograms for the manuscript desk pipeline.
type DeskMetrics struct {
	turnsTotal       *prometheus.CounterVec
	turnLatency      *prometheus.HistogramVec
	escalationsTotal *prometheus.CounterVec
	closedTotal      prometheus.Counter
	modelLatency     *prometheus.HistogramVec
	modelTokensTotal *prometheus.CounterVec
	retrievalHits    *prometheus.HistogramVec
	confidence       prometheus.Histogram
}

func NewDeskMetrics(reg prometheus.Registerer) *DeskMetrics {
	m := &DeskMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "manuscript_desk",
			Subsystem: "pipeline",
			Name:      "turns_total",
			Help:      "Total processed customer turns",
		}, []string{"policy", "outcome"}),
		turnLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "manuscript_desk",
			Subsystem: "pipeline",
			Name:      "turn_latency_seconds",
			Help:      "End-to-end latency of a customer turn",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
		}, []string{"policy"}),
		escalationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "manuscript_desk",
			Subsystem: "pipeline",
			Name:      "escalations_total",
			Help:      "Conversations flagged for a human agent",
		}, []string{"outcome"}),
		closedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "manuscript_desk",
			Subsystem: "pipeline",
			Name:      "closed_total",
			Help:      "Conversations closed by the bot",
		}),
		modelLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "manuscript_desk",
			Subsystem: "llm",
			Name:      "latency_seconds",
			Help:      "Latency of language model calls",
			Buckets:   []float64{0.25, 0.5, 1, 2, 3, 4, 5, 6, 8, 10, 15, 20, 30},
		}, []string{"model", "status"}),
		modelTokensTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "manuscript_desk",
			Subsystem: "llm",
			Name:      "tokens_total",
			Help:      "Tokens used by the language model",
		}, []string{"model", "type"}), // type: input, output
		retrievalHits: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "manuscript_desk",
			Subsystem: "retrieval",
			Name:      "cases_returned",
			Help:      "Number of similar cases returned per search",
			Buckets:   []float64{0, 1, 2, 3, 5, 10},
		}, []string{"mode"}),
		confidence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "manuscript_desk",
			Subsystem: "pipeline",
			Name:      "confidence",
			Help:      "Confidence score of answered turns",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.turnsTotal, m.turnLatency, m.escalationsTotal, m.closedTotal,
		m.modelLatency, m.modelTokensTotal, m.retrievalHits, m.confidence,
	)
	return m
}

func (m *DeskMetrics) ObserveTurn(policy, outcome string, d time.Duration, confidence float64) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(policy, outcome).Inc()
	m.turnLatency.WithLabelValues(policy).Observe(d.Seconds())
	m.confidence.Observe(confidence)
}

func (m *DeskMetrics) ObserveEscalation(outcome string) {
	if m == nil {
		return
	}
	m.escalationsTotal.WithLabelValues(outcome).Inc()
}

func (m *DeskMetrics) ObserveClosed() {
	if m == nil {
		return
	}
	m.closedTotal.Inc()
}

// ObserveModelCall records latency with status "ok" or "error".
func (m *DeskMetrics) ObserveModelCall(model string, d time.Duration, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.modelLatency.WithLabelValues(model, status).Observe(d.Seconds())
}

func (m *DeskMetrics) ObserveTokens(model string, input, output int) {
	if m == nil {
		return
	}
	m.modelTokensTotal.WithLabelValues(model, "input").Add(float64(input))
	m.modelTokensTotal.WithLabelValues(model, "output").Add(float64(output))
}

func (m *DeskMetrics) ObserveRetrieval(mode string, hits int) {
	if m == nil {
		return
	}
	m.retrievalHits.WithLabelValues(mode).Observe(float64(hits))
}
