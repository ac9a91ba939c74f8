package core

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes the sync pipeline's prometheus instruments.
type Metrics struct {
	blocksProcessed   *prometheus.CounterVec
	messagesProcessed *prometheus.CounterVec
	unknownTypes      prometheus.Counter
	decodeWarnings    prometheus.Counter
	batchDuration     prometheus.Histogram
	cursorHeight      *prometheus.GaugeVec
	shardFailures     *prometheus.CounterVec
}

// NewMetrics registers the instruments with reg. A nil registerer uses the
// default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		blocksProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "snaprag_sync_blocks_processed_total",
			Help: "Blocks committed to the projection store",
		}, []string{"shard"}),
		messagesProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "snaprag_sync_messages_processed_total",
			Help: "User messages decoded from committed chunks",
		}, []string{"shard"}),
		unknownTypes: factory.NewCounter(prometheus.CounterOpts{
			Name: "snaprag_sync_unknown_message_types_total",
			Help: "Messages skipped because their type is unknown",
		}),
		decodeWarnings: factory.NewCounter(prometheus.CounterOpts{
			Name: "snaprag_sync_decode_warnings_total",
			Help: "Messages skipped because their body failed to decode",
		}),
		batchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "snaprag_sync_batch_apply_seconds",
			Help:    "Wall time of one batch transaction",
			Buckets: prometheus.DefBuckets,
		}),
		cursorHeight: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "snaprag_sync_cursor_height",
			Help: "Last applied block per shard",
		}, []string{"shard"}),
		shardFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "snaprag_sync_shard_failures_total",
			Help: "Shard drivers stopped by non-transient errors",
		}, []string{"shard"}),
	}
}

func (m *Metrics) observeBatch(shard string, batch *BatchedData, took time.Duration) {
	if m == nil {
		return
	}
	m.blocksProcessed.WithLabelValues(shard).Inc()
	m.messagesProcessed.WithLabelValues(shard).Add(float64(batch.MessageCount))
	m.decodeWarnings.Add(float64(batch.DecodeWarnings))
	for _, n := range batch.UnknownTypes {
		m.unknownTypes.Add(float64(n))
	}
	m.batchDuration.Observe(took.Seconds())
}

func (m *Metrics) setCursor(shard string, block uint64) {
	if m == nil {
		return
	}
	m.cursorHeight.WithLabelValues(shard).Set(float64(block))
}

func (m *Metrics) recordFailure(shard string) {
	if m == nil {
		return
	}
	m.shardFailures.WithLabelValues(shard).Inc()
}
