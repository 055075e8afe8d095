package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the oracle service.
type Metrics struct {
	// --- Engine processing ---
	CommandsApplied  *prometheus.CounterVec
	CommandsRejected *prometheus.CounterVec
	CommandDuration  *prometheus.HistogramVec
	EngineSequence   prometheus.Gauge

	// --- Aggregation ---
	AggregationRounds   *prometheus.CounterVec
	SourcesUsed         *prometheus.HistogramVec
	SourcesFiltered     *prometheus.CounterVec
	CurrentPrice        *prometheus.GaugeVec
	PriceConfidence     *prometheus.GaugeVec
	PriceDispersion     *prometheus.GaugeVec
	ActiveFeeds         *prometheus.GaugeVec
	CircuitBreakerTrips *prometheus.CounterVec
	CircuitBreakerState *prometheus.GaugeVec

	// --- Channel & backpressure ---
	ChannelSize     *prometheus.GaugeVec
	ChannelCapacity *prometheus.GaugeVec
	ProjectionDrops prometheus.Counter
	PublishDrops    prometheus.Counter

	// --- Idempotency ---
	IdempotencyDuplicates *prometheus.CounterVec
	DedupLRUSize          prometheus.Gauge
	DedupLRUEvictions     prometheus.Counter

	// --- Persistence ---
	PersistEventsWritten prometheus.Counter
	PersistPointsWritten prometheus.Counter
	PersistBatchDur      prometheus.Histogram
	PersistErrors        *prometheus.CounterVec
	PersistRetry         prometheus.Counter
	PersistLastSequence  prometheus.Gauge

	// --- Snapshot ---
	SnapshotTaken     prometheus.Counter
	SnapshotDuration  prometheus.Histogram
	SnapshotSizeBytes prometheus.Gauge
	SnapshotLastSeq   prometheus.Gauge
	ReplayEventsTotal prometheus.Counter

	// --- Projection ---
	ProjectionUpdateDur *prometheus.HistogramVec
	ProjectionErrors    *prometheus.CounterVec

	// --- Query API ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
	QueryErrors   *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	latencyBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	ioBuckets := []float64{
		0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005,
		0.01, 0.025, 0.05, 0.1, 0.25, 0.5,
	}

	return &Metrics{
		CommandsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "oracle_commands_applied_total",
			Help: "Commands successfully applied by the engine",
		}, []string{"command_type"}),

		CommandsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "oracle_commands_rejected_total",
			Help: "Commands rejected (dedup, authorization, validation)",
		}, []string{"command_type", "reason"}),

		CommandDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "oracle_command_apply_duration_seconds",
			Help:    "Time to apply a single command in the engine",
			Buckets: latencyBuckets,
		}, []string{"command_type"}),

		EngineSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "oracle_engine_sequence",
			Help: "Current global event sequence",
		}),

		AggregationRounds: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "oracle_aggregation_rounds_total",
			Help: "Aggregation rounds per asset and outcome",
		}, []string{"asset", "outcome"}),

		SourcesUsed: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "oracle_aggregation_sources_used",
			Help:    "Surviving sources per committed round",
			Buckets: []float64{1, 2, 3, 4, 6, 8, 12, 16},
		}, []string{"asset"}),

		SourcesFiltered: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "oracle_aggregation_sources_filtered_total",
			Help: "Sources excluded from rounds, by filter",
		}, []string{"asset", "filter"}),

		CurrentPrice: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "oracle_current_price",
			Help: "Last committed blended price (fixed-point units)",
		}, []string{"asset"}),

		PriceConfidence: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "oracle_price_confidence_bp",
			Help: "Confidence of the last committed price, basis points",
		}, []string{"asset"}),

		PriceDispersion: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "oracle_price_dispersion_bp",
			Help: "Cross-source dispersion of the last round, basis points",
		}, []string{"asset"}),

		ActiveFeeds: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "oracle_active_feeds",
			Help: "Registered feeds per asset",
		}, []string{"asset"}),

		CircuitBreakerTrips: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "oracle_circuit_breaker_trips_total",
			Help: "Circuit breaker trips per asset and reason",
		}, []string{"asset", "reason"}),

		CircuitBreakerState: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "oracle_circuit_breaker_active",
			Help: "1 when the breaker is tripped for the asset",
		}, []string{"asset"}),

		ChannelSize: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "oracle_channel_size",
			Help: "Current channel occupancy",
		}, []string{"channel"}),

		ChannelCapacity: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "oracle_channel_capacity",
			Help: "Channel capacity",
		}, []string{"channel"}),

		ProjectionDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "oracle_projection_drops_total",
			Help: "Outputs dropped on a full projection channel",
		}),

		PublishDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "oracle_publish_drops_total",
			Help: "Outbound events dropped by the publisher",
		}),

		IdempotencyDuplicates: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "oracle_idempotency_duplicates_total",
			Help: "Duplicate commands skipped",
		}, []string{"command_type"}),

		DedupLRUSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "oracle_dedup_lru_size",
			Help: "Idempotency LRU occupancy",
		}),

		DedupLRUEvictions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "oracle_dedup_lru_evictions_total",
			Help: "Idempotency LRU evictions",
		}),

		PersistEventsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "oracle_persist_events_written_total",
			Help: "Event envelopes written to the event log",
		}),

		PersistPointsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "oracle_persist_points_written_total",
			Help: "Price history points written",
		}),

		PersistBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "oracle_persist_batch_duration_seconds",
			Help:    "Time to persist one batch",
			Buckets: ioBuckets,
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "oracle_persist_errors_total",
			Help: "Persistence errors by kind",
		}, []string{"kind"}),

		PersistRetry: promauto.NewCounter(prometheus.CounterOpts{
			Name: "oracle_persist_retries_total",
			Help: "Persistence retry attempts",
		}),

		PersistLastSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "oracle_persist_last_sequence",
			Help: "Highest sequence durably persisted",
		}),

		SnapshotTaken: promauto.NewCounter(prometheus.CounterOpts{
			Name: "oracle_snapshots_taken_total",
			Help: "Snapshots written",
		}),

		SnapshotDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "oracle_snapshot_duration_seconds",
			Help:    "Time to serialize and store a snapshot",
			Buckets: ioBuckets,
		}),

		SnapshotSizeBytes: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "oracle_snapshot_size_bytes",
			Help: "Size of the last snapshot",
		}),

		SnapshotLastSeq: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "oracle_snapshot_last_sequence",
			Help: "Sequence captured by the last snapshot",
		}),

		ReplayEventsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "oracle_replay_events_total",
			Help: "Events replayed during recovery",
		}),

		ProjectionUpdateDur: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "oracle_projection_update_duration_seconds",
			Help:    "Time to apply one output to a projection",
			Buckets: ioBuckets,
		}, []string{"projection"}),

		ProjectionErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "oracle_projection_errors_total",
			Help: "Projection update errors",
		}, []string{"projection"}),

		QueryRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "oracle_query_requests_total",
			Help: "Query API requests",
		}, []string{"endpoint"}),

		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "oracle_query_request_duration_seconds",
			Help:    "Query API request latency",
			Buckets: ioBuckets,
		}, []string{"endpoint"}),

		QueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "oracle_query_errors_total",
			Help: "Query API errors by endpoint",
		}, []string{"endpoint"}),
	}
}
