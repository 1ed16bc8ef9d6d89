package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ingestion failure reasons
const (
	ReasonValidation = "validation"
	ReasonStorage    = "storage"
)

// Kafka message results
const (
	ResultIngested = "ingested"
	ResultInvalid  = "invalid"
	ResultFailed   = "failed"
)

var (
	// Ingestion metrics
	SnapshotsIngestedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracker_snapshots_ingested_total",
		Help: "The total number of stat snapshots persisted",
	})
	IngestFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_ingest_failures_total",
		Help: "The total number of rejected or failed ingestions, by reason",
	}, []string{"reason"})
	IngestLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tracker_ingest_latency_seconds",
		Help:    "Latency of persisting one snapshot with its styles and items",
		Buckets: prometheus.DefBuckets,
	})

	KafkaMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_kafka_messages_total",
		Help: "The total number of Kafka messages consumed, by result",
	}, []string{"result"})

	// Live state
	ActivityFeedSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tracker_activity_feed_entries",
		Help: "Number of entries held by the recent-activity feed",
	})
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tracker_websocket_clients",
		Help: "Number of connected live-feed websocket clients",
	})

	// Store aggregates, refreshed by the stats worker
	PlayersTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tracker_players_total",
		Help: "Distinct player names ever recorded",
	})
	SnapshotsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tracker_snapshots_total",
		Help: "Snapshot rows in the store",
	})
	ActivePlayers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tracker_active_players",
		Help: "Players with a snapshot inside the active window",
	})
	AverageActiveLevel = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tracker_average_active_level",
		Help: "Average level of snapshots inside the active window",
	})
)
