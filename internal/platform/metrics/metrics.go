// Package metrics は nearest-leader の Prometheus メトリクスを定義します。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "nearestleader"

var (
	// HTTPRequestDuration は HTTP リクエストの処理時間です。
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of inbound HTTP requests in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"path"},
	)

	// DeactivationTotal は非活性化トリガーの処理件数です。
	DeactivationTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deactivation_total",
			Help:      "Total number of deactivation triggers by source and outcome",
		},
		[]string{"source", "outcome"},
	)

	// KafkaMessagesTotal は Kafka の送受信件数です。
	KafkaMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_messages_total",
			Help:      "Total number of Kafka messages by topic and result",
		},
		[]string{"topic", "result"},
	)
)

// Kafka の結果ラベル
const (
	ResultPublished = "published"
	ResultFailed    = "failed"
	ResultProcessed = "processed"
	ResultSkipped   = "skipped"
	ResultInvalid   = "invalid"
)
