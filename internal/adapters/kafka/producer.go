package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ogurasousui/nearest-leader/internal/core/deactivation"
	"github.com/ogurasousui/nearest-leader/internal/platform/config"
	"github.com/ogurasousui/nearest-leader/internal/platform/metrics"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/ogurasousui/nearest-leader/internal/adapters/kafka"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer は deactivation.NotificationChannel の Kafka 実装です。
// NewLeaderRequest は依頼トピックへ、TerminationNotice は応答トピックへ送信します。
type Producer struct {
	requests      messageWriter
	responses     messageWriter
	requestTopic  string
	responseTopic string
	logger        *zap.Logger
}

// NewProducer は設定から2つのトピック用の writer を持つ Producer を生成します。
func NewProducer(cfg config.KafkaConfig, logger *zap.Logger) *Producer {
	return newProducer(
		newWriter(cfg.Brokers, cfg.RequestTopic),
		newWriter(cfg.Brokers, cfg.ResponseTopic),
		cfg.RequestTopic,
		cfg.ResponseTopic,
		logger,
	)
}

func newWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    1,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireAll,
		Async:        false,
	}
}

func newProducer(requests, responses messageWriter, requestTopic, responseTopic string, logger *zap.Logger) *Producer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Producer{
		requests:      requests,
		responses:     responses,
		requestTopic:  requestTopic,
		responseTopic: responseTopic,
		logger:        logger,
	}
}

// Publish は通知を対応するトピックへ同期的に送信します。
func (p *Producer) Publish(ctx context.Context, msg deactivation.Notification) error {
	switch m := msg.(type) {
	case *deactivation.NewLeaderRequest:
		payload := nlRequestMessage{
			NlRequest: nlRequest{
				RequestID: m.RequestID,
				Fnr:       m.EmployeeID,
				Orgnr:     m.EmployerOrgID,
				Name:      m.DisplayName,
			},
			Metadata: kafkaMetadata{Timestamp: m.Timestamp.UTC(), Source: wireSource(m.Source)},
		}
		return p.write(ctx, p.requests, p.requestTopic, []byte(m.RequestID.String()), payload)
	case *deactivation.TerminationNotice:
		payload := nlResponseMessage{
			KafkaMetadata: kafkaMetadata{Timestamp: m.Timestamp.UTC(), Source: wireSource(m.Source)},
			NlAvbrutt: &nlAvbrutt{
				Orgnummer:   m.EmployerOrgID,
				SykmeldtFnr: m.EmployeeID,
				AktivTom:    m.ActiveUntil.UTC(),
			},
		}
		return p.write(ctx, p.responses, p.responseTopic, messageKey(m.EmployerOrgID, m.EmployeeID), payload)
	case nil:
		return errors.New("kafka: notification is nil")
	default:
		return fmt.Errorf("kafka: unsupported notification %T", msg)
	}
}

func (p *Producer) write(ctx context.Context, w messageWriter, topic string, key []byte, payload any) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "kafka.Publish", trace.WithAttributes(
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.destination", topic),
		attribute.String("messaging.operation", "publish"),
	))
	defer span.End()

	data, err := json.Marshal(payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "marshal failed")
		return fmt.Errorf("kafka: marshal message for %s: %w", topic, err)
	}

	if err := w.WriteMessages(ctx, kafka.Message{
		Key:     key,
		Value:   data,
		Headers: traceHeaders(ctx),
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish failed")
		metrics.KafkaMessagesTotal.WithLabelValues(topic, metrics.ResultFailed).Inc()
		p.logger.Error("failed to publish kafka message", zap.String("topic", topic), zap.Error(err))
		return fmt.Errorf("kafka: publish to %s: %w", topic, err)
	}

	metrics.KafkaMessagesTotal.WithLabelValues(topic, metrics.ResultPublished).Inc()
	p.logger.Debug("published kafka message", zap.String("topic", topic))
	return nil
}

func traceHeaders(ctx context.Context) []kafka.Header {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	headers := make([]kafka.Header, 0, len(carrier))
	for _, key := range carrier.Keys() {
		headers = append(headers, kafka.Header{Key: key, Value: []byte(carrier.Get(key))})
	}
	return headers
}

// Close は両方の writer を閉じます。
func (p *Producer) Close() error {
	return errors.Join(p.requests.Close(), p.responses.Close())
}
