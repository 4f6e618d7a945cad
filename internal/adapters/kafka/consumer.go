package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ogurasousui/nearest-leader/internal/core/relationship"
	"github.com/ogurasousui/nearest-leader/internal/platform/config"
	"github.com/ogurasousui/nearest-leader/internal/platform/metrics"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// ErrMalformedMessage はメッセージに nlResponse も nlAvbrutt も含まれないことを表します。
var ErrMalformedMessage = errors.New("kafka: message has neither nlResponse nor nlAvbrutt")

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// RelationshipWriter は応答トピックの内容を関係ストアへ反映するユースケースです。
type RelationshipWriter interface {
	Register(ctx context.Context, in relationship.RegisterInput) (*relationship.Relationship, error)
	Close(ctx context.Context, in relationship.CloseInput) (bool, error)
}

// Consumer は応答トピックを購読し、登録と終了を関係ストアへ反映します。
type Consumer struct {
	reader  messageReader
	writer  RelationshipWriter
	topic   string
	backoff time.Duration
	logger  *zap.Logger
}

// NewConsumer はコンシューマーグループに参加する Consumer を生成します。
func NewConsumer(cfg config.KafkaConfig, writer RelationshipWriter, logger *zap.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.ResponseTopic,
		GroupID:        cfg.ConsumerGroup,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        time.Second,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: 0,
	})
	return newConsumer(reader, writer, cfg.ResponseTopic, logger)
}

func newConsumer(reader messageReader, writer RelationshipWriter, topic string, logger *zap.Logger) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{reader: reader, writer: writer, topic: topic, backoff: time.Second, logger: logger}
}

// Run は ctx がキャンセルされるまでメッセージを処理します。キャンセルによる終了では nil を返します。
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("kafka consumer started", zap.String("topic", c.topic))
	defer c.logger.Info("kafka consumer stopped", zap.String("topic", c.topic))

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("failed to fetch kafka message", zap.Error(err))
			if !sleep(ctx, c.backoff) {
				return nil
			}
			continue
		}

		if !c.process(ctx, msg) {
			return nil
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("failed to commit kafka message", zap.Int64("offset", msg.Offset), zap.Error(err))
		}
	}
}

// process は処理済み、スキップ、不正のいずれかになるまで同じメッセージを再処理します。
// ストア障害の間はオフセットをコミットしません。ctx が終了した場合は false を返します。
func (c *Consumer) process(ctx context.Context, msg kafka.Message) bool {
	for {
		result := c.handle(ctx, msg)
		metrics.KafkaMessagesTotal.WithLabelValues(c.topic, result).Inc()
		if result != metrics.ResultFailed {
			return true
		}
		if !sleep(ctx, c.backoff) {
			return false
		}
	}
}

// Close はリーダーを閉じます。
func (c *Consumer) Close() error {
	return c.reader.Close()
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) string {
	logger := c.logger.With(zap.Int("partition", msg.Partition), zap.Int64("offset", msg.Offset))

	var payload nlResponseMessage
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		logger.Error("failed to decode kafka message", zap.Error(err))
		return metrics.ResultInvalid
	}

	if err := c.apply(ctx, payload); err != nil {
		if isRejected(err) {
			logger.Warn("kafka message rejected", zap.String("source", payload.KafkaMetadata.Source), zap.Error(err))
			return metrics.ResultSkipped
		}
		logger.Error("failed to apply kafka message", zap.String("source", payload.KafkaMetadata.Source), zap.Error(err))
		return metrics.ResultFailed
	}
	return metrics.ResultProcessed
}

func (c *Consumer) apply(ctx context.Context, payload nlResponseMessage) error {
	switch {
	case payload.NlResponse != nil:
		resp := payload.NlResponse
		validFrom := payload.KafkaMetadata.Timestamp
		if resp.AktivFom != nil {
			validFrom = *resp.AktivFom
		}
		if _, err := c.writer.Register(ctx, relationship.RegisterInput{
			EmployerOrgID: resp.Orgnummer,
			EmployeeID:    resp.Sykmeldt.Fnr,
			LeaderID:      resp.Leder.Fnr,
			AdvancesPay:   relationship.AdvancePayFromBool(resp.UtbetalesLonn),
			ValidFrom:     validFrom,
		}); err != nil {
			return fmt.Errorf("register relationship: %w", err)
		}
		return nil
	case payload.NlAvbrutt != nil:
		avbrutt := payload.NlAvbrutt
		closed, err := c.writer.Close(ctx, relationship.CloseInput{
			EmployerOrgID: avbrutt.Orgnummer,
			EmployeeID:    avbrutt.SykmeldtFnr,
			ClosedAt:      avbrutt.AktivTom,
		})
		if err != nil {
			return fmt.Errorf("close relationship: %w", err)
		}
		if !closed {
			c.logger.Debug("no active relationship to close")
		}
		return nil
	default:
		return ErrMalformedMessage
	}
}

func isRejected(err error) bool {
	return errors.Is(err, ErrMalformedMessage) ||
		errors.Is(err, relationship.ErrInvalidOrgID) ||
		errors.Is(err, relationship.ErrInvalidEmployeeID) ||
		errors.Is(err, relationship.ErrInvalidLeaderID) ||
		errors.Is(err, relationship.ErrInvalidPeriod)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
