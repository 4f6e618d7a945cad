package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ogurasousui/nearest-leader/internal/core/deactivation"
	"github.com/segmentio/kafka-go"
)

type recordingWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func TestProducer_PublishNewLeaderRequest(t *testing.T) {
	t.Parallel()

	requests := &recordingWriter{}
	responses := &recordingWriter{}
	producer := newProducer(requests, responses, "nl-request", "nl-response", nil)

	requestID := uuid.MustParse("7f1a6f4e-2a7a-4b6e-9d8e-1c5b0e6a9f10")
	ts := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	err := producer.Publish(context.Background(), &deactivation.NewLeaderRequest{
		RequestID:     requestID,
		EmployeeID:    "12345678910",
		EmployerOrgID: "999888777",
		DisplayName:   "Kari Nordmann",
		Timestamp:     ts,
		Source:        deactivation.SourceEmployee,
	})
	if err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}

	if len(responses.messages) != 0 {
		t.Fatalf("expected no response messages, got %d", len(responses.messages))
	}
	if len(requests.messages) != 1 {
		t.Fatalf("expected 1 request message, got %d", len(requests.messages))
	}

	msg := requests.messages[0]
	if string(msg.Key) != requestID.String() {
		t.Fatalf("unexpected key %q", msg.Key)
	}

	var decoded map[string]map[string]any
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	req := decoded["nlRequest"]
	if req["requestId"] != requestID.String() || req["fnr"] != "12345678910" || req["orgnr"] != "999888777" || req["name"] != "Kari Nordmann" {
		t.Fatalf("unexpected nlRequest: %+v", req)
	}
	if v, ok := req["sykmeldingId"]; !ok || v != nil {
		t.Fatalf("expected explicit null sykmeldingId, got %+v", req)
	}
	if decoded["metadata"]["source"] != "arbeidstaker" {
		t.Fatalf("unexpected source: %+v", decoded["metadata"])
	}
}

func TestProducer_PublishTerminationNotice(t *testing.T) {
	t.Parallel()

	requests := &recordingWriter{}
	responses := &recordingWriter{}
	producer := newProducer(requests, responses, "nl-request", "nl-response", nil)

	activeUntil := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	err := producer.Publish(context.Background(), &deactivation.TerminationNotice{
		EmployerOrgID: "999888777",
		EmployeeID:    "12345678910",
		ActiveUntil:   activeUntil,
		Timestamp:     activeUntil,
		Source:        deactivation.SourceManager,
	})
	if err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}

	if len(requests.messages) != 0 || len(responses.messages) != 1 {
		t.Fatalf("unexpected routing: requests=%d responses=%d", len(requests.messages), len(responses.messages))
	}

	var decoded nlResponseMessage
	if err := json.Unmarshal(responses.messages[0].Value, &decoded); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if decoded.NlResponse != nil {
		t.Fatalf("expected nlResponse to be null")
	}
	if decoded.NlAvbrutt == nil || decoded.NlAvbrutt.SykmeldtFnr != "12345678910" || !decoded.NlAvbrutt.AktivTom.Equal(activeUntil) {
		t.Fatalf("unexpected nlAvbrutt: %+v", decoded.NlAvbrutt)
	}
	if decoded.KafkaMetadata.Source != "leder" {
		t.Fatalf("unexpected source %q", decoded.KafkaMetadata.Source)
	}
	if string(responses.messages[0].Key) != "999888777:12345678910" {
		t.Fatalf("unexpected key %q", responses.messages[0].Key)
	}
}

func TestProducer_PublishWriteError(t *testing.T) {
	t.Parallel()

	writeErr := errors.New("broker unavailable")
	producer := newProducer(&recordingWriter{}, &recordingWriter{err: writeErr}, "nl-request", "nl-response", nil)

	err := producer.Publish(context.Background(), &deactivation.TerminationNotice{EmployerOrgID: "org", EmployeeID: "emp"})
	if !errors.Is(err, writeErr) {
		t.Fatalf("expected write error, got %v", err)
	}
}

func TestProducer_PublishNil(t *testing.T) {
	t.Parallel()

	producer := newProducer(&recordingWriter{}, &recordingWriter{}, "nl-request", "nl-response", nil)
	if err := producer.Publish(context.Background(), nil); err == nil {
		t.Fatalf("expected error for nil notification")
	}
}

func TestProducer_Close(t *testing.T) {
	t.Parallel()

	requests := &recordingWriter{}
	responses := &recordingWriter{}
	producer := newProducer(requests, responses, "nl-request", "nl-response", nil)

	if err := producer.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	if !requests.closed || !responses.closed {
		t.Fatalf("expected both writers to be closed")
	}
}
