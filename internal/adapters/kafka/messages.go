package kafka

import (
	"time"

	"github.com/google/uuid"
	"github.com/ogurasousui/nearest-leader/internal/core/deactivation"
)

const (
	sourceEmployee = "arbeidstaker"
	sourceManager  = "leder"
)

func wireSource(s deactivation.Source) string {
	if s == deactivation.SourceEmployee {
		return sourceEmployee
	}
	return sourceManager
}

type kafkaMetadata struct {
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
}

// nlRequestMessage は新しい上長の登録依頼トピックのメッセージです。
type nlRequestMessage struct {
	NlRequest nlRequest     `json:"nlRequest"`
	Metadata  kafkaMetadata `json:"metadata"`
}

type nlRequest struct {
	RequestID    uuid.UUID `json:"requestId"`
	SykmeldingID *string   `json:"sykmeldingId"`
	Fnr          string    `json:"fnr"`
	Orgnr        string    `json:"orgnr"`
	Name         string    `json:"name"`
}

// nlResponseMessage は関係の登録と終了を運ぶトピックのメッセージです。
// nlResponse と nlAvbrutt のどちらか一方が設定されます。
type nlResponseMessage struct {
	KafkaMetadata kafkaMetadata `json:"kafkaMetadata"`
	NlResponse    *nlResponse   `json:"nlResponse"`
	NlAvbrutt     *nlAvbrutt    `json:"nlAvbrutt"`
}

type nlResponse struct {
	Orgnummer     string     `json:"orgnummer"`
	UtbetalesLonn *bool      `json:"utbetalesLonn"`
	Leder         leder      `json:"leder"`
	Sykmeldt      sykmeldt   `json:"sykmeldt"`
	AktivFom      *time.Time `json:"aktivFom"`
}

type leder struct {
	Fnr       string `json:"fnr"`
	Mobil     string `json:"mobil"`
	Epost     string `json:"epost"`
	Fornavn   string `json:"fornavn"`
	Etternavn string `json:"etternavn"`
}

type sykmeldt struct {
	Fnr  string `json:"fnr"`
	Navn string `json:"navn"`
}

type nlAvbrutt struct {
	Orgnummer   string    `json:"orgnummer"`
	SykmeldtFnr string    `json:"sykmeldtFnr"`
	AktivTom    time.Time `json:"aktivTom"`
}

func messageKey(orgID, employeeID string) []byte {
	return []byte(orgID + ":" + employeeID)
}
