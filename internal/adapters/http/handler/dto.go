package handler

import (
	"time"

	"github.com/ogurasousui/nearest-leader/internal/core/relationship"
)

const (
	forskutteringYes     = "JA"
	forskutteringNo      = "NEI"
	forskutteringUnknown = "UKJENT"
)

type forskutteringResponse struct {
	Forskuttering string `json:"forskuttering"`
}

func toForskuttering(a relationship.AdvancePay) string {
	switch a {
	case relationship.AdvancePayYes:
		return forskutteringYes
	case relationship.AdvancePayNo:
		return forskutteringNo
	default:
		return forskutteringUnknown
	}
}

type relationshipResponse struct {
	Fnr                      string     `json:"fnr"`
	Orgnummer                string     `json:"orgnummer"`
	NarmesteLederFnr         string     `json:"narmesteLederFnr"`
	AktivFom                 time.Time  `json:"aktivFom"`
	AktivTom                 *time.Time `json:"aktivTom"`
	ArbeidsgiverForskutterer *bool      `json:"arbeidsgiverForskutterer"`
	Navn                     *string    `json:"navn,omitempty"`
}

func toRelationshipResponses(rels []*relationship.Relationship) []relationshipResponse {
	out := make([]relationshipResponse, 0, len(rels))
	for _, rel := range rels {
		if rel == nil {
			continue
		}
		out = append(out, relationshipResponse{
			Fnr:                      rel.EmployeeID,
			Orgnummer:                rel.EmployerOrgID,
			NarmesteLederFnr:         rel.LeaderID,
			AktivFom:                 rel.ValidFrom,
			AktivTom:                 rel.ValidTo,
			ArbeidsgiverForskutterer: rel.AdvancesPay.Bool(),
			Navn:                     rel.DisplayName,
		})
	}
	return out
}

type deactivationResponse struct {
	State                string `json:"state"`
	Closed               bool   `json:"closed"`
	ReplacementRequested bool   `json:"replacementRequested"`
}
