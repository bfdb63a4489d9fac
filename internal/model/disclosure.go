package model

import "time"

// CaseStatus tracks the lifecycle of an operator notification.
type CaseStatus string

// Disclosure case status constants.
const (
	CasePending          CaseStatus = "PENDING"
	CaseNotified         CaseStatus = "NOTIFIED"
	CaseAcknowledged     CaseStatus = "ACKNOWLEDGED"
	CaseRemediated       CaseStatus = "REMEDIATED"
	CaseClosedNoResponse CaseStatus = "CLOSED_NO_RESPONSE"
)

// Closed reports whether the status is terminal.
func (s CaseStatus) Closed() bool {
	return s == CaseRemediated || s == CaseClosedNoResponse
}

// Valid reports whether s is a known case status.
func (s CaseStatus) Valid() bool {
	switch s {
	case CasePending, CaseNotified, CaseAcknowledged, CaseRemediated, CaseClosedNoResponse:
		return true
	}
	return false
}

// DisclosureCase tracks notifying a satellite operator about a confirmed
// unencrypted transponder. At most one open case per transponder; a closed
// case never suppresses a later reopening.
type DisclosureCase struct {
	CreatedAt      time.Time      `json:"created_at"`
	NotifiedAt     time.Time      `json:"notified_at,omitempty"`
	AcknowledgedAt time.Time      `json:"acknowledged_at,omitempty"`
	ClosedAt       time.Time      `json:"closed_at,omitempty"`
	ID             string         `json:"id"`
	Key            TransponderKey `json:"key"`
	Status         CaseStatus     `json:"status"`
}
