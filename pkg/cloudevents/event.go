package cloudevents

import (
	"time"
)

// Event types emitted by the opname service
const (
	SessionCreated   = "opname.session.created"
	SessionCompleted = "opname.session.completed"
	SessionLocked    = "opname.session.locked"
)

// CloudEvent is a CloudEvents 1.0 envelope with the opname extension attributes.
type CloudEvent struct {
	SpecVersion     string      `json:"specversion"`
	Type            string      `json:"type"`
	Source          string      `json:"source"`
	Subject         string      `json:"subject,omitempty"`
	ID              string      `json:"id"`
	Time            time.Time   `json:"time"`
	DataContentType string      `json:"datacontenttype,omitempty"`
	Data            interface{} `json:"data,omitempty"`

	// Extensions
	CorrelationID string `json:"correlationid,omitempty"`
	SessionID     string `json:"opnamesessionid,omitempty"`
	TraceParent   string `json:"traceparent,omitempty"`
}

// Counters snapshot carried by every session event.
type Counters struct {
	TotalExpected     int `json:"totalExpected"`
	TotalScanned      int `json:"totalScanned"`
	TotalMatch        int `json:"totalMatch"`
	TotalMissing      int `json:"totalMissing"`
	TotalUnregistered int `json:"totalUnregistered"`
}

type SessionCreatedData struct {
	SessionID   string    `json:"sessionId"`
	SessionType string    `json:"sessionType"`
	CreatedBy   string    `json:"createdBy"`
	StartedAt   time.Time `json:"startedAt"`
	Counters
}

type SessionCompletedData struct {
	SessionID   string    `json:"sessionId"`
	CompletedBy string    `json:"completedBy"`
	CompletedAt time.Time `json:"completedAt"`
	Counters
}

type SessionLockedData struct {
	SessionID  string    `json:"sessionId"`
	ApprovedBy string    `json:"approvedBy"`
	ApprovedAt time.Time `json:"approvedAt"`
	LockedAt   time.Time `json:"lockedAt"`
	Counters
}
