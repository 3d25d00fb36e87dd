package domain

import (
	"time"

	"github.com/google/uuid"
)

// SessionType classifies a session. It has no behavioral effect.
type SessionType string

const (
	SessionTypeOpening SessionType = "opening"
	SessionTypeClosing SessionType = "closing"
	SessionTypeAdhoc   SessionType = "adhoc"
)

func (t SessionType) IsValid() bool {
	switch t {
	case SessionTypeOpening, SessionTypeClosing, SessionTypeAdhoc:
		return true
	}
	return false
}

// Status is the session lifecycle state: draft -> completed -> locked.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusCompleted Status = "completed"
	StatusLocked    Status = "locked"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusCompleted, StatusLocked:
		return true
	}
	return false
}

// Counters are the session aggregates. They are derived from the child rows
// and kept in step with them inside every write transaction.
type Counters struct {
	TotalExpected     int `bson:"totalExpected" json:"totalExpected"`
	TotalScanned      int `bson:"totalScanned" json:"totalScanned"`
	TotalMatch        int `bson:"totalMatch" json:"totalMatch"`
	TotalMissing      int `bson:"totalMissing" json:"totalMissing"`
	TotalUnregistered int `bson:"totalUnregistered" json:"totalUnregistered"`
}

// Add returns c with every field of d added
func (c Counters) Add(d Counters) Counters {
	return Counters{
		TotalExpected:     c.TotalExpected + d.TotalExpected,
		TotalScanned:      c.TotalScanned + d.TotalScanned,
		TotalMatch:        c.TotalMatch + d.TotalMatch,
		TotalMissing:      c.TotalMissing + d.TotalMissing,
		TotalUnregistered: c.TotalUnregistered + d.TotalUnregistered,
	}
}

func (c Counters) Negate() Counters {
	return Counters{
		TotalExpected:     -c.TotalExpected,
		TotalScanned:      -c.TotalScanned,
		TotalMatch:        -c.TotalMatch,
		TotalMissing:      -c.TotalMissing,
		TotalUnregistered: -c.TotalUnregistered,
	}
}

// Balanced reports whether the arithmetic relations between the counters hold.
func (c Counters) Balanced() bool {
	return c.TotalMatch+c.TotalMissing == c.TotalExpected &&
		c.TotalScanned == c.TotalMatch+c.TotalUnregistered &&
		c.TotalMatch >= 0 && c.TotalMissing >= 0 && c.TotalUnregistered >= 0
}

// ScanDelta is the counter change caused by accepting one scan with result r.
// Retraction applies its negation.
func ScanDelta(r ScanResult) Counters {
	switch r {
	case ScanResultMatch:
		return Counters{TotalScanned: 1, TotalMatch: 1, TotalMissing: -1}
	case ScanResultUnregistered:
		return Counters{TotalScanned: 1, TotalUnregistered: 1}
	}
	return Counters{}
}

// Session is one bounded stock-taking exercise, from snapshot to lock.
type Session struct {
	SessionID   string      `bson:"_id" json:"sessionId"`
	SessionType SessionType `bson:"sessionType" json:"sessionType"`
	Status      Status      `bson:"status" json:"status"`
	Notes       string      `bson:"notes,omitempty" json:"notes,omitempty"`

	Counters `bson:",inline"`

	CreatedBy   string     `bson:"createdBy" json:"createdBy"`
	StartedAt   time.Time  `bson:"startedAt" json:"startedAt"`
	CompletedBy string     `bson:"completedBy,omitempty" json:"completedBy,omitempty"`
	CompletedAt *time.Time `bson:"completedAt,omitempty" json:"completedAt,omitempty"`
	ApprovedBy  string     `bson:"approvedBy,omitempty" json:"approvedBy,omitempty"`
	ApprovedAt  *time.Time `bson:"approvedAt,omitempty" json:"approvedAt,omitempty"`
	LockedAt    *time.Time `bson:"lockedAt,omitempty" json:"lockedAt,omitempty"`

	Version   int64     `bson:"version" json:"version"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

func NewSessionID() string {
	return "OPN-" + uuid.NewString()
}

// NewSession builds a draft session over a snapshot of expectedCount units.
func NewSession(sessionType SessionType, actor Actor, notes string, expectedCount int, now time.Time) (*Session, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	if !sessionType.IsValid() {
		return nil, ErrInvalidSessionType
	}
	return &Session{
		SessionID:   NewSessionID(),
		SessionType: sessionType,
		Status:      StatusDraft,
		Notes:       notes,
		Counters: Counters{
			TotalExpected: expectedCount,
			TotalMissing:  expectedCount,
		},
		CreatedBy: actor.ID,
		StartedAt: now,
		Version:   1,
		UpdatedAt: now,
	}, nil
}

// CanScan reports whether scans may be recorded or retracted.
func (s *Session) CanScan() error {
	switch s.Status {
	case StatusDraft:
		return nil
	case StatusLocked:
		return ErrSessionLocked
	default:
		return ErrSessionNotDraft
	}
}

// CanResolve reports whether discrepancy actions may be saved.
func (s *Session) CanResolve() error {
	switch s.Status {
	case StatusCompleted:
		return nil
	case StatusLocked:
		return ErrSessionLocked
	default:
		return ErrSessionNotCompleted
	}
}

// ApplyScanDelta adjusts the counters for one accepted (or retracted) scan.
func (s *Session) ApplyScanDelta(d Counters, now time.Time) {
	s.Counters = s.Counters.Add(d)
	s.UpdatedAt = now
}

// Complete moves a draft session with at least one accepted scan to completed.
func (s *Session) Complete(actor Actor, now time.Time) error {
	if err := actor.Validate(); err != nil {
		return err
	}
	if err := s.CanScan(); err != nil {
		return err
	}
	if s.TotalScanned < 1 {
		return ErrEmptySession
	}
	s.Status = StatusCompleted
	s.CompletedBy = actor.ID
	s.CompletedAt = &now
	s.UpdatedAt = now
	return nil
}

// Lock stamps the approval and moves a completed session to locked. Callers
// must have passed AuthorizeLock and CheckResolution first.
func (s *Session) Lock(actor Actor, now time.Time) error {
	if err := s.CanResolve(); err != nil {
		return err
	}
	s.Status = StatusLocked
	s.ApprovedBy = actor.ID
	s.ApprovedAt = &now
	s.LockedAt = &now
	s.UpdatedAt = now
	return nil
}

func (s *Session) IsLocked() bool {
	return s.Status == StatusLocked
}
