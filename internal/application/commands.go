package application

import "github.com/wms-platform/opname-service/internal/domain"

// CreateSessionCommand starts a session over a fresh snapshot
type CreateSessionCommand struct {
	Actor       domain.Actor
	SessionType string
	Notes       string
}

// RecordScanCommand submits one physical identifier
type RecordScanCommand struct {
	SessionID string
	Actor     domain.Actor
	IMEI      string
}

// RecordBulkScanCommand submits a batch. Lines wins over Text; Text is split
// on newlines.
type RecordBulkScanCommand struct {
	SessionID string
	Actor     domain.Actor
	Lines     []string
	Text      string
}

// RetractScanCommand undoes an accepted scan while the session is draft
type RetractScanCommand struct {
	SessionID string
	Actor     domain.Actor
	ScanID    string
}

// CompleteSessionCommand closes scanning
type CompleteSessionCommand struct {
	SessionID string
	Actor     domain.Actor
}

// ResolveDiscrepanciesCommand saves staged actions on a completed session
type ResolveDiscrepanciesCommand struct {
	SessionID string
	Actor     domain.Actor
	Staged    domain.StagedActions
}

// LockSessionCommand approves a session. Pending edits are saved in the same
// transition.
type LockSessionCommand struct {
	SessionID string
	Actor     domain.Actor
	Pending   domain.StagedActions
}

// ListSessionsQuery filters the session registry
type ListSessionsQuery struct {
	Status      string
	SessionType string
	Page        int
	PageSize    int
}
