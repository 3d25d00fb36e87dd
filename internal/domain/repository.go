package domain

import "context"

// UnitSource is the read-only inventory store
type UnitSource interface {
	// ListExpectedUnits returns every unit that should be physically present.
	ListExpectedUnits(ctx context.Context) ([]ExpectedUnit, error)
}

// SessionFilter narrows ListSessions; zero values match everything
type SessionFilter struct {
	Status      Status
	SessionType SessionType
}

// SessionStore persists sessions with their snapshot and scan rows.
type SessionStore interface {
	// RunInTx runs fn as one atomic unit. fn may be invoked again after a
	// transient conflict, so it must not keep state across invocations.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx SessionTx) error) error

	FindSession(ctx context.Context, sessionID string) (*Session, error)
	ListSessions(ctx context.Context, filter SessionFilter, skip, limit int64) ([]*Session, int64, error)
	ListSessionIDs(ctx context.Context) ([]string, error)

	// ListSnapshotItems orders rows by IMEI and ListScannedItems in scan
	// order. An empty result filter returns all rows.
	ListSnapshotItems(ctx context.Context, sessionID string, result ScanResult) ([]*SnapshotItem, error)
	ListScannedItems(ctx context.Context, sessionID string, result ScanResult) ([]*ScannedItem, error)

	// Recount derives the counters from the child rows.
	Recount(ctx context.Context, sessionID string) (Counters, error)
}

// SessionTx is the write surface available inside RunInTx.
type SessionTx interface {
	CreateSession(ctx context.Context, session *Session, items []*SnapshotItem) error

	// BeginWrite bumps the session version and returns the stored session.
	// It must be the first write of every mutation so that concurrent writers
	// on one session conflict. Returns ErrSessionNotFound for unknown ids.
	BeginWrite(ctx context.Context, sessionID string) (*Session, error)

	// SaveSession writes status, stamps and counters.
	SaveSession(ctx context.Context, session *Session) error

	FindSnapshotItemsByIMEI(ctx context.Context, sessionID string, imeis []string) (map[string]*SnapshotItem, error)
	FindScannedIMEIs(ctx context.Context, sessionID string, imeis []string) (map[string]bool, error)
	SetSnapshotResult(ctx context.Context, sessionID string, itemIDs []string, result ScanResult) error

	InsertScans(ctx context.Context, scans []*ScannedItem) error
	FindScan(ctx context.Context, sessionID, scanID string) (*ScannedItem, error)
	DeleteScan(ctx context.Context, sessionID, scanID string) error

	FindSnapshotItems(ctx context.Context, sessionID string, itemIDs []string) (map[string]*SnapshotItem, error)
	FindScans(ctx context.Context, sessionID string, scanIDs []string) (map[string]*ScannedItem, error)
	SaveSnapshotActions(ctx context.Context, items []*SnapshotItem) error
	SaveScanActions(ctx context.Context, scans []*ScannedItem) error

	// ListDiscrepancies returns the missing snapshot items and unregistered scans.
	ListDiscrepancies(ctx context.Context, sessionID string) ([]*SnapshotItem, []*ScannedItem, error)

	// AppendEvents stores events for relay in the same transaction.
	AppendEvents(ctx context.Context, events ...DomainEvent) error
}
