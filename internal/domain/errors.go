package domain

import "errors"

// Session lifecycle errors
var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrInvalidSessionType  = errors.New("invalid session type")
	ErrSessionNotDraft     = errors.New("session is not in draft")
	ErrSessionNotCompleted = errors.New("session not completed")
	ErrSessionLocked       = errors.New("session locked")
	ErrEmptySession        = errors.New("session has no accepted scans")
	ErrInvalidSnapshot     = errors.New("expected units have duplicate or blank identifiers")
)

// Scan errors
var (
	ErrInvalidIdentifier = errors.New("identifier must be 15 to 64 printable characters")
	ErrDuplicateScan     = errors.New("identifier already scanned in this session")
	ErrScanNotFound      = errors.New("scan not found")
	ErrEmptyBatch        = errors.New("batch contains no identifiers")
)

// Resolution errors
var (
	ErrItemNotFound            = errors.New("discrepancy item not found")
	ErrNotDiscrepancy          = errors.New("item is not a discrepancy")
	ErrUnknownAction           = errors.New("unknown discrepancy action")
	ErrSoldReferenceRequired   = errors.New("sold reference id is required for sale actions")
	ErrUnresolvedDiscrepancies = errors.New("session has unresolved discrepancies")
	ErrNoStagedActions         = errors.New("no discrepancy actions staged")
)

// Actor errors
var (
	ErrNotAuthenticated = errors.New("actor is not authenticated")
	ErrNotApprover      = errors.New("actor is not allowed to lock sessions")
)
