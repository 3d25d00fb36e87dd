package application

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/wms-platform/opname-service/internal/domain"
)

// SessionDTO is a session as listed by the registry
type SessionDTO struct {
	SessionID   string          `json:"sessionId"`
	SessionType string          `json:"sessionType"`
	Status      string          `json:"status"`
	Notes       string          `json:"notes,omitempty"`
	Counters    domain.Counters `json:"counters"`
	CreatedBy   string          `json:"createdBy"`
	StartedAt   time.Time       `json:"startedAt"`
	CompletedBy string          `json:"completedBy,omitempty"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
	ApprovedBy  string          `json:"approvedBy,omitempty"`
	ApprovedAt  *time.Time      `json:"approvedAt,omitempty"`
	LockedAt    *time.Time      `json:"lockedAt,omitempty"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// SessionListDTO is one page of the registry
type SessionListDTO struct {
	Sessions []SessionDTO `json:"sessions"`
	Total    int64        `json:"total"`
	Page     int          `json:"page"`
	PageSize int          `json:"pageSize"`
}

// SessionDetailDTO is a session with its child rows
type SessionDetailDTO struct {
	SessionDTO
	SnapshotItems []SnapshotItemDTO `json:"snapshotItems"`
	ScannedItems  []ScannedItemDTO  `json:"scannedItems"`
}

type SnapshotItemDTO struct {
	ItemID                string          `json:"itemId"`
	UnitID                string          `json:"unitId"`
	IMEI                  string          `json:"imei"`
	ProductLabel          string          `json:"productLabel"`
	SellingPrice          decimal.Decimal `json:"sellingPrice"`
	CostPrice             decimal.Decimal `json:"costPrice"`
	StockStatusAtSnapshot string          `json:"stockStatusAtSnapshot"`
	ScanResult            string          `json:"scanResult"`
	ActionTaken           string          `json:"actionTaken,omitempty"`
	ActionNotes           string          `json:"actionNotes,omitempty"`
	SoldReferenceID       string          `json:"soldReferenceId,omitempty"`
	ActionedBy            string          `json:"actionedBy,omitempty"`
	ActionedAt            *time.Time      `json:"actionedAt,omitempty"`
}

type ScannedItemDTO struct {
	ScanID      string     `json:"scanId"`
	IMEI        string     `json:"imei"`
	ItemID      string     `json:"itemId,omitempty"`
	ScanResult  string     `json:"scanResult"`
	ScannedAt   time.Time  `json:"scannedAt"`
	ScannedBy   string     `json:"scannedBy"`
	ActionTaken string     `json:"actionTaken,omitempty"`
	ActionNotes string     `json:"actionNotes,omitempty"`
	ActionedBy  string     `json:"actionedBy,omitempty"`
	ActionedAt  *time.Time `json:"actionedAt,omitempty"`
}

// ScanOutcomeDTO reports an accepted single scan
type ScanOutcomeDTO struct {
	SessionID string          `json:"sessionId"`
	ScanID    string          `json:"scanId"`
	IMEI      string          `json:"imei"`
	Result    string          `json:"result"`
	Message   string          `json:"message"`
	ItemID    string          `json:"itemId,omitempty"`
	Counters  domain.Counters `json:"counters"`
}

// BulkLineDTO is the outcome of one non-blank input line
type BulkLineDTO struct {
	Line    int    `json:"line"`
	Input   string `json:"input"`
	Outcome string `json:"outcome"`
	Message string `json:"message"`
	ScanID  string `json:"scanId,omitempty"`
}

type BulkSummaryDTO struct {
	Total        int `json:"total"`
	Accepted     int `json:"accepted"`
	Match        int `json:"match"`
	Unregistered int `json:"unregistered"`
	Duplicate    int `json:"duplicate"`
	Invalid      int `json:"invalid"`
}

// BulkScanReportDTO preserves input order
type BulkScanReportDTO struct {
	SessionID string          `json:"sessionId"`
	Lines     []BulkLineDTO   `json:"lines"`
	Summary   BulkSummaryDTO  `json:"summary"`
	Counters  domain.Counters `json:"counters"`
}

// DiscrepanciesDTO holds the two worklists of a session
type DiscrepanciesDTO struct {
	SessionID              string            `json:"sessionId"`
	Status                 string            `json:"status"`
	Missing                []SnapshotItemDTO `json:"missing"`
	Unregistered           []ScannedItemDTO  `json:"unregistered"`
	UnresolvedMissing      int               `json:"unresolvedMissing"`
	UnresolvedUnregistered int               `json:"unresolvedUnregistered"`
	MissingActions         []string          `json:"missingActions"`
	UnregisteredActions    []string          `json:"unregisteredActions"`
}

// ResolutionResultDTO reports a save of staged actions
type ResolutionResultDTO struct {
	SessionID              string `json:"sessionId"`
	SavedMissing           int    `json:"savedMissing"`
	SavedUnregistered      int    `json:"savedUnregistered"`
	UnresolvedMissing      int    `json:"unresolvedMissing"`
	UnresolvedUnregistered int    `json:"unresolvedUnregistered"`
}

// VerificationDTO compares stored counters with a recount of the rows
type VerificationDTO struct {
	SessionID  string          `json:"sessionId"`
	Status     string          `json:"status"`
	Stored     domain.Counters `json:"stored"`
	Recounted  domain.Counters `json:"recounted"`
	Consistent bool            `json:"consistent"`
	Balanced   bool            `json:"balanced"`
}
