package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ScanResult is the match state of a snapshot item or a scanned item.
// Snapshot items are missing or match; scanned items are match or unregistered.
type ScanResult string

const (
	ScanResultMissing      ScanResult = "missing"
	ScanResultMatch        ScanResult = "match"
	ScanResultUnregistered ScanResult = "unregistered"
)

// ExpectedUnit is one unit the inventory store reports as on the shelf.
type ExpectedUnit struct {
	UnitID       string
	IMEI         string
	ProductLabel string
	SellingPrice decimal.Decimal
	CostPrice    decimal.Decimal
	StockStatus  string
}

// SnapshotItem is the point-in-time copy of an expected unit.
type SnapshotItem struct {
	ItemID                string          `bson:"_id" json:"itemId"`
	SessionID             string          `bson:"sessionId" json:"sessionId"`
	UnitID                string          `bson:"unitId" json:"unitId"`
	IMEI                  string          `bson:"imei" json:"imei"`
	ProductLabel          string          `bson:"productLabel" json:"productLabel"`
	SellingPrice          decimal.Decimal `bson:"sellingPrice" json:"sellingPrice"`
	CostPrice             decimal.Decimal `bson:"costPrice" json:"costPrice"`
	StockStatusAtSnapshot string          `bson:"stockStatusAtSnapshot" json:"stockStatusAtSnapshot"`
	ScanResult            ScanResult      `bson:"scanResult" json:"scanResult"`

	ActionTaken     *MissingAction `bson:"actionTaken,omitempty" json:"actionTaken,omitempty"`
	ActionNotes     string         `bson:"actionNotes,omitempty" json:"actionNotes,omitempty"`
	SoldReferenceID string         `bson:"soldReferenceId,omitempty" json:"soldReferenceId,omitempty"`
	ActionedBy      string         `bson:"actionedBy,omitempty" json:"actionedBy,omitempty"`
	ActionedAt      *time.Time     `bson:"actionedAt,omitempty" json:"actionedAt,omitempty"`
}

// NewSnapshotItems copies units into missing snapshot rows for sessionID.
// Identifiers must be unique and non-blank, otherwise a *SnapshotError lists
// the offending units and no rows are built.
func NewSnapshotItems(sessionID string, units []ExpectedUnit) ([]*SnapshotItem, error) {
	if err := checkSnapshotUnits(units); err != nil {
		return nil, err
	}
	items := make([]*SnapshotItem, 0, len(units))
	for _, u := range units {
		items = append(items, &SnapshotItem{
			ItemID:                uuid.NewString(),
			SessionID:             sessionID,
			UnitID:                u.UnitID,
			IMEI:                  strings.TrimSpace(u.IMEI),
			ProductLabel:          u.ProductLabel,
			SellingPrice:          u.SellingPrice,
			CostPrice:             u.CostPrice,
			StockStatusAtSnapshot: u.StockStatus,
			ScanResult:            ScanResultMissing,
		})
	}
	return items, nil
}

func checkSnapshotUnits(units []ExpectedUnit) error {
	seen := make(map[string]int, len(units))
	var serr SnapshotError
	for _, u := range units {
		imei := strings.TrimSpace(u.IMEI)
		if imei == "" {
			serr.BlankUnitIDs = append(serr.BlankUnitIDs, u.UnitID)
			continue
		}
		seen[imei]++
		if seen[imei] == 2 {
			serr.DuplicateIMEIs = append(serr.DuplicateIMEIs, imei)
		}
	}
	if len(serr.DuplicateIMEIs) == 0 && len(serr.BlankUnitIDs) == 0 {
		return nil
	}
	sort.Strings(serr.DuplicateIMEIs)
	sort.Strings(serr.BlankUnitIDs)
	return &serr
}

// SnapshotError reports expected units that cannot enter a snapshot.
type SnapshotError struct {
	DuplicateIMEIs []string
	BlankUnitIDs   []string
}

func (e *SnapshotError) Error() string {
	return fmt.Sprintf("%v: %d duplicate, %d blank", ErrInvalidSnapshot, len(e.DuplicateIMEIs), len(e.BlankUnitIDs))
}

func (e *SnapshotError) Unwrap() error { return ErrInvalidSnapshot }

// ApplyAction records the disposition of a missing item.
func (i *SnapshotItem) ApplyAction(edit ActionEdit, actorID string, now time.Time) error {
	if i.ScanResult != ScanResultMissing {
		return ErrNotDiscrepancy
	}
	action, ref, err := edit.missing()
	if err != nil {
		return err
	}
	i.ActionTaken = &action
	i.ActionNotes = edit.Notes
	i.SoldReferenceID = ref
	i.ActionedBy = actorID
	i.ActionedAt = &now
	return nil
}

func (i *SnapshotItem) IsResolved() bool {
	return i.ScanResult != ScanResultMissing || i.ActionTaken != nil
}

// ScannedItem is one accepted physical observation.
type ScannedItem struct {
	ScanID     string     `bson:"_id" json:"scanId"`
	SessionID  string     `bson:"sessionId" json:"sessionId"`
	IMEI       string     `bson:"imei" json:"imei"`
	ScanResult ScanResult `bson:"scanResult" json:"scanResult"`
	ScannedAt  time.Time  `bson:"scannedAt" json:"scannedAt"`
	ScannedBy  string     `bson:"scannedBy" json:"scannedBy"`

	// ItemID is the snapshot row a match flipped; empty when unregistered.
	ItemID string `bson:"itemId,omitempty" json:"itemId,omitempty"`

	ActionTaken *UnregisteredAction `bson:"actionTaken,omitempty" json:"actionTaken,omitempty"`
	ActionNotes string              `bson:"actionNotes,omitempty" json:"actionNotes,omitempty"`
	ActionedBy  string              `bson:"actionedBy,omitempty" json:"actionedBy,omitempty"`
	ActionedAt  *time.Time          `bson:"actionedAt,omitempty" json:"actionedAt,omitempty"`
}

// NewScannedItem builds the scan for one accepted classification.
func NewScannedItem(sessionID string, c Classification, actorID string, now time.Time) *ScannedItem {
	scan := &ScannedItem{
		ScanID:     uuid.NewString(),
		SessionID:  sessionID,
		IMEI:       c.IMEI,
		ScanResult: ScanResultUnregistered,
		ScannedAt:  now,
		ScannedBy:  actorID,
	}
	if c.Outcome == OutcomeMatch && c.Item != nil {
		scan.ScanResult = ScanResultMatch
		scan.ItemID = c.Item.ItemID
	}
	return scan
}

// ApplyAction records the disposition of an unregistered scan.
func (s *ScannedItem) ApplyAction(edit ActionEdit, actorID string, now time.Time) error {
	if s.ScanResult != ScanResultUnregistered {
		return ErrNotDiscrepancy
	}
	action, err := edit.unregistered()
	if err != nil {
		return err
	}
	s.ActionTaken = &action
	s.ActionNotes = edit.Notes
	s.ActionedBy = actorID
	s.ActionedAt = &now
	return nil
}

func (s *ScannedItem) IsResolved() bool {
	return s.ScanResult != ScanResultUnregistered || s.ActionTaken != nil
}
