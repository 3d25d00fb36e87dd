package testutil

import (
	"context"
	"errors"
	"fmt"

	"github.com/wms-platform/opname-service/internal/domain"
)

// ErrDuplicateKey mirrors a unique index violation in the document store.
var ErrDuplicateKey = errors.New("duplicate key")

type memoryTx struct {
	store *MemoryStore
	data  *state
}

func (t *memoryTx) CreateSession(_ context.Context, session *domain.Session, items []*domain.SnapshotItem) error {
	if err := t.store.fail("CreateSession"); err != nil {
		return err
	}
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		if seen[item.IMEI] {
			return fmt.Errorf("%w: snapshot item imei %q", ErrDuplicateKey, item.IMEI)
		}
		seen[item.IMEI] = true
	}
	cp := *session
	t.data.sessions[session.SessionID] = &cp
	for _, item := range items {
		ic := *item
		t.data.items[item.ItemID] = &ic
	}
	return nil
}

func (t *memoryTx) BeginWrite(_ context.Context, sessionID string) (*domain.Session, error) {
	if err := t.store.fail("BeginWrite"); err != nil {
		return nil, err
	}
	s, ok := t.data.sessions[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	s.Version++
	cp := *s
	return &cp, nil
}

func (t *memoryTx) SaveSession(_ context.Context, session *domain.Session) error {
	if err := t.store.fail("SaveSession"); err != nil {
		return err
	}
	stored, ok := t.data.sessions[session.SessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	cp := *session
	cp.Version = stored.Version
	t.data.sessions[session.SessionID] = &cp
	return nil
}

func (t *memoryTx) FindSnapshotItemsByIMEI(_ context.Context, sessionID string, imeis []string) (map[string]*domain.SnapshotItem, error) {
	want := toSet(imeis)
	out := map[string]*domain.SnapshotItem{}
	for _, item := range t.data.items {
		if item.SessionID == sessionID && want[item.IMEI] {
			cp := *item
			out[item.IMEI] = &cp
		}
	}
	return out, nil
}

func (t *memoryTx) FindScannedIMEIs(_ context.Context, sessionID string, imeis []string) (map[string]bool, error) {
	want := toSet(imeis)
	out := map[string]bool{}
	for _, scan := range t.data.scans {
		if scan.SessionID == sessionID && want[scan.IMEI] {
			out[scan.IMEI] = true
		}
	}
	return out, nil
}

func (t *memoryTx) SetSnapshotResult(_ context.Context, sessionID string, itemIDs []string, result domain.ScanResult) error {
	if err := t.store.fail("SetSnapshotResult"); err != nil {
		return err
	}
	for _, id := range itemIDs {
		if item, ok := t.data.items[id]; ok && item.SessionID == sessionID {
			item.ScanResult = result
		}
	}
	return nil
}

func (t *memoryTx) InsertScans(_ context.Context, scans []*domain.ScannedItem) error {
	if err := t.store.fail("InsertScans"); err != nil {
		return err
	}
	for _, scan := range scans {
		for _, existing := range t.data.scans {
			if existing.SessionID == scan.SessionID && existing.IMEI == scan.IMEI {
				return domain.ErrDuplicateScan
			}
		}
		cp := *scan
		t.data.scans[scan.ScanID] = &cp
		t.data.scanOrder = append(t.data.scanOrder, scan.ScanID)
	}
	return nil
}

func (t *memoryTx) FindScan(_ context.Context, sessionID, scanID string) (*domain.ScannedItem, error) {
	scan, ok := t.data.scans[scanID]
	if !ok || scan.SessionID != sessionID {
		return nil, domain.ErrScanNotFound
	}
	cp := *scan
	return &cp, nil
}

func (t *memoryTx) DeleteScan(_ context.Context, sessionID, scanID string) error {
	scan, ok := t.data.scans[scanID]
	if !ok || scan.SessionID != sessionID {
		return domain.ErrScanNotFound
	}
	delete(t.data.scans, scanID)
	for i, id := range t.data.scanOrder {
		if id == scanID {
			t.data.scanOrder = append(t.data.scanOrder[:i], t.data.scanOrder[i+1:]...)
			break
		}
	}
	return nil
}

func (t *memoryTx) FindSnapshotItems(_ context.Context, sessionID string, itemIDs []string) (map[string]*domain.SnapshotItem, error) {
	out := map[string]*domain.SnapshotItem{}
	for _, id := range itemIDs {
		if item, ok := t.data.items[id]; ok && item.SessionID == sessionID {
			cp := *item
			out[id] = &cp
		}
	}
	return out, nil
}

func (t *memoryTx) FindScans(_ context.Context, sessionID string, scanIDs []string) (map[string]*domain.ScannedItem, error) {
	out := map[string]*domain.ScannedItem{}
	for _, id := range scanIDs {
		if scan, ok := t.data.scans[id]; ok && scan.SessionID == sessionID {
			cp := *scan
			out[id] = &cp
		}
	}
	return out, nil
}

func (t *memoryTx) SaveSnapshotActions(_ context.Context, items []*domain.SnapshotItem) error {
	if err := t.store.fail("SaveSnapshotActions"); err != nil {
		return err
	}
	for _, item := range items {
		stored, ok := t.data.items[item.ItemID]
		if !ok {
			return domain.ErrItemNotFound
		}
		stored.ActionTaken = item.ActionTaken
		stored.ActionNotes = item.ActionNotes
		stored.SoldReferenceID = item.SoldReferenceID
		stored.ActionedBy = item.ActionedBy
		stored.ActionedAt = item.ActionedAt
	}
	return nil
}

func (t *memoryTx) SaveScanActions(_ context.Context, scans []*domain.ScannedItem) error {
	for _, scan := range scans {
		stored, ok := t.data.scans[scan.ScanID]
		if !ok {
			return domain.ErrItemNotFound
		}
		stored.ActionTaken = scan.ActionTaken
		stored.ActionNotes = scan.ActionNotes
		stored.ActionedBy = scan.ActionedBy
		stored.ActionedAt = scan.ActionedAt
	}
	return nil
}

func (t *memoryTx) ListDiscrepancies(_ context.Context, sessionID string) ([]*domain.SnapshotItem, []*domain.ScannedItem, error) {
	return t.data.snapshotItems(sessionID, domain.ScanResultMissing), t.data.scannedItems(sessionID, domain.ScanResultUnregistered), nil
}

func (t *memoryTx) AppendEvents(_ context.Context, events ...domain.DomainEvent) error {
	if err := t.store.fail("AppendEvents"); err != nil {
		return err
	}
	t.data.events = append(t.data.events, events...)
	return nil
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

var _ domain.SessionTx = (*memoryTx)(nil)
