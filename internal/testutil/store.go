// Package testutil holds in-memory fakes for exercising the opname services
// without MongoDB.
package testutil

import (
	"context"
	"sort"
	"sync"

	"github.com/wms-platform/opname-service/internal/domain"
)

type state struct {
	sessions  map[string]*domain.Session
	items     map[string]*domain.SnapshotItem
	scans     map[string]*domain.ScannedItem
	scanOrder []string
	events    []domain.DomainEvent
}

func newState() *state {
	return &state{
		sessions: map[string]*domain.Session{},
		items:    map[string]*domain.SnapshotItem{},
		scans:    map[string]*domain.ScannedItem{},
	}
}

// clone copies every row. Domain code replaces pointer fields rather than
// writing through them, so struct copies are independent.
func (s *state) clone() *state {
	c := &state{
		sessions:  make(map[string]*domain.Session, len(s.sessions)),
		items:     make(map[string]*domain.SnapshotItem, len(s.items)),
		scans:     make(map[string]*domain.ScannedItem, len(s.scans)),
		scanOrder: append([]string(nil), s.scanOrder...),
		events:    append([]domain.DomainEvent(nil), s.events...),
	}
	for k, v := range s.sessions {
		cp := *v
		c.sessions[k] = &cp
	}
	for k, v := range s.items {
		cp := *v
		c.items[k] = &cp
	}
	for k, v := range s.scans {
		cp := *v
		c.scans[k] = &cp
	}
	return c
}

// MemoryStore is a domain.SessionStore whose transactions work on a copy of
// the data and publish it only on success.
type MemoryStore struct {
	mu    sync.Mutex
	data  *state
	fails map[string]error

	// TxAttempts counts RunInTx invocations of the callback
	TxAttempts int
	// ConflictOnce makes the next transaction run its callback twice, the
	// first result discarded, as a retried write conflict would.
	ConflictOnce bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: newState(), fails: map[string]error{}}
}

// FailOn makes the named SessionTx or read method return err until cleared
// with FailOn(op, nil).
func (m *MemoryStore) FailOn(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.fails, op)
		return
	}
	m.fails[op] = err
}

func (m *MemoryStore) fail(op string) error {
	return m.fails[op]
}

// Events returns the committed domain events
func (m *MemoryStore) Events() []domain.DomainEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.DomainEvent(nil), m.data.events...)
}

func (m *MemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx domain.SessionTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ConflictOnce {
		m.ConflictOnce = false
		m.TxAttempts++
		_ = fn(ctx, &memoryTx{store: m, data: m.data.clone()})
	}

	m.TxAttempts++
	working := m.data.clone()
	if err := fn(ctx, &memoryTx{store: m, data: working}); err != nil {
		return err
	}
	m.data = working
	return nil
}

func (m *MemoryStore) FindSession(_ context.Context, sessionID string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("FindSession"); err != nil {
		return nil, err
	}
	s, ok := m.data.sessions[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) ListSessions(_ context.Context, filter domain.SessionFilter, skip, limit int64) ([]*domain.Session, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("ListSessions"); err != nil {
		return nil, 0, err
	}
	var all []*domain.Session
	for _, s := range m.data.sessions {
		if filter.Status != "" && s.Status != filter.Status {
			continue
		}
		if filter.SessionType != "" && s.SessionType != filter.SessionType {
			continue
		}
		cp := *s
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].StartedAt.Equal(all[j].StartedAt) {
			return all[i].SessionID > all[j].SessionID
		}
		return all[i].StartedAt.After(all[j].StartedAt)
	})
	total := int64(len(all))
	if skip >= total {
		return []*domain.Session{}, total, nil
	}
	end := skip + limit
	if end > total {
		end = total
	}
	return all[skip:end], total, nil
}

func (m *MemoryStore) ListSessionIDs(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.data.sessions))
	for id := range m.data.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *MemoryStore) ListSnapshotItems(_ context.Context, sessionID string, result domain.ScanResult) ([]*domain.SnapshotItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("ListSnapshotItems"); err != nil {
		return nil, err
	}
	return m.data.snapshotItems(sessionID, result), nil
}

func (m *MemoryStore) ListScannedItems(_ context.Context, sessionID string, result domain.ScanResult) ([]*domain.ScannedItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.scannedItems(sessionID, result), nil
}

func (m *MemoryStore) Recount(_ context.Context, sessionID string) (domain.Counters, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var c domain.Counters
	for _, item := range m.data.snapshotItems(sessionID, "") {
		c.TotalExpected++
		if item.ScanResult == domain.ScanResultMatch {
			c.TotalMatch++
		} else {
			c.TotalMissing++
		}
	}
	for _, scan := range m.data.scannedItems(sessionID, "") {
		c.TotalScanned++
		if scan.ScanResult == domain.ScanResultUnregistered {
			c.TotalUnregistered++
		}
	}
	return c, nil
}

// CorruptCounters overwrites a session's stored counters, for drift tests
func (m *MemoryStore) CorruptCounters(sessionID string, c domain.Counters) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.data.sessions[sessionID]; ok {
		s.Counters = c
	}
}

func (s *state) snapshotItems(sessionID string, result domain.ScanResult) []*domain.SnapshotItem {
	out := []*domain.SnapshotItem{}
	for _, item := range s.items {
		if item.SessionID != sessionID || (result != "" && item.ScanResult != result) {
			continue
		}
		cp := *item
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].IMEI < out[j].IMEI })
	return out
}

func (s *state) scannedItems(sessionID string, result domain.ScanResult) []*domain.ScannedItem {
	out := []*domain.ScannedItem{}
	for _, id := range s.scanOrder {
		scan := s.scans[id]
		if scan.SessionID != sessionID || (result != "" && scan.ScanResult != result) {
			continue
		}
		cp := *scan
		out = append(out, &cp)
	}
	return out
}

var _ domain.SessionStore = (*MemoryStore)(nil)
