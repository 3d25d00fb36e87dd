package idempotency

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryRepository is an in-process Repository for tests and local runs
type MemoryRepository struct {
	mu   sync.Mutex
	keys map[string]*Key
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{keys: make(map[string]*Key)}
}

func memoryKey(k *Key) string {
	return k.ServiceID + "\x00" + k.UserID + "\x00" + k.Key
}

func (r *MemoryRepository) AcquireLock(_ context.Context, key *Key) (*Key, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.keys[memoryKey(key)]; ok && time.Now().Before(existing.ExpiresAt) {
		cp := *existing
		return &cp, false, nil
	}
	cp := *key
	r.keys[memoryKey(key)] = &cp
	return key, true, nil
}

func (r *MemoryRepository) find(id primitive.ObjectID) *Key {
	for _, k := range r.keys {
		if k.ID == id {
			return k
		}
	}
	return nil
}

func (r *MemoryRepository) TakeOver(_ context.Context, id primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if k := r.find(id); k != nil {
		now := time.Now().UTC()
		k.LockedAt = &now
	}
	return nil
}

func (r *MemoryRepository) StoreResponse(_ context.Context, id primitive.ObjectID, code int, body []byte, headers map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if k := r.find(id); k != nil {
		now := time.Now().UTC()
		k.ResponseCode = code
		k.ResponseBody = append([]byte(nil), body...)
		k.ResponseHeaders = headers
		k.CompletedAt = &now
		k.LockedAt = nil
	}
	return nil
}

func (r *MemoryRepository) ReleaseLock(_ context.Context, id primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, k := range r.keys {
		if k.ID == id {
			delete(r.keys, name)
		}
	}
	return nil
}

var _ Repository = (*MemoryRepository)(nil)
