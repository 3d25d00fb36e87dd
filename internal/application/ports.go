package application

import "context"

// SessionLocker serializes scan batches on one session across instances.
// Correctness does not depend on it; it keeps long batches from repeatedly
// aborting each other's transactions.
type SessionLocker interface {
	Lock(ctx context.Context, sessionID string) (unlock func(context.Context), err error)
}

// RegistryCache caches pages of the session registry. GetSessionList returns
// a nil list on a miss together with the generation it read; SetSessionList
// stores the page under that generation only, so a page read before an
// Invalidate never becomes visible after it.
type RegistryCache interface {
	GetSessionList(ctx context.Context, key string) (*SessionListDTO, int64, error)
	SetSessionList(ctx context.Context, key string, generation int64, list *SessionListDTO) error
	// Invalidate drops every cached page
	Invalidate(ctx context.Context) error
}
