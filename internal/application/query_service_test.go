package application

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/opname-service/internal/domain"
	"github.com/wms-platform/opname-service/internal/testutil"
)

type fakeCache struct {
	generation    int64
	pages         map[string]*SessionListDTO
	hits          int
	invalidations int

	// beforeSet runs ahead of every page write
	beforeSet func()
}

func newFakeCache() *fakeCache {
	return &fakeCache{pages: map[string]*SessionListDTO{}}
}

func pageKey(gen int64, key string) string {
	return fmt.Sprintf("%d:%s", gen, key)
}

func (c *fakeCache) GetSessionList(_ context.Context, key string) (*SessionListDTO, int64, error) {
	list, ok := c.pages[pageKey(c.generation, key)]
	if ok {
		c.hits++
	}
	return list, c.generation, nil
}

func (c *fakeCache) SetSessionList(_ context.Context, key string, generation int64, list *SessionListDTO) error {
	if c.beforeSet != nil {
		c.beforeSet()
	}
	c.pages[pageKey(generation, key)] = list
	return nil
}

func (c *fakeCache) Invalidate(context.Context) error {
	c.generation++
	c.invalidations++
	return nil
}

func TestListSessions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2)

	first := f.create(t)
	_, err := f.svc.CreateSession(ctx, CreateSessionCommand{Actor: testutil.Clerk, SessionType: "closing"})
	require.NoError(t, err)
	latest, err := f.svc.CreateSession(ctx, CreateSessionCommand{Actor: testutil.Clerk, SessionType: "closing"})
	require.NoError(t, err)

	all, err := f.queries.ListSessions(ctx, ListSessionsQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), all.Total)
	assert.Equal(t, 1, all.Page)
	assert.Equal(t, 20, all.PageSize)
	require.Len(t, all.Sessions, 3)
	assert.Equal(t, latest.SessionID, all.Sessions[0].SessionID)
	assert.Equal(t, first, all.Sessions[2].SessionID)

	closing, err := f.queries.ListSessions(ctx, ListSessionsQuery{SessionType: "closing", PageSize: 1, Page: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(2), closing.Total)
	require.Len(t, closing.Sessions, 1)

	drafts, err := f.queries.ListSessions(ctx, ListSessionsQuery{Status: "locked"})
	require.NoError(t, err)
	assert.Empty(t, drafts.Sessions)
}

func TestListSessions_InvalidFilter(t *testing.T) {
	f := newFixture(t, 1)

	_, err := f.queries.ListSessions(context.Background(), ListSessionsQuery{Status: "archived"})
	requireStatus(t, err, http.StatusBadRequest)
	_, err = f.queries.ListSessions(context.Background(), ListSessionsQuery{SessionType: "weekly"})
	requireStatus(t, err, http.StatusBadRequest)
}

func TestListSessions_CacheInvalidatedByWrites(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)
	id := f.create(t)

	_, err := f.queries.ListSessions(ctx, ListSessionsQuery{})
	require.NoError(t, err)
	cached, err := f.queries.ListSessions(ctx, ListSessionsQuery{})
	require.NoError(t, err)
	assert.Equal(t, 1, f.cache.hits)
	assert.Equal(t, "draft", cached.Sessions[0].Status)

	f.scan(t, id, testutil.IMEI(1))
	_, err = f.svc.CompleteSession(ctx, CompleteSessionCommand{SessionID: id, Actor: testutil.Clerk})
	require.NoError(t, err)

	fresh, err := f.queries.ListSessions(ctx, ListSessionsQuery{})
	require.NoError(t, err)
	assert.Equal(t, 1, f.cache.hits)
	assert.Equal(t, "completed", fresh.Sessions[0].Status)
}

func TestListSessions_PageReadBeforeInvalidateIsNotServed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)
	f.create(t)

	f.cache.beforeSet = func() {
		f.cache.beforeSet = nil
		_, err := f.svc.CreateSession(ctx, CreateSessionCommand{Actor: testutil.Clerk, SessionType: "closing"})
		require.NoError(t, err)
	}
	stale, err := f.queries.ListSessions(ctx, ListSessionsQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), stale.Total)

	fresh, err := f.queries.ListSessions(ctx, ListSessionsQuery{})
	require.NoError(t, err)
	assert.Equal(t, 0, f.cache.hits)
	assert.Equal(t, int64(2), fresh.Total)
}

func TestGetSession(t *testing.T) {
	f := newFixture(t, 3)
	id := f.create(t)
	f.scan(t, id, testutil.IMEI(3))
	f.scan(t, id, testutil.IMEI(1))

	detail, err := f.queries.GetSession(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, detail.SnapshotItems, 3)
	require.Len(t, detail.ScannedItems, 2)
	assert.Equal(t, testutil.IMEI(3), detail.ScannedItems[0].IMEI)
	assert.Equal(t, "1001", detail.SnapshotItems[0].SellingPrice.String())

	_, err = f.queries.GetSession(context.Background(), "OPN-unknown")
	requireStatus(t, err, http.StatusNotFound)
}

func TestVerifyAll_DetectsDrift(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2)
	good := f.create(t)
	bad := f.create(t)
	f.scan(t, bad, testutil.IMEI(1))
	f.store.CorruptCounters(bad, domain.Counters{TotalExpected: 2, TotalScanned: 2, TotalMatch: 2})

	results, err := f.queries.VerifyAll(ctx)
	require.NoError(t, err)
	require.Len(t, results, 2)

	byID := map[string]*VerificationDTO{}
	for _, r := range results {
		byID[r.SessionID] = r
	}
	assert.True(t, byID[good].Consistent)
	assert.False(t, byID[bad].Consistent)
	assert.Equal(t, domain.Counters{TotalExpected: 2, TotalScanned: 1, TotalMatch: 1, TotalMissing: 1}, byID[bad].Recounted)
}
