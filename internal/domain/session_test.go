package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	clerk    = Actor{ID: "u-clerk", Name: "Clerk", Roles: []string{"staff"}}
	approver = Actor{ID: "u-approver", Name: "Approver", Roles: []string{"Approver"}}
	now      = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
)

func TestNewSession(t *testing.T) {
	s, err := NewSession(SessionTypeOpening, clerk, "morning count", 10, now)
	require.NoError(t, err)

	assert.Regexp(t, `^OPN-[0-9a-f-]{36}$`, s.SessionID)
	assert.Equal(t, StatusDraft, s.Status)
	assert.Equal(t, Counters{TotalExpected: 10, TotalMissing: 10}, s.Counters)
	assert.Equal(t, clerk.ID, s.CreatedBy)
	assert.True(t, s.Balanced())
}

func TestNewSession_Rejects(t *testing.T) {
	_, err := NewSession("weekly", clerk, "", 0, now)
	assert.ErrorIs(t, err, ErrInvalidSessionType)

	_, err = NewSession(SessionTypeAdhoc, Actor{}, "", 0, now)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestScanDelta_RoundTrip(t *testing.T) {
	s, _ := NewSession(SessionTypeAdhoc, clerk, "", 3, now)

	s.ApplyScanDelta(ScanDelta(ScanResultMatch), now)
	s.ApplyScanDelta(ScanDelta(ScanResultUnregistered), now)
	assert.Equal(t, Counters{TotalExpected: 3, TotalScanned: 2, TotalMatch: 1, TotalMissing: 2, TotalUnregistered: 1}, s.Counters)
	assert.True(t, s.Balanced())

	s.ApplyScanDelta(ScanDelta(ScanResultMatch).Negate(), now)
	s.ApplyScanDelta(ScanDelta(ScanResultUnregistered).Negate(), now)
	assert.Equal(t, Counters{TotalExpected: 3, TotalMissing: 3}, s.Counters)
}

func TestSession_Transitions(t *testing.T) {
	s, _ := NewSession(SessionTypeClosing, clerk, "", 1, now)

	assert.ErrorIs(t, s.Complete(clerk, now), ErrEmptySession)
	assert.ErrorIs(t, s.CanResolve(), ErrSessionNotCompleted)
	assert.ErrorIs(t, s.Lock(approver, now), ErrSessionNotCompleted)

	s.ApplyScanDelta(ScanDelta(ScanResultMatch), now)
	require.NoError(t, s.Complete(clerk, now))
	assert.Equal(t, StatusCompleted, s.Status)
	assert.Equal(t, clerk.ID, s.CompletedBy)
	assert.ErrorIs(t, s.CanScan(), ErrSessionNotDraft)
	assert.ErrorIs(t, s.Complete(clerk, now), ErrSessionNotDraft)

	later := now.Add(time.Hour)
	require.NoError(t, s.Lock(approver, later))
	assert.True(t, s.IsLocked())
	assert.Equal(t, approver.ID, s.ApprovedBy)
	assert.Equal(t, later, *s.LockedAt)
	assert.Equal(t, later, *s.ApprovedAt)

	assert.ErrorIs(t, s.CanScan(), ErrSessionLocked)
	assert.ErrorIs(t, s.CanResolve(), ErrSessionLocked)
	assert.ErrorIs(t, s.Complete(clerk, later), ErrSessionLocked)
	assert.ErrorIs(t, s.Lock(approver, later), ErrSessionLocked)
}

func TestCounters_Balanced(t *testing.T) {
	assert.True(t, Counters{TotalExpected: 10, TotalScanned: 8, TotalMatch: 7, TotalMissing: 3, TotalUnregistered: 1}.Balanced())
	assert.False(t, Counters{TotalExpected: 10, TotalScanned: 8, TotalMatch: 7, TotalMissing: 2, TotalUnregistered: 1}.Balanced())
	assert.False(t, Counters{TotalExpected: 1, TotalScanned: 3, TotalMatch: 1, TotalUnregistered: 1}.Balanced())
}
