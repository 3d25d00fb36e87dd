package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completedSession(t *testing.T) *Session {
	t.Helper()
	s, err := NewSession(SessionTypeOpening, clerk, "", 2, now)
	require.NoError(t, err)
	s.ApplyScanDelta(ScanDelta(ScanResultMatch), now)
	require.NoError(t, s.Complete(clerk, now))
	return s
}

func TestAuthorizeLock(t *testing.T) {
	draft, _ := NewSession(SessionTypeOpening, clerk, "", 0, now)
	completed := completedSession(t)
	locked := completedSession(t)
	require.NoError(t, locked.Lock(approver, now))

	admin := Actor{ID: "u-admin", Roles: []string{RoleAdmin}}
	auditor := Actor{ID: "u-auditor", Roles: []string{"auditor"}}

	tests := []struct {
		name    string
		actor   Actor
		session *Session
		roles   []string
		want    error
	}{
		{"approver on completed", approver, completed, nil, nil},
		{"admin on completed", admin, completed, nil, nil},
		{"staff is forbidden", clerk, completed, nil, ErrNotApprover},
		{"anonymous", Actor{}, completed, nil, ErrNotAuthenticated},
		{"draft session", approver, draft, nil, ErrSessionNotCompleted},
		{"already locked", approver, locked, nil, ErrSessionLocked},
		{"configured role", auditor, completed, []string{"auditor"}, nil},
		{"configured roles replace defaults", approver, completed, []string{"auditor"}, ErrNotApprover},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := AuthorizeLock(tt.actor, tt.session, tt.roles...)
			if tt.want == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestCheckResolution(t *testing.T) {
	lost := MissingLost
	escalate := UnregisteredEscalate
	items := []*SnapshotItem{
		{ItemID: "i1", ScanResult: ScanResultMissing},
		{ItemID: "i2", ScanResult: ScanResultMissing, ActionTaken: &lost},
		{ItemID: "i3", ScanResult: ScanResultMatch},
	}
	scans := []*ScannedItem{
		{ScanID: "s1", ScanResult: ScanResultUnregistered},
		{ScanID: "s2", ScanResult: ScanResultUnregistered, ActionTaken: &escalate},
		{ScanID: "s3", ScanResult: ScanResultMatch},
	}

	err := CheckResolution(items, scans)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnresolvedDiscrepancies)

	var unresolved *UnresolvedError
	require.True(t, errors.As(err, &unresolved))
	assert.Equal(t, []string{"i1"}, unresolved.MissingIDs)
	assert.Equal(t, []string{"s1"}, unresolved.UnregisteredIDs)
	assert.Contains(t, err.Error(), "1 missing and 1 unregistered")

	items[0].ActionTaken = &lost
	scans[0].ActionTaken = &escalate
	assert.NoError(t, CheckResolution(items, scans))
}
