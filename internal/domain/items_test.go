package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSnapshotItems(t *testing.T) {
	items, err := NewSnapshotItems("OPN-1", []ExpectedUnit{
		{UnitID: "u-1", IMEI: " 356938035600001 ", StockStatus: "available"},
		{UnitID: "u-2", IMEI: "356938035600002", StockStatus: "reserved"},
	})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "356938035600001", items[0].IMEI)
	assert.Equal(t, ScanResultMissing, items[1].ScanResult)
	assert.NotEqual(t, items[0].ItemID, items[1].ItemID)
}

func TestNewSnapshotItems_RejectsDuplicateAndBlankIdentifiers(t *testing.T) {
	items, err := NewSnapshotItems("OPN-1", []ExpectedUnit{
		{UnitID: "u-1", IMEI: "356938035600009"},
		{UnitID: "u-2", IMEI: "356938035600001"},
		{UnitID: "u-3", IMEI: "356938035600009 "},
		{UnitID: "u-4", IMEI: ""},
		{UnitID: "u-5", IMEI: "356938035600009"},
		{UnitID: "u-6", IMEI: "356938035600001"},
	})
	require.Error(t, err)
	assert.Nil(t, items)
	assert.ErrorIs(t, err, ErrInvalidSnapshot)

	var serr *SnapshotError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, []string{"356938035600001", "356938035600009"}, serr.DuplicateIMEIs)
	assert.Equal(t, []string{"u-4"}, serr.BlankUnitIDs)
}

func TestNewScannedItem(t *testing.T) {
	item := &SnapshotItem{ItemID: "item-1", IMEI: "356938035600001"}

	match := NewScannedItem("OPN-1", Classification{IMEI: item.IMEI, Outcome: OutcomeMatch, Item: item}, clerk.ID, now)
	assert.Equal(t, ScanResultMatch, match.ScanResult)
	assert.Equal(t, "item-1", match.ItemID)

	unreg := NewScannedItem("OPN-1", Classification{IMEI: "356938035600099", Outcome: OutcomeUnregistered}, clerk.ID, now)
	assert.Equal(t, ScanResultUnregistered, unreg.ScanResult)
	assert.Empty(t, unreg.ItemID)
	assert.Equal(t, clerk.ID, unreg.ScannedBy)
}
