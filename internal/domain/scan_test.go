package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	imeiA = "356938035643809"
	imeiB = "356938035643810"
	imeiC = "356938035643811"
)

func TestNormalizeIdentifier(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{"exact length", imeiA, imeiA, false},
		{"surrounding whitespace", "  " + imeiA + "\t", imeiA, false},
		{"too short", "1234", "1234", true},
		{"fourteen after trim", " 35693803564380 ", "35693803564380", true},
		{"empty", "", "", true},
		{"sixty four", strings.Repeat("9", 64), strings.Repeat("9", 64), false},
		{"too long", strings.Repeat("9", 65), strings.Repeat("9", 65), true},
		{"control character", "123456789012345\x07ctl", "123456789012345\x07ctl", true},
		{"embedded newline", imeiA + "\n" + imeiB, imeiA + "\n" + imeiB, true},
		{"invalid utf8", imeiA + "\xff", imeiA + "\xff", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeIdentifier(tt.raw)
			assert.Equal(t, tt.want, got)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidIdentifier)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestScanClassifier(t *testing.T) {
	item := &SnapshotItem{ItemID: "item-a", IMEI: imeiA, ScanResult: ScanResultMissing}
	c := NewScanClassifier(map[string]*SnapshotItem{imeiA: item}, map[string]bool{imeiC: true})

	got := c.Classify(" " + imeiA)
	assert.Equal(t, OutcomeMatch, got.Outcome)
	assert.Same(t, item, got.Item)

	assert.Equal(t, OutcomeUnregistered, c.Classify(imeiB).Outcome)
	assert.Equal(t, OutcomeDuplicate, c.Classify(imeiA).Outcome, "repeat within batch")
	assert.Equal(t, OutcomeDuplicate, c.Classify(imeiC).Outcome, "scanned earlier in session")
	assert.Equal(t, OutcomeInvalid, c.Classify("abcd").Outcome)
	assert.Equal(t, OutcomeInvalid, c.Classify(strings.Repeat("9", 80)).Outcome)
	assert.Equal(t, OutcomeInvalid, c.Classify("123456789012345\x07ctl").Outcome)
}

func TestNumberLines_KeepsOriginalPositions(t *testing.T) {
	lines := NumberLines(SplitLines(imeiA + "\r\n\n  \n" + imeiB + "\n"))

	require.Len(t, lines, 2)
	assert.Equal(t, ScanLine{Number: 1, Raw: imeiA}, lines[0])
	assert.Equal(t, ScanLine{Number: 4, Raw: imeiB}, lines[1])
}

func TestCandidateIdentifiers(t *testing.T) {
	lines := NumberLines([]string{imeiA, "short", " " + imeiA, imeiB})
	assert.Equal(t, []string{imeiA, imeiB}, CandidateIdentifiers(lines))
}
