package domain

import (
	"fmt"
	"sort"
	"strings"
)

// MissingAction is the disposition of an expected unit that was never scanned.
type MissingAction string

const (
	MissingSoldStore          MissingAction = "sold_store"
	MissingSoldMarketplace    MissingAction = "sold_marketplace"
	MissingLost               MissingAction = "lost"
	MissingDamaged            MissingAction = "damaged"
	MissingUnderInvestigation MissingAction = "under_investigation"
)

func (a MissingAction) IsValid() bool {
	switch a {
	case MissingSoldStore, MissingSoldMarketplace, MissingLost, MissingDamaged, MissingUnderInvestigation:
		return true
	}
	return false
}

// IsSale reports whether the action needs a sold reference id.
func (a MissingAction) IsSale() bool {
	return a == MissingSoldStore || a == MissingSoldMarketplace
}

// UnregisteredAction is the disposition of a scan absent from the snapshot.
type UnregisteredAction string

const (
	UnregisteredRegisterNewUnit UnregisteredAction = "register_new_unit"
	UnregisteredScanError       UnregisteredAction = "scan_error"
	UnregisteredEscalate        UnregisteredAction = "escalate"
)

func (a UnregisteredAction) IsValid() bool {
	switch a {
	case UnregisteredRegisterNewUnit, UnregisteredScanError, UnregisteredEscalate:
		return true
	}
	return false
}

// MissingActions and UnregisteredActions list the closed vocabularies.
func MissingActions() []MissingAction {
	return []MissingAction{MissingSoldStore, MissingSoldMarketplace, MissingLost, MissingDamaged, MissingUnderInvestigation}
}

func UnregisteredActions() []UnregisteredAction {
	return []UnregisteredAction{UnregisteredRegisterNewUnit, UnregisteredScanError, UnregisteredEscalate}
}

// ActionEdit is one staged resolution for a discrepancy row.
type ActionEdit struct {
	Action          string
	Notes           string
	SoldReferenceID string
}

func (e ActionEdit) missing() (MissingAction, string, error) {
	action := MissingAction(strings.TrimSpace(e.Action))
	if !action.IsValid() {
		return "", "", fmt.Errorf("%w %q", ErrUnknownAction, e.Action)
	}
	ref := strings.TrimSpace(e.SoldReferenceID)
	if !action.IsSale() {
		return action, "", nil
	}
	if ref == "" {
		return "", "", ErrSoldReferenceRequired
	}
	return action, ref, nil
}

func (e ActionEdit) unregistered() (UnregisteredAction, error) {
	action := UnregisteredAction(strings.TrimSpace(e.Action))
	if !action.IsValid() {
		return "", fmt.Errorf("%w %q", ErrUnknownAction, e.Action)
	}
	return action, nil
}

// StagedActions buffers unsaved resolutions keyed by item id: snapshot item
// ids in Missing, scan ids in Unregistered.
type StagedActions struct {
	Missing      map[string]ActionEdit
	Unregistered map[string]ActionEdit
}

func (s StagedActions) IsEmpty() bool {
	return len(s.Missing) == 0 && len(s.Unregistered) == 0
}

func (s StagedActions) Len() int {
	return len(s.Missing) + len(s.Unregistered)
}

// Validate checks every staged edit against its vocabulary without touching
// any row. The first failure is reported with its item id.
func (s StagedActions) Validate() error {
	for _, id := range sortedKeys(s.Missing) {
		if _, _, err := s.Missing[id].missing(); err != nil {
			return &ActionError{ItemID: id, Err: err}
		}
	}
	for _, id := range sortedKeys(s.Unregistered) {
		if _, err := s.Unregistered[id].unregistered(); err != nil {
			return &ActionError{ItemID: id, Err: err}
		}
	}
	return nil
}

func (s StagedActions) MissingIDs() []string {
	return sortedKeys(s.Missing)
}

func (s StagedActions) UnregisteredIDs() []string {
	return sortedKeys(s.Unregistered)
}

// ActionError ties a resolution failure to the row it was staged for.
type ActionError struct {
	ItemID string
	Err    error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("item %s: %v", e.ItemID, e.Err)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

func sortedKeys(m map[string]ActionEdit) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
