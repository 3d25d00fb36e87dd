package domain

import "fmt"

// AuthorizeLock decides whether actor may lock session. It reads nothing
// but its arguments. An empty approverRoles falls back to DefaultApproverRoles.
func AuthorizeLock(actor Actor, session *Session, approverRoles ...string) error {
	if err := actor.Validate(); err != nil {
		return err
	}
	if len(approverRoles) == 0 {
		approverRoles = DefaultApproverRoles
	}
	if !actor.HasAnyRole(approverRoles...) {
		return ErrNotApprover
	}
	return session.CanResolve()
}

// UnresolvedError lists the rows that still block a lock.
type UnresolvedError struct {
	MissingIDs      []string
	UnregisteredIDs []string
}

func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("%s: %d missing and %d unregistered items have no action",
		ErrUnresolvedDiscrepancies, len(e.MissingIDs), len(e.UnregisteredIDs))
}

func (e *UnresolvedError) Unwrap() error {
	return ErrUnresolvedDiscrepancies
}

// CheckResolution requires every missing snapshot item and every unregistered
// scan to carry an action. Rows that are not discrepancies are ignored.
func CheckResolution(items []*SnapshotItem, scans []*ScannedItem) error {
	var unresolved UnresolvedError
	for _, item := range items {
		if !item.IsResolved() {
			unresolved.MissingIDs = append(unresolved.MissingIDs, item.ItemID)
		}
	}
	for _, scan := range scans {
		if !scan.IsResolved() {
			unresolved.UnregisteredIDs = append(unresolved.UnregisteredIDs, scan.ScanID)
		}
	}
	if len(unresolved.MissingIDs) == 0 && len(unresolved.UnregisteredIDs) == 0 {
		return nil
	}
	return &unresolved
}
