package domain

import "strings"

// Role names understood by the lock gate
const (
	RoleApprover = "approver"
	RoleAdmin    = "admin"
)

// DefaultApproverRoles may lock sessions unless configured otherwise.
var DefaultApproverRoles = []string{RoleApprover, RoleAdmin}

// Actor is the authenticated user performing an operation. It is passed
// explicitly into every mutating command.
type Actor struct {
	ID    string
	Name  string
	Roles []string
}

func (a Actor) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return ErrNotAuthenticated
	}
	return nil
}

// HasAnyRole matches role names case-insensitively
func (a Actor) HasAnyRole(roles ...string) bool {
	for _, have := range a.Roles {
		for _, want := range roles {
			if strings.EqualFold(have, want) {
				return true
			}
		}
	}
	return false
}
