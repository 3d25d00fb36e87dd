package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/wms-platform/opname-service/internal/domain"
)

// StaticUnitSource serves a fixed unit list
type StaticUnitSource struct {
	mu    sync.Mutex
	units []domain.ExpectedUnit
	err   error
	Calls int
}

func NewStaticUnitSource(units ...domain.ExpectedUnit) *StaticUnitSource {
	return &StaticUnitSource{units: units}
}

func (s *StaticUnitSource) ListExpectedUnits(_ context.Context) ([]domain.ExpectedUnit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls++
	if s.err != nil {
		return nil, s.err
	}
	return append([]domain.ExpectedUnit(nil), s.units...), nil
}

// SetUnits swaps the live inventory; existing snapshots must not change.
func (s *StaticUnitSource) SetUnits(units ...domain.ExpectedUnit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.units = units
}

func (s *StaticUnitSource) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// IMEI returns a valid 15 digit identifier derived from n
func IMEI(n int) string {
	return fmt.Sprintf("3569380356%05d", n)
}

// Units builds n available units with identifiers IMEI(1)..IMEI(n)
func Units(n int) []domain.ExpectedUnit {
	units := make([]domain.ExpectedUnit, 0, n)
	for i := 1; i <= n; i++ {
		units = append(units, domain.ExpectedUnit{
			UnitID:       fmt.Sprintf("unit-%03d", i),
			IMEI:         IMEI(i),
			ProductLabel: fmt.Sprintf("Phone %d 128GB", i),
			SellingPrice: decimal.NewFromInt(int64(1000 + i)),
			CostPrice:    decimal.NewFromInt(int64(800 + i)),
			StockStatus:  "available",
		})
	}
	return units
}

var (
	Clerk    = domain.Actor{ID: "user-clerk", Name: "Store Clerk", Roles: []string{"Staff"}}
	Approver = domain.Actor{ID: "user-approver", Name: "Store Manager", Roles: []string{domain.RoleApprover}}
)
