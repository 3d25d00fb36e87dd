package mongodb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wms-platform/opname-service/internal/domain"
	mongopkg "github.com/wms-platform/opname-service/pkg/mongodb"
	"github.com/wms-platform/opname-service/pkg/resilience"
)

const UnitsCollection = "units"

// DefaultExpectedStatuses are the stock statuses of units that should be on
// the shelf.
var DefaultExpectedStatuses = []string{"available", "reserved"}

type unitDocument struct {
	UnitID       string          `bson:"_id"`
	IMEI         string          `bson:"imei"`
	ProductLabel string          `bson:"productLabel"`
	SellingPrice decimal.Decimal `bson:"sellingPrice"`
	CostPrice    decimal.Decimal `bson:"costPrice"`
	StockStatus  string          `bson:"stockStatus"`
}

// UnitSource reads the inventory units collection. Reads go through a
// circuit breaker so an unhealthy inventory database fails fast; network
// errors and timeouts are retried with backoff while the breaker is closed.
type UnitSource struct {
	units    *mongopkg.Collection
	statuses []string
	breaker  *resilience.CircuitBreaker
	retry    *resilience.RetryConfig
}

func NewUnitSource(client *mongopkg.Client, logger *slog.Logger, statuses ...string) *UnitSource {
	if len(statuses) == 0 {
		statuses = DefaultExpectedStatuses
	}
	return &UnitSource{
		units:    client.Collection(UnitsCollection),
		statuses: statuses,
		breaker:  resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig("unit-source"), logger),
		retry:    snapshotRetry(),
	}
}

func snapshotRetry() *resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig()
	cfg.Retryable = func(err error) bool {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return false
		}
		return mongo.IsNetworkError(err) || mongo.IsTimeout(err)
	}
	return cfg
}

func (u *UnitSource) ListExpectedUnits(ctx context.Context) ([]domain.ExpectedUnit, error) {
	var units []domain.ExpectedUnit
	err := resilience.Retry(ctx, u.retry, func() error {
		var err error
		units, err = u.listOnce(ctx)
		return err
	})
	return units, err
}

func (u *UnitSource) listOnce(ctx context.Context) ([]domain.ExpectedUnit, error) {
	return resilience.Call(ctx, u.breaker, func() ([]domain.ExpectedUnit, error) {
		var docs []unitDocument
		opts := options.Find().SetSort(mongopkg.SortAscending("imei"))
		if err := u.units.FindAll(ctx, bson.M{"stockStatus": bson.M{"$in": u.statuses}}, &docs, opts); err != nil {
			return nil, fmt.Errorf("failed to read expected units: %w", err)
		}
		units := make([]domain.ExpectedUnit, 0, len(docs))
		for _, d := range docs {
			units = append(units, domain.ExpectedUnit{
				UnitID:       d.UnitID,
				IMEI:         d.IMEI,
				ProductLabel: d.ProductLabel,
				SellingPrice: d.SellingPrice,
				CostPrice:    d.CostPrice,
				StockStatus:  d.StockStatus,
			})
		}
		return units, nil
	})
}

var _ domain.UnitSource = (*UnitSource)(nil)
