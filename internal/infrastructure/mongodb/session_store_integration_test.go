package mongodb

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/wms-platform/opname-service/internal/application"
	"github.com/wms-platform/opname-service/internal/domain"
	"github.com/wms-platform/opname-service/internal/testutil"
	"github.com/wms-platform/opname-service/pkg/cloudevents"
	apperrors "github.com/wms-platform/opname-service/pkg/errors"
	"github.com/wms-platform/opname-service/pkg/logging"
	mongopkg "github.com/wms-platform/opname-service/pkg/mongodb"
	outboxMongo "github.com/wms-platform/opname-service/pkg/outbox/mongodb"
	testinfra "github.com/wms-platform/opname-service/pkg/testing"
)

type SessionStoreIntegrationTestSuite struct {
	suite.Suite
	ctx       context.Context
	container *testinfra.MongoDBContainer
	raw       *mongo.Client
	client    *mongopkg.Client
	store     *SessionStore
	units     *UnitSource
	svc       *application.OpnameService
	queries   *application.QueryService
}

func TestSessionStoreIntegration(t *testing.T) {
	testinfra.SkipIfShort(t)
	suite.Run(t, new(SessionStoreIntegrationTestSuite))
}

func (s *SessionStoreIntegrationTestSuite) SetupSuite() {
	s.ctx = context.Background()

	container, err := testinfra.NewMongoDBContainer(s.ctx)
	s.Require().NoError(err)
	s.container = container

	raw, err := container.Connect(s.ctx)
	s.Require().NoError(err)
	s.raw = raw

	logger := logging.New(&logging.Config{Level: logging.LevelError, ServiceName: "opname-it", Output: io.Discard})
	cfg := mongopkg.DefaultConfig()
	cfg.Database = "opname_test"
	s.client = mongopkg.Wrap(raw, cfg, nil, logger)

	s.store = NewSessionStore(s.client, cloudevents.NewEventFactory("/opname-service"))
	s.Require().NoError(s.store.EnsureIndexes(s.ctx))
	s.units = NewUnitSource(s.client, logger.Logger)

	s.svc = application.NewOpnameService(s.store, s.units, logger)
	s.queries = application.NewQueryService(s.store, nil, logger)
}

func (s *SessionStoreIntegrationTestSuite) TearDownSuite() {
	if s.raw != nil {
		_ = s.raw.Disconnect(s.ctx)
	}
	if s.container != nil {
		s.Require().NoError(s.container.Close(s.ctx))
	}
}

func (s *SessionStoreIntegrationTestSuite) SetupTest() {
	db := s.client.Database()
	for _, name := range []string{SessionsCollection, SnapshotItemsCollection, ScannedItemsCollection, outboxMongo.CollectionName} {
		_, err := db.Collection(name).DeleteMany(s.ctx, bson.M{})
		s.Require().NoError(err)
	}
	_ = db.Collection(UnitsCollection).Drop(s.ctx)

	docs := []interface{}{}
	for _, u := range testutil.Units(4) {
		docs = append(docs, unitDocument{
			UnitID:       u.UnitID,
			IMEI:         u.IMEI,
			ProductLabel: u.ProductLabel,
			SellingPrice: u.SellingPrice,
			CostPrice:    u.CostPrice,
			StockStatus:  u.StockStatus,
		})
	}
	docs = append(docs, unitDocument{
		UnitID:       "unit-sold",
		IMEI:         testutil.IMEI(500),
		ProductLabel: "Sold Phone",
		SellingPrice: decimal.RequireFromString("1999.90"),
		StockStatus:  "sold",
	})
	_, err := db.Collection(UnitsCollection).InsertMany(s.ctx, docs)
	s.Require().NoError(err)
}

func (s *SessionStoreIntegrationTestSuite) TestUnitSource_FiltersByStatus() {
	units, err := s.units.ListExpectedUnits(s.ctx)
	s.Require().NoError(err)
	s.Len(units, 4)
	s.Equal(testutil.IMEI(1), units[0].IMEI)
	s.True(decimal.NewFromInt(1001).Equal(units[0].SellingPrice))
}

func (s *SessionStoreIntegrationTestSuite) TestLifecycle() {
	created, err := s.svc.CreateSession(s.ctx, application.CreateSessionCommand{Actor: testutil.Clerk, SessionType: "opening"})
	s.Require().NoError(err)
	id := created.SessionID
	s.Equal(4, created.Counters.TotalExpected)

	report, err := s.svc.RecordBulkScan(s.ctx, application.RecordBulkScanCommand{
		SessionID: id,
		Actor:     testutil.Clerk,
		Lines:     []string{testutil.IMEI(1), testutil.IMEI(2), testutil.IMEI(88), testutil.IMEI(1)},
	})
	s.Require().NoError(err)
	s.Equal(3, report.Summary.Accepted)
	s.Equal(1, report.Summary.Duplicate)

	_, err = s.svc.RecordScan(s.ctx, application.RecordScanCommand{SessionID: id, Actor: testutil.Clerk, IMEI: testutil.IMEI(2)})
	s.Require().Error(err)

	detail, err := s.queries.GetSession(s.ctx, id)
	s.Require().NoError(err)
	s.Require().Len(detail.ScannedItems, 3)
	s.Equal(testutil.IMEI(88), detail.ScannedItems[2].IMEI)

	v, err := s.queries.VerifyCounters(s.ctx, id)
	s.Require().NoError(err)
	s.True(v.Consistent)
	s.Equal(domain.Counters{TotalExpected: 4, TotalScanned: 3, TotalMatch: 2, TotalMissing: 2, TotalUnregistered: 1}, v.Recounted)

	_, err = s.svc.CompleteSession(s.ctx, application.CompleteSessionCommand{SessionID: id, Actor: testutil.Clerk})
	s.Require().NoError(err)

	d, err := s.queries.GetDiscrepancies(s.ctx, id)
	s.Require().NoError(err)
	s.Require().Len(d.Missing, 2)
	s.Require().Len(d.Unregistered, 1)

	_, err = s.svc.LockSession(s.ctx, application.LockSessionCommand{SessionID: id, Actor: testutil.Approver})
	s.Require().Error(err)

	locked, err := s.svc.LockSession(s.ctx, application.LockSessionCommand{
		SessionID: id,
		Actor:     testutil.Approver,
		Pending: domain.StagedActions{
			Missing: map[string]domain.ActionEdit{
				d.Missing[0].ItemID: {Action: "sold_marketplace", SoldReferenceID: "MP-778"},
				d.Missing[1].ItemID: {Action: "damaged"},
			},
			Unregistered: map[string]domain.ActionEdit{
				d.Unregistered[0].ScanID: {Action: "scan_error"},
			},
		},
	})
	s.Require().NoError(err)
	s.Equal("locked", locked.Status)

	stored, err := s.store.FindSession(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(domain.StatusLocked, stored.Status)
	s.Equal(testutil.Approver.ID, stored.ApprovedBy)

	events, err := s.store.OutboxRepository().FindByAggregateID(s.ctx, id)
	s.Require().NoError(err)
	s.Require().Len(events, 3)
	s.Equal(cloudevents.SessionCreated, events[0].EventType)
	s.Equal(cloudevents.SessionLocked, events[2].EventType)
}

func (s *SessionStoreIntegrationTestSuite) TestRetractScan() {
	created, err := s.svc.CreateSession(s.ctx, application.CreateSessionCommand{Actor: testutil.Clerk, SessionType: "adhoc"})
	s.Require().NoError(err)

	out, err := s.svc.RecordScan(s.ctx, application.RecordScanCommand{SessionID: created.SessionID, Actor: testutil.Clerk, IMEI: testutil.IMEI(3)})
	s.Require().NoError(err)

	after, err := s.svc.RetractScan(s.ctx, application.RetractScanCommand{SessionID: created.SessionID, Actor: testutil.Clerk, ScanID: out.ScanID})
	s.Require().NoError(err)
	s.Equal(created.Counters, after.Counters)

	missing, err := s.store.ListSnapshotItems(s.ctx, created.SessionID, domain.ScanResultMissing)
	s.Require().NoError(err)
	s.Len(missing, 4)
}

func (s *SessionStoreIntegrationTestSuite) TestUniqueScanIndex() {
	created, err := s.svc.CreateSession(s.ctx, application.CreateSessionCommand{Actor: testutil.Clerk, SessionType: "adhoc"})
	s.Require().NoError(err)

	unregistered := domain.Classification{IMEI: testutil.IMEI(9), Outcome: domain.OutcomeUnregistered}
	scan := domain.NewScannedItem(created.SessionID, unregistered, testutil.Clerk.ID, mongopkg.Now())
	err = s.store.RunInTx(s.ctx, func(ctx context.Context, tx domain.SessionTx) error {
		return tx.InsertScans(ctx, []*domain.ScannedItem{scan})
	})
	s.Require().NoError(err)

	again := domain.NewScannedItem(created.SessionID, unregistered, testutil.Clerk.ID, mongopkg.Now())
	err = s.store.RunInTx(s.ctx, func(ctx context.Context, tx domain.SessionTx) error {
		return tx.InsertScans(ctx, []*domain.ScannedItem{again})
	})
	s.ErrorIs(err, domain.ErrDuplicateScan)
}

func (s *SessionStoreIntegrationTestSuite) TestRetractScan_RevertsMatchedItem() {
	created, err := s.svc.CreateSession(s.ctx, application.CreateSessionCommand{Actor: testutil.Clerk, SessionType: "adhoc"})
	s.Require().NoError(err)

	out, err := s.svc.RecordScan(s.ctx, application.RecordScanCommand{SessionID: created.SessionID, Actor: testutil.Clerk, IMEI: testutil.IMEI(2)})
	s.Require().NoError(err)
	s.Require().NotEmpty(out.ItemID)

	stored, err := s.store.ListScannedItems(s.ctx, created.SessionID, "")
	s.Require().NoError(err)
	s.Require().Len(stored, 1)
	s.Equal(out.ItemID, stored[0].ItemID)

	_, err = s.svc.RetractScan(s.ctx, application.RetractScanCommand{SessionID: created.SessionID, Actor: testutil.Clerk, ScanID: out.ScanID})
	s.Require().NoError(err)

	matched, err := s.store.ListSnapshotItems(s.ctx, created.SessionID, domain.ScanResultMatch)
	s.Require().NoError(err)
	s.Empty(matched)
}

func (s *SessionStoreIntegrationTestSuite) TestCreateSession_RejectsDuplicateUnits() {
	_, err := s.client.Database().Collection(UnitsCollection).InsertMany(s.ctx, []interface{}{
		unitDocument{UnitID: "unit-dup", IMEI: testutil.IMEI(1), ProductLabel: "Copy", StockStatus: "available"},
		unitDocument{UnitID: "unit-blank", IMEI: "  ", ProductLabel: "Blank", StockStatus: "available"},
	})
	s.Require().NoError(err)

	_, err = s.svc.CreateSession(s.ctx, application.CreateSessionCommand{Actor: testutil.Clerk, SessionType: "opening"})
	s.Require().Error(err)
	appErr, ok := apperrors.AsAppError(err)
	s.Require().True(ok)
	s.Equal(http.StatusConflict, appErr.HTTPStatus)
	s.Equal(testutil.IMEI(1), appErr.Details["duplicateImeis"])
	s.Equal("unit-blank", appErr.Details["blankImeiUnits"])

	ids, err := s.store.ListSessionIDs(s.ctx)
	s.Require().NoError(err)
	s.Empty(ids)
}

func (s *SessionStoreIntegrationTestSuite) TestConcurrentScans_SameIdentifier() {
	created, err := s.svc.CreateSession(s.ctx, application.CreateSessionCommand{Actor: testutil.Clerk, SessionType: "adhoc"})
	s.Require().NoError(err)

	const writers = 8
	errs := make([]error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.svc.RecordScan(s.ctx, application.RecordScanCommand{
				SessionID: created.SessionID,
				Actor:     testutil.Clerk,
				IMEI:      testutil.IMEI(1),
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		s.True(stderrors.Is(err, domain.ErrDuplicateScan), "unexpected error: %v", err)
	}
	s.Equal(1, succeeded)

	v, err := s.queries.VerifyCounters(s.ctx, created.SessionID)
	s.Require().NoError(err)
	s.True(v.Consistent)
	s.Equal(domain.Counters{TotalExpected: 4, TotalScanned: 1, TotalMatch: 1, TotalMissing: 3}, v.Recounted)
}

func (s *SessionStoreIntegrationTestSuite) TestConcurrentScans_DistinctIdentifiers() {
	created, err := s.svc.CreateSession(s.ctx, application.CreateSessionCommand{Actor: testutil.Clerk, SessionType: "adhoc"})
	s.Require().NoError(err)

	const writers = 8
	errs := make([]error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.svc.RecordScan(s.ctx, application.RecordScanCommand{
				SessionID: created.SessionID,
				Actor:     testutil.Clerk,
				IMEI:      testutil.IMEI(i + 1),
			})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		s.NoError(err, fmt.Sprintf("writer %d", i))
	}

	v, err := s.queries.VerifyCounters(s.ctx, created.SessionID)
	s.Require().NoError(err)
	s.True(v.Consistent)
	s.Equal(writers, v.Recounted.TotalScanned)
	s.Equal(4, v.Recounted.TotalMatch)
	s.Equal(writers-4, v.Recounted.TotalUnregistered)
	s.Equal(0, v.Recounted.TotalMissing)
}
