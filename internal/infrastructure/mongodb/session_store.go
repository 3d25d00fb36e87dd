package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wms-platform/opname-service/internal/domain"
	"github.com/wms-platform/opname-service/pkg/cloudevents"
	mongopkg "github.com/wms-platform/opname-service/pkg/mongodb"
	"github.com/wms-platform/opname-service/pkg/outbox"
	outboxMongo "github.com/wms-platform/opname-service/pkg/outbox/mongodb"
)

const (
	SessionsCollection      = "opname_sessions"
	SnapshotItemsCollection = "opname_snapshot_items"
	ScannedItemsCollection  = "opname_scanned_items"
)

// SessionStore implements domain.SessionStore on MongoDB. Every write runs in
// a multi-document transaction together with its outbox events.
type SessionStore struct {
	client       *mongopkg.Client
	sessions     *mongopkg.Collection
	items        *mongopkg.Collection
	scans        *mongopkg.Collection
	outboxRepo   outbox.Repository
	eventFactory *cloudevents.EventFactory
}

func NewSessionStore(client *mongopkg.Client, eventFactory *cloudevents.EventFactory) *SessionStore {
	return &SessionStore{
		client:       client,
		sessions:     client.Collection(SessionsCollection),
		items:        client.Collection(SnapshotItemsCollection),
		scans:        client.Collection(ScannedItemsCollection),
		outboxRepo:   outboxMongo.NewOutboxRepository(client),
		eventFactory: eventFactory,
	}
}

// EnsureIndexes creates the lookup indexes and the per-session uniqueness
// constraints on identifiers.
func (s *SessionStore) EnsureIndexes(ctx context.Context) error {
	if err := s.sessions.CreateIndexes(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "startedAt", Value: -1}, {Key: "_id", Value: -1}},
			Options: options.Index().SetName("idx_startedAt"),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "startedAt", Value: -1}},
			Options: options.Index().SetName("idx_status_startedAt"),
		},
		{
			Keys:    bson.D{{Key: "sessionType", Value: 1}, {Key: "startedAt", Value: -1}},
			Options: options.Index().SetName("idx_sessionType_startedAt"),
		},
	}); err != nil {
		return fmt.Errorf("failed to create session indexes: %w", err)
	}

	if err := s.items.CreateIndexes(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "sessionId", Value: 1}, {Key: "imei", Value: 1}},
			Options: options.Index().SetName("uniq_sessionId_imei").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "sessionId", Value: 1}, {Key: "scanResult", Value: 1}},
			Options: options.Index().SetName("idx_sessionId_scanResult"),
		},
	}); err != nil {
		return fmt.Errorf("failed to create snapshot item indexes: %w", err)
	}

	if err := s.scans.CreateIndexes(ctx, []mongo.IndexModel{
		{
			// Backstop for concurrent scans of one identifier.
			Keys:    bson.D{{Key: "sessionId", Value: 1}, {Key: "imei", Value: 1}},
			Options: options.Index().SetName("uniq_sessionId_imei").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "sessionId", Value: 1}, {Key: "scannedAt", Value: 1}},
			Options: options.Index().SetName("idx_sessionId_scannedAt"),
		},
		{
			Keys:    bson.D{{Key: "sessionId", Value: 1}, {Key: "scanResult", Value: 1}},
			Options: options.Index().SetName("idx_sessionId_scanResult"),
		},
	}); err != nil {
		return fmt.Errorf("failed to create scanned item indexes: %w", err)
	}

	if repo, ok := s.outboxRepo.(*outboxMongo.OutboxRepository); ok {
		return repo.EnsureIndexes(ctx)
	}
	return nil
}

// OutboxRepository exposes the outbox written by this store for the relay
func (s *SessionStore) OutboxRepository() outbox.Repository {
	return s.outboxRepo
}

func (s *SessionStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx domain.SessionTx) error) error {
	return s.client.WithTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		return fn(sessCtx, &sessionTx{store: s})
	})
}

func (s *SessionStore) FindSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	var session domain.Session
	err := s.sessions.FindOne(ctx, bson.M{"_id": sessionID}, &session)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	return &session, nil
}

func (s *SessionStore) ListSessions(ctx context.Context, filter domain.SessionFilter, skip, limit int64) ([]*domain.Session, int64, error) {
	query := bson.M{}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if filter.SessionType != "" {
		query["sessionType"] = filter.SessionType
	}

	total, err := s.sessions.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count sessions: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "startedAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(skip).
		SetLimit(limit)
	sessions := []*domain.Session{}
	if err := s.sessions.FindAll(ctx, query, &sessions, opts); err != nil {
		return nil, 0, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, total, nil
}

func (s *SessionStore) ListSessionIDs(ctx context.Context) ([]string, error) {
	var docs []struct {
		ID string `bson:"_id"`
	}
	opts := options.Find().
		SetProjection(bson.M{"_id": 1}).
		SetSort(mongopkg.SortAscending("_id"))
	if err := s.sessions.FindAll(ctx, bson.M{}, &docs, opts); err != nil {
		return nil, fmt.Errorf("failed to list session ids: %w", err)
	}
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	return ids, nil
}

func (s *SessionStore) ListSnapshotItems(ctx context.Context, sessionID string, result domain.ScanResult) ([]*domain.SnapshotItem, error) {
	return findSnapshotItems(ctx, s.items, rowFilter(sessionID, result))
}

func (s *SessionStore) ListScannedItems(ctx context.Context, sessionID string, result domain.ScanResult) ([]*domain.ScannedItem, error) {
	return findScannedItems(ctx, s.scans, rowFilter(sessionID, result))
}

type resultCount struct {
	Result domain.ScanResult `bson:"_id"`
	Count  int               `bson:"count"`
}

// Recount groups the child rows of a session by scan result.
func (s *SessionStore) Recount(ctx context.Context, sessionID string) (domain.Counters, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"sessionId": sessionID}}},
		{{Key: "$group", Value: bson.M{"_id": "$scanResult", "count": bson.M{"$sum": 1}}}},
	}

	var c domain.Counters
	var itemCounts []resultCount
	if err := s.items.Aggregate(ctx, pipeline, &itemCounts); err != nil {
		return c, fmt.Errorf("failed to recount snapshot items: %w", err)
	}
	for _, rc := range itemCounts {
		c.TotalExpected += rc.Count
		switch rc.Result {
		case domain.ScanResultMatch:
			c.TotalMatch += rc.Count
		case domain.ScanResultMissing:
			c.TotalMissing += rc.Count
		}
	}

	var scanCounts []resultCount
	if err := s.scans.Aggregate(ctx, pipeline, &scanCounts); err != nil {
		return c, fmt.Errorf("failed to recount scanned items: %w", err)
	}
	for _, rc := range scanCounts {
		c.TotalScanned += rc.Count
		if rc.Result == domain.ScanResultUnregistered {
			c.TotalUnregistered += rc.Count
		}
	}
	return c, nil
}

func rowFilter(sessionID string, result domain.ScanResult) bson.M {
	filter := bson.M{"sessionId": sessionID}
	if result != "" {
		filter["scanResult"] = result
	}
	return filter
}

func findSnapshotItems(ctx context.Context, coll *mongopkg.Collection, filter bson.M) ([]*domain.SnapshotItem, error) {
	items := []*domain.SnapshotItem{}
	opts := options.Find().SetSort(mongopkg.SortAscending("imei"))
	if err := coll.FindAll(ctx, filter, &items, opts); err != nil {
		return nil, fmt.Errorf("failed to find snapshot items: %w", err)
	}
	return items, nil
}

func findScannedItems(ctx context.Context, coll *mongopkg.Collection, filter bson.M) ([]*domain.ScannedItem, error) {
	scans := []*domain.ScannedItem{}
	opts := options.Find().SetSort(bson.D{{Key: "scannedAt", Value: 1}, {Key: "seq", Value: 1}})
	if err := coll.FindAll(ctx, filter, &scans, opts); err != nil {
		return nil, fmt.Errorf("failed to find scanned items: %w", err)
	}
	return scans, nil
}

var _ domain.SessionStore = (*SessionStore)(nil)
