package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wms-platform/opname-service/internal/domain"
	mongopkg "github.com/wms-platform/opname-service/pkg/mongodb"
	"github.com/wms-platform/opname-service/pkg/outbox"
)

// sessionTx issues every call on the transaction's session context
type sessionTx struct {
	store *SessionStore
}

// scanDocument keeps the batch position so scans sharing a timestamp list
// in submission order.
type scanDocument struct {
	domain.ScannedItem `bson:",inline"`
	Seq                int `bson:"seq"`
}

func (t *sessionTx) CreateSession(ctx context.Context, session *domain.Session, items []*domain.SnapshotItem) error {
	if _, err := t.store.sessions.InsertOne(ctx, session); err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	if len(items) == 0 {
		return nil
	}
	docs := make([]interface{}, len(items))
	for i, item := range items {
		docs[i] = item
	}
	if _, err := t.store.items.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("failed to insert snapshot items: %w", err)
	}
	return nil
}

func (t *sessionTx) BeginWrite(ctx context.Context, sessionID string) (*domain.Session, error) {
	var session domain.Session
	err := t.store.sessions.FindOneAndUpdate(ctx,
		bson.M{"_id": sessionID},
		bson.M{"$inc": bson.M{"version": 1}},
		&session,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to begin session write: %w", err)
	}
	return &session, nil
}

func (t *sessionTx) SaveSession(ctx context.Context, session *domain.Session) error {
	set := bson.M{
		"status":            session.Status,
		"totalExpected":     session.TotalExpected,
		"totalScanned":      session.TotalScanned,
		"totalMatch":        session.TotalMatch,
		"totalMissing":      session.TotalMissing,
		"totalUnregistered": session.TotalUnregistered,
		"updatedAt":         session.UpdatedAt,
	}
	if session.CompletedAt != nil {
		set["completedBy"] = session.CompletedBy
		set["completedAt"] = session.CompletedAt
	}
	if session.LockedAt != nil {
		set["approvedBy"] = session.ApprovedBy
		set["approvedAt"] = session.ApprovedAt
		set["lockedAt"] = session.LockedAt
	}

	result, err := t.store.sessions.UpdateOne(ctx, bson.M{"_id": session.SessionID}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	if result.MatchedCount == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (t *sessionTx) FindSnapshotItemsByIMEI(ctx context.Context, sessionID string, imeis []string) (map[string]*domain.SnapshotItem, error) {
	items, err := findSnapshotItems(ctx, t.store.items, bson.M{
		"sessionId": sessionID,
		"imei":      bson.M{"$in": imeis},
	})
	if err != nil {
		return nil, err
	}
	out := make(map[string]*domain.SnapshotItem, len(items))
	for _, item := range items {
		out[item.IMEI] = item
	}
	return out, nil
}

func (t *sessionTx) FindScannedIMEIs(ctx context.Context, sessionID string, imeis []string) (map[string]bool, error) {
	var docs []struct {
		IMEI string `bson:"imei"`
	}
	err := t.store.scans.FindAll(ctx,
		bson.M{"sessionId": sessionID, "imei": bson.M{"$in": imeis}},
		&docs,
		options.Find().SetProjection(bson.M{"imei": 1}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find scanned identifiers: %w", err)
	}
	out := make(map[string]bool, len(docs))
	for _, d := range docs {
		out[d.IMEI] = true
	}
	return out, nil
}

func (t *sessionTx) SetSnapshotResult(ctx context.Context, sessionID string, itemIDs []string, result domain.ScanResult) error {
	if len(itemIDs) == 0 {
		return nil
	}
	_, err := t.store.items.UpdateMany(ctx,
		bson.M{"sessionId": sessionID, "_id": bson.M{"$in": itemIDs}},
		bson.M{"$set": bson.M{"scanResult": result}},
	)
	if err != nil {
		return fmt.Errorf("failed to update snapshot results: %w", err)
	}
	return nil
}

func (t *sessionTx) InsertScans(ctx context.Context, scans []*domain.ScannedItem) error {
	if len(scans) == 0 {
		return nil
	}
	docs := make([]interface{}, len(scans))
	for i, scan := range scans {
		docs[i] = scanDocument{ScannedItem: *scan, Seq: i}
	}
	if _, err := t.store.scans.InsertMany(ctx, docs); err != nil {
		if mongopkg.IsDuplicateKey(err) {
			return domain.ErrDuplicateScan
		}
		return fmt.Errorf("failed to insert scans: %w", err)
	}
	return nil
}

func (t *sessionTx) FindScan(ctx context.Context, sessionID, scanID string) (*domain.ScannedItem, error) {
	var scan domain.ScannedItem
	err := t.store.scans.FindOne(ctx, bson.M{"_id": scanID, "sessionId": sessionID}, &scan)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrScanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find scan: %w", err)
	}
	return &scan, nil
}

func (t *sessionTx) DeleteScan(ctx context.Context, sessionID, scanID string) error {
	result, err := t.store.scans.DeleteOne(ctx, bson.M{"_id": scanID, "sessionId": sessionID})
	if err != nil {
		return fmt.Errorf("failed to delete scan: %w", err)
	}
	if result.DeletedCount == 0 {
		return domain.ErrScanNotFound
	}
	return nil
}

func (t *sessionTx) FindSnapshotItems(ctx context.Context, sessionID string, itemIDs []string) (map[string]*domain.SnapshotItem, error) {
	items, err := findSnapshotItems(ctx, t.store.items, bson.M{
		"sessionId": sessionID,
		"_id":       bson.M{"$in": itemIDs},
	})
	if err != nil {
		return nil, err
	}
	out := make(map[string]*domain.SnapshotItem, len(items))
	for _, item := range items {
		out[item.ItemID] = item
	}
	return out, nil
}

func (t *sessionTx) FindScans(ctx context.Context, sessionID string, scanIDs []string) (map[string]*domain.ScannedItem, error) {
	scans, err := findScannedItems(ctx, t.store.scans, bson.M{
		"sessionId": sessionID,
		"_id":       bson.M{"$in": scanIDs},
	})
	if err != nil {
		return nil, err
	}
	out := make(map[string]*domain.ScannedItem, len(scans))
	for _, scan := range scans {
		out[scan.ScanID] = scan
	}
	return out, nil
}

func (t *sessionTx) SaveSnapshotActions(ctx context.Context, items []*domain.SnapshotItem) error {
	for _, item := range items {
		update := bson.M{
			"$set": bson.M{
				"actionTaken": item.ActionTaken,
				"actionNotes": item.ActionNotes,
				"actionedBy":  item.ActionedBy,
				"actionedAt":  item.ActionedAt,
			},
		}
		if item.SoldReferenceID != "" {
			update["$set"].(bson.M)["soldReferenceId"] = item.SoldReferenceID
		} else {
			update["$unset"] = bson.M{"soldReferenceId": ""}
		}
		if _, err := t.store.items.UpdateOne(ctx, bson.M{"_id": item.ItemID, "sessionId": item.SessionID}, update); err != nil {
			return fmt.Errorf("failed to save action for item %s: %w", item.ItemID, err)
		}
	}
	return nil
}

func (t *sessionTx) SaveScanActions(ctx context.Context, scans []*domain.ScannedItem) error {
	for _, scan := range scans {
		update := bson.M{"$set": bson.M{
			"actionTaken": scan.ActionTaken,
			"actionNotes": scan.ActionNotes,
			"actionedBy":  scan.ActionedBy,
			"actionedAt":  scan.ActionedAt,
		}}
		if _, err := t.store.scans.UpdateOne(ctx, bson.M{"_id": scan.ScanID, "sessionId": scan.SessionID}, update); err != nil {
			return fmt.Errorf("failed to save action for scan %s: %w", scan.ScanID, err)
		}
	}
	return nil
}

func (t *sessionTx) ListDiscrepancies(ctx context.Context, sessionID string) ([]*domain.SnapshotItem, []*domain.ScannedItem, error) {
	missing, err := findSnapshotItems(ctx, t.store.items, rowFilter(sessionID, domain.ScanResultMissing))
	if err != nil {
		return nil, nil, err
	}
	unregistered, err := findScannedItems(ctx, t.store.scans, rowFilter(sessionID, domain.ScanResultUnregistered))
	if err != nil {
		return nil, nil, err
	}
	return missing, unregistered, nil
}

func (t *sessionTx) AppendEvents(ctx context.Context, events ...domain.DomainEvent) error {
	outboxEvents := make([]*outbox.Event, 0, len(events))
	for _, event := range events {
		ce, err := toCloudEvent(ctx, t.store.eventFactory, event)
		if err != nil {
			return err
		}
		oe, err := outbox.NewEvent(event.AggregateID(), aggregateType, topic, ce)
		if err != nil {
			return fmt.Errorf("failed to create outbox event: %w", err)
		}
		outboxEvents = append(outboxEvents, oe)
	}
	return t.store.outboxRepo.SaveAll(ctx, outboxEvents)
}

var _ domain.SessionTx = (*sessionTx)(nil)
