package application

import (
	"context"
	"fmt"
	"strings"

	"github.com/wms-platform/opname-service/internal/domain"
	"github.com/wms-platform/opname-service/pkg/errors"
	"github.com/wms-platform/opname-service/pkg/logging"
	mongopkg "github.com/wms-platform/opname-service/pkg/mongodb"
)

// QueryService serves the session registry and read models
type QueryService struct {
	store  domain.SessionStore
	cache  RegistryCache
	logger *logging.Logger
}

func NewQueryService(store domain.SessionStore, cache RegistryCache, logger *logging.Logger) *QueryService {
	return &QueryService{store: store, cache: cache, logger: logger}
}

// ListSessions returns one page of sessions, newest first.
func (q *QueryService) ListSessions(ctx context.Context, query ListSessionsQuery) (*SessionListDTO, error) {
	filter := domain.SessionFilter{
		Status:      domain.Status(strings.TrimSpace(query.Status)),
		SessionType: domain.SessionType(strings.TrimSpace(query.SessionType)),
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, errors.ErrValidation(fmt.Sprintf("unknown status %q", query.Status))
	}
	if filter.SessionType != "" && !filter.SessionType.IsValid() {
		return nil, mapError(domain.ErrInvalidSessionType, dependencyStore)
	}
	page := (&mongopkg.Pagination{Page: int64(query.Page), PageSize: int64(query.PageSize)}).Normalize()

	key := fmt.Sprintf("%s:%s:%d:%d", filter.Status, filter.SessionType, page.Page, page.PageSize)
	cacheable := false
	var generation int64
	if q.cache != nil {
		cached, gen, err := q.cache.GetSessionList(ctx, key)
		switch {
		case err != nil:
			q.logger.WithContext(ctx).Warn("Session registry cache read failed", "error", err)
		case cached != nil:
			return cached, nil
		default:
			cacheable, generation = true, gen
		}
	}

	sessions, total, err := q.store.ListSessions(ctx, filter, page.Skip(), page.Limit())
	if err != nil {
		q.logger.WithContext(ctx).Error("Failed to list sessions", "error", err)
		return nil, mapError(err, dependencyStore)
	}

	out := &SessionListDTO{
		Sessions: make([]SessionDTO, 0, len(sessions)),
		Total:    total,
		Page:     int(page.Page),
		PageSize: int(page.PageSize),
	}
	for _, s := range sessions {
		out.Sessions = append(out.Sessions, *ToSessionDTO(s))
	}

	if cacheable {
		if err := q.cache.SetSessionList(ctx, key, generation, out); err != nil {
			q.logger.WithContext(ctx).Warn("Session registry cache write failed", "error", err)
		}
	}
	return out, nil
}

// GetSession returns a session with every snapshot and scan row.
func (q *QueryService) GetSession(ctx context.Context, sessionID string) (*SessionDetailDTO, error) {
	session, err := q.store.FindSession(ctx, sessionID)
	if err != nil {
		return nil, mapError(err, dependencyStore)
	}
	items, err := q.store.ListSnapshotItems(ctx, sessionID, "")
	if err != nil {
		return nil, mapError(err, dependencyStore)
	}
	scans, err := q.store.ListScannedItems(ctx, sessionID, "")
	if err != nil {
		return nil, mapError(err, dependencyStore)
	}
	return &SessionDetailDTO{
		SessionDTO:    *ToSessionDTO(session),
		SnapshotItems: toSnapshotItemDTOs(items),
		ScannedItems:  toScannedItemDTOs(scans),
	}, nil
}

// GetDiscrepancies returns the missing and unregistered worklists. It is
// readable in every status.
func (q *QueryService) GetDiscrepancies(ctx context.Context, sessionID string) (*DiscrepanciesDTO, error) {
	session, err := q.store.FindSession(ctx, sessionID)
	if err != nil {
		return nil, mapError(err, dependencyStore)
	}
	missing, err := q.store.ListSnapshotItems(ctx, sessionID, domain.ScanResultMissing)
	if err != nil {
		return nil, mapError(err, dependencyStore)
	}
	unregistered, err := q.store.ListScannedItems(ctx, sessionID, domain.ScanResultUnregistered)
	if err != nil {
		return nil, mapError(err, dependencyStore)
	}

	out := &DiscrepanciesDTO{
		SessionID:              session.SessionID,
		Status:                 string(session.Status),
		Missing:                toSnapshotItemDTOs(missing),
		Unregistered:           toScannedItemDTOs(unregistered),
		UnresolvedMissing:      countUnresolvedItems(missing),
		UnresolvedUnregistered: countUnresolvedScans(unregistered),
	}
	for _, a := range domain.MissingActions() {
		out.MissingActions = append(out.MissingActions, string(a))
	}
	for _, a := range domain.UnregisteredActions() {
		out.UnregisteredActions = append(out.UnregisteredActions, string(a))
	}
	return out, nil
}

// VerifyCounters recounts the child rows and compares them with the stored
// counters.
func (q *QueryService) VerifyCounters(ctx context.Context, sessionID string) (*VerificationDTO, error) {
	session, err := q.store.FindSession(ctx, sessionID)
	if err != nil {
		return nil, mapError(err, dependencyStore)
	}
	recounted, err := q.store.Recount(ctx, sessionID)
	if err != nil {
		return nil, mapError(err, dependencyStore)
	}
	return &VerificationDTO{
		SessionID:  session.SessionID,
		Status:     string(session.Status),
		Stored:     session.Counters,
		Recounted:  recounted,
		Consistent: recounted == session.Counters,
		Balanced:   session.Counters.Balanced(),
	}, nil
}

// VerifyAll recounts every session. It stops at the first store failure.
func (q *QueryService) VerifyAll(ctx context.Context) ([]*VerificationDTO, error) {
	ids, err := q.store.ListSessionIDs(ctx)
	if err != nil {
		return nil, mapError(err, dependencyStore)
	}
	out := make([]*VerificationDTO, 0, len(ids))
	for _, id := range ids {
		v, err := q.VerifyCounters(ctx, id)
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
	return out, nil
}
