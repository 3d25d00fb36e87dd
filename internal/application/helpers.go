package application

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/wms-platform/opname-service/internal/domain"
)

// loadClassifier reads only the snapshot rows and prior scans that the
// candidate identifiers can touch.
func loadClassifier(ctx context.Context, tx domain.SessionTx, sessionID string, candidates []string) (*domain.ScanClassifier, error) {
	if len(candidates) == 0 {
		return domain.NewScanClassifier(nil, nil), nil
	}
	scanned, err := tx.FindScannedIMEIs(ctx, sessionID, candidates)
	if err != nil {
		return nil, err
	}
	snapshot, err := tx.FindSnapshotItemsByIMEI(ctx, sessionID, candidates)
	if err != nil {
		return nil, err
	}
	return domain.NewScanClassifier(snapshot, scanned), nil
}

// acceptScans persists accepted classifications, flips matched snapshot rows
// and saves the adjusted counters. Scans are returned in input order.
func (s *OpnameService) acceptScans(ctx context.Context, tx domain.SessionTx, session *domain.Session, actor domain.Actor, accepted []domain.Classification) ([]*domain.ScannedItem, error) {
	now := s.now()
	scans := make([]*domain.ScannedItem, 0, len(accepted))
	var matched []string
	for _, c := range accepted {
		scan := domain.NewScannedItem(session.SessionID, c, actor.ID, now)
		if scan.ItemID != "" {
			matched = append(matched, scan.ItemID)
		}
		scans = append(scans, scan)
		session.ApplyScanDelta(domain.ScanDelta(scan.ScanResult), now)
	}

	if err := tx.InsertScans(ctx, scans); err != nil {
		return nil, err
	}
	if len(matched) > 0 {
		if err := tx.SetSnapshotResult(ctx, session.SessionID, matched, domain.ScanResultMatch); err != nil {
			return nil, err
		}
	}
	if err := tx.SaveSession(ctx, session); err != nil {
		return nil, err
	}
	return scans, nil
}

// applyStaged writes every staged edit or none. Unknown ids fail the call.
func (s *OpnameService) applyStaged(ctx context.Context, tx domain.SessionTx, session *domain.Session, actor domain.Actor, staged domain.StagedActions, now time.Time) error {
	if ids := staged.MissingIDs(); len(ids) > 0 {
		items, err := tx.FindSnapshotItems(ctx, session.SessionID, ids)
		if err != nil {
			return err
		}
		updated := make([]*domain.SnapshotItem, 0, len(ids))
		for _, id := range ids {
			item, ok := items[id]
			if !ok {
				return &domain.ActionError{ItemID: id, Err: domain.ErrItemNotFound}
			}
			if err := item.ApplyAction(staged.Missing[id], actor.ID, now); err != nil {
				return &domain.ActionError{ItemID: id, Err: err}
			}
			updated = append(updated, item)
		}
		if err := tx.SaveSnapshotActions(ctx, updated); err != nil {
			return err
		}
	}

	if ids := staged.UnregisteredIDs(); len(ids) > 0 {
		scans, err := tx.FindScans(ctx, session.SessionID, ids)
		if err != nil {
			return err
		}
		updated := make([]*domain.ScannedItem, 0, len(ids))
		for _, id := range ids {
			scan, ok := scans[id]
			if !ok {
				return &domain.ActionError{ItemID: id, Err: domain.ErrItemNotFound}
			}
			if err := scan.ApplyAction(staged.Unregistered[id], actor.ID, now); err != nil {
				return &domain.ActionError{ItemID: id, Err: err}
			}
			updated = append(updated, scan)
		}
		if err := tx.SaveScanActions(ctx, updated); err != nil {
			return err
		}
	}
	return nil
}

func outcomeMessage(c domain.Classification) string {
	switch c.Outcome {
	case domain.OutcomeMatch:
		return "matched: " + c.Item.ProductLabel
	case domain.OutcomeUnregistered:
		return "not expected in snapshot"
	case domain.OutcomeDuplicate:
		return "already scanned in this session"
	default:
		return "not a valid identifier"
	}
}

func (s *BulkSummaryDTO) add(o domain.LineOutcome) {
	s.Total++
	switch o {
	case domain.OutcomeMatch:
		s.Match++
		s.Accepted++
	case domain.OutcomeUnregistered:
		s.Unregistered++
		s.Accepted++
	case domain.OutcomeDuplicate:
		s.Duplicate++
	case domain.OutcomeInvalid:
		s.Invalid++
	}
}

func countUnresolvedItems(items []*domain.SnapshotItem) int {
	n := 0
	for _, i := range items {
		if !i.IsResolved() {
			n++
		}
	}
	return n
}

func countUnresolvedScans(scans []*domain.ScannedItem) int {
	n := 0
	for _, sc := range scans {
		if !sc.IsResolved() {
			n++
		}
	}
	return n
}

func lockRejectionReason(err error) string {
	switch {
	case stderrors.Is(err, domain.ErrNotApprover), stderrors.Is(err, domain.ErrNotAuthenticated):
		return "forbidden"
	case stderrors.Is(err, domain.ErrUnresolvedDiscrepancies):
		return "unresolved"
	case stderrors.Is(err, domain.ErrSessionNotCompleted), stderrors.Is(err, domain.ErrSessionLocked):
		return "status"
	case stderrors.Is(err, domain.ErrUnknownAction), stderrors.Is(err, domain.ErrSoldReferenceRequired),
		stderrors.Is(err, domain.ErrItemNotFound), stderrors.Is(err, domain.ErrNotDiscrepancy):
		return "invalid_action"
	default:
		return "error"
	}
}

// lockSession takes the optional per-session lock. A lock failure only costs
// throughput, so it is logged and the operation proceeds.
func (s *OpnameService) lockSession(ctx context.Context, sessionID string) func(context.Context) {
	if s.locker == nil {
		return func(context.Context) {}
	}
	unlock, err := s.locker.Lock(ctx, sessionID)
	if err != nil {
		s.logger.WithContext(ctx).WithSession(sessionID).Warn("Proceeding without session lock", "error", err)
		return func(context.Context) {}
	}
	return unlock
}

func (s *OpnameService) invalidateRegistry(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.WithContext(ctx).Warn("Failed to invalidate session registry cache", "error", err)
	}
}

func (s *OpnameService) auditActions(ctx context.Context, sessionID string, actor domain.Actor, staged domain.StagedActions) {
	for _, id := range staged.MissingIDs() {
		edit := staged.Missing[id]
		s.logger.Audit(ctx, "discrepancy.resolved", resourceSession, sessionID, actor.ID, map[string]any{
			"itemId":          id,
			"worklist":        "missing",
			"action":          edit.Action,
			"soldReferenceId": edit.SoldReferenceID,
		})
	}
	for _, id := range staged.UnregisteredIDs() {
		s.logger.Audit(ctx, "discrepancy.resolved", resourceSession, sessionID, actor.ID, map[string]any{
			"scanId":   id,
			"worklist": "unregistered",
			"action":   staged.Unregistered[id].Action,
		})
	}
}
