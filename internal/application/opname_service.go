package application

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/wms-platform/opname-service/internal/domain"
	"github.com/wms-platform/opname-service/pkg/errors"
	"github.com/wms-platform/opname-service/pkg/logging"
	"github.com/wms-platform/opname-service/pkg/metrics"
	mongopkg "github.com/wms-platform/opname-service/pkg/mongodb"
)

const resourceSession = "opname_session"

// OpnameService runs the write side of a reconciliation session
type OpnameService struct {
	store         domain.SessionStore
	units         domain.UnitSource
	locker        SessionLocker
	cache         RegistryCache
	metrics       *metrics.Metrics
	logger        *logging.Logger
	approverRoles []string
	now           func() time.Time
}

// Option configures optional collaborators
type Option func(*OpnameService)

func WithSessionLocker(l SessionLocker) Option {
	return func(s *OpnameService) { s.locker = l }
}

func WithRegistryCache(c RegistryCache) Option {
	return func(s *OpnameService) { s.cache = c }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *OpnameService) { s.metrics = m }
}

// WithApproverRoles replaces the roles allowed to lock sessions
func WithApproverRoles(roles ...string) Option {
	return func(s *OpnameService) {
		if len(roles) > 0 {
			s.approverRoles = roles
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *OpnameService) { s.now = now }
}

func NewOpnameService(store domain.SessionStore, units domain.UnitSource, logger *logging.Logger, opts ...Option) *OpnameService {
	s := &OpnameService{
		store:         store,
		units:         units,
		logger:        logger,
		approverRoles: domain.DefaultApproverRoles,
		now:           mongopkg.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateSession snapshots the expected units and opens a draft session.
func (s *OpnameService) CreateSession(ctx context.Context, cmd CreateSessionCommand) (*SessionDTO, error) {
	if err := cmd.Actor.Validate(); err != nil {
		return nil, mapError(err, dependencyStore)
	}
	sessionType := domain.SessionType(strings.TrimSpace(cmd.SessionType))
	if !sessionType.IsValid() {
		return nil, mapError(domain.ErrInvalidSessionType, dependencyStore)
	}

	units, err := s.units.ListExpectedUnits(ctx)
	if err != nil {
		s.logger.WithContext(ctx).Error("Failed to read expected units", "error", err)
		return nil, errors.ErrServiceUnavailable(dependencyUnits).Wrap(err)
	}

	session, err := domain.NewSession(sessionType, cmd.Actor, strings.TrimSpace(cmd.Notes), len(units), s.now())
	if err != nil {
		return nil, mapError(err, dependencyStore)
	}
	items, err := domain.NewSnapshotItems(session.SessionID, units)
	if err != nil {
		s.logger.WithContext(ctx).Error("Expected units cannot be snapshotted", "units", len(units), "error", err)
		return nil, mapError(err, dependencyUnits)
	}

	err = s.store.RunInTx(ctx, func(ctx context.Context, tx domain.SessionTx) error {
		if err := tx.CreateSession(ctx, session, items); err != nil {
			return err
		}
		return tx.AppendEvents(ctx, domain.NewSessionCreatedEvent(session))
	})
	if err != nil {
		s.logger.WithContext(ctx).Error("Failed to create session", "snapshotItems", len(items), "error", err)
		return nil, mapError(err, dependencyStore)
	}

	s.invalidateRegistry(ctx)
	s.metrics.RecordSessionCreated(string(sessionType), len(items))
	s.logger.Audit(ctx, "session.created", resourceSession, session.SessionID, cmd.Actor.ID, map[string]any{
		"sessionType":   sessionType,
		"totalExpected": session.TotalExpected,
	})
	return ToSessionDTO(session), nil
}

// RecordScan accepts one identifier. Invalid and duplicate identifiers are
// rejected without any state change.
func (s *OpnameService) RecordScan(ctx context.Context, cmd RecordScanCommand) (*ScanOutcomeDTO, error) {
	if err := cmd.Actor.Validate(); err != nil {
		return nil, mapError(err, dependencyStore)
	}
	imei, err := domain.NormalizeIdentifier(cmd.IMEI)
	if err != nil {
		s.metrics.RecordScan("single", string(domain.OutcomeInvalid))
		return nil, mapError(err, dependencyStore)
	}

	unlock := s.lockSession(ctx, cmd.SessionID)
	defer unlock(ctx)

	var out *ScanOutcomeDTO
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx domain.SessionTx) error {
		out = nil
		session, err := tx.BeginWrite(ctx, cmd.SessionID)
		if err != nil {
			return err
		}
		if err := session.CanScan(); err != nil {
			return err
		}

		classifier, err := loadClassifier(ctx, tx, session.SessionID, []string{imei})
		if err != nil {
			return err
		}
		c := classifier.Classify(imei)
		if c.Outcome == domain.OutcomeDuplicate {
			return domain.ErrDuplicateScan
		}

		scans, err := s.acceptScans(ctx, tx, session, cmd.Actor, []domain.Classification{c})
		if err != nil {
			return err
		}
		out = &ScanOutcomeDTO{
			SessionID: session.SessionID,
			ScanID:    scans[0].ScanID,
			IMEI:      imei,
			Result:    string(c.Outcome),
			Message:   outcomeMessage(c),
			Counters:  session.Counters,
		}
		if c.Item != nil {
			out.ItemID = c.Item.ItemID
		}
		return nil
	})
	if err != nil {
		if stderrors.Is(err, domain.ErrDuplicateScan) {
			s.metrics.RecordScan("single", string(domain.OutcomeDuplicate))
		}
		return nil, mapError(err, dependencyStore)
	}

	s.metrics.RecordScan("single", out.Result)
	s.invalidateRegistry(ctx)
	return out, nil
}

// RecordBulkScan classifies every non-blank line in order. Invalid and
// duplicate lines are reported, never fatal; the accepted lines are written in
// one transaction.
func (s *OpnameService) RecordBulkScan(ctx context.Context, cmd RecordBulkScanCommand) (*BulkScanReportDTO, error) {
	if err := cmd.Actor.Validate(); err != nil {
		return nil, mapError(err, dependencyStore)
	}
	raw := cmd.Lines
	if len(raw) == 0 {
		raw = domain.SplitLines(cmd.Text)
	}
	lines := domain.NumberLines(raw)
	if len(lines) == 0 {
		return nil, mapError(domain.ErrEmptyBatch, dependencyStore)
	}
	candidates := domain.CandidateIdentifiers(lines)

	unlock := s.lockSession(ctx, cmd.SessionID)
	defer unlock(ctx)

	var report *BulkScanReportDTO
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx domain.SessionTx) error {
		report = nil
		session, err := tx.BeginWrite(ctx, cmd.SessionID)
		if err != nil {
			return err
		}
		if err := session.CanScan(); err != nil {
			return err
		}

		classifier, err := loadClassifier(ctx, tx, session.SessionID, candidates)
		if err != nil {
			return err
		}

		r := &BulkScanReportDTO{SessionID: session.SessionID, Lines: make([]BulkLineDTO, 0, len(lines))}
		var accepted []domain.Classification
		var acceptedAt []int
		for _, line := range lines {
			c := classifier.Classify(line.Raw)
			r.Lines = append(r.Lines, BulkLineDTO{
				Line:    line.Number,
				Input:   c.IMEI,
				Outcome: string(c.Outcome),
				Message: outcomeMessage(c),
			})
			r.Summary.add(c.Outcome)
			if c.Outcome.Accepted() {
				accepted = append(accepted, c)
				acceptedAt = append(acceptedAt, len(r.Lines)-1)
			}
		}

		if len(accepted) > 0 {
			scans, err := s.acceptScans(ctx, tx, session, cmd.Actor, accepted)
			if err != nil {
				return err
			}
			for i, idx := range acceptedAt {
				r.Lines[idx].ScanID = scans[i].ScanID
			}
		}
		r.Counters = session.Counters
		report = r
		return nil
	})
	if err != nil {
		s.logger.WithContext(ctx).WithSession(cmd.SessionID).Warn("Bulk scan failed", "lines", len(lines), "error", err)
		return nil, mapError(err, dependencyStore)
	}

	s.metrics.RecordBulkBatch(len(lines))
	for _, l := range report.Lines {
		s.metrics.RecordScan("bulk", l.Outcome)
	}
	s.invalidateRegistry(ctx)
	s.logger.WithContext(ctx).WithSession(cmd.SessionID).Info("Bulk scan recorded",
		"lines", report.Summary.Total,
		"accepted", report.Summary.Accepted,
		"duplicate", report.Summary.Duplicate,
		"invalid", report.Summary.Invalid,
	)
	return report, nil
}

// RetractScan deletes an accepted scan and reverts its effect on the snapshot
// and the counters.
func (s *OpnameService) RetractScan(ctx context.Context, cmd RetractScanCommand) (*SessionDTO, error) {
	if err := cmd.Actor.Validate(); err != nil {
		return nil, mapError(err, dependencyStore)
	}

	unlock := s.lockSession(ctx, cmd.SessionID)
	defer unlock(ctx)

	var out *domain.Session
	var retracted *domain.ScannedItem
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx domain.SessionTx) error {
		out, retracted = nil, nil
		session, err := tx.BeginWrite(ctx, cmd.SessionID)
		if err != nil {
			return err
		}
		if err := session.CanScan(); err != nil {
			return err
		}

		scan, err := tx.FindScan(ctx, session.SessionID, cmd.ScanID)
		if err != nil {
			return err
		}
		if err := tx.DeleteScan(ctx, session.SessionID, scan.ScanID); err != nil {
			return err
		}
		if scan.ScanResult == domain.ScanResultMatch && scan.ItemID != "" {
			if err := tx.SetSnapshotResult(ctx, session.SessionID, []string{scan.ItemID}, domain.ScanResultMissing); err != nil {
				return err
			}
		}

		session.ApplyScanDelta(domain.ScanDelta(scan.ScanResult).Negate(), s.now())
		if err := tx.SaveSession(ctx, session); err != nil {
			return err
		}
		out, retracted = session, scan
		return nil
	})
	if err != nil {
		return nil, mapError(err, dependencyStore)
	}

	s.invalidateRegistry(ctx)
	s.logger.Audit(ctx, "scan.retracted", resourceSession, out.SessionID, cmd.Actor.ID, map[string]any{
		"scanId":     retracted.ScanID,
		"imei":       retracted.IMEI,
		"scanResult": retracted.ScanResult,
	})
	return ToSessionDTO(out), nil
}

// CompleteSession closes scanning on a draft session with at least one scan.
func (s *OpnameService) CompleteSession(ctx context.Context, cmd CompleteSessionCommand) (*SessionDTO, error) {
	if err := cmd.Actor.Validate(); err != nil {
		return nil, mapError(err, dependencyStore)
	}

	var out *domain.Session
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx domain.SessionTx) error {
		out = nil
		session, err := tx.BeginWrite(ctx, cmd.SessionID)
		if err != nil {
			return err
		}
		if err := session.Complete(cmd.Actor, s.now()); err != nil {
			return err
		}
		if err := tx.SaveSession(ctx, session); err != nil {
			return err
		}
		if err := tx.AppendEvents(ctx, domain.NewSessionCompletedEvent(session)); err != nil {
			return err
		}
		out = session
		return nil
	})
	if err != nil {
		return nil, mapError(err, dependencyStore)
	}

	s.invalidateRegistry(ctx)
	s.metrics.RecordTransition(string(domain.StatusCompleted))
	s.logger.Audit(ctx, "session.completed", resourceSession, out.SessionID, cmd.Actor.ID, map[string]any{
		"totalScanned":      out.TotalScanned,
		"totalMissing":      out.TotalMissing,
		"totalUnregistered": out.TotalUnregistered,
	})
	return ToSessionDTO(out), nil
}

// ResolveDiscrepancies saves staged actions on a completed session. The call
// is all-or-nothing; a partial resolution of the worklists is fine.
func (s *OpnameService) ResolveDiscrepancies(ctx context.Context, cmd ResolveDiscrepanciesCommand) (*ResolutionResultDTO, error) {
	if err := cmd.Actor.Validate(); err != nil {
		return nil, mapError(err, dependencyStore)
	}
	if cmd.Staged.IsEmpty() {
		return nil, mapError(domain.ErrNoStagedActions, dependencyStore)
	}
	if err := cmd.Staged.Validate(); err != nil {
		return nil, mapError(err, dependencyStore)
	}

	var out *ResolutionResultDTO
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx domain.SessionTx) error {
		out = nil
		session, err := tx.BeginWrite(ctx, cmd.SessionID)
		if err != nil {
			return err
		}
		if err := session.CanResolve(); err != nil {
			return err
		}
		now := s.now()
		if err := s.applyStaged(ctx, tx, session, cmd.Actor, cmd.Staged, now); err != nil {
			return err
		}
		session.UpdatedAt = now
		if err := tx.SaveSession(ctx, session); err != nil {
			return err
		}

		missing, unregistered, err := tx.ListDiscrepancies(ctx, session.SessionID)
		if err != nil {
			return err
		}
		out = &ResolutionResultDTO{
			SessionID:              session.SessionID,
			SavedMissing:           len(cmd.Staged.Missing),
			SavedUnregistered:      len(cmd.Staged.Unregistered),
			UnresolvedMissing:      countUnresolvedItems(missing),
			UnresolvedUnregistered: countUnresolvedScans(unregistered),
		}
		return nil
	})
	if err != nil {
		return nil, mapError(err, dependencyStore)
	}

	s.invalidateRegistry(ctx)
	s.auditActions(ctx, cmd.SessionID, cmd.Actor, cmd.Staged)
	return out, nil
}

// LockSession approves a completed session once every discrepancy carries an
// action. Pending edits are saved in the same transaction; if the lock is
// refused they are discarded with it.
func (s *OpnameService) LockSession(ctx context.Context, cmd LockSessionCommand) (*SessionDTO, error) {
	if err := cmd.Actor.Validate(); err != nil {
		return nil, mapError(err, dependencyStore)
	}
	if err := cmd.Pending.Validate(); err != nil {
		return nil, mapError(err, dependencyStore)
	}

	var out *domain.Session
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx domain.SessionTx) error {
		out = nil
		session, err := tx.BeginWrite(ctx, cmd.SessionID)
		if err != nil {
			return err
		}
		if err := domain.AuthorizeLock(cmd.Actor, session, s.approverRoles...); err != nil {
			return err
		}

		now := s.now()
		if !cmd.Pending.IsEmpty() {
			if err := s.applyStaged(ctx, tx, session, cmd.Actor, cmd.Pending, now); err != nil {
				return err
			}
		}

		missing, unregistered, err := tx.ListDiscrepancies(ctx, session.SessionID)
		if err != nil {
			return err
		}
		if err := domain.CheckResolution(missing, unregistered); err != nil {
			return err
		}

		if err := session.Lock(cmd.Actor, now); err != nil {
			return err
		}
		if err := tx.SaveSession(ctx, session); err != nil {
			return err
		}
		if err := tx.AppendEvents(ctx, domain.NewSessionLockedEvent(session)); err != nil {
			return err
		}
		out = session
		return nil
	})
	if err != nil {
		s.metrics.RecordLockRejection(lockRejectionReason(err))
		s.logger.WithContext(ctx).WithSession(cmd.SessionID).Warn("Lock rejected", "actor", cmd.Actor.ID, "error", err)
		return nil, mapError(err, dependencyStore)
	}

	s.invalidateRegistry(ctx)
	s.metrics.RecordTransition(string(domain.StatusLocked))
	if !cmd.Pending.IsEmpty() {
		s.auditActions(ctx, out.SessionID, cmd.Actor, cmd.Pending)
	}
	s.logger.Audit(ctx, "session.locked", resourceSession, out.SessionID, cmd.Actor.ID, map[string]any{
		"totalExpected":     out.TotalExpected,
		"totalMatch":        out.TotalMatch,
		"totalMissing":      out.TotalMissing,
		"totalUnregistered": out.TotalUnregistered,
	})
	return ToSessionDTO(out), nil
}
