package application

import (
	stderrors "errors"
	"strconv"
	"strings"

	"github.com/wms-platform/opname-service/internal/domain"
	"github.com/wms-platform/opname-service/pkg/errors"
	mongopkg "github.com/wms-platform/opname-service/pkg/mongodb"
)

const (
	dependencyStore = "opname store"
	dependencyUnits = "inventory unit source"

	// maxListedIDs caps the ids echoed in an unresolved-discrepancy error
	maxListedIDs = 50
)

var domainErrors = []errors.Mapping{
	{Target: domain.ErrSessionNotFound, Build: func(string) *errors.AppError { return errors.ErrNotFound("session") }},
	{Target: domain.ErrScanNotFound, Build: func(string) *errors.AppError { return errors.ErrNotFound("scan") }},
	{Target: domain.ErrItemNotFound, Build: func(string) *errors.AppError { return errors.ErrNotFound("discrepancy item") }},

	{Target: domain.ErrInvalidSessionType, Build: errors.ErrValidation},
	{Target: domain.ErrInvalidIdentifier, Build: errors.ErrValidation},
	{Target: domain.ErrEmptyBatch, Build: errors.ErrValidation},
	{Target: domain.ErrUnknownAction, Build: errors.ErrValidation},
	{Target: domain.ErrSoldReferenceRequired, Build: errors.ErrValidation},
	{Target: domain.ErrNotDiscrepancy, Build: errors.ErrValidation},
	{Target: domain.ErrNoStagedActions, Build: errors.ErrValidation},

	{Target: domain.ErrDuplicateScan, Build: errors.ErrConflict},
	{Target: domain.ErrSessionNotDraft, Build: errors.ErrConflict},
	{Target: domain.ErrSessionNotCompleted, Build: errors.ErrConflict},
	{Target: domain.ErrSessionLocked, Build: errors.ErrConflict},
	{Target: domain.ErrEmptySession, Build: errors.ErrConflict},
	{Target: domain.ErrUnresolvedDiscrepancies, Build: errors.ErrConflict},
	{Target: domain.ErrInvalidSnapshot, Build: errors.ErrConflict},

	{Target: domain.ErrNotAuthenticated, Build: errors.ErrUnauthorized},
	{Target: domain.ErrNotApprover, Build: errors.ErrForbidden},
}

// mapError turns a domain or store error into an AppError. Unreachable
// dependencies are 503s; any other unmapped error stays a 500.
func mapError(err error, dependency string) error {
	if err == nil {
		return nil
	}
	if errors.IsAppError(err) {
		return err
	}

	appErr := errors.Map(err, domainErrors...)
	if appErr.Code == errors.CodeInternalError {
		if mongopkg.IsUnavailable(err) {
			return errors.ErrServiceUnavailable(dependency).Wrap(err)
		}
		return appErr
	}

	var actionErr *domain.ActionError
	if stderrors.As(err, &actionErr) {
		appErr.WithDetail("itemId", actionErr.ItemID)
	}

	var snapshotErr *domain.SnapshotError
	if stderrors.As(err, &snapshotErr) {
		appErr.WithDetails(map[string]string{
			"duplicateImeis": joinIDs(snapshotErr.DuplicateIMEIs),
			"blankImeiUnits": joinIDs(snapshotErr.BlankUnitIDs),
		})
	}

	var unresolved *domain.UnresolvedError
	if stderrors.As(err, &unresolved) {
		appErr.WithDetails(map[string]string{
			"unresolvedMissing":      strconv.Itoa(len(unresolved.MissingIDs)),
			"unresolvedUnregistered": strconv.Itoa(len(unresolved.UnregisteredIDs)),
			"missingIds":             joinIDs(unresolved.MissingIDs),
			"unregisteredIds":        joinIDs(unresolved.UnregisteredIDs),
		})
	}
	return appErr
}

func joinIDs(ids []string) string {
	if len(ids) > maxListedIDs {
		return strings.Join(ids[:maxListedIDs], ",") + ",..."
	}
	return strings.Join(ids, ",")
}
