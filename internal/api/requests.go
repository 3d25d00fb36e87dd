package api

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/wms-platform/opname-service/internal/domain"
	"github.com/wms-platform/opname-service/pkg/errors"
	"github.com/wms-platform/opname-service/pkg/middleware"
)

// maxBulkBody caps a text/plain bulk upload
const maxBulkBody = 1 << 20

type createSessionRequest struct {
	SessionType string `json:"sessionType" binding:"required"`
	Notes       string `json:"notes" binding:"max=1000,safe_string"`
}

type scanRequest struct {
	IMEI string `json:"imei" binding:"required,imei"`
}

type bulkScanRequest struct {
	Lines []string `json:"lines" binding:"required,max=5000"`
}

type actionRequest struct {
	ItemID          string `json:"itemId" binding:"required,max=64"`
	Action          string `json:"action" binding:"required,action_code"`
	Notes           string `json:"notes" binding:"max=1000,safe_string"`
	SoldReferenceID string `json:"soldReferenceId" binding:"max=128,safe_string"`
}

// actionsRequest carries staged resolutions; the lock endpoint uses it for
// edits not yet saved.
type actionsRequest struct {
	Missing      []actionRequest `json:"missing" binding:"omitempty,dive"`
	Unregistered []actionRequest `json:"unregistered" binding:"omitempty,dive"`
}

func (r actionsRequest) staged() (domain.StagedActions, *errors.AppError) {
	missing, err := toEdits("missing", r.Missing)
	if err != nil {
		return domain.StagedActions{}, err
	}
	unregistered, err := toEdits("unregistered", r.Unregistered)
	if err != nil {
		return domain.StagedActions{}, err
	}
	return domain.StagedActions{Missing: missing, Unregistered: unregistered}, nil
}

func toEdits(list string, actions []actionRequest) (map[string]domain.ActionEdit, *errors.AppError) {
	if len(actions) == 0 {
		return nil, nil
	}
	edits := make(map[string]domain.ActionEdit, len(actions))
	for _, a := range actions {
		id := strings.TrimSpace(a.ItemID)
		if _, dup := edits[id]; dup {
			return nil, errors.ErrValidation(fmt.Sprintf("%s lists item %s more than once", list, id)).
				WithDetail("itemId", id)
		}
		edits[id] = domain.ActionEdit{
			Action:          a.Action,
			Notes:           a.Notes,
			SoldReferenceID: a.SoldReferenceID,
		}
	}
	return edits, nil
}

// actorFrom maps the authenticated principal to a domain actor. A missing
// principal yields the zero actor, which every command rejects.
func actorFrom(c *gin.Context) domain.Actor {
	p, ok := middleware.GetPrincipal(c)
	if !ok {
		return domain.Actor{}
	}
	return domain.Actor{ID: p.ID, Name: p.Name, Roles: p.Roles}
}

func isPlainText(c *gin.Context) bool {
	return strings.HasPrefix(c.GetHeader("Content-Type"), "text/plain")
}
