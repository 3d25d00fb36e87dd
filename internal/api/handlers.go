package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/wms-platform/opname-service/internal/application"
	"github.com/wms-platform/opname-service/pkg/errors"
	"github.com/wms-platform/opname-service/pkg/logging"
	"github.com/wms-platform/opname-service/pkg/middleware"
)

func createSessionHandler(service *application.OpnameService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		var req createSessionRequest
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		session, err := service.CreateSession(c.Request.Context(), application.CreateSessionCommand{
			Actor:       actorFrom(c),
			SessionType: req.SessionType,
			Notes:       req.Notes,
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusCreated, session)
	}
}

func listSessionsHandler(queries *application.QueryService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		page, err := intQuery(c, "page")
		if err != nil {
			responder.RespondWithAppError(err)
			return
		}
		pageSize, err := intQuery(c, "pageSize")
		if err != nil {
			responder.RespondWithAppError(err)
			return
		}

		list, listErr := queries.ListSessions(c.Request.Context(), application.ListSessionsQuery{
			Status:      c.Query("status"),
			SessionType: c.Query("sessionType"),
			Page:        page,
			PageSize:    pageSize,
		})
		if listErr != nil {
			responder.RespondWithError(listErr)
			return
		}

		c.JSON(http.StatusOK, list)
	}
}

func getSessionHandler(queries *application.QueryService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		detail, err := queries.GetSession(c.Request.Context(), c.Param("sessionId"))
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, detail)
	}
}

func recordScanHandler(service *application.OpnameService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		var req scanRequest
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		outcome, err := service.RecordScan(c.Request.Context(), application.RecordScanCommand{
			SessionID: c.Param("sessionId"),
			Actor:     actorFrom(c),
			IMEI:      req.IMEI,
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		middleware.AddSpanAttributes(c, map[string]interface{}{"opname.scan_result": outcome.Result})
		c.JSON(http.StatusCreated, outcome)
	}
}

// recordBulkScanHandler accepts {"lines": [...]} or a text/plain body with one
// identifier per line.
func recordBulkScanHandler(service *application.OpnameService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		cmd := application.RecordBulkScanCommand{
			SessionID: c.Param("sessionId"),
			Actor:     actorFrom(c),
		}
		if isPlainText(c) {
			body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBulkBody))
			if err != nil {
				appErr := middleware.PayloadTooLarge(err)
				if appErr == nil {
					appErr = errors.ErrBadRequest("failed to read bulk upload").Wrap(err)
				}
				responder.RespondWithAppError(appErr)
				return
			}
			cmd.Text = string(body)
		} else {
			var req bulkScanRequest
			if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
				responder.RespondWithAppError(appErr)
				return
			}
			cmd.Lines = req.Lines
		}

		report, err := service.RecordBulkScan(c.Request.Context(), cmd)
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		middleware.AddSpanAttributes(c, map[string]interface{}{
			"opname.bulk.lines":     report.Summary.Total,
			"opname.bulk.accepted":  report.Summary.Accepted,
			"opname.bulk.duplicate": report.Summary.Duplicate,
			"opname.bulk.invalid":   report.Summary.Invalid,
		})
		c.JSON(http.StatusOK, report)
	}
}

func retractScanHandler(service *application.OpnameService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		session, err := service.RetractScan(c.Request.Context(), application.RetractScanCommand{
			SessionID: c.Param("sessionId"),
			Actor:     actorFrom(c),
			ScanID:    c.Param("scanId"),
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, session)
	}
}

func completeSessionHandler(service *application.OpnameService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		session, err := service.CompleteSession(c.Request.Context(), application.CompleteSessionCommand{
			SessionID: c.Param("sessionId"),
			Actor:     actorFrom(c),
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, session)
	}
}

func getDiscrepanciesHandler(queries *application.QueryService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		worklists, err := queries.GetDiscrepancies(c.Request.Context(), c.Param("sessionId"))
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, worklists)
	}
}

func resolveDiscrepanciesHandler(service *application.OpnameService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		var req actionsRequest
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}
		staged, appErr := req.staged()
		if appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		result, err := service.ResolveDiscrepancies(c.Request.Context(), application.ResolveDiscrepanciesCommand{
			SessionID: c.Param("sessionId"),
			Actor:     actorFrom(c),
			Staged:    staged,
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

// lockSessionHandler takes an optional body of edits staged but not yet saved
func lockSessionHandler(service *application.OpnameService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		var req actionsRequest
		if c.Request.ContentLength != 0 {
			if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
				responder.RespondWithAppError(appErr)
				return
			}
		}
		pending, appErr := req.staged()
		if appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		session, err := service.LockSession(c.Request.Context(), application.LockSessionCommand{
			SessionID: c.Param("sessionId"),
			Actor:     actorFrom(c),
			Pending:   pending,
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, session)
	}
}

func verificationHandler(queries *application.QueryService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		report, err := queries.VerifyCounters(c.Request.Context(), c.Param("sessionId"))
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, report)
	}
}

func intQuery(c *gin.Context, name string) (int, *errors.AppError) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.ErrValidationWithFields("invalid query parameter", map[string]string{name: "must be a non-negative integer"})
	}
	return n, nil
}
