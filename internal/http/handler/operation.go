package handler

import (
	"math"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"opledger/internal/model"
	"opledger/internal/service"
)

// ActorHeader identifies who requested a state change. It is recorded in the
// audit trail only.
const ActorHeader = "X-Actor-ID"

type successRequest struct {
	Response   model.Payload `json:"response"`
	StatusCode *int          `json:"status_code"`
}

type failureRequest struct {
	Message    string        `json:"message"`
	Response   model.Payload `json:"response"`
	StatusCode *int          `json:"status_code"`
}

// maxDelaySeconds is the largest delay that still fits in a time.Duration.
const maxDelaySeconds = math.MaxInt64 / int64(time.Second)

type retryRequest struct {
	DelaySeconds *int          `json:"delay_seconds"`
	Reason       string        `json:"reason"`
	Response     model.Payload `json:"response"`
	StatusCode   *int          `json:"status_code"`
}

type retryResponse struct {
	Operation *model.Operation `json:"operation"`
	Scheduled bool             `json:"scheduled"`
}

type readyResponse struct {
	Data []model.Operation `json:"data"`
	At   time.Time         `json:"at"`
}

// parseBody decodes an optional JSON body into dst.
func parseBody(c *fiber.Ctx, dst any) error {
	if len(c.Body()) == 0 {
		return nil
	}
	return c.BodyParser(dst)
}

func pathID(c *fiber.Ctx) (string, bool) {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return "", false
	}
	return id, true
}

func pageParams(c *fiber.Ctx) (limit, offset int, code, msg string) {
	limit, err := strconv.Atoi(c.Query("limit", "10"))
	if err != nil {
		return 0, 0, "INVALID_LIMIT", "invalid limit"
	}
	offset, err = strconv.Atoi(c.Query("offset", "0"))
	if err != nil {
		return 0, 0, "INVALID_OFFSET", "invalid offset"
	}
	return limit, offset, "", ""
}

// BeginOperation godoc
// @Summary Record a new pending operation
// @Tags operations
// @Accept json
// @Produce json
// @Param body body service.BeginInput true "operation"
// @Success 201 {object} model.Operation
// @Failure 400 {object} errorPayload
// @Router /operations [post]
func BeginOperation(svc service.OperationService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var in service.BeginInput
		if err := c.BodyParser(&in); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
		}
		in.ActorID = c.Get(ActorHeader)

		op, err := svc.Begin(c.UserContext(), in)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(op)
	}
}

// GetOperation godoc
// @Summary Get an operation by ID
// @Tags operations
// @Produce json
// @Param id path string true "operation id"
// @Success 200 {object} model.Operation
// @Failure 404 {object} errorPayload
// @Router /operations/{id} [get]
func GetOperation(svc service.OperationService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := pathID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		op, err := svc.Get(c.UserContext(), id)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(op)
	}
}

// LookupOperation godoc
// @Summary Find the latest operation for a correlation key
// @Tags operations
// @Produce json
// @Param operation_type query string true "operation type"
// @Param operation_id query string true "external correlation id"
// @Success 200 {object} model.Operation
// @Router /operations/lookup [get]
func LookupOperation(svc service.OperationService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		opType, opID := c.Query("operation_type"), c.Query("operation_id")
		if opType == "" || opID == "" {
			return writeError(c, fiber.StatusBadRequest, "INVALID_QUERY", "operation_type and operation_id are required")
		}
		op, err := svc.FindByCorrelation(c.UserContext(), opType, opID)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(op)
	}
}

// ListOperations godoc
// @Summary List operations by status
// @Tags operations
// @Produce json
// @Param status query string false "pending (default), retrying, failed or success"
// @Param limit query int false "page size" default(10)
// @Param offset query int false "offset" default(0)
// @Success 200 {object} service.OperationListResult
// @Router /operations [get]
func ListOperations(svc service.OperationService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit, offset, code, msg := pageParams(c)
		if code != "" {
			return writeError(c, fiber.StatusBadRequest, code, msg)
		}

		var (
			res *service.OperationListResult
			err error
		)
		switch status := model.Status(c.Query("status", string(model.StatusPending))); status {
		case model.StatusPending:
			res, err = svc.ListPending(c.UserContext(), limit, offset)
		case model.StatusFailed:
			res, err = svc.ListFailed(c.UserContext(), limit, offset)
		default:
			res, err = svc.ListByStatus(c.UserContext(), status, limit, offset)
		}
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(res)
	}
}

// ListReadyOperations godoc
// @Summary List retrying operations that are due
// @Tags operations
// @Produce json
// @Param at query string false "RFC3339 instant, defaults to now"
// @Param limit query int false "max results" default(50)
// @Success 200 {object} readyResponse
// @Router /operations/ready [get]
func ListReadyOperations(svc service.OperationService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		at := time.Now().UTC()
		if v := c.Query("at"); v != "" {
			parsed, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return writeError(c, fiber.StatusBadRequest, "INVALID_TIME", "at must be RFC3339")
			}
			at = parsed.UTC()
		}
		limit, err := strconv.Atoi(c.Query("limit", "50"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_LIMIT", "invalid limit")
		}

		ops, err := svc.ListReadyForRetry(c.UserContext(), at, limit)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(readyResponse{Data: ops, At: at})
	}
}

// OperationStats godoc
// @Summary Count operations per status
// @Tags operations
// @Produce json
// @Success 200 {object} map[string]int
// @Router /operations/stats [get]
func OperationStats(svc service.OperationService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		counts, err := svc.Stats(c.UserContext())
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(counts)
	}
}

// RecordSuccess godoc
// @Summary Mark an operation successful
// @Tags operations
// @Accept json
// @Produce json
// @Param id path string true "operation id"
// @Param body body successRequest false "response"
// @Success 200 {object} model.Operation
// @Failure 409 {object} errorPayload
// @Router /operations/{id}/success [post]
func RecordSuccess(svc service.OperationService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := pathID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		var req successRequest
		if err := parseBody(c, &req); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
		}

		op, err := svc.RecordSuccess(c.UserContext(), id, service.SuccessInput{
			Response:   req.Response,
			StatusCode: req.StatusCode,
			ActorID:    c.Get(ActorHeader),
		})
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(op)
	}
}

// RecordFailure godoc
// @Summary Mark an operation permanently failed
// @Tags operations
// @Accept json
// @Produce json
// @Param id path string true "operation id"
// @Param body body failureRequest true "failure"
// @Success 200 {object} model.Operation
// @Failure 409 {object} errorPayload
// @Router /operations/{id}/failure [post]
func RecordFailure(svc service.OperationService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := pathID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		var req failureRequest
		if err := parseBody(c, &req); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
		}
		if req.Message == "" {
			return writeError(c, fiber.StatusBadRequest, "MESSAGE_REQUIRED", "message is required")
		}

		op, err := svc.RecordFailure(c.UserContext(), id, service.FailureInput{
			Message:    req.Message,
			Response:   req.Response,
			StatusCode: req.StatusCode,
			ActorID:    c.Get(ActorHeader),
		})
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(op)
	}
}

// ScheduleRetry godoc
// @Summary Schedule another attempt
// @Description Uses 2^retry_count minutes unless delay_seconds is given. Exhausted operations are failed instead.
// @Tags operations
// @Accept json
// @Produce json
// @Param id path string true "operation id"
// @Param body body retryRequest false "retry"
// @Success 200 {object} retryResponse
// @Failure 400 {object} errorPayload
// @Failure 409 {object} errorPayload
// @Router /operations/{id}/retry [post]
func ScheduleRetry(svc service.OperationService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := pathID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		var req retryRequest
		if err := parseBody(c, &req); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
		}

		in := service.RetryInput{
			Reason:     req.Reason,
			Response:   req.Response,
			StatusCode: req.StatusCode,
			ActorID:    c.Get(ActorHeader),
		}
		if req.DelaySeconds != nil {
			secs := int64(*req.DelaySeconds)
			if secs > maxDelaySeconds || secs < -maxDelaySeconds {
				return writeError(c, fiber.StatusBadRequest, "INVALID_DELAY", "delay_seconds is out of range")
			}
			d := time.Duration(secs) * time.Second
			in.Delay = &d
		}

		op, scheduled, err := svc.ScheduleRetry(c.UserContext(), id, in)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(retryResponse{Operation: op, Scheduled: scheduled})
	}
}

// ArchiveOperation godoc
// @Summary Archive a completed operation to object storage
// @Tags operations
// @Produce json
// @Param id path string true "operation id"
// @Success 200 {object} service.ArchiveResult
// @Failure 409 {object} errorPayload
// @Failure 503 {object} errorPayload
// @Router /operations/{id}/archive [post]
func ArchiveOperation(svc service.OperationService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := pathID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		res, err := svc.Archive(c.UserContext(), id, c.Get(ActorHeader))
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(res)
	}
}

// GetArchive godoc
// @Summary Read the archived snapshot of an operation
// @Tags operations
// @Produce json
// @Param id path string true "operation id"
// @Success 200 {object} model.Operation
// @Failure 404 {object} errorPayload
// @Router /operations/{id}/archive [get]
func GetArchive(svc service.OperationService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := pathID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		op, err := svc.ReadArchive(c.UserContext(), id)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(op)
	}
}
