package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"opledger/internal/http/middleware"
	"opledger/internal/ledger"
	"opledger/internal/model"
	"opledger/internal/service"
	serviceMocks "opledger/internal/service/mocks"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func decodeError(t *testing.T, resp *http.Response) errorPayload {
	t.Helper()
	var body errorPayload
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func TestHealthCheck(t *testing.T) {
	db, dbMock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	app := fiber.New()
	app.Get("/health", HealthCheck(db))

	t.Run("healthy", func(t *testing.T) {
		dbMock.ExpectPing().WillReturnError(nil)

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body map[string]string
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, "healthy", body["status"])
	})

	t.Run("unhealthy", func(t *testing.T) {
		dbMock.ExpectPing().WillReturnError(errors.New("db error"))

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		assert.Equal(t, "SERVICE_UNAVAILABLE", decodeError(t, resp).Error.Code)
	})
}

func TestLivenessProbe(t *testing.T) {
	app := fiber.New()
	app.Get("/healthz", LivenessProbe())

	resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestBeginOperation(t *testing.T) {
	mockSvc := new(serviceMocks.MockOperationService)
	app := fiber.New()
	app.Post("/operations", BeginOperation(mockSvc))

	t.Run("created", func(t *testing.T) {
		id := uuid.NewString()
		mockSvc.On("Begin", mock.Anything, mock.MatchedBy(func(in service.BeginInput) bool {
			return in.OperationType == "zoho.invoice.create" &&
				in.OperationID == "inv-42" &&
				in.MaxRetries == 5 &&
				in.RequestPayload["amount"] == float64(10) &&
				in.ActorID == "user-7"
		})).Return(&model.Operation{ID: id, Status: model.StatusPending}, nil).Once()

		req := jsonRequest(http.MethodPost, "/operations",
			`{"operation_type":"zoho.invoice.create","operation_id":"inv-42","method":"POST","request_payload":{"amount":10},"max_retries":5}`)
		req.Header.Set(ActorHeader, "user-7")
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		var op model.Operation
		json.NewDecoder(resp.Body).Decode(&op)
		assert.Equal(t, id, op.ID)
		mockSvc.AssertExpectations(t)
	})

	t.Run("validation error", func(t *testing.T) {
		mockSvc.On("Begin", mock.Anything, mock.Anything).Return(nil, ledger.ErrTypeRequired).Once()

		resp, _ := app.Test(jsonRequest(http.MethodPost, "/operations", `{"operation_id":"x"}`))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		body := decodeError(t, resp)
		assert.Equal(t, "VALIDATION_ERROR", body.Error.Code)
		assert.Equal(t, "operation type is required", body.Error.Message)
	})

	t.Run("malformed body", func(t *testing.T) {
		resp, _ := app.Test(jsonRequest(http.MethodPost, "/operations", `{`))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_BODY", decodeError(t, resp).Error.Code)
	})
}

func TestGetOperation(t *testing.T) {
	mockSvc := new(serviceMocks.MockOperationService)
	app := fiber.New()
	app.Use(middleware.RequestID())
	app.Get("/operations/:id", GetOperation(mockSvc))

	t.Run("found", func(t *testing.T) {
		id := uuid.NewString()
		mockSvc.On("Get", mock.Anything, id).Return(&model.Operation{ID: id, OperationID: "inv-42"}, nil).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/operations/"+id, nil))
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var op model.Operation
		json.NewDecoder(resp.Body).Decode(&op)
		assert.Equal(t, "inv-42", op.OperationID)
	})

	t.Run("not found carries request id", func(t *testing.T) {
		id := uuid.NewString()
		mockSvc.On("Get", mock.Anything, id).Return(nil, service.ErrNotFound).Once()

		req := httptest.NewRequest(http.MethodGet, "/operations/"+id, nil)
		req.Header.Set(middleware.RequestIDHeader, "rid-9")
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		body := decodeError(t, resp)
		assert.Equal(t, "NOT_FOUND", body.Error.Code)
		assert.Equal(t, "rid-9", body.RequestID)
	})

	t.Run("invalid id", func(t *testing.T) {
		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/operations/not-a-uuid", nil))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_ID", decodeError(t, resp).Error.Code)
	})

	t.Run("internal error is not leaked", func(t *testing.T) {
		id := uuid.NewString()
		mockSvc.On("Get", mock.Anything, id).Return(nil, errors.New("pq: connection reset")).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/operations/"+id, nil))
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		assert.Equal(t, "internal server error", decodeError(t, resp).Error.Message)
	})
}

func TestLookupOperation(t *testing.T) {
	mockSvc := new(serviceMocks.MockOperationService)
	app := fiber.New()
	app.Get("/operations/lookup", LookupOperation(mockSvc))

	mockSvc.On("FindByCorrelation", mock.Anything, "zoho.invoice.create", "inv-42").
		Return(&model.Operation{ID: "op-1"}, nil).Once()

	resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/operations/lookup?operation_type=zoho.invoice.create&operation_id=inv-42", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = app.Test(httptest.NewRequest(http.MethodGet, "/operations/lookup?operation_type=zoho.invoice.create", nil))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	mockSvc.AssertExpectations(t)
}

func TestListOperations(t *testing.T) {
	mockSvc := new(serviceMocks.MockOperationService)
	app := fiber.New()
	app.Get("/operations", ListOperations(mockSvc))

	t.Run("pending by default", func(t *testing.T) {
		expected := &service.OperationListResult{
			Items: []model.Operation{{ID: uuid.NewString(), Status: model.StatusPending}},
			Total: 1,
		}
		mockSvc.On("ListPending", mock.Anything, 10, 0).Return(expected, nil).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/operations", nil))
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var result service.OperationListResult
		json.NewDecoder(resp.Body).Decode(&result)
		assert.Len(t, result.Items, 1)
		assert.Equal(t, 1, result.Total)
	})

	t.Run("failed", func(t *testing.T) {
		mockSvc.On("ListFailed", mock.Anything, 5, 10).
			Return(&service.OperationListResult{Items: []model.Operation{}}, nil).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/operations?status=failed&limit=5&offset=10", nil))
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("other status", func(t *testing.T) {
		mockSvc.On("ListByStatus", mock.Anything, model.StatusRetrying, 10, 0).
			Return(&service.OperationListResult{Items: []model.Operation{}}, nil).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/operations?status=retrying", nil))
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("unknown status", func(t *testing.T) {
		mockSvc.On("ListByStatus", mock.Anything, model.Status("done"), 10, 0).
			Return(nil, service.ErrInvalidStatus).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/operations?status=done", nil))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_STATUS", decodeError(t, resp).Error.Code)
	})

	t.Run("invalid limit", func(t *testing.T) {
		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/operations?limit=abc", nil))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_LIMIT", decodeError(t, resp).Error.Code)
	})

	t.Run("invalid offset", func(t *testing.T) {
		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/operations?offset=abc", nil))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_OFFSET", decodeError(t, resp).Error.Code)
	})

	mockSvc.AssertExpectations(t)
}

func TestListReadyOperations(t *testing.T) {
	mockSvc := new(serviceMocks.MockOperationService)
	app := fiber.New()
	app.Get("/operations/ready", ListReadyOperations(mockSvc))

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mockSvc.On("ListReadyForRetry", mock.Anything, at, 20).
		Return([]model.Operation{{ID: "op-1", Status: model.StatusRetrying}}, nil).Once()

	resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/operations/ready?at=2026-03-01T12:00:00Z&limit=20", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body readyResponse
	json.NewDecoder(resp.Body).Decode(&body)
	require.Len(t, body.Data, 1)
	assert.True(t, body.At.Equal(at))

	resp, _ = app.Test(httptest.NewRequest(http.MethodGet, "/operations/ready?at=yesterday", nil))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	mockSvc.AssertExpectations(t)
}

func TestOperationStats(t *testing.T) {
	mockSvc := new(serviceMocks.MockOperationService)
	app := fiber.New()
	app.Get("/operations/stats", OperationStats(mockSvc))

	mockSvc.On("Stats", mock.Anything).Return(map[model.Status]int{
		model.StatusPending: 2, model.StatusSuccess: 5, model.StatusFailed: 1, model.StatusRetrying: 0,
	}, nil).Once()

	resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/operations/stats", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]int
	json.NewDecoder(resp.Body).Decode(&body)
	assert.Equal(t, 5, body["success"])
	assert.Equal(t, 0, body["retrying"])
}

func TestRecordSuccess(t *testing.T) {
	mockSvc := new(serviceMocks.MockOperationService)
	app := fiber.New()
	app.Post("/operations/:id/success", RecordSuccess(mockSvc))
	id := uuid.NewString()

	t.Run("with response", func(t *testing.T) {
		mockSvc.On("RecordSuccess", mock.Anything, id, mock.MatchedBy(func(in service.SuccessInput) bool {
			return in.StatusCode != nil && *in.StatusCode == 201 && in.Response["invoice"] == "Z-1" && in.ActorID == "ops"
		})).Return(&model.Operation{ID: id, Status: model.StatusSuccess}, nil).Once()

		req := jsonRequest(http.MethodPost, "/operations/"+id+"/success", `{"status_code":201,"response":{"invoice":"Z-1"}}`)
		req.Header.Set(ActorHeader, "ops")
		resp, _ := app.Test(req)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("empty body", func(t *testing.T) {
		mockSvc.On("RecordSuccess", mock.Anything, id, service.SuccessInput{}).
			Return(&model.Operation{ID: id, Status: model.StatusSuccess}, nil).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodPost, "/operations/"+id+"/success", nil))
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("terminal", func(t *testing.T) {
		mockSvc.On("RecordSuccess", mock.Anything, id, mock.Anything).Return(nil, ledger.ErrTerminal).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodPost, "/operations/"+id+"/success", nil))
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		assert.Equal(t, "TERMINAL_STATE", decodeError(t, resp).Error.Code)
	})

	mockSvc.AssertExpectations(t)
}

func TestRecordFailure(t *testing.T) {
	mockSvc := new(serviceMocks.MockOperationService)
	app := fiber.New()
	app.Post("/operations/:id/failure", RecordFailure(mockSvc))
	id := uuid.NewString()

	t.Run("message required", func(t *testing.T) {
		resp, _ := app.Test(jsonRequest(http.MethodPost, "/operations/"+id+"/failure", `{}`))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "MESSAGE_REQUIRED", decodeError(t, resp).Error.Code)
	})

	t.Run("failed", func(t *testing.T) {
		mockSvc.On("RecordFailure", mock.Anything, id, mock.MatchedBy(func(in service.FailureInput) bool {
			return in.Message == "invalid customer"
		})).Return(&model.Operation{ID: id, Status: model.StatusFailed}, nil).Once()

		resp, _ := app.Test(jsonRequest(http.MethodPost, "/operations/"+id+"/failure", `{"message":"invalid customer"}`))
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("concurrent modification", func(t *testing.T) {
		mockSvc.On("RecordFailure", mock.Anything, id, mock.Anything).Return(nil, service.ErrConflict).Once()

		resp, _ := app.Test(jsonRequest(http.MethodPost, "/operations/"+id+"/failure", `{"message":"x"}`))
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		assert.Equal(t, "CONFLICT", decodeError(t, resp).Error.Code)
	})

	mockSvc.AssertExpectations(t)
}

func TestScheduleRetry(t *testing.T) {
	mockSvc := new(serviceMocks.MockOperationService)
	app := fiber.New()
	app.Post("/operations/:id/retry", ScheduleRetry(mockSvc))
	id := uuid.NewString()

	t.Run("with delay override", func(t *testing.T) {
		mockSvc.On("ScheduleRetry", mock.Anything, id, mock.MatchedBy(func(in service.RetryInput) bool {
			return in.Delay != nil && *in.Delay == 90*time.Second && in.Reason == "rate limited"
		})).Return(&model.Operation{ID: id, Status: model.StatusRetrying, RetryCount: 1}, true, nil).Once()

		resp, _ := app.Test(jsonRequest(http.MethodPost, "/operations/"+id+"/retry", `{"delay_seconds":90,"reason":"rate limited"}`))
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body retryResponse
		json.NewDecoder(resp.Body).Decode(&body)
		assert.True(t, body.Scheduled)
		assert.Equal(t, 1, body.Operation.RetryCount)
	})

	t.Run("exhausted", func(t *testing.T) {
		mockSvc.On("ScheduleRetry", mock.Anything, id, mock.MatchedBy(func(in service.RetryInput) bool {
			return in.Delay == nil
		})).Return(&model.Operation{ID: id, Status: model.StatusFailed}, false, nil).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodPost, "/operations/"+id+"/retry", nil))
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body retryResponse
		json.NewDecoder(resp.Body).Decode(&body)
		assert.False(t, body.Scheduled)
		assert.Equal(t, model.StatusFailed, body.Operation.Status)
	})

	t.Run("negative delay", func(t *testing.T) {
		mockSvc.On("ScheduleRetry", mock.Anything, id, mock.Anything).Return(nil, false, ledger.ErrNegativeDelay).Once()

		resp, _ := app.Test(jsonRequest(http.MethodPost, "/operations/"+id+"/retry", `{"delay_seconds":-1}`))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "VALIDATION_ERROR", decodeError(t, resp).Error.Code)
	})

	t.Run("delay beyond duration range", func(t *testing.T) {
		for _, secs := range []string{"9223372037", "-9223372037", "18446744074"} {
			resp, _ := app.Test(jsonRequest(http.MethodPost, "/operations/"+id+"/retry", `{"delay_seconds":`+secs+`}`))
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode, secs)
			assert.Equal(t, "INVALID_DELAY", decodeError(t, resp).Error.Code, secs)
		}
	})

	mockSvc.AssertExpectations(t)
}

func TestArchiveOperation(t *testing.T) {
	mockSvc := new(serviceMocks.MockOperationService)
	app := fiber.New()
	app.Post("/operations/:id/archive", ArchiveOperation(mockSvc))
	app.Get("/operations/:id/archive", GetArchive(mockSvc))
	id := uuid.NewString()

	t.Run("archived", func(t *testing.T) {
		mockSvc.On("Archive", mock.Anything, id, "ops").Return(&service.ArchiveResult{
			Key: "operations/t/" + id + ".json",
			URL: "https://minio.test/signed",
		}, nil).Once()

		req := httptest.NewRequest(http.MethodPost, "/operations/"+id+"/archive", nil)
		req.Header.Set(ActorHeader, "ops")
		resp, _ := app.Test(req)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body service.ArchiveResult
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, "https://minio.test/signed", body.URL)
	})

	t.Run("disabled", func(t *testing.T) {
		mockSvc.On("Archive", mock.Anything, id, "").Return(nil, service.ErrArchiveDisabled).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodPost, "/operations/"+id+"/archive", nil))
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})

	t.Run("still running", func(t *testing.T) {
		mockSvc.On("Archive", mock.Anything, id, "").Return(nil, service.ErrNotTerminal).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodPost, "/operations/"+id+"/archive", nil))
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		assert.Equal(t, "NOT_TERMINAL", decodeError(t, resp).Error.Code)
	})

	t.Run("read snapshot", func(t *testing.T) {
		mockSvc.On("ReadArchive", mock.Anything, id).Return(&model.Operation{ID: id, Status: model.StatusSuccess}, nil).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/operations/"+id+"/archive", nil))
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("snapshot missing", func(t *testing.T) {
		mockSvc.On("ReadArchive", mock.Anything, id).Return(nil, service.ErrNotArchived).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/operations/"+id+"/archive", nil))
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	mockSvc.AssertExpectations(t)
}

func TestRegisterRoutes(t *testing.T) {
	db, dbMock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mockSvc := new(serviceMocks.MockOperationService)
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler()})
	RegisterRoutes(app, db, mockSvc)

	t.Run("static paths win over :id", func(t *testing.T) {
		mockSvc.On("Stats", mock.Anything).Return(map[model.Status]int{}, nil).Once()
		mockSvc.On("ListReadyForRetry", mock.Anything, mock.AnythingOfType("time.Time"), 50).
			Return([]model.Operation{}, nil).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/operations/stats", nil))
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		resp, _ = app.Test(httptest.NewRequest(http.MethodGet, "/operations/ready", nil))
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("health", func(t *testing.T) {
		dbMock.ExpectPing()
		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("unknown route uses the error envelope", func(t *testing.T) {
		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/nope", nil))
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "NOT_FOUND", decodeError(t, resp).Error.Code)
	})

	mockSvc.AssertExpectations(t)
}
