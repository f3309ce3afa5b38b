package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/erplink/internal/connector"
	"github.com/MarcoPoloResearchLab/erplink/internal/linking"
	"github.com/MarcoPoloResearchLab/erplink/internal/metrics"
	"github.com/MarcoPoloResearchLab/erplink/internal/storeerr"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Core methods not bound to one entity kind.
const (
	methodAcknowledge = "core.linker.ack"
	methodStatistics  = "core.statistic"
	methodFeatures    = "core.connector.features"

	batchIDHeaderKey = "X-Batch-ID"
)

var (
	errUnknownMethod = errors.New("unknown rpc method")
	errMissingParams = errors.New("params required")
)

type rpcRequestPayload struct {
	Method string          `json:"method" validate:"required,max=64"`
	Params json.RawMessage `json:"params"`
}

type rpcResponsePayload struct {
	Method string `json:"method"`
	Result any    `json:"result"`
}

type pullParams struct {
	Limit int `json:"limit" validate:"gte=0,lte=1000"`
}

type entitiesParams struct {
	Entities []json.RawMessage `json:"entities" validate:"required,min=1,max=500"`
}

type ackParams struct {
	Identities []connector.Ack `json:"identities" validate:"required,min=1,max=1000"`
}

type pullResult struct {
	Entities any `json:"entities"`
}

type writeResult struct {
	Batch        string                            `json:"batch"`
	Entities     []any                             `json:"entities"`
	SoftFailures []connector.SoftResolutionFailure `json:"soft_failures"`
}

type statisticResult struct {
	Kind      connector.Kind `json:"kind"`
	Available int64          `json:"available"`
}

type ackResult struct {
	Linked   int                    `json:"linked"`
	Outcomes []connector.AckOutcome `json:"outcomes"`
}

// rpcError carries the HTTP status and the error code of a failed call.
type rpcError struct {
	status int
	code   string
	index  int
	err    error
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *rpcError) Unwrap() error {
	return e.err
}

func (h *httpHandler) handleRPC(c *gin.Context) {
	start := time.Now()
	var request rpcRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err := h.validate.Struct(request); err != nil {
		c.JSON(http.StatusBadRequest, validationResponse(err))
		return
	}
	method := strings.TrimSpace(request.Method)

	result, err := h.dispatch(c, method, request.Params)
	if err != nil {
		h.metrics.ObserveCall(method, metrics.OutcomeError, time.Since(start))
		h.writeError(c, method, err)
		return
	}
	h.metrics.ObserveCall(method, metrics.OutcomeSuccess, time.Since(start))
	c.JSON(http.StatusOK, rpcResponsePayload{Method: method, Result: result})
}

func (h *httpHandler) dispatch(c *gin.Context, method string, params json.RawMessage) (any, error) {
	ctx := c.Request.Context()
	switch method {
	case methodAcknowledge:
		return h.acknowledge(ctx, params)
	case methodStatistics:
		statistics, err := h.registry.Statistics(ctx)
		if err != nil {
			return nil, err
		}
		return gin.H{"statistics": statistics}, nil
	case methodFeatures:
		return gin.H{"entities": h.registry.Features()}, nil
	}

	separator := strings.LastIndex(method, ".")
	if separator <= 0 {
		return nil, fmt.Errorf("%w: %q", errUnknownMethod, method)
	}
	kind := connector.Kind(method[:separator])
	operation := connector.Operation(method[separator+1:])
	handler, err := h.registry.Handler(kind)
	if err != nil {
		return nil, err
	}

	switch operation {
	case connector.OperationPull:
		var parsed pullParams
		if err := h.decodeParams(params, &parsed); err != nil {
			return nil, err
		}
		entities, err := handler.Pull(ctx, parsed.Limit)
		if err != nil {
			return nil, err
		}
		h.metrics.AddEntities(string(kind), string(operation), entityCount(entities))
		return pullResult{Entities: entities}, nil
	case connector.OperationPush, connector.OperationDelete:
		return h.write(c, handler, operation, params)
	case connector.OperationStatistic:
		available, err := handler.Stats(ctx)
		if err != nil {
			return nil, err
		}
		return statisticResult{Kind: kind, Available: available}, nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownMethod, method)
	}
}

// write runs a push or delete over every entity of the request with one shared batch. The first
// hard error stops the request; entities before it stay written.
func (h *httpHandler) write(c *gin.Context, handler connector.Handler, operation connector.Operation, params json.RawMessage) (any, error) {
	if !handler.Supports(operation) {
		return nil, fmt.Errorf("%w: %s.%s", connector.ErrUnsupportedOperation, handler.Kind(), operation)
	}
	var parsed entitiesParams
	if err := h.decodeParams(params, &parsed); err != nil {
		return nil, err
	}
	batch, err := connector.NewBatch()
	if err != nil {
		return nil, err
	}
	c.Header(batchIDHeaderKey, batch.ID())

	ctx := c.Request.Context()
	results := make([]any, 0, len(parsed.Entities))
	for index, payload := range parsed.Entities {
		var result any
		if operation == connector.OperationPush {
			result, err = handler.Push(ctx, batch, payload)
		} else {
			result, err = handler.Delete(ctx, batch, payload)
		}
		if err != nil {
			failure := classify(err)
			failure.index = index
			return nil, failure
		}
		results = append(results, result)
	}

	failures := batch.Failures()
	for _, failure := range failures {
		h.metrics.AddSoftFailure(string(failure.Kind), string(failure.Reference))
		h.logger.Warn("unresolved reference skipped",
			zap.String("batch", batch.ID()),
			zap.String("kind", string(failure.Kind)),
			zap.Stringer("entity", failure.Entity),
			zap.String("reference", string(failure.Reference)),
			zap.Stringer("missing", failure.Missing))
	}
	h.metrics.AddEntities(string(handler.Kind()), string(operation), len(results)-len(failures))
	return writeResult{Batch: batch.ID(), Entities: results, SoftFailures: failures}, nil
}

func (h *httpHandler) acknowledge(ctx context.Context, params json.RawMessage) (any, error) {
	var parsed ackParams
	if err := h.decodeParams(params, &parsed); err != nil {
		return nil, err
	}
	outcomes, linked := h.registry.Acknowledger().Acknowledge(ctx, parsed.Identities)
	h.metrics.AddAcks(linked, len(outcomes)-linked)
	return ackResult{Linked: linked, Outcomes: outcomes}, nil
}

func (h *httpHandler) decodeParams(params json.RawMessage, target any) error {
	if len(bytes.TrimSpace(params)) == 0 {
		return &rpcError{status: http.StatusBadRequest, code: "invalid_params", index: -1, err: errMissingParams}
	}
	if err := json.Unmarshal(params, target); err != nil {
		return &rpcError{status: http.StatusBadRequest, code: "invalid_params", index: -1, err: err}
	}
	if err := h.validate.Struct(target); err != nil {
		return &rpcError{status: http.StatusBadRequest, code: "invalid_params", index: -1, err: err}
	}
	return nil
}

// classify maps a connector error to its HTTP status and code.
func classify(err error) *rpcError {
	var existing *rpcError
	if errors.As(err, &existing) {
		return existing
	}
	var serviceErr *connector.ServiceError
	switch {
	case errors.Is(err, errUnknownMethod), errors.Is(err, connector.ErrUnknownKind):
		return &rpcError{status: http.StatusNotFound, code: "unknown_method", index: -1, err: err}
	case errors.Is(err, connector.ErrUnsupportedOperation):
		return &rpcError{status: http.StatusBadRequest, code: "unsupported_operation", index: -1, err: err}
	case errors.Is(err, connector.ErrInvalidPayload):
		return &rpcError{status: http.StatusBadRequest, code: "invalid_payload", index: -1, err: err}
	case errors.Is(err, linking.ErrConflict):
		return &rpcError{status: http.StatusConflict, code: "identity_conflict", index: -1, err: err}
	case storeerr.IsTransient(err):
		return &rpcError{status: http.StatusServiceUnavailable, code: "store_unavailable", index: -1, err: err}
	case errors.As(err, &serviceErr):
		return &rpcError{status: http.StatusBadRequest, code: serviceErr.Code(), index: -1, err: err}
	default:
		return &rpcError{status: http.StatusInternalServerError, code: "internal_error", index: -1, err: err}
	}
}

func (h *httpHandler) writeError(c *gin.Context, method string, err error) {
	failure := classify(err)
	fields := []zap.Field{zap.String("method", method), zap.String("code", failure.code), zap.Error(failure.err)}
	if failure.index >= 0 {
		fields = append(fields, zap.Int("entity_index", failure.index))
	}
	if failure.status >= http.StatusInternalServerError {
		h.logger.Error("rpc call failed", fields...)
	} else {
		h.logger.Warn("rpc call rejected", fields...)
	}

	body := gin.H{"error": failure.code, "message": failure.err.Error()}
	if failure.index >= 0 {
		body["entity_index"] = failure.index
	}
	var validationErrors validator.ValidationErrors
	if errors.As(failure.err, &validationErrors) {
		body["details"] = validationResponse(validationErrors)["details"]
	}
	c.JSON(failure.status, body)
}

func entityCount(entities any) int {
	value := reflect.ValueOf(entities)
	if value.Kind() != reflect.Slice {
		return 0
	}
	return value.Len()
}
