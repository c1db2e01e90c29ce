// Package relay accepts failure reports over HTTP and forwards them to a dead
// letter queue through a dlq.Publisher.
package relay

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/ava-labs/dlq-publisher/pkg/dlq"
	"github.com/ava-labs/dlq-publisher/pkg/metrics"
)

// maxBodyBytes caps the size of a failure report.
const maxBodyBytes = 1 << 20

// FailureRequest is the body of POST /failures.
type FailureRequest struct {
	Event        json.RawMessage `json:"event"`
	AwsRequestID string          `json:"awsRequestId"`
	Error        *dlq.Failure    `json:"error"`
}

// ErrorResponse is returned for every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Handler serves the relay endpoints.
type Handler struct {
	publisher *dlq.Publisher
	log       *zap.SugaredLogger
	metrics   *metrics.Metrics
}

// NewHandler creates a relay handler. m may be nil.
func NewHandler(p *dlq.Publisher, log *zap.SugaredLogger, m *metrics.Metrics) *Handler {
	return &Handler{publisher: p, log: log, metrics: m}
}

// Routes returns the relay router. Mount it under a versioned prefix, e.g. /v1.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Post("/failures", h.publishFailure)
	return r
}

func (h *Handler) publishFailure(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "request body exceeds "+strconv.FormatInt(tooLarge.Limit, 10)+" bytes")
			return
		}
		h.writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var req FailureRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "malformed request body: "+err.Error())
		return
	}

	var event any
	if len(req.Event) > 0 {
		event = req.Event
	}
	var failure error
	if req.Error != nil && req.Error.Message != "" {
		failure = req.Error
	}

	receipt, err := h.publisher.Publish(r.Context(), event, &dlq.ExecutionContext{AwsRequestID: req.AwsRequestID}, failure)
	if err != nil {
		h.writeError(w, statusFor(err), clientMessage(err))
		if !dlq.IsReported(err) {
			h.log.Debugw("rejected failure report",
				"requestID", middleware.GetReqID(r.Context()),
				"awsRequestId", req.AwsRequestID,
				"error", err,
			)
		}
		return
	}

	h.writeJSON(w, http.StatusAccepted, receipt)
}

func statusFor(err error) int {
	var serr *dlq.SerializationError
	var terr *dlq.TransportError
	switch {
	case errors.Is(err, dlq.ErrInvalidArguments):
		return http.StatusBadRequest
	case errors.As(err, &serr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &terr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// clientMessage hides transport details such as queue URLs and provider
// error codes from HTTP clients.
func clientMessage(err error) string {
	var terr *dlq.TransportError
	if errors.As(err, &terr) {
		return "failed to publish to dead letter queue"
	}
	return err.Error()
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, ErrorResponse{Error: msg})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	h.metrics.RecordRelayRequest(strconv.Itoa(status))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Warnw("failed to write response", "status", status, "error", err)
	}
}
