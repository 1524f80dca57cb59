package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"behaviorguard/internal/domain/event"
	domainerrors "behaviorguard/internal/domain/errors"
	"behaviorguard/internal/metrics"
	"behaviorguard/internal/service/risk"
)

// RiskService is the training/scoring seam behind the API.
type RiskService interface {
	Train(ctx context.Context, userID string) (*risk.TrainReport, error)
	Predict(ctx context.Context, userID string, events []event.BehavioralEvent) ([]risk.WindowScore, error)
}

// Pinger reports backend liveness for the health endpoint.
type Pinger func(ctx context.Context) error

// Handler serves the risk engine's HTTP endpoints.
type Handler struct {
	risk      RiskService
	validate  *validator.Validate
	metrics   *metrics.Registry
	tracer    trace.Tracer
	logger    *zap.Logger
	dbPing    Pinger
	redisPing Pinger
}

// NewHandler creates the REST handler set.
func NewHandler(riskSvc RiskService, m *metrics.Registry, dbPing, redisPing Pinger, logger *zap.Logger) *Handler {
	return &Handler{
		risk:      riskSvc,
		validate:  validator.New(),
		metrics:   m,
		tracer:    otel.Tracer("api.rest"),
		logger:    logger.Named("rest"),
		dbPing:    dbPing,
		redisPing: redisPing,
	}
}

// RegisterRoutes attaches all endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.HandleHealth)
	mux.HandleFunc("POST /model/train/{user_id}", h.HandleTrain)
	mux.HandleFunc("POST /model/predict/{user_id}", h.HandlePredict)
}

// HandleHealth reports service and backend status.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok"}
	code := http.StatusOK

	if h.dbPing != nil {
		if err := h.dbPing(r.Context()); err != nil {
			status["database"] = "unreachable"
			status["status"] = "degraded"
			code = http.StatusServiceUnavailable
		} else {
			status["database"] = "ok"
		}
	}
	if h.redisPing != nil {
		if err := h.redisPing(r.Context()); err != nil {
			status["redis"] = "unreachable"
			status["status"] = "degraded"
			code = http.StatusServiceUnavailable
		} else {
			status["redis"] = "ok"
		}
	}

	writeJSON(w, code, status)
}

// HandleTrain trains (or retrains) the model for one user from that
// user's stored history.
func (h *Handler) HandleTrain(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	if userID == "" {
		h.writeError(w, domainerrors.NewValidationError("MISSING_USER_ID", "user_id path parameter is required"))
		return
	}

	ctx, span := h.tracer.Start(r.Context(), "risk.train",
		trace.WithAttributes(attribute.String("user_id", userID)))
	defer span.End()

	timer := prometheus.NewTimer(h.metrics.TrainingDuration)
	report, err := h.risk.Train(ctx, userID)
	timer.ObserveDuration()

	if err != nil {
		span.RecordError(err)
		h.metrics.TrainingsTotal.WithLabelValues(outcomeLabel(err)).Inc()
		h.writeError(w, err)
		return
	}

	h.metrics.TrainingsTotal.WithLabelValues("success").Inc()
	writeJSON(w, http.StatusOK, report)
}

// PredictEventPayload is one event in a prediction request. It matches
// the BehavioralEvent schema minus user_id and received_at, both of
// which are server-controlled.
type PredictEventPayload struct {
	EventType string  `json:"event_type" validate:"required"`
	X         *int    `json:"x"`
	Y         *int    `json:"y"`
	Key       *string `json:"key"`
	Timestamp int64   `json:"timestamp" validate:"required"`
}

// PredictRequest carries the events to score. At least 10 events are
// required to derive a scoreable window.
type PredictRequest struct {
	Events []PredictEventPayload `json:"events" validate:"required,min=10,dive"`
}

// PredictResponse carries one score per derived feature window.
type PredictResponse struct {
	UserID string             `json:"user_id"`
	Scores []risk.WindowScore `json:"scores"`
}

// HandlePredict scores a batch of fresh events against the user's
// trained model.
func (h *Handler) HandlePredict(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	if userID == "" {
		h.writeError(w, domainerrors.NewValidationError("MISSING_USER_ID", "user_id path parameter is required"))
		return
	}

	var req PredictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, domainerrors.NewParseError("request body is not valid JSON").WithCause(err))
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		h.metrics.PredictionsTotal.WithLabelValues("invalid").Inc()
		h.writeError(w, domainerrors.NewValidationError("INVALID_REQUEST", "at least 10 well-formed events are required").WithCause(err))
		return
	}

	ctx, span := h.tracer.Start(r.Context(), "risk.predict",
		trace.WithAttributes(
			attribute.String("user_id", userID),
			attribute.Int("events", len(req.Events)),
		))
	defer span.End()

	events := make([]event.BehavioralEvent, len(req.Events))
	for i, p := range req.Events {
		events[i] = event.BehavioralEvent{
			UserID:    userID,
			EventType: p.EventType,
			X:         p.X,
			Y:         p.Y,
			Key:       p.Key,
			Timestamp: p.Timestamp,
		}
	}

	scores, err := h.risk.Predict(ctx, userID, events)
	if err != nil {
		span.RecordError(err)
		h.metrics.PredictionsTotal.WithLabelValues(outcomeLabel(err)).Inc()
		h.writeError(w, err)
		return
	}

	h.metrics.PredictionsTotal.WithLabelValues("success").Inc()
	writeJSON(w, http.StatusOK, &PredictResponse{UserID: userID, Scores: scores})
}

// errorResponse is the wire shape of all error replies.
type errorResponse struct {
	Error *domainerrors.AppError `json:"error"`
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var appErr *domainerrors.AppError
	if !errors.As(err, &appErr) {
		h.logger.Error("unclassified error", zap.Error(err))
		appErr = domainerrors.NewInternalError("internal server error")
	}
	writeJSON(w, appErr.StatusCode, &errorResponse{Error: appErr})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func outcomeLabel(err error) string {
	switch {
	case domainerrors.IsCode(err, "INSUFFICIENT_DATA"):
		return "insufficient_data"
	case domainerrors.IsCode(err, "MODEL_NOT_FOUND"):
		return "model_not_found"
	default:
		return "error"
	}
}
