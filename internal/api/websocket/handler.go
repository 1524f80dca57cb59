// Package websocket implements the streaming ingestion gateway. Each
// client connection is served by one independent task; connections
// share only the broker client and validator configuration, both
// read-only and safe for concurrent use.
package websocket

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"behaviorguard/internal/domain/event"
	"behaviorguard/internal/infrastructure/config"
	"behaviorguard/internal/metrics"
)

const publishTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Telemetry is write-only and identity comes from the bearer
		// credential, not the origin.
		return true
	},
}

// Publisher is the broker seam the gateway publishes through.
type Publisher interface {
	Publish(ctx context.Context, payload []byte) error
	Ping(ctx context.Context) error
}

// TokenValidator verifies bearer credentials.
type TokenValidator interface {
	Validate(token string) (string, error)
}

// Handler serves the ingestion endpoint.
type Handler struct {
	validator TokenValidator
	publisher Publisher
	metrics   *metrics.Registry
	logger    *zap.Logger
	cfg       config.IngestConfig
}

// NewHandler creates the ingestion gateway handler.
func NewHandler(validator TokenValidator, publisher Publisher, m *metrics.Registry, cfg config.IngestConfig, logger *zap.Logger) *Handler {
	return &Handler{
		validator: validator,
		publisher: publisher,
		metrics:   m,
		logger:    logger.Named("ingest"),
		cfg:       cfg,
	}
}

// HandleIngest upgrades the connection and runs the per-stream task:
// authenticate, then read frames until the client disconnects. All
// authentication failures close with policy-violation (1008); broker
// unavailability at accept time closes with internal-error (1011).
func (h *Handler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err))
		return
	}

	session := NewConnection(r.RemoteAddr)
	h.metrics.ActiveConnections.Inc()
	defer func() {
		session.Transition(StateClosed)
		h.metrics.ActiveConnections.Dec()
		conn.Close()
	}()

	session.Transition(StateAuthenticating)

	userID, err := h.validator.Validate(bearerToken(r))
	if err != nil {
		h.logger.Warn("connection rejected",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err))
		h.closeWith(conn, websocket.ClosePolicyViolation, "invalid authentication token")
		return
	}

	pingCtx, cancel := context.WithTimeout(r.Context(), publishTimeout)
	err = h.publisher.Ping(pingCtx)
	cancel()
	if err != nil {
		h.logger.Error("broker unreachable, refusing connection", zap.Error(err))
		h.closeWith(conn, websocket.CloseInternalServerErr, "event broker unavailable")
		return
	}

	session.Authenticate(userID)
	h.logger.Info("client authenticated",
		zap.String("connection_id", session.ID.String()),
		zap.String("user_id", userID),
		zap.String("remote_addr", r.RemoteAddr))

	h.streamLoop(r.Context(), conn, session)
}

// streamLoop reads text frames until disconnect or an unrecoverable
// transport error. Frame-level failures never terminate the stream.
func (h *Handler) streamLoop(ctx context.Context, conn *websocket.Conn, session *Connection) {
	conn.SetReadLimit(h.cfg.MaxFrameBytes)
	conn.SetReadDeadline(time.Now().Add(h.cfg.ReadDeadline))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(h.cfg.ReadDeadline))
		return nil
	})

	limiter := rate.NewLimiter(rate.Limit(h.cfg.FramesPerSecond), h.cfg.FrameBurst)
	userID := session.UserID()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warn("stream ended with transport error",
					zap.String("connection_id", session.ID.String()),
					zap.Error(err))
			} else {
				h.logger.Info("client disconnected",
					zap.String("connection_id", session.ID.String()))
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(h.cfg.ReadDeadline))
		h.metrics.FramesReceived.Inc()

		if !limiter.Allow() {
			h.metrics.FramesDropped.WithLabelValues("rate_limited").Inc()
			continue
		}

		frame, err := event.DecodeFrame(message)
		if err != nil {
			// A bad frame is dropped; the connection stays open.
			h.logger.Warn("dropping malformed frame",
				zap.String("connection_id", session.ID.String()),
				zap.Error(err))
			h.metrics.FramesDropped.WithLabelValues("malformed").Inc()
			continue
		}

		enriched, err := frame.Enrich(userID)
		if err != nil {
			h.logger.Error("failed to enrich frame", zap.Error(err))
			h.metrics.FramesDropped.WithLabelValues("enrich").Inc()
			continue
		}

		publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
		err = h.publisher.Publish(publishCtx, enriched)
		cancel()
		if err != nil {
			// Publish failures do not terminate the stream.
			h.logger.Error("broker publish failed",
				zap.String("connection_id", session.ID.String()),
				zap.Error(err))
			h.metrics.PublishFailures.Inc()
			continue
		}
		h.metrics.EventsPublished.Inc()
	}
}

// bearerToken pulls the credential from the token query parameter or
// the Authorization header.
func bearerToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	return r.Header.Get("Authorization")
}

func (h *Handler) closeWith(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(time.Second)
	conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
}
