package gameserver

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/cory-johannsen/dungeonclicker/internal/game/progression"
)

// EventsRoute is the websocket route of the fight event feed.
const EventsRoute = "GET /fights/{player_id}/events"

// writeTimeout bounds a single websocket frame write.
const writeTimeout = 5 * time.Second

// EventsHandler streams a player's fight events as JSON websocket messages.
// The first message is a snapshot of the fight; the rest are fight events.
type EventsHandler struct {
	fights             *FightHandler
	insecureSkipVerify bool
	logger             *zap.Logger
}

// NewEventsHandler creates an EventsHandler.
//
// Precondition: fights and logger must be non-nil.
func NewEventsHandler(fights *FightHandler, insecureSkipVerify bool, logger *zap.Logger) *EventsHandler {
	return &EventsHandler{fights: fights, insecureSkipVerify: insecureSkipVerify, logger: logger}
}

// Routes returns a mux serving the event feed at EventsRoute.
func (h *EventsHandler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle(EventsRoute, h)
	return mux
}

// ServeHTTP implements http.Handler.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	playerID, err := strconv.ParseInt(r.PathValue("player_id"), 10, 64)
	if err != nil || playerID <= 0 {
		http.Error(w, "player_id must be a positive integer", http.StatusBadRequest)
		return
	}

	events, cancel, err := h.fights.Subscribe(r.Context(), playerID)
	if err != nil {
		code := http.StatusInternalServerError
		switch {
		case errors.Is(err, progression.ErrPlayerNotFound):
			code = http.StatusNotFound
		case errors.Is(err, ErrHandlerClosed):
			code = http.StatusServiceUnavailable
		default:
			h.logger.Error("subscribing to fight events", zap.Int64("player_id", playerID), zap.Error(err))
		}
		http.Error(w, err.Error(), code)
		return
	}
	defer cancel()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: h.insecureSkipVerify,
	})
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Int64("player_id", playerID), zap.Error(err))
		return
	}
	defer conn.CloseNow()

	// The feed is one-way; CloseRead handles control frames and cancels ctx
	// when the client goes away.
	ctx := conn.CloseRead(r.Context())
	logger := h.logger.With(zap.Int64("player_id", playerID))
	logger.Debug("event feed connected")

	view, err := h.fights.GetFight(ctx, playerID)
	if err != nil {
		conn.Close(websocket.StatusInternalError, "fight unavailable")
		return
	}
	if err := h.write(ctx, conn, snapshotEvent(view)); err != nil {
		logger.Debug("event feed write failed", zap.Error(err))
		return
	}

	for {
		select {
		case <-ctx.Done():
			logger.Debug("event feed disconnected")
			return
		case e, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "fight closed")
				return
			}
			if err := h.write(ctx, conn, eventMap(e)); err != nil {
				if !errors.Is(err, context.Canceled) {
					logger.Debug("event feed write failed", zap.Error(err))
				}
				return
			}
		}
	}
}

func (h *EventsHandler) write(ctx context.Context, conn *websocket.Conn, v map[string]any) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, v)
}
