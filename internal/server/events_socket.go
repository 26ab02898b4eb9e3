package server

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/aristath/chartwatch/internal/events"
)

// EventsSocketHandler serves the same event feed as the SSE stream over
// a websocket, for clients that keep a bidirectional connection open.
type EventsSocketHandler struct {
	eventManager *events.Manager
	log          zerolog.Logger
}

// NewEventsSocketHandler creates a new websocket event feed handler
func NewEventsSocketHandler(eventManager *events.Manager, log zerolog.Logger) *EventsSocketHandler {
	return &EventsSocketHandler{
		eventManager: eventManager,
		log:          log.With().Str("component", "events_socket").Logger(),
	}
}

// ServeHTTP handles GET /api/events/ws requests
func (h *EventsSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Dashboard is served same-origin; local tools may connect directly
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("Websocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "event feed closed")

	h.log.Info().Msg("Client connected to websocket event feed")

	eventChan := make(chan *events.Event, 100)

	unsubscribe := h.eventManager.Subscribe(func(event *events.Event) {
		select {
		case eventChan <- event:
		default:
			h.log.Warn().
				Str("event_type", string(event.Type)).
				Msg("Websocket event channel full, dropping event")
		}
	})
	defer unsubscribe()

	ctx := r.Context()

	// Discard inbound messages, the feed is one-way. This also surfaces
	// client disconnects as read errors.
	go func() {
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			h.log.Info().Msg("Client disconnected from websocket event feed")
			conn.Close(websocket.StatusNormalClosure, "")
			return

		case event := <-eventChan:
			if err := h.write(ctx, conn, event); err != nil {
				h.log.Debug().Err(err).Msg("Websocket write failed, closing feed")
				return
			}

		case <-heartbeat.C:
			ping := &events.Event{
				Type:      "heartbeat",
				Timestamp: time.Now(),
				Module:    "system",
			}
			if err := h.write(ctx, conn, ping); err != nil {
				return
			}
		}
	}
}

func (h *EventsSocketHandler) write(ctx context.Context, conn *websocket.Conn, event *events.Event) error {
	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return wsjson.Write(writeCtx, conn, event)
}
