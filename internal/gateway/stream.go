package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mreyes/tablestakes/internal/live"
	"github.com/rs/zerolog/log"
)

// StreamConfig holds websocket connection settings.
type StreamConfig struct {
	WriteTimeout    time.Duration
	PongTimeout     time.Duration
	PingInterval    time.Duration
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultStreamConfig returns default websocket settings.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		WriteTimeout:    10 * time.Second,
		PongTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Origin policy belongs to the fronting gateway.
			return true
		},
	}
}

// StreamHandler bridges the live publisher to websocket clients: one
// subscription per connection, snapshots written as JSON text frames,
// connection teardown cancels the subscription.
type StreamHandler struct {
	publisher *live.Publisher
	upgrader  websocket.Upgrader
	config    StreamConfig
}

// NewStreamHandler creates a websocket stream handler.
func NewStreamHandler(publisher *live.Publisher, config StreamConfig) *StreamHandler {
	return &StreamHandler{
		publisher: publisher,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config: config,
	}
}

// HandleClockStream upgrades GET /api/tournaments/{id}/clock/ws and streams
// snapshots until the client disconnects.
func (h *StreamHandler) HandleClockStream(w http.ResponseWriter, r *http.Request) {
	tournamentID, ok := tournamentIDParam(w, r)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade websocket connection")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	sub := h.publisher.Subscribe(ctx, tournamentID)

	log.Info().
		Str("tournament_id", tournamentID.String()).
		Str("remote", conn.RemoteAddr().String()).
		Msg("clock stream opened")

	go h.readPump(conn, cancel)
	h.writePump(ctx, conn, sub, tournamentID)
}

// writePump delivers snapshots and pings until the subscription or the
// connection dies.
func (h *StreamHandler) writePump(ctx context.Context, conn *websocket.Conn, sub *live.Subscription, tournamentID uuid.UUID) {
	pinger := time.NewTicker(h.config.PingInterval)
	defer func() {
		pinger.Stop()
		sub.Cancel()
		conn.Close()
		log.Info().
			Str("tournament_id", tournamentID.String()).
			Msg("clock stream closed")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-sub.Updates():
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			data, err := json.Marshal(snap)
			if err != nil {
				log.Error().Err(err).Msg("failed to marshal snapshot")
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Debug().Err(err).Msg("websocket write failed")
				return
			}
		case <-pinger.C:
			conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards client frames; it exists to notice disconnects and keep
// the pong deadline fresh.
func (h *StreamHandler) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(h.config.PongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(h.config.PongTimeout))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
