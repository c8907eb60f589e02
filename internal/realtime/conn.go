package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// Clients only send control frames; anything larger is abuse.
	maxMessageSize = 4 * 1024
)

// Upgrader is shared by the HTTP handler. Origin checks are done by the
// CORS middleware before the upgrade.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeConn pumps sub into conn until either side goes away. backlog is
// written first, oldest first. On return the subscription is removed from
// hub and conn is closed; nothing else is touched.
func ServeConn(ctx context.Context, conn *websocket.Conn, hub *Hub, sub *Subscription, backlog []Envelope) {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		hub.Unsubscribe(sub)
		_ = conn.Close()
	}()

	go readPump(conn, cancel)

	for _, env := range backlog {
		if err := writeEnvelope(conn, env); err != nil {
			return
		}
	}

	// Next wakes on ctx cancellation, so a dead reader stops the writer too.
	frames := make(chan Envelope)
	go func() {
		defer close(frames)
		for {
			env, err := sub.Next(ctx)
			if err != nil {
				return
			}
			select {
			case frames <- env:
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case env, ok := <-frames:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(writeWait))
				return
			}
			if err := writeEnvelope(conn, env); err != nil {
				log.Debug().Err(err).Str("user_id", sub.UserID).Msg("realtime write failed")
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// readPump discards client frames and cancels when the peer disconnects or
// stops answering pings.
func readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debug().Err(err).Msg("realtime unexpected close")
			}
			return
		}
	}
}

func writeEnvelope(conn *websocket.Conn, env Envelope) error {
	b, err := json.Marshal(env)
	if err != nil {
		return errors.Join(errors.New("marshal envelope"), err)
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, b)
}
