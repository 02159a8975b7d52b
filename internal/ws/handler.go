package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/DoyleJ11/planning-poker-backend/internal/hub"
	"github.com/DoyleJ11/planning-poker-backend/internal/types"
)

const (
	outboxSize   = 32
	writeTimeout = 5 * time.Second
	pingInterval = 25 * time.Second
	pingTimeout  = 10 * time.Second
	readLimit    = 16 << 10
)

type Options struct {
	// OriginPatterns lists extra hosts allowed to open a socket. Same-origin
	// requests are always allowed.
	OriginPatterns []string
	Logger         *zap.Logger
	PingInterval   time.Duration
}

// Handler upgrades the request and bridges the socket to the hub: every
// inbound frame becomes a hub.FromClient, every outbox event is written as JSON.
func Handler(h *hub.Hub, opts Options) http.HandlerFunc {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("ws")
	ping := opts.PingInterval
	if ping <= 0 {
		ping = pingInterval
	}

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: opts.OriginPatterns,
		})
		if err != nil {
			log.Debug("upgrade failed", zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")
		conn.SetReadLimit(readLimit)

		connID := uuid.NewString()
		out := make(chan types.ServerMessage, outboxSize)
		if !h.Send(hub.Connect{ConnID: connID, Outbox: out}) {
			conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		}
		defer h.Send(hub.Disconnect{ConnID: connID})

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		go writeLoop(ctx, conn, out, log.With(zap.String("conn_id", connID)))
		go pingLoop(ctx, conn, ping, log.With(zap.String("conn_id", connID)))

		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					if !errors.Is(err, context.Canceled) {
						log.Debug("read failed", zap.String("conn_id", connID), zap.Error(err))
					}
				}
				return
			}
			if !h.Send(hub.FromClient{ConnID: connID, Frame: data}) {
				return
			}
		}
	}
}

// writeLoop drains out onto the socket. The hub closes out when it drops the
// client or shuts down; the socket is closed with it.
func writeLoop(ctx context.Context, conn *websocket.Conn, out <-chan types.ServerMessage, log *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-out:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "closing")
				return
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, conn, msg)
			cancel()
			if err != nil {
				log.Debug("write failed", zap.String("event", msg.Type), zap.Error(err))
				conn.Close(websocket.StatusInternalError, "write failed")
				return
			}
		}
	}
}

func pingLoop(ctx context.Context, conn *websocket.Conn, every time.Duration, log *zap.Logger) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pctx, cancel := context.WithTimeout(ctx, pingTimeout)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				log.Debug("ping failed", zap.Error(err))
				conn.Close(websocket.StatusPolicyViolation, "ping timeout")
				return
			}
		}
	}
}
