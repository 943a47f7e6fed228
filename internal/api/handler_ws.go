package api

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"laundry-smart-queue/internal/feed"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

// wsMessage is the envelope written to display clients.
type wsMessage struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type snapshot struct {
	Machines []machineResponse `json:"machines"`
}

func newUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			if allowed[origin] {
				return true
			}
			u, err := url.Parse(origin)
			return err == nil && u.Host == r.Host
		},
	}
}

// Watch returns the GET /api/ws handler. Each client gets the full machine
// list on connect and again after every change signal.
func (h *Handler) Watch(allowedOrigins []string) gin.HandlerFunc {
	upgrader := newUpgrader(allowedOrigins)
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			h.log.WithError(err).Debug("websocket upgrade failed")
			return
		}
		h.serveWatcher(c.Request.Context(), conn)
	}
}

func (h *Handler) serveWatcher(ctx context.Context, conn *websocket.Conn) {
	log := h.log.WithField("client", uuid.NewString())
	log.Debug("watcher connected")
	defer conn.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Buffer of one: a pending signal already means "re-read".
	changed := make(chan struct{}, 1)
	sub := h.hub.Subscribe(func(feed.Event) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer sub.Unsubscribe()

	go func() {
		defer cancel()
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	if err := h.writeSnapshot(ctx, conn); err != nil {
		log.WithError(err).Debug("initial snapshot failed")
		return
	}
	for {
		select {
		case <-ctx.Done():
			log.Debug("watcher disconnected")
			return
		case <-changed:
			if err := h.writeSnapshot(ctx, conn); err != nil {
				log.WithError(err).Debug("snapshot write failed")
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Handler) writeSnapshot(ctx context.Context, conn *websocket.Conn) error {
	machines, err := h.svc.ListMachines(ctx)
	if err != nil {
		h.log.WithError(err).Warn("snapshot read failed")
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(wsMessage{Event: "error", Data: gin.H{"error": "Failed to load machines"}})
	}
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(wsMessage{
		Event: "snapshot",
		Data:  snapshot{Machines: machineResponses(machines, time.Now())},
	})
}

