package telemetry

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"wafgateway/internal/core"
)

// wsSubscriber adapts a coder/websocket connection to the Subscriber
// interface the Hub broadcasts against.
type wsSubscriber struct {
	conn *websocket.Conn
}

func (s wsSubscriber) Send(message []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.conn.Write(ctx, websocket.MessageText, message)
}

// ServeWS upgrades the request to a WebSocket and registers it with the
// hub as an admin or tenant subscriber per the `type`/`client_id` query
// parameters, per spec §6. Runs the connection's read loop, handling
// "ping"/"status" control messages, until disconnect.
func ServeWS(hub *Hub, log *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			log.Warnw("telemetry: websocket accept failed", "error", err)
			return
		}
		defer conn.CloseNow()

		kind := core.SubscriberAdmin
		tenantID := ""
		if r.URL.Query().Get("type") == "client" {
			kind = core.SubscriberTenant
			tenantID = r.URL.Query().Get("client_id")
		}

		id := uuid.NewString()
		sub := wsSubscriber{conn: conn}
		hub.Subscribe(id, kind, tenantID, sub)
		defer hub.Unsubscribe(id, kind, tenantID)

		ctx := r.Context()
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			handleControlMessage(ctx, conn, hub, string(data))
		}
	}
}

func handleControlMessage(ctx context.Context, conn *websocket.Conn, hub *Hub, msg string) {
	switch msg {
	case "ping":
		_ = conn.Write(ctx, websocket.MessageText, []byte("pong"))
	case "status":
		status := struct {
			Type        string `json:"type"`
			Connections int    `json:"connections"`
			Timestamp   int64  `json:"timestamp"`
		}{Type: "status", Connections: hub.activeConnections(), Timestamp: time.Now().Unix()}
		if encoded, err := json.Marshal(status); err == nil {
			_ = conn.Write(ctx, websocket.MessageText, encoded)
		}
	}
}
