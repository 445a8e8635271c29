package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	shareservice "share_server/server/share/service"
)

var inboxUpgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// handleInboxWS keeps a connection open for push hints. Clients send nothing
// meaningful; reads only detect disconnects and keep the deadline moving.
func (h *Handler) handleInboxWS(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	conn, err := inboxUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &shareservice.WSClient{UserID: userID, ConnID: uuid.NewString(), Conn: conn}
	h.hub.Register(client)
	defer h.hub.Unregister(client)

	client.WriteJSON(map[string]any{
		"type":        "inbox.connected",
		"userId":      userID,
		"connectedAt": time.Now().UTC(),
	})

	for {
		if err := conn.SetReadDeadline(time.Now().Add(90 * time.Second)); err != nil {
			return
		}
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
