package api

import (
	"context"
	"net/http"

	"github.com/coder/websocket"
)

// wsViewer adapts a websocket connection to hub.Subscriber.
type wsViewer struct{ conn *websocket.Conn }

func (v wsViewer) Send(ctx context.Context, payload []byte) error {
	return v.conn.Write(ctx, websocket.MessageText, payload)
}

// liveFeed registers the caller as a live viewer until it disconnects.
// Frames sent by the viewer are echoed back.
func (h *Handler) liveFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		h.log.Warn("websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	id := h.viewers.Add(wsViewer{conn: conn})
	defer h.viewers.Remove(id)
	h.log.Debug("viewer connected", "viewer", id)

	ctx := r.Context()
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			h.log.Debug("viewer gone", "viewer", id, "status", websocket.CloseStatus(err))
			return
		}
		if err := conn.Write(ctx, typ, data); err != nil {
			return
		}
	}
}
