package push

import (
	"net/http"

	"nhooyr.io/websocket"

	"github.com/cem-sucu/ia-familiale/internal/appctx"
)

// Handler upgrades an authenticated request to a WebSocket connection and
// keeps it registered on the hub until the peer disconnects. The member ID
// must already be resolved by the caller (the auth middleware).
func (h *Hub) Handler(memberID string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := appctx.GetLogger(r.Context())

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			// Clients connect from native apps and local tooling, not
			// browsers on a shared origin.
			InsecureSkipVerify: true,
		})
		if err != nil {
			logger.Warn("websocket accept failed", "member", memberID, "error", err)
			return
		}
		defer conn.Close(websocket.StatusInternalError, "server closing")

		unsubscribe := h.Subscribe(memberID, conn)
		defer unsubscribe()

		// The client never sends application data; drain control frames
		// until the connection drops.
		ctx := r.Context()
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}
		}
	}
}
