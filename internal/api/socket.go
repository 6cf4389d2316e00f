package api

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"

	"github.com/gorilla/websocket"
)

// upgrader permits cross-origin WebSocket handshakes, matching the
// teacher's dispatch.Hub upgrader: the driver/passenger apps are
// served from a different origin than this API.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func newConnID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
