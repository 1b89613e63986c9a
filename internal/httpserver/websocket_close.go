package httpserver

import (
	"errors"
	"log/slog"

	"nhooyr.io/websocket"
)

// closeWebsocket sends a close frame with status and reason. Errors from peers
// that already went away are expected and only logged at Debug.
func closeWebsocket(logger *slog.Logger, conn *websocket.Conn, status websocket.StatusCode, reason string) {
	if conn == nil {
		return
	}
	err := conn.Close(status, reason)
	if err == nil || logger == nil {
		return
	}
	var closeErr websocket.CloseError
	if errors.As(err, &closeErr) {
		logger.Debug("websocket closed by peer", "code", closeErr.Code, "reason", closeErr.Reason)
		return
	}
	logger.Debug("websocket close failed", "err", err, "status", status)
}
