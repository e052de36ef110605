// Package wsconn adapts a gorilla/websocket connection to the io.Writer the
// socket multiplexer writes frames to, plus a read loop that feeds each
// incoming message to the multiplexer's DispatchLine. The multiplexer is
// specified over "any reliable bidirectional byte stream" (spec §4.2); a
// websocket connection satisfies that contract exactly as a TCP socket
// does, so browser-hosted clients can reach the cluster without the
// excluded HTTP façade (spec §1). Framing is unchanged: each websocket
// message carries exactly one newline-terminated REQ/RES line.
package wsconn

import (
	"log/slog"

	"github.com/gorilla/websocket"
)

// Writer wraps a *websocket.Conn as an io.Writer, sending each Write call's
// bytes as one text message. The socket multiplexer's writer goroutine
// already calls Write once per complete frame, so this maps one frame to
// one message.
type Writer struct {
	Conn *websocket.Conn
}

func (w Writer) Write(p []byte) (int, error) {
	if err := w.Conn.WriteMessage(websocket.TextMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// ReadLoop reads messages from conn until it errors or closes, handing each
// one to deliver (typically (*socket.Multiplexer).DispatchLine). It returns
// when the connection ends, logging at the boundary the way the rest of the
// codebase restricts logging to connection lifecycle events.
func ReadLoop(conn *websocket.Conn, deliver func(line string)) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			slog.Info("wsconn: read loop ending", "err", err)
			return
		}
		deliver(string(msg))
	}
}
