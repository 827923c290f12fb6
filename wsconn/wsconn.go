// Package wsconn adapts a *websocket.Conn into an io.ReadWriteCloser so
// lspserver.Server.Serve can run a session over a browser-based editor's
// WebSocket transport exactly as it would over stdio or a Unix socket.
// Not part of CORE: an embedder chooses this, wire a net.Conn directly,
// or use stdio — Serve only ever sees io.ReadWriter.
package wsconn

import (
	"io"

	"github.com/gorilla/websocket"
	"golang.org/x/xerrors"
)

// Conn presents one *websocket.Conn's binary message stream as a plain
// byte stream. Each Write becomes one binary WebSocket message (a frame
// larger than the codec's write buffer spans several); reads
// transparently stitch together whatever
// message boundaries the peer chose to use, since Content-Length framing
// does not require them to line up with WebSocket message boundaries.
type Conn struct {
	ws *websocket.Conn

	readBuf []byte
}

func New(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws}
}

func (c *Conn) Read(p []byte) (int, error) {
	for len(c.readBuf) == 0 {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			return 0, xerrors.Errorf("wsconn: read message: %w", err)
		}
		if msgType != websocket.BinaryMessage && msgType != websocket.TextMessage {
			continue
		}
		c.readBuf = data
	}
	n := copy(p, c.readBuf)
	c.readBuf = c.readBuf[n:]
	return n, nil
}

func (c *Conn) Write(p []byte) (int, error) {
	if err := c.ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, xerrors.Errorf("wsconn: write message: %w", err)
	}
	return len(p), nil
}

func (c *Conn) Close() error {
	return c.ws.Close()
}

var _ io.ReadWriteCloser = (*Conn)(nil)
