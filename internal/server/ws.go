package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// WSHandler exposes the same line protocol over WebSocket: one text frame
// carries one line, no newline framing needed.
func (s *Server) WSHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
			return
		}
		s.logger.Debug("websocket client connected", "remote", r.RemoteAddr)
		s.runSession(&wsLineConn{conn: ws})
	})
}

// wsLineConn adapts a gorilla connection to the lineConn contract. gorilla
// allows at most one concurrent writer, which writeMu guarantees.
type wsLineConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *wsLineConn) ReadLine() (string, error) {
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			return "", err
		}
		if kind != websocket.TextMessage {
			continue
		}
		return string(data), nil
	}
}

func (c *wsLineConn) WriteLine(line string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, []byte(line))
}

func (c *wsLineConn) Close() error { return c.conn.Close() }

func (c *wsLineConn) RemoteAddr() string { return c.conn.RemoteAddr().String() }
