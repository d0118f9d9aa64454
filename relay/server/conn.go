package server

import (
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/clipsync/clipsync/relay/protocol"
)

var errPeerUnavailable = errors.New("peer unavailable")

// clientConn is one authenticated websocket bound into a role slot. The
// (pairID, role) context is immutable; session state is reached through the
// registry, never through back-references.
type clientConn struct {
	pairID     string
	role       protocol.Role
	deviceName string
	ws         *websocket.Conn

	alive  atomic.Bool // Cleared by the heartbeat sweep, re-armed by pongs.
	closed atomic.Bool

	writeMu sync.Mutex // Serializes data-frame writes.
}

// send marshals v and writes it as one text frame. A nil or closed target
// reports errPeerUnavailable without touching the socket.
func (s *Server) send(cc *clientConn, v any) error {
	if cc == nil || cc.closed.Load() {
		return errPeerUnavailable
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	cc.writeMu.Lock()
	defer cc.writeMu.Unlock()
	if cc.closed.Load() {
		return errPeerUnavailable
	}
	_ = cc.ws.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	return cc.ws.WriteMessage(websocket.TextMessage, b)
}

// trySend is the relay's safe-send primitive: an unavailable target drops
// the frame silently and a failed write is logged, never fatal.
func (s *Server) trySend(cc *clientConn, v any) {
	err := s.send(cc, v)
	if err == nil || errors.Is(err, errPeerUnavailable) {
		return
	}
	s.log.Debug("send failed", "pair", cc.pairID, "role", cc.role, "err", err)
}

// closeConn sends a close frame, tears the socket down, and untracks it.
// Safe to call from any goroutine and idempotent.
func (s *Server) closeConn(cc *clientConn, code int, reason string) {
	if cc == nil || !cc.closed.CompareAndSwap(false, true) {
		return
	}
	deadline := time.Now().Add(2 * time.Second)
	_ = cc.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	_ = cc.ws.Close()
	s.untrackConn(cc)
}

// ping sends a transport-level ping. Control frames are safe to write
// concurrently with data frames.
func (s *Server) ping(cc *clientConn) error {
	return cc.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(2*time.Second))
}
