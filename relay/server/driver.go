package server

import (
	"time"

	"github.com/gorilla/websocket"

	"github.com/clipsync/clipsync/observability"
	"github.com/clipsync/clipsync/relay/protocol"
)

// bind installs cc into its role slot, displacing any previous holder, and
// runs the post-register replay sequence: status, clipboard history,
// in-flight file state, pairing notifications, and auto-resume of paused
// files. Reports false when the session was reaped between lookup and bind.
func (s *Server) bind(sess *session, cc *clientConn) bool {
	now := time.Now()

	type resume struct {
		to  *clientConn
		msg protocol.MissingChunksMsg
	}

	sess.mu.Lock()
	if sess.removed {
		sess.mu.Unlock()
		return false
	}
	old := sess.slots[cc.role]
	sess.slots[cc.role] = cc
	sess.touch(now)
	peer := sess.slots[cc.role.Other()]
	paired := peer != nil
	if paired {
		sess.everPaired = true
	}

	// Snapshot everything to replay while holding the lock; the writes
	// themselves happen after release.
	history := make([]protocol.ClipboardMsg, 0, len(sess.history))
	for _, e := range sess.history {
		history = append(history, protocol.NewClipboard(e.from, e.content))
	}
	var metas []protocol.FileMetaMsg
	var progress []protocol.FileProgressMsg
	var resumes []resume
	for _, rec := range sess.files {
		if rec.status == fileCompleted {
			continue
		}
		if rec.sender == cc.role {
			progress = append(progress, protocol.NewFileProgress(rec.id, len(rec.received), rec.totalChunks))
		} else {
			metas = append(metas, protocol.NewFileMeta(rec.id, rec.name, rec.totalChunks, rec.totalSize))
		}
		if rec.status == filePaused {
			senderConn := sess.slots[rec.sender]
			if senderConn == nil || senderConn.closed.Load() {
				continue
			}
			// Reconnect auto-resumes: flip back to sending so the
			// re-sent chunks are not dropped by the paused rule.
			rec.status = fileSending
			rec.lastActivity = now
			resumes = append(resumes, resume{to: senderConn, msg: protocol.NewMissingChunks(rec.id, rec.missing())})
		}
	}
	sess.mu.Unlock()

	if old != nil && old != cc {
		s.obs.Replace()
		s.log.Debug("slot replaced", "pair", cc.pairID, "role", cc.role)
		s.closeConn(old, websocket.CloseNormalClosure, "replaced")
	}

	s.trySend(cc, protocol.NewStatus(string(cc.role)+" registered."))
	for _, m := range history {
		s.trySend(cc, m)
	}
	for _, m := range metas {
		s.trySend(cc, m)
	}
	for _, m := range progress {
		s.trySend(cc, m)
	}
	if paired {
		pcConn, appConn := cc, peer
		if cc.role == protocol.RoleApp {
			pcConn, appConn = peer, cc
		}
		s.trySend(pcConn, protocol.NewStatus("Mobile connected"))
		s.trySend(appConn, protocol.NewStatus("PC connected"))
	}
	for _, r := range resumes {
		s.trySend(r.to, r.msg)
	}
	return true
}

// readLoop drives one connection: one frame at a time, dispatched by kind.
// Malformed frames are dropped (or, with StrictFrames, answered with a 1008
// close). The loop exits on any read error, which funnels into the
// disconnect path.
func (s *Server) readLoop(sess *session, cc *clientConn) {
	defer s.handleDisconnect(sess, cc)
	for {
		mt, b, err := cc.ws.ReadMessage()
		if err != nil {
			return
		}
		if mt != websocket.TextMessage {
			s.log.Debug("dropping non-text frame", "pair", cc.pairID, "role", cc.role)
			continue
		}
		sess.mu.Lock()
		sess.touch(time.Now())
		sess.mu.Unlock()

		msg, err := protocol.Parse(b)
		if err != nil {
			if s.cfg.StrictFrames {
				s.closeConn(cc, websocket.ClosePolicyViolation, "Invalid JSON")
				return
			}
			s.log.Debug("dropping malformed frame", "pair", cc.pairID, "role", cc.role, "err", err)
			continue
		}
		s.dispatch(sess, cc, msg)
	}
}

func (s *Server) dispatch(sess *session, cc *clientConn, msg protocol.Message) {
	switch m := msg.(type) {
	case protocol.Clipboard:
		s.handleClipboard(sess, cc, m)
	case protocol.FileMeta:
		s.handleFileMeta(sess, cc, m)
	case protocol.FileChunk:
		s.handleFileChunk(sess, cc, m)
	case protocol.FileChunkAck:
		s.handleFileChunkAck(sess, cc, m)
	case protocol.FileComplete:
		s.handleFileComplete(sess, cc, m)
	case protocol.PauseFile:
		s.handlePauseFile(sess, cc, m)
	case protocol.ResumeFile:
		s.handleResumeFile(sess, cc, m)
	case protocol.RequestChunks:
		s.handleRequestChunks(sess, cc, m)
	case protocol.MissingChunks:
		s.handleMissingChunks(sess, cc, m)
	}
}

// handleClipboard retains the entry in history and forwards it. History
// retention happens even when the other side is absent.
func (s *Server) handleClipboard(sess *session, cc *clientConn, m protocol.Clipboard) {
	now := time.Now()
	sess.mu.Lock()
	sess.history = append(sess.history, clipboardEntry{from: cc.deviceName, content: m.Content, at: now})
	if drop := len(sess.history) - s.cfg.HistoryLimit; drop > 0 {
		kept := make([]clipboardEntry, s.cfg.HistoryLimit)
		copy(kept, sess.history[drop:])
		sess.history = kept
	}
	peer := sess.slots[cc.role.Other()]
	sess.mu.Unlock()

	s.trySend(peer, protocol.NewClipboard(cc.deviceName, m.Content))
	s.obs.ClipboardRelayed()
}

// handleDisconnect runs when a connection's read loop ends. If the socket
// still owns its slot, the slot is vacated, files it was sending are paused,
// and the remaining peer is told. A socket that lost its slot to a
// replacement is simply discarded.
func (s *Server) handleDisconnect(sess *session, cc *clientConn) {
	now := time.Now()
	sess.mu.Lock()
	if sess.slots[cc.role] != cc {
		sess.mu.Unlock()
		s.closeConn(cc, websocket.CloseNormalClosure, "")
		return
	}
	delete(sess.slots, cc.role)
	sess.touch(now)
	peer := sess.slots[cc.role.Other()]
	var paused []protocol.FilePausedMsg
	for _, rec := range sess.files {
		if rec.sender == cc.role && rec.status == fileSending {
			rec.status = filePaused
			rec.lastActivity = now
			paused = append(paused, protocol.NewFilePaused(rec.id, "Sender disconnected"))
		}
	}
	sess.mu.Unlock()

	s.closeConn(cc, websocket.CloseNormalClosure, "")
	s.log.Info("peer disconnected", "pair", cc.pairID, "role", cc.role, "device", cc.deviceName)
	if peer != nil {
		s.trySend(peer, protocol.NewPeerDisconnected(cc.role, cc.deviceName+" disconnected"))
		for _, m := range paused {
			s.trySend(peer, m)
			s.obs.File(observability.FileEventPaused)
		}
	}
}
