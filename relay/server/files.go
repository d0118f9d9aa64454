package server

import (
	"fmt"
	"time"

	"github.com/clipsync/clipsync/observability"
	"github.com/clipsync/clipsync/relay/protocol"
)

// handleFileMeta validates a transfer announcement, creates the record, and
// mirrors the meta to the other side. The announcing role becomes the file's
// sender for the rest of its lifetime.
func (s *Server) handleFileMeta(sess *session, cc *clientConn, m protocol.FileMeta) {
	if m.FileID == "" || m.FileName == "" || m.TotalChunks <= 0 {
		s.trySend(cc, protocol.NewError("Invalid file meta"))
		s.obs.File(observability.FileEventRejected)
		return
	}

	now := time.Now()
	sess.mu.Lock()
	if _, exists := sess.files[m.FileID]; !exists && sess.activeFiles() >= s.cfg.MaxSimultaneousFiles {
		sess.mu.Unlock()
		s.trySend(cc, protocol.NewError(fmt.Sprintf("Too many simultaneous file transfers. Maximum is %d", s.cfg.MaxSimultaneousFiles)))
		s.obs.File(observability.FileEventRejected)
		return
	}
	effectiveSize := int64(m.TotalChunks) * int64(s.cfg.ChunkSize)
	if m.TotalSize != nil {
		effectiveSize = *m.TotalSize
	}
	if effectiveSize > s.cfg.MaxFileSize {
		sess.mu.Unlock()
		s.trySend(cc, protocol.NewError(fmt.Sprintf("File too large. Maximum size is %dMB", s.cfg.MaxFileSize/(1<<20))))
		s.obs.File(observability.FileEventRejected)
		return
	}
	sess.files[m.FileID] = &fileRecord{
		id:           m.FileID,
		name:         m.FileName,
		totalChunks:  m.TotalChunks,
		totalSize:    m.TotalSize,
		sender:       cc.role,
		received:     make(map[int]struct{}),
		status:       fileSending,
		createdAt:    now,
		lastActivity: now,
	}
	peer := sess.slots[cc.role.Other()]
	sess.mu.Unlock()

	s.obs.File(observability.FileEventStarted)
	s.log.Debug("file transfer started", "pair", cc.pairID, "file", m.FileID, "chunks", m.TotalChunks)
	s.trySend(peer, protocol.NewFileMeta(m.FileID, m.FileName, m.TotalChunks, m.TotalSize))
}

// handleFileChunk relays one chunk to the receiver. The chunk is not marked
// received here; only the receiver's ack does that. Unknown files, paused
// files, out-of-range indices, and already-acknowledged chunks are dropped.
func (s *Server) handleFileChunk(sess *session, cc *clientConn, m protocol.FileChunk) {
	now := time.Now()
	sess.mu.Lock()
	rec := sess.files[m.FileID]
	if rec == nil {
		sess.mu.Unlock()
		s.log.Debug("chunk for unknown file", "pair", cc.pairID, "file", m.FileID)
		return
	}
	if rec.status != fileSending {
		sess.mu.Unlock()
		return
	}
	if m.ChunkIndex < 0 || m.ChunkIndex >= rec.totalChunks {
		sess.mu.Unlock()
		s.log.Debug("chunk index out of range", "pair", cc.pairID, "file", m.FileID, "index", m.ChunkIndex)
		return
	}
	rec.lastActivity = now
	receiver := sess.slots[rec.sender.Other()]
	if receiver == nil || receiver.closed.Load() {
		rec.status = filePaused
		senderConn := sess.slots[rec.sender]
		sess.mu.Unlock()
		msg := protocol.NewFilePaused(m.FileID, "Receiver unavailable")
		s.trySend(senderConn, msg)
		s.trySend(receiver, msg)
		s.obs.File(observability.FileEventPaused)
		return
	}
	if _, dup := rec.received[m.ChunkIndex]; dup {
		sess.mu.Unlock()
		return
	}
	totalChunks := m.TotalChunks
	if totalChunks <= 0 {
		totalChunks = rec.totalChunks
	}
	sess.mu.Unlock()

	s.relayChunk(sess, receiver, protocol.NewFileChunk(m.FileID, m.ChunkIndex, totalChunks, m.Data))
}

// relayChunk forwards one chunk with bounded retries and linear backoff.
// Exhausting the retry budget pauses the file with reason "Relay failed".
func (s *Server) relayChunk(sess *session, receiver *clientConn, msg protocol.FileChunkMsg) {
	var err error
	for attempt := 1; attempt <= s.cfg.ChunkRetryLimit; attempt++ {
		if attempt > 1 {
			s.obs.ChunkRetry()
			time.Sleep(s.cfg.ChunkRetryBackoff * time.Duration(attempt-1))
		}
		if err = s.send(receiver, msg); err == nil {
			s.obs.ChunkRelayed(len(msg.Data))
			return
		}
	}
	s.log.Warn("chunk relay failed", "pair", receiver.pairID, "file", msg.FileID, "index", msg.ChunkIndex, "err", err)

	now := time.Now()
	sess.mu.Lock()
	rec := sess.files[msg.FileID]
	if rec == nil || rec.status != fileSending {
		sess.mu.Unlock()
		return
	}
	rec.status = filePaused
	rec.lastActivity = now
	senderConn := sess.slots[rec.sender]
	receiverConn := sess.slots[rec.sender.Other()]
	sess.mu.Unlock()

	paused := protocol.NewFilePaused(msg.FileID, "Relay failed")
	s.trySend(senderConn, paused)
	s.trySend(receiverConn, paused)
	s.obs.File(observability.FileEventPaused)
}

// handleFileChunkAck records the receiver's receipt, unblocks the sender,
// reports progress, and drives completion when the last distinct chunk is
// acknowledged.
func (s *Server) handleFileChunkAck(sess *session, cc *clientConn, m protocol.FileChunkAck) {
	now := time.Now()
	sess.mu.Lock()
	rec := sess.files[m.FileID]
	if rec == nil {
		sess.mu.Unlock()
		return
	}
	if m.ChunkIndex < 0 || m.ChunkIndex >= rec.totalChunks {
		sess.mu.Unlock()
		return
	}
	rec.received[m.ChunkIndex] = struct{}{}
	rec.lastActivity = now
	received := len(rec.received)
	totalChunks := rec.totalChunks
	completed := received == totalChunks && rec.status != fileCompleted
	if completed {
		rec.status = fileCompleted
		rec.completedAt = now
	}
	senderConn := sess.slots[rec.sender]
	receiverConn := sess.slots[rec.sender.Other()]
	sess.mu.Unlock()

	s.trySend(senderConn, protocol.NewFileChunkAck(m.FileID, m.ChunkIndex))
	s.trySend(receiverConn, protocol.NewFileProgress(m.FileID, received, totalChunks))
	if completed {
		done := protocol.NewFileComplete(m.FileID)
		s.trySend(senderConn, done)
		s.trySend(receiverConn, done)
		s.obs.File(observability.FileEventCompleted)
		s.log.Debug("file transfer completed", "pair", cc.pairID, "file", m.FileID)
	}
}

// handleFileComplete forwards the sender's end-of-file marker. It is
// informational only; authoritative completion is driven by acks.
func (s *Server) handleFileComplete(sess *session, cc *clientConn, m protocol.FileComplete) {
	sess.mu.Lock()
	peer := sess.slots[cc.role.Other()]
	sess.mu.Unlock()
	s.trySend(peer, protocol.NewFileComplete(m.FileID))
}

// handlePauseFile pauses a transfer on request from either side.
func (s *Server) handlePauseFile(sess *session, cc *clientConn, m protocol.PauseFile) {
	now := time.Now()
	sess.mu.Lock()
	rec := sess.files[m.FileID]
	if rec == nil || rec.status == fileCompleted {
		sess.mu.Unlock()
		return
	}
	rec.status = filePaused
	rec.lastActivity = now
	senderConn := sess.slots[rec.sender]
	receiverConn := sess.slots[rec.sender.Other()]
	sess.mu.Unlock()

	msg := protocol.NewFilePaused(m.FileID, "")
	s.trySend(senderConn, msg)
	s.trySend(receiverConn, msg)
	s.obs.File(observability.FileEventPaused)
}

// handleResumeFile resumes a non-completed transfer and points the sender at
// the exact set of chunks still missing.
func (s *Server) handleResumeFile(sess *session, cc *clientConn, m protocol.ResumeFile) {
	now := time.Now()
	sess.mu.Lock()
	rec := sess.files[m.FileID]
	if rec == nil || rec.status == fileCompleted {
		sess.mu.Unlock()
		return
	}
	rec.status = fileSending
	rec.lastActivity = now
	missing := rec.missing()
	senderConn := sess.slots[rec.sender]
	receiverConn := sess.slots[rec.sender.Other()]
	sess.mu.Unlock()

	msg := protocol.NewFileResumed(m.FileID)
	s.trySend(senderConn, msg)
	s.trySend(receiverConn, msg)
	s.trySend(senderConn, protocol.NewMissingChunks(m.FileID, missing))
	s.obs.File(observability.FileEventResumed)
}

// handleRequestChunks relays the receiver's explicit recovery request to the
// sender as a file_missing_chunks directive.
func (s *Server) handleRequestChunks(sess *session, cc *clientConn, m protocol.RequestChunks) {
	sess.mu.Lock()
	rec := sess.files[m.FileID]
	if rec == nil {
		sess.mu.Unlock()
		return
	}
	senderConn := sess.slots[rec.sender]
	sess.mu.Unlock()
	s.trySend(senderConn, protocol.NewMissingChunks(m.FileID, m.Chunks))
}

// handleMissingChunks processes the sender's reply to a missing-chunks
// directive. Elements carrying inline data are relayed as ordinary chunks;
// bare indices are ignored and the sender follows up with file_chunk frames.
func (s *Server) handleMissingChunks(sess *session, cc *clientConn, m protocol.MissingChunks) {
	for _, rc := range m.Resent {
		rc.FileID = m.FileID
		s.handleFileChunk(sess, cc, rc)
	}
}
