package server

import (
	"time"

	"github.com/gorilla/websocket"

	"github.com/clipsync/clipsync/observability"
	"github.com/clipsync/clipsync/relay/protocol"
)

// heartbeatLoop probes every live connection each interval. A connection
// that failed to pong since the previous sweep is terminated; the rest have
// their alive flag cleared and receive a fresh ping.
func (s *Server) heartbeatLoop() {
	t := time.NewTicker(s.cfg.HeartbeatInterval)
	defer t.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-t.C:
			s.connSet.Range(func(key any, _ any) bool {
				cc := key.(*clientConn)
				if !cc.alive.Load() {
					s.log.Debug("terminating unresponsive connection", "pair", cc.pairID, "role", cc.role)
					s.closeConn(cc, websocket.CloseGoingAway, "heartbeat timeout")
					return true
				}
				cc.alive.Store(false)
				if err := s.ping(cc); err != nil {
					s.log.Debug("ping failed", "pair", cc.pairID, "role", cc.role, "err", err)
				}
				return true
			})
		}
	}
}

// reaperLoop evicts expired sessions and stale file records on a fixed
// cadence. Deadlines live on the records themselves, so eviction lands
// within one tick of the configured timeout.
func (s *Server) reaperLoop() {
	t := time.NewTicker(s.cfg.ReaperInterval)
	defer t.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-t.C:
			s.reap(time.Now())
		}
	}
}

func (s *Server) reap(now time.Time) {
	s.mu.Lock()
	sessions := make([]*session, 0, len(s.sessions))
	for _, ss := range s.sessions {
		sessions = append(sessions, ss)
	}
	s.mu.Unlock()

	for _, ss := range sessions {
		var fileReaps []observability.ReapReason
		var orphans []*clientConn

		ss.mu.Lock()
		for id, rec := range ss.files {
			switch {
			case rec.status == fileCompleted && now.Sub(rec.completedAt) >= s.cfg.FileCleanupTimeout:
				delete(ss.files, id)
				fileReaps = append(fileReaps, observability.ReapReasonFileCompleted)
			case rec.status != fileCompleted && now.Sub(rec.lastActivity) >= s.cfg.FileCleanupTimeout:
				delete(ss.files, id)
				fileReaps = append(fileReaps, observability.ReapReasonFileIdle)
				s.log.Debug("reaped stale file record", "pair", ss.id, "file", id)
			}
		}

		empty := len(ss.slots) == 0
		mintExpired := !ss.everPaired && now.After(ss.mintDeadline)
		idleExpired := empty && now.Sub(ss.lastActivity) >= s.cfg.PairCleanupTimeout
		var reason observability.ReapReason
		if mintExpired {
			reason = observability.ReapReasonMintExpired
		} else if idleExpired {
			reason = observability.ReapReasonPairIdle
		}
		if reason != "" {
			ss.removed = true
			for role, cc := range ss.slots {
				orphans = append(orphans, cc)
				delete(ss.slots, role)
			}
		}
		ss.mu.Unlock()

		for _, r := range fileReaps {
			s.obs.Reap(r)
		}
		if reason == "" {
			continue
		}
		s.removeSession(ss.id)
		s.obs.Reap(reason)
		s.log.Info("session reaped", "pair", ss.id, "reason", reason)
		for _, cc := range orphans {
			if reason == observability.ReapReasonMintExpired {
				s.trySend(cc, protocol.NewExpired())
			}
			s.closeConn(cc, websocket.CloseNormalClosure, string(reason))
		}
	}
}

func (s *Server) removeSession(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	n := len(s.sessions)
	s.mu.Unlock()
	s.obs.SessionCount(n)
}
