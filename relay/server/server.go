// Package server implements the ClipSync relay: it mints pairing
// credentials, authenticates two device roles onto each session, and relays
// clipboard and file-transfer frames between them. Nothing payload-shaped
// survives the process.
package server

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/clipsync/clipsync/controlplane/mint"
	"github.com/clipsync/clipsync/observability"
	"github.com/clipsync/clipsync/realtime/ws"
	"github.com/clipsync/clipsync/relay/protocol"
)

type Config struct {
	ChunkSize            int           // Nominal chunk payload size, used to estimate size when totalSize is absent.
	MaxFileSize          int64         // Size budget per file in bytes.
	MaxSimultaneousFiles int           // Cap on non-completed records per session.
	ChunkRetryLimit      int           // Send attempts per relayed chunk.
	ChunkRetryBackoff    time.Duration // Linear backoff unit between chunk attempts.
	FileCleanupTimeout   time.Duration // Idle/completed file record lifetime.
	PairCleanupTimeout   time.Duration // Empty-session lifetime.
	HeartbeatInterval    time.Duration // Ping sweep cadence.
	MintTTL              time.Duration // Grace period for a minted pair to fully bind.
	ReaperInterval       time.Duration // Background reap cadence.
	HistoryLimit         int           // Clipboard history entries retained per session.
	MaxConns             int           // Maximum concurrent websocket connections.
	MaxSessions          int           // Maximum live sessions.
	MaxFrameBytes        int64         // Websocket read limit per frame.
	WriteTimeout         time.Duration // Per-frame websocket write deadline.
	StrictFrames         bool          // Close (1008) on malformed frames instead of dropping.
	Version              string        // Reported by /health when set.

	Observer observability.RelayObserver // Optional metrics observer.
	Logger   *slog.Logger                // Optional logger; slog default when nil.
}

// DefaultConfig returns the documented defaults for a relay.
func DefaultConfig() Config {
	return Config{
		ChunkSize:            64 * 1024,
		MaxFileSize:          5 << 30,
		MaxSimultaneousFiles: 5,
		ChunkRetryLimit:      3,
		ChunkRetryBackoff:    100 * time.Millisecond,
		FileCleanupTimeout:   30 * time.Minute,
		PairCleanupTimeout:   12 * time.Hour,
		HeartbeatInterval:    30 * time.Second,
		MintTTL:              2 * time.Minute,
		ReaperInterval:       60 * time.Second,
		HistoryLimit:         50,
		MaxConns:             4096,
		MaxSessions:          2048,
		WriteTimeout:         10 * time.Second,
		Observer:             observability.NoopRelayObserver,
	}
}

// Server owns the session registry and all background loops.
type Server struct {
	cfg   Config
	obs   observability.RelayObserver
	log   *slog.Logger
	start time.Time

	mu       sync.Mutex          // Guards the session map.
	sessions map[string]*session // Live sessions by pair id.

	connCount int64
	connSet   sync.Map // key: *clientConn, value: struct{}

	stopOnce sync.Once
	stopCh   chan struct{}
}

// Stats captures a snapshot of relay counts.
type Stats struct {
	ConnCount    int64
	SessionCount int
}

// New normalizes config and starts the heartbeat and reaper loops.
func New(cfg Config) (*Server, error) {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 64 * 1024
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 5 << 30
	}
	if cfg.MaxSimultaneousFiles <= 0 {
		cfg.MaxSimultaneousFiles = 5
	}
	if cfg.ChunkRetryLimit <= 0 {
		cfg.ChunkRetryLimit = 3
	}
	if cfg.ChunkRetryBackoff <= 0 {
		cfg.ChunkRetryBackoff = 100 * time.Millisecond
	}
	if cfg.FileCleanupTimeout <= 0 {
		cfg.FileCleanupTimeout = 30 * time.Minute
	}
	if cfg.PairCleanupTimeout <= 0 {
		cfg.PairCleanupTimeout = 12 * time.Hour
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.MintTTL <= 0 {
		cfg.MintTTL = 2 * time.Minute
	}
	if cfg.ReaperInterval <= 0 {
		cfg.ReaperInterval = 60 * time.Second
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 50
	}
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = 4096
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 2048
	}
	if cfg.MaxFrameBytes <= 0 {
		// Room for one base64-encoded chunk plus JSON envelope overhead.
		cfg.MaxFrameBytes = int64(cfg.ChunkSize)*2 + 16*1024
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.Observer == nil {
		cfg.Observer = observability.NoopRelayObserver
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Server{
		cfg:      cfg,
		obs:      cfg.Observer,
		log:      cfg.Logger,
		start:    time.Now(),
		sessions: make(map[string]*session),
		stopCh:   make(chan struct{}),
	}
	go s.heartbeatLoop()
	go s.reaperLoop()
	return s, nil
}

// Stats returns a point-in-time view of connection and session counts.
func (s *Server) Stats() Stats {
	connCount := atomic.LoadInt64(&s.connCount)
	s.mu.Lock()
	sessionCount := len(s.sessions)
	s.mu.Unlock()
	return Stats{ConnCount: connCount, SessionCount: sessionCount}
}

// Close stops the background loops. In-flight connections drain on their own.
func (s *Server) Close() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Router builds the public HTTP surface. Trailing slashes are normalized
// away; any unknown path or method is a plain-text 404.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.StripSlashes)
	r.NotFound(notFound)
	r.MethodNotAllowed(notFound)
	r.Get("/", s.handleRoot)
	r.Get("/pair", s.handlePair)
	r.Get("/health", s.handleHealth)
	r.Get("/connect", s.handleConnect)
	return r
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte("Not found"))
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ClipSync relay running"))
}

func (s *Server) handlePair(w http.ResponseWriter, _ *http.Request) {
	now := time.Now()
	s.mu.Lock()
	if len(s.sessions) >= s.cfg.MaxSessions {
		s.mu.Unlock()
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("Too many sessions"))
		return
	}
	creds, err := mint.Generate(func(id string) bool {
		_, taken := s.sessions[id]
		return taken
	})
	if err != nil {
		s.mu.Unlock()
		s.log.Error("mint failed", "err", err)
		http.Error(w, "mint failed", http.StatusInternalServerError)
		return
	}
	s.sessions[creds.PairID] = newSession(creds.PairID, creds.Token, now, now.Add(s.cfg.MintTTL))
	sessionCount := len(s.sessions)
	s.mu.Unlock()

	s.obs.PairMinted()
	s.obs.SessionCount(sessionCount)
	s.log.Info("pair minted", "pair", creds.PairID)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	_ = json.NewEncoder(w).Encode(creds)
}

type healthBody struct {
	OK      bool   `json:"ok"`
	Uptime  int64  `json:"uptime"`
	Version string `json:"version,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(healthBody{
		OK:      true,
		Uptime:  int64(time.Since(s.start).Seconds()),
		Version: s.cfg.Version,
	})
}

// handleConnect authenticates and upgrades one side of a pair. Credential
// failures tear down the TCP connection without completing the upgrade.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	pairID := q.Get("pairId")
	token := q.Get("token")
	roleStr := q.Get("type")
	if pairID == "" || token == "" || roleStr == "" {
		s.obs.Connect(observability.ConnectResultFail, observability.ConnectReasonMissingParams)
		destroyConnection(w)
		return
	}
	role, ok := protocol.ParseRole(roleStr)
	if !ok {
		s.obs.Connect(observability.ConnectResultFail, observability.ConnectReasonInvalidRole)
		destroyConnection(w)
		return
	}
	s.mu.Lock()
	sess := s.sessions[pairID]
	s.mu.Unlock()
	if sess == nil {
		s.obs.Connect(observability.ConnectResultFail, observability.ConnectReasonUnknownPair)
		destroyConnection(w)
		return
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(sess.token)) != 1 {
		s.obs.Connect(observability.ConnectResultFail, observability.ConnectReasonBadToken)
		destroyConnection(w)
		return
	}
	deviceName := sanitizeDeviceName(q.Get("deviceName"))

	c, err := ws.Upgrade(w, r, ws.UpgraderOptions{})
	if err != nil {
		s.obs.Connect(observability.ConnectResultFail, observability.ConnectReasonUpgradeError)
		return
	}
	uc := c.Underlying()
	cc := &clientConn{pairID: pairID, role: role, deviceName: deviceName, ws: uc}
	cc.alive.Store(true)
	if !s.trackConn(cc) {
		s.obs.Connect(observability.ConnectResultFail, observability.ConnectReasonTooManyConnections)
		_ = c.CloseWithStatus(websocket.CloseTryAgainLater, "too many connections")
		return
	}
	uc.SetReadLimit(s.cfg.MaxFrameBytes)
	uc.SetPongHandler(func(string) error {
		cc.alive.Store(true)
		return nil
	})

	if !s.bind(sess, cc) {
		// The session was reaped between lookup and bind.
		s.obs.Connect(observability.ConnectResultFail, observability.ConnectReasonUnknownPair)
		s.closeConn(cc, websocket.CloseNormalClosure, "expired")
		return
	}
	s.obs.Connect(observability.ConnectResultOK, observability.ConnectReasonOK)
	s.log.Info("peer connected", "pair", pairID, "role", role, "device", deviceName)
	go s.readLoop(sess, cc)
}

// destroyConnection drops the TCP connection with no HTTP response; failed
// credential checks must not leak whether the pair exists.
func destroyConnection(w http.ResponseWriter) {
	if hj, ok := w.(http.Hijacker); ok {
		if conn, _, err := hj.Hijack(); err == nil {
			_ = conn.Close()
			return
		}
	}
	w.WriteHeader(http.StatusForbidden)
}

const maxDeviceNameBytes = 128

func sanitizeDeviceName(name string) string {
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, strings.TrimSpace(name))
	if name == "" {
		return "Unknown"
	}
	if len(name) > maxDeviceNameBytes {
		name = name[:maxDeviceNameBytes]
	}
	return name
}

// trackConn increments the connection count and enforces MaxConns.
func (s *Server) trackConn(cc *clientConn) bool {
	newCount := atomic.AddInt64(&s.connCount, 1)
	if s.cfg.MaxConns > 0 && newCount > int64(s.cfg.MaxConns) {
		newCount = atomic.AddInt64(&s.connCount, -1)
		s.obs.ConnCount(newCount)
		return false
	}
	s.obs.ConnCount(newCount)
	s.connSet.Store(cc, struct{}{})
	return true
}

// untrackConn decrements the connection count if tracked.
func (s *Server) untrackConn(cc *clientConn) {
	if _, ok := s.connSet.LoadAndDelete(cc); !ok {
		return
	}
	newCount := atomic.AddInt64(&s.connCount, -1)
	s.obs.ConnCount(newCount)
}
