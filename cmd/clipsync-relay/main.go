package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/clipsync/clipsync/internal/cmdutil"
	"github.com/clipsync/clipsync/internal/logging"
	csversion "github.com/clipsync/clipsync/internal/version"
	"github.com/clipsync/clipsync/observability"
	"github.com/clipsync/clipsync/observability/prom"
	"github.com/clipsync/clipsync/relay/server"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func versionString() string {
	return csversion.String(version, commit, date)
}

// switchHandler lets the metrics endpoint be swapped in and out at runtime
// without rebuilding the mux.
type switchHandler struct {
	mu      sync.RWMutex
	handler http.Handler
}

func newSwitchHandler() *switchHandler {
	return &switchHandler{handler: http.NotFoundHandler()}
}

func (h *switchHandler) Set(next http.Handler) {
	if next == nil {
		next = http.NotFoundHandler()
	}
	h.mu.Lock()
	h.handler = next
	h.mu.Unlock()
}

func (h *switchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	handler := h.handler
	h.mu.RUnlock()
	handler.ServeHTTP(w, r)
}

type metricsController struct {
	mu       sync.Mutex
	enabled  bool
	handler  *switchHandler
	observer *observability.AtomicRelayObserver
	srv      *server.Server
}

func newMetricsController(handler *switchHandler, observer *observability.AtomicRelayObserver, srv *server.Server) *metricsController {
	return &metricsController{
		handler:  handler,
		observer: observer,
		srv:      srv,
	}
}

func (c *metricsController) Enable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.enabled {
		return
	}
	reg := prom.NewRegistry()
	relayObs := prom.NewRelayObserver(reg)
	c.handler.Set(prom.Handler(reg))
	c.observer.Set(relayObs)
	stats := c.srv.Stats()
	relayObs.ConnCount(stats.ConnCount)
	relayObs.SessionCount(stats.SessionCount)
	c.enabled = true
}

func (c *metricsController) Disable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled {
		return
	}
	c.handler.Set(nil)
	c.observer.Set(observability.NoopRelayObserver)
	c.enabled = false
}

type ready struct {
	Version    string `json:"version"`
	Commit     string `json:"commit"`
	Date       string `json:"date"`
	Listen     string `json:"listen"`
	HTTPURL    string `json:"http_url"`
	PairURL    string `json:"pair_url"`
	ConnectURL string `json:"connect_url"`
	HealthURL  string `json:"health_url"`
	MetricsURL string `json:"metrics_url,omitempty"`
}

func writeReadyJSON(w io.Writer, out ready, pretty bool) error {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(out)
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout io.Writer, stderr io.Writer) int {
	cfg := server.DefaultConfig()

	port := cmdutil.EnvString("PORT", "5050")
	listen := cmdutil.EnvString("LISTEN", "")
	metricsListen := cmdutil.EnvString("METRICS_LISTEN", "")
	logFormat := cmdutil.EnvString("LOG_FORMAT", "auto")

	debug, err := cmdutil.EnvBool("DEBUG", false)
	if err != nil {
		fmt.Fprintf(stderr, "invalid DEBUG: %v\n", err)
		return 2
	}
	strictFrames, err := cmdutil.EnvBool("STRICT_FRAMES", cfg.StrictFrames)
	if err != nil {
		fmt.Fprintf(stderr, "invalid STRICT_FRAMES: %v\n", err)
		return 2
	}
	chunkSize, err := cmdutil.EnvInt("CHUNK_SIZE", cfg.ChunkSize)
	if err != nil {
		fmt.Fprintf(stderr, "invalid CHUNK_SIZE: %v\n", err)
		return 2
	}
	maxFileSize, err := cmdutil.EnvInt64("MAX_FILE_SIZE", cfg.MaxFileSize)
	if err != nil {
		fmt.Fprintf(stderr, "invalid MAX_FILE_SIZE: %v\n", err)
		return 2
	}
	maxFiles, err := cmdutil.EnvInt("MAX_SIMULTANEOUS_FILES", cfg.MaxSimultaneousFiles)
	if err != nil {
		fmt.Fprintf(stderr, "invalid MAX_SIMULTANEOUS_FILES: %v\n", err)
		return 2
	}
	retryLimit, err := cmdutil.EnvInt("CHUNK_RETRY_LIMIT", cfg.ChunkRetryLimit)
	if err != nil {
		fmt.Fprintf(stderr, "invalid CHUNK_RETRY_LIMIT: %v\n", err)
		return 2
	}
	historyLimit, err := cmdutil.EnvInt("HISTORY_LIMIT", cfg.HistoryLimit)
	if err != nil {
		fmt.Fprintf(stderr, "invalid HISTORY_LIMIT: %v\n", err)
		return 2
	}
	maxConns, err := cmdutil.EnvInt("MAX_CONNS", 0)
	if err != nil {
		fmt.Fprintf(stderr, "invalid MAX_CONNS: %v\n", err)
		return 2
	}
	maxSessions, err := cmdutil.EnvInt("MAX_SESSIONS", 0)
	if err != nil {
		fmt.Fprintf(stderr, "invalid MAX_SESSIONS: %v\n", err)
		return 2
	}
	fileCleanup, err := cmdutil.EnvDuration("FILE_CLEANUP_TIMEOUT", cfg.FileCleanupTimeout)
	if err != nil {
		fmt.Fprintf(stderr, "invalid FILE_CLEANUP_TIMEOUT: %v\n", err)
		return 2
	}
	pairCleanup, err := cmdutil.EnvDuration("PAIR_CLEANUP_TIMEOUT", cfg.PairCleanupTimeout)
	if err != nil {
		fmt.Fprintf(stderr, "invalid PAIR_CLEANUP_TIMEOUT: %v\n", err)
		return 2
	}
	heartbeat, err := cmdutil.EnvDuration("HEARTBEAT_INTERVAL", cfg.HeartbeatInterval)
	if err != nil {
		fmt.Fprintf(stderr, "invalid HEARTBEAT_INTERVAL: %v\n", err)
		return 2
	}
	mintTTL, err := cmdutil.EnvDuration("MINT_TTL", cfg.MintTTL)
	if err != nil {
		fmt.Fprintf(stderr, "invalid MINT_TTL: %v\n", err)
		return 2
	}

	fs := flag.NewFlagSet("clipsync-relay", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage of clipsync-relay:\n")
		fs.PrintDefaults()
		printSignalHelp(stderr)
	}

	showVersion := false
	prettyReady := false
	fs.BoolVar(&showVersion, "version", false, "print version and exit")
	fs.StringVar(&port, "port", port, "listen port, used when --listen is empty (env: PORT)")
	fs.StringVar(&listen, "listen", listen, "listen address; overrides --port (env: LISTEN)")
	fs.StringVar(&metricsListen, "metrics-listen", metricsListen, "listen address for metrics server (empty disables) (env: METRICS_LISTEN)")
	fs.StringVar(&logFormat, "log-format", logFormat, "log format: auto, text, or json (env: LOG_FORMAT)")
	fs.BoolVar(&debug, "debug", debug, "enable debug logging (env: DEBUG)")
	fs.BoolVar(&strictFrames, "strict-frames", strictFrames, "close connections on malformed frames instead of dropping them (env: STRICT_FRAMES)")
	fs.IntVar(&chunkSize, "chunk-size", chunkSize, "nominal chunk payload size in bytes (env: CHUNK_SIZE)")
	fs.Int64Var(&maxFileSize, "max-file-size", maxFileSize, "per-file size budget in bytes (env: MAX_FILE_SIZE)")
	fs.IntVar(&maxFiles, "max-simultaneous-files", maxFiles, "max concurrent file transfers per pair (env: MAX_SIMULTANEOUS_FILES)")
	fs.IntVar(&retryLimit, "chunk-retry-limit", retryLimit, "send attempts per relayed chunk (env: CHUNK_RETRY_LIMIT)")
	fs.IntVar(&historyLimit, "history-limit", historyLimit, "clipboard history entries retained per pair (env: HISTORY_LIMIT)")
	fs.IntVar(&maxConns, "max-conns", maxConns, "max concurrent websocket connections (0 uses default) (env: MAX_CONNS)")
	fs.IntVar(&maxSessions, "max-sessions", maxSessions, "max live pair sessions (0 uses default) (env: MAX_SESSIONS)")
	fs.DurationVar(&fileCleanup, "file-cleanup-timeout", fileCleanup, "idle/completed file record lifetime (env: FILE_CLEANUP_TIMEOUT)")
	fs.DurationVar(&pairCleanup, "pair-cleanup-timeout", pairCleanup, "empty-session lifetime (env: PAIR_CLEANUP_TIMEOUT)")
	fs.DurationVar(&heartbeat, "heartbeat-interval", heartbeat, "websocket ping sweep cadence (env: HEARTBEAT_INTERVAL)")
	fs.DurationVar(&mintTTL, "mint-ttl", mintTTL, "grace period for a minted pair to fully bind (env: MINT_TTL)")
	fs.BoolVar(&prettyReady, "pretty-ready", prettyReady, "pretty-print the ready JSON line")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if showVersion {
		_, _ = fmt.Fprintln(stdout, versionString())
		return 0
	}

	if listen == "" {
		listen = ":" + port
	}

	logger := logging.Setup(logging.ParseFormat(logFormat), debug)

	observer := observability.NewAtomicRelayObserver()
	cfg.Observer = observer
	cfg.Logger = logger
	cfg.Version = versionString()
	cfg.StrictFrames = strictFrames
	cfg.ChunkSize = chunkSize
	cfg.MaxFileSize = maxFileSize
	cfg.MaxSimultaneousFiles = maxFiles
	cfg.ChunkRetryLimit = retryLimit
	cfg.HistoryLimit = historyLimit
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	if maxSessions > 0 {
		cfg.MaxSessions = maxSessions
	}
	cfg.FileCleanupTimeout = fileCleanup
	cfg.PairCleanupTimeout = pairCleanup
	cfg.HeartbeatInterval = heartbeat
	cfg.MintTTL = mintTTL

	s, err := server.New(cfg)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer s.Close()

	var metrics *metricsController
	var metricsSrv *http.Server
	var metricsLn net.Listener
	if metricsListen != "" {
		metricsMux := http.NewServeMux()
		metricsHandler := newSwitchHandler()
		metricsMux.Handle("/metrics", metricsHandler)
		metrics = newMetricsController(metricsHandler, observer, s)
		metrics.Enable()

		metricsLn, err = net.Listen("tcp", metricsListen)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		metricsSrv = newHTTPServer(metricsMux)
		go func() {
			if err := metricsSrv.Serve(metricsLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "err", err)
				os.Exit(1)
			}
		}()
	}

	ln, err := net.Listen("tcp", listen)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	srv := newHTTPServer(s.Router())
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("relay server failed", "err", err)
			os.Exit(1)
		}
	}()

	bindAddr := ln.Addr().String()
	out := ready{
		Version:    version,
		Commit:     commit,
		Date:       date,
		Listen:     bindAddr,
		HTTPURL:    "http://" + bindAddr,
		PairURL:    "http://" + bindAddr + "/pair",
		ConnectURL: "ws://" + bindAddr + "/connect",
		HealthURL:  "http://" + bindAddr + "/health",
	}
	if metricsLn != nil {
		out.MetricsURL = "http://" + metricsLn.Addr().String() + "/metrics"
	}
	_ = writeReadyJSON(stdout, out, prettyReady)

	sig := make(chan os.Signal, 2)
	signal.Notify(sig, notifySignals()...)

	for {
		if handleSignal(<-sig, logger, metrics) {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(ctx)
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(ctx)
		}
		cancel()
		return 0
	}
}
