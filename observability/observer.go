// Package observability defines the metric event surface of the relay.
// Implementations live elsewhere (observability/prom); the relay only ever
// talks to the RelayObserver interface so metrics can be toggled at runtime.
package observability

import (
	"sync"
	"sync/atomic"
)

type ConnectResult string

const (
	ConnectResultOK   ConnectResult = "ok"
	ConnectResultFail ConnectResult = "fail"
)

type ConnectReason string

const (
	ConnectReasonOK                 ConnectReason = "ok"
	ConnectReasonMissingParams      ConnectReason = "missing_params"
	ConnectReasonInvalidRole        ConnectReason = "invalid_role"
	ConnectReasonUnknownPair        ConnectReason = "unknown_pair"
	ConnectReasonBadToken           ConnectReason = "bad_token"
	ConnectReasonUpgradeError       ConnectReason = "upgrade_error"
	ConnectReasonTooManyConnections ConnectReason = "too_many_connections"
)

type FileEvent string

const (
	FileEventStarted   FileEvent = "started"
	FileEventCompleted FileEvent = "completed"
	FileEventPaused    FileEvent = "paused"
	FileEventResumed   FileEvent = "resumed"
	FileEventRejected  FileEvent = "rejected"
)

type ReapReason string

const (
	ReapReasonMintExpired   ReapReason = "mint_expired"
	ReapReasonPairIdle      ReapReason = "pair_idle"
	ReapReasonFileIdle      ReapReason = "file_idle"
	ReapReasonFileCompleted ReapReason = "file_completed"
)

// RelayObserver receives relay-level metric events.
type RelayObserver interface {
	ConnCount(n int64)
	SessionCount(n int)
	PairMinted()
	Connect(result ConnectResult, reason ConnectReason)
	Replace()
	ClipboardRelayed()
	File(event FileEvent)
	ChunkRelayed(bytes int)
	ChunkRetry()
	Reap(reason ReapReason)
}

type noopRelayObserver struct{}

func (noopRelayObserver) ConnCount(int64)                       {}
func (noopRelayObserver) SessionCount(int)                      {}
func (noopRelayObserver) PairMinted()                           {}
func (noopRelayObserver) Connect(ConnectResult, ConnectReason)  {}
func (noopRelayObserver) Replace()                              {}
func (noopRelayObserver) ClipboardRelayed()                     {}
func (noopRelayObserver) File(FileEvent)                        {}
func (noopRelayObserver) ChunkRelayed(int)                      {}
func (noopRelayObserver) ChunkRetry()                           {}
func (noopRelayObserver) Reap(ReapReason)                       {}

// NoopRelayObserver is a zero-cost observer used when metrics are disabled.
var NoopRelayObserver RelayObserver = noopRelayObserver{}

// AtomicRelayObserver swaps its delegate at runtime.
type AtomicRelayObserver struct {
	once sync.Once
	v    atomic.Value
}

type relayObserverHolder struct {
	obs RelayObserver
}

// NewAtomicRelayObserver returns an initialized atomic observer.
func NewAtomicRelayObserver() *AtomicRelayObserver {
	a := &AtomicRelayObserver{}
	a.once.Do(func() { a.v.Store(&relayObserverHolder{obs: NoopRelayObserver}) })
	return a
}

// Set replaces the delegate, falling back to the no-op observer on nil.
func (a *AtomicRelayObserver) Set(obs RelayObserver) {
	if obs == nil {
		obs = NoopRelayObserver
	}
	a.once.Do(func() { a.v.Store(&relayObserverHolder{obs: NoopRelayObserver}) })
	a.v.Store(&relayObserverHolder{obs: obs})
}

func (a *AtomicRelayObserver) load() RelayObserver {
	a.once.Do(func() { a.v.Store(&relayObserverHolder{obs: NoopRelayObserver}) })
	return a.v.Load().(*relayObserverHolder).obs
}

func (a *AtomicRelayObserver) ConnCount(n int64)  { a.load().ConnCount(n) }
func (a *AtomicRelayObserver) SessionCount(n int) { a.load().SessionCount(n) }
func (a *AtomicRelayObserver) PairMinted()        { a.load().PairMinted() }
func (a *AtomicRelayObserver) Connect(result ConnectResult, reason ConnectReason) {
	a.load().Connect(result, reason)
}
func (a *AtomicRelayObserver) Replace()              { a.load().Replace() }
func (a *AtomicRelayObserver) ClipboardRelayed()     { a.load().ClipboardRelayed() }
func (a *AtomicRelayObserver) File(event FileEvent)  { a.load().File(event) }
func (a *AtomicRelayObserver) ChunkRelayed(n int)    { a.load().ChunkRelayed(n) }
func (a *AtomicRelayObserver) ChunkRetry()           { a.load().ChunkRetry() }
func (a *AtomicRelayObserver) Reap(reason ReapReason) {
	a.load().Reap(reason)
}
