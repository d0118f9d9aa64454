package server

import (
	"sync"
	"time"

	"github.com/clipsync/clipsync/relay/protocol"
)

type fileStatus string

const (
	fileSending   fileStatus = "sending"
	filePaused    fileStatus = "paused"
	fileCompleted fileStatus = "completed"
)

// clipboardEntry is one retained clipboard item.
type clipboardEntry struct {
	from    string
	content string
	at      time.Time
}

// fileRecord tracks one transfer. The receiver's acks are the only source of
// progress: received holds acknowledged chunk indices and nothing is marked
// on forward. Guarded by the owning session's mutex.
type fileRecord struct {
	id          string
	name        string
	totalChunks int
	totalSize   *int64        // As announced by the sender; nil when absent.
	sender      protocol.Role // The role that sent file_meta.

	received     map[int]struct{}
	status       fileStatus
	createdAt    time.Time
	lastActivity time.Time
	completedAt  time.Time // Zero until status == fileCompleted.
}

// missing returns the ascending chunk indices not yet acknowledged.
func (f *fileRecord) missing() []int {
	out := make([]int, 0, f.totalChunks-len(f.received))
	for i := 0; i < f.totalChunks; i++ {
		if _, ok := f.received[i]; !ok {
			out = append(out, i)
		}
	}
	return out
}

// session is the shared state behind one pair id.
type session struct {
	id    string
	token string // Immutable after mint.

	mu           sync.Mutex // Guards everything below.
	slots        map[protocol.Role]*clientConn
	history      []clipboardEntry
	files        map[string]*fileRecord
	createdAt    time.Time
	lastActivity time.Time
	mintDeadline time.Time // Reap point for a pair that never fully binds.
	everPaired   bool      // True once both slots were bound at the same time.
	removed      bool      // Set by the reaper; blocks late binds.
}

func newSession(id string, token string, now time.Time, mintDeadline time.Time) *session {
	return &session{
		id:           id,
		token:        token,
		slots:        make(map[protocol.Role]*clientConn, 2),
		files:        make(map[string]*fileRecord),
		createdAt:    now,
		lastActivity: now,
		mintDeadline: mintDeadline,
	}
}

// touch records activity. Callers hold ss.mu.
func (ss *session) touch(now time.Time) {
	ss.lastActivity = now
}

// activeFiles counts non-completed records. Callers hold ss.mu.
func (ss *session) activeFiles() int {
	n := 0
	for _, rec := range ss.files {
		if rec.status != fileCompleted {
			n++
		}
	}
	return n
}
