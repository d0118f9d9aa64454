// Package protocol defines the ClipSync wire contract: UTF-8 JSON objects
// carried in websocket text frames, tagged by a `type` field.
//
// Parse handles the client-to-server direction and performs schema validation
// only; semantic validation (unknown fileId, caps, state preconditions) is the
// relay engine's job. Frames that fail schema validation are dropped by the
// caller, never answered.
package protocol

import (
	"encoding/json"
	"errors"
)

// Kind tags a wire message.
type Kind string

const (
	KindStatus           Kind = "status"
	KindError            Kind = "error"
	KindExpired          Kind = "expired"
	KindPeerDisconnected Kind = "peer_disconnected"
	KindClipboard        Kind = "clipboard"
	KindFileMeta         Kind = "file_meta"
	KindFileChunk        Kind = "file_chunk"
	KindFileChunkAck     Kind = "file_chunk_ack"
	KindFileProgress     Kind = "file_progress"
	KindFileComplete     Kind = "file_complete"
	KindFilePaused       Kind = "file_paused"
	KindFileResumed      Kind = "file_resumed"
	KindPauseFile        Kind = "pause_file"
	KindResumeFile       Kind = "resume_file"
	KindRequestChunks    Kind = "request_chunks"
	KindMissingChunks    Kind = "file_missing_chunks"
)

var (
	ErrInvalidJSON = errors.New("invalid json frame")
	ErrMissingType = errors.New("missing message type")
	ErrUnknownType = errors.New("unknown message type")
)

// Message is a parsed client-to-server frame.
type Message interface {
	Kind() Kind
}

// Clipboard carries clipboard text from a device.
type Clipboard struct {
	Content string
}

// FileMeta announces a file transfer; the sending side becomes the file's
// sender for the rest of its lifetime. TotalSize is nil when the client did
// not provide one.
type FileMeta struct {
	FileID      string
	FileName    string
	TotalChunks int
	TotalSize   *int64
}

// FileChunk carries one base64-encoded chunk from the sender.
type FileChunk struct {
	FileID      string
	ChunkIndex  int
	TotalChunks int
	Data        string
}

// FileChunkAck is the receiver's receipt for one chunk.
type FileChunkAck struct {
	FileID     string
	ChunkIndex int
}

// FileComplete is the sender's informational end-of-file marker.
type FileComplete struct {
	FileID string
}

// PauseFile and ResumeFile toggle a transfer from either side.
type PauseFile struct {
	FileID string
}

type ResumeFile struct {
	FileID string
}

// RequestChunks asks the server to direct the sender at specific indices.
type RequestChunks struct {
	FileID string
	Chunks []int
}

// MissingChunks is the sender's reply to a missing-chunks request. Elements
// carrying inline data are collected in Resent; bare integer indices are
// recorded in Indices and otherwise ignored (the sender follows up with
// ordinary file_chunk frames for those).
type MissingChunks struct {
	FileID  string
	Indices []int
	Resent  []FileChunk
}

func (Clipboard) Kind() Kind     { return KindClipboard }
func (FileMeta) Kind() Kind      { return KindFileMeta }
func (FileChunk) Kind() Kind     { return KindFileChunk }
func (FileChunkAck) Kind() Kind  { return KindFileChunkAck }
func (FileComplete) Kind() Kind  { return KindFileComplete }
func (PauseFile) Kind() Kind     { return KindPauseFile }
func (ResumeFile) Kind() Kind    { return KindResumeFile }
func (RequestChunks) Kind() Kind { return KindRequestChunks }
func (MissingChunks) Kind() Kind { return KindMissingChunks }

// envelope is the superset of client frame fields. Field types are strict:
// a frame whose fields do not unmarshal cleanly is a schema failure.
type envelope struct {
	Type        Kind              `json:"type"`
	Content     string            `json:"content"`
	FileID      string            `json:"fileId"`
	FileName    string            `json:"fileName"`
	TotalChunks int               `json:"totalChunks"`
	TotalSize   *int64            `json:"totalSize"`
	ChunkIndex  int               `json:"chunkIndex"`
	Data        string            `json:"data"`
	Chunks      []json.RawMessage `json:"chunks"`
}

// resentChunk is one object-shaped element of a file_missing_chunks array.
type resentChunk struct {
	ChunkIndex  *int   `json:"chunkIndex"`
	TotalChunks int    `json:"totalChunks"`
	Data        string `json:"data"`
}

// Parse validates and parses a client frame.
func Parse(b []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, ErrInvalidJSON
	}
	switch env.Type {
	case "":
		return nil, ErrMissingType
	case KindClipboard:
		return Clipboard{Content: env.Content}, nil
	case KindFileMeta:
		return FileMeta{
			FileID:      env.FileID,
			FileName:    env.FileName,
			TotalChunks: env.TotalChunks,
			TotalSize:   env.TotalSize,
		}, nil
	case KindFileChunk:
		return FileChunk{
			FileID:      env.FileID,
			ChunkIndex:  env.ChunkIndex,
			TotalChunks: env.TotalChunks,
			Data:        env.Data,
		}, nil
	case KindFileChunkAck:
		return FileChunkAck{FileID: env.FileID, ChunkIndex: env.ChunkIndex}, nil
	case KindFileComplete:
		return FileComplete{FileID: env.FileID}, nil
	case KindPauseFile:
		return PauseFile{FileID: env.FileID}, nil
	case KindResumeFile:
		return ResumeFile{FileID: env.FileID}, nil
	case KindRequestChunks:
		idx, _ := splitChunkList(env.Chunks)
		return RequestChunks{FileID: env.FileID, Chunks: idx}, nil
	case KindMissingChunks:
		idx, resent := splitChunkList(env.Chunks)
		return MissingChunks{FileID: env.FileID, Indices: idx, Resent: resent}, nil
	default:
		return nil, ErrUnknownType
	}
}

// splitChunkList separates a mixed chunks array into bare indices and
// inline-data elements. Elements of any other shape are skipped.
func splitChunkList(raw []json.RawMessage) (indices []int, resent []FileChunk) {
	for _, el := range raw {
		var n int
		if err := json.Unmarshal(el, &n); err == nil {
			indices = append(indices, n)
			continue
		}
		var rc resentChunk
		if err := json.Unmarshal(el, &rc); err == nil && rc.ChunkIndex != nil && rc.Data != "" {
			resent = append(resent, FileChunk{
				ChunkIndex:  *rc.ChunkIndex,
				TotalChunks: rc.TotalChunks,
				Data:        rc.Data,
			})
		}
	}
	return indices, resent
}
