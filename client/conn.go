package client

import (
	"context"
	"encoding/base64"

	"github.com/clipsync/clipsync/realtime/ws"
	"github.com/clipsync/clipsync/relay/protocol"
)

// Conn is one side of a connected pair.
type Conn struct {
	ws   *ws.Conn
	role protocol.Role
}

// Role returns the role this connection was bound as.
func (c *Conn) Role() protocol.Role {
	return c.role
}

// Recv reads the next server frame.
func (c *Conn) Recv(ctx context.Context) (protocol.Frame, error) {
	_, b, err := c.ws.ReadMessage(ctx)
	if err != nil {
		return protocol.Frame{}, err
	}
	return protocol.ParseFrame(b)
}

// RecvKind discards frames until one of the wanted kind arrives. Handy for
// skipping status notices around the frame a caller actually wants.
func (c *Conn) RecvKind(ctx context.Context, kind protocol.Kind) (protocol.Frame, error) {
	for {
		f, err := c.Recv(ctx)
		if err != nil {
			return protocol.Frame{}, err
		}
		if f.Type == kind {
			return f, nil
		}
	}
}

// SendClipboard relays clipboard text to the other side.
func (c *Conn) SendClipboard(ctx context.Context, content string) error {
	return c.ws.WriteJSON(ctx, clipboardFrame{Type: string(protocol.KindClipboard), Content: content})
}

// SendFileMeta announces a transfer; this side becomes the sender.
// totalSize may be nil when unknown.
func (c *Conn) SendFileMeta(ctx context.Context, fileID string, fileName string, totalChunks int, totalSize *int64) error {
	return c.ws.WriteJSON(ctx, fileMetaFrame{
		Type:        string(protocol.KindFileMeta),
		FileID:      fileID,
		FileName:    fileName,
		TotalChunks: totalChunks,
		TotalSize:   totalSize,
	})
}

// SendChunk base64-encodes data and relays one chunk.
func (c *Conn) SendChunk(ctx context.Context, fileID string, chunkIndex int, totalChunks int, data []byte) error {
	return c.ws.WriteJSON(ctx, fileChunkFrame{
		Type:        string(protocol.KindFileChunk),
		FileID:      fileID,
		ChunkIndex:  chunkIndex,
		TotalChunks: totalChunks,
		Data:        base64.StdEncoding.EncodeToString(data),
	})
}

// AckChunk acknowledges receipt of one chunk; acks drive the relay's
// progress accounting and completion.
func (c *Conn) AckChunk(ctx context.Context, fileID string, chunkIndex int) error {
	return c.ws.WriteJSON(ctx, fileAckFrame{Type: string(protocol.KindFileChunkAck), FileID: fileID, ChunkIndex: chunkIndex})
}

// SendFileComplete sends the informational end-of-file marker.
func (c *Conn) SendFileComplete(ctx context.Context, fileID string) error {
	return c.ws.WriteJSON(ctx, fileIDFrame{Type: string(protocol.KindFileComplete), FileID: fileID})
}

// PauseFile pauses a transfer from either side.
func (c *Conn) PauseFile(ctx context.Context, fileID string) error {
	return c.ws.WriteJSON(ctx, fileIDFrame{Type: string(protocol.KindPauseFile), FileID: fileID})
}

// ResumeFile resumes a paused transfer.
func (c *Conn) ResumeFile(ctx context.Context, fileID string) error {
	return c.ws.WriteJSON(ctx, fileIDFrame{Type: string(protocol.KindResumeFile), FileID: fileID})
}

// RequestChunks asks the relay to direct the sender at specific indices.
func (c *Conn) RequestChunks(ctx context.Context, fileID string, chunks []int) error {
	return c.ws.WriteJSON(ctx, chunkListFrame{Type: string(protocol.KindRequestChunks), FileID: fileID, Chunks: chunks})
}

// ResendChunks answers a missing-chunks directive with inline chunk data.
func (c *Conn) ResendChunks(ctx context.Context, fileID string, totalChunks int, chunks map[int][]byte) error {
	frame := resendFrame{Type: string(protocol.KindMissingChunks), FileID: fileID}
	for idx, data := range chunks {
		frame.Chunks = append(frame.Chunks, resentChunk{
			ChunkIndex:  idx,
			TotalChunks: totalChunks,
			Data:        base64.StdEncoding.EncodeToString(data),
		})
	}
	return c.ws.WriteJSON(ctx, frame)
}

// Close tears down the websocket.
func (c *Conn) Close() error {
	return c.ws.Close()
}
