package protocol

// Server-to-client frames. Constructors fill the type tag so call sites
// cannot ship a mistagged frame. Zero-valued numeric fields are kept on the
// wire (chunk index 0 is meaningful); only TotalSize mirrors the optionality
// of what the sender supplied.

type StatusMsg struct {
	Type    Kind   `json:"type"`
	Message string `json:"message"`
}

func NewStatus(message string) StatusMsg {
	return StatusMsg{Type: KindStatus, Message: message}
}

type ErrorMsg struct {
	Type    Kind   `json:"type"`
	Message string `json:"message"`
}

func NewError(message string) ErrorMsg {
	return ErrorMsg{Type: KindError, Message: message}
}

type ExpiredMsg struct {
	Type Kind `json:"type"`
}

func NewExpired() ExpiredMsg {
	return ExpiredMsg{Type: KindExpired}
}

type PeerDisconnectedMsg struct {
	Type    Kind   `json:"type"`
	Side    string `json:"side"`
	Message string `json:"message"`
}

func NewPeerDisconnected(side Role, message string) PeerDisconnectedMsg {
	return PeerDisconnectedMsg{Type: KindPeerDisconnected, Side: string(side), Message: message}
}

type ClipboardMsg struct {
	Type    Kind   `json:"type"`
	From    string `json:"from"`
	Content string `json:"content"`
}

func NewClipboard(from string, content string) ClipboardMsg {
	return ClipboardMsg{Type: KindClipboard, From: from, Content: content}
}

type FileMetaMsg struct {
	Type        Kind   `json:"type"`
	FileID      string `json:"fileId"`
	FileName    string `json:"fileName"`
	TotalChunks int    `json:"totalChunks"`
	TotalSize   *int64 `json:"totalSize,omitempty"`
}

func NewFileMeta(fileID string, fileName string, totalChunks int, totalSize *int64) FileMetaMsg {
	return FileMetaMsg{
		Type:        KindFileMeta,
		FileID:      fileID,
		FileName:    fileName,
		TotalChunks: totalChunks,
		TotalSize:   totalSize,
	}
}

type FileChunkMsg struct {
	Type        Kind   `json:"type"`
	FileID      string `json:"fileId"`
	ChunkIndex  int    `json:"chunkIndex"`
	TotalChunks int    `json:"totalChunks"`
	Data        string `json:"data"`
}

func NewFileChunk(fileID string, chunkIndex int, totalChunks int, data string) FileChunkMsg {
	return FileChunkMsg{
		Type:        KindFileChunk,
		FileID:      fileID,
		ChunkIndex:  chunkIndex,
		TotalChunks: totalChunks,
		Data:        data,
	}
}

type FileChunkAckMsg struct {
	Type       Kind   `json:"type"`
	FileID     string `json:"fileId"`
	ChunkIndex int    `json:"chunkIndex"`
}

func NewFileChunkAck(fileID string, chunkIndex int) FileChunkAckMsg {
	return FileChunkAckMsg{Type: KindFileChunkAck, FileID: fileID, ChunkIndex: chunkIndex}
}

type FileProgressMsg struct {
	Type           Kind   `json:"type"`
	FileID         string `json:"fileId"`
	ReceivedChunks int    `json:"receivedChunks"`
	TotalChunks    int    `json:"totalChunks"`
}

func NewFileProgress(fileID string, receivedChunks int, totalChunks int) FileProgressMsg {
	return FileProgressMsg{
		Type:           KindFileProgress,
		FileID:         fileID,
		ReceivedChunks: receivedChunks,
		TotalChunks:    totalChunks,
	}
}

type FileCompleteMsg struct {
	Type   Kind   `json:"type"`
	FileID string `json:"fileId"`
}

func NewFileComplete(fileID string) FileCompleteMsg {
	return FileCompleteMsg{Type: KindFileComplete, FileID: fileID}
}

type FilePausedMsg struct {
	Type   Kind   `json:"type"`
	FileID string `json:"fileId"`
	Reason string `json:"reason,omitempty"`
}

func NewFilePaused(fileID string, reason string) FilePausedMsg {
	return FilePausedMsg{Type: KindFilePaused, FileID: fileID, Reason: reason}
}

type FileResumedMsg struct {
	Type   Kind   `json:"type"`
	FileID string `json:"fileId"`
}

func NewFileResumed(fileID string) FileResumedMsg {
	return FileResumedMsg{Type: KindFileResumed, FileID: fileID}
}

type MissingChunksMsg struct {
	Type   Kind   `json:"type"`
	FileID string `json:"fileId"`
	Chunks []int  `json:"chunks"`
}

func NewMissingChunks(fileID string, chunks []int) MissingChunksMsg {
	if chunks == nil {
		chunks = []int{}
	}
	return MissingChunksMsg{Type: KindMissingChunks, FileID: fileID, Chunks: chunks}
}
