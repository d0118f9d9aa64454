package client

// Client-to-server frame shapes. The relay's own protocol package only
// defines parsed forms for this direction, so the client keeps its marshal
// shapes here.

type clipboardFrame struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

type fileMetaFrame struct {
	Type        string `json:"type"`
	FileID      string `json:"fileId"`
	FileName    string `json:"fileName"`
	TotalChunks int    `json:"totalChunks"`
	TotalSize   *int64 `json:"totalSize,omitempty"`
}

type fileChunkFrame struct {
	Type        string `json:"type"`
	FileID      string `json:"fileId"`
	ChunkIndex  int    `json:"chunkIndex"`
	TotalChunks int    `json:"totalChunks"`
	Data        string `json:"data"`
}

type fileAckFrame struct {
	Type       string `json:"type"`
	FileID     string `json:"fileId"`
	ChunkIndex int    `json:"chunkIndex"`
}

type fileIDFrame struct {
	Type   string `json:"type"`
	FileID string `json:"fileId"`
}

type chunkListFrame struct {
	Type   string `json:"type"`
	FileID string `json:"fileId"`
	Chunks []int  `json:"chunks"`
}

type resentChunk struct {
	ChunkIndex  int    `json:"chunkIndex"`
	TotalChunks int    `json:"totalChunks"`
	Data        string `json:"data"`
}

type resendFrame struct {
	Type   string `json:"type"`
	FileID string `json:"fileId"`
	Chunks []any  `json:"chunks"`
}
