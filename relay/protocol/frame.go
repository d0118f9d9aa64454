package protocol

import "encoding/json"

// Frame is a permissive decode target for server-to-client frames, used by
// the Go client and tests. All fields of every kind are flattened; consult
// Type before trusting a field.
type Frame struct {
	Type           Kind   `json:"type"`
	Message        string `json:"message"`
	Side           string `json:"side"`
	From           string `json:"from"`
	Content        string `json:"content"`
	Reason         string `json:"reason"`
	FileID         string `json:"fileId"`
	FileName       string `json:"fileName"`
	TotalChunks    int    `json:"totalChunks"`
	TotalSize      *int64 `json:"totalSize"`
	ChunkIndex     int    `json:"chunkIndex"`
	Data           string `json:"data"`
	ReceivedChunks int    `json:"receivedChunks"`
	Chunks         []int  `json:"chunks"`
}

// ParseFrame decodes a server-to-client frame.
func ParseFrame(b []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(b, &f); err != nil {
		return Frame{}, ErrInvalidJSON
	}
	if f.Type == "" {
		return Frame{}, ErrMissingType
	}
	return f, nil
}
