package protocol

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestParseClipboard(t *testing.T) {
	m, err := Parse([]byte(`{"type":"clipboard","content":"hello"}`))
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	c, ok := m.(Clipboard)
	if !ok {
		t.Fatalf("expected Clipboard, got %T", m)
	}
	if c.Content != "hello" {
		t.Fatalf("unexpected content: %q", c.Content)
	}
}

func TestParseFileMetaWithAndWithoutSize(t *testing.T) {
	m, err := Parse([]byte(`{"type":"file_meta","fileId":"F","fileName":"x.bin","totalChunks":3,"totalSize":196608}`))
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	meta := m.(FileMeta)
	if meta.TotalSize == nil || *meta.TotalSize != 196608 {
		t.Fatalf("expected totalSize 196608, got %v", meta.TotalSize)
	}

	m, err = Parse([]byte(`{"type":"file_meta","fileId":"F","fileName":"x.bin","totalChunks":3}`))
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	if m.(FileMeta).TotalSize != nil {
		t.Fatalf("expected nil totalSize when absent")
	}
}

func TestParseChunkIndexZeroIsPreserved(t *testing.T) {
	m, err := Parse([]byte(`{"type":"file_chunk","fileId":"F","chunkIndex":0,"totalChunks":2,"data":"AAAA"}`))
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	fc := m.(FileChunk)
	if fc.ChunkIndex != 0 || fc.Data != "AAAA" {
		t.Fatalf("unexpected chunk: %+v", fc)
	}
}

func TestParseSchemaFailures(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want error
	}{
		{"not json", `{`, ErrInvalidJSON},
		{"array", `[1,2,3]`, ErrInvalidJSON},
		{"missing type", `{"content":"x"}`, ErrMissingType},
		{"unknown type", `{"type":"telemetry"}`, ErrUnknownType},
		{"server-only kind", `{"type":"file_progress","fileId":"F"}`, ErrUnknownType},
		{"wrong field type", `{"type":"file_chunk","chunkIndex":"zero"}`, ErrInvalidJSON},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse([]byte(tc.in)); !errors.Is(err, tc.want) {
				t.Fatalf("Parse(%s) = %v, want %v", tc.in, err, tc.want)
			}
		})
	}
}

func TestParseMissingChunksMixedElements(t *testing.T) {
	in := `{"type":"file_missing_chunks","fileId":"F","chunks":[2,{"chunkIndex":4,"totalChunks":6,"data":"QUJD"},7,{"bogus":true},{"chunkIndex":5}]}`
	m, err := Parse([]byte(in))
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	mc := m.(MissingChunks)
	if !reflect.DeepEqual(mc.Indices, []int{2, 7}) {
		t.Fatalf("unexpected bare indices: %v", mc.Indices)
	}
	if len(mc.Resent) != 1 || mc.Resent[0].ChunkIndex != 4 || mc.Resent[0].Data != "QUJD" {
		t.Fatalf("unexpected resent chunks: %+v", mc.Resent)
	}
}

func TestParseRequestChunks(t *testing.T) {
	m, err := Parse([]byte(`{"type":"request_chunks","fileId":"F","chunks":[0,3,5]}`))
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	rc := m.(RequestChunks)
	if rc.FileID != "F" || !reflect.DeepEqual(rc.Chunks, []int{0, 3, 5}) {
		t.Fatalf("unexpected request: %+v", rc)
	}
}

func TestOutboundFrameShapes(t *testing.T) {
	b, err := json.Marshal(NewFileChunkAck("F", 0))
	if err != nil {
		t.Fatalf("Marshal() failed: %v", err)
	}
	if !strings.Contains(string(b), `"chunkIndex":0`) {
		t.Fatalf("chunk index 0 must stay on the wire: %s", b)
	}

	b, _ = json.Marshal(NewFileMeta("F", "x.bin", 3, nil))
	if strings.Contains(string(b), "totalSize") {
		t.Fatalf("absent totalSize must be omitted: %s", b)
	}
	size := int64(42)
	b, _ = json.Marshal(NewFileMeta("F", "x.bin", 3, &size))
	if !strings.Contains(string(b), `"totalSize":42`) {
		t.Fatalf("provided totalSize must be mirrored: %s", b)
	}

	b, _ = json.Marshal(NewFilePaused("F", ""))
	if strings.Contains(string(b), "reason") {
		t.Fatalf("empty reason must be omitted: %s", b)
	}

	b, _ = json.Marshal(NewMissingChunks("F", nil))
	if !strings.Contains(string(b), `"chunks":[]`) {
		t.Fatalf("empty missing set must marshal as []: %s", b)
	}

	b, _ = json.Marshal(NewExpired())
	if string(b) != `{"type":"expired"}` {
		t.Fatalf("unexpected expired frame: %s", b)
	}
}

func TestParseFrameRoundTrip(t *testing.T) {
	b, err := json.Marshal(NewPeerDisconnected(RoleApp, "app disconnected"))
	if err != nil {
		t.Fatalf("Marshal() failed: %v", err)
	}
	f, err := ParseFrame(b)
	if err != nil {
		t.Fatalf("ParseFrame() failed: %v", err)
	}
	if f.Type != KindPeerDisconnected || f.Side != "app" {
		t.Fatalf("unexpected frame: %+v", f)
	}
}

func TestRole(t *testing.T) {
	if _, ok := ParseRole("tablet"); ok {
		t.Fatalf("expected unknown role to be rejected")
	}
	r, ok := ParseRole("pc")
	if !ok || r != RolePC {
		t.Fatalf("ParseRole(pc) = %v, %v", r, ok)
	}
	if RolePC.Other() != RoleApp || RoleApp.Other() != RolePC {
		t.Fatalf("Other() mapping broken")
	}
}
