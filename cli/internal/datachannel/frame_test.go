package datachannel

import (
	"bytes"
	"errors"
	"testing"

	"github.com/vmihailenco/msgpack/v5"
)

func TestChunkFrame(t *testing.T) {
	data, err := Encode(TypeFileChunk, FileChunk{ID: "f1", Offset: 16384, Bytes: []byte{0, 1, 2, 255}})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	f, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if f.Type != TypeFileChunk {
		t.Fatalf("type=%q", f.Type)
	}
	var chunk FileChunk
	if err := f.DecodePayload(&chunk); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if chunk.ID != "f1" || chunk.Offset != 16384 || !bytes.Equal(chunk.Bytes, []byte{0, 1, 2, 255}) {
		t.Fatalf("chunk=%+v", chunk)
	}
}

func TestDecodeRejectsUnknownType(t *testing.T) {
	data, err := msgpack.Marshal(Frame{Type: "ping"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Decode(data); !errors.Is(err, ErrUnknownType) {
		t.Fatalf("err=%v, want ErrUnknownType", err)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := Decode([]byte("not msgpack")); err == nil {
		t.Fatalf("garbage decoded")
	}
}
