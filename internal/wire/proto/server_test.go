package proto

import (
	"testing"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/edgeflow/ambientled/internal/colorutil"
)

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func TestDecodeClearRequest(t *testing.T) {
	var body []byte
	body = appendVarintField(body, fieldPriority, 42)

	priority, err := decodeClearRequest(body)
	if err != nil {
		t.Fatalf("decodeClearRequest: %v", err)
	}
	if priority != 42 {
		t.Fatalf("got priority %d, want 42", priority)
	}
}

func TestDecodeColorRequestPacksRGB(t *testing.T) {
	var body []byte
	body = appendVarintField(body, fieldPriority, 50)
	body = appendVarintField(body, fieldDuration, 1000)
	// rgb packed little-endian: R | G<<8 | B<<16
	rgb := uint64(10) | uint64(20)<<8 | uint64(30)<<16
	body = appendVarintField(body, fieldRGBColor, rgb)

	req, err := decodeColorRequest(body)
	if err != nil {
		t.Fatalf("decodeColorRequest: %v", err)
	}
	if req.priority != 50 || req.duration != 1000 {
		t.Fatalf("unexpected priority/duration: %+v", req)
	}
	want := colorutil.Color{R: 10, G: 20, B: 30}
	if req.color != want {
		t.Fatalf("got color %+v, want %+v", req.color, want)
	}
}

func TestDecodeImageRequestValidatesSize(t *testing.T) {
	var body []byte
	body = appendVarintField(body, fieldPriority, 1)
	body = appendVarintField(body, fieldImageWidth, 2)
	body = appendVarintField(body, fieldImageHeight, 1)
	body = appendBytesField(body, fieldImageData, make([]byte, 6)) // 2*1*3

	req, err := decodeImageRequest(body)
	if err != nil {
		t.Fatalf("decodeImageRequest: %v", err)
	}
	if req.width != 2 || req.height != 1 || len(req.pix) != 6 {
		t.Fatalf("unexpected decode: %+v", req)
	}
}

func TestDecodeImageRequestRejectsMismatchedSize(t *testing.T) {
	var body []byte
	body = appendVarintField(body, fieldImageWidth, 2)
	body = appendVarintField(body, fieldImageHeight, 1)
	body = appendBytesField(body, fieldImageData, make([]byte, 3)) // should be 6

	if _, err := decodeImageRequest(body); err == nil {
		t.Fatalf("expected size mismatch error")
	}
}

func TestDurationMs(t *testing.T) {
	if durationMs(1000).Seconds() != 1 {
		t.Fatalf("durationMs(1000) should be 1s")
	}
}
