package wire

import (
	"bytes"
	"io"
	"testing"
)

func TestSendRecvRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	msg := &Message{ID: Request, Payload: RequestPayload(1, 2, 3)}
	if err := Send(&buf, msg); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	got, err := Recv(&buf)
	if err != nil {
		t.Fatalf("Recv failed: %v", err)
	}
	if got.ID != Request {
		t.Errorf("ID = %v, want Request", got.ID)
	}
	if !bytes.Equal(got.Payload, msg.Payload) {
		t.Errorf("Payload = %v, want %v", got.Payload, msg.Payload)
	}
}

func TestRecvKeepAlive(t *testing.T) {
	buf := bytes.NewBuffer([]byte{0, 0, 0, 0})
	got, err := Recv(buf)
	if err != nil {
		t.Fatalf("Recv failed: %v", err)
	}
	if got != nil {
		t.Errorf("got %v, want nil (keep-alive)", got)
	}
}

func TestRecvPeerClosedMidFrame(t *testing.T) {
	buf := bytes.NewBuffer([]byte{0, 0, 0, 5, 1}) // declares 5 bytes, supplies 1
	_, err := Recv(buf)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestRecvOversized(t *testing.T) {
	lenBuf := []byte{0, 0, 0, 0}
	huge := uint32(MaxPayload + 100)
	lenBuf[0] = byte(huge >> 24)
	lenBuf[1] = byte(huge >> 16)
	lenBuf[2] = byte(huge >> 8)
	lenBuf[3] = byte(huge)
	_, err := Recv(io.MultiReader(bytes.NewReader(lenBuf)))
	if err == nil {
		t.Fatal("expected Oversized error, got nil")
	}
}

func TestParseHaveAndPiece(t *testing.T) {
	idx, err := ParseHave(&Message{ID: Have, Payload: []byte{0, 0, 0, 7}})
	if err != nil || idx != 7 {
		t.Fatalf("ParseHave = %d, %v, want 7, nil", idx, err)
	}

	payload := append(RequestPayload(2, 16384, 0)[:8], []byte("blockdata")...)
	index, begin, block, err := ParsePiece(&Message{ID: Piece, Payload: payload})
	if err != nil {
		t.Fatalf("ParsePiece failed: %v", err)
	}
	if index != 2 || begin != 16384 || string(block) != "blockdata" {
		t.Errorf("ParsePiece = %d,%d,%q", index, begin, block)
	}
}
