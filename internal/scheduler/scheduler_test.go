package scheduler

import (
	"crypto/rand"
	"encoding/binary"
	"net"
	"testing"

	"bitleech/internal/bitfield"
	"bitleech/internal/digest"
	"bitleech/internal/torrentfile"
	"bitleech/internal/wire"

	"github.com/pkg/errors"
)

func randID() [20]byte {
	var id [20]byte
	rand.Read(id[:])
	return id
}

func parseRequest(payload []byte) (index, begin, length int) {
	return int(binary.BigEndian.Uint32(payload[0:4])),
		int(binary.BigEndian.Uint32(payload[4:8])),
		int(binary.BigEndian.Uint32(payload[8:12]))
}

// startScriptedSeed listens on an ephemeral port and serves exactly the
// pieces in pieceData, advertising ownership of only those indices in its
// bitfield, then returns the listener's address plus a channel that
// receives the script's terminal error (nil on a clean client-initiated
// close).
func startScriptedSeed(t *testing.T, numPieces int, pieceData map[int][]byte) (string, <-chan error) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	errCh := make(chan error, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			errCh <- err
			return
		}
		defer conn.Close()
		errCh <- serveScriptedSeed(conn, numPieces, pieceData)
	}()
	return ln.Addr().String(), errCh
}

func serveScriptedSeed(conn net.Conn, numPieces int, pieceData map[int][]byte) error {
	in := make([]byte, 68)
	total := 0
	for total < len(in) {
		n, err := conn.Read(in[total:])
		total += n
		if err != nil {
			return err
		}
	}
	out := make([]byte, 68)
	copy(out, in)
	copy(out[48:68], func() []byte { id := randID(); return id[:] }())
	if _, err := conn.Write(out); err != nil {
		return err
	}

	bits := bitfield.New(numPieces)
	for index := range pieceData {
		bits.SetPiece(index)
	}
	if err := wire.Send(conn, &wire.Message{ID: wire.Bitfield, Payload: bits}); err != nil {
		return err
	}

	if _, err := wire.Recv(conn); err != nil { // interested
		return err
	}
	if err := wire.Send(conn, &wire.Message{ID: wire.Unchoke}); err != nil {
		return err
	}

	for {
		msg, err := wire.Recv(conn)
		if err != nil {
			return nil // the client closed the connection once its queue was drained
		}
		if msg == nil || msg.ID != wire.Request {
			continue
		}
		index, begin, length := parseRequest(msg.Payload)
		data := pieceData[index][begin : begin+length]
		payload := append(append([]byte{}, msg.Payload[:8]...), data...)
		if err := wire.Send(conn, &wire.Message{ID: wire.Piece, Payload: payload}); err != nil {
			return nil
		}
	}
}

func TestRunAssemblesDisjointPiecesFromTwoPeers(t *testing.T) {
	piece0 := make([]byte, 16384)
	piece1 := make([]byte, 16384)
	rand.Read(piece0)
	rand.Read(piece1)

	mi := &torrentfile.Metainfo{
		TotalLength:  32768,
		PieceLength:  16384,
		PieceDigests: [][20]byte{digest.Sum(piece0), digest.Sum(piece1)},
		InfoHash:     randID(),
	}

	addr1, err1 := startScriptedSeed(t, 2, map[int][]byte{0: piece0})
	addr2, err2 := startScriptedSeed(t, 2, map[int][]byte{1: piece1})

	got, err := Run(mi, []string{addr1, addr2}, randID(), Options{Workers: 2, PipelineDepth: 1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := append(append([]byte{}, piece0...), piece1...)
	if string(got) != string(want) {
		t.Error("Run returned bytes that don't match the two scripted pieces")
	}

	<-err1
	<-err2
}

func TestRunReturnsIncompleteWhenNoPeerOwnsAPiece(t *testing.T) {
	piece0 := make([]byte, 16384)
	rand.Read(piece0)

	mi := &torrentfile.Metainfo{
		TotalLength:  32768,
		PieceLength:  16384,
		PieceDigests: [][20]byte{digest.Sum(piece0), randID()},
		InfoHash:     randID(),
	}

	// Only piece 0 is ever served; nobody owns piece 1.
	addr, errCh := startScriptedSeed(t, 2, map[int][]byte{0: piece0})

	_, err := Run(mi, []string{addr}, randID(), Options{Workers: 1, PipelineDepth: 1})
	if errors.Cause(err) != ErrDownloadIncomplete {
		t.Fatalf("Run err = %v, want ErrDownloadIncomplete since piece 1 has no owner", err)
	}

	<-errCh
}
