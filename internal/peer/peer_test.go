package peer

import (
	"crypto/rand"
	"net"
	"testing"
	"time"

	"bitleech/internal/digest"
	"bitleech/internal/wire"

	stderrors "errors"

	"github.com/pkg/errors"
)

func randID() [20]byte {
	var id [20]byte
	rand.Read(id[:])
	return id
}

// scriptedPeer accepts one connection on addr, runs script against it, and
// reports any error over errCh.
func scriptedPeer(t *testing.T, ln net.Listener, script func(conn net.Conn) error) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			errCh <- err
			return
		}
		defer conn.Close()
		errCh <- script(conn)
	}()
	return errCh
}

func readHandshake(conn net.Conn) ([68]byte, error) {
	var buf [68]byte
	_, err := readFull(conn, buf[:])
	return buf, err
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func TestDialHandshakeAndBitfieldIntake(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	infoHash := randID()
	localID := randID()
	remoteID := randID()

	errCh := scriptedPeer(t, ln, func(conn net.Conn) error {
		in, err := readHandshake(conn)
		if err != nil {
			return err
		}
		// Echo the same handshake layout but with our own peer id.
		out := in
		copy(out[48:68], remoteID[:])
		if _, err := conn.Write(out[:]); err != nil {
			return err
		}
		return wire.Send(conn, &wire.Message{ID: wire.Bitfield, Payload: []byte{0x80}})
	})

	sess, err := Dial(ln.Addr().String(), infoHash, localID, 1, false)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer sess.Close()

	if sess.RemotePeerID() != remoteID {
		t.Errorf("RemotePeerID = %x, want %x", sess.RemotePeerID(), remoteID)
	}
	if !sess.HasPiece(0) {
		t.Error("HasPiece(0) = false, want true after bitfield with bit 0 set")
	}

	if err := <-errCh; err != nil {
		t.Fatalf("scripted peer: %v", err)
	}
}

func TestDialRejectsWrongProtocolLiteral(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	errCh := scriptedPeer(t, ln, func(conn net.Conn) error {
		if _, err := readHandshake(conn); err != nil {
			return err
		}
		bad := make([]byte, 68)
		bad[0] = 0x13
		copy(bad[1:20], "NotBitTorrentProto!")
		_, err := conn.Write(bad)
		return err
	})

	_, err = Dial(ln.Addr().String(), randID(), randID(), 1, false)
	if errors.Cause(err) != ErrBadHandshake {
		t.Fatalf("Dial err = %v, want ErrBadHandshake", err)
	}
	<-errCh
}

func TestFetchPieceSingleBlock(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	infoHash := randID()
	localID := randID()
	pieceData := make([]byte, 16*1024)
	rand.Read(pieceData)
	expected := digest.Sum(pieceData)

	errCh := scriptedPeer(t, ln, func(conn net.Conn) error {
		in, err := readHandshake(conn)
		if err != nil {
			return err
		}
		out := in
		copy(out[48:68], func() []byte { id := randID(); return id[:] }())
		if _, err := conn.Write(out[:]); err != nil {
			return err
		}
		if err := wire.Send(conn, &wire.Message{ID: wire.Bitfield, Payload: []byte{0x80}}); err != nil {
			return err
		}
		msg, err := wire.Recv(conn)
		if err != nil || msg.ID != wire.Interested {
			return stderrors.New("expected interested")
		}
		if err := wire.Send(conn, &wire.Message{ID: wire.Unchoke}); err != nil {
			return err
		}
		msg, err = wire.Recv(conn)
		if err != nil || msg.ID != wire.Request {
			return stderrors.New("expected request")
		}
		payload := append(msg.Payload[:8:8], pieceData...)
		return wire.Send(conn, &wire.Message{ID: wire.Piece, Payload: payload})
	})

	sess, err := Dial(ln.Addr().String(), infoHash, localID, 1, false)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer sess.Close()

	if err := sess.SendInterested(); err != nil {
		t.Fatalf("SendInterested: %v", err)
	}
	if err := sess.AwaitUnchoke(); err != nil {
		t.Fatalf("AwaitUnchoke: %v", err)
	}

	got, err := sess.FetchPiece(0, len(pieceData), expected, DefaultPipelineDepth)
	if err != nil {
		t.Fatalf("FetchPiece: %v", err)
	}
	if string(got) != string(pieceData) {
		t.Error("FetchPiece returned bytes that don't match the scripted piece")
	}

	if err := <-errCh; err != nil {
		t.Fatalf("scripted peer: %v", err)
	}
}

func TestFetchPieceCorruptDigest(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	pieceData := make([]byte, 1024)
	rand.Read(pieceData)
	var wrongExpected [20]byte // all-zero digest never matches real data

	errCh := scriptedPeer(t, ln, func(conn net.Conn) error {
		in, err := readHandshake(conn)
		if err != nil {
			return err
		}
		out := in
		copy(out[48:68], func() []byte { id := randID(); return id[:] }())
		if _, err := conn.Write(out[:]); err != nil {
			return err
		}
		if err := wire.Send(conn, &wire.Message{ID: wire.Bitfield, Payload: []byte{0x80}}); err != nil {
			return err
		}
		if err := wire.Send(conn, &wire.Message{ID: wire.Unchoke}); err != nil {
			return err
		}
		msg, err := wire.Recv(conn)
		if err != nil || msg.ID != wire.Request {
			return stderrors.New("expected request")
		}
		payload := append(msg.Payload[:8:8], pieceData...)
		return wire.Send(conn, &wire.Message{ID: wire.Piece, Payload: payload})
	})

	sess, err := Dial(ln.Addr().String(), randID(), randID(), 1, false)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer sess.Close()
	sess.chokedByPeer = false

	_, err = sess.FetchPiece(0, len(pieceData), wrongExpected, 1)
	if errors.Cause(err) != ErrPieceCorrupt {
		t.Fatalf("FetchPiece err = %v, want ErrPieceCorrupt", err)
	}

	<-errCh
}

func TestAwaitUnchokeTracksHave(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	errCh := scriptedPeer(t, ln, func(conn net.Conn) error {
		in, err := readHandshake(conn)
		if err != nil {
			return err
		}
		out := in
		copy(out[48:68], func() []byte { id := randID(); return id[:] }())
		if _, err := conn.Write(out[:]); err != nil {
			return err
		}
		if err := wire.Send(conn, &wire.Message{ID: wire.Bitfield, Payload: []byte{0x00}}); err != nil {
			return err
		}
		if _, err := wire.Recv(conn); err != nil { // interested
			return err
		}
		if err := wire.Send(conn, &wire.Message{ID: wire.Have, Payload: wire.RequestPayload(3, 0, 0)[:4]}); err != nil {
			return err
		}
		time.Sleep(5 * time.Millisecond)
		return wire.Send(conn, &wire.Message{ID: wire.Unchoke})
	})

	sess, err := Dial(ln.Addr().String(), randID(), randID(), 8, false)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer sess.Close()

	if err := sess.SendInterested(); err != nil {
		t.Fatalf("SendInterested: %v", err)
	}
	if err := sess.AwaitUnchoke(); err != nil {
		t.Fatalf("AwaitUnchoke: %v", err)
	}
	if !sess.HasPiece(3) {
		t.Error("HasPiece(3) = false, want true after a have(3) message")
	}

	if err := <-errCh; err != nil {
		t.Fatalf("scripted peer: %v", err)
	}
}
