// Package wire implements the length-prefixed peer message framer: a 4-byte
// big-endian length, an id byte, and a message-specific payload. Grounded on
// the teacher's internal/torrentlib/peerlib.(*Peer).Read and alice's
// message.Read, generalized to return the spec's typed error taxonomy
// (PeerClosed, Oversized) instead of bare io errors.
package wire

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// MessageID identifies the non-keepalive peer message kinds relevant to a
// leech-only client.
type MessageID uint8

const (
	Choke         MessageID = 0
	Unchoke       MessageID = 1
	Interested    MessageID = 2
	NotInterested MessageID = 3
	Have          MessageID = 4
	Bitfield      MessageID = 5
	Request       MessageID = 6
	Piece         MessageID = 7
	Cancel        MessageID = 8
	Extended      MessageID = 20
)

func (id MessageID) String() string {
	switch id {
	case Choke:
		return "choke"
	case Unchoke:
		return "unchoke"
	case Interested:
		return "interested"
	case NotInterested:
		return "not_interested"
	case Have:
		return "have"
	case Bitfield:
		return "bitfield"
	case Request:
		return "request"
	case Piece:
		return "piece"
	case Cancel:
		return "cancel"
	case Extended:
		return "extended"
	default:
		return "unknown"
	}
}

// MaxPayload caps a single frame's payload at 1 MiB, per the spec's
// Oversized guard — well above the largest legitimate piece block (16 KiB)
// but small enough to bound memory against a hostile or buggy peer.
const MaxPayload = 1 << 20

var (
	// ErrPeerClosed means the connection hit EOF mid-frame.
	ErrPeerClosed = errors.New("peer closed connection mid-frame")
	// ErrOversized means a frame's declared length exceeded MaxPayload.
	ErrOversized = errors.New("frame length exceeds maximum payload size")
)

// Message is a decoded non-keepalive frame.
type Message struct {
	ID      MessageID
	Payload []byte
}

// Send writes msg as a length-prefixed frame. A nil msg is a keep-alive
// (4-byte zero length).
func Send(w io.Writer, msg *Message) error {
	if msg == nil {
		_, err := w.Write([]byte{0, 0, 0, 0})
		return err
	}
	length := uint32(1 + len(msg.Payload))
	buf := make([]byte, 4+length)
	binary.BigEndian.PutUint32(buf[0:4], length)
	buf[4] = byte(msg.ID)
	copy(buf[5:], msg.Payload)
	_, err := w.Write(buf)
	return err
}

// Recv reads one frame. It returns (nil, nil) on a keep-alive.
func Recv(r io.Reader) (*Message, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, errors.Wrap(ErrPeerClosed, err.Error())
		}
		return nil, err
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	if length == 0 {
		return nil, nil
	}
	if length > MaxPayload+1 {
		return nil, errors.Wrapf(ErrOversized, "declared length %d", length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, errors.Wrap(ErrPeerClosed, err.Error())
		}
		return nil, err
	}

	return &Message{ID: MessageID(payload[0]), Payload: payload[1:]}, nil
}

// RequestPayload builds the <index><begin><length> payload of a request/
// cancel message.
func RequestPayload(index, begin, length int) []byte {
	buf := make([]byte, 12)
	binary.BigEndian.PutUint32(buf[0:4], uint32(index))
	binary.BigEndian.PutUint32(buf[4:8], uint32(begin))
	binary.BigEndian.PutUint32(buf[8:12], uint32(length))
	return buf
}

// ParseHave extracts the piece index from a have message.
func ParseHave(msg *Message) (int, error) {
	if msg.ID != Have {
		return 0, errors.Errorf("expected have message, got id %d", msg.ID)
	}
	if len(msg.Payload) != 4 {
		return 0, errors.Errorf("have payload must be 4 bytes, got %d", len(msg.Payload))
	}
	return int(binary.BigEndian.Uint32(msg.Payload)), nil
}

// ParsePiece extracts index, begin and the block data from a piece message.
func ParsePiece(msg *Message) (index, begin int, block []byte, err error) {
	if msg.ID != Piece {
		return 0, 0, nil, errors.Errorf("expected piece message, got id %d", msg.ID)
	}
	if len(msg.Payload) < 8 {
		return 0, 0, nil, errors.Errorf("piece payload too short: %d bytes", len(msg.Payload))
	}
	index = int(binary.BigEndian.Uint32(msg.Payload[0:4]))
	begin = int(binary.BigEndian.Uint32(msg.Payload[4:8]))
	block = msg.Payload[8:]
	return index, begin, block, nil
}
