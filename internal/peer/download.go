package peer

import (
	"time"

	"bitleech/internal/digest"
	"bitleech/internal/wire"

	"github.com/pkg/errors"
)

// BlockSize is the fixed request granularity every implementation in the
// wild uses. Every request is this size except a piece's final block, which
// is shorter when the piece length is not a multiple of BlockSize.
const BlockSize = 16 * 1024

// DefaultPipelineDepth bounds in-flight requests per session when the
// caller doesn't override it. Grounded on alice/torrent.MaxPipelineDepth,
// a conservative middle ground between alice's 25-deep package-level
// pieceState and a single outstanding request.
const DefaultPipelineDepth = 5

// FetchPiece requests every block of piece index (whose total length is
// length), pipelining up to pipelineDepth requests at a time, and verifies
// the assembled piece against expected before returning it. A choke
// received mid-flight discards in-flight bookkeeping; any block still
// pending is reissued once the peer unchokes again.
func (s *Session) FetchPiece(index, length int, expected [20]byte, pipelineDepth int) ([]byte, error) {
	if pipelineDepth < 1 {
		pipelineDepth = 1
	}
	numBlocks := (length + BlockSize - 1) / BlockSize
	buf := make([]byte, length)
	pending := make([]bool, numBlocks)
	for i := range pending {
		pending[i] = true
	}

	blockLen := func(i int) int {
		if i == numBlocks-1 {
			if r := length % BlockSize; r != 0 {
				return r
			}
		}
		return BlockSize
	}

	remaining := numBlocks
	outstanding := 0
	cursor := 0

	nextPending := func() int {
		for i := cursor; i < numBlocks; i++ {
			if pending[i] {
				cursor = i + 1
				return i
			}
		}
		return -1
	}

	for remaining > 0 {
		for !s.chokedByPeer && outstanding < pipelineDepth {
			idx := nextPending()
			if idx < 0 {
				break
			}
			begin := idx * BlockSize
			payload := wire.RequestPayload(index, begin, blockLen(idx))
			if err := wire.Send(s.conn, &wire.Message{ID: wire.Request, Payload: payload}); err != nil {
				return nil, err
			}
			outstanding++
		}

		if err := s.conn.SetReadDeadline(time.Now().Add(blockDeadline)); err != nil {
			return nil, err
		}
		msg, err := wire.Recv(s.conn)
		if err != nil {
			return nil, err
		}
		if msg == nil {
			continue
		}

		switch msg.ID {
		case wire.Piece:
			pIndex, begin, block, perr := wire.ParsePiece(msg)
			if perr != nil {
				return nil, errors.Wrap(ErrProtocolViolation, perr.Error())
			}
			if pIndex != index {
				continue
			}
			blkIdx := begin / BlockSize
			if blkIdx < 0 || blkIdx >= numBlocks || !pending[blkIdx] {
				continue // stale, duplicate, or out-of-range; tolerated
			}
			copy(buf[begin:begin+len(block)], block)
			pending[blkIdx] = false
			outstanding--
			remaining--
		case wire.Have:
			hIndex, herr := wire.ParseHave(msg)
			if herr != nil {
				return nil, errors.Wrap(ErrProtocolViolation, herr.Error())
			}
			s.bits.SetPiece(hIndex)
		case wire.Choke:
			s.chokedByPeer = true
			outstanding = 0
			cursor = 0
		case wire.Unchoke:
			s.chokedByPeer = false
		default:
			// Leech-only sessions don't act on anything else mid-download.
		}
	}

	if err := s.conn.SetReadDeadline(time.Time{}); err != nil {
		return nil, err
	}
	if got := digest.Sum(buf); got != expected {
		return nil, errors.Wrapf(ErrPieceCorrupt, "piece %d: got %x want %x", index, got, expected)
	}
	return buf, nil
}
