// Package torrentfile parses a .torrent file into the Metainfo the rest of
// bitleech needs, computing the info_hash directly from the raw encoded
// bytes of the "info" dictionary rather than re-encoding it. Grounded on the
// teacher's internal/torrent/{models,utils}.go (which re-encodes, the thing
// spec.md's Design Notes call out to avoid) and alice's file/torrentfile.go,
// generalized to use internal/bencode's span-preserving decoder instead.
package torrentfile

import (
	"bitleech/internal/bencode"
	"bitleech/internal/digest"

	"github.com/pkg/errors"
)

// ErrMalformed wraps any structurally invalid .torrent file.
var ErrMalformed = errors.New("malformed torrent file")

// Metainfo is everything the scheduler and tracker client need to drive a
// download.
type Metainfo struct {
	AnnounceURL  string
	Name         string
	TotalLength  int64
	PieceLength  int64
	PieceDigests [][20]byte
	InfoHash     [20]byte
}

// Parse decodes a raw .torrent file's bytes.
func Parse(data []byte) (*Metainfo, error) {
	root, spans, err := bencode.DecodeDictWithSpans(data)
	if err != nil {
		return nil, errors.Wrap(ErrMalformed, err.Error())
	}

	announce, err := root.GetStr("announce")
	if err != nil {
		return nil, errors.Wrap(ErrMalformed, err.Error())
	}

	infoSpan, ok := spans["info"]
	if !ok {
		return nil, errors.Wrap(ErrMalformed, `missing "info" dictionary`)
	}
	infoVal, ok := root.Get("info")
	if !ok {
		return nil, errors.Wrap(ErrMalformed, `missing "info" dictionary`)
	}
	info, err := infoVal.Dict()
	if err != nil {
		return nil, errors.Wrap(ErrMalformed, err.Error())
	}

	mi, err := metainfoFromInfoDict(info, infoSpan)
	if err != nil {
		return nil, err
	}
	mi.AnnounceURL = announce
	return mi, nil
}

// ParseInfoBytes builds a Metainfo directly from the raw info dictionary
// bytes exchanged over ut_metadata during a magnet bootstrap (spec.md
// §4.5) — there is no enclosing announce/info wrapper to strip, since the
// peer only ever sends the info dictionary itself.
func ParseInfoBytes(infoBytes []byte, announceURL string) (*Metainfo, error) {
	info, _, err := bencode.DecodeDictWithSpans(infoBytes)
	if err != nil {
		return nil, errors.Wrap(ErrMalformed, err.Error())
	}
	mi, err := metainfoFromInfoDict(info, infoBytes)
	if err != nil {
		return nil, err
	}
	mi.AnnounceURL = announceURL
	return mi, nil
}

func metainfoFromInfoDict(info *bencode.Dict, infoSpan []byte) (*Metainfo, error) {
	name, err := info.GetStr("name")
	if err != nil {
		return nil, errors.Wrap(ErrMalformed, err.Error())
	}
	length, err := info.GetInt("length")
	if err != nil {
		return nil, errors.Wrap(ErrMalformed, err.Error())
	}
	pieceLength, err := info.GetInt("piece length")
	if err != nil {
		return nil, errors.Wrap(ErrMalformed, err.Error())
	}
	piecesStr, err := info.GetStr("pieces")
	if err != nil {
		return nil, errors.Wrap(ErrMalformed, err.Error())
	}

	digests, err := splitPieceDigests([]byte(piecesStr))
	if err != nil {
		return nil, err
	}

	return &Metainfo{
		Name:         name,
		TotalLength:  length,
		PieceLength:  pieceLength,
		PieceDigests: digests,
		InfoHash:     digest.Sum(infoSpan),
	}, nil
}

func splitPieceDigests(pieces []byte) ([][20]byte, error) {
	if len(pieces)%20 != 0 {
		return nil, errors.Wrapf(ErrMalformed, "pieces string length %d is not a multiple of 20", len(pieces))
	}
	digests := make([][20]byte, len(pieces)/20)
	for i := range digests {
		copy(digests[i][:], pieces[i*20:(i+1)*20])
	}
	return digests, nil
}

// NumPieces is a convenience for len(PieceDigests).
func (m *Metainfo) NumPieces() int { return len(m.PieceDigests) }

// PieceLen returns the length of piece i, accounting for the final,
// possibly shorter, piece.
func (m *Metainfo) PieceLen(i int) int {
	if i == len(m.PieceDigests)-1 {
		if r := m.TotalLength % m.PieceLength; r != 0 {
			return int(r)
		}
	}
	return int(m.PieceLength)
}
