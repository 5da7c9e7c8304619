package peer

import (
	"io"
	"net"

	"github.com/pkg/errors"
)

const protocolLiteral = "BitTorrent protocol"
const handshakeSize = 68

// extensionReservedByte is the index, within the 8 reserved bytes, whose
// 0x10 bit advertises extension-protocol support (spec.md §4.4).
const extensionReservedByte = 5

// handshake sends the 68-byte handshake and validates the peer's reply,
// returning its peer id and whether it advertised extension support.
func handshake(conn net.Conn, infoHash, localID [20]byte, wantExtensions bool) (remoteID [20]byte, remoteExt bool, err error) {
	out := make([]byte, handshakeSize)
	out[0] = byte(len(protocolLiteral))
	copy(out[1:20], protocolLiteral)
	if wantExtensions {
		out[20+extensionReservedByte] = 0x10
	}
	copy(out[28:48], infoHash[:])
	copy(out[48:68], localID[:])

	if _, err := conn.Write(out); err != nil {
		return remoteID, false, errors.Wrap(err, "send handshake")
	}

	in := make([]byte, handshakeSize)
	if _, err := io.ReadFull(conn, in); err != nil {
		return remoteID, false, errors.Wrap(ErrBadHandshake, err.Error())
	}
	if in[0] != byte(len(protocolLiteral)) || string(in[1:20]) != protocolLiteral {
		return remoteID, false, errors.Wrapf(ErrBadHandshake, "unexpected protocol header %q", in[0:20])
	}
	var gotHash [20]byte
	copy(gotHash[:], in[28:48])
	if gotHash != infoHash {
		return remoteID, false, errors.Wrap(ErrBadHandshake, "info_hash mismatch")
	}

	remoteExt = in[20+extensionReservedByte]&0x10 != 0
	copy(remoteID[:], in[48:68])
	return remoteID, remoteExt, nil
}
