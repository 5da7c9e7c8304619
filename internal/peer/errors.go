package peer

import "github.com/pkg/errors"

var (
	// ErrBadHandshake covers any malformed or mismatched handshake response.
	ErrBadHandshake = errors.New("bad handshake")
	// ErrPieceCorrupt means an assembled piece failed its digest check.
	ErrPieceCorrupt = errors.New("piece failed digest verification")
	// ErrProtocolViolation covers unexpected message ids or malformed
	// extension payloads.
	ErrProtocolViolation = errors.New("peer protocol violation")
)
