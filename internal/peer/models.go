package peer

import (
	"net"
	"time"

	"bitleech/internal/bitfield"
)

// state is the per-connection lifecycle of spec.md §4.4:
//
//	NEW -> CONNECTED -> HANDSHAKED -> READY(choked=true)
//	READY -(send interested)-> WAIT_UNCHOKE
//	WAIT_UNCHOKE -(recv unchoke)-> ACTIVE
//	ACTIVE -(recv choke)-> WAIT_UNCHOKE (inflight piece re-queued)
type state int

const (
	stateConnected state = iota
	stateHandshaked
	stateReady
	stateWaitUnchoke
	stateActive
	stateClosed
)

const (
	dialTimeout       = 5 * time.Second
	handshakeDeadline = 10 * time.Second
	blockDeadline     = 30 * time.Second
)

// Session is a single live connection to a peer.
type Session struct {
	conn  net.Conn
	state state

	remotePeerID       [20]byte
	extensionsEnabled  bool
	remoteExtensionIDs map[string]int

	bits         bitfield.Bitfield
	chokedByPeer bool
	amInterested bool

	infoHash  [20]byte
	localID   [20]byte
	numPieces int
}

// RemotePeerID returns the 20-byte peer id the remote side presented during
// the handshake.
func (s *Session) RemotePeerID() [20]byte { return s.remotePeerID }

// ExtensionsEnabled reports whether both sides advertised support for the
// extension sub-protocol.
func (s *Session) ExtensionsEnabled() bool { return s.extensionsEnabled }

// HasPiece reports whether the peer's most recently known bitfield has the
// given piece index set.
func (s *Session) HasPiece(index int) bool { return s.bits.HasPiece(index) }

// SetRemoteExtensionID records the small integer the peer wants addressed
// for the given extension name, learned from its extension handshake.
func (s *Session) SetRemoteExtensionID(name string, id int) {
	if s.remoteExtensionIDs == nil {
		s.remoteExtensionIDs = make(map[string]int)
	}
	s.remoteExtensionIDs[name] = id
}

// RemoteExtensionID looks up a previously recorded extension id.
func (s *Session) RemoteExtensionID(name string) (int, bool) {
	id, ok := s.remoteExtensionIDs[name]
	return id, ok
}

// Close tears down the underlying connection.
func (s *Session) Close() error {
	s.state = stateClosed
	return s.conn.Close()
}
