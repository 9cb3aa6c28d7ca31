package peer

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyRequested is returned when a ping or handshake to the same address is pending.
	ErrAlreadyRequested = errors.New("request to address already pending")

	// ErrIncompatibleProtocol is matched by *IncompatibleProtocolError.
	ErrIncompatibleProtocol = errors.New("incompatible protocol version")

	// ErrConnectionBanned is returned when the remote peer has banned us.
	ErrConnectionBanned = errors.New("connection banned")

	// ErrNoFreeIncomingConnections is returned when the remote peer is full.
	ErrNoFreeIncomingConnections = errors.New("no free incoming connections")

	// ErrAlreadyConnected is returned when the remote peer already has a session with us.
	ErrAlreadyConnected = errors.New("already connected")

	// ErrIPRecentlyConnected is returned when the remote peer throttles reconnects.
	ErrIPRecentlyConnected = errors.New("ip recently connected")

	// ErrDisconnected is returned when the remote peer disconnects during the handshake.
	ErrDisconnected = errors.New("disconnected")

	// ErrInvalidHandshake is returned for replies that do not fit the handshake state.
	ErrInvalidHandshake = errors.New("invalid handshake")

	// ErrInvalidMTU is returned for a negotiated MTU too small to carry a datagram.
	ErrInvalidMTU = errors.New("mtu too small")

	// ErrSessionNotFound is returned when no session exists for an address.
	ErrSessionNotFound = errors.New("session not found")

	// ErrPacketTooLarge is returned when a packet does not fit the session MTU.
	ErrPacketTooLarge = errors.New("packet exceeds session mtu")

	// ErrTimeout is returned when a ping or handshake is not answered in time.
	ErrTimeout = errors.New("request timed out")

	// ErrClosed is returned by a closed Peer.
	ErrClosed = errors.New("peer is closed")
)

// IncompatibleProtocolError is returned when the remote peer speaks another protocol version.
type IncompatibleProtocolError struct {
	Server byte
	Local  byte
}

func (e *IncompatibleProtocolError) Error() string {
	return fmt.Sprintf("incompatible protocol version: server %d, local %d", e.Server, e.Local)
}

// Is makes IncompatibleProtocolError match ErrIncompatibleProtocol.
func (e *IncompatibleProtocolError) Is(target error) bool {
	return target == ErrIncompatibleProtocol
}

// Internal results of handleInner.
var (
	errDisconnect = errors.New("disconnect")
	errNotInner   = errors.New("not a connection message")
)
