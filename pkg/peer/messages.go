package peer

import (
	"net"

	"github.com/skycoin/raknet/pkg/protocol"
)

// Service names on the bus.
const (
	SocketService         = "socket"
	PingService           = "ping"
	OpenConnectionService = "open_connection"
	ConnectionService     = "connection"
)

// Packet is a raw UDP payload and the address it came from.
type Packet struct {
	Addr net.Addr
	Data []byte
}

// Socket service messages.
type (
	// SendTo writes Data to Addr.
	SendTo Packet

	// LocalAddr asks for the bound address. The response is a net.Addr.
	LocalAddr struct{}
)

// Ping service messages.
type (
	// RecvPing carries an UnconnectedPing.
	RecvPing Packet

	// RecvPong carries an UnconnectedPong.
	RecvPong Packet

	// Ping sends an UnconnectedPing to Addr. The response is a <-chan *protocol.UnconnectedPong.
	Ping struct {
		Addr net.Addr
	}

	// CancelPing forgets the pending ping to Addr.
	CancelPing struct {
		Addr net.Addr
	}
)

// Handshake service messages.
type (
	// RecvRequest1 carries an OpenConnectionRequest1.
	RecvRequest1 Packet

	// RecvReply1 carries an OpenConnectionReply1.
	RecvReply1 Packet

	// RecvRequest2 carries an OpenConnectionRequest2.
	RecvRequest2 Packet

	// RecvReply2 carries an OpenConnectionReply2.
	RecvReply2 Packet

	// RecvIncompatibleProtocol carries an IncompatibleProtocolVersion.
	RecvIncompatibleProtocol Packet

	// RecvRejection carries a handshake rejection or a DisconnectionNotification.
	RecvRejection Packet

	// Connect starts a handshake with Addr. The response is a <-chan ConnectResult.
	Connect struct {
		Addr net.Addr
	}

	// CancelConnect drops the handshake in progress with Addr.
	CancelConnect struct {
		Addr net.Addr
	}
)

// ConnectResult resolves a Connect request.
type ConnectResult struct {
	Session *SessionInfo
	Err     error
}

// Connection service messages.
type (
	// RecvDatagram carries a datagram.
	RecvDatagram Packet

	// RecvAck carries an acknowledgement.
	RecvAck Packet

	// RecvNack carries a negative acknowledgement.
	RecvNack Packet

	// RecvDisconnectionNotification carries a DisconnectionNotification.
	RecvDisconnectionNotification Packet

	// RecvConnectionLost carries a ConnectionLost.
	RecvConnectionLost Packet

	// RecvConnectionBanned carries a ConnectionBanned.
	RecvConnectionBanned Packet

	// OpenSession creates a session. The response is a *SessionInfo.
	OpenSession struct {
		Addr      net.Addr
		GUID      uint64
		MTU       uint16
		Initiator bool
	}

	// CloseSession removes the session with Addr, optionally notifying the remote side.
	CloseSession struct {
		Addr   net.Addr
		Notify bool
	}

	// HasSession asks whether a session with Addr exists. The response is a bool.
	HasSession struct {
		Addr net.Addr
	}

	// SessionCount asks for the number of sessions. The response is an int.
	SessionCount struct{}

	// ListSessions asks for every session. The response is a []SessionInfo.
	ListSessions struct{}

	// Send frames Payload with the given reliability and sends it to Addr.
	Send struct {
		Addr        net.Addr
		Payload     []byte
		Reliability protocol.PacketReliability
		Channel     uint8
	}
)
