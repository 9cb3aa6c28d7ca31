// Package protocol implements the RakNet wire format: the reliability model,
// the internal packet codec, datagram framing and the offline/online message catalogue.
package protocol

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/skycoin/raknet/internal/ioutil"
)

const (
	// DefaultProtocolVersion is the protocol version byte sent in OpenConnectionRequest1.
	DefaultProtocolVersion = byte(6)

	// UDPHeaderSize is the IP + UDP header overhead accounted for in MTU discovery.
	UDPHeaderSize = 28

	// MaxChannels is the number of independent ordering channels.
	MaxChannels = 32

	// MaxPayloadSize is the largest payload whose bit length fits the 16-bit length field.
	MaxPayloadSize = 0xFFFF >> 3

	// InternalAddressCount is the number of system addresses carried by connection messages.
	InternalAddressCount = 20
)

// OfflineMagic identifies offline (pre-connection) messages.
var OfflineMagic = [16]byte{
	0x00, 0xff, 0xff, 0x00, 0xfe, 0xfe, 0xfe, 0xfe,
	0xfd, 0xfd, 0xfd, 0xfd, 0x12, 0x34, 0x56, 0x78,
}

var (
	// ErrInvalidInput is returned when a value cannot be encoded.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidData is returned when decoded bytes are malformed.
	ErrInvalidData = errors.New("invalid data")

	// ErrInvalidMagic is returned when an offline message does not carry OfflineMagic.
	ErrInvalidMagic = fmt.Errorf("%w: offline magic mismatch", ErrInvalidData)

	// ErrNotEnoughRemaining is returned on buffer underrun or overflow.
	ErrNotEnoughRemaining = ioutil.ErrNotEnoughRemaining
)

// MessageID is the first byte of every RakNet message.
type MessageID byte

// Message identifiers.
const (
	IDConnectedPing                  = MessageID(0x00)
	IDUnconnectedPing                = MessageID(0x01)
	IDUnconnectedPingOpenConnections = MessageID(0x02)
	IDConnectedPong                  = MessageID(0x03)
	IDOpenConnectionRequest1         = MessageID(0x05)
	IDOpenConnectionReply1           = MessageID(0x06)
	IDOpenConnectionRequest2         = MessageID(0x07)
	IDOpenConnectionReply2           = MessageID(0x08)
	IDConnectionRequest              = MessageID(0x09)
	IDConnectionRequestAccepted      = MessageID(0x10)
	IDAlreadyConnected               = MessageID(0x12)
	IDNewIncomingConnection          = MessageID(0x13)
	IDNoFreeIncomingConnections      = MessageID(0x14)
	IDDisconnectionNotification      = MessageID(0x15)
	IDConnectionLost                 = MessageID(0x16)
	IDConnectionBanned               = MessageID(0x17)
	IDIncompatibleProtocolVersion    = MessageID(0x19)
	IDIPRecentlyConnected            = MessageID(0x1a)
	IDUnconnectedPong                = MessageID(0x1c)
	IDDatagram                       = MessageID(0x84)
	IDNack                           = MessageID(0xa0)
	IDAck                            = MessageID(0xc0)
	IDDatagramMin                    = MessageID(0x80)
	IDDatagramMax                    = MessageID(0x8f)
)

var messageNames = map[MessageID]string{
	IDConnectedPing:                  "CONNECTED_PING",
	IDUnconnectedPing:                "UNCONNECTED_PING",
	IDUnconnectedPingOpenConnections: "UNCONNECTED_PING_OPEN_CONNECTIONS",
	IDConnectedPong:                  "CONNECTED_PONG",
	IDOpenConnectionRequest1:         "OPEN_CONNECTION_REQUEST_1",
	IDOpenConnectionReply1:           "OPEN_CONNECTION_REPLY_1",
	IDOpenConnectionRequest2:         "OPEN_CONNECTION_REQUEST_2",
	IDOpenConnectionReply2:           "OPEN_CONNECTION_REPLY_2",
	IDConnectionRequest:              "CONNECTION_REQUEST",
	IDConnectionRequestAccepted:      "CONNECTION_REQUEST_ACCEPTED",
	IDAlreadyConnected:               "ALREADY_CONNECTED",
	IDNewIncomingConnection:          "NEW_INCOMING_CONNECTION",
	IDNoFreeIncomingConnections:      "NO_FREE_INCOMING_CONNECTIONS",
	IDDisconnectionNotification:      "DISCONNECTION_NOTIFICATION",
	IDConnectionLost:                 "CONNECTION_LOST",
	IDConnectionBanned:               "CONNECTION_BANNED",
	IDIncompatibleProtocolVersion:    "INCOMPATIBLE_PROTOCOL_VERSION",
	IDIPRecentlyConnected:            "IP_RECENTLY_CONNECTED",
	IDUnconnectedPong:                "UNCONNECTED_PONG",
	IDNack:                           "NACK",
	IDAck:                            "ACK",
}

// IsDatagram reports whether id is a datagram header byte.
func (id MessageID) IsDatagram() bool {
	return id >= IDDatagramMin && id <= IDDatagramMax
}

func (id MessageID) String() string {
	if name, ok := messageNames[id]; ok {
		return name
	}
	if id.IsDatagram() {
		return fmt.Sprintf("DATAGRAM:%#02x", byte(id))
	}
	return fmt.Sprintf("UNKNOWN:%#02x", byte(id))
}

// Message is implemented by every entry of the message catalogue.
type Message interface {
	ID() MessageID
	Encode(w *ioutil.Writer) error
	Decode(r *ioutil.Reader) error
}

// Marshal encodes m into a new byte slice.
func Marshal(m Message) ([]byte, error) {
	w := ioutil.NewWriter(ioutil.Unbounded)
	if err := m.Encode(w); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// Unmarshal decodes b into m. Trailing bytes are rejected.
func Unmarshal(b []byte, m Message) error {
	r := ioutil.NewReader(b)
	if err := m.Decode(r); err != nil {
		return err
	}
	if r.Remaining() != 0 {
		return fmt.Errorf("%w: %d trailing bytes after %s", ErrInvalidData, r.Remaining(), m.ID())
	}
	return nil
}

func writeID(w *ioutil.Writer, id MessageID) error {
	return w.WriteByte(byte(id))
}

func readID(r *ioutil.Reader, want MessageID) error {
	b, err := r.ReadByte()
	if err != nil {
		return err
	}
	if MessageID(b) != want {
		return fmt.Errorf("%w: expected message %s, got %s", ErrInvalidData, want, MessageID(b))
	}
	return nil
}

func writeMagic(w *ioutil.Writer) error {
	_, err := w.Write(OfflineMagic[:])
	return err
}

func readMagic(r *ioutil.Reader) error {
	var magic [16]byte
	if err := r.ReadFull(magic[:]); err != nil {
		return err
	}
	if !bytes.Equal(magic[:], OfflineMagic[:]) {
		return ErrInvalidMagic
	}
	return nil
}
