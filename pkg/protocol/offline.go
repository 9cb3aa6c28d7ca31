package protocol

import (
	"fmt"
	"math"
	"net"

	"github.com/skycoin/raknet/internal/ioutil"
)

// UnconnectedPing queries a peer for its GUID and advertised information.
type UnconnectedPing struct {
	// OpenConnections selects IDUnconnectedPingOpenConnections, which only peers accepting connections answer.
	OpenConnections bool
	PingTime        uint64
	ClientGUID      uint64
}

// ID implements Message.
func (m *UnconnectedPing) ID() MessageID {
	if m.OpenConnections {
		return IDUnconnectedPingOpenConnections
	}
	return IDUnconnectedPing
}

// Encode implements Message.
func (m *UnconnectedPing) Encode(w *ioutil.Writer) error {
	if err := writeID(w, m.ID()); err != nil {
		return err
	}
	if err := w.WriteUint64BE(m.PingTime); err != nil {
		return err
	}
	if err := writeMagic(w); err != nil {
		return err
	}
	return w.WriteUint64BE(m.ClientGUID)
}

// Decode implements Message.
func (m *UnconnectedPing) Decode(r *ioutil.Reader) (err error) {
	id, err := r.ReadByte()
	if err != nil {
		return err
	}
	switch MessageID(id) {
	case IDUnconnectedPing:
		m.OpenConnections = false
	case IDUnconnectedPingOpenConnections:
		m.OpenConnections = true
	default:
		return fmt.Errorf("%w: expected unconnected ping, got %s", ErrInvalidData, MessageID(id))
	}
	if m.PingTime, err = r.ReadUint64BE(); err != nil {
		return err
	}
	if err := readMagic(r); err != nil {
		return err
	}
	m.ClientGUID, err = r.ReadUint64BE()
	return err
}

// UnconnectedPong answers an UnconnectedPing.
type UnconnectedPong struct {
	PingTime    uint64
	ServerGUID  uint64
	Information string
}

// ID implements Message.
func (m *UnconnectedPong) ID() MessageID { return IDUnconnectedPong }

// Encode implements Message.
func (m *UnconnectedPong) Encode(w *ioutil.Writer) error {
	if err := writeID(w, m.ID()); err != nil {
		return err
	}
	if err := w.WriteUint64BE(m.PingTime); err != nil {
		return err
	}
	if err := w.WriteUint64BE(m.ServerGUID); err != nil {
		return err
	}
	if err := writeMagic(w); err != nil {
		return err
	}
	return WriteString(w, m.Information)
}

// Decode implements Message.
func (m *UnconnectedPong) Decode(r *ioutil.Reader) (err error) {
	if err := readID(r, m.ID()); err != nil {
		return err
	}
	if m.PingTime, err = r.ReadUint64BE(); err != nil {
		return err
	}
	if m.ServerGUID, err = r.ReadUint64BE(); err != nil {
		return err
	}
	if err := readMagic(r); err != nil {
		return err
	}
	m.Information, err = ReadString(r)
	return err
}

// OpenConnectionRequest1 starts the offline handshake.
// The message is zero-padded so that its length tells the receiver the MTU the sender wants:
// MTU equals UDPHeaderSize plus the number of padding bytes.
type OpenConnectionRequest1 struct {
	Protocol byte
	MTU      uint16
}

// ID implements Message.
func (m *OpenConnectionRequest1) ID() MessageID { return IDOpenConnectionRequest1 }

// Encode implements Message.
func (m *OpenConnectionRequest1) Encode(w *ioutil.Writer) error {
	if m.MTU < UDPHeaderSize {
		return fmt.Errorf("%w: mtu %d is smaller than the UDP header", ErrInvalidInput, m.MTU)
	}
	if err := writeID(w, m.ID()); err != nil {
		return err
	}
	if err := writeMagic(w); err != nil {
		return err
	}
	if err := w.WriteByte(m.Protocol); err != nil {
		return err
	}
	return w.WriteZeros(int(m.MTU) - UDPHeaderSize)
}

// Decode implements Message. It consumes the rest of the reader as padding.
func (m *OpenConnectionRequest1) Decode(r *ioutil.Reader) (err error) {
	if err := readID(r, m.ID()); err != nil {
		return err
	}
	if err := readMagic(r); err != nil {
		return err
	}
	if m.Protocol, err = r.ReadByte(); err != nil {
		return err
	}
	m.MTU = inferMTU(r.Remaining())
	return r.Skip(r.Remaining())
}

func inferMTU(padding int) uint16 {
	if padding > math.MaxUint16-UDPHeaderSize {
		return math.MaxUint16
	}
	return uint16(UDPHeaderSize + padding)
}

// OpenConnectionReply1 answers OpenConnectionRequest1.
type OpenConnectionReply1 struct {
	ServerGUID uint64
	Security   bool
	MTU        uint16
}

// ID implements Message.
func (m *OpenConnectionReply1) ID() MessageID { return IDOpenConnectionReply1 }

// Encode implements Message.
func (m *OpenConnectionReply1) Encode(w *ioutil.Writer) error {
	if err := writeID(w, m.ID()); err != nil {
		return err
	}
	if err := writeMagic(w); err != nil {
		return err
	}
	if err := w.WriteUint64BE(m.ServerGUID); err != nil {
		return err
	}
	if err := w.WriteBool(m.Security); err != nil {
		return err
	}
	return w.WriteUint16BE(m.MTU)
}

// Decode implements Message.
func (m *OpenConnectionReply1) Decode(r *ioutil.Reader) (err error) {
	if err := readID(r, m.ID()); err != nil {
		return err
	}
	if err := readMagic(r); err != nil {
		return err
	}
	if m.ServerGUID, err = r.ReadUint64BE(); err != nil {
		return err
	}
	if m.Security, err = r.ReadBool(); err != nil {
		return err
	}
	m.MTU, err = r.ReadUint16BE()
	return err
}

// OpenConnectionRequest2 confirms the MTU and announces the client GUID.
type OpenConnectionRequest2 struct {
	ServerAddress *net.UDPAddr
	MTU           uint16
	ClientGUID    uint64
}

// ID implements Message.
func (m *OpenConnectionRequest2) ID() MessageID { return IDOpenConnectionRequest2 }

// Encode implements Message.
func (m *OpenConnectionRequest2) Encode(w *ioutil.Writer) error {
	if err := writeID(w, m.ID()); err != nil {
		return err
	}
	if err := writeMagic(w); err != nil {
		return err
	}
	if err := WriteAddress(w, m.ServerAddress); err != nil {
		return err
	}
	if err := w.WriteUint16BE(m.MTU); err != nil {
		return err
	}
	return w.WriteUint64BE(m.ClientGUID)
}

// Decode implements Message.
func (m *OpenConnectionRequest2) Decode(r *ioutil.Reader) (err error) {
	if err := readID(r, m.ID()); err != nil {
		return err
	}
	if err := readMagic(r); err != nil {
		return err
	}
	if m.ServerAddress, err = ReadAddress(r); err != nil {
		return err
	}
	if m.MTU, err = r.ReadUint16BE(); err != nil {
		return err
	}
	m.ClientGUID, err = r.ReadUint64BE()
	return err
}

// OpenConnectionReply2 completes the offline handshake.
type OpenConnectionReply2 struct {
	ServerGUID    uint64
	ClientAddress *net.UDPAddr
	MTU           uint16
	Security      bool
}

// ID implements Message.
func (m *OpenConnectionReply2) ID() MessageID { return IDOpenConnectionReply2 }

// Encode implements Message.
func (m *OpenConnectionReply2) Encode(w *ioutil.Writer) error {
	if err := writeID(w, m.ID()); err != nil {
		return err
	}
	if err := writeMagic(w); err != nil {
		return err
	}
	if err := w.WriteUint64BE(m.ServerGUID); err != nil {
		return err
	}
	if err := WriteAddress(w, m.ClientAddress); err != nil {
		return err
	}
	if err := w.WriteUint16BE(m.MTU); err != nil {
		return err
	}
	return w.WriteBool(m.Security)
}

// Decode implements Message.
func (m *OpenConnectionReply2) Decode(r *ioutil.Reader) (err error) {
	if err := readID(r, m.ID()); err != nil {
		return err
	}
	if err := readMagic(r); err != nil {
		return err
	}
	if m.ServerGUID, err = r.ReadUint64BE(); err != nil {
		return err
	}
	if m.ClientAddress, err = ReadAddress(r); err != nil {
		return err
	}
	if m.MTU, err = r.ReadUint16BE(); err != nil {
		return err
	}
	m.Security, err = r.ReadBool()
	return err
}

// Rejection is sent by a server refusing a handshake.
// Reason is one of IDConnectionBanned, IDAlreadyConnected, IDNoFreeIncomingConnections or IDIPRecentlyConnected.
type Rejection struct {
	Reason     MessageID
	ServerGUID uint64
}

// IsRejection reports whether id is a handshake rejection carrying magic and server GUID.
func IsRejection(id MessageID) bool {
	switch id {
	case IDConnectionBanned, IDAlreadyConnected, IDNoFreeIncomingConnections, IDIPRecentlyConnected:
		return true
	default:
		return false
	}
}

// ID implements Message.
func (m *Rejection) ID() MessageID { return m.Reason }

// Encode implements Message.
func (m *Rejection) Encode(w *ioutil.Writer) error {
	if !IsRejection(m.Reason) {
		return fmt.Errorf("%w: %s is not a rejection", ErrInvalidInput, m.Reason)
	}
	if err := writeID(w, m.Reason); err != nil {
		return err
	}
	if err := writeMagic(w); err != nil {
		return err
	}
	return w.WriteUint64BE(m.ServerGUID)
}

// Decode implements Message.
func (m *Rejection) Decode(r *ioutil.Reader) (err error) {
	id, err := r.ReadByte()
	if err != nil {
		return err
	}
	if !IsRejection(MessageID(id)) {
		return fmt.Errorf("%w: %s is not a rejection", ErrInvalidData, MessageID(id))
	}
	m.Reason = MessageID(id)
	if err := readMagic(r); err != nil {
		return err
	}
	m.ServerGUID, err = r.ReadUint64BE()
	return err
}

// IncompatibleProtocolVersion rejects an OpenConnectionRequest1 with a different protocol version.
type IncompatibleProtocolVersion struct {
	Protocol   byte
	ServerGUID uint64
}

// ID implements Message.
func (m *IncompatibleProtocolVersion) ID() MessageID { return IDIncompatibleProtocolVersion }

// Encode implements Message.
func (m *IncompatibleProtocolVersion) Encode(w *ioutil.Writer) error {
	if err := writeID(w, m.ID()); err != nil {
		return err
	}
	if err := w.WriteByte(m.Protocol); err != nil {
		return err
	}
	if err := writeMagic(w); err != nil {
		return err
	}
	return w.WriteUint64BE(m.ServerGUID)
}

// Decode implements Message.
func (m *IncompatibleProtocolVersion) Decode(r *ioutil.Reader) (err error) {
	if err := readID(r, m.ID()); err != nil {
		return err
	}
	if m.Protocol, err = r.ReadByte(); err != nil {
		return err
	}
	if err := readMagic(r); err != nil {
		return err
	}
	m.ServerGUID, err = r.ReadUint64BE()
	return err
}
