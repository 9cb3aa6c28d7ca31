package protocol

import (
	"net"

	"github.com/skycoin/raknet/internal/ioutil"
)

// ConnectedPing is the keep-alive sent inside datagrams of an established session.
type ConnectedPing struct {
	PingTime uint64
}

// ID implements Message.
func (m *ConnectedPing) ID() MessageID { return IDConnectedPing }

// Encode implements Message.
func (m *ConnectedPing) Encode(w *ioutil.Writer) error {
	if err := writeID(w, m.ID()); err != nil {
		return err
	}
	return w.WriteUint64BE(m.PingTime)
}

// Decode implements Message.
func (m *ConnectedPing) Decode(r *ioutil.Reader) (err error) {
	if err := readID(r, m.ID()); err != nil {
		return err
	}
	m.PingTime, err = r.ReadUint64BE()
	return err
}

// ConnectedPong answers a ConnectedPing.
type ConnectedPong struct {
	PingTime uint64
	PongTime uint64
}

// ID implements Message.
func (m *ConnectedPong) ID() MessageID { return IDConnectedPong }

// Encode implements Message.
func (m *ConnectedPong) Encode(w *ioutil.Writer) error {
	if err := writeID(w, m.ID()); err != nil {
		return err
	}
	if err := w.WriteUint64BE(m.PingTime); err != nil {
		return err
	}
	return w.WriteUint64BE(m.PongTime)
}

// Decode implements Message.
func (m *ConnectedPong) Decode(r *ioutil.Reader) (err error) {
	if err := readID(r, m.ID()); err != nil {
		return err
	}
	if m.PingTime, err = r.ReadUint64BE(); err != nil {
		return err
	}
	m.PongTime, err = r.ReadUint64BE()
	return err
}

// ConnectionRequest is the first online message a client sends over a new session.
type ConnectionRequest struct {
	ClientGUID uint64
	PingTime   uint64
	Security   bool
}

// ID implements Message.
func (m *ConnectionRequest) ID() MessageID { return IDConnectionRequest }

// Encode implements Message.
func (m *ConnectionRequest) Encode(w *ioutil.Writer) error {
	if err := writeID(w, m.ID()); err != nil {
		return err
	}
	if err := w.WriteUint64BE(m.ClientGUID); err != nil {
		return err
	}
	if err := w.WriteUint64BE(m.PingTime); err != nil {
		return err
	}
	return w.WriteBool(m.Security)
}

// Decode implements Message.
func (m *ConnectionRequest) Decode(r *ioutil.Reader) (err error) {
	if err := readID(r, m.ID()); err != nil {
		return err
	}
	if m.ClientGUID, err = r.ReadUint64BE(); err != nil {
		return err
	}
	if m.PingTime, err = r.ReadUint64BE(); err != nil {
		return err
	}
	m.Security, err = r.ReadBool()
	return err
}

// ConnectionRequestAccepted answers a ConnectionRequest.
type ConnectionRequestAccepted struct {
	ClientAddress     *net.UDPAddr
	ClientIndex       uint16
	InternalAddresses [InternalAddressCount]*net.UDPAddr
	PingTime          uint64
	PongTime          uint64
}

// ID implements Message.
func (m *ConnectionRequestAccepted) ID() MessageID { return IDConnectionRequestAccepted }

// Encode implements Message.
func (m *ConnectionRequestAccepted) Encode(w *ioutil.Writer) error {
	if err := writeID(w, m.ID()); err != nil {
		return err
	}
	if err := WriteAddress(w, m.ClientAddress); err != nil {
		return err
	}
	if err := w.WriteUint16BE(m.ClientIndex); err != nil {
		return err
	}
	if err := writeAddresses(w, m.InternalAddresses[:]); err != nil {
		return err
	}
	if err := w.WriteUint64BE(m.PingTime); err != nil {
		return err
	}
	return w.WriteUint64BE(m.PongTime)
}

// Decode implements Message.
func (m *ConnectionRequestAccepted) Decode(r *ioutil.Reader) (err error) {
	if err := readID(r, m.ID()); err != nil {
		return err
	}
	if m.ClientAddress, err = ReadAddress(r); err != nil {
		return err
	}
	if m.ClientIndex, err = r.ReadUint16BE(); err != nil {
		return err
	}
	if err := readAddresses(r, m.InternalAddresses[:]); err != nil {
		return err
	}
	if m.PingTime, err = r.ReadUint64BE(); err != nil {
		return err
	}
	m.PongTime, err = r.ReadUint64BE()
	return err
}

// NewIncomingConnection completes the online handshake on the client side.
type NewIncomingConnection struct {
	ServerAddress     *net.UDPAddr
	InternalAddresses [InternalAddressCount]*net.UDPAddr
	PingTime          uint64
	PongTime          uint64
}

// ID implements Message.
func (m *NewIncomingConnection) ID() MessageID { return IDNewIncomingConnection }

// Encode implements Message.
func (m *NewIncomingConnection) Encode(w *ioutil.Writer) error {
	if err := writeID(w, m.ID()); err != nil {
		return err
	}
	if err := WriteAddress(w, m.ServerAddress); err != nil {
		return err
	}
	if err := writeAddresses(w, m.InternalAddresses[:]); err != nil {
		return err
	}
	if err := w.WriteUint64BE(m.PingTime); err != nil {
		return err
	}
	return w.WriteUint64BE(m.PongTime)
}

// Decode implements Message.
func (m *NewIncomingConnection) Decode(r *ioutil.Reader) (err error) {
	if err := readID(r, m.ID()); err != nil {
		return err
	}
	if m.ServerAddress, err = ReadAddress(r); err != nil {
		return err
	}
	if err := readAddresses(r, m.InternalAddresses[:]); err != nil {
		return err
	}
	if m.PingTime, err = r.ReadUint64BE(); err != nil {
		return err
	}
	m.PongTime, err = r.ReadUint64BE()
	return err
}

// DisconnectionNotification tells the remote side the session is closed.
type DisconnectionNotification struct{}

// ID implements Message.
func (m *DisconnectionNotification) ID() MessageID { return IDDisconnectionNotification }

// Encode implements Message.
func (m *DisconnectionNotification) Encode(w *ioutil.Writer) error {
	return writeID(w, m.ID())
}

// Decode implements Message.
func (m *DisconnectionNotification) Decode(r *ioutil.Reader) error {
	return readID(r, m.ID())
}

func writeAddresses(w *ioutil.Writer, addrs []*net.UDPAddr) error {
	for _, addr := range addrs {
		if err := WriteAddress(w, addr); err != nil {
			return err
		}
	}
	return nil
}

func readAddresses(r *ioutil.Reader, addrs []*net.UDPAddr) error {
	for i := range addrs {
		addr, err := ReadAddress(r)
		if err != nil {
			return err
		}
		addrs[i] = addr
	}
	return nil
}
