package protocol

import (
	"fmt"

	"github.com/skycoin/raknet/internal/ioutil"
)

// DatagramHeaderSize is the size of the header byte plus sequence number that precede the packets of a datagram.
const DatagramHeaderSize = 1 + 3

// MinMTU is the smallest MTU that leaves room for a datagram header.
const MinMTU = UDPHeaderSize + DatagramHeaderSize

// Datagram is a sequence-numbered container of internal packets sent as one UDP payload.
type Datagram struct {
	Sequence Uint24
	Packets  []*InternalPacket
}

// Encode writes the sequence number followed by every packet in order.
func (d *Datagram) Encode(w *ioutil.Writer) error {
	if err := checkUint24("datagram sequence", d.Sequence); err != nil {
		return err
	}
	if err := w.WriteUint24LE(uint32(d.Sequence)); err != nil {
		return err
	}
	for i, p := range d.Packets {
		if err := p.Encode(w); err != nil {
			return fmt.Errorf("packet %d: %w", i, err)
		}
	}
	return nil
}

// DecodeDatagram decodes a datagram body. The whole buffer must be consumed by packets.
func DecodeDatagram(b []byte) (*Datagram, error) {
	r := ioutil.NewReader(b)
	seq, err := r.ReadUint24LE()
	if err != nil {
		return nil, err
	}
	d := &Datagram{Sequence: Uint24(seq)}
	for r.Remaining() > 0 {
		p, err := DecodeInternalPacket(r)
		if err != nil {
			return nil, fmt.Errorf("packet %d at offset %d: %w", len(d.Packets), r.Offset(), err)
		}
		d.Packets = append(d.Packets, p)
	}
	return d, nil
}

// MarshalDatagram frames d as a UDP payload of at most mtu bytes, header byte included.
func MarshalDatagram(d *Datagram, mtu int) ([]byte, error) {
	w := ioutil.NewWriter(mtu)
	if err := writeID(w, IDDatagram); err != nil {
		return nil, err
	}
	if err := d.Encode(w); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// UnmarshalDatagram decodes a UDP payload starting with a datagram header byte.
func UnmarshalDatagram(b []byte) (*Datagram, error) {
	if len(b) == 0 {
		return nil, ErrNotEnoughRemaining
	}
	if !MessageID(b[0]).IsDatagram() {
		return nil, fmt.Errorf("%w: %s is not a datagram header", ErrInvalidData, MessageID(b[0]))
	}
	return DecodeDatagram(b[1:])
}
