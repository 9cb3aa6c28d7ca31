package protocol

import (
	"fmt"

	"github.com/skycoin/raknet/internal/ioutil"
)

const (
	reliabilityShift = 5
	splitFlag        = 0x10
)

// Split describes one fragment of a message that was split across several packets.
type Split struct {
	ID    uint16
	Count uint32
	Index uint32
}

// InternalPacket is a single message carried inside a datagram.
type InternalPacket struct {
	Reliability    Reliability
	Ordering       Ordering
	WithAckReceipt bool
	Split          *Split
	Payload        []byte
}

// NewInternalPacket constructs a validated InternalPacket.
func NewInternalPacket(r Reliability, o Ordering, withAckReceipt bool, split *Split, payload []byte) (*InternalPacket, error) {
	p := &InternalPacket{
		Reliability:    r,
		Ordering:       o,
		WithAckReceipt: withAckReceipt,
		Split:          split,
		Payload:        payload,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks the packet against the legality matrix and the numeric ranges of the wire format.
func (p *InternalPacket) Validate() error {
	_, err := p.wireReliability()
	return err
}

// WireReliability returns the wire code of a valid packet.
func (p *InternalPacket) WireReliability() (PacketReliability, error) {
	return p.wireReliability()
}

func (p *InternalPacket) wireReliability() (PacketReliability, error) {
	pr, err := Classify(p.Reliability, p.Ordering, p.WithAckReceipt)
	if err != nil {
		return 0, err
	}
	if p.Reliability.Reliable {
		if err := checkUint24("message index", p.Reliability.MessageIndex); err != nil {
			return 0, err
		}
	}
	if p.Ordering.Kind != OrderingNone {
		if err := checkUint24("order index", p.Ordering.OrderIndex); err != nil {
			return 0, err
		}
		if p.Ordering.Channel >= MaxChannels {
			return 0, fmt.Errorf("%w: channel %d", ErrChannelOutOfRange, p.Ordering.Channel)
		}
	}
	if p.Ordering.Kind == OrderingSequenced {
		if err := checkUint24("sequence index", p.Ordering.SequenceIndex); err != nil {
			return 0, err
		}
	}
	if len(p.Payload) > MaxPayloadSize {
		return 0, fmt.Errorf("%w: %d bytes", ErrPayloadOutOfRange, len(p.Payload))
	}
	return pr, nil
}

// Size returns the number of bytes Encode writes for p.
func (p *InternalPacket) Size() int {
	n := 1 + 2 + len(p.Payload)
	if p.Reliability.Reliable {
		n += 3
	}
	switch p.Ordering.Kind {
	case OrderingOrdered:
		n += 3 + 1
	case OrderingSequenced:
		n += 3 + 3 + 1
	}
	if p.Split != nil {
		n += 4 + 2 + 4
	}
	return n
}

// Encode writes the packet.
func (p *InternalPacket) Encode(w *ioutil.Writer) error {
	pr, err := p.wireReliability()
	if err != nil {
		return err
	}
	if w.Remaining() < p.Size() {
		return ErrNotEnoughRemaining
	}

	flags := byte(pr) << reliabilityShift
	if p.Split != nil {
		flags |= splitFlag
	}
	if err := w.WriteByte(flags); err != nil {
		return err
	}
	if err := w.WriteUint16BE(uint16(len(p.Payload) * 8)); err != nil {
		return err
	}
	if pr.Reliable() {
		if err := w.WriteUint24LE(uint32(p.Reliability.MessageIndex)); err != nil {
			return err
		}
	}
	switch {
	case pr.Ordered():
		if err := w.WriteUint24LE(uint32(p.Ordering.OrderIndex)); err != nil {
			return err
		}
		if err := w.WriteByte(p.Ordering.Channel); err != nil {
			return err
		}
	case pr.Sequenced():
		if err := w.WriteUint24LE(uint32(p.Ordering.SequenceIndex)); err != nil {
			return err
		}
		if err := w.WriteUint24LE(uint32(p.Ordering.OrderIndex)); err != nil {
			return err
		}
		if err := w.WriteByte(p.Ordering.Channel); err != nil {
			return err
		}
	}
	if p.Split != nil {
		if err := w.WriteUint32BE(p.Split.Count); err != nil {
			return err
		}
		if err := w.WriteUint16BE(p.Split.ID); err != nil {
			return err
		}
		if err := w.WriteUint32BE(p.Split.Index); err != nil {
			return err
		}
	}
	_, err = w.Write(p.Payload)
	return err
}

// DecodeInternalPacket reads a single packet from r.
func DecodeInternalPacket(r *ioutil.Reader) (*InternalPacket, error) {
	flags, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	pr := PacketReliability(flags >> reliabilityShift)
	rel, ord, ack, err := pr.Guarantees()
	if err != nil {
		return nil, err
	}
	p := &InternalPacket{Reliability: rel, Ordering: ord, WithAckReceipt: ack}

	bits, err := r.ReadUint16BE()
	if err != nil {
		return nil, err
	}
	if pr.Reliable() {
		idx, err := r.ReadUint24LE()
		if err != nil {
			return nil, err
		}
		p.Reliability.MessageIndex = Uint24(idx)
	}
	switch {
	case pr.Ordered():
		idx, err := r.ReadUint24LE()
		if err != nil {
			return nil, err
		}
		if p.Ordering.Channel, err = r.ReadByte(); err != nil {
			return nil, err
		}
		p.Ordering.OrderIndex = Uint24(idx)
	case pr.Sequenced():
		seq, err := r.ReadUint24LE()
		if err != nil {
			return nil, err
		}
		idx, err := r.ReadUint24LE()
		if err != nil {
			return nil, err
		}
		if p.Ordering.Channel, err = r.ReadByte(); err != nil {
			return nil, err
		}
		p.Ordering.SequenceIndex = Uint24(seq)
		p.Ordering.OrderIndex = Uint24(idx)
	}
	if flags&splitFlag != 0 {
		s := new(Split)
		if s.Count, err = r.ReadUint32BE(); err != nil {
			return nil, err
		}
		if s.ID, err = r.ReadUint16BE(); err != nil {
			return nil, err
		}
		if s.Index, err = r.ReadUint32BE(); err != nil {
			return nil, err
		}
		p.Split = s
	}
	if p.Payload, err = r.ReadBytes(int(bits / 8)); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *InternalPacket) String() string {
	pr, _ := Classify(p.Reliability, p.Ordering, p.WithAckReceipt)
	s := fmt.Sprintf("<reliability:%s><size:%d>", pr, len(p.Payload))
	if p.Reliability.Reliable {
		s += fmt.Sprintf("<msg:%s>", p.Reliability.MessageIndex)
	}
	if p.Ordering.Kind != OrderingNone {
		s += fmt.Sprintf("<ch:%d><ord:%s>", p.Ordering.Channel, p.Ordering.OrderIndex)
	}
	if p.Ordering.Kind == OrderingSequenced {
		s += fmt.Sprintf("<seq:%s>", p.Ordering.SequenceIndex)
	}
	if p.Split != nil {
		s += fmt.Sprintf("<split:%d:%d/%d>", p.Split.ID, p.Split.Index, p.Split.Count)
	}
	return s
}
