package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrReliabilityMismatch is returned for reliability/ordering/receipt combinations with no wire code.
	ErrReliabilityMismatch = errors.New("reliability mismatch")

	// ErrIndexOverflow is returned when a message, order or sequence index exceeds 24 bits.
	ErrIndexOverflow = errors.New("index exceeds 24 bits")

	// ErrChannelOutOfRange is returned when an ordering channel is not in [0, 32).
	ErrChannelOutOfRange = errors.New("ordering channel out of range")

	// ErrPayloadOutOfRange is returned when a payload exceeds MaxPayloadSize.
	ErrPayloadOutOfRange = errors.New("payload length out of range")
)

// PacketReliability is the 3-bit wire code combining reliability, ordering and receipt semantics.
type PacketReliability byte

// Wire reliability codes.
const (
	Unreliable                    = PacketReliability(0)
	UnreliableSequenced           = PacketReliability(1)
	Reliable                      = PacketReliability(2)
	ReliableOrdered               = PacketReliability(3)
	ReliableSequenced             = PacketReliability(4)
	UnreliableWithAckReceipt      = PacketReliability(5)
	ReliableWithAckReceipt        = PacketReliability(6)
	ReliableOrderedWithAckReceipt = PacketReliability(7)
)

func (pr PacketReliability) String() string {
	var names = []string{
		Unreliable:                    "UNRELIABLE",
		UnreliableSequenced:           "UNRELIABLE_SEQUENCED",
		Reliable:                      "RELIABLE",
		ReliableOrdered:               "RELIABLE_ORDERED",
		ReliableSequenced:             "RELIABLE_SEQUENCED",
		UnreliableWithAckReceipt:      "UNRELIABLE_WITH_ACK_RECEIPT",
		ReliableWithAckReceipt:        "RELIABLE_WITH_ACK_RECEIPT",
		ReliableOrderedWithAckReceipt: "RELIABLE_ORDERED_WITH_ACK_RECEIPT",
	}
	if int(pr) >= len(names) {
		return fmt.Sprintf("UNKNOWN:%d", pr)
	}
	return names[pr]
}

// Valid reports whether pr is one of the eight wire codes.
func (pr PacketReliability) Valid() bool {
	return pr <= ReliableOrderedWithAckReceipt
}

// Reliable reports whether packets with this code carry a message index.
func (pr PacketReliability) Reliable() bool {
	switch pr {
	case Reliable, ReliableOrdered, ReliableSequenced, ReliableWithAckReceipt, ReliableOrderedWithAckReceipt:
		return true
	default:
		return false
	}
}

// Ordered reports whether packets with this code carry an order index and channel.
func (pr PacketReliability) Ordered() bool {
	return pr == ReliableOrdered || pr == ReliableOrderedWithAckReceipt
}

// Sequenced reports whether packets with this code carry a sequence index.
func (pr PacketReliability) Sequenced() bool {
	return pr == UnreliableSequenced || pr == ReliableSequenced
}

// WithAckReceipt reports whether the sender asked for a delivery receipt.
func (pr PacketReliability) WithAckReceipt() bool {
	return pr == UnreliableWithAckReceipt || pr == ReliableWithAckReceipt || pr == ReliableOrderedWithAckReceipt
}

// Reliability tells whether a packet is tracked for acknowledgement.
// The zero value is unreliable.
type Reliability struct {
	Reliable     bool
	MessageIndex Uint24
}

// ReliableWith returns a reliable Reliability with the given message index.
func ReliableWith(index Uint24) Reliability {
	return Reliability{Reliable: true, MessageIndex: index}
}

// OrderingKind selects the ordering guarantee of a packet.
type OrderingKind byte

// Ordering kinds.
const (
	OrderingNone OrderingKind = iota
	OrderingOrdered
	OrderingSequenced
)

func (k OrderingKind) String() string {
	switch k {
	case OrderingNone:
		return "NONE"
	case OrderingOrdered:
		return "ORDERED"
	case OrderingSequenced:
		return "SEQUENCED"
	default:
		return fmt.Sprintf("UNKNOWN:%d", k)
	}
}

// Ordering places a packet within one of the ordering channels.
// The zero value means no ordering.
type Ordering struct {
	Kind          OrderingKind
	Channel       uint8
	OrderIndex    Uint24
	SequenceIndex Uint24
}

// OrderedOn returns an ordered Ordering.
func OrderedOn(channel uint8, orderIndex Uint24) Ordering {
	return Ordering{Kind: OrderingOrdered, Channel: channel, OrderIndex: orderIndex}
}

// SequencedOn returns a sequenced Ordering.
func SequencedOn(channel uint8, orderIndex, sequenceIndex Uint24) Ordering {
	return Ordering{Kind: OrderingSequenced, Channel: channel, OrderIndex: orderIndex, SequenceIndex: sequenceIndex}
}

// Classify maps the requested guarantees to their wire code.
// Unreliable ordered delivery and sequenced delivery with a receipt have no code and are rejected.
func Classify(r Reliability, o Ordering, withAckReceipt bool) (PacketReliability, error) {
	switch o.Kind {
	case OrderingNone:
		switch {
		case !r.Reliable && !withAckReceipt:
			return Unreliable, nil
		case !r.Reliable && withAckReceipt:
			return UnreliableWithAckReceipt, nil
		case !withAckReceipt:
			return Reliable, nil
		default:
			return ReliableWithAckReceipt, nil
		}

	case OrderingOrdered:
		if !r.Reliable {
			return 0, fmt.Errorf("%w: unreliable packets cannot be ordered", ErrReliabilityMismatch)
		}
		if withAckReceipt {
			return ReliableOrderedWithAckReceipt, nil
		}
		return ReliableOrdered, nil

	case OrderingSequenced:
		if withAckReceipt {
			return 0, fmt.Errorf("%w: sequenced packets cannot request a receipt", ErrReliabilityMismatch)
		}
		if r.Reliable {
			return ReliableSequenced, nil
		}
		return UnreliableSequenced, nil

	default:
		return 0, fmt.Errorf("%w: unknown ordering kind %d", ErrReliabilityMismatch, o.Kind)
	}
}

// Guarantees is the inverse of Classify. Indices and channel are left zero.
func (pr PacketReliability) Guarantees() (Reliability, Ordering, bool, error) {
	if !pr.Valid() {
		return Reliability{}, Ordering{}, false, fmt.Errorf("%w: unknown wire code %d", ErrReliabilityMismatch, pr)
	}
	var (
		r Reliability
		o Ordering
	)
	r.Reliable = pr.Reliable()
	switch {
	case pr.Ordered():
		o.Kind = OrderingOrdered
	case pr.Sequenced():
		o.Kind = OrderingSequenced
	}
	return r, o, pr.WithAckReceipt(), nil
}
