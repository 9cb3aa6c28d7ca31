package peer

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/skycoin/raknet/pkg/protocol"
)

// SessionInfo describes an established session.
type SessionInfo struct {
	ID         uuid.UUID     `json:"id"`
	Addr       string        `json:"address"`
	GUID       uint64        `json:"guid"`
	MTU        uint16        `json:"mtu"`
	Initiator  bool          `json:"initiator"`
	Online     bool          `json:"online"`
	Opened     time.Time     `json:"opened"`
	LastSeen   time.Time     `json:"last_seen"`
	Latency    time.Duration `json:"latency"`
	Received   uint64        `json:"datagrams_received"`
	Sent       uint64        `json:"datagrams_sent"`
	OutOfOrder uint64        `json:"datagrams_out_of_order"`
	Acks       uint64        `json:"acks"`
	Nacks      uint64        `json:"nacks"`
}

type session struct {
	info SessionInfo
	addr net.Addr

	nextSequence     protocol.Uint24
	nextMessageIndex protocol.Uint24
	orderIndex       [protocol.MaxChannels]protocol.Uint24
	sequenceIndex    [protocol.MaxChannels]protocol.Uint24

	highest protocol.Uint24
	seen    bool
}

func newSession(addr net.Addr, guid uint64, mtu uint16, initiator bool, now time.Time) *session {
	return &session{
		addr: addr,
		info: SessionInfo{
			ID:        uuid.New(),
			Addr:      addr.String(),
			GUID:      guid,
			MTU:       mtu,
			Initiator: initiator,
			Opened:    now,
			LastSeen:  now,
		},
	}
}

// frame builds a single packet datagram carrying payload and advances the session counters.
// Counters are left untouched when the packet is rejected.
func (s *session) frame(payload []byte, pr protocol.PacketReliability, channel uint8) ([]byte, error) {
	if int(channel) >= protocol.MaxChannels {
		return nil, fmt.Errorf("%w: channel %d", protocol.ErrChannelOutOfRange, channel)
	}
	rel, ord, ack, err := pr.Guarantees()
	if err != nil {
		return nil, err
	}

	if rel.Reliable {
		rel.MessageIndex = s.nextMessageIndex
	}
	switch ord.Kind {
	case protocol.OrderingOrdered:
		ord = protocol.OrderedOn(channel, s.orderIndex[channel])
	case protocol.OrderingSequenced:
		ord = protocol.SequencedOn(channel, s.orderIndex[channel], s.sequenceIndex[channel])
	}

	pkt, err := protocol.NewInternalPacket(rel, ord, ack, nil, payload)
	if err != nil {
		return nil, err
	}
	d := &protocol.Datagram{Sequence: s.nextSequence, Packets: []*protocol.InternalPacket{pkt}}
	room := int(s.info.MTU) - protocol.UDPHeaderSize
	if room < 0 {
		room = 0
	}
	b, err := protocol.MarshalDatagram(d, room)
	if errors.Is(err, protocol.ErrNotEnoughRemaining) {
		return nil, fmt.Errorf("%w: %d byte packet, mtu %d", ErrPacketTooLarge, pkt.Size(), s.info.MTU)
	}
	if err != nil {
		return nil, err
	}

	s.nextSequence = s.nextSequence.Next()
	if rel.Reliable {
		s.nextMessageIndex = s.nextMessageIndex.Next()
	}
	switch ord.Kind {
	case protocol.OrderingOrdered:
		s.orderIndex[channel] = s.orderIndex[channel].Next()
		s.sequenceIndex[channel] = 0
	case protocol.OrderingSequenced:
		s.sequenceIndex[channel] = s.sequenceIndex[channel].Next()
	}
	s.info.Sent++
	return b, nil
}

func (s *session) frameMessage(m protocol.Message, pr protocol.PacketReliability) ([]byte, error) {
	payload, err := protocol.Marshal(m)
	if err != nil {
		return nil, err
	}
	return s.frame(payload, pr, 0)
}

// record accounts a received datagram sequence number.
func (s *session) record(seq protocol.Uint24, now time.Time) {
	s.info.Received++
	s.info.LastSeen = now
	if !s.seen {
		s.highest = seq
		s.seen = true
		return
	}
	if s.highest.Before(seq) {
		s.highest = seq
		return
	}
	s.info.OutOfOrder++
}
