package peer

import (
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skycoin/raknet/pkg/protocol"
)

func openSession(t *testing.T, e *env, initiator bool) *SessionInfo {
	resp, err := e.bus.Send(ConnectionService, OpenSession{Addr: remoteAddr, GUID: 77, MTU: 576, Initiator: initiator})
	require.NoError(t, err)
	return resp.(*SessionInfo)
}

func TestConnections_OpenSession(t *testing.T) {
	e := newEnv(t, nil)
	defer e.close()

	t.Run("mtu below the minimum", func(t *testing.T) {
		for _, mtu := range []uint16{0, 10, protocol.MinMTU - 1} {
			_, err := e.bus.Send(ConnectionService, OpenSession{Addr: remoteAddr, GUID: 77, MTU: mtu})
			assert.True(t, errors.Is(err, ErrInvalidMTU), "mtu %d: %v", mtu, err)
		}
		assert.Empty(t, e.conns.list())
		e.wire.empty(t)
	})

	info := openSession(t, e, true)
	assert.Equal(t, remoteAddr.String(), info.Addr)
	assert.Equal(t, uint64(77), info.GUID)
	assert.Equal(t, uint16(576), info.MTU)
	assert.False(t, info.Online)

	d, to := e.wire.nextDatagram(t)
	assert.Equal(t, remoteAddr, to)
	assert.Equal(t, protocol.Uint24(0), d.Sequence)
	require.Len(t, d.Packets, 1)
	p := d.Packets[0]
	assert.Equal(t, protocol.ReliableWith(0), p.Reliability)
	assert.Equal(t, protocol.OrderedOn(0, 0), p.Ordering)

	var req protocol.ConnectionRequest
	require.NoError(t, protocol.Unmarshal(p.Payload, &req))
	assert.Equal(t, e.settings.GUID, req.ClientGUID)

	n, err := e.bus.Send(ConnectionService, SessionCount{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Opening again replaces the session.
	again := openSession(t, e, false)
	assert.NotEqual(t, info.ID, again.ID)
	n, err = e.bus.Send(ConnectionService, SessionCount{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	e.wire.empty(t)
}

func TestConnections_Send(t *testing.T) {
	e := newEnv(t, nil)
	defer e.close()
	openSession(t, e, false)

	send := func(payload []byte, pr protocol.PacketReliability, ch uint8) error {
		_, err := e.bus.Send(ConnectionService, Send{Addr: remoteAddr, Payload: payload, Reliability: pr, Channel: ch})
		return err
	}
	nextPacket := func() (protocol.Uint24, *protocol.InternalPacket) {
		d, _ := e.wire.nextDatagram(t)
		require.Len(t, d.Packets, 1)
		return d.Sequence, d.Packets[0]
	}

	require.NoError(t, send([]byte("a"), protocol.ReliableOrdered, 3))
	seq, p := nextPacket()
	assert.Equal(t, protocol.Uint24(0), seq)
	assert.Equal(t, protocol.ReliableWith(0), p.Reliability)
	assert.Equal(t, protocol.OrderedOn(3, 0), p.Ordering)

	require.NoError(t, send([]byte("b"), protocol.ReliableOrdered, 3))
	seq, p = nextPacket()
	assert.Equal(t, protocol.Uint24(1), seq)
	assert.Equal(t, protocol.ReliableWith(1), p.Reliability)
	assert.Equal(t, protocol.OrderedOn(3, 1), p.Ordering)

	require.NoError(t, send([]byte("c"), protocol.UnreliableSequenced, 3))
	_, p = nextPacket()
	assert.Equal(t, protocol.Reliability{}, p.Reliability)
	assert.Equal(t, protocol.SequencedOn(3, 2, 0), p.Ordering)

	require.NoError(t, send([]byte("d"), protocol.ReliableSequenced, 3))
	_, p = nextPacket()
	assert.Equal(t, protocol.ReliableWith(2), p.Reliability)
	assert.Equal(t, protocol.SequencedOn(3, 2, 1), p.Ordering)

	require.NoError(t, send([]byte("e"), protocol.ReliableOrdered, 4))
	_, p = nextPacket()
	assert.Equal(t, protocol.OrderedOn(4, 0), p.Ordering)

	require.NoError(t, send([]byte("f"), protocol.UnreliableWithAckReceipt, 0))
	seq, p = nextPacket()
	assert.Equal(t, protocol.Uint24(5), seq)
	assert.True(t, p.WithAckReceipt)
	assert.Equal(t, protocol.OrderingNone, p.Ordering.Kind)

	t.Run("rejected packets leave counters untouched", func(t *testing.T) {
		err := send([]byte("x"), protocol.ReliableOrdered, protocol.MaxChannels)
		assert.True(t, errors.Is(err, protocol.ErrChannelOutOfRange))

		err = send(make([]byte, 576), protocol.ReliableOrdered, 3)
		assert.True(t, errors.Is(err, ErrPacketTooLarge))

		err = send([]byte("x"), protocol.PacketReliability(9), 0)
		assert.True(t, errors.Is(err, protocol.ErrReliabilityMismatch))
		e.wire.empty(t)

		require.NoError(t, send([]byte("g"), protocol.ReliableOrdered, 3))
		seq, p := nextPacket()
		assert.Equal(t, protocol.Uint24(6), seq)
		assert.Equal(t, protocol.ReliableWith(4), p.Reliability)
		assert.Equal(t, protocol.OrderedOn(3, 2), p.Ordering)
	})

	t.Run("largest payload fits the mtu", func(t *testing.T) {
		// mtu - udp header - datagram header - packet header of a reliable ordered packet
		size := 576 - protocol.UDPHeaderSize - protocol.DatagramHeaderSize - 10
		require.NoError(t, send(make([]byte, size), protocol.ReliableOrdered, 3))
		d, _ := e.wire.nextDatagram(t)
		assert.Len(t, d.Packets[0].Payload, size)

		err := send(make([]byte, size+1), protocol.ReliableOrdered, 3)
		assert.True(t, errors.Is(err, ErrPacketTooLarge))
	})

	t.Run("tiny mtu never sends an oversized datagram", func(t *testing.T) {
		for _, mtu := range []uint16{10, protocol.UDPHeaderSize - 1, protocol.MinMTU - 1} {
			s := newSession(remoteAddr, 77, mtu, false, time.Now())
			_, err := s.frame(make([]byte, 5000), protocol.Unreliable, 0)
			assert.True(t, errors.Is(err, ErrPacketTooLarge), "mtu %d: %v", mtu, err)
			assert.Equal(t, protocol.Uint24(0), s.nextSequence)
		}
	})

	t.Run("unknown session", func(t *testing.T) {
		_, err := e.bus.Send(ConnectionService, Send{Addr: localAddr, Payload: []byte("x")})
		assert.Equal(t, ErrSessionNotFound, err)
	})
}

func TestConnections_RecvDatagram(t *testing.T) {
	e := newEnv(t, nil)
	defer e.close()

	var (
		mu       sync.Mutex
		received [][]byte
	)
	e.conns.SetPacketHandler(func(addr net.Addr, p *protocol.InternalPacket) {
		mu.Lock()
		received = append(received, p.Payload)
		mu.Unlock()
	})

	t.Run("unknown address is dropped", func(t *testing.T) {
		_, err := e.bus.Send(ConnectionService, RecvDatagram{Addr: remoteAddr, Data: datagram(t, 0, &protocol.ConnectedPing{PingTime: 1})})
		require.NoError(t, err)
		e.wire.empty(t)
	})

	openSession(t, e, false)

	t.Run("connected ping is answered", func(t *testing.T) {
		_, err := e.bus.Send(ConnectionService, RecvDatagram{Addr: remoteAddr, Data: datagram(t, 0, &protocol.ConnectedPing{PingTime: 42})})
		require.NoError(t, err)

		d, _ := e.wire.nextDatagram(t)
		require.Len(t, d.Packets, 1)
		assert.Equal(t, protocol.Reliability{}, d.Packets[0].Reliability)
		var pong protocol.ConnectedPong
		require.NoError(t, protocol.Unmarshal(d.Packets[0].Payload, &pong))
		assert.Equal(t, uint64(42), pong.PingTime)
	})

	t.Run("connection request is accepted", func(t *testing.T) {
		req := &protocol.ConnectionRequest{ClientGUID: 77, PingTime: 5}
		_, err := e.bus.Send(ConnectionService, RecvDatagram{Addr: remoteAddr, Data: datagram(t, 1, req)})
		require.NoError(t, err)

		d, _ := e.wire.nextDatagram(t)
		require.Len(t, d.Packets, 1)
		assert.Equal(t, protocol.OrderedOn(0, 0), d.Packets[0].Ordering)
		var acc protocol.ConnectionRequestAccepted
		require.NoError(t, protocol.Unmarshal(d.Packets[0].Payload, &acc))
		assert.Equal(t, remoteAddr.String(), acc.ClientAddress.String())
		assert.Equal(t, uint64(5), acc.PingTime)
	})

	t.Run("new incoming connection marks the session online", func(t *testing.T) {
		nic := &protocol.NewIncomingConnection{ServerAddress: localAddr}
		_, err := e.bus.Send(ConnectionService, RecvDatagram{Addr: remoteAddr, Data: datagram(t, 2, nic)})
		require.NoError(t, err)
		e.wire.empty(t)

		sessions := e.conns.list()
		require.Len(t, sessions, 1)
		assert.True(t, sessions[0].Online)
	})

	t.Run("application packets reach the handler", func(t *testing.T) {
		d := &protocol.Datagram{Sequence: 3}
		for _, payload := range []string{"\xfehello", "\xfeworld"} {
			p, err := protocol.NewInternalPacket(protocol.Reliability{}, protocol.Ordering{}, false, nil, []byte(payload))
			require.NoError(t, err)
			d.Packets = append(d.Packets, p)
		}
		b, err := protocol.MarshalDatagram(d, 1500)
		require.NoError(t, err)

		_, err = e.bus.Send(ConnectionService, RecvDatagram{Addr: remoteAddr, Data: b})
		require.NoError(t, err)

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, [][]byte{[]byte("\xfehello"), []byte("\xfeworld")}, received)
	})

	t.Run("sequence statistics", func(t *testing.T) {
		for _, seq := range []protocol.Uint24{10, 9, 10, 11} {
			_, err := e.bus.Send(ConnectionService, RecvDatagram{Addr: remoteAddr, Data: datagram(t, seq)})
			require.NoError(t, err)
		}
		sessions := e.conns.list()
		require.Len(t, sessions, 1)
		assert.Equal(t, uint64(8), sessions[0].Received)
		assert.Equal(t, uint64(2), sessions[0].OutOfOrder)
	})

	t.Run("malformed datagram is an error", func(t *testing.T) {
		_, err := e.bus.Send(ConnectionService, RecvDatagram{Addr: remoteAddr, Data: []byte{0x84, 0x00, 0x00}})
		assert.True(t, errors.Is(err, protocol.ErrNotEnoughRemaining))
	})

	t.Run("acks are counted", func(t *testing.T) {
		_, err := e.bus.Send(ConnectionService, RecvAck{Addr: remoteAddr, Data: []byte{0xc0}})
		require.NoError(t, err)
		_, err = e.bus.Send(ConnectionService, RecvNack{Addr: remoteAddr, Data: []byte{0xa0}})
		require.NoError(t, err)

		sessions := e.conns.list()
		assert.Equal(t, uint64(1), sessions[0].Acks)
		assert.Equal(t, uint64(1), sessions[0].Nacks)
	})

	t.Run("disconnection notification closes the session", func(t *testing.T) {
		_, err := e.bus.Send(ConnectionService, RecvDatagram{Addr: remoteAddr, Data: datagram(t, 12, &protocol.DisconnectionNotification{})})
		require.NoError(t, err)

		ok, err := e.bus.Send(ConnectionService, HasSession{Addr: remoteAddr})
		require.NoError(t, err)
		assert.False(t, ok.(bool))
	})
}

func TestConnections_ConnectionRequestAccepted(t *testing.T) {
	e := newEnv(t, nil)
	defer e.close()

	openSession(t, e, true)
	e.wire.nextDatagram(t)

	acc := &protocol.ConnectionRequestAccepted{ClientAddress: localAddr, PingTime: 1, PongTime: 2}
	_, err := e.bus.Send(ConnectionService, RecvDatagram{Addr: remoteAddr, Data: datagram(t, 0, acc)})
	require.NoError(t, err)

	d, _ := e.wire.nextDatagram(t)
	require.Len(t, d.Packets, 1)
	var nic protocol.NewIncomingConnection
	require.NoError(t, protocol.Unmarshal(d.Packets[0].Payload, &nic))
	assert.Equal(t, remoteAddr.String(), nic.ServerAddress.String())
	assert.Equal(t, uint64(2), nic.PingTime)

	sessions := e.conns.list()
	require.Len(t, sessions, 1)
	assert.True(t, sessions[0].Online)
}

func TestConnections_CloseSession(t *testing.T) {
	cases := []struct {
		name string
		msg  func() interface{}
		sent bool
	}{
		{"notify", func() interface{} { return CloseSession{Addr: remoteAddr, Notify: true} }, true},
		{"silent", func() interface{} { return CloseSession{Addr: remoteAddr} }, false},
		{"disconnection notification", func() interface{} {
			return RecvDisconnectionNotification{Addr: remoteAddr, Data: []byte{0x15}}
		}, false},
		{"connection lost", func() interface{} { return RecvConnectionLost{Addr: remoteAddr, Data: []byte{0x16}} }, false},
		{"connection banned", func() interface{} { return RecvConnectionBanned{Addr: remoteAddr, Data: []byte{0x17}} }, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newEnv(t, nil)
			defer e.close()
			openSession(t, e, false)

			_, err := e.bus.Send(ConnectionService, tc.msg())
			require.NoError(t, err)

			if tc.sent {
				d, _ := e.wire.nextDatagram(t)
				require.Len(t, d.Packets, 1)
				assert.Equal(t, []byte{byte(protocol.IDDisconnectionNotification)}, d.Packets[0].Payload)
			}
			e.wire.empty(t)

			n, err := e.bus.Send(ConnectionService, SessionCount{})
			require.NoError(t, err)
			assert.Equal(t, 0, n)

			// Closing an unknown session is a no-op.
			_, err = e.bus.Send(ConnectionService, tc.msg())
			require.NoError(t, err)
		})
	}
}

func TestConnections_Tick(t *testing.T) {
	e := newEnv(t, func(conf *Config) {
		conf.Session.Timeout = Duration(time.Minute)
	})
	defer e.close()
	openSession(t, e, false)

	e.conns.tick(time.Now())
	d, _ := e.wire.nextDatagram(t)
	require.Len(t, d.Packets, 1)
	var ping protocol.ConnectedPing
	require.NoError(t, protocol.Unmarshal(d.Packets[0].Payload, &ping))

	e.conns.tick(time.Now().Add(2 * time.Minute))
	e.wire.empty(t)
	assert.Empty(t, e.conns.list())
}

func TestConnections_KeepAlive(t *testing.T) {
	e := newEnv(t, func(conf *Config) {
		conf.Session.PingInterval = Duration(10 * time.Millisecond)
	})
	defer e.close()
	openSession(t, e, false)

	d, _ := e.wire.nextDatagram(t)
	require.Len(t, d.Packets, 1)
	assert.Equal(t, byte(protocol.IDConnectedPing), d.Packets[0].Payload[0])
}
