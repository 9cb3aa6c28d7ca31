package protocol

import (
	"bytes"
	"errors"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skycoin/raknet/internal/ioutil"
)

func TestOpenConnectionRequest1_MTU(t *testing.T) {
	t.Run("padding carries the mtu", func(t *testing.T) {
		b, err := Marshal(&OpenConnectionRequest1{Protocol: DefaultProtocolVersion, MTU: 1492})
		require.NoError(t, err)
		assert.Len(t, b, 1+16+1+1492-UDPHeaderSize)
		assert.Equal(t, OfflineMagic[:], b[1:17])
		assert.Equal(t, DefaultProtocolVersion, b[17])

		var m OpenConnectionRequest1
		require.NoError(t, Unmarshal(b, &m))
		assert.Equal(t, uint16(1492), m.MTU)
		assert.Equal(t, DefaultProtocolVersion, m.Protocol)
	})

	t.Run("no padding", func(t *testing.T) {
		b, err := Marshal(&OpenConnectionRequest1{Protocol: 6, MTU: UDPHeaderSize})
		require.NoError(t, err)
		assert.Len(t, b, 18)

		var m OpenConnectionRequest1
		require.NoError(t, Unmarshal(b, &m))
		assert.Equal(t, uint16(UDPHeaderSize), m.MTU)
	})

	t.Run("inferred mtu is clamped", func(t *testing.T) {
		b := append([]byte{byte(IDOpenConnectionRequest1)}, OfflineMagic[:]...)
		b = append(b, DefaultProtocolVersion)
		b = append(b, make([]byte, 70000)...)

		var m OpenConnectionRequest1
		require.NoError(t, Unmarshal(b, &m))
		assert.Equal(t, uint16(65535), m.MTU)

		assert.Equal(t, uint16(65535), inferMTU(65535-UDPHeaderSize))
		assert.Equal(t, uint16(65535), inferMTU(65535-UDPHeaderSize+1))
		assert.Equal(t, uint16(65534), inferMTU(65535-UDPHeaderSize-1))
	})

	t.Run("mtu below header size", func(t *testing.T) {
		_, err := Marshal(&OpenConnectionRequest1{Protocol: 6, MTU: UDPHeaderSize - 1})
		assert.True(t, errors.Is(err, ErrInvalidInput))
	})
}

func TestOfflineMessages_Magic(t *testing.T) {
	msgs := []Message{
		&UnconnectedPing{PingTime: 1, ClientGUID: 2},
		&UnconnectedPong{PingTime: 1, ServerGUID: 2, Information: "info"},
		&OpenConnectionRequest1{Protocol: 6, MTU: 100},
		&OpenConnectionReply1{ServerGUID: 3, MTU: 1400},
		&OpenConnectionRequest2{ServerAddress: &net.UDPAddr{IP: net.IP{127, 0, 0, 1}, Port: 19132}, MTU: 1400, ClientGUID: 4},
		&OpenConnectionReply2{ServerGUID: 5, ClientAddress: &net.UDPAddr{IP: net.IP{10, 0, 0, 2}, Port: 5000}, MTU: 1400},
		&Rejection{Reason: IDConnectionBanned, ServerGUID: 6},
		&IncompatibleProtocolVersion{Protocol: 7, ServerGUID: 8},
	}

	for _, m := range msgs {
		t.Run(m.ID().String(), func(t *testing.T) {
			b, err := Marshal(m)
			require.NoError(t, err)
			assert.Equal(t, byte(m.ID()), b[0])

			i := bytes.Index(b, OfflineMagic[:])
			require.True(t, i > 0)
			corrupted := append([]byte(nil), b...)
			corrupted[i] = 0x01

			fresh := newMessage(t, m.ID())
			err = Unmarshal(corrupted, fresh)
			assert.True(t, errors.Is(err, ErrInvalidMagic))
			assert.True(t, errors.Is(err, ErrInvalidData))

			fresh = newMessage(t, m.ID())
			require.NoError(t, Unmarshal(b, fresh))
			assert.Equal(t, m, fresh)
		})
	}
}

func newMessage(t *testing.T, id MessageID) Message {
	switch id {
	case IDUnconnectedPing:
		return new(UnconnectedPing)
	case IDUnconnectedPong:
		return new(UnconnectedPong)
	case IDOpenConnectionRequest1:
		return new(OpenConnectionRequest1)
	case IDOpenConnectionReply1:
		return new(OpenConnectionReply1)
	case IDOpenConnectionRequest2:
		return new(OpenConnectionRequest2)
	case IDOpenConnectionReply2:
		return new(OpenConnectionReply2)
	case IDConnectionBanned:
		return new(Rejection)
	case IDIncompatibleProtocolVersion:
		return new(IncompatibleProtocolVersion)
	}
	t.Fatalf("no message for %s", id)
	return nil
}

func TestUnconnectedPong_Wire(t *testing.T) {
	b, err := Marshal(&UnconnectedPong{PingTime: 0x0102, ServerGUID: 0x0a0b, Information: "MCPE"})
	require.NoError(t, err)

	want := []byte{0x1c, 0, 0, 0, 0, 0, 0, 0x01, 0x02, 0, 0, 0, 0, 0, 0, 0x0a, 0x0b}
	want = append(want, OfflineMagic[:]...)
	want = append(want, 0x00, 0x04, 'M', 'C', 'P', 'E')
	assert.Equal(t, want, b)
}

func TestUnconnectedPing_OpenConnections(t *testing.T) {
	b, err := Marshal(&UnconnectedPing{OpenConnections: true, PingTime: 9})
	require.NoError(t, err)
	assert.Equal(t, byte(IDUnconnectedPingOpenConnections), b[0])

	var m UnconnectedPing
	require.NoError(t, Unmarshal(b, &m))
	assert.True(t, m.OpenConnections)
	assert.Equal(t, uint64(9), m.PingTime)

	b[0] = byte(IDUnconnectedPong)
	assert.True(t, errors.Is(Unmarshal(b, &m), ErrInvalidData))
}

func TestUnmarshal_TrailingBytes(t *testing.T) {
	b, err := Marshal(&ConnectedPing{PingTime: 1})
	require.NoError(t, err)

	var m ConnectedPing
	assert.True(t, errors.Is(Unmarshal(append(b, 0), &m), ErrInvalidData))
	assert.True(t, errors.Is(Unmarshal(b[:len(b)-1], &m), ErrNotEnoughRemaining))
}

func TestRejection(t *testing.T) {
	for _, id := range []MessageID{IDConnectionBanned, IDAlreadyConnected, IDNoFreeIncomingConnections, IDIPRecentlyConnected} {
		b, err := Marshal(&Rejection{Reason: id, ServerGUID: 42})
		require.NoError(t, err)

		var m Rejection
		require.NoError(t, Unmarshal(b, &m))
		assert.Equal(t, id, m.Reason)
		assert.Equal(t, uint64(42), m.ServerGUID)
	}

	_, err := Marshal(&Rejection{Reason: IDConnectedPing})
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestOnlineMessages(t *testing.T) {
	client := &net.UDPAddr{IP: net.IP{192, 168, 1, 2}, Port: 1234}
	server := &net.UDPAddr{IP: net.IP{192, 168, 1, 1}, Port: 19132}

	var internal [InternalAddressCount]*net.UDPAddr
	for i := range internal {
		internal[i] = &net.UDPAddr{IP: net.IP{10, 0, 0, byte(i)}, Port: i}
	}

	msgs := []struct {
		in  Message
		out Message
	}{
		{&ConnectedPing{PingTime: 10}, new(ConnectedPing)},
		{&ConnectedPong{PingTime: 10, PongTime: 11}, new(ConnectedPong)},
		{&ConnectionRequest{ClientGUID: 1, PingTime: 2, Security: false}, new(ConnectionRequest)},
		{&ConnectionRequestAccepted{ClientAddress: client, ClientIndex: 3, InternalAddresses: internal, PingTime: 4, PongTime: 5}, new(ConnectionRequestAccepted)},
		{&NewIncomingConnection{ServerAddress: server, InternalAddresses: internal, PingTime: 6, PongTime: 7}, new(NewIncomingConnection)},
		{&DisconnectionNotification{}, new(DisconnectionNotification)},
	}

	for _, tc := range msgs {
		t.Run(tc.in.ID().String(), func(t *testing.T) {
			b, err := Marshal(tc.in)
			require.NoError(t, err)
			require.NoError(t, Unmarshal(b, tc.out))
			assert.Equal(t, tc.in, tc.out)
		})
	}
}

func TestRakString(t *testing.T) {
	w := ioutil.NewWriter(ioutil.Unbounded)
	require.NoError(t, WriteString(w, "héllo"))
	assert.Equal(t, []byte{0x00, 0x06, 'h', 0xc3, 0xa9, 'l', 'l', 'o'}, w.Bytes())

	s, err := ReadString(ioutil.NewReader(w.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, "héllo", s)

	err = WriteString(ioutil.NewWriter(ioutil.Unbounded), strings.Repeat("x", 65536))
	assert.True(t, errors.Is(err, ErrInvalidInput))

	_, err = ReadString(ioutil.NewReader([]byte{0x00, 0x02, 0xff, 0xfe}))
	assert.True(t, errors.Is(err, ErrInvalidData))

	_, err = ReadString(ioutil.NewReader([]byte{0x00, 0x05, 'a'}))
	assert.True(t, errors.Is(err, ErrNotEnoughRemaining))
}

func TestSystemAddress(t *testing.T) {
	t.Run("ipv4 is inverted", func(t *testing.T) {
		addr := &net.UDPAddr{IP: net.IP{127, 0, 0, 1}, Port: 19132}
		w := ioutil.NewWriter(ioutil.Unbounded)
		require.NoError(t, WriteAddress(w, addr))
		assert.Equal(t, []byte{4, 0x80, 0xff, 0xff, 0xfe, 0x4a, 0xbc}, w.Bytes())

		got, err := ReadAddress(ioutil.NewReader(w.Bytes()))
		require.NoError(t, err)
		assert.Equal(t, addr, got)
	})

	t.Run("ipv4 in ipv6 form is written as ipv4", func(t *testing.T) {
		w := ioutil.NewWriter(ioutil.Unbounded)
		require.NoError(t, WriteAddress(w, &net.UDPAddr{IP: net.IPv4(1, 2, 3, 4), Port: 1}))
		assert.Equal(t, byte(4), w.Bytes()[0])
		assert.Equal(t, 7, w.Len())
	})

	t.Run("ipv6", func(t *testing.T) {
		addr := &net.UDPAddr{IP: net.ParseIP("2001:db8::1"), Port: 443}
		w := ioutil.NewWriter(ioutil.Unbounded)
		require.NoError(t, WriteAddress(w, addr))
		assert.Equal(t, 1+2+2+4+16+4, w.Len())
		assert.Equal(t, []byte{6, 10, 0, 0x01, 0xbb}, w.Bytes()[:5])

		got, err := ReadAddress(ioutil.NewReader(w.Bytes()))
		require.NoError(t, err)
		assert.Equal(t, addr, got)
	})

	t.Run("nil address", func(t *testing.T) {
		w := ioutil.NewWriter(ioutil.Unbounded)
		require.NoError(t, WriteAddress(w, nil))
		got, err := ReadAddress(ioutil.NewReader(w.Bytes()))
		require.NoError(t, err)
		assert.True(t, got.IP.Equal(net.IPv4zero))
		assert.Equal(t, 0, got.Port)
	})

	t.Run("unknown family", func(t *testing.T) {
		_, err := ReadAddress(ioutil.NewReader([]byte{5, 0, 0, 0, 0, 0, 0}))
		assert.True(t, errors.Is(err, ErrInvalidData))
	})
}

func TestMessageID_String(t *testing.T) {
	assert.Equal(t, "UNCONNECTED_PONG", IDUnconnectedPong.String())
	assert.Equal(t, "DATAGRAM:0x8c", MessageID(0x8c).String())
	assert.Equal(t, "UNKNOWN:0xff", MessageID(0xff).String())
	assert.True(t, IDDatagram.IsDatagram())
	assert.False(t, IDAck.IsDatagram())
}
