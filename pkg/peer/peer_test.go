package peer

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/nettest"

	"github.com/skycoin/raknet/internal/netutil"
	"github.com/skycoin/raknet/internal/testhelpers"
	"github.com/skycoin/raknet/pkg/protocol"
)

func newTestPeer(t *testing.T, mutate func(conf *Config)) *Peer {
	conf := DefaultConfig()
	conf.LogLevel = "error"
	conf.Socket.ReadTimeout = Duration(50 * time.Millisecond)
	conf.Handshake.Timeout = Duration(300 * time.Millisecond)
	conf.Handshake.Backoff = Duration(50 * time.Millisecond)
	conf.Handshake.Threshold = Duration(time.Second)
	conf.ShutdownTimeout = Duration(2 * time.Second)
	if mutate != nil {
		mutate(conf)
	}

	conn, err := nettest.NewLocalPacketListener("udp")
	require.NoError(t, err)

	p, err := NewWithConn(conf, conn)
	require.NoError(t, err)
	return p
}

func TestPeer_Ping(t *testing.T) {
	server := newTestPeer(t, func(conf *Config) {
		conf.Server.Information = "hello"
	})
	defer server.Close() // nolint: errcheck
	client := newTestPeer(t, nil)
	defer client.Close() // nolint: errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pong, err := client.Ping(ctx, server.LocalAddr())
	require.NoError(t, err)
	assert.Equal(t, server.Settings().GUID, pong.ServerGUID)
	assert.Equal(t, "hello", pong.Information)

	t.Run("unanswered ping ends with the context", func(t *testing.T) {
		silent, err := nettest.NewLocalPacketListener("udp")
		require.NoError(t, err)
		defer silent.Close() // nolint: errcheck

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		_, err = client.Ping(ctx, silent.LocalAddr())
		assert.Equal(t, context.DeadlineExceeded, err)

		// The cancelled request no longer blocks new pings.
		ctx2, cancel2 := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel2()
		_, err = client.Ping(ctx2, silent.LocalAddr())
		assert.Equal(t, context.DeadlineExceeded, err)
	})
}

func TestPeer_Connect(t *testing.T) {
	server := newTestPeer(t, nil)
	defer server.Close() // nolint: errcheck
	client := newTestPeer(t, nil)
	defer client.Close() // nolint: errcheck

	received := make(chan []byte, 4)
	server.SetPacketHandler(func(addr net.Addr, p *protocol.InternalPacket) {
		received <- p.Payload
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	info, err := client.Connect(ctx, server.LocalAddr())
	require.NoError(t, err)
	assert.Equal(t, server.Settings().GUID, info.GUID)
	assert.Equal(t, uint16(DefaultMaxMTU), info.MTU)
	assert.True(t, info.Initiator)

	online := func(p *Peer) func() bool {
		return func() bool {
			sessions, err := p.Sessions()
			return err == nil && len(sessions) == 1 && sessions[0].Online
		}
	}
	require.Eventually(t, online(client), 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, online(server), 2*time.Second, 10*time.Millisecond)

	serverSessions, err := server.Sessions()
	require.NoError(t, err)
	assert.Equal(t, client.Settings().GUID, serverSessions[0].GUID)
	assert.Equal(t, client.LocalAddr().String(), serverSessions[0].Addr)

	require.NoError(t, client.Send(server.LocalAddr(), []byte("\xfehello"), protocol.ReliableOrdered, 2))
	select {
	case payload := <-received:
		assert.Equal(t, []byte("\xfehello"), payload)
	case <-time.After(2 * time.Second):
		t.Fatal("packet was not delivered")
	}

	_, err = client.Connect(ctx, server.LocalAddr())
	assert.True(t, errors.Is(err, ErrAlreadyConnected), "got %v", err)

	require.NoError(t, client.Disconnect(server.LocalAddr()))
	assert.Equal(t, ErrSessionNotFound, client.Disconnect(server.LocalAddr()))
	require.Eventually(t, func() bool {
		sessions, err := server.Sessions()
		return err == nil && len(sessions) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPeer_ConnectFailures(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	t.Run("banned", func(t *testing.T) {
		server := newTestPeer(t, nil)
		defer server.Close() // nolint: errcheck
		client := newTestPeer(t, nil)
		defer client.Close() // nolint: errcheck

		require.NoError(t, server.BanList().Ban(net.IPv4(127, 0, 0, 1), time.Time{}))
		_, err := client.Connect(ctx, server.LocalAddr())
		assert.True(t, errors.Is(err, ErrConnectionBanned), "got %v", err)
	})

	t.Run("incompatible protocol", func(t *testing.T) {
		server := newTestPeer(t, nil)
		defer server.Close() // nolint: errcheck
		client := newTestPeer(t, func(conf *Config) {
			conf.Protocol = 5
		})
		defer client.Close() // nolint: errcheck

		_, err := client.Connect(ctx, server.LocalAddr())
		var ipErr *IncompatibleProtocolError
		require.True(t, errors.As(err, &ipErr), "got %v", err)
		assert.Equal(t, protocol.DefaultProtocolVersion, ipErr.Server)
		assert.Equal(t, byte(5), ipErr.Local)
	})

	t.Run("server full", func(t *testing.T) {
		server := newTestPeer(t, func(conf *Config) {
			conf.Server.MaxConnections = 0
		})
		defer server.Close() // nolint: errcheck
		client := newTestPeer(t, nil)
		defer client.Close() // nolint: errcheck

		_, err := client.Connect(ctx, server.LocalAddr())
		assert.True(t, errors.Is(err, ErrNoFreeIncomingConnections), "got %v", err)
	})

	t.Run("incoming connections disabled", func(t *testing.T) {
		server := newTestPeer(t, func(conf *Config) {
			conf.Server.AllowIncoming = false
		})
		defer server.Close() // nolint: errcheck
		client := newTestPeer(t, func(conf *Config) {
			conf.Handshake.Timeout = Duration(100 * time.Millisecond)
			conf.Handshake.Threshold = Duration(300 * time.Millisecond)
		})
		defer client.Close() // nolint: errcheck

		_, err := client.Connect(ctx, server.LocalAddr())
		assert.True(t, errors.Is(err, netutil.ErrThresholdReached), "got %v", err)
	})
}

func TestPeer_Close(t *testing.T) {
	server := newTestPeer(t, nil)
	defer server.Close() // nolint: errcheck
	client := newTestPeer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := client.Connect(ctx, server.LocalAddr())
	require.NoError(t, err)

	first := testhelpers.Async(client.Close)
	second := testhelpers.Async(client.Close)
	testhelpers.NoErrorN(t, testhelpers.WithinTimeout(first), testhelpers.WithinTimeout(second))

	// Closing notifies the remote side.
	require.Eventually(t, func() bool {
		sessions, err := server.Sessions()
		return err == nil && len(sessions) == 0
	}, 2*time.Second, 10*time.Millisecond)

	_, err = client.Ping(ctx, server.LocalAddr())
	assert.Equal(t, ErrClosed, err)
	_, err = client.Connect(ctx, server.LocalAddr())
	assert.Equal(t, ErrClosed, err)
	assert.Empty(t, client.Bus().Services())
}

func TestNew(t *testing.T) {
	conf := DefaultConfig()
	conf.Socket.LocalAddr = "127.0.0.1:0"
	conf.LogLevel = "error"

	p, err := New(conf)
	require.NoError(t, err)
	assert.Equal(t, []string{ConnectionService, OpenConnectionService, PingService, SocketService}, p.Bus().Services())
	require.NoError(t, p.Close())

	conf.MaxMTU = 10
	_, err = New(conf)
	assert.Error(t, err)
}
