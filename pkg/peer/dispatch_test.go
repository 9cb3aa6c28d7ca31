package peer

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skycoin/raknet/internal/metrics"
	"github.com/skycoin/raknet/pkg/service"
)

func TestRoutes(t *testing.T) {
	both := []string{OpenConnectionService, ConnectionService}

	cases := []struct {
		id            byte
		allowIncoming bool
		want          []string
	}{
		{0x01, false, []string{PingService}},
		{0x1c, false, []string{PingService}},
		{0x02, false, nil},
		{0x02, true, []string{PingService}},
		{0x05, false, []string{OpenConnectionService}},
		{0x06, false, []string{OpenConnectionService}},
		{0x07, false, []string{OpenConnectionService}},
		{0x08, false, []string{OpenConnectionService}},
		{0x19, false, []string{OpenConnectionService}},
		{0x12, false, []string{OpenConnectionService}},
		{0x14, false, []string{OpenConnectionService}},
		{0x1a, false, []string{OpenConnectionService}},
		{0x15, false, both},
		{0x17, true, both},
		{0x16, false, []string{ConnectionService}},
		{0xc0, false, []string{ConnectionService}},
		{0xa0, false, []string{ConnectionService}},
		{0x80, false, []string{ConnectionService}},
		{0x84, false, []string{ConnectionService}},
		{0x8f, false, []string{ConnectionService}},
		{0x00, true, nil},
		{0x09, true, nil},
		{0x90, true, nil},
		{0xff, true, nil},
	}

	for _, tc := range cases {
		t.Run(fmt.Sprintf("%#02x allow=%v", tc.id, tc.allowIncoming), func(t *testing.T) {
			assert.Equal(t, tc.want, Routes(tc.id, tc.allowIncoming))
		})
	}
}

type sink struct {
	name string
	msgs chan service.Message
}

func (s *sink) Handle(msg service.Message) (service.Response, error) {
	s.msgs <- msg
	return nil, nil
}

func (s *sink) Tasks() []service.TaskFunc { return nil }
func (s *sink) Shutdown()                 {}

func (s *sink) next(t *testing.T) service.Message {
	select {
	case m := <-s.msgs:
		return m
	case <-time.After(time.Second):
		t.Fatalf("%s received nothing", s.name)
		return nil
	}
}

func TestDispatcher_Dispatch(t *testing.T) {
	bus := service.NewBus(nil)
	defer bus.Close()

	sinks := make(map[string]*sink)
	for _, name := range []string{PingService, OpenConnectionService, ConnectionService} {
		sinks[name] = &sink{name: name, msgs: make(chan service.Message, 8)}
		require.NoError(t, bus.Register(name, service.New(sinks[name], time.Second, nil)))
	}

	conf := DefaultConfig()
	conf.Server.AllowIncoming = false
	settings := NewSettings(conf)
	d := NewDispatcher(bus, settings, metrics.NewDummy(), nil)

	cases := []struct {
		payload   []byte
		delivered int
		check     func(t *testing.T)
	}{
		{[]byte{0x01, 0xaa}, 1, func(t *testing.T) {
			m := sinks[PingService].next(t)
			require.IsType(t, RecvPing{}, m)
			assert.Equal(t, []byte{0x01, 0xaa}, m.(RecvPing).Data)
			assert.Equal(t, remoteAddr, m.(RecvPing).Addr)
		}},
		{[]byte{0x1c}, 1, func(t *testing.T) {
			assert.IsType(t, RecvPong{}, sinks[PingService].next(t))
		}},
		{[]byte{0x08}, 1, func(t *testing.T) {
			assert.IsType(t, RecvReply2{}, sinks[OpenConnectionService].next(t))
		}},
		{[]byte{0x17}, 2, func(t *testing.T) {
			assert.IsType(t, RecvRejection{}, sinks[OpenConnectionService].next(t))
			assert.IsType(t, RecvConnectionBanned{}, sinks[ConnectionService].next(t))
		}},
		{[]byte{0x15}, 2, func(t *testing.T) {
			assert.IsType(t, RecvRejection{}, sinks[OpenConnectionService].next(t))
			assert.IsType(t, RecvDisconnectionNotification{}, sinks[ConnectionService].next(t))
		}},
		{[]byte{0x19}, 1, func(t *testing.T) {
			assert.IsType(t, RecvIncompatibleProtocol{}, sinks[OpenConnectionService].next(t))
		}},
		{[]byte{0x8c, 0, 0, 0}, 1, func(t *testing.T) {
			assert.IsType(t, RecvDatagram{}, sinks[ConnectionService].next(t))
		}},
		{[]byte{0xc0}, 1, func(t *testing.T) {
			assert.IsType(t, RecvAck{}, sinks[ConnectionService].next(t))
		}},
		{[]byte{0xa0}, 1, func(t *testing.T) {
			assert.IsType(t, RecvNack{}, sinks[ConnectionService].next(t))
		}},
		{[]byte{0x16}, 1, func(t *testing.T) {
			assert.IsType(t, RecvConnectionLost{}, sinks[ConnectionService].next(t))
		}},
		{[]byte{0x02}, 0, nil},
		{[]byte{0xff, 1, 2}, 0, nil},
		{[]byte{}, 0, nil},
	}

	for _, tc := range cases {
		t.Run(fmt.Sprintf("%x", tc.payload), func(t *testing.T) {
			assert.Equal(t, tc.delivered, d.Dispatch(remoteAddr, tc.payload))
			if tc.check != nil {
				tc.check(t)
			}
		})
	}

	t.Run("allow incoming routes open connection pings", func(t *testing.T) {
		settings.SetAllowIncoming(true)
		defer settings.SetAllowIncoming(false)
		assert.Equal(t, 1, d.Dispatch(remoteAddr, []byte{0x02}))
		assert.IsType(t, RecvPing{}, sinks[PingService].next(t))
	})

	t.Run("missing service is not fatal", func(t *testing.T) {
		bus.Shutdown(ConnectionService)
		assert.Equal(t, 1, d.Dispatch(remoteAddr, []byte{0x17}))
		assert.IsType(t, RecvRejection{}, sinks[OpenConnectionService].next(t))
		assert.Equal(t, 0, d.Dispatch(remoteAddr, []byte{0x84}))
	})

	for name, s := range sinks {
		assert.Empty(t, s.msgs, name)
	}
}
