// Package peer implements a RakNet peer: the UDP socket, the packet dispatcher
// and the ping, handshake and connection services running on a service bus.
package peer

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/skycoin/skycoin/src/util/logging"

	"github.com/skycoin/raknet/internal/ioutil"
	"github.com/skycoin/raknet/internal/metrics"
	"github.com/skycoin/raknet/internal/netutil"
	"github.com/skycoin/raknet/pkg/banlist"
	"github.com/skycoin/raknet/pkg/protocol"
	"github.com/skycoin/raknet/pkg/service"
)

// Version is the raknet peer version.
const Version = "0.1.0"

// Errors that end Connect without a retry.
var terminalErrors = []error{
	ErrAlreadyRequested,
	ErrIncompatibleProtocol,
	ErrConnectionBanned,
	ErrNoFreeIncomingConnections,
	ErrAlreadyConnected,
	ErrIPRecentlyConnected,
	ErrDisconnected,
	ErrInvalidHandshake,
	ErrInvalidMTU,
	ErrClosed,
	service.ErrServiceNotFound,
	context.Canceled,
	context.DeadlineExceeded,
}

// Peer is a RakNet endpoint. It can ping and connect to other peers and,
// when allowed, accept incoming connections.
type Peer struct {
	Logger *logging.MasterLogger

	conf     *Config
	settings *Settings
	bus      *service.Bus
	conn     net.PacketConn
	bans     banlist.List
	metrics  metrics.Recorder
	log      *logging.Logger

	conns      *Connections
	handshaker *Handshaker

	closed    ioutil.AtomicBool
	closeOnce sync.Once
}

// New binds a UDP socket on conf.Socket.LocalAddr and starts a Peer on it.
func New(conf *Config) (*Peer, error) {
	conn, err := net.ListenPacket("udp", conf.Socket.LocalAddr)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to bind socket")
	}

	p, err := NewWithConn(conf, conn)
	if err != nil {
		conn.Close() // nolint: errcheck
		return nil, err
	}
	return p, nil
}

// NewWithConn starts a Peer on conn. The Peer owns conn and closes it on Close.
func NewWithConn(conf *Config, conn net.PacketConn) (*Peer, error) {
	if err := conf.Validate(); err != nil {
		return nil, pkgerrors.Wrap(err, "invalid config")
	}

	p := &Peer{
		Logger:   logging.NewMasterLogger(),
		conf:     conf,
		settings: NewSettings(conf),
		conn:     conn,
		metrics:  metrics.NewPrometheus("raknet"),
	}
	p.log = p.Logger.PackageLogger("raknet")
	if lvl, err := logging.LevelFromString(conf.LogLevel); err == nil {
		p.Logger.SetLevel(lvl)
	}

	bans, err := conf.OpenBanList()
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to open ban list")
	}
	p.bans = bans

	p.bus = service.NewBus(p.Logger.PackageLogger("bus"))
	p.conns = NewConnections(p.bus, p.settings, p.metrics, p.Logger.PackageLogger(ConnectionService))
	p.handshaker = NewHandshaker(p.bus, p.settings, bans, p.Logger.PackageLogger(OpenConnectionService))
	pinger := NewPinger(p.bus, p.settings, p.Logger.PackageLogger(PingService))
	dispatcher := NewDispatcher(p.bus, p.settings, p.metrics, p.Logger.PackageLogger("dispatch"))
	socket := NewSocket(conn, dispatcher, conf.Socket.ReadTimeout.Duration(), conf.Socket.RecvBufferSize,
		p.metrics, p.Logger.PackageLogger(SocketService))

	stopTimeout := conf.ShutdownTimeout.Duration()
	handlers := []struct {
		name    string
		handler service.Handler
	}{
		{ConnectionService, p.conns},
		{OpenConnectionService, p.handshaker},
		{PingService, pinger},
		{SocketService, socket},
	}
	for _, h := range handlers {
		if err := p.bus.Register(h.name, service.New(h.handler, stopTimeout, p.Logger.PackageLogger(h.name))); err != nil {
			p.bus.Close()
			bans.Close() // nolint: errcheck
			return nil, err
		}
	}

	p.log.Infof("Peer %d listening on %s", p.settings.GUID, conn.LocalAddr())
	return p, nil
}

// Settings returns the runtime settings of the peer.
func (p *Peer) Settings() *Settings {
	return p.settings
}

// Bus returns the service bus the peer runs on.
func (p *Peer) Bus() *service.Bus {
	return p.bus
}

// BanList returns the list consulted by incoming handshakes.
func (p *Peer) BanList() banlist.List {
	return p.bans
}

// Metrics returns the metrics recorder of the peer.
func (p *Peer) Metrics() metrics.Recorder {
	return p.metrics
}

// LocalAddr returns the bound address of the socket.
func (p *Peer) LocalAddr() net.Addr {
	return p.conn.LocalAddr()
}

// SetPacketHandler sets the receiver of application packets.
func (p *Peer) SetPacketHandler(h PacketHandler) {
	p.conns.SetPacketHandler(h)
}

// Ping sends an unconnected ping to addr and waits for the pong.
func (p *Peer) Ping(ctx context.Context, addr net.Addr) (*protocol.UnconnectedPong, error) {
	if p.closed.Get() {
		return nil, ErrClosed
	}
	resp, err := p.bus.Send(PingService, Ping{Addr: addr})
	if err != nil {
		return nil, err
	}

	select {
	case pong, ok := <-resp.(<-chan *protocol.UnconnectedPong):
		if !ok {
			return nil, ErrClosed
		}
		return pong, nil
	case <-ctx.Done():
		p.bus.Send(PingService, CancelPing{Addr: addr}) // nolint: errcheck
		return nil, ctx.Err()
	}
}

// Connect runs the handshake with addr. Unanswered attempts are retried with backoff
// until the handshake threshold passes. Rejections end it at once.
func (p *Peer) Connect(ctx context.Context, addr net.Addr) (*SessionInfo, error) {
	if p.closed.Get() {
		return nil, ErrClosed
	}

	r := netutil.NewRetrier(p.conf.Handshake.Backoff.Duration(), p.conf.Handshake.Threshold.Duration(), 2).
		WithErrWhitelist(terminalErrors...).
		WithLogger(p.log)

	var info *SessionInfo
	err := r.Do(ctx, func() error {
		var err error
		info, err = p.connectOnce(ctx, addr)
		return err
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

func (p *Peer) connectOnce(ctx context.Context, addr net.Addr) (*SessionInfo, error) {
	resp, err := p.bus.Send(OpenConnectionService, Connect{Addr: addr})
	if err != nil {
		return nil, err
	}

	timeout := p.conf.Handshake.Timeout.Duration()
	if timeout <= 0 {
		timeout = time.Minute
	}
	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case res := <-resp.(<-chan ConnectResult):
		return res.Session, res.Err
	case <-t.C:
		p.bus.Send(OpenConnectionService, CancelConnect{Addr: addr}) // nolint: errcheck
		return nil, ErrTimeout
	case <-ctx.Done():
		p.bus.Send(OpenConnectionService, CancelConnect{Addr: addr}) // nolint: errcheck
		return nil, ctx.Err()
	}
}

// Send frames payload with the given reliability on channel and sends it over the session with addr.
func (p *Peer) Send(addr net.Addr, payload []byte, reliability protocol.PacketReliability, channel uint8) error {
	_, err := p.bus.Send(ConnectionService, Send{
		Addr:        addr,
		Payload:     payload,
		Reliability: reliability,
		Channel:     channel,
	})
	return err
}

// Disconnect notifies the remote side and closes the session with addr.
func (p *Peer) Disconnect(addr net.Addr) error {
	ok, err := p.bus.Send(ConnectionService, HasSession{Addr: addr})
	if err != nil {
		return err
	}
	if !ok.(bool) {
		return ErrSessionNotFound
	}
	_, err = p.bus.Send(ConnectionService, CloseSession{Addr: addr, Notify: true})
	return err
}

// Sessions returns every established session.
func (p *Peer) Sessions() ([]SessionInfo, error) {
	resp, err := p.bus.Send(ConnectionService, ListSessions{})
	if err != nil {
		return nil, err
	}
	return resp.([]SessionInfo), nil
}

// Session returns the session with addr.
func (p *Peer) Session(addr string) (SessionInfo, error) {
	sessions, err := p.Sessions()
	if err != nil {
		return SessionInfo{}, err
	}
	for _, s := range sessions {
		if s.Addr == addr {
			return s, nil
		}
	}
	return SessionInfo{}, ErrSessionNotFound
}

// Close disconnects every session and stops all services.
func (p *Peer) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.closed.Set(true)

		if sessions, sErr := p.Sessions(); sErr == nil {
			for _, s := range sessions {
				addr, rErr := net.ResolveUDPAddr("udp", s.Addr)
				if rErr != nil {
					continue
				}
				if dErr := p.Disconnect(addr); dErr != nil && !errors.Is(dErr, ErrSessionNotFound) {
					p.log.WithError(dErr).Warnf("Failed to disconnect %s", s.Addr)
				}
			}
		}

		p.bus.Close()
		err = p.bans.Close()
		p.log.Info("Peer closed")
	})
	return err
}
