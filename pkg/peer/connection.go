package peer

import (
	"context"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/skycoin/skycoin/src/util/logging"

	"github.com/skycoin/raknet/internal/metrics"
	"github.com/skycoin/raknet/pkg/protocol"
	"github.com/skycoin/raknet/pkg/service"
)

// PacketHandler receives the packets of established sessions that are not part of the connection protocol.
type PacketHandler func(addr net.Addr, p *protocol.InternalPacket)

type outgoing struct {
	addr net.Addr
	data []byte
}

type delivery struct {
	addr net.Addr
	pkt  *protocol.InternalPacket
}

// Connections keeps the established sessions.
type Connections struct {
	bus      *service.Bus
	settings *Settings
	metrics  metrics.Recorder
	log      *logging.Logger

	mu       sync.Mutex
	sessions map[string]*session
	handler  PacketHandler
}

// NewConnections creates the connection service handler.
func NewConnections(bus *service.Bus, settings *Settings, m metrics.Recorder, log *logging.Logger) *Connections {
	if m == nil {
		m = metrics.NewDummy()
	}
	if log == nil {
		log = logging.MustGetLogger(ConnectionService)
	}
	return &Connections{
		bus:      bus,
		settings: settings,
		metrics:  m,
		log:      log,
		sessions: make(map[string]*session),
	}
}

// SetPacketHandler sets the receiver of application packets. A nil handler drops them.
func (c *Connections) SetPacketHandler(h PacketHandler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

// Handle implements service.Handler.
func (c *Connections) Handle(msg service.Message) (service.Response, error) {
	switch m := msg.(type) {
	case OpenSession:
		return c.openSession(m)
	case CloseSession:
		return nil, c.closeSession(m.Addr, m.Notify, "closed")
	case HasSession:
		c.mu.Lock()
		_, ok := c.sessions[m.Addr.String()]
		c.mu.Unlock()
		return ok, nil
	case SessionCount:
		c.mu.Lock()
		n := len(c.sessions)
		c.mu.Unlock()
		return n, nil
	case ListSessions:
		return c.list(), nil
	case Send:
		return nil, c.send(m)
	case RecvDatagram:
		return nil, c.recvDatagram(Packet(m))
	case RecvAck:
		c.recvAck(Packet(m), false)
		return nil, nil
	case RecvNack:
		c.recvAck(Packet(m), true)
		return nil, nil
	case RecvDisconnectionNotification:
		return nil, c.closeSession(m.Addr, false, "remote disconnected")
	case RecvConnectionLost:
		return nil, c.closeSession(m.Addr, false, "connection lost")
	case RecvConnectionBanned:
		return nil, c.closeSession(m.Addr, false, "banned by remote")
	default:
		return nil, &service.UnexpectedMessageError{Service: ConnectionService, Message: msg}
	}
}

// Tasks implements service.Handler.
func (c *Connections) Tasks() []service.TaskFunc {
	if c.settings.PingInterval <= 0 {
		return nil
	}
	return []service.TaskFunc{c.keepAlive}
}

// Shutdown implements service.Handler.
func (c *Connections) Shutdown() {
	c.mu.Lock()
	n := len(c.sessions)
	c.sessions = make(map[string]*session)
	c.mu.Unlock()

	if n > 0 {
		c.log.Infof("Dropped %d sessions", n)
	}
	c.metrics.SetSessions(0)
}

func (c *Connections) openSession(m OpenSession) (*SessionInfo, error) {
	if err := checkMTU(m.MTU); err != nil {
		return nil, err
	}
	now := time.Now()
	s := newSession(m.Addr, m.GUID, m.MTU, m.Initiator, now)

	var out []byte
	if m.Initiator {
		var err error
		out, err = s.frameMessage(&protocol.ConnectionRequest{
			ClientGUID: c.settings.GUID,
			PingTime:   c.settings.PingTime(),
		}, protocol.ReliableOrdered)
		if err != nil {
			return nil, err
		}
	}

	c.mu.Lock()
	if old, ok := c.sessions[m.Addr.String()]; ok {
		c.log.WithField("addr", m.Addr.String()).Debugf("Replacing session %s", old.info.ID)
	}
	c.sessions[m.Addr.String()] = s
	info := s.info
	n := len(c.sessions)
	c.mu.Unlock()

	c.metrics.SetSessions(n)
	c.log.WithField("addr", m.Addr.String()).Debugf("Opened session %s with %d", info.ID, m.GUID)

	if out != nil {
		c.write(outgoing{m.Addr, out})
	}
	return &info, nil
}

func (c *Connections) closeSession(addr net.Addr, notify bool, reason string) error {
	key := addr.String()

	c.mu.Lock()
	s, ok := c.sessions[key]
	if !ok {
		c.mu.Unlock()
		return nil
	}
	var out []byte
	if notify {
		var err error
		if out, err = s.frameMessage(&protocol.DisconnectionNotification{}, protocol.ReliableOrdered); err != nil {
			c.log.WithError(err).Warn("Failed to frame disconnection notification")
		}
	}
	delete(c.sessions, key)
	n := len(c.sessions)
	c.mu.Unlock()

	c.metrics.SetSessions(n)
	c.log.WithField("addr", key).Infof("Session %s %s", s.info.ID, reason)

	if out != nil {
		return c.writeErr(outgoing{addr, out})
	}
	return nil
}

func (c *Connections) list() []SessionInfo {
	c.mu.Lock()
	out := make([]SessionInfo, 0, len(c.sessions))
	for _, s := range c.sessions {
		out = append(out, s.info)
	}
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Addr < out[j].Addr })
	return out
}

func (c *Connections) send(m Send) error {
	c.mu.Lock()
	s, ok := c.sessions[m.Addr.String()]
	if !ok {
		c.mu.Unlock()
		return ErrSessionNotFound
	}
	out, err := s.frame(m.Payload, m.Reliability, m.Channel)
	c.mu.Unlock()

	if err != nil {
		return err
	}
	return c.writeErr(outgoing{m.Addr, out})
}

func (c *Connections) recvAck(pkt Packet, nack bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[pkt.Addr.String()]
	if !ok {
		c.metrics.PacketDropped("no_session")
		return
	}
	s.info.LastSeen = time.Now()
	if nack {
		s.info.Nacks++
	} else {
		s.info.Acks++
	}
}

func (c *Connections) recvDatagram(pkt Packet) error {
	d, err := protocol.UnmarshalDatagram(pkt.Data)
	if err != nil {
		c.metrics.PacketDropped("decode")
		return err
	}

	key := pkt.Addr.String()
	log := c.log.WithField("addr", key)

	var (
		out        []outgoing
		deliveries []delivery
		disconnect bool
	)

	c.mu.Lock()
	s, ok := c.sessions[key]
	if !ok {
		c.mu.Unlock()
		c.metrics.PacketDropped("no_session")
		return nil
	}
	s.record(d.Sequence, time.Now())

	for _, p := range d.Packets {
		if p.Split != nil || len(p.Payload) == 0 {
			deliveries = append(deliveries, delivery{pkt.Addr, p})
			continue
		}

		reply, err := c.handleInner(s, p)
		switch {
		case err == errDisconnect:
			disconnect = true
		case err == errNotInner:
			deliveries = append(deliveries, delivery{pkt.Addr, p})
		case err != nil:
			log.WithError(err).Debugf("Dropped %s", protocol.MessageID(p.Payload[0]))
			c.metrics.PacketDropped("decode")
		case reply != nil:
			out = append(out, outgoing{pkt.Addr, reply})
		}
	}
	if disconnect {
		delete(c.sessions, key)
	}
	handler := c.handler
	n := len(c.sessions)
	c.mu.Unlock()

	for _, o := range out {
		c.write(o)
	}
	if disconnect {
		c.metrics.SetSessions(n)
		log.Infof("Session %s disconnected by remote", s.info.ID)
	}
	if handler == nil {
		return nil
	}
	for _, dl := range deliveries {
		handler(dl.addr, dl.pkt)
	}
	return nil
}

// handleInner processes a connection protocol message carried by p and returns the framed reply, if any.
func (c *Connections) handleInner(s *session, p *protocol.InternalPacket) ([]byte, error) {
	switch protocol.MessageID(p.Payload[0]) {
	case protocol.IDConnectedPing:
		var ping protocol.ConnectedPing
		if err := protocol.Unmarshal(p.Payload, &ping); err != nil {
			return nil, err
		}
		return s.frameMessage(&protocol.ConnectedPong{
			PingTime: ping.PingTime,
			PongTime: c.settings.PingTime(),
		}, protocol.Unreliable)

	case protocol.IDConnectedPong:
		var pong protocol.ConnectedPong
		if err := protocol.Unmarshal(p.Payload, &pong); err != nil {
			return nil, err
		}
		if now := c.settings.PingTime(); now >= pong.PingTime {
			s.info.Latency = time.Duration(now-pong.PingTime) * time.Millisecond
		}
		return nil, nil

	case protocol.IDConnectionRequest:
		var req protocol.ConnectionRequest
		if err := protocol.Unmarshal(p.Payload, &req); err != nil {
			return nil, err
		}
		clientAddr, err := protocol.ResolveAddress(s.addr)
		if err != nil {
			return nil, err
		}
		return s.frameMessage(&protocol.ConnectionRequestAccepted{
			ClientAddress: clientAddr,
			PingTime:      req.PingTime,
			PongTime:      c.settings.PingTime(),
		}, protocol.ReliableOrdered)

	case protocol.IDConnectionRequestAccepted:
		var acc protocol.ConnectionRequestAccepted
		if err := protocol.Unmarshal(p.Payload, &acc); err != nil {
			return nil, err
		}
		serverAddr, err := protocol.ResolveAddress(s.addr)
		if err != nil {
			return nil, err
		}
		s.info.Online = true
		return s.frameMessage(&protocol.NewIncomingConnection{
			ServerAddress: serverAddr,
			PingTime:      acc.PongTime,
			PongTime:      c.settings.PingTime(),
		}, protocol.ReliableOrdered)

	case protocol.IDNewIncomingConnection:
		var nic protocol.NewIncomingConnection
		if err := protocol.Unmarshal(p.Payload, &nic); err != nil {
			return nil, err
		}
		s.info.Online = true
		return nil, nil

	case protocol.IDDisconnectionNotification:
		return nil, errDisconnect

	default:
		return nil, errNotInner
	}
}

func (c *Connections) keepAlive(ctx context.Context) {
	ticker := time.NewTicker(c.settings.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			c.tick(now)
		}
	}
}

// tick pings every session and drops the ones silent for longer than the session timeout.
func (c *Connections) tick(now time.Time) {
	var (
		out  []outgoing
		lost []SessionInfo
	)

	c.mu.Lock()
	for key, s := range c.sessions {
		if c.settings.SessionTimeout > 0 && now.Sub(s.info.LastSeen) > c.settings.SessionTimeout {
			lost = append(lost, s.info)
			delete(c.sessions, key)
			continue
		}
		b, err := s.frameMessage(&protocol.ConnectedPing{PingTime: c.settings.PingTime()}, protocol.Unreliable)
		if err != nil {
			c.log.WithError(err).WithField("addr", key).Warn("Failed to frame ping")
			continue
		}
		out = append(out, outgoing{s.addr, b})
	}
	n := len(c.sessions)
	c.mu.Unlock()

	for _, info := range lost {
		c.log.WithField("addr", info.Addr).Infof("Session %s timed out", info.ID)
	}
	if len(lost) > 0 {
		c.metrics.SetSessions(n)
	}
	for _, o := range out {
		c.write(o)
	}
}

func (c *Connections) write(o outgoing) {
	if err := c.writeErr(o); err != nil {
		c.log.WithError(err).WithField("addr", o.addr.String()).Debug("Failed to send datagram")
	}
}

func (c *Connections) writeErr(o outgoing) error {
	_, err := c.bus.Send(SocketService, SendTo{Addr: o.addr, Data: o.data})
	return err
}

func checkMTU(mtu uint16) error {
	if mtu < protocol.MinMTU {
		return fmt.Errorf("%w: %d is below %d", ErrInvalidMTU, mtu, protocol.MinMTU)
	}
	return nil
}
