package peer

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/skycoin/skycoin/src/util/logging"

	"github.com/skycoin/raknet/pkg/banlist"
	"github.com/skycoin/raknet/pkg/protocol"
	"github.com/skycoin/raknet/pkg/service"
)

// HandshakeState is the client side progress of an offline handshake.
type HandshakeState int

// Handshake states, in order.
const (
	StateRequestSent1 HandshakeState = iota
	StateReplySeen1
	StateRequestSent2
	StateReplySeen2
	StateConnected
)

func (s HandshakeState) String() string {
	switch s {
	case StateRequestSent1:
		return "request_sent_1"
	case StateReplySeen1:
		return "reply_seen_1"
	case StateRequestSent2:
		return "request_sent_2"
	case StateReplySeen2:
		return "reply_seen_2"
	case StateConnected:
		return "connected"
	default:
		return fmt.Sprintf("HandshakeState(%d)", int(s))
	}
}

var rejectionErrors = map[protocol.MessageID]error{
	protocol.IDConnectionBanned:          ErrConnectionBanned,
	protocol.IDNoFreeIncomingConnections: ErrNoFreeIncomingConnections,
	protocol.IDAlreadyConnected:          ErrAlreadyConnected,
	protocol.IDIPRecentlyConnected:       ErrIPRecentlyConnected,
}

type handshake struct {
	addr       net.Addr
	state      HandshakeState
	serverGUID uint64
	mtu        uint16
	result     chan ConnectResult
}

// Handshaker runs the offline handshake, as a client for Connect requests and as a server
// for incoming requests while incoming connections are allowed.
type Handshaker struct {
	bus      *service.Bus
	settings *Settings
	bans     banlist.List
	log      *logging.Logger

	mu      sync.Mutex
	pending map[string]*handshake
}

// NewHandshaker creates the open_connection service handler.
func NewHandshaker(bus *service.Bus, settings *Settings, bans banlist.List, log *logging.Logger) *Handshaker {
	if bans == nil {
		bans = banlist.NewMemory()
	}
	if log == nil {
		log = logging.MustGetLogger(OpenConnectionService)
	}
	return &Handshaker{
		bus:      bus,
		settings: settings,
		bans:     bans,
		log:      log,
		pending:  make(map[string]*handshake),
	}
}

// Handle implements service.Handler.
func (h *Handshaker) Handle(msg service.Message) (service.Response, error) {
	switch m := msg.(type) {
	case Connect:
		return h.connect(m.Addr)
	case CancelConnect:
		h.mu.Lock()
		delete(h.pending, m.Addr.String())
		h.mu.Unlock()
		return nil, nil
	case RecvReply1:
		return nil, h.recvReply1(Packet(m))
	case RecvReply2:
		return nil, h.recvReply2(Packet(m))
	case RecvIncompatibleProtocol:
		return nil, h.recvIncompatibleProtocol(Packet(m))
	case RecvRejection:
		return nil, h.recvRejection(Packet(m))
	case RecvRequest1:
		return nil, h.recvRequest1(Packet(m))
	case RecvRequest2:
		return nil, h.recvRequest2(Packet(m))
	default:
		return nil, &service.UnexpectedMessageError{Service: OpenConnectionService, Message: msg}
	}
}

// Tasks implements service.Handler.
func (h *Handshaker) Tasks() []service.TaskFunc { return nil }

// Shutdown implements service.Handler. Handshakes in progress fail with ErrClosed.
func (h *Handshaker) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for key, hs := range h.pending {
		hs.result <- ConnectResult{Err: ErrClosed}
		delete(h.pending, key)
	}
}

// State returns the state of the handshake in progress with addr.
func (h *Handshaker) State(addr net.Addr) (HandshakeState, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	hs, ok := h.pending[addr.String()]
	if !ok {
		return 0, false
	}
	return hs.state, true
}

func (h *Handshaker) connect(addr net.Addr) (<-chan ConnectResult, error) {
	key := addr.String()

	h.mu.Lock()
	if _, ok := h.pending[key]; ok {
		h.mu.Unlock()
		return nil, ErrAlreadyRequested
	}
	hs := &handshake{addr: addr, state: StateRequestSent1, result: make(chan ConnectResult, 1)}
	h.pending[key] = hs
	h.mu.Unlock()

	err := sendMessage(h.bus, addr, &protocol.OpenConnectionRequest1{
		Protocol: h.settings.Protocol,
		MTU:      h.settings.MaxMTU,
	})
	if err != nil {
		h.drop(key, hs)
		return nil, err
	}
	h.log.WithField("addr", key).Debug("Sent open connection request 1")
	return hs.result, nil
}

// advance moves the handshake with addr from state from to state to.
// A handshake that is already past from returns nil: the reply repeats an earlier step.
// A handshake in any earlier state fails with ErrInvalidHandshake.
func (h *Handshaker) advance(addr net.Addr, from, to HandshakeState) (*handshake, error) {
	key := addr.String()

	h.mu.Lock()
	defer h.mu.Unlock()
	hs, ok := h.pending[key]
	if !ok {
		return nil, fmt.Errorf("%w: no handshake in progress with %s", ErrInvalidHandshake, key)
	}
	if hs.state > from {
		h.log.WithField("addr", key).Debugf("Ignoring repeated reply in state %s", hs.state)
		return nil, nil
	}
	if hs.state != from {
		delete(h.pending, key)
		err := fmt.Errorf("%w: reply in state %s", ErrInvalidHandshake, hs.state)
		hs.result <- ConnectResult{Err: err}
		return nil, err
	}
	hs.state = to
	return hs, nil
}

func (h *Handshaker) drop(key string, hs *handshake) {
	h.mu.Lock()
	if h.pending[key] == hs {
		delete(h.pending, key)
	}
	h.mu.Unlock()
}

// fail resolves the handshake with addr, if any, with err.
func (h *Handshaker) fail(addr net.Addr, err error) bool {
	key := addr.String()

	h.mu.Lock()
	defer h.mu.Unlock()
	hs, ok := h.pending[key]
	if !ok {
		return false
	}
	delete(h.pending, key)
	hs.result <- ConnectResult{Err: err}
	h.log.WithError(err).WithField("addr", key).Debug("Handshake failed")
	return true
}

// decodeReply decodes a reply for the handshake with addr. Magic mismatches fail the handshake.
func (h *Handshaker) decodeReply(pkt Packet, m protocol.Message) error {
	err := protocol.Unmarshal(pkt.Data, m)
	if err == nil {
		return nil
	}
	if errors.Is(err, protocol.ErrInvalidMagic) {
		h.fail(pkt.Addr, fmt.Errorf("%w: %v", ErrInvalidHandshake, err))
	}
	return err
}

func (h *Handshaker) recvReply1(pkt Packet) error {
	var reply protocol.OpenConnectionReply1
	if err := h.decodeReply(pkt, &reply); err != nil {
		return err
	}
	hs, err := h.advance(pkt.Addr, StateRequestSent1, StateReplySeen1)
	if err != nil || hs == nil {
		return err
	}
	if err := checkMTU(reply.MTU); err != nil {
		h.fail(pkt.Addr, err)
		return err
	}

	serverAddr, err := protocol.ResolveAddress(pkt.Addr)
	if err != nil {
		h.fail(pkt.Addr, err)
		return err
	}

	h.mu.Lock()
	hs.serverGUID = reply.ServerGUID
	hs.mtu = minMTU(reply.MTU, h.settings.MaxMTU)
	req := &protocol.OpenConnectionRequest2{
		ServerAddress: serverAddr,
		MTU:           hs.mtu,
		ClientGUID:    h.settings.GUID,
	}
	hs.state = StateRequestSent2
	h.mu.Unlock()

	if err := sendMessage(h.bus, pkt.Addr, req); err != nil {
		h.fail(pkt.Addr, err)
		return err
	}
	return nil
}

func (h *Handshaker) recvReply2(pkt Packet) error {
	var reply protocol.OpenConnectionReply2
	if err := h.decodeReply(pkt, &reply); err != nil {
		return err
	}
	hs, err := h.advance(pkt.Addr, StateRequestSent2, StateReplySeen2)
	if err != nil || hs == nil {
		return err
	}
	if err := checkMTU(reply.MTU); err != nil {
		h.fail(pkt.Addr, err)
		return err
	}

	h.mu.Lock()
	mtu := minMTU(reply.MTU, hs.mtu)
	h.mu.Unlock()

	resp, err := h.bus.Send(ConnectionService, OpenSession{
		Addr:      pkt.Addr,
		GUID:      reply.ServerGUID,
		MTU:       mtu,
		Initiator: true,
	})
	if err != nil {
		h.fail(pkt.Addr, err)
		return err
	}

	h.mu.Lock()
	owned := h.pending[pkt.Addr.String()] == hs
	if owned {
		hs.state = StateConnected
		delete(h.pending, pkt.Addr.String())
	}
	h.mu.Unlock()

	if !owned {
		if _, err := h.bus.Send(ConnectionService, CloseSession{Addr: pkt.Addr}); err != nil {
			h.log.WithError(err).Debug("Failed to close orphaned session")
		}
		return fmt.Errorf("%w: handshake with %s ended while opening the session", ErrInvalidHandshake, pkt.Addr)
	}
	hs.result <- ConnectResult{Session: resp.(*SessionInfo)}
	h.log.WithField("addr", pkt.Addr.String()).Infof("Connected to %d with mtu %d", reply.ServerGUID, mtu)
	return nil
}

func (h *Handshaker) recvIncompatibleProtocol(pkt Packet) error {
	var m protocol.IncompatibleProtocolVersion
	if err := h.decodeReply(pkt, &m); err != nil {
		return err
	}
	h.fail(pkt.Addr, &IncompatibleProtocolError{Server: m.Protocol, Local: h.settings.Protocol})
	return nil
}

func (h *Handshaker) recvRejection(pkt Packet) error {
	if len(pkt.Data) == 0 {
		return protocol.ErrNotEnoughRemaining
	}
	if protocol.MessageID(pkt.Data[0]) == protocol.IDDisconnectionNotification {
		h.fail(pkt.Addr, ErrDisconnected)
		return nil
	}

	var m protocol.Rejection
	if err := h.decodeReply(pkt, &m); err != nil {
		return err
	}
	h.fail(pkt.Addr, rejectionErrors[m.Reason])
	return nil
}

func (h *Handshaker) recvRequest1(pkt Packet) error {
	if !h.settings.AllowIncoming() {
		return nil
	}

	var req protocol.OpenConnectionRequest1
	if err := protocol.Unmarshal(pkt.Data, &req); err != nil {
		return err
	}
	log := h.log.WithField("addr", pkt.Addr.String())
	if err := checkMTU(req.MTU); err != nil {
		return err
	}

	if req.Protocol != h.settings.Protocol {
		log.Debugf("Rejecting protocol version %d", req.Protocol)
		return sendMessage(h.bus, pkt.Addr, &protocol.IncompatibleProtocolVersion{
			Protocol:   h.settings.Protocol,
			ServerGUID: h.settings.GUID,
		})
	}
	if banned, err := h.isBanned(pkt.Addr); err != nil || banned {
		if err != nil {
			return err
		}
		return h.reject(pkt.Addr, protocol.IDConnectionBanned)
	}

	return sendMessage(h.bus, pkt.Addr, &protocol.OpenConnectionReply1{
		ServerGUID: h.settings.GUID,
		MTU:        minMTU(req.MTU, h.settings.MaxMTU),
	})
}

func (h *Handshaker) recvRequest2(pkt Packet) error {
	if !h.settings.AllowIncoming() {
		return nil
	}

	var req protocol.OpenConnectionRequest2
	if err := protocol.Unmarshal(pkt.Data, &req); err != nil {
		return err
	}
	if err := checkMTU(req.MTU); err != nil {
		return err
	}

	if banned, err := h.isBanned(pkt.Addr); err != nil || banned {
		if err != nil {
			return err
		}
		return h.reject(pkt.Addr, protocol.IDConnectionBanned)
	}

	resp, err := h.bus.Send(ConnectionService, HasSession{Addr: pkt.Addr})
	if err != nil {
		return err
	}
	if resp.(bool) {
		return h.reject(pkt.Addr, protocol.IDAlreadyConnected)
	}

	resp, err = h.bus.Send(ConnectionService, SessionCount{})
	if err != nil {
		return err
	}
	if resp.(int) >= h.settings.MaxConnections {
		return h.reject(pkt.Addr, protocol.IDNoFreeIncomingConnections)
	}

	clientAddr, err := protocol.ResolveAddress(pkt.Addr)
	if err != nil {
		return err
	}
	mtu := minMTU(req.MTU, h.settings.MaxMTU)

	if _, err := h.bus.Send(ConnectionService, OpenSession{
		Addr: pkt.Addr,
		GUID: req.ClientGUID,
		MTU:  mtu,
	}); err != nil {
		return err
	}

	h.log.WithField("addr", pkt.Addr.String()).Infof("Accepted %d with mtu %d", req.ClientGUID, mtu)
	return sendMessage(h.bus, pkt.Addr, &protocol.OpenConnectionReply2{
		ServerGUID:    h.settings.GUID,
		ClientAddress: clientAddr,
		MTU:           mtu,
	})
}

func (h *Handshaker) reject(addr net.Addr, reason protocol.MessageID) error {
	h.log.WithField("addr", addr.String()).Debugf("Rejecting handshake: %s", reason)
	return sendMessage(h.bus, addr, &protocol.Rejection{Reason: reason, ServerGUID: h.settings.GUID})
}

func (h *Handshaker) isBanned(addr net.Addr) (bool, error) {
	udpAddr, err := protocol.ResolveAddress(addr)
	if err != nil {
		return false, err
	}
	return h.bans.IsBanned(udpAddr.IP)
}

func minMTU(a, b uint16) uint16 {
	if a < b {
		return a
	}
	return b
}
