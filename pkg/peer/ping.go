package peer

import (
	"sync"

	"github.com/skycoin/skycoin/src/util/logging"

	"github.com/skycoin/raknet/pkg/protocol"
	"github.com/skycoin/raknet/pkg/service"
)

// Pinger answers unconnected pings and tracks the pings sent by this peer.
type Pinger struct {
	bus      *service.Bus
	settings *Settings
	log      *logging.Logger

	mu      sync.Mutex
	pending map[string]chan *protocol.UnconnectedPong
}

// NewPinger creates the ping service handler.
func NewPinger(bus *service.Bus, settings *Settings, log *logging.Logger) *Pinger {
	if log == nil {
		log = logging.MustGetLogger(PingService)
	}
	return &Pinger{
		bus:      bus,
		settings: settings,
		log:      log,
		pending:  make(map[string]chan *protocol.UnconnectedPong),
	}
}

// Handle implements service.Handler.
func (p *Pinger) Handle(msg service.Message) (service.Response, error) {
	switch m := msg.(type) {
	case RecvPing:
		return nil, p.recvPing(Packet(m))
	case RecvPong:
		return nil, p.recvPong(Packet(m))
	case Ping:
		return p.ping(m)
	case CancelPing:
		p.mu.Lock()
		delete(p.pending, m.Addr.String())
		p.mu.Unlock()
		return nil, nil
	default:
		return nil, &service.UnexpectedMessageError{Service: PingService, Message: msg}
	}
}

// Tasks implements service.Handler.
func (p *Pinger) Tasks() []service.TaskFunc { return nil }

// Shutdown implements service.Handler. Pending pings are resolved by closing their channels.
func (p *Pinger) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for addr, ch := range p.pending {
		close(ch)
		delete(p.pending, addr)
	}
}

func (p *Pinger) recvPing(pkt Packet) error {
	var ping protocol.UnconnectedPing
	if err := protocol.Unmarshal(pkt.Data, &ping); err != nil {
		return err
	}
	if ping.OpenConnections && !p.settings.AllowIncoming() {
		return nil
	}

	p.log.WithField("addr", pkt.Addr.String()).Debugf("Ping from %d", ping.ClientGUID)
	return sendMessage(p.bus, pkt.Addr, &protocol.UnconnectedPong{
		PingTime:    ping.PingTime,
		ServerGUID:  p.settings.GUID,
		Information: p.settings.Information(),
	})
}

func (p *Pinger) recvPong(pkt Packet) error {
	pong := new(protocol.UnconnectedPong)
	if err := protocol.Unmarshal(pkt.Data, pong); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	ch, ok := p.pending[pkt.Addr.String()]
	if !ok {
		return nil
	}
	delete(p.pending, pkt.Addr.String())
	ch <- pong
	return nil
}

func (p *Pinger) ping(m Ping) (<-chan *protocol.UnconnectedPong, error) {
	key := m.Addr.String()

	p.mu.Lock()
	if _, ok := p.pending[key]; ok {
		p.mu.Unlock()
		return nil, ErrAlreadyRequested
	}
	ch := make(chan *protocol.UnconnectedPong, 1)
	p.pending[key] = ch
	p.mu.Unlock()

	err := sendMessage(p.bus, m.Addr, &protocol.UnconnectedPing{
		PingTime:   p.settings.PingTime(),
		ClientGUID: p.settings.GUID,
	})
	if err != nil {
		p.mu.Lock()
		if p.pending[key] == ch {
			delete(p.pending, key)
		}
		p.mu.Unlock()
		return nil, err
	}
	return ch, nil
}
