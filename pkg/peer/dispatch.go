package peer

import (
	"net"

	"github.com/skycoin/skycoin/src/util/logging"

	"github.com/skycoin/raknet/internal/metrics"
	"github.com/skycoin/raknet/pkg/protocol"
	"github.com/skycoin/raknet/pkg/service"
)

// Routes returns the services a payload starting with id is delivered to.
// Unconnected pings asking for open connections are only routed while incoming connections are allowed.
func Routes(id byte, allowIncoming bool) []string {
	switch mid := protocol.MessageID(id); {
	case mid == protocol.IDUnconnectedPing, mid == protocol.IDUnconnectedPong:
		return []string{PingService}
	case mid == protocol.IDUnconnectedPingOpenConnections:
		if allowIncoming {
			return []string{PingService}
		}
		return nil
	case mid == protocol.IDOpenConnectionRequest1,
		mid == protocol.IDOpenConnectionReply1,
		mid == protocol.IDOpenConnectionRequest2,
		mid == protocol.IDOpenConnectionReply2,
		mid == protocol.IDIncompatibleProtocolVersion,
		mid == protocol.IDAlreadyConnected,
		mid == protocol.IDNoFreeIncomingConnections,
		mid == protocol.IDIPRecentlyConnected:
		return []string{OpenConnectionService}
	case mid == protocol.IDDisconnectionNotification, mid == protocol.IDConnectionBanned:
		return []string{OpenConnectionService, ConnectionService}
	case mid == protocol.IDConnectionLost, mid == protocol.IDAck, mid == protocol.IDNack, mid.IsDatagram():
		return []string{ConnectionService}
	default:
		return nil
	}
}

// Dispatcher delivers received payloads to the services on a bus.
type Dispatcher struct {
	bus      *service.Bus
	settings *Settings
	metrics  metrics.Recorder
	log      *logging.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(bus *service.Bus, settings *Settings, m metrics.Recorder, log *logging.Logger) *Dispatcher {
	if m == nil {
		m = metrics.NewDummy()
	}
	if log == nil {
		log = logging.MustGetLogger("dispatch")
	}
	return &Dispatcher{bus: bus, settings: settings, metrics: m, log: log}
}

// Dispatch routes payload to every interested service. Failures are logged and never returned.
// It reports the number of services that accepted the payload.
func (d *Dispatcher) Dispatch(addr net.Addr, payload []byte) int {
	if len(payload) == 0 {
		d.metrics.PacketDropped("empty")
		return 0
	}

	id := protocol.MessageID(payload[0])
	d.metrics.PacketReceived(id.String(), len(payload))

	routes := Routes(payload[0], d.settings.AllowIncoming())
	if len(routes) == 0 {
		d.log.Debugf("No route for %s from %s", id, addr)
		d.metrics.PacketDropped("unrouted")
		return 0
	}

	delivered := 0
	for _, name := range routes {
		msg := routeMessage(name, id, Packet{Addr: addr, Data: payload})
		if _, err := d.bus.Send(name, msg); err != nil {
			d.log.WithError(err).WithField("addr", addr.String()).Debugf("Failed to deliver %s to %s", id, name)
			d.metrics.PacketDropped(name)
			continue
		}
		delivered++
	}
	return delivered
}

func routeMessage(name string, id protocol.MessageID, p Packet) service.Message {
	switch name {
	case PingService:
		if id == protocol.IDUnconnectedPong {
			return RecvPong(p)
		}
		return RecvPing(p)

	case OpenConnectionService:
		switch id {
		case protocol.IDOpenConnectionRequest1:
			return RecvRequest1(p)
		case protocol.IDOpenConnectionReply1:
			return RecvReply1(p)
		case protocol.IDOpenConnectionRequest2:
			return RecvRequest2(p)
		case protocol.IDOpenConnectionReply2:
			return RecvReply2(p)
		case protocol.IDIncompatibleProtocolVersion:
			return RecvIncompatibleProtocol(p)
		default:
			return RecvRejection(p)
		}

	default:
		switch id {
		case protocol.IDAck:
			return RecvAck(p)
		case protocol.IDNack:
			return RecvNack(p)
		case protocol.IDDisconnectionNotification:
			return RecvDisconnectionNotification(p)
		case protocol.IDConnectionLost:
			return RecvConnectionLost(p)
		case protocol.IDConnectionBanned:
			return RecvConnectionBanned(p)
		default:
			return RecvDatagram(p)
		}
	}
}
