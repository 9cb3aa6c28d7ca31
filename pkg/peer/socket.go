package peer

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/skycoin/skycoin/src/util/logging"

	"github.com/skycoin/raknet/internal/metrics"
	"github.com/skycoin/raknet/pkg/protocol"
	"github.com/skycoin/raknet/pkg/service"
)

// Socket owns the UDP socket: it feeds received payloads to a Dispatcher and writes outgoing ones.
type Socket struct {
	conn        net.PacketConn
	dispatcher  *Dispatcher
	readTimeout time.Duration
	bufSize     int
	metrics     metrics.Recorder
	log         *logging.Logger
}

// NewSocket wraps conn. The read timeout bounds how long the receive loop takes to notice cancellation.
func NewSocket(conn net.PacketConn, d *Dispatcher, readTimeout time.Duration, bufSize int, m metrics.Recorder, log *logging.Logger) *Socket {
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}
	if bufSize <= 0 {
		bufSize = DefaultRecvBufferSize
	}
	if m == nil {
		m = metrics.NewDummy()
	}
	if log == nil {
		log = logging.MustGetLogger(SocketService)
	}
	return &Socket{
		conn:        conn,
		dispatcher:  d,
		readTimeout: readTimeout,
		bufSize:     bufSize,
		metrics:     m,
		log:         log,
	}
}

// Handle implements service.Handler.
func (s *Socket) Handle(msg service.Message) (service.Response, error) {
	switch m := msg.(type) {
	case SendTo:
		n, err := s.conn.WriteTo(m.Data, m.Addr)
		if err != nil {
			return nil, err
		}
		if len(m.Data) > 0 {
			s.metrics.PacketSent(protocol.MessageID(m.Data[0]).String(), n)
		}
		return n, nil
	case LocalAddr:
		return s.conn.LocalAddr(), nil
	default:
		return nil, &service.UnexpectedMessageError{Service: SocketService, Message: msg}
	}
}

// Tasks implements service.Handler.
func (s *Socket) Tasks() []service.TaskFunc {
	return []service.TaskFunc{s.recvLoop}
}

// Shutdown implements service.Handler.
func (s *Socket) Shutdown() {
	if err := s.conn.Close(); err != nil && !isClosedConn(err) {
		s.log.WithError(err).Warn("Failed to close socket")
	}
}

func (s *Socket) recvLoop(ctx context.Context) {
	buf := make([]byte, s.bufSize)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := s.conn.SetReadDeadline(time.Now().Add(s.readTimeout)); err != nil {
			if isClosedConn(err) {
				return
			}
			s.log.WithError(err).Warn("Failed to set read deadline")
		}

		n, addr, err := s.conn.ReadFrom(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			if isClosedConn(err) {
				return
			}
			s.log.WithError(err).Debug("Read failed")
			continue
		}

		payload := make([]byte, n)
		copy(payload, buf[:n])
		s.dispatcher.Dispatch(addr, payload)
	}
}

func isClosedConn(err error) bool {
	return strings.Contains(err.Error(), "use of closed network connection")
}

func sendMessage(bus *service.Bus, addr net.Addr, m protocol.Message) error {
	b, err := protocol.Marshal(m)
	if err != nil {
		return err
	}
	_, err = bus.Send(SocketService, SendTo{Addr: addr, Data: b})
	return err
}
