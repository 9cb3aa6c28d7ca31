// Package service implements a registry of named message handlers with managed background tasks.
package service

import (
	"sync"
	"time"

	"github.com/skycoin/skycoin/src/util/logging"

	"github.com/skycoin/raknet/internal/ioutil"
)

// DefaultStopTimeout is how long disposal waits for each background task.
const DefaultStopTimeout = 5 * time.Second

// Message is delivered to a Handler. Every handler defines its own set of message types.
type Message interface{}

// Response is returned by a Handler.
type Response interface{}

// Handler implements the behaviour of a service.
type Handler interface {
	// Handle processes a single message. Handlers guard their own state.
	Handle(msg Message) (Response, error)

	// Tasks returns the background loops that must run while the service is active.
	Tasks() []TaskFunc

	// Shutdown is called once after all tasks have stopped.
	Shutdown()
}

// Service wraps a Handler with its running tasks and lifecycle.
type Service struct {
	handler     Handler
	tasks       []*Task
	stopTimeout time.Duration
	log         *logging.Logger

	mu       sync.Mutex
	inflight int
	drained  chan struct{} // closed when the last in-flight delivery of a disposed service returns
	disposed ioutil.AtomicBool
}

// New wraps h and starts the tasks it declares.
func New(h Handler, stopTimeout time.Duration, log *logging.Logger) *Service {
	if log == nil {
		log = logging.MustGetLogger("service")
	}
	s := &Service{
		handler:     h,
		stopTimeout: stopTimeout,
		log:         log,
	}
	for _, fn := range h.Tasks() {
		s.tasks = append(s.tasks, Spawn(fn))
	}
	return s
}

// Handler returns the wrapped handler.
func (s *Service) Handler() Handler {
	return s.handler
}

// Disposed reports whether the service has been disposed.
func (s *Service) Disposed() bool {
	return s.disposed.Get()
}

// Deliver passes msg to the handler unless the service is disposed.
func (s *Service) Deliver(msg Message) (Response, error) {
	s.mu.Lock()
	if s.disposed.Get() {
		s.mu.Unlock()
		return nil, ErrServiceDisposed
	}
	s.inflight++
	s.mu.Unlock()

	defer s.release()
	return s.handler.Handle(msg)
}

func (s *Service) release() {
	s.mu.Lock()
	s.inflight--
	if s.inflight == 0 && s.drained != nil {
		close(s.drained)
		s.drained = nil
	}
	s.mu.Unlock()
}

// Dispose stops the service. Only the first call has any effect.
// In-flight deliveries get up to the stop timeout to complete, then every task is aborted
// and the handler is shut down. Deliveries and tasks that outlive the stop timeout are
// reported and left behind.
func (s *Service) Dispose() error {
	s.mu.Lock()
	if !s.disposed.Set(true) {
		s.mu.Unlock()
		return nil
	}
	var drained chan struct{}
	if s.inflight > 0 {
		drained = make(chan struct{})
		s.drained = drained
	}
	s.mu.Unlock()

	var err error
	if drained != nil {
		if err = wait(drained, s.stopTimeout); err != nil {
			s.log.Warnf("In-flight deliveries did not complete after %s", s.stopTimeout)
		}
	}

	for i, t := range s.tasks {
		if tErr := t.Abort(s.stopTimeout); tErr != nil {
			s.log.WithError(tErr).Warnf("Background task %d did not stop after %s", i, s.stopTimeout)
			err = tErr
		}
	}
	s.handler.Shutdown()
	return err
}
