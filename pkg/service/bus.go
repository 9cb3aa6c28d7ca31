package service

import (
	"errors"
	"sync"

	"github.com/skycoin/skycoin/src/util/logging"
)

// Bus is a registry of named services.
type Bus struct {
	log *logging.Logger

	mu       sync.RWMutex
	services map[string]*Service
	order    []string
	closed   bool
}

// NewBus creates an empty Bus.
func NewBus(log *logging.Logger) *Bus {
	if log == nil {
		log = logging.MustGetLogger("bus")
	}
	return &Bus{
		log:      log,
		services: make(map[string]*Service),
	}
}

// Register adds s under name. Names are never overwritten.
// On failure the returned *RegisterError carries name and s back to the caller.
func (b *Bus) Register(name string, s *Service) error {
	if s.Disposed() {
		return &RegisterError{Name: name, Service: s, Err: ErrServiceDisposed}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return &RegisterError{Name: name, Service: s, Err: ErrBusClosed}
	}
	if _, ok := b.services[name]; ok {
		return &RegisterError{Name: name, Service: s, Err: ErrDuplicateService}
	}
	b.services[name] = s
	b.order = append(b.order, name)
	b.log.Debugf("Registered service %q", name)
	return nil
}

// Send delivers msg to the service registered under name and returns its response.
func (b *Bus) Send(name string, msg Message) (Response, error) {
	b.mu.RLock()
	s, ok := b.services[name]
	b.mu.RUnlock()

	if !ok {
		return nil, &NotFoundError{Name: name}
	}
	resp, err := s.Deliver(msg)
	if errors.Is(err, ErrServiceDisposed) {
		return nil, &NotFoundError{Name: name}
	}
	return resp, err
}

// Lookup returns the service registered under name.
func (b *Bus) Lookup(name string) (*Service, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.services[name]
	return s, ok
}

// Services returns the registered names in registration order.
func (b *Bus) Services() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, len(b.order))
	copy(out, b.order)
	return out
}

// Shutdown removes and disposes the service registered under name.
// It is a no-op if name is not registered.
func (b *Bus) Shutdown(name string) {
	b.mu.Lock()
	s, ok := b.services[name]
	if ok {
		delete(b.services, name)
		b.removeOrder(name)
	}
	b.mu.Unlock()

	if !ok {
		return
	}
	if err := s.Dispose(); err != nil {
		b.log.WithError(err).Warnf("Service %q shut down uncleanly", name)
		return
	}
	b.log.Debugf("Service %q shut down", name)
}

// Close shuts down every service in reverse registration order. Further registrations fail.
func (b *Bus) Close() {
	b.mu.Lock()
	b.closed = true
	names := make([]string, len(b.order))
	copy(names, b.order)
	b.mu.Unlock()

	for i := len(names) - 1; i >= 0; i-- {
		b.Shutdown(names[i])
	}
}

func (b *Bus) removeOrder(name string) {
	for i, n := range b.order {
		if n == name {
			b.order = append(b.order[:i], b.order[i+1:]...)
			return
		}
	}
}
