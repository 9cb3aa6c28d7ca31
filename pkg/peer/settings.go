package peer

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/skycoin/skycoin/src/cipher"

	"github.com/skycoin/raknet/internal/ioutil"
)

// Settings holds the runtime parameters shared by the session services.
// Information and AllowIncoming can be changed while the peer runs.
type Settings struct {
	GUID           uint64
	Protocol       byte
	MaxMTU         uint16
	MaxConnections int
	PingInterval   time.Duration
	SessionTimeout time.Duration

	start         time.Time
	allowIncoming ioutil.AtomicBool

	mu          sync.RWMutex
	information string
}

// NewSettings builds Settings from conf. A zero GUID in conf is replaced by a random one.
func NewSettings(conf *Config) *Settings {
	guid := conf.GUID
	for guid == 0 {
		guid = binary.BigEndian.Uint64(cipher.RandByte(8))
	}
	s := &Settings{
		GUID:           guid,
		Protocol:       conf.Protocol,
		MaxMTU:         conf.MaxMTU,
		MaxConnections: conf.Server.MaxConnections,
		PingInterval:   conf.Session.PingInterval.Duration(),
		SessionTimeout: conf.Session.Timeout.Duration(),
		start:          time.Now(),
		information:    conf.Server.Information,
	}
	s.allowIncoming.Set(conf.Server.AllowIncoming)
	return s
}

// PingTime returns the milliseconds elapsed since the settings were created.
func (s *Settings) PingTime() uint64 {
	return uint64(time.Since(s.start) / time.Millisecond)
}

// Uptime returns the time elapsed since the settings were created.
func (s *Settings) Uptime() time.Duration {
	return time.Since(s.start)
}

// Information returns the string advertised in unconnected pongs.
func (s *Settings) Information() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.information
}

// SetInformation changes the advertised information string.
func (s *Settings) SetInformation(info string) {
	s.mu.Lock()
	s.information = info
	s.mu.Unlock()
}

// AllowIncoming reports whether incoming handshakes are answered.
func (s *Settings) AllowIncoming() bool {
	return s.allowIncoming.Get()
}

// SetAllowIncoming switches incoming handshakes on or off.
func (s *Settings) SetAllowIncoming(v bool) {
	s.allowIncoming.Set(v)
}
