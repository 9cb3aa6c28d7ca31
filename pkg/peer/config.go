package peer

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/skycoin/raknet/pkg/banlist"
	"github.com/skycoin/raknet/pkg/protocol"
	"github.com/skycoin/raknet/pkg/util/pathutil"
)

// Defaults used by DefaultConfig.
const (
	DefaultLocalAddr      = ":19132"
	DefaultMaxMTU         = 1492
	DefaultMaxConnections = 20
	DefaultReadTimeout    = 500 * time.Millisecond
	DefaultRecvBufferSize = 2048
	DefaultPingInterval   = 5 * time.Second
	DefaultSessionTimeout = 30 * time.Second
)

// SocketFields configures the UDP socket.
type SocketFields struct {
	LocalAddr      string   `json:"local_address"`
	ReadTimeout    Duration `json:"read_timeout"`
	RecvBufferSize int      `json:"recv_buffer_size"`
}

// ServerFields configures incoming connections.
type ServerFields struct {
	AllowIncoming  bool   `json:"allow_incoming"`
	MaxConnections int    `json:"max_connections"`
	Information    string `json:"information"`
}

// HandshakeFields configures outgoing connections.
type HandshakeFields struct {
	Timeout   Duration `json:"timeout"`
	Backoff   Duration `json:"backoff"`
	Threshold Duration `json:"threshold"`
}

// SessionFields configures established sessions.
type SessionFields struct {
	PingInterval Duration `json:"ping_interval"`
	Timeout      Duration `json:"timeout"`
}

// BanListFields selects the ban list store.
type BanListFields struct {
	Type     string `json:"type"`
	Location string `json:"location"`
}

// Config defines configuration parameters for Peer.
type Config struct {
	Version  string `json:"version"`
	GUID     uint64 `json:"guid,omitempty"`
	Protocol byte   `json:"protocol"`
	MaxMTU   uint16 `json:"max_mtu"`

	Socket    SocketFields    `json:"socket"`
	Server    ServerFields    `json:"server"`
	Handshake HandshakeFields `json:"handshake"`
	Session   SessionFields   `json:"session"`
	BanList   BanListFields   `json:"ban_list"`

	// StatusAddr is the address of the status HTTP API (leave blank to disable it).
	StatusAddr string `json:"status_address"`

	ShutdownTimeout Duration `json:"shutdown_timeout"`
	LogLevel        string   `json:"log_level"`
}

// DefaultConfig returns a Config accepting incoming connections on DefaultLocalAddr.
func DefaultConfig() *Config {
	return &Config{
		Version:  "1.0",
		Protocol: protocol.DefaultProtocolVersion,
		MaxMTU:   DefaultMaxMTU,
		Socket: SocketFields{
			LocalAddr:      DefaultLocalAddr,
			ReadTimeout:    Duration(DefaultReadTimeout),
			RecvBufferSize: DefaultRecvBufferSize,
		},
		Server: ServerFields{
			AllowIncoming:  true,
			MaxConnections: DefaultMaxConnections,
			Information:    "raknet",
		},
		Handshake: HandshakeFields{
			Timeout:   Duration(2 * time.Second),
			Backoff:   Duration(100 * time.Millisecond),
			Threshold: Duration(10 * time.Second),
		},
		Session: SessionFields{
			PingInterval: Duration(DefaultPingInterval),
			Timeout:      Duration(DefaultSessionTimeout),
		},
		BanList:         BanListFields{Type: "memory"},
		ShutdownTimeout: Duration(10 * time.Second),
		LogLevel:        "info",
	}
}

// Validate checks the values that would break the handshake or the session loop.
func (c *Config) Validate() error {
	if c.MaxMTU < protocol.MinMTU {
		return fmt.Errorf("max_mtu %d is too small", c.MaxMTU)
	}
	if c.Server.MaxConnections < 0 {
		return errors.New("max_connections must not be negative")
	}
	if c.Socket.RecvBufferSize <= 0 {
		return errors.New("recv_buffer_size must be positive")
	}
	if len(c.Server.Information) > 0xffff {
		return errors.New("information is too long")
	}
	return nil
}

// OpenBanList returns the configured banlist.List.
func (c *Config) OpenBanList() (banlist.List, error) {
	if c.BanList.Type == "boltdb" {
		if c.BanList.Location == "" {
			return nil, errors.New("empty ban_list location")
		}
		if _, err := pathutil.EnsureDir(filepath.Dir(c.BanList.Location)); err != nil {
			return nil, err
		}
		return banlist.NewBoltDB(c.BanList.Location)
	}

	return banlist.NewMemory(), nil
}

// Duration wraps around time.Duration to allow parsing from and to JSON
type Duration time.Duration

// MarshalJSON implements json marshaling
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements unmarshal from json
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value))
		return nil
	case string:
		tmp, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		*d = Duration(tmp)
		return nil
	default:
		return errors.New("invalid duration")
	}
}

// Duration returns the wrapped time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
