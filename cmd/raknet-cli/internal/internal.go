package internal

import (
	"net"
	"time"

	"github.com/skycoin/skycoin/src/util/logging"

	"github.com/skycoin/raknet/pkg/peer"
)

var log = logging.MustGetLogger("raknet-cli")

// Catch handles errors for raknet-cli commands packages
func Catch(err error, msgs ...string) {
	if err != nil {
		if len(msgs) > 0 {
			log.Fatalln(append(msgs, err.Error()))
		} else {
			log.Fatalln(err)
		}
	}
}

// ParseAddr parses a UDP address
func ParseAddr(name, v string) *net.UDPAddr {
	addr, err := net.ResolveUDPAddr("udp", v)
	Catch(err, "failed to parse <"+name+">:")
	return addr
}

// EphemeralPeer starts a peer on a random local port that refuses incoming connections.
func EphemeralPeer(timeout time.Duration) *peer.Peer {
	conf := peer.DefaultConfig()
	conf.Socket.LocalAddr = ":0"
	conf.Server.AllowIncoming = false
	conf.Session.PingInterval = 0
	conf.Handshake.Threshold = peer.Duration(timeout)
	conf.LogLevel = "error"

	p, err := peer.New(conf)
	Catch(err, "failed to start peer:")
	return p
}
