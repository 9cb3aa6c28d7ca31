package protocol

import (
	"fmt"
	"math"
	"net"
	"unicode/utf8"

	"github.com/skycoin/raknet/internal/ioutil"
)

const (
	familyIPv4 = 4
	familyIPv6 = 6

	// sockaddr_in6 family as written by Linux hosts.
	afInet6 = 10
)

// WriteString writes s as a RakString: a big-endian uint16 byte length followed by UTF-8 bytes.
func WriteString(w *ioutil.Writer, s string) error {
	if len(s) > math.MaxUint16 {
		return fmt.Errorf("%w: string of %d bytes is too long", ErrInvalidInput, len(s))
	}
	if err := w.WriteUint16BE(uint16(len(s))); err != nil {
		return err
	}
	_, err := w.Write([]byte(s))
	return err
}

// ReadString reads a RakString.
func ReadString(r *ioutil.Reader) (string, error) {
	n, err := r.ReadUint16BE()
	if err != nil {
		return "", err
	}
	b, err := r.ReadBytes(int(n))
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", fmt.Errorf("%w: string is not valid UTF-8", ErrInvalidData)
	}
	return string(b), nil
}

// WriteAddress writes addr as a RakNet system address.
// IPv4 octets are bitwise inverted on the wire. A nil addr is written as 0.0.0.0:0.
func WriteAddress(w *ioutil.Writer, addr *net.UDPAddr) error {
	if addr == nil {
		addr = &net.UDPAddr{IP: net.IPv4zero}
	}
	if addr.Port < 0 || addr.Port > math.MaxUint16 {
		return fmt.Errorf("%w: port %d", ErrInvalidInput, addr.Port)
	}

	if ip4 := addr.IP.To4(); ip4 != nil {
		if err := w.WriteByte(familyIPv4); err != nil {
			return err
		}
		for _, b := range ip4 {
			if err := w.WriteByte(^b); err != nil {
				return err
			}
		}
		return w.WriteUint16BE(uint16(addr.Port))
	}

	ip6 := addr.IP.To16()
	if ip6 == nil {
		return fmt.Errorf("%w: unsupported address %v", ErrInvalidInput, addr.IP)
	}
	if err := w.WriteByte(familyIPv6); err != nil {
		return err
	}
	if err := w.WriteUint16LE(afInet6); err != nil {
		return err
	}
	if err := w.WriteUint16BE(uint16(addr.Port)); err != nil {
		return err
	}
	if err := w.WriteUint32LE(0); err != nil { // flow info
		return err
	}
	if _, err := w.Write(ip6); err != nil {
		return err
	}
	return w.WriteUint32LE(zoneIndex(addr.Zone))
}

// ReadAddress reads a RakNet system address.
func ReadAddress(r *ioutil.Reader) (*net.UDPAddr, error) {
	family, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	switch family {
	case familyIPv4:
		ip := make(net.IP, net.IPv4len)
		if err := r.ReadFull(ip); err != nil {
			return nil, err
		}
		for i := range ip {
			ip[i] = ^ip[i]
		}
		port, err := r.ReadUint16BE()
		if err != nil {
			return nil, err
		}
		return &net.UDPAddr{IP: ip, Port: int(port)}, nil

	case familyIPv6:
		if _, err := r.ReadUint16LE(); err != nil {
			return nil, err
		}
		port, err := r.ReadUint16BE()
		if err != nil {
			return nil, err
		}
		if _, err := r.ReadUint32LE(); err != nil {
			return nil, err
		}
		ip := make(net.IP, net.IPv6len)
		if err := r.ReadFull(ip); err != nil {
			return nil, err
		}
		scope, err := r.ReadUint32LE()
		if err != nil {
			return nil, err
		}
		return &net.UDPAddr{IP: ip, Port: int(port), Zone: zoneName(scope)}, nil

	default:
		return nil, fmt.Errorf("%w: unknown address family %d", ErrInvalidData, family)
	}
}

func zoneIndex(zone string) uint32 {
	if zone == "" {
		return 0
	}
	if ifi, err := net.InterfaceByName(zone); err == nil {
		return uint32(ifi.Index)
	}
	return 0
}

func zoneName(index uint32) string {
	if index == 0 {
		return ""
	}
	if ifi, err := net.InterfaceByIndex(int(index)); err == nil {
		return ifi.Name
	}
	return ""
}

// ResolveAddress converts a net.Addr into the *net.UDPAddr form used by the codec.
func ResolveAddress(addr net.Addr) (*net.UDPAddr, error) {
	if addr == nil {
		return nil, nil
	}
	if udp, ok := addr.(*net.UDPAddr); ok {
		return udp, nil
	}
	return net.ResolveUDPAddr("udp", addr.String())
}
