package torrent

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// --------------------------------------------------------------------------------------------- //

// SHA1 returns the 20-byte SHA-1 digest of data.
func SHA1(data []byte) [20]byte {
	return sha1.Sum(data)
}

// ToHex renders b as lowercase hex, two characters per byte.
func ToHex(b []byte) string {
	return hex.EncodeToString(b)
}

// --------------------------------------------------------------------------------------------- //

/*
ParsePeerID accepts a peer id either as 20 raw characters or as 40 hex digits.

Parameters:
  - s: Peer id as given on the command line.

Returns:
  - [20]byte: The peer id.
  - error: Non-nil if s has neither form.
*/
func ParsePeerID(s string) ([20]byte, error) {
	var id [20]byte

	switch len(s) {
	case 20:
		copy(id[:], s)
		return id, nil
	case 40:
		raw, err := hex.DecodeString(s)
		if err != nil {
			return id, fmt.Errorf("peer id: %w", err)
		}

		copy(id[:], raw)
		return id, nil
	default:
		return id, fmt.Errorf("peer id must be 20 bytes or 40 hex digits, got %d characters", len(s))
	}
}

func isHTTP(url string) bool {
	return strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")
}

func isUDP(url string) bool {
	return strings.HasPrefix(url, "udp://")
}

func peerFromHostPort(host string, port int64) (Peer, error) {
	ip := net.ParseIP(host)
	if ip == nil {
		return Peer{}, fmt.Errorf("invalid peer ip %q", host)
	}

	if port < 0 || port > 65535 {
		return Peer{}, fmt.Errorf("invalid peer port %s", strconv.FormatInt(port, 10))
	}

	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}

	return Peer{IP: ip, Port: uint16(port)}, nil
}

// --------------------------------------------------------------------------------------------- //
