package torrent

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultPort           = 6881
	DefaultDialTimeout    = 5 * time.Second
	DefaultRequestTimeout = 15 * time.Second

	peerIDPrefix = "-BL0001-"
)

// --------------------------------------------------------------------------------------------- //

/*
Config carries the client identity and network limits used when talking to
trackers and peers.

Fields:
  - PeerID: 20-byte client identifier sent to trackers and peers.
  - Port: Listening port advertised to the tracker.
  - DialTimeout: Limit for opening a peer or UDP tracker connection and for each read/write on it.
  - RequestTimeout: Limit for a whole HTTP tracker request.
*/
type Config struct {
	PeerID         [20]byte
	Port           uint16
	DialTimeout    time.Duration
	RequestTimeout time.Duration
}

// DefaultConfig returns a config with a freshly generated peer id.
func DefaultConfig() (Config, error) {
	peerID, err := GeneratePeerID()
	if err != nil {
		return Config{}, err
	}

	return Config{
		PeerID:         peerID,
		Port:           DefaultPort,
		DialTimeout:    DefaultDialTimeout,
		RequestTimeout: DefaultRequestTimeout,
	}, nil
}

/*
GeneratePeerID builds an Azureus-style peer id: the client prefix followed by
12 characters taken from a random UUID.

Returns:
  - [20]byte: The peer id.
  - error: Non-nil if the random source fails.
*/
func GeneratePeerID() ([20]byte, error) {
	var peerID [20]byte

	id, err := uuid.NewRandom()
	if err != nil {
		return peerID, fmt.Errorf("Generating peer id error: %w", err)
	}

	const chars = "0123456789abcdefghijklmnopqrstuvwxyz"

	n := copy(peerID[:], peerIDPrefix)
	for i := n; i < len(peerID); i++ {
		peerID[i] = chars[int(id[i-n])%len(chars)]
	}

	return peerID, nil
}

// --------------------------------------------------------------------------------------------- //
