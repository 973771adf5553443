package torrent

import (
	"errors"
	"fmt"
	"net"
	"strconv"

	"BitTorrentLite/bencode"
)

const (
	// HashLength is the size of a SHA-1 digest: one piece hash, the info hash, a peer id.
	HashLength = 20

	peerRecordLength = 6

	// Upper bounds accepted for "length" and "piece length". Their sum stays
	// far below the int64 range, so piece arithmetic cannot overflow.
	MaxLength      = 1 << 50
	MaxPieceLength = 1 << 30
)

// ErrProtocol marks a refusal or violation by the remote side (tracker or peer),
// as opposed to bytes that are not valid bencode.
var ErrProtocol = errors.New("protocol error")

// --------------------------------------------------------------------------------------------- //

/*
TorrentFile is the read-only view over a decoded .torrent file.

Fields:
  - Announce: Tracker URL.
  - Info: Fields extracted from the info dictionary.
  - RawInfo: The info dictionary exactly as decoded; the info hash is computed from it.
  - infoHash: SHA-1 over the canonical encoding of RawInfo, computed once in Parse.
*/
type TorrentFile struct {
	Announce string
	Info     TorrentInfo
	RawInfo  bencode.Dict

	infoHash [20]byte
}

type TorrentInfo struct {
	Name        string
	Length      int64
	PieceLength int64
	Pieces      []byte
}

// Peer is one address from a tracker's peer list.
type Peer struct {
	IP   net.IP
	Port uint16
}

func (p Peer) String() string {
	return net.JoinHostPort(p.IP.String(), strconv.Itoa(int(p.Port)))
}

/*
TrackerResponse is a successful announce reply.

Fields:
  - Interval: Seconds the tracker asks clients to wait between announces (0 if absent).
  - Peers: Peer addresses in tracker order.
  - Warning: Optional "warning message" from the tracker.
*/
type TrackerResponse struct {
	Interval int64
	Peers    []Peer
	Warning  string
}

// TrackerFailure is returned when the tracker answers with a "failure reason".
type TrackerFailure struct {
	Reason string
}

func (e *TrackerFailure) Error() string {
	return fmt.Sprintf("tracker failure: %s", e.Reason)
}

func (e *TrackerFailure) Unwrap() error {
	return ErrProtocol
}

// --------------------------------------------------------------------------------------------- //

// InfoHash returns the SHA-1 of the canonical encoding of the raw info dictionary.
func (Torrent *TorrentFile) InfoHash() [20]byte {
	return Torrent.infoHash
}

func (Torrent *TorrentFile) InfoHashHex() string {
	return ToHex(Torrent.infoHash[:])
}

/*
PieceHashes splits the concatenated pieces field into 20-byte digests, in
file order.

Returns:
  - [][20]byte: One digest per piece.
  - error: Non-nil if the pieces field is not a multiple of 20 bytes.
*/
func (Torrent *TorrentFile) PieceHashes() ([][20]byte, error) {
	pieces := Torrent.Info.Pieces
	if len(pieces)%HashLength != 0 {
		return nil, fmt.Errorf("%w: pieces length %d is not a multiple of %d",
			bencode.ErrMalformed, len(pieces), HashLength)
	}

	hashes := make([][20]byte, len(pieces)/HashLength)
	for i := range hashes {
		copy(hashes[i][:], pieces[i*HashLength:(i+1)*HashLength])
	}

	return hashes, nil
}

func (Torrent *TorrentFile) NumPieces() int {
	return len(Torrent.Info.Pieces) / HashLength
}

// PieceSize returns the length of piece index; only the last piece may be shorter.
// Indexes outside the file give 0.
func (Torrent *TorrentFile) PieceSize(index int) int64 {
	if index < 0 || int64(index) >= Torrent.expectedPieces() {
		return 0
	}

	begin := int64(index) * Torrent.Info.PieceLength
	end := begin + Torrent.Info.PieceLength

	if end > Torrent.Info.Length {
		end = Torrent.Info.Length
	}

	return end - begin
}

// expectedPieces is the piece count implied by length and piece length.
func (Torrent *TorrentFile) expectedPieces() int64 {
	if Torrent.Info.PieceLength <= 0 {
		return 0
	}

	return (Torrent.Info.Length + Torrent.Info.PieceLength - 1) / Torrent.Info.PieceLength
}

// --------------------------------------------------------------------------------------------- //
