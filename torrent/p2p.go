package torrent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"time"

	"BitTorrentLite/bencode"
)

const (
	protocolName    = "BitTorrent protocol"
	HandshakeLength = 1 + len(protocolName) + 8 + HashLength + HashLength
)

// --------------------------------------------------------------------------------------------- //

/*
Handshake represents the structure of a BitTorrent protocol handshake message.
It is used to initiate a connection with a peer and verify compatibility.

Fields:
  - ProtocolNameLength: Length of the protocol name (19 for "BitTorrent protocol").
  - Protocol: Fixed-size array containing the protocol name.
  - Reserved: Reserved bytes for protocol extensions, all zero here.
  - InfoHash: 20-byte SHA-1 hash of the torrent's info dictionary.
  - PeerID: 20-byte unique identifier for the peer.
*/
type Handshake struct {
	ProtocolNameLength byte
	Protocol           [19]byte
	Reserved           [8]byte
	InfoHash           [20]byte
	PeerID             [20]byte
}

// Bytes lays the handshake out in wire order.
func (hs Handshake) Bytes() []byte {
	buf := make([]byte, 0, HandshakeLength)

	buf = append(buf, hs.ProtocolNameLength)
	buf = append(buf, hs.Protocol[:]...)
	buf = append(buf, hs.Reserved[:]...)
	buf = append(buf, hs.InfoHash[:]...)
	buf = append(buf, hs.PeerID[:]...)

	return buf
}

// --------------------------------------------------------------------------------------------- //

/*
BuildHandshake assembles the 68-byte handshake: length-prefixed protocol
name, eight zero bytes, info hash, peer id.
*/
func BuildHandshake(infoHash, peerID [20]byte) []byte {
	hs := Handshake{
		ProtocolNameLength: byte(len(protocolName)),
		InfoHash:           infoHash,
		PeerID:             peerID,
	}
	copy(hs.Protocol[:], protocolName)

	return hs.Bytes()
}

/*
ReadHandshake splits a 68-byte handshake into its fields.

Returns:
  - Handshake: The decoded message.
  - error: Wraps ErrProtocol if b is not exactly 68 bytes.
*/
func ReadHandshake(b []byte) (Handshake, error) {
	var hs Handshake

	if len(b) != HandshakeLength {
		return hs, fmt.Errorf("%w: handshake must be %d bytes, got %d", ErrProtocol, HandshakeLength, len(b))
	}

	hs.ProtocolNameLength = b[0]
	copy(hs.Protocol[:], b[1:20])
	copy(hs.Reserved[:], b[20:28])
	copy(hs.InfoHash[:], b[28:48])
	copy(hs.PeerID[:], b[48:68])

	return hs, nil
}

// ParseHandshakeResponse returns the remote peer id from bytes 48..67.
func ParseHandshakeResponse(b []byte) ([20]byte, error) {
	hs, err := ReadHandshake(b)
	if err != nil {
		return [20]byte{}, err
	}

	return hs.PeerID, nil
}

// --------------------------------------------------------------------------------------------- //

/*
PerformHandshake executes the BitTorrent handshake with a specified peer.
It establishes a TCP connection, sends a handshake message, and verifies the response.

Parameters:
  - ctx: Cancels dialing and the exchange itself.
  - addr: Peer address as host:port.
  - cfg: Our peer id and the dial/read/write timeout.

Returns:
  - [20]byte: Remote peer's PeerID if the handshake is successful.
  - error: Non-nil if connection, handshake sending, or response validation fails.
*/
func (Torrent *TorrentFile) PerformHandshake(ctx context.Context, addr string, cfg Config) ([20]byte, error) {
	dialer := net.Dialer{Timeout: cfg.DialTimeout}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return [20]byte{}, fmt.Errorf("Connecting to peer failed: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if cfg.DialTimeout > 0 {
		conn.SetDeadline(time.Now().Add(cfg.DialTimeout))
	}

	log.Printf("[INFO]\tSending handshake to %s: InfoHash=%x, PeerID=%x\n", addr, Torrent.infoHash, cfg.PeerID)

	remotePeerID, err := ExchangeHandshake(conn, Torrent.infoHash, cfg.PeerID)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return [20]byte{}, ctxErr
		}

		return [20]byte{}, err
	}

	return remotePeerID, nil
}

/*
ExchangeHandshake writes our handshake to rw and reads the peer's reply.
The reply must be a full 68 bytes announcing the same protocol and info hash.

Parameters:
  - rw: An open connection to the peer.
  - infoHash: Torrent we are asking about.
  - peerID: Our peer id.

Returns:
  - [20]byte: The remote peer id.
  - error: Wraps ErrProtocol on a short read or a mismatching reply.
*/
func ExchangeHandshake(rw io.ReadWriter, infoHash, peerID [20]byte) ([20]byte, error) {
	if _, err := rw.Write(BuildHandshake(infoHash, peerID)); err != nil {
		return [20]byte{}, fmt.Errorf("Sending handshake error: %w", err)
	}

	response := make([]byte, HandshakeLength)

	n, err := io.ReadFull(rw, response)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return [20]byte{}, fmt.Errorf("%w: short handshake read (%d of %d bytes): %w",
				ErrProtocol, n, HandshakeLength, bencode.ErrTruncated)
		}

		return [20]byte{}, fmt.Errorf("Reading handshake error: %w", err)
	}

	hs, err := ReadHandshake(response)
	if err != nil {
		return [20]byte{}, err
	}

	if int(hs.ProtocolNameLength) != len(protocolName) || string(hs.Protocol[:]) != protocolName {
		return [20]byte{}, fmt.Errorf("%w: invalid protocol in handshake", ErrProtocol)
	}

	if !bytes.Equal(hs.InfoHash[:], infoHash[:]) {
		return [20]byte{}, fmt.Errorf("%w: info hash mismatch in handshake", ErrProtocol)
	}

	log.Printf("[INFO]\tReceived handshake: PeerID=%x\n", hs.PeerID)

	return hs.PeerID, nil
}

// --------------------------------------------------------------------------------------------- //
