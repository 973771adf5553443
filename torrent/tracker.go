package torrent

import (
	"context"
	crand "crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	mrand "math/rand"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"BitTorrentLite/bencode"
)

const (
	udpProtocolID     = 0x41727101980
	udpActionConnect  = 0
	udpActionAnnounce = 1
	udpActionError    = 3
	udpEventStarted   = 2
	udpAttempts       = 3

	maxTrackerResponse = 1 << 20
)

// --------------------------------------------------------------------------------------------- //

/*
BuildAnnounceURL appends the announce query to a tracker URL. info_hash and
peer_id are percent-encoded byte by byte, never as text. Query parameters
already present on the tracker URL are kept in front.

Parameters:
  - trackerBase: Tracker announce URL from the torrent.
  - infoHash: Raw 20-byte info hash.
  - left: Bytes still to download (the file length for a fresh client).
  - cfg: Supplies peer_id and port.

Returns:
  - string: The full announce URL.
  - error: Non-nil if trackerBase is not a valid URL.
*/
func BuildAnnounceURL(trackerBase string, infoHash [20]byte, left int64, cfg Config) (string, error) {
	u, err := url.Parse(trackerBase)
	if err != nil {
		return "", fmt.Errorf("URL parsing error: %w", err)
	}

	params := url.Values{}
	params.Set("port", strconv.Itoa(int(cfg.Port)))
	params.Set("uploaded", "0")
	params.Set("downloaded", "0")
	params.Set("left", strconv.FormatInt(left, 10))
	params.Set("compact", "1")

	query := []string{
		"info_hash=" + escapeBytes(infoHash[:]),
		"peer_id=" + escapeBytes(cfg.PeerID[:]),
		params.Encode(),
	}

	if u.RawQuery != "" {
		query = append([]string{u.RawQuery}, query...)
	}

	u.RawQuery = strings.Join(query, "&")

	return u.String(), nil
}

// escapeBytes percent-encodes every byte outside the RFC 3986 unreserved set.
func escapeBytes(b []byte) string {
	const hexDigits = "0123456789ABCDEF"

	var sb strings.Builder
	for _, c := range b {
		if ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9') ||
			c == '-' || c == '.' || c == '_' || c == '~' {
			sb.WriteByte(c)
			continue
		}

		sb.WriteByte('%')
		sb.WriteByte(hexDigits[c>>4])
		sb.WriteByte(hexDigits[c&0x0f])
	}

	return sb.String()
}

// --------------------------------------------------------------------------------------------- //

/*
ParseTrackerResponse decodes a bencoded announce reply. A "failure reason"
is returned as *TrackerFailure. Trailing bytes after the dictionary are
ignored.

Parameters:
  - body: Response body from the tracker.

Returns:
  - *TrackerResponse: Interval, peers and optional warning.
  - error: *TrackerFailure, or an error wrapping bencode.ErrMalformed / bencode.ErrTruncated.
*/
func ParseTrackerResponse(body []byte) (*TrackerResponse, error) {
	value, err := bencode.Decode(body)
	if err != nil {
		return nil, fmt.Errorf("Decoding tracker response error: %w", err)
	}

	dict, ok := value.(bencode.Dict)
	if !ok {
		return nil, fmt.Errorf("%w: tracker response must be a dictionary, got %s", bencode.ErrMalformed, value.Kind())
	}

	if _, failed := dict.Lookup("failure reason"); failed {
		reason, err := dict.Bytes("failure reason")
		if err != nil {
			return nil, fmt.Errorf("tracker response: %w", err)
		}

		return nil, &TrackerFailure{Reason: string(reason)}
	}

	var response TrackerResponse

	if _, ok := dict.Lookup("interval"); ok {
		response.Interval, err = dict.Int("interval")
		if err != nil {
			return nil, fmt.Errorf("tracker response: %w", err)
		}
	}

	if warning, err := dict.Bytes("warning message"); err == nil {
		response.Warning = string(warning)
	}

	peersValue, ok := dict.Lookup("peers")
	if !ok {
		return nil, fmt.Errorf("tracker response: %w \"peers\"", bencode.ErrMissingKey)
	}

	switch peers := peersValue.(type) {
	case bencode.String:
		response.Peers, err = ParseCompactPeers(peers)
	case bencode.List:
		response.Peers, err = parsePeerDicts(peers)
	case bencode.Integer, bencode.Dict:
		err = fmt.Errorf("%w: peers must be a byte string or a list, got %s", bencode.ErrMalformed, peers.Kind())
	}

	if err != nil {
		return nil, fmt.Errorf("tracker response: %w", err)
	}

	return &response, nil
}

// ParsePeers returns just the peer list of an announce reply.
func ParsePeers(body []byte) ([]Peer, error) {
	response, err := ParseTrackerResponse(body)
	if err != nil {
		return nil, err
	}

	return response.Peers, nil
}

/*
ParseCompactPeers splits a compact peer list into 6-byte records: four bytes
of IPv4 address followed by a big-endian port.
*/
func ParseCompactPeers(peers []byte) ([]Peer, error) {
	if len(peers)%peerRecordLength != 0 {
		return nil, fmt.Errorf("%w: invalid peers length %d (must be multiple of %d)",
			bencode.ErrMalformed, len(peers), peerRecordLength)
	}

	result := make([]Peer, 0, len(peers)/peerRecordLength)
	for i := 0; i < len(peers); i += peerRecordLength {
		ip := net.IPv4(peers[i], peers[i+1], peers[i+2], peers[i+3]).To4()
		port := binary.BigEndian.Uint16(peers[i+4 : i+6])
		result = append(result, Peer{IP: ip, Port: port})
	}

	return result, nil
}

// parsePeerDicts handles the non-compact form: a list of {ip, port} dictionaries.
func parsePeerDicts(list bencode.List) ([]Peer, error) {
	result := make([]Peer, 0, len(list))

	for i, item := range list {
		dict, ok := item.(bencode.Dict)
		if !ok {
			return nil, fmt.Errorf("%w: peer %d is a %s, not a dictionary", bencode.ErrMalformed, i, item.Kind())
		}

		ip, err := dict.Bytes("ip")
		if err != nil {
			return nil, fmt.Errorf("peer %d: %w", i, err)
		}

		port, err := dict.Int("port")
		if err != nil {
			return nil, fmt.Errorf("peer %d: %w", i, err)
		}

		peer, err := peerFromHostPort(string(ip), port)
		if err != nil {
			return nil, fmt.Errorf("%w: peer %d: %v", bencode.ErrMalformed, i, err)
		}

		result = append(result, peer)
	}

	return result, nil
}

// --------------------------------------------------------------------------------------------- //

/*
SendTrackerRequest contacts the torrent's tracker and returns its peer list. The scheme
of the announce URL picks the transport: http(s) or udp.

Parameters:
  - ctx: Cancels the request.
  - cfg: Peer id, port and timeouts.

Returns:
  - *TrackerResponse: Peers and interval.
  - error: Non-nil on transport failure, *TrackerFailure, or a malformed reply.
*/
func (Torrent *TorrentFile) SendTrackerRequest(ctx context.Context, cfg Config) (*TrackerResponse, error) {
	switch {
	case isHTTP(Torrent.Announce):
		announceURL, err := BuildAnnounceURL(Torrent.Announce, Torrent.infoHash, Torrent.Info.Length, cfg)
		if err != nil {
			return nil, err
		}

		client := &http.Client{Timeout: cfg.RequestTimeout}
		return AnnounceHTTP(ctx, client, announceURL)

	case isUDP(Torrent.Announce):
		return AnnounceUDP(ctx, Torrent.Announce, Torrent.infoHash, Torrent.Info.Length, cfg)

	default:
		return nil, fmt.Errorf("unsupported tracker URL %q (HTTP/UDP only)", Torrent.Announce)
	}
}

// AnnounceHTTP performs the GET for a fully built announce URL.
func AnnounceHTTP(ctx context.Context, client *http.Client, announceURL string) (*TrackerResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, announceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("Creating HTTP request error: %w", err)
	}

	req.Header.Set("User-Agent", "BitTorrentLite/1.0")

	log.Printf("[INFO]\tSending HTTP request to %s\n", announceURL)

	response, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Sending request error: %w", err)
	}
	defer response.Body.Close()

	body, err := io.ReadAll(io.LimitReader(response.Body, maxTrackerResponse))
	if err != nil {
		return nil, fmt.Errorf("Reading tracker response error: %w", err)
	}

	if response.StatusCode != http.StatusOK {
		// Some trackers put a bencoded failure reason in a non-200 reply.
		var failure *TrackerFailure
		if _, err := ParseTrackerResponse(body); errors.As(err, &failure) {
			return nil, failure
		}

		return nil, fmt.Errorf("%w: tracker status code %d", ErrProtocol, response.StatusCode)
	}

	return ParseTrackerResponse(body)
}

// --------------------------------------------------------------------------------------------- //

/*
AnnounceUDP runs the UDP tracker exchange: a connect request to obtain a
connection id, then an announce carrying the info hash. The connect step is
retried with a growing deadline. Cancelling ctx closes the socket, so a
pending read returns at once.

Parameters:
  - ctx: Cancels dialing and any pending read.
  - announceURL: udp://host:port/... tracker URL.
  - infoHash: Raw info hash.
  - left: Bytes left to download.
  - cfg: Peer id, port and per-packet timeout.

Returns:
  - *TrackerResponse: Peers and interval.
  - error: Non-nil on network failure, tracker error action or malformed reply.
*/
func AnnounceUDP(ctx context.Context, announceURL string, infoHash [20]byte, left int64, cfg Config) (*TrackerResponse, error) {
	u, err := url.Parse(announceURL)
	if err != nil {
		return nil, fmt.Errorf("Parsing UDP URL error: %w", err)
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "udp", u.Host)
	if err != nil {
		return nil, fmt.Errorf("Dial UDP error: %w", err)
	}
	defer conn.Close()

	// Unblock a pending Read as soon as ctx is done.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	transactionID, err := generateTransactionID()
	if err != nil {
		return nil, err
	}

	connectReq := make([]byte, 16)
	binary.BigEndian.PutUint64(connectReq[0:8], udpProtocolID)
	binary.BigEndian.PutUint32(connectReq[8:12], udpActionConnect)
	binary.BigEndian.PutUint32(connectReq[12:16], transactionID)

	log.Printf("[INFO]\tSending connect to %s, transaction_id: %d\n", u.Host, transactionID)

	var connectionID uint64
	connected := false

	for attempt := 0; attempt < udpAttempts && !connected; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		conn.SetDeadline(time.Now().Add(cfg.DialTimeout + time.Duration(attempt*2)*time.Second))

		if _, err := conn.Write(connectReq); err != nil {
			log.Printf("[FAIL]\tAttempt %d failed to send connect: %v\n", attempt+1, err)
			continue
		}

		resp := make([]byte, 16)
		n, err := conn.Read(resp)
		if err != nil {
			log.Printf("[FAIL]\tAttempt %d failed to read connect response: %v\n", attempt+1, err)
			continue
		}

		if n < 16 {
			log.Printf("[FAIL]\tAttempt %d invalid connect response length: %d\n", attempt+1, n)
			continue
		}

		if action := binary.BigEndian.Uint32(resp[0:4]); action != udpActionConnect {
			return nil, fmt.Errorf("%w: invalid connect action %d", ErrProtocol, action)
		}

		if binary.BigEndian.Uint32(resp[4:8]) != transactionID {
			return nil, fmt.Errorf("%w: transaction id mismatch", ErrProtocol)
		}

		connectionID = binary.BigEndian.Uint64(resp[8:16])
		connected = true
	}

	if !connected {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		return nil, fmt.Errorf("no connect response after %d attempts", udpAttempts)
	}

	announceReq := createAnnounceRequest(connectionID, transactionID, infoHash, cfg.PeerID, left, mrand.Uint32(), cfg.Port)

	conn.SetDeadline(time.Now().Add(cfg.DialTimeout))

	if _, err := conn.Write(announceReq); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		return nil, fmt.Errorf("Sending announce request error: %w", err)
	}

	resp := make([]byte, 4096)
	n, err := conn.Read(resp)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		return nil, fmt.Errorf("Reading announce response error: %w", err)
	}

	return parseUDPAnnounceResponse(resp[:n], transactionID)
}

/*
createAnnounceRequest lays out the 98-byte UDP announce packet:
connection id, action, transaction id, info hash, peer id, downloaded, left,
uploaded, event, ip, key, num_want, port.
*/
func createAnnounceRequest(connectionID uint64, transactionID uint32, infoHash, peerID [20]byte,
	left int64, key uint32, port uint16) []byte {

	announceReq := make([]byte, 98)

	binary.BigEndian.PutUint64(announceReq[0:8], connectionID)
	binary.BigEndian.PutUint32(announceReq[8:12], udpActionAnnounce)
	binary.BigEndian.PutUint32(announceReq[12:16], transactionID)

	copy(announceReq[16:36], infoHash[:])
	copy(announceReq[36:56], peerID[:])

	binary.BigEndian.PutUint64(announceReq[56:64], 0)
	binary.BigEndian.PutUint64(announceReq[64:72], uint64(left))
	binary.BigEndian.PutUint64(announceReq[72:80], 0)

	binary.BigEndian.PutUint32(announceReq[80:84], udpEventStarted)
	binary.BigEndian.PutUint32(announceReq[84:88], 0)
	binary.BigEndian.PutUint32(announceReq[88:92], key)
	binary.BigEndian.PutUint32(announceReq[92:96], ^uint32(0))
	binary.BigEndian.PutUint16(announceReq[96:98], port)

	return announceReq
}

func parseUDPAnnounceResponse(resp []byte, transactionID uint32) (*TrackerResponse, error) {
	if len(resp) < 8 {
		return nil, fmt.Errorf("%w: announce response of %d bytes", ErrProtocol, len(resp))
	}

	action := binary.BigEndian.Uint32(resp[0:4])

	if binary.BigEndian.Uint32(resp[4:8]) != transactionID {
		return nil, fmt.Errorf("%w: transaction id mismatch", ErrProtocol)
	}

	if action == udpActionError {
		return nil, &TrackerFailure{Reason: string(resp[8:])}
	}

	if action != udpActionAnnounce {
		return nil, fmt.Errorf("%w: invalid announce action %d", ErrProtocol, action)
	}

	if len(resp) < 20 {
		return nil, fmt.Errorf("%w: announce response of %d bytes", ErrProtocol, len(resp))
	}

	interval := int64(binary.BigEndian.Uint32(resp[8:12]))
	leechers := binary.BigEndian.Uint32(resp[12:16])
	seeders := binary.BigEndian.Uint32(resp[16:20])

	peers, err := ParseCompactPeers(resp[20:])
	if err != nil {
		return nil, err
	}

	log.Printf("[INFO]\tReceived %d peers, leechers: %d, seeders: %d\n", len(peers), leechers, seeders)

	return &TrackerResponse{Interval: interval, Peers: peers}, nil
}

func generateTransactionID() (uint32, error) {
	var buf [4]byte

	if _, err := crand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("Generating transaction ID error: %w", err)
	}

	return binary.BigEndian.Uint32(buf[:]), nil
}

// --------------------------------------------------------------------------------------------- //
