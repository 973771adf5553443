package torrent

import (
	"fmt"
	"os"

	"BitTorrentLite/bencode"
)

// --------------------------------------------------------------------------------------------- //

/*
Parse interprets a bencoded .torrent file and computes its info hash.
The info dictionary is kept as decoded and re-encoded canonically for the
hash, so keys this package does not know about still count.

Parameters:
  - data: Contents of the .torrent file.

Returns:
  - *TorrentFile: The parsed metadata.
  - error: Wraps bencode.ErrMalformed if the file is not valid bencode or misses a required key.
*/
func Parse(data []byte) (*TorrentFile, error) {
	value, err := bencode.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("Decoding error: %w", err)
	}

	root, ok := value.(bencode.Dict)
	if !ok {
		return nil, fmt.Errorf("%w: torrent must be a dictionary, got %s", bencode.ErrMalformed, value.Kind())
	}

	announce, err := root.Bytes("announce")
	if err != nil {
		return nil, fmt.Errorf("torrent: %w", err)
	}

	rawInfo, err := root.Dict("info")
	if err != nil {
		return nil, fmt.Errorf("torrent: %w", err)
	}

	info, err := parseInfo(rawInfo)
	if err != nil {
		return nil, fmt.Errorf("torrent info: %w", err)
	}

	Torrent := &TorrentFile{
		Announce: string(announce),
		Info:     info,
		RawInfo:  rawInfo,
	}

	Torrent.infoHash = SHA1(bencode.Encode(rawInfo))

	return Torrent, nil
}

// ParseFile reads and parses a .torrent file from disk.
func ParseFile(path string) (*TorrentFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("Cannot read %q: %w", path, err)
	}

	return Parse(data)
}

// --------------------------------------------------------------------------------------------- //

func parseInfo(raw bencode.Dict) (TorrentInfo, error) {
	var info TorrentInfo

	if _, ok := raw.Lookup("length"); !ok {
		if _, multi := raw.Lookup("files"); multi {
			return info, fmt.Errorf("%w: multi-file torrents are not supported", bencode.ErrMalformed)
		}
	}

	length, err := raw.Int("length")
	if err != nil {
		return info, err
	}

	pieceLength, err := raw.Int("piece length")
	if err != nil {
		return info, err
	}

	pieces, err := raw.Bytes("pieces")
	if err != nil {
		return info, err
	}

	if length < 0 || length > MaxLength {
		return info, fmt.Errorf("%w: length %d out of range [0, %d]", bencode.ErrMalformed, length, int64(MaxLength))
	}

	if pieceLength <= 0 || pieceLength > MaxPieceLength {
		return info, fmt.Errorf("%w: piece length %d out of range [1, %d]", bencode.ErrMalformed, pieceLength, int64(MaxPieceLength))
	}

	// name is optional for this client.
	if name, err := raw.Bytes("name"); err == nil {
		info.Name = string(name)
	}

	info.Length = length
	info.PieceLength = pieceLength
	info.Pieces = pieces

	return info, nil
}

// --------------------------------------------------------------------------------------------- //
