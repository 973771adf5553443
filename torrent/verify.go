package torrent

import (
	"crypto/sha1"
	"errors"
	"fmt"
	"io"
)

/*
VerifyPieces hashes a local copy of the torrent's content piece by piece and
compares each digest with the one stored in the metadata.

Parameters:
  - r: The file content, read sequentially.
  - progress: Receives every byte hashed; pass io.Discard when no progress is shown.

Returns:
  - []int: Indexes of pieces whose digest does not match, in file order.
  - error: Non-nil if the metadata is inconsistent or r ends early.
*/
func (Torrent *TorrentFile) VerifyPieces(r io.Reader, progress io.Writer) ([]int, error) {
	hashes, err := Torrent.PieceHashes()
	if err != nil {
		return nil, err
	}

	expected := Torrent.expectedPieces()
	if int64(len(hashes)) != expected {
		return nil, fmt.Errorf("torrent lists %d piece hashes, length %d needs %d", len(hashes), Torrent.Info.Length, expected)
	}

	var mismatched []int
	h := sha1.New()

	for i, want := range hashes {
		h.Reset()

		size := Torrent.PieceSize(i)
		if _, err := io.CopyN(io.MultiWriter(h, progress), r, size); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("piece %d: %w", i, io.ErrUnexpectedEOF)
			}

			return nil, fmt.Errorf("piece %d: %w", i, err)
		}

		var got [20]byte
		copy(got[:], h.Sum(nil))

		if got != want {
			mismatched = append(mismatched, i)
		}
	}

	return mismatched, nil
}
