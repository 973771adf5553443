package torrent_test

import (
	"bytes"
	"crypto/sha1"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	jackpal "github.com/jackpal/bencode-go"
	zeebo "github.com/zeebo/bencode"

	"BitTorrentLite/bencode"
	"BitTorrentLite/torrent"
)

const announce = "http://tracker.example"

func samplePieces() []byte {
	pieces := make([]byte, 20)
	for i := range pieces {
		pieces[i] = byte(i)
	}

	return pieces
}

// buildTorrent writes a single-file torrent with the info keys in the given raw form.
func buildTorrent(announce string, info string) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "d8:announce%d:%s4:info", len(announce), announce)
	b.WriteString(info)
	b.WriteString("e")

	return b.Bytes()
}

func sampleInfo() string {
	return "d6:lengthi123456e12:piece lengthi16384e6:pieces20:" + string(samplePieces()) + "e"
}

func TestParseSingleFile(t *testing.T) {
	meta, err := torrent.Parse(buildTorrent(announce, sampleInfo()))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if meta.Announce != announce {
		t.Errorf("Announce = %q, want %q", meta.Announce, announce)
	}
	if meta.Info.Length != 123456 {
		t.Errorf("Length = %d, want 123456", meta.Info.Length)
	}
	if meta.Info.PieceLength != 16384 {
		t.Errorf("PieceLength = %d, want 16384", meta.Info.PieceLength)
	}

	hashes, err := meta.PieceHashes()
	if err != nil {
		t.Fatalf("PieceHashes: %v", err)
	}
	if len(hashes) != 1 {
		t.Fatalf("got %d piece hashes, want 1", len(hashes))
	}

	hexHash := torrent.ToHex(hashes[0][:])
	if len(hexHash) != 40 || hexHash != "000102030405060708090a0b0c0d0e0f10111213" {
		t.Errorf("piece hash = %q", hexHash)
	}
}

func TestInfoHashMatchesReference(t *testing.T) {
	data := buildTorrent(announce, sampleInfo())

	meta, err := torrent.Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	// zeebo/bencode hands back the info dictionary exactly as it appears in the file.
	var raw struct {
		Info zeebo.RawMessage `bencode:"info"`
	}
	if err := zeebo.DecodeBytes(data, &raw); err != nil {
		t.Fatalf("reference decode: %v", err)
	}

	want := sha1.Sum(raw.Info)
	if got := meta.InfoHash(); got != want {
		t.Errorf("InfoHash = %x, reference = %x", got, want)
	}

	if got := meta.InfoHashHex(); got != "d84ba6f0cd04dd8064ac3668bd17b2c419b98dad" {
		t.Errorf("InfoHashHex = %s", got)
	}
}

func TestInfoHashIsDeterministic(t *testing.T) {
	data := buildTorrent(announce, sampleInfo())

	meta1, err := torrent.Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	meta2, err := torrent.Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if meta1.InfoHash() != meta2.InfoHash() {
		t.Errorf("info hash differs: %x vs %x", meta1.InfoHash(), meta2.InfoHash())
	}

	if meta1.InfoHash() != sha1.Sum(bencode.Encode(meta1.RawInfo)) {
		t.Errorf("cached info hash does not match a fresh computation")
	}
}

func TestInfoHashKeepsUnknownKeysAndCanonicalOrder(t *testing.T) {
	// Unsorted keys plus fields this client never reads.
	info := "d12:piece lengthi16384e4:name8:file.bin7:privatei1e6:lengthi123456e6:pieces20:" +
		string(samplePieces()) + "1:\xffli7ee" + "e"

	meta, err := torrent.Parse(buildTorrent(announce, info))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if meta.Info.Name != "file.bin" {
		t.Errorf("Name = %q", meta.Info.Name)
	}

	reference, err := jackpal.Decode(bytes.NewReader([]byte(info)))
	if err != nil {
		t.Fatalf("reference Decode: %v", err)
	}

	var canonical bytes.Buffer
	if err := jackpal.Marshal(&canonical, reference); err != nil {
		t.Fatalf("reference Marshal: %v", err)
	}

	if got, want := meta.InfoHash(), sha1.Sum(canonical.Bytes()); got != want {
		t.Errorf("InfoHash = %x, reference = %x", got, want)
	}

	if meta.InfoHash() == sha1.Sum([]byte(sampleInfo())) {
		t.Errorf("extra info keys did not change the hash")
	}
}

func TestParseErrors(t *testing.T) {
	pieces := string(samplePieces())

	tests := []struct {
		name string
		data string
		want error
	}{
		{"not bencode", "x", bencode.ErrMalformed},
		{"truncated", "d8:announce30:http", bencode.ErrTruncated},
		{"top level list", "le", bencode.ErrMalformed},
		{"missing announce", "d4:infod6:lengthi1e12:piece lengthi1e6:pieces0:ee", bencode.ErrMissingKey},
		{"missing info", "d8:announce1:ae", bencode.ErrMissingKey},
		{"announce wrong type", "d8:announcei1e4:infodee", bencode.ErrMalformed},
		{"info wrong type", "d8:announce1:a4:info1:xe", bencode.ErrMalformed},
		{"missing length", "d8:announce1:a4:infod12:piece lengthi1e6:pieces20:" + pieces + "ee", bencode.ErrMissingKey},
		{"missing pieces", "d8:announce1:a4:infod6:lengthi1e12:piece lengthi1eee", bencode.ErrMissingKey},
		{"pieces wrong type", "d8:announce1:a4:infod6:lengthi1e12:piece lengthi1e6:piecesi0eee", bencode.ErrMalformed},
		{"zero piece length", "d8:announce1:a4:infod6:lengthi1e12:piece lengthi0e6:pieces20:" + pieces + "ee", bencode.ErrMalformed},
		{"multi-file", "d8:announce1:a4:infod5:filesle12:piece lengthi1e6:pieces0:ee", bencode.ErrMalformed},
		{"negative length", "d8:announce1:a4:infod6:lengthi-1e12:piece lengthi1e6:pieces0:ee", bencode.ErrMalformed},
		{"length too large", "d8:announce1:a4:infod6:lengthi9223372036854775807e12:piece lengthi16384e6:pieces0:ee", bencode.ErrMalformed},
		{"piece length too large", "d8:announce1:a4:infod6:lengthi1e12:piece lengthi9223372036854775807e6:pieces20:" + pieces + "ee", bencode.ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta, err := torrent.Parse([]byte(tt.data))
			if err == nil {
				t.Fatalf("Parse succeeded: %+v", meta)
			}

			if !errors.Is(err, tt.want) {
				t.Errorf("Parse error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestPieceHashesRejectsBadLength(t *testing.T) {
	meta, err := torrent.Parse(buildTorrent(announce, "d6:lengthi10e12:piece lengthi16384e6:pieces19:"+string(samplePieces()[:19])+"e"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if _, err := meta.PieceHashes(); !errors.Is(err, bencode.ErrMalformed) {
		t.Errorf("PieceHashes error = %v, want ErrMalformed", err)
	}
}

func TestPieceSize(t *testing.T) {
	pieces := bytes.Repeat([]byte{1}, 60)
	info := fmt.Sprintf("d6:lengthi40000e12:piece lengthi16384e6:pieces%d:%se", len(pieces), pieces)

	meta, err := torrent.Parse(buildTorrent(announce, info))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if meta.NumPieces() != 3 {
		t.Fatalf("NumPieces = %d, want 3", meta.NumPieces())
	}

	for i, want := range []int64{16384, 16384, 7232} {
		if got := meta.PieceSize(i); got != want {
			t.Errorf("PieceSize(%d) = %d, want %d", i, got, want)
		}
	}

	for _, index := range []int{-1, 3, math.MaxInt} {
		if got := meta.PieceSize(index); got != 0 {
			t.Errorf("PieceSize(%d) = %d, want 0", index, got)
		}
	}
}

func TestParseAcceptsLengthBounds(t *testing.T) {
	info := fmt.Sprintf("d6:lengthi%de12:piece lengthi%de6:pieces0:e", int64(torrent.MaxLength), int64(torrent.MaxPieceLength))

	meta, err := torrent.Parse(buildTorrent(announce, info))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if meta.Info.Length != torrent.MaxLength || meta.Info.PieceLength != torrent.MaxPieceLength {
		t.Errorf("Info = %+v", meta.Info)
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.torrent")
	if err := os.WriteFile(path, buildTorrent(announce, sampleInfo()), 0o644); err != nil {
		t.Fatal(err)
	}

	meta, err := torrent.ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if meta.Info.Length != 123456 {
		t.Errorf("Length = %d", meta.Info.Length)
	}

	if _, err := torrent.ParseFile(filepath.Join(t.TempDir(), "missing.torrent")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("ParseFile of missing file: %v", err)
	}
}

func TestHashingUtility(t *testing.T) {
	sum := torrent.SHA1([]byte("abc"))
	if got := torrent.ToHex(sum[:]); got != "a9993e364706816aba3e25717850c26c9cd0d89d" {
		t.Errorf("SHA1(abc) = %s", got)
	}

	if got := torrent.ToHex([]byte{0x00, 0xAB, 0xff}); got != "00abff" {
		t.Errorf("ToHex = %s", got)
	}

	if got := torrent.ToHex(nil); got != "" {
		t.Errorf("ToHex(nil) = %q", got)
	}
}
