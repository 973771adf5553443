package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"BitTorrentLite/bencode"
	"BitTorrentLite/torrent"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cfg, err := torrent.DefaultConfig()
	if err != nil {
		t.Fatalf("DefaultConfig: %v", err)
	}

	var out bytes.Buffer
	err = run(context.Background(), &out, args, cfg)

	return out.String(), err
}

func TestDecodeCommand(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"5:hello", `"hello"`},
		{"i-52e", `-52`},
		{"l5:helloi52ee", `["hello",52]`},
		{"d3:foo3:bar5:helloi52ee", `{"foo":"bar","hello":52}`},
		{"le", `[]`},
		{"de", `{}`},
		{"4:<&>x", `"<&>x"`},
	}

	for _, tt := range tests {
		out, err := runCommand(t, "decode", tt.input)
		if err != nil {
			t.Errorf("decode %q: %v", tt.input, err)
			continue
		}

		if strings.TrimSpace(out) != tt.want {
			t.Errorf("decode %q = %s, want %s", tt.input, out, tt.want)
		}
	}

	if _, err := runCommand(t, "decode", "5:ab"); !errors.Is(err, bencode.ErrTruncated) {
		t.Errorf("decode of truncated input: %v", err)
	}
}

func TestInfoCommand(t *testing.T) {
	pieces := bytes.Repeat([]byte{0xaa}, 20)
	pieces = append(pieces, bytes.Repeat([]byte{0x01}, 20)...)

	data := fmt.Sprintf("d8:announce30:http://127.0.0.1:8080/announce4:infod6:lengthi20000e4:name6:sample12:piece lengthi16384e6:pieces40:%see", pieces)

	path := filepath.Join(t.TempDir(), "sample.torrent")
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	meta, err := torrent.ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}

	out, err := runCommand(t, "info", path)
	if err != nil {
		t.Fatalf("info: %v", err)
	}

	want := strings.Join([]string{
		"Tracker URL: http://127.0.0.1:8080/announce",
		"Length: 20000",
		"Info Hash: " + meta.InfoHashHex(),
		"Piece Length: 16384",
		"Piece Hashes:",
		strings.Repeat("aa", 20),
		strings.Repeat("01", 20),
	}, "\n") + "\n"

	if out != want {
		t.Errorf("info output:\n%s\nwant:\n%s", out, want)
	}
}

func TestUnknownCommand(t *testing.T) {
	out, err := runCommand(t, "seed", "x")
	if !errors.Is(err, errUnknownCommand) {
		t.Errorf("error = %v", err)
	}

	if out != "Unknown command: seed\n" {
		t.Errorf("output = %q", out)
	}
}

func TestUnknownCommandWithoutArguments(t *testing.T) {
	out, err := runCommand(t, "seed")
	if !errors.Is(err, errUnknownCommand) {
		t.Errorf("error = %v", err)
	}

	if out != "Unknown command: seed\n" {
		t.Errorf("output = %q", out)
	}
}

func TestCommandsNeedArguments(t *testing.T) {
	for _, command := range []string{"decode", "info", "peers"} {
		if _, err := runCommand(t, command); err == nil {
			t.Errorf("%s without arguments succeeded", command)
		}
	}

	for _, command := range []string{"handshake", "verify"} {
		if _, err := runCommand(t, command, "file.torrent"); err == nil {
			t.Errorf("%s with one argument succeeded", command)
		}
	}
}

func TestParseArgs(t *testing.T) {
	cfg, args, verbose, err := parseArgs([]string{
		"-v", "-port", "7000", "-timeout", "2s", "-tracker-timeout", "9s",
		"-peer-id", "-XX0000-abcdefghijkl", "peers", "a.torrent",
	}, io.Discard)
	if err != nil {
		t.Fatalf("parseArgs: %v", err)
	}

	if !verbose {
		t.Errorf("verbose not set")
	}
	if strings.Join(args, " ") != "peers a.torrent" {
		t.Errorf("args = %v", args)
	}
	if cfg.Port != 7000 {
		t.Errorf("Port = %d", cfg.Port)
	}
	if cfg.DialTimeout != 2*time.Second {
		t.Errorf("DialTimeout = %v", cfg.DialTimeout)
	}
	if cfg.RequestTimeout != 9*time.Second {
		t.Errorf("RequestTimeout = %v", cfg.RequestTimeout)
	}
	if string(cfg.PeerID[:]) != "-XX0000-abcdefghijkl" {
		t.Errorf("PeerID = %q", cfg.PeerID[:])
	}
}

func TestParseArgsDefaultsAndErrors(t *testing.T) {
	cfg, args, verbose, err := parseArgs([]string{"seed"}, io.Discard)
	if err != nil {
		t.Fatalf("parseArgs: %v", err)
	}

	if verbose || len(args) != 1 || args[0] != "seed" {
		t.Errorf("verbose = %v, args = %v", verbose, args)
	}
	if cfg.Port != torrent.DefaultPort || cfg.DialTimeout != torrent.DefaultDialTimeout ||
		cfg.RequestTimeout != torrent.DefaultRequestTimeout {
		t.Errorf("defaults not applied: %+v", cfg)
	}

	if _, _, _, err := parseArgs(nil, io.Discard); !errors.Is(err, errMissingCommand) {
		t.Errorf("no command: error = %v", err)
	}
	if _, _, _, err := parseArgs([]string{"-port", "70000", "info", "x"}, io.Discard); err == nil {
		t.Errorf("out of range port accepted")
	}
	if _, _, _, err := parseArgs([]string{"-peer-id", "short", "info", "x"}, io.Discard); err == nil {
		t.Errorf("short peer id accepted")
	}
}
