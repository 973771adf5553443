package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/mitchellh/colorstring"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"BitTorrentLite/bencode"
	"BitTorrentLite/torrent"
)

const usage = `Usage: ./BitTorrentLite [flags] <command> <args>

Commands:
  decode <bencoded>                  print a bencoded value as JSON
  info <file.torrent>                print tracker, length, info hash and piece hashes
  peers <file.torrent>               ask the tracker for peers
  handshake <file.torrent> <ip:port> handshake with one peer and print its id
  verify <file.torrent> <data-file>  check a local copy against the piece hashes

Flags:
`

func main() {
	cfg, args, verbose, err := parseArgs(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fail(err)
	}

	log.SetOutput(io.Discard)
	if verbose {
		log.SetOutput(os.Stderr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Stdout, args, cfg); err != nil {
		stop()
		fail(err)
	}
}

/*
parseArgs reads the command-line flags into a torrent.Config.

Returns:
  - torrent.Config: Defaults with the flag overrides applied.
  - []string: The command and its arguments.
  - bool: Whether -v was given.
  - error: Non-nil on a bad flag value or a missing command.
*/
func parseArgs(arguments []string, output io.Writer) (torrent.Config, []string, bool, error) {
	fs := flag.NewFlagSet("BitTorrentLite", flag.ContinueOnError)
	fs.SetOutput(output)

	verbose := fs.Bool("v", false, "log progress to stderr")
	peerID := fs.String("peer-id", "", "peer id: 20 characters or 40 hex digits (random by default)")
	port := fs.Uint("port", torrent.DefaultPort, "listening port announced to the tracker")
	timeout := fs.Duration("timeout", torrent.DefaultDialTimeout, "peer and UDP tracker timeout")
	trackerTimeout := fs.Duration("tracker-timeout", torrent.DefaultRequestTimeout, "HTTP tracker request timeout")

	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usage)
		fs.PrintDefaults()
	}

	if err := fs.Parse(arguments); err != nil {
		return torrent.Config{}, nil, false, err
	}

	args := fs.Args()
	if len(args) < 1 {
		fs.Usage()
		return torrent.Config{}, nil, false, errMissingCommand
	}

	cfg, err := torrent.DefaultConfig()
	if err != nil {
		return torrent.Config{}, nil, false, err
	}

	if *peerID != "" {
		if cfg.PeerID, err = torrent.ParsePeerID(*peerID); err != nil {
			return torrent.Config{}, nil, false, err
		}
	}

	if *port > 65535 {
		return torrent.Config{}, nil, false, fmt.Errorf("invalid port %d", *port)
	}

	cfg.Port = uint16(*port)
	cfg.DialTimeout = *timeout
	cfg.RequestTimeout = *trackerTimeout

	return cfg, args, *verbose, nil
}

// --------------------------------------------------------------------------------------------- //

func run(ctx context.Context, out io.Writer, args []string, cfg torrent.Config) error {
	command := args[0]

	switch command {
	case "decode":
		if len(args) < 2 {
			return fmt.Errorf("decode needs <bencoded>")
		}

		return decode(out, args[1])

	case "info":
		if len(args) < 2 {
			return fmt.Errorf("info needs <file.torrent>")
		}

		return info(out, args[1])

	case "peers":
		if len(args) < 2 {
			return fmt.Errorf("peers needs <file.torrent>")
		}

		return peers(ctx, out, args[1], cfg)

	case "handshake":
		if len(args) < 3 {
			return fmt.Errorf("handshake needs <file.torrent> <ip:port>")
		}

		return handshake(ctx, out, args[1], args[2], cfg)

	case "verify":
		if len(args) < 3 {
			return fmt.Errorf("verify needs <file.torrent> <data-file>")
		}

		return verify(out, args[1], args[2])

	default:
		fmt.Fprintln(out, "Unknown command: "+command)
		return errUnknownCommand
	}
}

var (
	errUnknownCommand = errors.New("unknown command")
	errMissingCommand = errors.New("missing command")
)

func decode(out io.Writer, bencoded string) error {
	value, err := bencode.DecodeAll([]byte(bencoded))
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)

	return enc.Encode(bencode.Interface(value))
}

func info(out io.Writer, path string) error {
	Torrent, err := torrent.SetTorrentFile(path)
	if err != nil {
		return err
	}

	hashes, err := Torrent.PieceHashes()
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Tracker URL: %s\n", Torrent.Announce)
	fmt.Fprintf(out, "Length: %d\n", Torrent.Info.Length)
	fmt.Fprintf(out, "Info Hash: %s\n", Torrent.InfoHashHex())
	fmt.Fprintf(out, "Piece Length: %d\n", Torrent.Info.PieceLength)
	fmt.Fprintln(out, "Piece Hashes:")
	for _, hash := range hashes {
		fmt.Fprintln(out, torrent.ToHex(hash[:]))
	}

	return nil
}

func peers(ctx context.Context, out io.Writer, path string, cfg torrent.Config) error {
	Torrent, err := torrent.SetTorrentFile(path)
	if err != nil {
		return err
	}

	found, err := torrent.FindConnections(ctx, Torrent, cfg)
	if err != nil {
		return err
	}

	for _, peer := range found {
		fmt.Fprintln(out, peer.String())
	}

	return nil
}

func handshake(ctx context.Context, out io.Writer, path, addr string, cfg torrent.Config) error {
	Torrent, err := torrent.SetTorrentFile(path)
	if err != nil {
		return err
	}

	remotePeerID, err := Torrent.PerformHandshake(ctx, addr, cfg)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Peer ID: %s\n", torrent.ToHex(remotePeerID[:]))
	return nil
}

func verify(out io.Writer, torrentPath, dataPath string) error {
	Torrent, err := torrent.SetTorrentFile(torrentPath)
	if err != nil {
		return err
	}

	data, err := os.Open(dataPath)
	if err != nil {
		return fmt.Errorf("Opening file error: %w", err)
	}
	defer data.Close()

	var progress io.Writer = io.Discard
	if term.IsTerminal(int(os.Stderr.Fd())) {
		bar := progressbar.NewOptions64(Torrent.Info.Length,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("verifying"),
			progressbar.OptionShowBytes(true),
			progressbar.OptionThrottle(65*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		)
		defer bar.Finish()

		progress = bar
	}

	mismatched, err := Torrent.VerifyPieces(data, progress)
	if err != nil {
		return err
	}

	for _, index := range mismatched {
		fmt.Fprintf(out, "Piece %d: hash mismatch\n", index)
	}

	fmt.Fprintf(out, "%d/%d pieces OK\n", Torrent.NumPieces()-len(mismatched), Torrent.NumPieces())

	if len(mismatched) > 0 {
		return fmt.Errorf("%d pieces failed verification", len(mismatched))
	}

	return nil
}

// --------------------------------------------------------------------------------------------- //

func fail(err error) {
	if !errors.Is(err, errUnknownCommand) && !errors.Is(err, errMissingCommand) {
		if term.IsTerminal(int(os.Stderr.Fd())) {
			fmt.Fprint(os.Stderr, colorstring.Color("[red]error:[reset] "))
			fmt.Fprintln(os.Stderr, err)
		} else {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}

	os.Exit(1)
}
