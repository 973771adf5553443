package torrent

import (
	"context"
	"log"
)

// --------------------------------------------------------------------------------------------- //

func SetTorrentFile(path string) (*TorrentFile, error) {
	Torrent, err := ParseFile(path)
	if err != nil {
		return nil, err
	}

	log.Printf("[INFO]\tParsed torrent: %s, InfoHash: %x\n", Torrent.Info.Name, Torrent.infoHash)

	return Torrent, nil
}

func FindConnections(ctx context.Context, Torrent *TorrentFile, cfg Config) ([]Peer, error) {
	response, err := Torrent.SendTrackerRequest(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if response.Warning != "" {
		log.Printf("[WARN]\tTracker warning: %s\n", response.Warning)
	}

	log.Printf("[INFO]\tInterval: %d seconds, %d peers\n", response.Interval, len(response.Peers))

	return response.Peers, nil
}

// --------------------------------------------------------------------------------------------- //
