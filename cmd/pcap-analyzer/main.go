package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"sync"

	"NetSentry/internal/config"
	"NetSentry/internal/model"
	"NetSentry/internal/pipeline"
	"NetSentry/pkg/pcap"
)

// report is the JSON summary printed after a capture file has been analyzed.
type report struct {
	File       string                        `json:"file"`
	Packets    int                           `json:"packets"`
	ByDetector map[string]int                `json:"alerts_by_detector"`
	Alerts     []*model.Alert                `json:"alerts"`
	Snapshots  []*model.TrafficStatsSnapshot `json:"snapshots"`
}

// memStore collects alerts and snapshots in memory instead of a database,
// so the analyzer needs no backends.
type memStore struct {
	mu        sync.Mutex
	alerts    []*model.Alert
	snapshots []*model.TrafficStatsSnapshot
}

func (s *memStore) SaveAlert(ctx context.Context, alert *model.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, alert)
	return nil
}

func (s *memStore) SaveSnapshot(ctx context.Context, snapshot *model.TrafficStatsSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, snapshot)
	return nil
}

func main() {
	configFile := flag.String("config", "configs/config.yaml", "Path to the configuration file")
	flag.Parse()

	// 1. Get the pcap file path from command-line arguments
	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: pcap-analyzer [-config path] <path_to_pcap_file>")
		os.Exit(1)
	}
	pcapFilePath := flag.Arg(0)

	// 2. Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Println("Configuration loaded successfully.")

	// 3. Build the pipeline against the in-memory store
	store := &memStore{}
	pl, err := pipeline.New(cfg, pipeline.Deps{
		AlertStore:    store,
		SnapshotStore: store,
	})
	if err != nil {
		log.Fatalf("Failed to create pipeline: %v", err)
	}

	reader, err := pcap.NewReader(pcapFilePath)
	if err != nil {
		log.Fatalf("Failed to open pcap file: %v", err)
	}
	defer reader.Close()
	log.Printf("Reading packets from '%s'...", pcapFilePath)

	// 4. Start the pipeline and feed it the capture
	pl.Start()

	packets := 0
	out := make(chan *model.PacketInfo, 1024)
	go reader.ReadPackets(out)
	for pkt := range out {
		packets++
		pl.EnqueueBlocking(pkt)
	}
	log.Printf("Finished reading %d packets from pcap file.", packets)

	// 5. Drain the pipeline; Stop flushes the final stats window
	pl.Stop()

	// 6. Print the summary
	byDetector := make(map[string]int)
	for _, alert := range store.alerts {
		byDetector[string(alert.Kind)]++
	}
	summary := report{
		File:       pcapFilePath,
		Packets:    packets,
		ByDetector: byDetector,
		Alerts:     store.alerts,
		Snapshots:  store.snapshots,
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		log.Fatalf("Failed to encode report: %v", err)
	}
}
