package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"NetSentry/internal/config"
	"NetSentry/internal/model"
	"NetSentry/internal/probe"
	"NetSentry/internal/probe/archive"
	nspcap "NetSentry/pkg/pcap"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"
)

func main() {
	configFile := flag.String("config", "configs/config.yaml", "Path to the configuration file")
	iface := flag.String("iface", "", "Interface to capture from (overrides the config file)")
	replay := flag.String("pcap", "", "Replay a capture file to NATS instead of live capture")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if *replay != "" {
		runReplay(cfg, *replay)
		return
	}
	runLive(cfg, *iface)
}

// runLive captures from an interface and publishes packets until a signal
// arrives.
func runLive(cfg *config.Config, ifaceFlag string) {
	interfaceName := cfg.Sensor.Interface
	if ifaceFlag != "" {
		interfaceName = ifaceFlag
	}
	if interfaceName == "" {
		log.Fatalf("No capture interface configured; set sensor.interface or pass -iface.")
	}

	// 1. Connect to NATS
	pub, err := probe.NewPublisher(cfg.NATS)
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer pub.Close()

	// 2. Open the device for live capture
	handle, err := pcap.OpenLive(interfaceName, cfg.Sensor.SnapshotLen, cfg.Sensor.Promiscuous, pcap.BlockForever)
	if err != nil {
		log.Fatalf("Error opening device %s: %v", interfaceName, err)
	}
	defer handle.Close()
	if cfg.Sensor.BPFFilter != "" {
		if err := handle.SetBPFFilter(cfg.Sensor.BPFFilter); err != nil {
			log.Fatalf("Failed to set BPF filter %q: %v", cfg.Sensor.BPFFilter, err)
		}
	}

	// 3. Optionally start the local capture archive
	var arch *archive.Archiver
	if cfg.Sensor.Archive.Enabled {
		arch, err = archive.NewArchiver(cfg.Sensor.Archive, cfg.Sensor.SnapshotLen)
		if err != nil {
			log.Fatalf("Failed to start capture archive: %v", err)
		}
	}

	log.Printf("Capture started on %s. Publishing packets to NATS...", interfaceName)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// 4. Capture loop
	go func() {
		packetSource := gopacket.NewPacketSource(handle, handle.LinkType())
		published := 0
		for packet := range packetSource.Packets() {
			meta := packet.Metadata()
			if arch != nil {
				arch.Enqueue(meta.CaptureInfo, packet.Data())
			}
			info, err := probe.ParsePacket(packet.Data())
			if err != nil {
				continue // Skip non-IP frames
			}
			if !meta.Timestamp.IsZero() {
				info.Timestamp = meta.Timestamp
			}
			if meta.Length > 0 {
				info.Length = meta.Length
			}
			if err := pub.Publish(info); err != nil {
				log.Printf("Failed to publish packet: %v", err)
			}
			published++
			if published%1000 == 0 {
				log.Printf("%d packets published...", published)
			}
		}
	}()

	// 5. Wait for a shutdown signal
	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")
	if arch != nil {
		arch.Stop()
	}
}

// runReplay publishes every packet of a capture file to NATS and exits.
func runReplay(cfg *config.Config, path string) {
	pub, err := probe.NewPublisher(cfg.NATS)
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer pub.Close()

	reader, err := nspcap.NewReader(path)
	if err != nil {
		log.Fatalf("Failed to open pcap file: %v", err)
	}
	defer reader.Close()
	log.Printf("Replaying packets from '%s'...", path)

	out := make(chan *model.PacketInfo, 1024)
	go reader.ReadPackets(out)

	published := 0
	for info := range out {
		if err := pub.Publish(info); err != nil {
			log.Printf("Failed to publish packet: %v", err)
			continue
		}
		published++
	}
	log.Printf("Replay finished, %d packets published.", published)
}
