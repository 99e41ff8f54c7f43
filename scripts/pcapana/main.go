// Prints the parsed form of every packet in a capture file, for quickly
// checking what the pipeline would see.
package main

import (
	"fmt"
	"log"
	"os"

	"NetSentry/internal/model"
	"NetSentry/pkg/pcap"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run ./scripts/pcapana/main.go <path_to_pcap_file>")
		os.Exit(1)
	}

	reader, err := pcap.NewReader(os.Args[1])
	if err != nil {
		log.Fatal(err)
	}
	defer reader.Close()

	out := make(chan *model.PacketInfo, 1024)
	go reader.ReadPackets(out)

	count := 0
	for info := range out {
		count++
		fmt.Printf("[%s] %s:%d -> %s:%d proto=%d len=%d flags=%#02x payload=%dB\n",
			info.Timestamp.Format("15:04:05.000"),
			info.FiveTuple.SrcIP, info.FiveTuple.SrcPort,
			info.FiveTuple.DstIP, info.FiveTuple.DstPort,
			info.FiveTuple.Protocol, info.Length, info.TCPFlags, len(info.Payload),
		)
	}
	fmt.Printf("Total packets parsed: %d\n", count)
}
