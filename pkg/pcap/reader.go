// Package pcap replays capture files through the same parser the live
// sensor uses, so offline analysis sees identical packets.
package pcap

import (
	"fmt"
	"io"
	"log"
	"os"

	"NetSentry/internal/model"
	"NetSentry/internal/probe"

	"github.com/google/gopacket/pcapgo"
)

// Reader streams parsed packets out of a capture file.
type Reader struct {
	file *os.File
	r    *pcapgo.Reader
}

// NewReader opens a pcap file for reading.
func NewReader(filePath string) (*Reader, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	r, err := pcapgo.NewReader(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to read pcap header: %w", err)
	}
	return &Reader{file: file, r: r}, nil
}

// Close closes the underlying file.
func (r *Reader) Close() {
	r.file.Close()
}

// ReadPackets parses every frame in the file into the channel and closes
// the channel at end of file. Frames that fail to parse are logged and
// skipped; the capture timestamps are preserved.
func (r *Reader) ReadPackets(out chan<- *model.PacketInfo) {
	defer close(out)
	for {
		data, ci, err := r.r.ReadPacketData()
		if err == io.EOF {
			return
		}
		if err != nil {
			log.Printf("Error reading packet data: %v", err)
			return
		}
		info, err := probe.ParsePacket(data)
		if err != nil {
			log.Printf("Error parsing packet: %v", err)
			continue
		}
		info.Timestamp = ci.Timestamp
		if ci.Length > 0 {
			info.Length = ci.Length
		}
		out <- info
	}
}
