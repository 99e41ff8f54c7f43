package archive

import (
	"bytes"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"NetSentry/internal/config"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

func testFrame(t *testing.T, seq byte) []byte {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		DstMAC:       net.HardwareAddr{0x66, 0x77, 0x88, 0x99, 0xaa, 0xbb},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IPv4(192, 168, 0, 10),
		DstIP:    net.IPv4(10, 0, 0, 5),
	}
	udp := &layers.UDP{SrcPort: 5353, DstPort: 53}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		t.Fatalf("set network layer: %v", err)
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	payload := gopacket.Payload(bytes.Repeat([]byte{seq}, 32))
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, udp, payload); err != nil {
		t.Fatalf("serialize frame: %v", err)
	}
	return buf.Bytes()
}

func captureInfo(ts time.Time, data []byte) gopacket.CaptureInfo {
	return gopacket.CaptureInfo{Timestamp: ts, CaptureLength: len(data), Length: len(data)}
}

// readBack counts the packets in every capture file under dir and returns
// them in file name order.
func readBack(t *testing.T, dir string) [][]byte {
	t.Helper()
	paths, err := filepath.Glob(filepath.Join(dir, "*.pcap"))
	if err != nil {
		t.Fatalf("glob capture dir: %v", err)
	}
	var frames [][]byte
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			t.Fatalf("open %s: %v", path, err)
		}
		r, err := pcapgo.NewReader(f)
		if err != nil {
			f.Close()
			t.Fatalf("read header of %s: %v", path, err)
		}
		for {
			data, _, err := r.ReadPacketData()
			if err == io.EOF {
				break
			}
			if err != nil {
				f.Close()
				t.Fatalf("read packet from %s: %v", path, err)
			}
			frames = append(frames, data)
		}
		f.Close()
	}
	return frames
}

func TestArchiverWritesFramesInOrder(t *testing.T) {
	dir := t.TempDir()
	cfg := config.ArchiveConfig{Dir: dir, QueueSize: 16, MaxFileBytes: 64 << 20}

	// 1. Start the archiver and queue three frames.
	a, err := NewArchiver(cfg, 1600)
	if err != nil {
		t.Fatalf("NewArchiver failed: %v", err)
	}
	ts := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	var sent [][]byte
	for i := byte(0); i < 3; i++ {
		data := testFrame(t, i)
		sent = append(sent, data)
		a.Enqueue(captureInfo(ts.Add(time.Duration(i)*time.Second), data), data)
	}

	// 2. Stop drains the queue and flushes the file.
	a.Stop()

	// 3. The single capture file holds all frames, byte for byte, in order.
	got := readBack(t, dir)
	if len(got) != 3 {
		t.Fatalf("expected 3 archived frames, got %d", len(got))
	}
	for i := range sent {
		if !bytes.Equal(got[i], sent[i]) {
			t.Errorf("frame %d does not match what was enqueued", i)
		}
	}
}

func TestArchiverRotatesBySize(t *testing.T) {
	dir := t.TempDir()
	// Each frame is 74 bytes on the wire, so a 100 byte cap forces a
	// rotation after every packet.
	cfg := config.ArchiveConfig{Dir: dir, QueueSize: 16, MaxFileBytes: 100}

	a, err := NewArchiver(cfg, 1600)
	if err != nil {
		t.Fatalf("NewArchiver failed: %v", err)
	}
	ts := time.Now()
	for i := byte(0); i < 3; i++ {
		data := testFrame(t, i)
		a.Enqueue(captureInfo(ts, data), data)
	}
	a.Stop()

	paths, err := filepath.Glob(filepath.Join(dir, "*.pcap"))
	if err != nil {
		t.Fatalf("glob capture dir: %v", err)
	}
	if len(paths) < 2 {
		t.Fatalf("expected the archive to rotate into multiple files, got %d", len(paths))
	}
	if got := readBack(t, dir); len(got) != 3 {
		t.Fatalf("expected 3 frames across all files, got %d", len(got))
	}
}

func TestNewArchiverBadDir(t *testing.T) {
	// A file standing where the directory should go must fail creation.
	base := t.TempDir()
	blocker := filepath.Join(base, "blocked")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatalf("write blocker file: %v", err)
	}
	cfg := config.ArchiveConfig{Dir: filepath.Join(blocker, "captures")}
	if _, err := NewArchiver(cfg, 1600); err == nil {
		t.Fatal("expected error when archive directory cannot be created")
	}
}
