package pcap

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"NetSentry/internal/model"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

var serializeOpts = gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}

func tcpFrame(t *testing.T, srcIP, dstIP string, srcPort, dstPort uint16, payload []byte) []byte {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		DstMAC:       net.HardwareAddr{0x66, 0x77, 0x88, 0x99, 0xaa, 0xbb},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    net.ParseIP(srcIP),
		DstIP:    net.ParseIP(dstIP),
	}
	tcp := &layers.TCP{SrcPort: layers.TCPPort(srcPort), DstPort: layers.TCPPort(dstPort), ACK: true}
	if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
		t.Fatalf("set network layer: %v", err)
	}
	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, serializeOpts, eth, ip, tcp, gopacket.Payload(payload)); err != nil {
		t.Fatalf("serialize tcp frame: %v", err)
	}
	return buf.Bytes()
}

func arpFrame(t *testing.T) []byte {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		DstMAC:       net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
		EthernetType: layers.EthernetTypeARP,
	}
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   []byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		SourceProtAddress: []byte{192, 168, 0, 1},
		DstHwAddress:      []byte{0, 0, 0, 0, 0, 0},
		DstProtAddress:    []byte{192, 168, 0, 2},
	}
	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, serializeOpts, eth, arp); err != nil {
		t.Fatalf("serialize arp frame: %v", err)
	}
	return buf.Bytes()
}

// writeCapture writes the given frames to a fresh pcap file and returns its path.
func writeCapture(t *testing.T, frames [][]byte, ts time.Time) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture.pcap")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create capture file: %v", err)
	}
	defer f.Close()
	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		t.Fatalf("write file header: %v", err)
	}
	for i, frame := range frames {
		ci := gopacket.CaptureInfo{
			Timestamp:     ts.Add(time.Duration(i) * time.Second),
			CaptureLength: len(frame),
			Length:        len(frame),
		}
		if err := w.WritePacket(ci, frame); err != nil {
			t.Fatalf("write packet %d: %v", i, err)
		}
	}
	return path
}

func TestReadPackets(t *testing.T) {
	// Classic pcap stores microsecond timestamps, so stay on a whole microsecond.
	ts := time.Date(2025, 3, 14, 9, 26, 53, 589793000, time.UTC)
	frames := [][]byte{
		tcpFrame(t, "192.168.0.10", "10.0.0.5", 40211, 80, []byte("GET / HTTP/1.1\r\n\r\n")),
		tcpFrame(t, "10.0.0.5", "192.168.0.10", 80, 40211, []byte("HTTP/1.1 200 OK\r\n\r\n")),
	}
	path := writeCapture(t, frames, ts)

	// 1. Open the capture and stream it.
	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	out := make(chan *model.PacketInfo, 10)
	go reader.ReadPackets(out)

	// 2. Both frames arrive parsed, in file order, with capture timestamps.
	first, ok := <-out
	if !ok {
		t.Fatal("channel closed before first packet")
	}
	if first.FiveTuple.SrcIP.String() != "192.168.0.10" || first.FiveTuple.DstPort != 80 {
		t.Errorf("unexpected first packet: %s -> :%d", first.FiveTuple.SrcIP, first.FiveTuple.DstPort)
	}
	if !first.Timestamp.Equal(ts) {
		t.Errorf("expected timestamp %v, got %v", ts, first.Timestamp)
	}
	second := <-out
	if second.FiveTuple.SrcPort != 80 {
		t.Errorf("expected reply from port 80, got %d", second.FiveTuple.SrcPort)
	}

	// 3. End of file closes the channel.
	if _, ok := <-out; ok {
		t.Error("expected channel to be closed after last packet")
	}
}

func TestReadPacketsSkipsNonIPFrames(t *testing.T) {
	ts := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	frames := [][]byte{
		arpFrame(t),
		tcpFrame(t, "192.168.0.10", "10.0.0.5", 40211, 443, nil),
	}
	path := writeCapture(t, frames, ts)

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	out := make(chan *model.PacketInfo, 10)
	go reader.ReadPackets(out)

	var got []*model.PacketInfo
	for info := range out {
		got = append(got, info)
	}
	// The ARP frame is not an IP packet and must be skipped, not fatal.
	if len(got) != 1 {
		t.Fatalf("expected 1 parsed packet, got %d", len(got))
	}
	if got[0].FiveTuple.DstPort != 443 {
		t.Errorf("expected surviving packet to target port 443, got %d", got[0].FiveTuple.DstPort)
	}
}

func TestNewReaderMissingFile(t *testing.T) {
	if _, err := NewReader(filepath.Join(t.TempDir(), "nope.pcap")); err == nil {
		t.Fatal("expected error for missing capture file")
	}
}
