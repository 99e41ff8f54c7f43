// Generates synthetic capture files for exercising the detection pipeline:
// benign background traffic plus scripted attack scenarios that the
// signature rules fire on. Feed the output to cmd/pcap-analyzer or replay
// it with ns-sensor -pcap.
package main

import (
	"flag"
	"log"
	"math/rand"
	"net"
	"os"
	"strings"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

var serializeOpts = gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}

type generator struct {
	w       *pcapgo.Writer
	rng     *rand.Rand
	ts      time.Time
	written int
}

func (g *generator) writeTCP(srcIP, dstIP net.IP, srcPort, dstPort uint16, syn bool, payload []byte, gap time.Duration) {
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		DstMAC:       net.HardwareAddr{0x00, 0x66, 0x77, 0x88, 0x99, 0xaa},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    srcIP,
		DstIP:    dstIP,
	}
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(srcPort),
		DstPort: layers.TCPPort(dstPort),
		Seq:     g.rng.Uint32(),
		Window:  14600,
	}
	if syn {
		tcp.SYN = true
	} else {
		tcp.ACK = true
		tcp.PSH = len(payload) > 0
	}
	tcp.SetNetworkLayerForChecksum(ip)

	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, serializeOpts, eth, ip, tcp, gopacket.Payload(payload)); err != nil {
		log.Fatalf("Failed to serialize layers: %v", err)
	}
	ci := gopacket.CaptureInfo{
		Timestamp:     g.ts,
		CaptureLength: len(buf.Bytes()),
		Length:        len(buf.Bytes()),
	}
	if err := g.w.WritePacket(ci, buf.Bytes()); err != nil {
		log.Fatalf("Failed to write packet: %v", err)
	}
	g.ts = g.ts.Add(gap)
	g.written++
}

// background emits ordinary client/server traffic across a few services.
func (g *generator) background(count int) {
	servers := []net.IP{net.IPv4(10, 0, 0, 5), net.IPv4(10, 0, 0, 6)}
	ports := []uint16{80, 443, 22, 8080}
	for i := 0; i < count; i++ {
		client := net.IPv4(192, 168, 0, byte(g.rng.Intn(250)+2))
		payload := make([]byte, g.rng.Intn(1200)+64)
		g.rng.Read(payload)
		g.writeTCP(client, servers[g.rng.Intn(len(servers))],
			uint16(g.rng.Intn(64000)+1024), ports[g.rng.Intn(len(ports))],
			false, payload, 5*time.Millisecond)
	}
	log.Printf("Generated %d background packets.", count)
}

// sqli emits one HTTP request carrying a classic injection.
func (g *generator) sqli() {
	attacker := net.IPv4(203, 0, 113, 66)
	payload := []byte("GET /products?id=1' OR 1=1-- HTTP/1.1\r\nHost: shop.example.com\r\n\r\n")
	g.writeTCP(attacker, net.IPv4(10, 0, 0, 5), 40211, 80, false, payload, 10*time.Millisecond)
	log.Println("Generated sqli scenario.")
}

// portscan emits SYNs to 30 distinct ports from one source.
func (g *generator) portscan() {
	attacker := net.IPv4(198, 51, 100, 7)
	for port := uint16(1000); port < 1030; port++ {
		g.writeTCP(attacker, net.IPv4(10, 0, 0, 5), 54321, port, true, nil, 20*time.Millisecond)
	}
	log.Println("Generated portscan scenario.")
}

// dos emits a 2000 packets-per-second burst from one source.
func (g *generator) dos() {
	attacker := net.IPv4(192, 0, 2, 99)
	for i := 0; i < 1500; i++ {
		g.writeTCP(attacker, net.IPv4(10, 0, 0, 5), 33333, 80, true, nil, 500*time.Microsecond)
	}
	log.Println("Generated dos scenario.")
}

// exfil emits a sustained upload crossing the volume threshold (10 MiB).
func (g *generator) exfil() {
	insider := net.IPv4(10, 0, 0, 23)
	payload := make([]byte, 1400)
	g.rng.Read(payload)
	for i := 0; i < 8000; i++ {
		g.writeTCP(insider, net.IPv4(203, 0, 113, 200), 51515, 443, false, payload, 500*time.Microsecond)
	}
	log.Println("Generated exfil scenario.")
}

func main() {
	outputFile := flag.String("o", "traffic.pcap", "Output pcap file path")
	packetCount := flag.Int("c", 1000, "Number of benign background packets")
	attacks := flag.String("attacks", "sqli,portscan", "Comma-separated scenarios: sqli, portscan, dos, exfil")
	seed := flag.Int64("seed", 42, "Random seed, for reproducible captures")
	flag.Parse()

	f, err := os.Create(*outputFile)
	if err != nil {
		log.Fatalf("Failed to create output file: %v", err)
	}
	defer f.Close()

	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		log.Fatalf("Failed to write pcap header: %v", err)
	}

	g := &generator{
		w:   w,
		rng: rand.New(rand.NewSource(*seed)),
		ts:  time.Now().Add(-time.Hour),
	}
	g.background(*packetCount)

	for _, name := range strings.Split(*attacks, ",") {
		switch strings.TrimSpace(name) {
		case "":
		case "sqli":
			g.sqli()
		case "portscan":
			g.portscan()
		case "dos":
			g.dos()
		case "exfil":
			g.exfil()
		default:
			log.Printf("Warning: unknown scenario %q, skipping.", name)
		}
	}

	log.Printf("Successfully generated %d packets into %s.", g.written, *outputFile)
}
