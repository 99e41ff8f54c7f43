package probe

import (
	"fmt"
	"time"

	"NetSentry/internal/model"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// ParsePacket decodes a raw frame into the internal packet form. IPv4 and
// IPv6 are accepted; transport ports are filled for TCP and UDP, other IP
// protocols (ICMP among them) pass through with zero ports so the stats
// layer still sees them. Non-IP frames are rejected.
func ParsePacket(data []byte) (*model.PacketInfo, error) {
	packet := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.Default)

	info := &model.PacketInfo{
		Timestamp: time.Now(),
		Length:    len(data),
	}
	if meta := packet.Metadata(); meta != nil && !meta.Timestamp.IsZero() {
		info.Timestamp = meta.Timestamp
	}

	var fiveTuple model.FiveTuple
	if l := packet.Layer(layers.LayerTypeIPv4); l != nil {
		ip := l.(*layers.IPv4)
		fiveTuple.SrcIP = ip.SrcIP
		fiveTuple.DstIP = ip.DstIP
		fiveTuple.Protocol = uint8(ip.Protocol)
	} else if l := packet.Layer(layers.LayerTypeIPv6); l != nil {
		ip := l.(*layers.IPv6)
		fiveTuple.SrcIP = ip.SrcIP
		fiveTuple.DstIP = ip.DstIP
		fiveTuple.Protocol = uint8(ip.NextHeader)
	} else {
		return nil, fmt.Errorf("not an IP packet")
	}

	if l := packet.Layer(layers.LayerTypeTCP); l != nil {
		tcp := l.(*layers.TCP)
		fiveTuple.SrcPort = uint16(tcp.SrcPort)
		fiveTuple.DstPort = uint16(tcp.DstPort)
		info.TCPFlags = tcpFlagBits(tcp)
		info.Payload = tcp.Payload
	} else if l := packet.Layer(layers.LayerTypeUDP); l != nil {
		udp := l.(*layers.UDP)
		fiveTuple.SrcPort = uint16(udp.SrcPort)
		fiveTuple.DstPort = uint16(udp.DstPort)
		info.Payload = udp.Payload
	}

	info.FiveTuple = fiveTuple
	return info, nil
}

func tcpFlagBits(tcp *layers.TCP) uint8 {
	var flags uint8
	if tcp.FIN {
		flags |= model.TCPFlagFIN
	}
	if tcp.SYN {
		flags |= model.TCPFlagSYN
	}
	if tcp.RST {
		flags |= model.TCPFlagRST
	}
	if tcp.PSH {
		flags |= model.TCPFlagPSH
	}
	if tcp.ACK {
		flags |= model.TCPFlagACK
	}
	if tcp.URG {
		flags |= model.TCPFlagURG
	}
	return flags
}
