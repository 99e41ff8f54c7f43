package model

import (
	"net"
	"time"
)

// FiveTuple represents the 5-tuple of a network packet.
type FiveTuple struct {
	SrcIP    net.IP
	DstIP    net.IP
	SrcPort  uint16
	DstPort  uint16
	Protocol uint8
}

// TCP flag bits carried in PacketInfo.TCPFlags, in standard header order.
const (
	TCPFlagFIN uint8 = 1 << iota
	TCPFlagSYN
	TCPFlagRST
	TCPFlagPSH
	TCPFlagACK
	TCPFlagURG
)

// PacketInfo holds the metadata extracted from a single packet.
// It is created by the capture layer and never mutated downstream.
type PacketInfo struct {
	Timestamp time.Time
	FiveTuple FiveTuple
	Length    int
	TCPFlags  uint8
	Payload   []byte
}

// FeatureVector is a fixed-order numeric summary of a packet and the flow
// state around it. Names and Values are index-aligned; the order is stable
// for a given configuration.
type FeatureVector struct {
	Names  []string
	Values []float64
}

// HistoryEntry is one remembered packet inside a per-source sliding window,
// consumed by aggregate detection rules.
type HistoryEntry struct {
	Timestamp time.Time
	DstIP     string
	DstPort   uint16
	Length    int
}
