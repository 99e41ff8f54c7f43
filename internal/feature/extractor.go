package feature

import (
	"math"
	"regexp"

	"NetSentry/internal/model"
)

// Live feature vector indexes. The extended form appends dst_port,
// tcp_flags and payload_entropy after these.
const (
	IdxPacketSize = iota
	IdxProtocol
	IdxConnectionDuration
	IdxFailedLogins
	IdxTransferRate
	IdxAccessFrequency
	NumLiveFeatures
)

var liveFeatureNames = []string{
	"packet_size",
	"protocol",
	"connection_duration",
	"failed_logins",
	"transfer_rate",
	"access_frequency",
}

var extendedFeatureNames = []string{
	"dst_port",
	"tcp_flags",
	"payload_entropy",
}

// authFailurePattern recognizes the auth-failure lines emitted by common
// services (sshd, generic login prompts, FTP 530).
var authFailurePattern = regexp.MustCompile(
	`(?i)(failed password|authentication fail|login (failed|incorrect)|invalid user|530 login)`)

// Extractor turns a packet plus tracker state into a fixed-order feature
// vector. Extract has the side effect of feeding the trackers; it is
// deterministic for a given packet and tracker state and never fails, with
// missing inputs contributing 0.
type Extractor struct {
	trackers *Trackers
	names    []string
	extended bool
}

// NewExtractor creates an extractor over the given tracker set.
func NewExtractor(trackers *Trackers, extended bool) *Extractor {
	names := make([]string, 0, NumLiveFeatures+len(extendedFeatureNames))
	names = append(names, liveFeatureNames...)
	if extended {
		names = append(names, extendedFeatureNames...)
	}
	return &Extractor{trackers: trackers, names: names, extended: extended}
}

// FeatureNames returns the vector layout produced by this extractor.
func (e *Extractor) FeatureNames() []string {
	return e.names
}

// Extract observes the packet into the trackers and assembles its feature
// vector.
func (e *Extractor) Extract(pkt *model.PacketInfo) *model.FeatureVector {
	src := pkt.FiveTuple.SrcIP.String()
	now := pkt.Timestamp

	e.trackers.Connections.Observe(pkt)
	e.trackers.Rates.Observe(pkt)
	e.trackers.Access.Record(src, now)
	if len(pkt.Payload) > 0 && authFailurePattern.Match(pkt.Payload) {
		e.trackers.Logins.Record(src, now)
	}

	duration, _ := e.trackers.Connections.Duration(pkt.FiveTuple, now)
	values := make([]float64, 0, len(e.names))
	values = append(values,
		float64(pkt.Length),
		float64(pkt.FiveTuple.Protocol),
		duration,
		float64(e.trackers.Logins.Count(src, now)),
		e.trackers.Rates.Rate(pkt.FiveTuple, now),
		float64(e.trackers.Access.Count(src, now)),
	)
	if e.extended {
		values = append(values,
			float64(pkt.FiveTuple.DstPort),
			float64(pkt.TCPFlags),
			payloadEntropy(pkt.Payload),
		)
	}
	return &model.FeatureVector{Names: e.names, Values: values}
}

// payloadEntropy returns the Shannon entropy of the payload in bits per
// byte, 0 for an empty payload.
func payloadEntropy(data []byte) float64 {
	if len(data) == 0 {
		return 0
	}
	var freq [256]int
	for _, b := range data {
		freq[b]++
	}
	total := float64(len(data))
	var entropy float64
	for _, count := range freq {
		if count == 0 {
			continue
		}
		p := float64(count) / total
		entropy -= p * math.Log2(p)
	}
	return entropy
}
