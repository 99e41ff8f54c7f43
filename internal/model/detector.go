package model

// Detector is the contract every detection layer implements. Detect receives
// the packet, its feature vector, and the per-source recent history; it
// returns zero or more detections and never blocks on external resources.
// Implementations must be safe for concurrent calls.
type Detector interface {
	Name() string
	Kind() DetectorKind
	Detect(pkt *PacketInfo, fv *FeatureVector, history []HistoryEntry) []Detection
}
