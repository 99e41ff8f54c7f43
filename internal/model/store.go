package model

import "context"

// AlertStore persists newly created alerts.
type AlertStore interface {
	SaveAlert(ctx context.Context, alert *Alert) error
}

// SnapshotStore persists flushed traffic stats windows.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snapshot *TrafficStatsSnapshot) error
}

// Broadcaster pushes a newly created alert to a live consumer (message bus,
// cache, digest collector). Broadcast errors are logged by the caller and
// never stall the detection path.
type Broadcaster interface {
	Broadcast(alert *Alert) error
}
