package feature

import "time"

// TrackerOptions carries the parsed windows and sizing for NewTrackers.
// Zero values fall back to the documented defaults.
type TrackerOptions struct {
	ConnectionIdleTimeout time.Duration
	LoginWindow           time.Duration
	AccessWindow          time.Duration
	NumShards             uint32
	HistorySize           int
	HistoryWindow         time.Duration
}

// Trackers bundles the four feature trackers and the per-source history so
// the pipeline can own them as one unit. Trackers are plain services, never
// package singletons; a process may run several independent sets.
type Trackers struct {
	Connections *ConnectionTracker
	Logins      *LoginAttemptTracker
	Rates       *FlowRateCalculator
	Access      *AccessFrequencyTracker
	History     *RecentHistory
}

// NewTrackers builds the full tracker set.
func NewTrackers(opts TrackerOptions) *Trackers {
	if opts.AccessWindow <= 0 {
		opts.AccessWindow = opts.ConnectionIdleTimeout
	}
	return &Trackers{
		Connections: NewConnectionTracker(opts.ConnectionIdleTimeout, opts.NumShards),
		Logins:      NewLoginAttemptTracker(opts.LoginWindow, opts.NumShards),
		Rates:       NewFlowRateCalculator(opts.ConnectionIdleTimeout, opts.NumShards),
		Access:      NewAccessFrequencyTracker(opts.AccessWindow, opts.NumShards),
		History:     NewRecentHistory(opts.HistorySize, opts.HistoryWindow, opts.NumShards),
	}
}

// Sweep runs every tracker's eviction pass and returns the total number of
// evicted entries.
func (t *Trackers) Sweep(now time.Time) int {
	evicted := t.Connections.Sweep(now)
	evicted += t.Logins.Sweep(now)
	evicted += t.Rates.Sweep(now)
	evicted += t.Access.Sweep(now)
	evicted += t.History.Sweep(now)
	return evicted
}

// normalizeShardCount applies the shared shard-count bounds.
func normalizeShardCount(n uint32) uint32 {
	if n == 0 || n >= 32768 {
		return defaultShardCount
	}
	return n
}
