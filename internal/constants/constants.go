package constants

import "time"

const (
	// SyncBatchSize players are pulled from the front of the rotation each
	// periodic tick; the full roster is covered across consecutive ticks.
	SyncBatchSize = 50

	// Delay between consecutive player profile fetches against Raider.IO.
	PlayerFetchDelay = 200 * time.Millisecond

	// Delay between per-run detail fetches within one player's sync.
	RunDetailDelay = 100 * time.Millisecond

	// RunRetention is the number of most-recent runs kept per player;
	// anything older is pruned after each sync pass.
	RunRetention = 5

	// RecentRunSyncLimit caps how many merged runs a periodic sync pass
	// processes for one player. Deep sync ignores the cap.
	RecentRunSyncLimit = 10
)

const (
	ExternalAPITimeout = 10 * time.Second
	DatabaseTimeout    = 5 * time.Second
	RequestTimeout     = 30 * time.Second
	SyncPassTimeout    = 10 * time.Minute
)

const (
	DBMaxOpenConns    = 100
	DBMaxIdleConns    = 10
	DBConnMaxLifetime = 1 * time.Hour
	DBMaxIdleTime     = 10 * time.Minute
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	FeedLimit      = 50
	GuildRunsLimit = 25
)

// Key-level brackets for the per-player run counters.
const (
	BracketLowMax  = 6
	BracketMidMax  = 9
	BracketHighMax = 14
)
