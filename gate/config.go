package gate

import "time"

// Config carries the externally tunable knobs of the gate. It is populated
// from viper in cmd and passed down; the library packages never read config
// files themselves.
type Config struct {
	Approvals ApprovalsConfig
	RateLimit RateLimitConfig
	Kill      KillSwitchConfig
	Audit     AuditConfig
}

type ApprovalsConfig struct {
	// DSN of the SQLite approvals database.
	DSN string
}

type RateLimitConfig struct {
	Capacity        float64
	RefillPerSecond float64
	BucketRetention time.Duration
	SweepInterval   time.Duration
}

type KillSwitchConfig struct {
	// Path of the persisted flag file. Empty means in-memory only.
	Path string
}

type AuditConfig struct {
	JSONLPath      string
	RotateMaxBytes int64
}
