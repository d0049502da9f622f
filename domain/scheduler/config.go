package scheduler

import (
	"os"
	"strconv"
	"time"
)

// Config holds scheduler configuration
type Config struct {
	// Enabled controls whether the scheduler runs
	Enabled bool

	// StaleChunkSweepInterval is the interval for the stale chunk sweep
	StaleChunkSweepInterval time.Duration

	// StaleChunkMinutes is how long a chunk can sit in in_progress before the
	// sweep considers it orphaned
	StaleChunkMinutes int

	// QueueStatsInterval is the interval for logging queue depth
	QueueStatsInterval time.Duration

	// Cron schedule override for the sweep (takes precedence over the
	// interval when set). Format: "second minute hour day-of-month month
	// day-of-week", e.g. "0 */5 * * * *" for every 5 minutes.
	StaleChunkSweepSchedule string
}

// NewConfig creates a new Config from environment variables
func NewConfig() *Config {
	return &Config{
		Enabled:                 getEnvBool("SCHEDULER_ENABLED", true),
		StaleChunkSweepInterval: getEnvDuration("STALE_CHUNK_SWEEP_INTERVAL_MS", 5*time.Minute),
		StaleChunkMinutes:       getEnvInt("STALE_CHUNK_MINUTES", 15),
		QueueStatsInterval:      getEnvDuration("QUEUE_STATS_INTERVAL_MS", time.Minute),
		StaleChunkSweepSchedule: getEnvString("STALE_CHUNK_SWEEP_SCHEDULE", ""),
	}
}

// getEnvBool returns a boolean from an environment variable
func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

// getEnvInt returns an integer from an environment variable
func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvDuration returns a duration from an environment variable (in milliseconds)
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if ms, err := strconv.Atoi(val); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultVal
}

// getEnvString returns a string from an environment variable
func getEnvString(key string, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
