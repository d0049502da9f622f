package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(NewConfig),
)

// Config holds all application configuration
type Config struct {
	// Server settings
	ServerPort    int    `env:"SERVER_PORT" envDefault:"8080"`
	ServerAddress string `env:"SERVER_ADDRESS" envDefault:"0.0.0.0"`
	Environment   string `env:"ENVIRONMENT" envDefault:"local"`
	Debug         bool   `env:"DEBUG" envDefault:"false"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`

	// Durable store settings
	Database DatabaseConfig

	// ASR gateway settings
	ASR ASRConfig

	// Per-chunk processing settings
	Processor ProcessorConfig

	// Job dispatch settings
	Dispatch DispatchConfig

	// Server timeouts. Task deliveries run the whole job synchronously, so the
	// write timeout has to cover chunk retries and their backoff sleeps.
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"900s"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"120s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// DatabaseConfig holds the durable store settings. The default is an embedded
// SQLite file; DB_DRIVER=postgres switches to the POSTGRES_* connection.
type DatabaseConfig struct {
	Driver string `env:"DB_DRIVER" envDefault:"sqlite"`

	// SQLite settings
	Path string `env:"DB_PATH" envDefault:"./scribe.db"`

	// PostgreSQL settings
	Host     string `env:"POSTGRES_HOST" envDefault:"localhost"`
	Port     int    `env:"POSTGRES_PORT" envDefault:"5432"`
	User     string `env:"POSTGRES_USER" envDefault:"scribe"`
	Password string `env:"POSTGRES_PASSWORD" envDefault:""`
	Database string `env:"POSTGRES_DB" envDefault:"scribe"`
	SSLMode  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	MaxOpenConns int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	MaxIdleTime  time.Duration `env:"DB_MAX_IDLE_TIME" envDefault:"5m"`
	QueryDebug   bool          `env:"DB_QUERY_DEBUG" envDefault:"false"`
	AutoMigrate  bool          `env:"DB_AUTO_MIGRATE" envDefault:"true"`
}

// IsSQLite returns true when the embedded file store is selected.
func (d *DatabaseConfig) IsSQLite() bool {
	return d.Driver != "postgres"
}

// DSN returns the connection string for the configured driver.
func (d *DatabaseConfig) DSN() string {
	if d.IsSQLite() {
		return fmt.Sprintf("file:%s", d.Path)
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Database, d.SSLMode,
	)
}

// GooseDialect returns the goose dialect name for the configured driver.
func (d *DatabaseConfig) GooseDialect() string {
	if d.IsSQLite() {
		return "sqlite3"
	}
	return "postgres"
}

// ASRConfig holds ASR gateway configuration. When BaseURL is empty the
// in-process simulator is used.
type ASRConfig struct {
	// BaseURL is the external ASR service URL (e.g. http://localhost:9090)
	BaseURL string `env:"ASR_BASE_URL" envDefault:""`
	// TimeoutMs is the per-request timeout in milliseconds
	TimeoutMs int `env:"ASR_TIMEOUT_MS" envDefault:"30000"`
	// MaxConcurrency caps in-flight ASR requests across all workers
	MaxConcurrency int64 `env:"ASR_MAX_CONCURRENCY" envDefault:"100"`

	// Simulator settings
	SimMinLatencyMs  int      `env:"ASR_SIM_MIN_LATENCY_MS" envDefault:"100"`
	SimMaxLatencyMs  int      `env:"ASR_SIM_MAX_LATENCY_MS" envDefault:"200"`
	SimTransientRate float64  `env:"ASR_SIM_TRANSIENT_RATE" envDefault:"0.05"`
	SimPermanentFor  []string `env:"ASR_SIM_PERMANENT_FOR" envDefault:"bad_audio_segment"`
}

// Timeout returns the request timeout as a Duration
func (a *ASRConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutMs) * time.Millisecond
}

// UseSimulator returns true when no external ASR service is configured.
func (a *ASRConfig) UseSimulator() bool {
	return a.BaseURL == ""
}

// ProcessorConfig holds per-chunk retry settings
type ProcessorConfig struct {
	// MaxRetries is the per-chunk transient retry budget
	MaxRetries int `env:"PROCESSOR_MAX_RETRIES" envDefault:"3"`
	// RetryBackoffMs is the linear backoff unit between transient retries
	RetryBackoffMs int `env:"PROCESSOR_RETRY_BACKOFF_MS" envDefault:"500"`
}

// RetryBackoff returns the backoff unit as a Duration
func (p *ProcessorConfig) RetryBackoff() time.Duration {
	return time.Duration(p.RetryBackoffMs) * time.Millisecond
}

// DispatchConfig holds job dispatch configuration. Mode "queue" (default)
// runs the store-backed task queue with an in-process worker pool; mode
// "http" pushes deliveries to an external task queue service.
type DispatchConfig struct {
	Mode string `env:"DISPATCH_MODE" envDefault:"queue"`

	// Worker pool settings (queue mode)
	WorkerCount      int  `env:"DISPATCH_WORKER_COUNT" envDefault:"4"`
	WorkerIntervalMs int  `env:"DISPATCH_WORKER_INTERVAL_MS" envDefault:"1000"`
	WorkerBatchSize  int  `env:"DISPATCH_WORKER_BATCH_SIZE" envDefault:"4"`
	RecoverOnStart   bool `env:"DISPATCH_RECOVER_ON_START" envDefault:"true"`

	// Delivery retry settings (queue mode)
	MaxAttempts           int `env:"DISPATCH_MAX_ATTEMPTS" envDefault:"5"`
	BaseRetryDelaySec     int `env:"DISPATCH_BASE_RETRY_DELAY_SEC" envDefault:"30"`
	MaxRetryDelaySec      int `env:"DISPATCH_MAX_RETRY_DELAY_SEC" envDefault:"3600"`
	StaleThresholdMinutes int `env:"DISPATCH_STALE_THRESHOLD_MINUTES" envDefault:"10"`

	// External task queue settings (http mode)
	Tasks TasksConfig
}

// WorkerInterval returns the poll interval as a Duration
func (d *DispatchConfig) WorkerInterval() time.Duration {
	return time.Duration(d.WorkerIntervalMs) * time.Millisecond
}

// UseHTTP returns true when deliveries go through the external task queue.
func (d *DispatchConfig) UseHTTP() bool {
	return d.Mode == "http"
}

// TasksConfig holds the external task queue settings used in http mode.
type TasksConfig struct {
	ProjectID  string `env:"TASKS_PROJECT_ID" envDefault:""`
	LocationID string `env:"TASKS_LOCATION_ID" envDefault:""`
	QueueID    string `env:"TASKS_QUEUE_ID" envDefault:""`
	HandlerURL string `env:"TASKS_HANDLER_URL" envDefault:""`

	// Optional identity attached to pushed tasks
	ServiceAccountEmail string `env:"TASKS_SERVICE_ACCOUNT_EMAIL" envDefault:""`
	Audience            string `env:"TASKS_AUDIENCE" envDefault:""`

	// Endpoint overrides the task queue API base URL (tests, emulators)
	Endpoint string `env:"TASKS_ENDPOINT" envDefault:""`
}

// IsConfigured returns true if all required task queue settings are present
func (t *TasksConfig) IsConfigured() bool {
	return t.ProjectID != "" && t.LocationID != "" && t.QueueID != "" && t.HandlerURL != ""
}

// Validate checks settings that must fail fast at startup.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}

	if c.Dispatch.UseHTTP() && !c.Dispatch.Tasks.IsConfigured() {
		return fmt.Errorf("DISPATCH_MODE=http requires TASKS_PROJECT_ID, TASKS_LOCATION_ID, TASKS_QUEUE_ID and TASKS_HANDLER_URL")
	}

	if c.Processor.MaxRetries < 1 {
		return fmt.Errorf("PROCESSOR_MAX_RETRIES must be at least 1")
	}

	if c.ASR.MaxConcurrency < 1 {
		return fmt.Errorf("ASR_MAX_CONCURRENCY must be at least 1")
	}

	return nil
}

// NewConfig loads configuration from environment variables
func NewConfig(log *slog.Logger) (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Info("configuration loaded",
		slog.String("environment", cfg.Environment),
		slog.Int("port", cfg.ServerPort),
		slog.String("db_driver", cfg.Database.Driver),
		slog.String("dispatch_mode", cfg.Dispatch.Mode),
	)

	return cfg, nil
}
