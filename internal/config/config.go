package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	LLM      LLMConfig      `mapstructure:"llm" validate:"required"`
	Storage  StorageConfig  `mapstructure:"storage" validate:"required"`
	Pregen   PregenConfig   `mapstructure:"pregen" validate:"required"`
	Worker   WorkerConfig   `mapstructure:"worker" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required,url"`
}

// LLMConfig contains all Gemini integration related settings.
// Model names live on each tree's generation config; only credentials and
// retry behavior are process-wide.
type LLMConfig struct {
	GeminiAPIKey      string `mapstructure:"gemini_api_key" validate:"required"`
	MaxRetries        int    `mapstructure:"max_retries" validate:"gte=0,lte=10"`
	RetryDelaySeconds int    `mapstructure:"retry_delay_seconds" validate:"gte=0,lte=60"`
}

// StorageConfig contains media storage settings.
type StorageConfig struct {
	Bucket        string `mapstructure:"bucket" validate:"required"`
	PublicBaseURL string `mapstructure:"public_base_url" validate:"omitempty,url"`
}

// PregenConfig controls background pre-generation of descendants.
type PregenConfig struct {
	// Mode selects how descendant expansion continues after the first level:
	// "queue" chains jobs through the persistent job queue (survives
	// restarts), "inline" runs the whole wave in-process.
	Mode string `mapstructure:"mode" validate:"required,oneof=queue inline"`

	// MaxPreloadDepth bounds how many levels below the expanded node are
	// pre-generated. Zero disables pre-generation entirely.
	MaxPreloadDepth int `mapstructure:"max_preload_depth" validate:"gte=0,lte=10"`

	// Workers sizes the in-process runner used by inline mode.
	Workers int `mapstructure:"workers" validate:"gte=1,lte=32"`
}

// WorkerConfig controls the background queue worker.
type WorkerConfig struct {
	// PollIntervalSeconds is how often the worker polls for claimable work.
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds" validate:"gte=1,lte=300"`

	// ImageBatchSize is how many image tasks one poll may claim at once.
	ImageBatchSize int `mapstructure:"image_batch_size" validate:"gte=1,lte=20"`

	// StuckTaskTimeoutMinutes is how long a task may sit in generating
	// before the reaper fails it.
	StuckTaskTimeoutMinutes int `mapstructure:"stuck_task_timeout_minutes" validate:"gte=1,lte=120"`

	// ReapIntervalMinutes is how often the reaper sweeps.
	ReapIntervalMinutes int `mapstructure:"reap_interval_minutes" validate:"gte=1,lte=120"`
}
