package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from environment variables and an optional
// config.yaml in the working directory. Environment variables take
// precedence over values from the config file.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Optional config file in the working directory
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("BRANCHVOTE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only resolves keys viper already knows about, so bind the
	// ones that have no default explicitly.
	bindEnvs := []struct {
		key    string
		envVar string
	}{
		{"database.url", "BRANCHVOTE_DATABASE_URL"},
		{"llm.gemini_api_key", "BRANCHVOTE_LLM_GEMINI_API_KEY"},
		{"storage.bucket", "BRANCHVOTE_STORAGE_BUCKET"},
		{"storage.public_base_url", "BRANCHVOTE_STORAGE_PUBLIC_BASE_URL"},
	}
	for _, env := range bindEnvs {
		if err := v.BindEnv(env.key, env.envVar); err != nil {
			return nil, fmt.Errorf("error binding environment variable %s: %w", env.envVar, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.retry_delay_seconds", 2)

	v.SetDefault("pregen.mode", "queue")
	v.SetDefault("pregen.max_preload_depth", 2)
	v.SetDefault("pregen.workers", 4)

	v.SetDefault("worker.poll_interval_seconds", 2)
	v.SetDefault("worker.image_batch_size", 3)
	v.SetDefault("worker.stuck_task_timeout_minutes", 5)
	v.SetDefault("worker.reap_interval_minutes", 1)
}
