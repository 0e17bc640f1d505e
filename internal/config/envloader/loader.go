// Package envloader loads ingestion configuration through Viper, layering
// environment variables over an optional YAML file.
package envloader

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/viper"

	"github.com/designare-evita/CSV-PRO/internal/config"
)

// envPrefix namespaces every environment override, e.g. CSVPRO_MEMORY_LIMIT.
const envPrefix = "CSVPRO"

// EnvLoader resolves configuration from the environment with an optional file
// base. Environment values always win over file values.
type EnvLoader struct {
	// path is the optional YAML file providing base values. Empty means
	// environment-only.
	path string
}

// NewEnvLoader creates an EnvLoader with an optional base file.
func NewEnvLoader(path string) *EnvLoader {
	return &EnvLoader{path: path}
}

// Load builds the configuration from file plus environment overrides.
func (l *EnvLoader) Load(ctx context.Context) (*config.Ingestion, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	for _, key := range []string{
		"sink_type", "sink_status", "required_columns", "skip_duplicates",
		"memory_limit", "time_limit",
		"min_batch_size", "max_batch_size", "initial_batch_size",
		"checkpoint_every", "error_ceiling", "inter_batch_yield",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	if l.path != "" {
		v.SetConfigFile(l.path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	cfg := config.Ingestion{
		SinkType:         v.GetString("sink_type"),
		SinkStatus:       v.GetString("sink_status"),
		RequiredColumns:  config.ParseColumns(v.GetString("required_columns")),
		SkipDuplicates:   v.GetBool("skip_duplicates"),
		MemoryLimit:      v.GetInt64("memory_limit"),
		TimeLimit:        v.GetDuration("time_limit"),
		MinBatchSize:     v.GetInt("min_batch_size"),
		MaxBatchSize:     v.GetInt("max_batch_size"),
		InitialBatchSize: v.GetInt("initial_batch_size"),
		CheckpointEvery:  v.GetInt("checkpoint_every"),
		ErrorCeiling:     v.GetInt("error_ceiling"),
		InterBatchYield:  v.GetDuration("inter_batch_yield"),
	}

	cfg = cfg.Normalize()
	return &cfg, nil
}
