// Package config defines the ingestion configuration surface and the Loader
// abstraction used to populate it from files or the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ColumnList is a list of column names that also accepts a single
// newline-delimited string in YAML, matching the host application's settings
// form where columns are entered one per line.
type ColumnList []string

// UnmarshalYAML accepts either a YAML sequence or a newline-delimited scalar.
func (c *ColumnList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.SequenceNode:
		var cols []string
		if err := value.Decode(&cols); err != nil {
			return err
		}
		*c = normalizeColumns(cols)
		return nil

	case yaml.ScalarNode:
		var raw string
		if err := value.Decode(&raw); err != nil {
			return err
		}
		*c = ParseColumns(raw)
		return nil

	default:
		return fmt.Errorf("required_columns must be a list or a newline-delimited string")
	}
}

// ParseColumns splits a newline-delimited column specification, trimming
// whitespace and dropping empty lines.
func ParseColumns(raw string) ColumnList {
	return normalizeColumns(strings.Split(raw, "\n"))
}

func normalizeColumns(cols []string) ColumnList {
	out := make(ColumnList, 0, len(cols))
	for _, col := range cols {
		col = strings.TrimSpace(col)
		if col != "" {
			out = append(out, col)
		}
	}
	return out
}

// Ingestion is the configuration snapshot one run operates under. A snapshot
// is taken at invocation; later edits never affect a run in flight.
type Ingestion struct {
	// Sink selection for the host's materializer.
	SinkType   string `yaml:"sink_type"`
	SinkStatus string `yaml:"sink_status"`

	// RequiredColumns must all be present in the source header.
	RequiredColumns ColumnList `yaml:"required_columns"`

	// SkipDuplicates makes the materializer treat duplicates as skips.
	SkipDuplicates bool `yaml:"skip_duplicates"`

	// MemoryLimit is the process memory ceiling in bytes. Zero or negative
	// means unlimited: pressure is always classified good.
	MemoryLimit int64 `yaml:"memory_limit"`

	// TimeLimit is the host execution budget. When elapsed time approaches
	// it the runner checkpoints and exits resumable. Zero means no budget.
	TimeLimit time.Duration `yaml:"time_limit"`

	// Batch sizing bounds for the adaptive scheduler.
	MinBatchSize     int `yaml:"min_batch_size"`
	MaxBatchSize     int `yaml:"max_batch_size"`
	InitialBatchSize int `yaml:"initial_batch_size"`

	// CheckpointEvery is the processed-record interval between checkpoint
	// writes. Independent of batch size, which varies.
	CheckpointEvery int `yaml:"checkpoint_every"`

	// ErrorCeiling aborts the run once this many record errors accumulate.
	ErrorCeiling int `yaml:"error_ceiling"`

	// InterBatchYield is the cooperative pause between batches on a shared
	// host.
	InterBatchYield time.Duration `yaml:"inter_batch_yield"`
}

// Default returns the ingestion defaults used when a field is unset.
func Default() Ingestion {
	return Ingestion{
		MinBatchSize:     5,
		MaxBatchSize:     100,
		InitialBatchSize: 10,
		CheckpointEvery:  50,
		ErrorCeiling:     100,
		InterBatchYield:  100 * time.Millisecond,
	}
}

// Normalize fills zero-valued tunables with defaults and clamps the batch
// bounds into a consistent ordering.
func (c Ingestion) Normalize() Ingestion {
	d := Default()
	if c.MinBatchSize <= 0 {
		c.MinBatchSize = d.MinBatchSize
	}
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = d.MaxBatchSize
	}
	if c.MaxBatchSize < c.MinBatchSize {
		c.MaxBatchSize = c.MinBatchSize
	}
	if c.InitialBatchSize <= 0 {
		c.InitialBatchSize = d.InitialBatchSize
	}
	if c.InitialBatchSize < c.MinBatchSize {
		c.InitialBatchSize = c.MinBatchSize
	}
	if c.InitialBatchSize > c.MaxBatchSize {
		c.InitialBatchSize = c.MaxBatchSize
	}
	if c.CheckpointEvery <= 0 {
		c.CheckpointEvery = d.CheckpointEvery
	}
	if c.ErrorCeiling <= 0 {
		c.ErrorCeiling = d.ErrorCeiling
	}
	if c.InterBatchYield <= 0 {
		c.InterBatchYield = d.InterBatchYield
	}
	return c
}
