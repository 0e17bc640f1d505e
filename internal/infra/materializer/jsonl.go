// Package materializer provides RecordMaterializer implementations. The JSONL
// sink is the built-in one; hosts embedding the ingestion core typically
// supply their own.
package materializer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/designare-evita/CSV-PRO/internal/config"
	"github.com/designare-evita/CSV-PRO/internal/domain/ingestion"
	"github.com/designare-evita/CSV-PRO/pkg/common/logger"
)

var _ ingestion.RecordMaterializer = (*JSONLSink)(nil)

// JSONLSink materializes records as JSON lines appended to a writer. Each
// entity carries the run that created it, the originating line, and the
// record's fields. Duplicate policy is owned here, not by the executor:
// duplicates surface as a DuplicateError (skip) or a ValidationError
// (counted) depending on configuration.
type JSONLSink struct {
	w   io.Writer
	c   io.Closer
	enc *json.Encoder

	keyColumn      string
	skipDuplicates bool
	sinkType       string
	sinkStatus     string

	dedupe *dedupe
	logger *logger.Logger
}

// SinkOption configures optional sink behavior.
type SinkOption func(*JSONLSink)

// WithDedupeSize bounds the duplicate-detection window.
func WithDedupeSize(size int) SinkOption {
	return func(s *JSONLSink) {
		d, err := newDedupe(size)
		if err == nil {
			s.dedupe = d
		}
	}
}

// NewJSONLSink creates a sink writing to w. keyColumn is the field duplicates
// are detected on; an empty keyColumn disables duplicate detection.
func NewJSONLSink(w io.Writer, keyColumn string, cfg config.Ingestion, log *logger.Logger, opts ...SinkOption) (*JSONLSink, error) {
	d, err := newDedupe(defaultDedupeSize)
	if err != nil {
		return nil, fmt.Errorf("creating dedupe cache: %w", err)
	}
	s := &JSONLSink{
		w:              w,
		enc:            json.NewEncoder(w),
		keyColumn:      keyColumn,
		skipDuplicates: cfg.SkipDuplicates,
		sinkType:       cfg.SinkType,
		sinkStatus:     cfg.SinkStatus,
		dedupe:         d,
		logger:         log.With("component", "jsonl_sink"),
	}
	if c, ok := w.(io.Closer); ok {
		s.c = c
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// OpenJSONLFile creates a sink appending to the file at path.
func OpenJSONLFile(path, keyColumn string, cfg config.Ingestion, log *logger.Logger, opts ...SinkOption) (*JSONLSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening sink file: %w", err)
	}
	return NewJSONLSink(f, keyColumn, cfg, log, opts...)
}

// entity is the stored shape of one materialized record.
type entity struct {
	ID     string            `json:"id"`
	RunID  string            `json:"run_id"`
	Line   int               `json:"line"`
	Type   string            `json:"type,omitempty"`
	Status string            `json:"status,omitempty"`
	Fields map[string]string `json:"fields"`
}

// Materialize validates and stores one record. The returned error kind tells
// the executor what happened: ErrKindDuplicate is a skip, ErrKindValidation
// and ErrKindSink count toward the abort ceiling.
func (s *JSONLSink) Materialize(_ context.Context, rec ingestion.Record, runID uuid.UUID) (string, error) {
	var key string
	if s.keyColumn != "" {
		key = strings.TrimSpace(rec.Get(s.keyColumn))
		if key == "" {
			return "", ingestion.NewValidationError(fmt.Sprintf("%s is required", s.keyColumn))
		}
		if s.dedupe.Seen(key) {
			if s.skipDuplicates {
				return "", ingestion.NewDuplicateError(key)
			}
			return "", ingestion.NewValidationError(fmt.Sprintf("duplicate %s: %s", s.keyColumn, key))
		}
	}

	fields := make(map[string]string, rec.Len())
	for i, name := range rec.Header() {
		fields[name] = rec.Values()[i]
	}

	ent := entity{
		ID:     fmt.Sprintf("%s-%d", runID.String()[:8], rec.Line()),
		RunID:  runID.String(),
		Line:   rec.Line(),
		Type:   s.sinkType,
		Status: s.sinkStatus,
		Fields: fields,
	}
	if err := s.enc.Encode(ent); err != nil {
		return "", ingestion.NewSinkError(err)
	}
	return ent.ID, nil
}

// Close releases the underlying writer when it is closable.
func (s *JSONLSink) Close() error {
	if s.c == nil {
		return nil
	}
	return s.c.Close()
}
