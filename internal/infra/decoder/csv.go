// Package decoder implements the streaming CSV decoder: one delimited record
// at a time, paired with the mandatory header row, without ever holding more
// than one raw row in memory.
package decoder

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/designare-evita/CSV-PRO/internal/domain/ingestion"
)

// CSVDecoder reads comma-separated, double-quote escaped, UTF-8 records from
// an open stream. It implements ingestion.RecordDecoder.
type CSVDecoder struct {
	src      io.ReadCloser
	counter  *countingReader
	reader   *csv.Reader
	sizeHint int64

	header []string
	// line is the 1-based source line of the most recently decoded row,
	// counting the header as line 1.
	line int
}

var _ ingestion.RecordDecoder = (*CSVDecoder)(nil)

// New creates a CSVDecoder over the given stream. sizeHint, when positive,
// enables percentage reporting in Progress; pass 0 when the source size is
// unknown.
func New(src io.ReadCloser, sizeHint int64) *CSVDecoder {
	counter := &countingReader{r: src}
	reader := csv.NewReader(counter)
	// Rows may be ragged; the positional zip against the header is the
	// authoritative row-shape contract.
	reader.FieldsPerRecord = -1

	return &CSVDecoder{
		src:      src,
		counter:  counter,
		reader:   reader,
		sizeHint: sizeHint,
	}
}

// ReadHeader decodes the header row. It must be called exactly once before
// any ReadRow and fails with EmptySource when the stream holds no rows.
func (d *CSVDecoder) ReadHeader() ([]string, error) {
	if d.header != nil {
		return nil, fmt.Errorf("header already read")
	}

	row, err := d.reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ingestion.NewEmptySourceError()
		}
		return nil, fmt.Errorf("failed to decode header row: %w", err)
	}

	header := make([]string, len(row))
	for i, field := range row {
		header[i] = strings.TrimSpace(field)
	}

	d.header = header
	d.line = 1
	return header, nil
}

// ReadRow decodes exactly one data row, trims each field, and zips it against
// the header by positional index. The second return value is false once the
// stream is exhausted; exhaustion is normal termination, never an error.
func (d *CSVDecoder) ReadRow() (ingestion.Record, bool, error) {
	if d.header == nil {
		return ingestion.Record{}, false, fmt.Errorf("ReadRow called before ReadHeader")
	}

	row, err := d.reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return ingestion.Record{}, false, nil
		}
		d.line++
		return ingestion.Record{}, false, fmt.Errorf("failed to decode row at line %d: %w", d.line, err)
	}

	for i, field := range row {
		row[i] = strings.TrimSpace(field)
	}

	d.line++
	return ingestion.NewRecord(d.line, d.header, row), true, nil
}

// Progress reports lines and bytes consumed so far. All values are
// monotonically non-decreasing across the decoder's lifetime.
func (d *CSVDecoder) Progress() ingestion.DecodeProgress {
	p := ingestion.DecodeProgress{
		Bytes: d.counter.n,
	}
	if d.line > 1 {
		p.Lines = d.line - 1
	}
	if d.sizeHint > 0 {
		p.Percent = float64(p.Bytes) / float64(d.sizeHint) * 100
		if p.Percent > 100 {
			p.Percent = 100
		}
	}
	return p
}

// Close releases the underlying stream.
func (d *CSVDecoder) Close() error { return d.src.Close() }

// countingReader tracks raw bytes consumed from the source for progress
// accounting.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
