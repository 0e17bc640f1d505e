package ingestion

// Record is one decoded input row: an ordered pairing of header names with
// trimmed string values. Values are zipped against the header by positional
// index; missing trailing fields default to the empty string. Records are
// ephemeral and never retained beyond the batch that pulled them.
type Record struct {
	line   int
	header []string
	values []string
}

// NewRecord pairs a decoded row with the header. Rows shorter than the header
// are padded with empty strings; rows longer than the header keep only the
// positions the header names. The line number is the 1-based position of the
// row in the source, counting the header as line 1.
func NewRecord(line int, header, values []string) Record {
	padded := make([]string, len(header))
	copy(padded, values)
	return Record{line: line, header: header, values: padded}
}

// Line returns the 1-based source line this record was decoded from.
func (r Record) Line() int { return r.line }

// Header returns the ordered field names shared by every record of a stream.
func (r Record) Header() []string { return r.header }

// Values returns the ordered field values, one per header position.
func (r Record) Values() []string { return r.values }

// Len returns the number of fields.
func (r Record) Len() int { return len(r.header) }

// Get returns the value for the named field, or the empty string when the
// header does not contain the name.
func (r Record) Get(name string) string {
	for i, h := range r.header {
		if h == name {
			return r.values[i]
		}
	}
	return ""
}

// Sample returns a copy of up to n leading field values for diagnostics.
// Individual values longer than sampleFieldMax runes are truncated.
func (r Record) Sample(n int) []string {
	if n > len(r.values) {
		n = len(r.values)
	}
	out := make([]string, n)
	for i := 0; i < n; i++ {
		v := r.values[i]
		if len(v) > sampleFieldMax {
			v = v[:sampleFieldMax] + "..."
		}
		out[i] = v
	}
	return out
}

// sampleFieldMax bounds the per-field detail retained in error reports and
// checkpoints.
const sampleFieldMax = 40
