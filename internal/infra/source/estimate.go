package source

import (
	"bufio"
	"context"
	"os"
)

// Row-count estimation tunables. Estimates feed progress percentages only and
// never drive correctness decisions, so cheap approximations are fine.
const (
	// sampleLineCap bounds how many lines a local estimate will read before
	// extrapolating from the bytes-consumed ratio.
	sampleLineCap = 10_000

	// remoteAvgRowBytes is the assumed average row width for remote sources
	// where only the content length is known.
	remoteAvgRowBytes = 125
)

// EstimateRows approximates the number of data rows in the source without
// materializing it. Local sources sample up to sampleLineCap lines and
// extrapolate from file size; remote sources divide the content length by an
// assumed average row width. Any failure yields 0.
func (o *Opener) EstimateRows(ctx context.Context, d Descriptor) int {
	if d.IsRemote() {
		size := o.SizeHint(ctx, d)
		if size <= 0 {
			return 0
		}
		return int(size / remoteAvgRowBytes)
	}

	return estimateLocalRows(d.Resolved())
}

func estimateLocalRows(path string) int {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0
	}
	size := info.Size()

	var (
		lines     int
		bytesRead int64
	)

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines++
		bytesRead += int64(len(scanner.Bytes())) + 1 // +1 for the newline
		if lines >= sampleLineCap {
			break
		}
	}

	if lines == 0 {
		return 0
	}

	// Exclude the mandatory header row from the data-row count.
	if lines < sampleLineCap || bytesRead >= size {
		if lines <= 1 {
			return 0
		}
		return lines - 1
	}

	estimated := int(float64(lines) * float64(size) / float64(bytesRead))
	return estimated - 1
}
