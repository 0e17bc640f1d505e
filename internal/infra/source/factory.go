package source

import (
	"context"

	"github.com/designare-evita/CSV-PRO/internal/domain/ingestion"
	"github.com/designare-evita/CSV-PRO/internal/infra/decoder"
)

// DecoderFactory binds resolution, opening, and decoding into the single port
// the run loop consumes. Each OpenDecoder call yields an independent stream.
type DecoderFactory struct {
	opener *Opener
}

// NewDecoderFactory creates a factory over the given opener.
func NewDecoderFactory(opener *Opener) *DecoderFactory {
	return &DecoderFactory{opener: opener}
}

// OpenDecoder resolves the descriptor, opens its stream, and wraps it in a
// CSV decoder. The returned estimate is display-only and zero when the source
// cannot be sized.
func (f *DecoderFactory) OpenDecoder(ctx context.Context, descriptor string) (ingestion.RecordDecoder, int, error) {
	d := Resolve(descriptor)

	estimate := f.opener.EstimateRows(ctx, d)

	rc, size, err := f.opener.Open(ctx, d)
	if err != nil {
		return nil, 0, err
	}
	return decoder.New(rc, size), estimate, nil
}
