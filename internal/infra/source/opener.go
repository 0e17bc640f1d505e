package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/cenkalti/backoff"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/designare-evita/CSV-PRO/internal/domain/ingestion"
	"github.com/designare-evita/CSV-PRO/pkg/common/logger"
	"github.com/designare-evita/CSV-PRO/pkg/common/ratelimit"
)

// Opener materializes a Descriptor into a readable stream plus a best-effort
// size hint. Remote opens are rate limited and retried with exponential
// backoff to ride out transient origin failures during startup.
type Opener struct {
	client  *http.Client
	limiter *ratelimit.Limiter

	logger *logger.Logger
	tracer trace.Tracer
}

// OpenerOption configures optional Opener behavior.
type OpenerOption func(*Opener)

// WithHTTPClient overrides the HTTP client used for remote sources.
func WithHTTPClient(c *http.Client) OpenerOption {
	return func(o *Opener) { o.client = c }
}

// WithRateLimit bounds remote requests per second.
func WithRateLimit(rps float64, burst int) OpenerOption {
	return func(o *Opener) { o.limiter = ratelimit.NewLimiter(rps, burst) }
}

// NewOpener creates an Opener.
func NewOpener(log *logger.Logger, tracer trace.Tracer, opts ...OpenerOption) *Opener {
	o := &Opener{
		client:  &http.Client{Timeout: 5 * time.Minute},
		limiter: ratelimit.NewLimiter(2, 2),
		logger:  log.With("component", "source_opener"),
		tracer:  tracer,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Open returns the source stream and a size hint in bytes (0 when unknown).
// Failure to open is fatal for the run and surfaces as SourceUnavailable;
// failure to size the stream is not.
func (o *Opener) Open(ctx context.Context, d Descriptor) (io.ReadCloser, int64, error) {
	ctx, span := o.tracer.Start(ctx, "source_opener.open",
		trace.WithAttributes(
			attribute.String("descriptor", d.Resolved()),
			attribute.Bool("remote", d.IsRemote()),
		))
	defer span.End()

	if !d.IsRemote() {
		f, err := os.Open(d.Resolved())
		if err != nil {
			span.RecordError(err)
			return nil, 0, ingestion.NewSourceUnavailableError(d.Raw(), err)
		}

		var size int64
		if info, err := f.Stat(); err == nil {
			size = info.Size()
		}
		return f, size, nil
	}

	rc, size, err := o.openRemote(ctx, d)
	if err != nil {
		span.RecordError(err)
		return nil, 0, ingestion.NewSourceUnavailableError(d.Raw(), err)
	}
	return rc, size, nil
}

// SizeHint probes the source size without opening it for reading. Local paths
// use the filesystem; remote URLs use a HEAD request. Any failure yields 0.
func (o *Opener) SizeHint(ctx context.Context, d Descriptor) int64 {
	if !d.IsRemote() {
		info, err := os.Stat(d.Resolved())
		if err != nil {
			return 0
		}
		return info.Size()
	}

	if err := o.limiter.Wait(ctx); err != nil {
		return 0
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, d.Resolved(), nil)
	if err != nil {
		return 0
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return 0
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || resp.ContentLength < 0 {
		return 0
	}
	return resp.ContentLength
}

// openRemote fetches the URL with retry. Transient failures (network errors,
// 5xx) are retried for up to two minutes; client errors are permanent.
func (o *Opener) openRemote(ctx context.Context, d Descriptor) (io.ReadCloser, int64, error) {
	var (
		body io.ReadCloser
		size int64
	)

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.MaxElapsedTime = 2 * time.Minute
	expBackoff.InitialInterval = time.Second

	operation := func() error {
		if err := o.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.Resolved(), nil)
		if err != nil {
			return backoff.Permanent(err)
		}

		resp, err := o.client.Do(req)
		if err != nil {
			return err
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			resp.Body.Close()
			err := fmt.Errorf("received non-2xx response code %d", resp.StatusCode)
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return backoff.Permanent(err)
			}
			return err
		}

		body = resp.Body
		size = resp.ContentLength
		if size < 0 {
			size = 0
		}
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(expBackoff, ctx)); err != nil {
		return nil, 0, fmt.Errorf("failed to fetch URL after retries: %w", err)
	}
	return body, size, nil
}
