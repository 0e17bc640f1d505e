package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/designare-evita/CSV-PRO/internal/domain/ingestion"
	"github.com/designare-evita/CSV-PRO/pkg/common/logger"
)

func testOpener(t *testing.T, opts ...OpenerOption) *Opener {
	t.Helper()
	log := logger.New(io.Discard, logger.LevelDebug, "TEST", nil)
	return NewOpener(log, noop.NewTracerProvider().Tracer("test"), opts...)
}

func TestResolveLocalPath(t *testing.T) {
	d := Resolve("  /data/products.csv ")
	assert.False(t, d.IsRemote())
	assert.Equal(t, "/data/products.csv", d.Resolved())
	assert.Equal(t, "  /data/products.csv ", d.Raw())
}

func TestResolveShareLinks(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "dropbox dl flag",
			in:   "https://www.dropbox.com/s/abc/products.csv?dl=0",
			want: "https://www.dropbox.com/s/abc/products.csv?dl=1",
		},
		{
			name: "google drive file link",
			in:   "https://drive.google.com/file/d/FILE123/view?usp=sharing",
			want: "https://drive.google.com/uc?export=download&id=FILE123",
		},
		{
			name: "google drive open link",
			in:   "https://drive.google.com/open?id=FILE456",
			want: "https://drive.google.com/uc?export=download&id=FILE456",
		},
		{
			name: "plain url untouched",
			in:   "https://example.com/products.csv",
			want: "https://example.com/products.csv",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Resolve(tt.in)
			require.True(t, d.IsRemote())
			assert.Equal(t, tt.want, d.Resolved())
		})
	}
}

func TestResolveIsPure(t *testing.T) {
	in := "https://www.dropbox.com/s/abc/p.csv?dl=0"
	first := Resolve(in)
	second := Resolve(first.Resolved())
	assert.Equal(t, first.Resolved(), second.Resolved())
}

func TestOpenLocalFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.csv")
	content := "title,price\nWidget,19.99\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	o := testOpener(t)
	rc, size, err := o.Open(context.Background(), Resolve(path))
	require.NoError(t, err)
	defer rc.Close()

	assert.Equal(t, int64(len(content)), size)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, content, string(got))
}

func TestOpenLocalFileMissing(t *testing.T) {
	o := testOpener(t)
	_, _, err := o.Open(context.Background(), Resolve("/does/not/exist.csv"))
	require.Error(t, err)
	assert.True(t, ingestion.IsKind(err, ingestion.ErrKindSourceUnavailable))
}

func TestOpenRemote(t *testing.T) {
	content := "title,price\nWidget,19.99\n"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, content)
	}))
	defer srv.Close()

	o := testOpener(t)
	rc, size, err := o.Open(context.Background(), Resolve(srv.URL+"/data.csv"))
	require.NoError(t, err)
	defer rc.Close()

	assert.Equal(t, int64(len(content)), size)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, content, string(got))
}

func TestOpenRemoteClientErrorIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	o := testOpener(t)
	_, _, err := o.Open(context.Background(), Resolve(srv.URL+"/missing.csv"))
	require.Error(t, err)
	assert.True(t, ingestion.IsKind(err, ingestion.ErrKindSourceUnavailable))
}

func TestSizeHintRemote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", "12345")
			return
		}
		http.Error(w, "unexpected", http.StatusBadRequest)
	}))
	defer srv.Close()

	o := testOpener(t)
	assert.Equal(t, int64(12345), o.SizeHint(context.Background(), Resolve(srv.URL+"/f.csv")))
}

func TestSizeHintFailureYieldsZero(t *testing.T) {
	o := testOpener(t)
	assert.Equal(t, int64(0), o.SizeHint(context.Background(), Resolve("/does/not/exist.csv")))
}

func TestEstimateRowsLocalSmallFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.csv")

	var sb strings.Builder
	sb.WriteString("title,price\n")
	for i := 0; i < 250; i++ {
		fmt.Fprintf(&sb, "Product %d,%d.99\n", i, i)
	}
	require.NoError(t, os.WriteFile(path, []byte(sb.String()), 0o600))

	o := testOpener(t)
	// Below the sampling cap the count is exact.
	assert.Equal(t, 250, o.EstimateRows(context.Background(), Resolve(path)))
}

func TestEstimateRowsRemote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "125000")
	}))
	defer srv.Close()

	o := testOpener(t)
	assert.Equal(t, 1000, o.EstimateRows(context.Background(), Resolve(srv.URL+"/f.csv")))
}

func TestEstimateRowsMissingSource(t *testing.T) {
	o := testOpener(t)
	assert.Equal(t, 0, o.EstimateRows(context.Background(), Resolve("/does/not/exist.csv")))
}
