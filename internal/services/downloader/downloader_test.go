package downloader

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nyushi/internal/common"
	"github.com/ternarybob/nyushi/internal/pipeline"
)

// recordingBlob is a test double for interfaces.Blob that records whether
// Put was ever invoked, so a rejected download can assert no object reached
// storage.
type recordingBlob struct {
	puts int
}

func (b *recordingBlob) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	b.puts++
	return key, nil
}
func (b *recordingBlob) Get(ctx context.Context, key string) ([]byte, error) { return nil, nil }
func (b *recordingBlob) SignedURL(ctx context.Context, key string, ttlSeconds int) (string, error) {
	return "", nil
}
func (b *recordingBlob) Delete(ctx context.Context, key string) error { return nil }
func (b *recordingBlob) Close() error                                 { return nil }

func newTestAdapter(blob *recordingBlob, maxFileSizeMB int) *Adapter {
	cfg := common.DownloadConfig{
		Timeout:           "5s",
		MaxFileSizeMB:     maxFileSizeMB,
		AllowedExtensions: []string{"pdf", "doc", "docx", "xls", "xlsx"},
	}
	return NewAdapter(arbor.NewLogger(), cfg, blob)
}

// TestDownloadRejectsOversizeByContentLength exercises the HEAD-based
// pre-check: a Content-Length above the configured cap must fail with
// pipeline.ErrOversize and never reach Blob.Put.
func TestDownloadRejectsOversizeByContentLength(t *testing.T) {
	const oneMB = 1 << 20
	body := strings.Repeat("a", 2*oneMB)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "2097152")
		if r.Method == http.MethodHead {
			return
		}
		w.Write([]byte(body))
	}))
	defer srv.Close()

	blob := &recordingBlob{}
	adapter := newTestAdapter(blob, 1) // 1 MiB cap, response claims 2 MiB

	result, err := adapter.Download(context.Background(), srv.URL+"/doc.pdf", "task_1/raw", "")
	if err != nil {
		t.Fatalf("Download() unexpected top-level error = %v", err)
	}
	if result.OK {
		t.Fatalf("Download() OK = true, want false for an oversize response")
	}
	if !errors.Is(result.Err, pipeline.ErrOversize) {
		t.Fatalf("Download() Err = %v, want errors.Is(..., pipeline.ErrOversize)", result.Err)
	}
	if blob.puts != 0 {
		t.Fatalf("Blob.Put called %d times, want 0 for a rejected oversize download", blob.puts)
	}
}

// TestDownloadRejectsOversizeDuringStream covers the streamed-copy cap for
// servers that omit or understate Content-Length, so checkHead's HEAD-based
// pre-check lets the request through to fetchBody.
func TestDownloadRejectsOversizeDuringStream(t *testing.T) {
	const oneMB = 1 << 20
	body := strings.Repeat("a", 2*oneMB)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			return // no Content-Length advertised
		}
		w.Write([]byte(body))
	}))
	defer srv.Close()

	blob := &recordingBlob{}
	adapter := newTestAdapter(blob, 1)

	result, err := adapter.Download(context.Background(), srv.URL+"/doc.pdf", "task_1/raw", "")
	if err != nil {
		t.Fatalf("Download() unexpected top-level error = %v", err)
	}
	if result.OK {
		t.Fatalf("Download() OK = true, want false for a stream that exceeds the cap")
	}
	if !errors.Is(result.Err, pipeline.ErrOversize) {
		t.Fatalf("Download() Err = %v, want errors.Is(..., pipeline.ErrOversize)", result.Err)
	}
	if blob.puts != 0 {
		t.Fatalf("Blob.Put called %d times, want 0 for a rejected oversize download", blob.puts)
	}
}

// TestDownloadRejectsUnsupportedExtension covers the extension allowlist
// path with the same errors.Is contract as the size checks.
func TestDownloadRejectsUnsupportedExtension(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not a document"))
	}))
	defer srv.Close()

	blob := &recordingBlob{}
	adapter := newTestAdapter(blob, 50)

	result, err := adapter.Download(context.Background(), srv.URL+"/page.html", "task_1/raw", "")
	if err != nil {
		t.Fatalf("Download() unexpected top-level error = %v", err)
	}
	if result.OK {
		t.Fatalf("Download() OK = true, want false for a disallowed extension")
	}
	if !errors.Is(result.Err, pipeline.ErrUnsupportedType) {
		t.Fatalf("Download() Err = %v, want errors.Is(..., pipeline.ErrUnsupportedType)", result.Err)
	}
	if blob.puts != 0 {
		t.Fatalf("Blob.Put called %d times, want 0 for a rejected extension", blob.puts)
	}
}

// TestDownloadAcceptsWithinLimit is the positive control: a small PDF under
// the cap must reach Blob.Put exactly once.
func TestDownloadAcceptsWithinLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4 minimal"))
	}))
	defer srv.Close()

	blob := &recordingBlob{}
	adapter := newTestAdapter(blob, 50)

	result, err := adapter.Download(context.Background(), srv.URL+"/doc.pdf", "task_1/raw", "")
	if err != nil {
		t.Fatalf("Download() unexpected error = %v", err)
	}
	if !result.OK {
		t.Fatalf("Download() OK = false, want true; Err = %v", result.Err)
	}
	if blob.puts != 1 {
		t.Fatalf("Blob.Put called %d times, want 1", blob.puts)
	}
}
