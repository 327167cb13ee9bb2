// -----------------------------------------------------------------------
// Downloader - fetches admissions documents into the Blob store, enforcing
// size, extension, and per-host pacing policy.
// -----------------------------------------------------------------------

package downloader

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nyushi/internal/common"
	"github.com/ternarybob/nyushi/internal/interfaces"
	"github.com/ternarybob/nyushi/internal/pipeline"
)

const chunkSize = 64 << 10 // 64 KiB read steps, enforces the size cap before buffering the whole body

// Adapter implements interfaces.Downloader over net/http, enforcing
// DownloadConfig's allowed-extension and size-limit policy and pacing
// requests per host with a token-bucket rate.Limiter.
type Adapter struct {
	logger     arbor.ILogger
	httpClient *http.Client
	blob       interfaces.Blob
	config     common.DownloadConfig
	maxBytes   int64

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewAdapter builds a Downloader bound to blob and config.
func NewAdapter(logger arbor.ILogger, config common.DownloadConfig, blob interfaces.Blob) *Adapter {
	timeout := 60 * time.Second
	if d, err := time.ParseDuration(config.Timeout); err == nil && d > 0 {
		timeout = d
	}

	maxFileSizeMB := config.MaxFileSizeMB
	if maxFileSizeMB <= 0 {
		maxFileSizeMB = 50
	}

	return &Adapter{
		logger:     logger,
		httpClient: &http.Client{Timeout: timeout},
		blob:       blob,
		config:     config,
		maxBytes:   int64(maxFileSizeMB) << 20,
		limiters:   make(map[string]*rate.Limiter),
	}
}

var _ interfaces.Downloader = (*Adapter)(nil)

// Download fetches rawURL, storing it under destKeyPrefix/<filename> in the
// Blob store. A non-nil, non-OK result carries the failure reason in Err;
// Download itself only returns a non-nil error for caller-side misuse
// (empty URL), keeping per-file failures terminal but non-fatal to the
// caller's stage loop.
func (a *Adapter) Download(ctx context.Context, rawURL, destKeyPrefix, nameOverride string) (*interfaces.DownloadResult, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("download: empty url")
	}

	if err := a.limiterFor(rawURL).Wait(ctx); err != nil {
		return &interfaces.DownloadResult{OK: false, Err: err}, nil
	}

	if err := a.checkHead(ctx, rawURL); err != nil {
		return &interfaces.DownloadResult{OK: false, Err: err}, nil
	}

	data, cdFilename, contentType, err := a.fetchBody(ctx, rawURL)
	if err != nil {
		return &interfaces.DownloadResult{OK: false, Err: err}, nil
	}

	filename := resolveFilename(nameOverride, cdFilename, rawURL, contentType)

	ext := strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
	if !a.extensionAllowed(ext) {
		return &interfaces.DownloadResult{OK: false, Err: fmt.Errorf("%w: %q", pipeline.ErrUnsupportedType, ext)}, nil
	}

	key := strings.TrimSuffix(destKeyPrefix, "/") + "/" + filename
	storageKey, err := a.blob.Put(ctx, key, data, contentTypeForExt(ext))
	if err != nil {
		return &interfaces.DownloadResult{OK: false, Err: fmt.Errorf("blob put failed: %w", err)}, nil
	}

	return &interfaces.DownloadResult{OK: true, StorageKey: storageKey, Size: int64(len(data))}, nil
}

// resolveFilename applies the precedence chain: caller override ->
// Content-Disposition -> URL path basename -> an md5 hash of the URL, then
// forces the chosen name to carry a recognized extension, inferring one from
// contentType when the name itself has none.
func resolveFilename(override, cdFilename, rawURL, contentType string) string {
	name := override
	if name == "" {
		name = cdFilename
	}
	if name == "" {
		if base := path.Base(rawURL); base != "" && base != "." && base != "/" {
			name = base
		}
	}
	if name == "" {
		sum := md5.Sum([]byte(rawURL))
		name = hex.EncodeToString(sum[:])
	}

	if strings.TrimPrefix(path.Ext(name), ".") != "" {
		return name
	}

	ext := extensionFromContentType(contentType)
	if ext == "" {
		ext = "pdf"
	}
	return name + "." + ext
}

func extensionFromContentType(contentType string) string {
	switch {
	case strings.Contains(contentType, "pdf"):
		return "pdf"
	case strings.Contains(contentType, "wordprocessingml"):
		return "docx"
	case strings.Contains(contentType, "msword"):
		return "doc"
	case strings.Contains(contentType, "spreadsheetml"):
		return "xlsx"
	case strings.Contains(contentType, "ms-excel"):
		return "xls"
	default:
		return ""
	}
}

// checkHead does a best-effort HEAD request to reject oversized files before
// spending a GET. Servers that reject or don't support HEAD (missing or
// zero Content-Length) fall through to the GET path, where the size cap is
// enforced definitively during the streamed copy.
func (a *Adapter) checkHead(ctx context.Context, rawURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return nil
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	if resp.ContentLength > 0 && resp.ContentLength > a.maxBytes {
		return fmt.Errorf("%w: size %d exceeds limit %d", pipeline.ErrOversize, resp.ContentLength, a.maxBytes)
	}
	return nil
}

// fetchBody performs the GET and copies the body in chunkSize steps,
// aborting as soon as the cumulative size would exceed the configured cap
// rather than buffering an oversized file fully before rejecting it. It also
// surfaces the Content-Disposition filename (if any) and Content-Type for
// the caller's filename/extension resolution.
func (a *Adapter) fetchBody(ctx context.Context, rawURL string) (data []byte, cdFilename string, contentType string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", "", err
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, "", "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, "", "", fmt.Errorf("unexpected status %d for %s", resp.StatusCode, rawURL)
	}

	contentType = resp.Header.Get("Content-Type")
	if _, params, perr := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); perr == nil {
		cdFilename = params["filename"]
	}

	data = make([]byte, 0, chunkSize)
	chunk := make([]byte, chunkSize)
	var total int64

	for {
		n, readErr := io.ReadFull(resp.Body, chunk)
		if n > 0 {
			total += int64(n)
			if total > a.maxBytes {
				return nil, "", "", fmt.Errorf("%w: exceeds %d bytes", pipeline.ErrOversize, a.maxBytes)
			}
			data = append(data, chunk[:n]...)
		}
		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			break
		}
		if readErr != nil {
			return nil, "", "", readErr
		}
	}

	return data, cdFilename, contentType, nil
}

func (a *Adapter) extensionAllowed(ext string) bool {
	if len(a.config.AllowedExtensions) == 0 {
		return true
	}
	for _, allowed := range a.config.AllowedExtensions {
		if strings.EqualFold(strings.TrimPrefix(allowed, "."), ext) {
			return true
		}
	}
	return false
}

// limiterFor returns the per-host rate.Limiter, creating one at a
// conservative 2 requests/second burst-1 pace on first use.
func (a *Adapter) limiterFor(rawURL string) *rate.Limiter {
	host := hostOf(rawURL)

	a.mu.Lock()
	defer a.mu.Unlock()

	lim, ok := a.limiters[host]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(2), 1)
		a.limiters[host] = lim
	}
	return lim
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

func contentTypeForExt(ext string) string {
	switch ext {
	case "pdf":
		return "application/pdf"
	case "doc":
		return "application/msword"
	case "docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case "xls":
		return "application/vnd.ms-excel"
	case "xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/octet-stream"
	}
}
