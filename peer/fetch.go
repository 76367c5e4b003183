package peer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"go.uber.org/multierr"

	"tarun-kavipurapu/lanfetch/pkg/logger"
	"tarun-kavipurapu/lanfetch/pkg/protocol"
	"tarun-kavipurapu/lanfetch/pkg/storage"
)

// FileResult is the outcome of one file in a batch.
type FileResult struct {
	FileID   string
	FileName string
	// Path is the sanitized destination, set once it is known.
	Path     string
	Bytes    int64
	Duration time.Duration
	Err      error
}

func (r FileResult) OK() bool { return r.Err == nil }

// Results lists one entry per manifest file, ordered by file id.
type Results []FileResult

func (rs Results) Succeeded() []FileResult {
	var out []FileResult
	for _, r := range rs {
		if r.OK() {
			out = append(out, r)
		}
	}
	return out
}

func (rs Results) Failed() []FileResult {
	var out []FileResult
	for _, r := range rs {
		if !r.OK() {
			out = append(out, r)
		}
	}
	return out
}

// Err combines every file failure, or returns nil when all succeeded.
func (rs Results) Err() error {
	var err error
	for _, r := range rs {
		err = multierr.Append(err, r.Err)
	}
	return err
}

// FetchAll downloads every file of manifest into destRoot. Files are
// fetched concurrently; one failure never cancels the others. Entries whose
// names land on the same path get "name (n).ext" destinations.
func (c *Client) FetchAll(ctx context.Context, baseURL, pin string, manifest *protocol.PrepareDownloadResponse, destRoot string) Results {
	store := storage.NewStore(destRoot)
	c.opts.Tracker.Init(manifest.Files)

	keys := make([]string, 0, len(manifest.Files))
	for k := range manifest.Files {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sem chan struct{}
	if c.opts.MaxConcurrent > 0 {
		sem = make(chan struct{}, c.opts.MaxConcurrent)
	}

	names := storage.NameSet{}
	results := make(Results, len(keys))
	var wg sync.WaitGroup
	for i, key := range keys {
		info := manifest.Files[key]
		if info.ID == "" {
			info.ID = key
		}
		dest := names.Claim(info.FileName)

		wg.Add(1)
		go func(i int, info protocol.FileInfo, dest string) {
			defer wg.Done()
			if sem != nil {
				select {
				case sem <- struct{}{}:
					defer func() { <-sem }()
				case <-ctx.Done():
					results[i] = c.fail(FileResult{FileID: info.ID, FileName: info.FileName},
						&FileError{FileID: info.ID, FileName: info.FileName, Kind: NetworkFailure, Err: ctx.Err()})
					return
				}
			}
			results[i] = c.fetchFile(ctx, store, baseURL, pin, manifest.SessionID, info, dest)
		}(i, info, dest)
	}
	wg.Wait()

	logger.Sugar.Infof("[Download] Session %s finished: %d succeeded, %d failed (into %s)",
		manifest.SessionID, len(results.Succeeded()), len(results.Failed()), store.Root())
	return results
}

func (c *Client) fetchFile(ctx context.Context, store *storage.Store, baseURL, pin, sessionID string, info protocol.FileInfo, dest string) FileResult {
	start := time.Now()
	res := FileResult{FileID: info.ID, FileName: info.FileName}
	fileErr := func(kind FailureKind, status int, err error) *FileError {
		return &FileError{FileID: info.ID, FileName: info.FileName, Kind: kind, StatusCode: status, Err: err}
	}

	full, err := store.Prepare(dest)
	res.Path = full
	if err != nil {
		return c.fail(res, fileErr(IoFailure, 0, err))
	}

	q := url.Values{}
	q.Set("sessionId", sessionID)
	q.Set("fileId", info.ID)
	if pin != "" {
		q.Set("pin", pin)
	}
	endpoint, err := endpointURL(baseURL, protocol.DownloadPath, q)
	if err != nil {
		return c.fail(res, fileErr(NetworkFailure, 0, err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return c.fail(res, fileErr(NetworkFailure, 0, err))
	}
	req.Header.Set("User-Agent", protocol.UserAgent)

	c.opts.Tracker.Start(info.ID)
	logger.Sugar.Debugf("[Download] GET %s", redact(endpoint))
	resp, err := c.http.Do(req)
	if err != nil {
		return c.fail(res, fileErr(NetworkFailure, 0, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.fail(res, fileErr(StatusFailure, resp.StatusCode, fmt.Errorf("status %d", resp.StatusCode)))
	}

	f, full, err := store.Create(dest)
	res.Path = full
	if err != nil {
		return c.fail(res, fileErr(IoFailure, 0, err))
	}

	var w io.Writer = f
	var hasher *storage.HashingWriter
	if c.opts.VerifyChecksum && info.SHA256 != "" {
		hasher = storage.NewHashingWriter(f)
		w = hasher
	}
	w = &progressWriter{w: w, tracker: c.opts.Tracker, id: info.ID}
	body := &bodyReader{r: resp.Body}

	n, copyErr := io.Copy(w, body)
	closeErr := f.Close()
	res.Bytes = n

	switch {
	case copyErr != nil && body.err != nil:
		c.discard(store, full)
		return c.fail(res, fileErr(NetworkFailure, 0, copyErr))
	case copyErr != nil:
		c.discard(store, full)
		return c.fail(res, fileErr(IoFailure, 0, copyErr))
	case closeErr != nil:
		c.discard(store, full)
		return c.fail(res, fileErr(IoFailure, 0, closeErr))
	}

	if hasher != nil && !storage.ChecksumMatches(info.SHA256, hasher.Sum()) {
		c.discard(store, full)
		return c.fail(res, fileErr(ChecksumFailure, 0,
			fmt.Errorf("expected sha256 %s, got %s", info.SHA256, hasher.Sum())))
	}

	if info.Size > 0 && uint64(n) != info.Size {
		logger.Sugar.Debugf("[Download] %s: received %d bytes, manifest declared %d", info.FileName, n, info.Size)
	}

	res.Duration = time.Since(start)
	c.opts.Tracker.Complete(info.ID)
	c.opts.Metrics.RecordTransfer(n, res.Duration)
	logger.Sugar.Infof("[Download] Saved %s (%d bytes)", full, n)
	return res
}

func (c *Client) fail(res FileResult, err *FileError) FileResult {
	res.Err = err
	c.opts.Tracker.Fail(res.FileID)
	c.opts.Metrics.RecordFailure()
	logger.Sugar.Errorf("[Download] %v", err)
	return res
}

func (c *Client) discard(store *storage.Store, full string) {
	if err := store.Remove(full); err != nil {
		logger.Sugar.Warnf("[Download] Failed to remove partial file %s: %v", full, err)
	}
}

// progressWriter reports written bytes to a Tracker.
type progressWriter struct {
	w       io.Writer
	tracker *Tracker
	id      string
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.tracker.Add(p.id, n)
	return n, err
}

// bodyReader remembers read errors so they can be told apart from write errors.
type bodyReader struct {
	r   io.Reader
	err error
}

func (b *bodyReader) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	if err != nil && err != io.EOF {
		b.err = err
	}
	return n, err
}
