package peer

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"tarun-kavipurapu/lanfetch/pkg/logger"
	"tarun-kavipurapu/lanfetch/pkg/monitor"
	"tarun-kavipurapu/lanfetch/pkg/protocol"
)

// maxManifestSize bounds the prepare-download body we are willing to read.
const maxManifestSize = 16 << 20

// ClientOptions configures a download Client.
type ClientOptions struct {
	// HTTPClient is shared by the handshake and every file request.
	// When nil a client with a pooled transport is created.
	HTTPClient *http.Client

	// RequestTimeout bounds the handshake only; file streams are bounded
	// by the caller's context.
	RequestTimeout time.Duration

	// MaxConcurrent caps in-flight file requests; 0 means one per file.
	MaxConcurrent int

	// AcceptSelfSigned disables certificate verification on the default
	// transport. Ignored when HTTPClient is set.
	AcceptSelfSigned bool

	VerifyChecksum bool
	Tracker        *Tracker
	Metrics        *monitor.Metrics
}

// Client talks to a sender's HTTP API.
type Client struct {
	http *http.Client
	opts ClientOptions
}

func NewClient(opts ClientOptions) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		tr := http.DefaultTransport.(*http.Transport).Clone()
		tr.MaxIdleConnsPerHost = 16
		if opts.AcceptSelfSigned {
			tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		}
		hc = &http.Client{Transport: tr}
	}
	if opts.Metrics == nil {
		opts.Metrics = monitor.Global
	}
	return &Client{http: hc, opts: opts}
}

// PrepareDownload opens a download session with the sender at baseURL.
// An empty pin is not sent.
func (c *Client) PrepareDownload(ctx context.Context, baseURL, pin string) (*protocol.PrepareDownloadResponse, error) {
	q := url.Values{}
	if pin != "" {
		q.Set("pin", pin)
	}
	endpoint, err := endpointURL(baseURL, protocol.PrepareDownloadPath, q)
	if err != nil {
		return nil, err
	}

	if c.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.RequestTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build prepare-download request: %w", err)
	}
	req.Header.Set("User-Agent", protocol.UserAgent)

	logger.Sugar.Debugf("[Download] POST %s", redact(endpoint))
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("prepare-download request to %s failed: %w", baseURL, err)
	}
	defer resp.Body.Close()

	if err := handshakeStatus(resp.StatusCode); err != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		logger.Sugar.Warnf("[Download] Handshake with %s refused: %v", baseURL, err)
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxManifestSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read prepare-download response: %w", err)
	}
	manifest, err := protocol.DecodePrepareDownload(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}

	logger.Sugar.Infof("[Download] Session %s from %s offers %d file(s)",
		manifest.SessionID, manifest.Info.Alias, len(manifest.Files))
	return manifest, nil
}

// endpointURL resolves path against base and attaches the query.
func endpointURL(base, path string, q url.Values) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base url %q: %w", base, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid base url %q: scheme and host required", base)
	}
	ref := &url.URL{Path: path, RawQuery: q.Encode()}
	return u.ResolveReference(ref).String(), nil
}

// redact hides the pin in logged URLs.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	if q.Has("pin") {
		q.Set("pin", "***")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
