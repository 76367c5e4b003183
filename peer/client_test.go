package peer

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tarun-kavipurapu/lanfetch/pkg/monitor"
	"tarun-kavipurapu/lanfetch/pkg/protocol"
)

const testSession = "session-1"

type senderFile struct {
	name    string
	content []byte
	status  int
	sha256  string
}

// fakeSender serves the prepare-download and download endpoints.
type fakeSender struct {
	t            *testing.T
	pin          string
	handshake    int
	files        map[string]senderFile
	mu           sync.Mutex
	prepareQuery []string
	downloads    atomic.Int32
	inFlight     atomic.Int32
	maxInFlight  atomic.Int32
	hold         time.Duration
}

func (s *fakeSender) manifest() map[string]any {
	files := map[string]any{}
	for id, f := range s.files {
		entry := map[string]any{
			"id":       id,
			"fileName": f.name,
			"size":     len(f.content),
			"fileType": "application/octet-stream",
		}
		if f.sha256 != "" {
			entry["sha256"] = f.sha256
		}
		files[id] = entry
	}
	return map[string]any{
		"info": map[string]any{
			"alias":       "Sender",
			"version":     "2.1",
			"deviceModel": "linux",
			"deviceType":  "desktop",
			"fingerprint": "sender-fp",
			"download":    true,
		},
		"sessionId": testSession,
		"files":     files,
	}
}

func (s *fakeSender) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case protocol.PrepareDownloadPath:
		assert.Equal(s.t, http.MethodPost, r.Method)
		assert.Equal(s.t, protocol.UserAgent, r.Header.Get("User-Agent"))
		s.mu.Lock()
		s.prepareQuery = append(s.prepareQuery, r.URL.RawQuery)
		s.mu.Unlock()
		if s.handshake != 0 {
			w.WriteHeader(s.handshake)
			return
		}
		if s.pin != "" && r.URL.Query().Get("pin") != s.pin {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(s.manifest())

	case protocol.DownloadPath:
		assert.Equal(s.t, http.MethodGet, r.Method)
		s.downloads.Add(1)
		cur := s.inFlight.Add(1)
		defer s.inFlight.Add(-1)
		for {
			prev := s.maxInFlight.Load()
			if cur <= prev || s.maxInFlight.CompareAndSwap(prev, cur) {
				break
			}
		}
		if s.hold > 0 {
			time.Sleep(s.hold)
		}

		q := r.URL.Query()
		if q.Get("sessionId") != testSession {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		if s.pin != "" && q.Get("pin") != s.pin {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		f, ok := s.files[q.Get("fileId")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if f.status != 0 {
			w.WriteHeader(f.status)
			return
		}
		_, _ = w.Write(f.content)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newSender(t *testing.T, s *fakeSender) string {
	t.Helper()
	s.t = t
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	return srv.URL
}

func newTestClient(opts ClientOptions) *Client {
	if opts.Metrics == nil {
		opts.Metrics = monitor.New()
	}
	if opts.RequestTimeout == 0 {
		opts.RequestTimeout = 5 * time.Second
	}
	return NewClient(opts)
}

func sum(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}

func TestPrepareDownloadParsesManifest(t *testing.T) {
	base := newSender(t, &fakeSender{files: map[string]senderFile{
		"a": {name: "a.txt", content: []byte("hello")},
	}})

	m, err := newTestClient(ClientOptions{}).PrepareDownload(context.Background(), base, "")
	require.NoError(t, err)
	assert.Equal(t, testSession, m.SessionID)
	assert.Equal(t, "Sender", m.Info.Alias)
	assert.Equal(t, protocol.DeviceDesktop, m.Info.DeviceType)
	require.Contains(t, m.Files, "a")
	assert.Equal(t, uint64(5), m.Files["a"].Size)
}

func TestPrepareDownloadPinOnlyWhenSupplied(t *testing.T) {
	s := &fakeSender{files: map[string]senderFile{}}
	base := newSender(t, s)
	c := newTestClient(ClientOptions{})

	_, err := c.PrepareDownload(context.Background(), base, "")
	require.NoError(t, err)
	_, err = c.PrepareDownload(context.Background(), base, "1234")
	require.NoError(t, err)

	require.Len(t, s.prepareQuery, 2)
	assert.Empty(t, s.prepareQuery[0])
	assert.Equal(t, "pin=1234", s.prepareQuery[1])
}

func TestPrepareDownloadStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusForbidden, ErrForbidden},
		{http.StatusTooManyRequests, ErrRateLimited},
		{http.StatusInternalServerError, ErrPeer},
		{http.StatusBadGateway, ErrPeer},
		{http.StatusTeapot, ErrUnexpectedStatus},
		{http.StatusNotFound, ErrUnexpectedStatus},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			base := newSender(t, &fakeSender{handshake: tc.status})
			_, err := newTestClient(ClientOptions{}).PrepareDownload(context.Background(), base, "")
			require.ErrorIs(t, err, tc.want)

			var he *HandshakeError
			require.True(t, errors.As(err, &he))
			assert.Equal(t, tc.status, he.StatusCode)
		})
	}
}

func TestPrepareDownloadInvalidBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"info":{"alias":"x"},"files":{}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(ClientOptions{}).PrepareDownload(context.Background(), srv.URL, "")
	require.ErrorIs(t, err, ErrInvalidManifest)
}

func TestPrepareDownloadNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	_, err := newTestClient(ClientOptions{}).PrepareDownload(context.Background(), base, "")
	require.Error(t, err)
	var he *HandshakeError
	assert.False(t, errors.As(err, &he))
}

func TestPrepareDownloadRejectsBadBaseURL(t *testing.T) {
	_, err := newTestClient(ClientOptions{}).PrepareDownload(context.Background(), "not a url", "")
	require.Error(t, err)
}

func TestPinRequiredHandshakeWritesNothing(t *testing.T) {
	s := &fakeSender{pin: "4321", files: map[string]senderFile{
		"a": {name: "a.txt", content: []byte("secret")},
	}}
	base := newSender(t, s)
	dest := t.TempDir()

	_, err := newTestClient(ClientOptions{}).PrepareDownload(context.Background(), base, "")
	require.ErrorIs(t, err, ErrUnauthorized)

	entries, err := os.ReadDir(dest)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Zero(t, s.downloads.Load())
}

func TestFetchAllPartialFailure(t *testing.T) {
	s := &fakeSender{files: map[string]senderFile{
		"1": {name: "one.bin", content: []byte("first file")},
		"2": {name: "two.bin", content: []byte("second"), status: http.StatusForbidden},
		"3": {name: "sub/three.bin", content: make([]byte, 100_000)},
	}}
	base := newSender(t, s)
	dest := t.TempDir()
	metrics := monitor.New()
	tracker := NewTracker()
	c := newTestClient(ClientOptions{Metrics: metrics, Tracker: tracker})

	m, err := c.PrepareDownload(context.Background(), base, "")
	require.NoError(t, err)
	results := c.FetchAll(context.Background(), base, "", m, dest)

	require.Len(t, results, 3)
	assert.Len(t, results.Succeeded(), 2)
	require.Len(t, results.Failed(), 1)

	failed := results.Failed()[0]
	assert.Equal(t, "2", failed.FileID)
	var fe *FileError
	require.True(t, errors.As(failed.Err, &fe))
	assert.Equal(t, StatusFailure, fe.Kind)
	assert.Equal(t, http.StatusForbidden, fe.StatusCode)
	require.Error(t, results.Err())

	b, err := os.ReadFile(filepath.Join(dest, "one.bin"))
	require.NoError(t, err)
	assert.Equal(t, "first file", string(b))
	info, err := os.Stat(filepath.Join(dest, "sub", "three.bin"))
	require.NoError(t, err)
	assert.Equal(t, int64(100_000), info.Size())
	_, err = os.Stat(filepath.Join(dest, "two.bin"))
	assert.True(t, os.IsNotExist(err))

	snap := metrics.Snapshot()
	assert.Equal(t, int64(2), snap.FilesSucceeded)
	assert.Equal(t, int64(1), snap.FilesFailed)
	assert.Equal(t, int64(100_010), snap.BytesDownloaded)

	assert.Equal(t, []string{"1", "3"}, tracker.FilesIn(FileCompleted))
	assert.Equal(t, []string{"2"}, tracker.FilesIn(FileFailed))
	assert.Equal(t, uint64(100_010), tracker.GetBytesDownloaded())
}

func TestFetchAllResultsOrderedByID(t *testing.T) {
	s := &fakeSender{files: map[string]senderFile{
		"c": {name: "c", content: []byte("c")},
		"a": {name: "a", content: []byte("a")},
		"b": {name: "b", content: []byte("b")},
	}}
	base := newSender(t, s)
	c := newTestClient(ClientOptions{})

	m, err := c.PrepareDownload(context.Background(), base, "")
	require.NoError(t, err)
	results := c.FetchAll(context.Background(), base, "", m, t.TempDir())

	require.NoError(t, results.Err())
	var ids []string
	for _, r := range results {
		ids = append(ids, r.FileID)
		assert.Equal(t, int64(1), r.Bytes)
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

func TestFetchAllSendsPin(t *testing.T) {
	s := &fakeSender{pin: "0000", files: map[string]senderFile{
		"x": {name: "x.txt", content: []byte("pinned")},
	}}
	base := newSender(t, s)
	dest := t.TempDir()
	c := newTestClient(ClientOptions{})

	m, err := c.PrepareDownload(context.Background(), base, "0000")
	require.NoError(t, err)
	results := c.FetchAll(context.Background(), base, "0000", m, dest)
	require.NoError(t, results.Err())

	b, err := os.ReadFile(filepath.Join(dest, "x.txt"))
	require.NoError(t, err)
	assert.Equal(t, "pinned", string(b))
}

func TestFetchAllConfinesTraversal(t *testing.T) {
	s := &fakeSender{files: map[string]senderFile{
		"evil": {name: "../../etc/passwd", content: []byte("nope")},
		"abs":  {name: "/tmp/abs.txt", content: []byte("abs")},
	}}
	base := newSender(t, s)
	parent := t.TempDir()
	dest := filepath.Join(parent, "dest")
	c := newTestClient(ClientOptions{})

	m, err := c.PrepareDownload(context.Background(), base, "")
	require.NoError(t, err)
	results := c.FetchAll(context.Background(), base, "", m, dest)
	require.NoError(t, results.Err())

	for _, r := range results {
		rel, err := filepath.Rel(dest, r.Path)
		require.NoError(t, err)
		assert.NotContains(t, rel, "..")
	}
	_, err = os.Stat(filepath.Join(dest, "etc", "passwd"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dest, "tmp", "abs.txt"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(parent, "etc"))
	assert.True(t, os.IsNotExist(err))
}

func TestFetchAllCollidingNamesGetDistinctFiles(t *testing.T) {
	first := bytes.Repeat([]byte("A"), 1<<20)
	second := bytes.Repeat([]byte("B"), 1<<20)
	s := &fakeSender{files: map[string]senderFile{
		"1": {name: "a.bin", content: first},
		"2": {name: "x/../a.bin", content: second},
	}}
	base := newSender(t, s)
	dest := t.TempDir()
	c := newTestClient(ClientOptions{})

	m, err := c.PrepareDownload(context.Background(), base, "")
	require.NoError(t, err)
	results := c.FetchAll(context.Background(), base, "", m, dest)
	require.NoError(t, results.Err())
	require.Len(t, results, 2)

	assert.Equal(t, filepath.Join(dest, "a.bin"), results[0].Path)
	assert.Equal(t, filepath.Join(dest, "a (1).bin"), results[1].Path)

	got, err := os.ReadFile(filepath.Join(dest, "a.bin"))
	require.NoError(t, err)
	assert.True(t, bytes.Equal(first, got), "a.bin must hold only the first entry")
	got, err = os.ReadFile(filepath.Join(dest, "a (1).bin"))
	require.NoError(t, err)
	assert.True(t, bytes.Equal(second, got), "a (1).bin must hold only the second entry")
}

func TestFetchAllVerifiesChecksum(t *testing.T) {
	good := []byte("good content")
	s := &fakeSender{files: map[string]senderFile{
		"good": {name: "good.txt", content: good, sha256: sum(good)},
		"bad":  {name: "bad.txt", content: []byte("tampered"), sha256: sum([]byte("original"))},
	}}
	base := newSender(t, s)
	dest := t.TempDir()
	c := newTestClient(ClientOptions{VerifyChecksum: true})

	m, err := c.PrepareDownload(context.Background(), base, "")
	require.NoError(t, err)
	results := c.FetchAll(context.Background(), base, "", m, dest)

	require.Len(t, results.Failed(), 1)
	var fe *FileError
	require.True(t, errors.As(results.Failed()[0].Err, &fe))
	assert.Equal(t, ChecksumFailure, fe.Kind)
	assert.Equal(t, "bad", fe.FileID)

	_, err = os.Stat(filepath.Join(dest, "bad.txt"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dest, "good.txt"))
	assert.NoError(t, err)
}

func TestFetchAllIgnoresChecksumWhenDisabled(t *testing.T) {
	s := &fakeSender{files: map[string]senderFile{
		"bad": {name: "bad.txt", content: []byte("tampered"), sha256: sum([]byte("original"))},
	}}
	base := newSender(t, s)
	c := newTestClient(ClientOptions{})

	m, err := c.PrepareDownload(context.Background(), base, "")
	require.NoError(t, err)
	results := c.FetchAll(context.Background(), base, "", m, t.TempDir())
	assert.NoError(t, results.Err())
}

func TestFetchAllRunsConcurrently(t *testing.T) {
	files := map[string]senderFile{}
	for _, id := range []string{"a", "b", "c", "d"} {
		files[id] = senderFile{name: id, content: []byte(id)}
	}
	s := &fakeSender{files: files, hold: 100 * time.Millisecond}
	base := newSender(t, s)
	c := newTestClient(ClientOptions{})

	m, err := c.PrepareDownload(context.Background(), base, "")
	require.NoError(t, err)
	results := c.FetchAll(context.Background(), base, "", m, t.TempDir())
	require.NoError(t, results.Err())
	assert.Greater(t, s.maxInFlight.Load(), int32(1))
}

func TestFetchAllRespectsMaxConcurrent(t *testing.T) {
	files := map[string]senderFile{}
	for _, id := range []string{"a", "b", "c", "d"} {
		files[id] = senderFile{name: id, content: []byte(id)}
	}
	s := &fakeSender{files: files, hold: 50 * time.Millisecond}
	base := newSender(t, s)
	c := newTestClient(ClientOptions{MaxConcurrent: 1})

	m, err := c.PrepareDownload(context.Background(), base, "")
	require.NoError(t, err)
	results := c.FetchAll(context.Background(), base, "", m, t.TempDir())
	require.NoError(t, results.Err())
	assert.Equal(t, int32(1), s.maxInFlight.Load())
	assert.Equal(t, int32(4), s.downloads.Load())
}

func TestFetchAllNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	m := &protocol.PrepareDownloadResponse{
		SessionID: testSession,
		Files: map[string]protocol.FileInfo{
			"a": {ID: "a", FileName: "a.txt", Size: 1},
		},
	}
	dest := t.TempDir()
	results := newTestClient(ClientOptions{}).FetchAll(context.Background(), base, "", m, dest)

	require.Len(t, results.Failed(), 1)
	var fe *FileError
	require.True(t, errors.As(results[0].Err, &fe))
	assert.Equal(t, NetworkFailure, fe.Kind)
	_, err := os.Stat(filepath.Join(dest, "a.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestFetchAllEmptyManifest(t *testing.T) {
	m := &protocol.PrepareDownloadResponse{SessionID: testSession, Files: map[string]protocol.FileInfo{}}
	results := newTestClient(ClientOptions{}).FetchAll(context.Background(), "http://127.0.0.1:1", "", m, t.TempDir())
	assert.Empty(t, results)
	assert.NoError(t, results.Err())
}

func TestRedactHidesPin(t *testing.T) {
	assert.NotContains(t, redact("http://h:1/p?pin=9999&sessionId=s"), "9999")
	assert.Equal(t, "http://h:1/p?sessionId=s", redact("http://h:1/p?sessionId=s"))
}
