package monitor

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"tarun-kavipurapu/lanfetch/pkg/logger"
)

// Metrics holds process-wide counters for discovery and downloads.
type Metrics struct {
	// Distinct peers added to a registry
	PeersDiscovered atomic.Int64
	// Datagrams that failed to decode
	DatagramsDropped atomic.Int64
	// Announcements and responses we sent
	MessagesSent atomic.Int64

	FilesSucceeded  atomic.Int64
	FilesFailed     atomic.Int64
	BytesDownloaded atomic.Int64

	Start time.Time
}

// Snapshot is a point-in-time copy of Metrics.
type Snapshot struct {
	PeersDiscovered  int64
	DatagramsDropped int64
	MessagesSent     int64
	FilesSucceeded   int64
	FilesFailed      int64
	BytesDownloaded  int64
	Uptime           time.Duration
}

// Global metrics instance
var Global = New()

func New() *Metrics {
	return &Metrics{Start: time.Now()}
}

func (m *Metrics) RecordPeer() { m.PeersDiscovered.Add(1) }
func (m *Metrics) RecordDrop() { m.DatagramsDropped.Add(1) }
func (m *Metrics) RecordSent() { m.MessagesSent.Add(1) }
func (m *Metrics) RecordFailure() { m.FilesFailed.Add(1) }

// RecordTransfer records a completed file download.
func (m *Metrics) RecordTransfer(bytes int64, duration time.Duration) {
	m.BytesDownloaded.Add(bytes)
	m.FilesSucceeded.Add(1)

	var speed float64
	if secs := duration.Seconds(); secs > 0 {
		speed = float64(bytes) / secs / 1024 / 1024
	}
	logger.Sugar.Debugf("[Transfer] Size=%dB | Duration=%.2fs | Speed=%.2fMB/s", bytes, duration.Seconds(), speed)
}

func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		PeersDiscovered:  m.PeersDiscovered.Load(),
		DatagramsDropped: m.DatagramsDropped.Load(),
		MessagesSent:     m.MessagesSent.Load(),
		FilesSucceeded:   m.FilesSucceeded.Load(),
		FilesFailed:      m.FilesFailed.Load(),
		BytesDownloaded:  m.BytesDownloaded.Load(),
		Uptime:           time.Since(m.Start),
	}
}

// LogSummary writes the current counters at info level.
func (m *Metrics) LogSummary() {
	s := m.Snapshot()
	var throughput float64
	if secs := s.Uptime.Seconds(); secs > 0 {
		throughput = float64(s.BytesDownloaded) / secs / 1024 / 1024
	}
	logger.Sugar.Infof("[Metrics] Peers=%d | Dropped=%d | Sent=%d | Files=%d ok, %d failed | Bytes=%d | Throughput=%.2fMB/s",
		s.PeersDiscovered, s.DatagramsDropped, s.MessagesSent,
		s.FilesSucceeded, s.FilesFailed, s.BytesDownloaded, throughput)
}

// LogPeriodic logs runtime metrics at the specified interval until ctx ends.
func (m *Metrics) LogPeriodic(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var ms runtime.MemStats
			runtime.ReadMemStats(&ms)
			logger.Sugar.Infof("[Metrics] Goroutines=%d | HeapAlloc=%dMB | Peers=%d | Files=%d/%d | Bytes=%d",
				runtime.NumGoroutine(),
				ms.HeapAlloc/1024/1024,
				m.PeersDiscovered.Load(),
				m.FilesSucceeded.Load(),
				m.FilesSucceeded.Load()+m.FilesFailed.Load(),
				m.BytesDownloaded.Load(),
			)
		}
	}
}
