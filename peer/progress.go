package peer

import (
	"sort"
	"sync"
	"time"

	"tarun-kavipurapu/lanfetch/pkg/protocol"
)

// FileState represents the current state of a single file download
type FileState int

const (
	FilePending FileState = iota
	FileDownloading
	FileCompleted
	FileFailed
)

func (s FileState) String() string {
	switch s {
	case FilePending:
		return "pending"
	case FileDownloading:
		return "downloading"
	case FileCompleted:
		return "completed"
	case FileFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Icon returns an icon representation of the file state
func (s FileState) Icon() string {
	switch s {
	case FilePending:
		return "⏳"
	case FileDownloading:
		return "↓"
	case FileCompleted:
		return "✓"
	case FileFailed:
		return "✗"
	default:
		return "?"
	}
}

// FileProgress tracks the progress of one file in a batch
type FileProgress struct {
	ID         string
	FileName   string
	State      FileState
	BytesDone  uint64
	BytesTotal uint64
	StartTime  time.Time
	EndTime    time.Time
}

// Tracker follows a whole download batch. A nil *Tracker ignores updates,
// so the client can call it unconditionally.
type Tracker struct {
	mu              sync.RWMutex
	Files           map[string]*FileProgress
	TotalSize       uint64
	StartTime       time.Time
	EndTime         time.Time
	BytesDownloaded uint64

	lastBytes    uint64
	lastTime     time.Time
	currentSpeed float64 // bytes/sec

	failed uint32
	active int
}

func NewTracker() *Tracker {
	now := time.Now()
	return &Tracker{
		Files:     make(map[string]*FileProgress),
		StartTime: now,
		lastTime:  now,
	}
}

// Init resets the tracker to the files of a manifest.
func (t *Tracker) Init(files map[string]protocol.FileInfo) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	t.Files = make(map[string]*FileProgress, len(files))
	t.TotalSize = 0
	t.BytesDownloaded = 0
	t.lastBytes = 0
	t.lastTime = now
	t.currentSpeed = 0
	t.failed = 0
	t.active = 0
	t.StartTime = now
	t.EndTime = time.Time{}
	for key, f := range files {
		id := f.ID
		if id == "" {
			id = key
		}
		t.Files[id] = &FileProgress{ID: id, FileName: f.FileName, BytesTotal: f.Size}
		t.TotalSize += f.Size
	}
}

// Start marks a file as being downloaded
func (t *Tracker) Start(id string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if f, ok := t.Files[id]; ok && f.State == FilePending {
		f.State = FileDownloading
		f.StartTime = time.Now()
		t.active++
	}
}

// Add records n more bytes written for a file.
func (t *Tracker) Add(id string, n int) {
	if t == nil || n <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if f, ok := t.Files[id]; ok {
		f.BytesDone += uint64(n)
		t.BytesDownloaded += uint64(n)
	}
}

// Complete marks a file as done
func (t *Tracker) Complete(id string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if f, ok := t.Files[id]; ok {
		if f.State == FileDownloading {
			t.active--
		}
		f.State = FileCompleted
		f.EndTime = time.Now()
	}
}

// Fail marks a file as failed and discards its counted bytes.
func (t *Tracker) Fail(id string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if f, ok := t.Files[id]; ok && f.State != FileFailed {
		if f.State == FileDownloading {
			t.active--
		}
		t.BytesDownloaded -= f.BytesDone
		f.BytesDone = 0
		f.State = FileFailed
		f.EndTime = time.Now()
		t.failed++
	}
}

// UpdateSpeed calculates and updates the current download speed
func (t *Tracker) UpdateSpeed() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(t.lastTime).Seconds()

	if elapsed >= 0.5 {
		if t.BytesDownloaded >= t.lastBytes {
			t.currentSpeed = float64(t.BytesDownloaded-t.lastBytes) / elapsed
		}
		t.lastBytes = t.BytesDownloaded
		t.lastTime = now
	}

	return t.currentSpeed
}

// GetProgress returns completed count, total count, speed (bytes/s),
// files in flight and failed count.
func (t *Tracker) GetProgress() (completed, total uint32, speed float64, active int, failed uint32) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, f := range t.Files {
		if f.State == FileCompleted {
			completed++
		}
	}
	return completed, uint32(len(t.Files)), t.currentSpeed, t.active, t.failed
}

// GetETA returns the estimated time remaining
func (t *Tracker) GetETA() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.currentSpeed <= 0 || t.BytesDownloaded >= t.TotalSize {
		return 0
	}
	remaining := float64(t.TotalSize - t.BytesDownloaded)
	return time.Duration(remaining/t.currentSpeed) * time.Second
}

func (t *Tracker) GetBytesDownloaded() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.BytesDownloaded
}

func (t *Tracker) GetTotalSize() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.TotalSize
}

// IsComplete reports whether every file finished successfully.
func (t *Tracker) IsComplete() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if len(t.Files) == 0 {
		return false
	}
	for _, f := range t.Files {
		if f.State != FileCompleted {
			return false
		}
	}
	return true
}

// MarkComplete stops the elapsed-time clock.
func (t *Tracker) MarkComplete() {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.EndTime = time.Now()
}

// GetElapsedTime returns the elapsed time since the batch started
func (t *Tracker) GetElapsedTime() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if !t.EndTime.IsZero() {
		return t.EndTime.Sub(t.StartTime)
	}
	return time.Since(t.StartTime)
}

// GetFileState returns the state of one file
func (t *Tracker) GetFileState(id string) (FileState, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if f, ok := t.Files[id]; ok {
		return f.State, true
	}
	return FilePending, false
}

// FilesIn returns the ids of files in state s, sorted.
func (t *Tracker) FilesIn(s FileState) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ids := make([]string, 0)
	for id, f := range t.Files {
		if f.State == s {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
