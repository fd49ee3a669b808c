package stats

import (
	"sync/atomic"
	"time"
)

// Collector tracks run statistics using lock-free atomic counters.
type Collector struct {
	filesMoved   atomic.Int64
	filesSkipped atomic.Int64
	filesFailed  atomic.Int64
	bytesMoved   atomic.Int64
	dirsCreated  atomic.Int64
	dirsRemoved  atomic.Int64
	retries      atomic.Int64
	wipCleaned   atomic.Int64
	startTime    time.Time
}

// NewCollector creates a Collector with startTime set to now.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// Snapshot is a point-in-time read of all counters.
type Snapshot struct {
	FilesMoved   int64
	FilesSkipped int64
	FilesFailed  int64
	BytesMoved   int64
	DirsCreated  int64
	DirsRemoved  int64
	Retries      int64
	WipCleaned   int64
	Elapsed      time.Duration
}

func (c *Collector) AddFilesMoved(n int64)   { c.filesMoved.Add(n) }
func (c *Collector) AddFilesSkipped(n int64) { c.filesSkipped.Add(n) }
func (c *Collector) AddFilesFailed(n int64)  { c.filesFailed.Add(n) }
func (c *Collector) AddBytesMoved(n int64)   { c.bytesMoved.Add(n) }
func (c *Collector) AddDirsCreated(n int64)  { c.dirsCreated.Add(n) }
func (c *Collector) AddDirsRemoved(n int64)  { c.dirsRemoved.Add(n) }
func (c *Collector) AddRetries(n int64)      { c.retries.Add(n) }
func (c *Collector) AddWipCleaned(n int64)   { c.wipCleaned.Add(n) }

// Snapshot returns a consistent point-in-time read of all counters.
func (c *Collector) Snapshot() Snapshot {
	var elapsed time.Duration
	if !c.startTime.IsZero() {
		elapsed = time.Since(c.startTime)
	}
	return Snapshot{
		FilesMoved:   c.filesMoved.Load(),
		FilesSkipped: c.filesSkipped.Load(),
		FilesFailed:  c.filesFailed.Load(),
		BytesMoved:   c.bytesMoved.Load(),
		DirsCreated:  c.dirsCreated.Load(),
		DirsRemoved:  c.dirsRemoved.Load(),
		Retries:      c.retries.Load(),
		WipCleaned:   c.wipCleaned.Load(),
		Elapsed:      elapsed,
	}
}
