package stats

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCollectorCounts(t *testing.T) {
	c := NewCollector()
	c.AddFilesMoved(2)
	c.AddFilesSkipped(1)
	c.AddFilesFailed(1)
	c.AddBytesMoved(4096)
	c.AddDirsCreated(3)
	c.AddDirsRemoved(2)
	c.AddRetries(5)
	c.AddWipCleaned(1)

	s := c.Snapshot()
	assert.Equal(t, int64(2), s.FilesMoved)
	assert.Equal(t, int64(1), s.FilesSkipped)
	assert.Equal(t, int64(1), s.FilesFailed)
	assert.Equal(t, int64(4096), s.BytesMoved)
	assert.Equal(t, int64(3), s.DirsCreated)
	assert.Equal(t, int64(2), s.DirsRemoved)
	assert.Equal(t, int64(5), s.Retries)
	assert.Equal(t, int64(1), s.WipCleaned)
	assert.GreaterOrEqual(t, s.Elapsed, time.Duration(0))
}

func TestCollectorConcurrent(t *testing.T) {
	c := NewCollector()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.AddFilesMoved(1)
				c.AddBytesMoved(10)
			}
		}()
	}
	wg.Wait()

	s := c.Snapshot()
	assert.Equal(t, int64(1000), s.FilesMoved)
	assert.Equal(t, int64(10000), s.BytesMoved)
}
