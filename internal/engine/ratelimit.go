package engine

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/time/rate"
)

// ParseBWLimit parses a human bandwidth string like "500K", "10M" or a
// plain byte count into bytes per second. An empty string means unlimited.
func ParseBWLimit(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}

	mult := int64(1)
	switch {
	case strings.HasSuffix(s, "K"), strings.HasSuffix(s, "k"):
		mult = 1 << 10
		s = s[:len(s)-1]
	case strings.HasSuffix(s, "M"), strings.HasSuffix(s, "m"):
		mult = 1 << 20
		s = s[:len(s)-1]
	case strings.HasSuffix(s, "G"), strings.HasSuffix(s, "g"):
		mult = 1 << 30
		s = s[:len(s)-1]
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid bandwidth limit %q", s)
	}
	return n * mult, nil
}

// NewBWLimiter creates a rate.Limiter that caps aggregate throughput to
// bytesPerSec. The burst is set to 1 MB to allow natural read-size chunks
// through without unnecessary blocking on small reads.
func NewBWLimiter(bytesPerSec int64) *rate.Limiter {
	burst := 1 << 20 // 1 MB
	if bytesPerSec < int64(burst) {
		burst = int(bytesPerSec)
	}
	return rate.NewLimiter(rate.Limit(bytesPerSec), burst)
}

// rateLimitedReader wraps an io.Reader and enforces a shared rate limit.
type rateLimitedReader struct {
	r       io.Reader
	limiter *rate.Limiter
	ctx     context.Context
}

func newRateLimitedReader(ctx context.Context, r io.Reader, limiter *rate.Limiter) *rateLimitedReader {
	return &rateLimitedReader{r: r, limiter: limiter, ctx: ctx}
}

func (rl *rateLimitedReader) Read(p []byte) (int, error) {
	n, err := rl.r.Read(p)
	// WaitN rejects requests larger than the burst, so a read bigger than
	// the burst waits for its tokens in burst-sized chunks.
	for remaining := n; remaining > 0; {
		chunk := remaining
		if burst := rl.limiter.Burst(); chunk > burst {
			chunk = burst
		}
		if waitErr := rl.limiter.WaitN(rl.ctx, chunk); waitErr != nil {
			return n, waitErr
		}
		remaining -= chunk
	}
	return n, err
}
