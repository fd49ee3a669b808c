// Package trace implements the append-only run trace: every file transition
// and job boundary in the engine emits one timestamped line. All writes are
// funneled through a single goroutine so concurrent emitters never interleave
// partial lines.
package trace

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/bitslides/bitslides/internal/event"
)

const channelSize = 256

// Tracer is the append-only event sink. A nil *Tracer and a Tracer built
// from an empty template both discard events, so callers never need to
// guard their Emit calls.
type Tracer struct {
	ch   chan event.Event
	done chan struct{}

	mu     sync.Mutex
	closed bool
	err    error

	path string
}

// New opens the trace sink for the given path template. Strftime-style
// placeholders (%Y %m %d %H %M %S) are expanded against the current time so
// each run gets its own file. A template ending in ".zst" produces a
// zstd-compressed trace. An empty template disables tracing.
func New(template string) (*Tracer, error) {
	if template == "" {
		return nil, nil
	}

	path := ExpandTemplate(template, time.Now())

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open trace %s: %w", path, err)
	}

	var w io.Writer = f
	var zw *zstd.Encoder
	if strings.HasSuffix(path, ".zst") {
		zw, err = zstd.NewWriter(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("zstd trace %s: %w", path, err)
		}
		w = zw
	}

	t := &Tracer{
		ch:   make(chan event.Event, channelSize),
		done: make(chan struct{}),
		path: path,
	}

	go func() {
		defer close(t.done)
		for ev := range t.ch {
			line := formatLine(ev)
			if _, werr := io.WriteString(w, line); werr != nil {
				t.mu.Lock()
				if t.err == nil {
					t.err = fmt.Errorf("write trace %s: %w", path, werr)
				}
				t.mu.Unlock()
			}
		}
		if zw != nil {
			if werr := zw.Close(); werr != nil {
				t.recordErr(fmt.Errorf("flush trace %s: %w", path, werr))
			}
		}
		if werr := f.Close(); werr != nil {
			t.recordErr(fmt.Errorf("close trace %s: %w", path, werr))
		}
	}()

	return t, nil
}

// Path returns the expanded trace file path, or "" when tracing is disabled.
func (t *Tracer) Path() string {
	if t == nil {
		return ""
	}
	return t.path
}

// Emit records one event. Safe for concurrent use; a nil receiver discards.
func (t *Tracer) Emit(ev event.Event) {
	if t == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.ch <- ev
	t.mu.Unlock()
}

// Close drains pending events, flushes and closes the sink. It returns the
// first write error observed during the run, if any.
func (t *Tracer) Close() error {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	if !t.closed {
		t.closed = true
		close(t.ch)
	}
	t.mu.Unlock()
	<-t.done

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *Tracer) recordErr(err error) {
	t.mu.Lock()
	if t.err == nil {
		t.err = err
	}
	t.mu.Unlock()
}

func formatLine(ev event.Event) string {
	var b strings.Builder
	b.WriteByte('[')
	b.WriteString(ev.Timestamp.Format("2006-01-02 15:04:05"))
	b.WriteString("] [")
	if ev.Job != "" {
		b.WriteString(ev.Job)
	} else {
		b.WriteString("run")
	}
	b.WriteString("] ")
	b.WriteString(ev.Type.String())
	if ev.Path != "" {
		b.WriteByte(' ')
		b.WriteString(ev.Path)
	}
	if ev.Detail != "" {
		b.WriteByte(' ')
		b.WriteString(ev.Detail)
	}
	if ev.Err != nil {
		b.WriteString(" error=")
		b.WriteString(ev.Err.Error())
	}
	b.WriteByte('\n')
	return b.String()
}

// ExpandTemplate substitutes the strftime placeholders supported in trace
// path templates. Unknown %-sequences are kept verbatim.
func ExpandTemplate(template string, now time.Time) string {
	var b strings.Builder
	for i := 0; i < len(template); i++ {
		c := template[i]
		if c != '%' || i+1 >= len(template) {
			b.WriteByte(c)
			continue
		}
		i++
		switch template[i] {
		case 'Y':
			fmt.Fprintf(&b, "%04d", now.Year())
		case 'm':
			fmt.Fprintf(&b, "%02d", int(now.Month()))
		case 'd':
			fmt.Fprintf(&b, "%02d", now.Day())
		case 'H':
			fmt.Fprintf(&b, "%02d", now.Hour())
		case 'M':
			fmt.Fprintf(&b, "%02d", now.Minute())
		case 'S':
			fmt.Fprintf(&b, "%02d", now.Second())
		case '%':
			b.WriteByte('%')
		default:
			b.WriteByte('%')
			b.WriteByte(template[i])
		}
	}
	return b.String()
}
