// Package plan turns the discovered volume topology into sync jobs. A job
// moves the contents of one slide folder toward its destination volume,
// either directly or through a routed intermediate hop.
package plan

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bitslides/bitslides/internal/volume"
)

// ErrTriggerTaken is returned when a job's completion trigger is requested
// a second time. Each job hands out exactly one send half.
var ErrTriggerTaken = errors.New("plan: trigger already taken")

// Token identifies one planning pass. Every job built in the same pass
// carries the same token.
type Token struct {
	// Origin is the hostname or label of the planning machine.
	Origin string
	// Generation distinguishes planning passes from the same origin.
	Generation uuid.UUID
	// CreatedAt is the planning timestamp.
	CreatedAt time.Time
}

// NewToken mints a token for a planning pass starting now.
func NewToken(origin string) Token {
	return Token{
		Origin:     origin,
		Generation: uuid.New(),
		CreatedAt:  time.Now(),
	}
}

// SyncJob is one unit of movement: drain the slide addressed to Dst that
// lives on Src, landing its files on Via. A direct job has Via == Dst.
type SyncJob struct {
	// Src is the volume holding the slide to drain.
	Src string
	// Via is the volume receiving the files. Equal to Dst for direct
	// jobs; a routed job lands files in Via's slide addressed to Dst.
	Via string
	// Dst is the volume the files are ultimately addressed to.
	Dst string
	// Token is the planning pass that produced this job.
	Token Token

	mu      sync.Mutex
	trigger chan struct{}
	taken   bool
}

// newJob constructs a job with an armed completion trigger.
func newJob(src, via, dst string, tok Token) *SyncJob {
	return &SyncJob{
		Src:     src,
		Via:     via,
		Dst:     dst,
		Token:   tok,
		trigger: make(chan struct{}),
	}
}

// Direct reports whether the job delivers straight to its destination.
func (j *SyncJob) Direct() bool {
	return j.Via == j.Dst
}

// String renders the job as "src -via-> dst", with "_" in place of the
// hop for direct jobs.
func (j *SyncJob) String() string {
	via := j.Via
	if j.Direct() {
		via = "_"
	}
	return fmt.Sprintf("%s -%s-> %s", j.Src, via, j.Dst)
}

// TakeTrigger hands the executor the send half of the job's one-shot
// completion channel. The taker must close it when the job finishes,
// regardless of outcome. A second call returns ErrTriggerTaken.
func (j *SyncJob) TakeTrigger() (chan<- struct{}, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.taken {
		return nil, ErrTriggerTaken
	}
	j.taken = true
	return j.trigger, nil
}

// Done exposes the receive half of the completion channel. It is closed
// once the executor that took the trigger finishes the job.
func (j *SyncJob) Done() <-chan struct{} {
	return j.trigger
}

// Build walks the discovered volumes and produces the jobs for this run.
// For every slide it plans a direct job when the destination volume is
// live, falls back to the slide's route hint when the hop volume is live,
// and otherwise leaves the slide alone. A slide addressed to its own
// volume is that volume's inbox and is never drained. Destination slide
// folders that do not exist yet are created so receivers always have a
// landing spot. Direct jobs are ordered before routed ones so files do
// not hop through an intermediate that a later direct job would reach.
func Build(volumes map[string]*volume.Volume, tok Token) ([]*SyncJob, error) {
	names := make([]string, 0, len(volumes))
	for name := range volumes {
		names = append(names, name)
	}
	sort.Strings(names)

	var jobs []*SyncJob
	for _, name := range names {
		v := volumes[name]

		slideNames := make([]string, 0, len(v.Slides))
		for s := range v.Slides {
			slideNames = append(slideNames, s)
		}
		sort.Strings(slideNames)

		for _, dst := range slideNames {
			if dst == v.Name {
				continue
			}
			s := v.Slides[dst]

			via, ok := resolveHop(volumes, v, s)
			if !ok {
				slog.Debug("no path for slide",
					"src", v.Name, "dst", dst, "route", s.Route)
				continue
			}

			recv := volumes[via]
			if _, exists := recv.Slides[dst]; !exists {
				if _, err := recv.CreateSlide(dst); err != nil {
					return nil, err
				}
			}

			jobs = append(jobs, newJob(v.Name, via, dst, tok))
		}
	}

	sort.SliceStable(jobs, func(i, k int) bool {
		return jobs[i].Direct() && !jobs[k].Direct()
	})
	return jobs, nil
}

// resolveHop picks the receiving volume for a slide: the destination when
// live, else the route hint when that volume is live and not the source
// itself.
func resolveHop(volumes map[string]*volume.Volume, src *volume.Volume, s *volume.Slide) (string, bool) {
	if _, live := volumes[s.Name]; live {
		return s.Name, true
	}
	if s.Route != "" && s.Route != src.Name {
		if _, live := volumes[s.Route]; live {
			return s.Route, true
		}
	}
	return "", false
}
