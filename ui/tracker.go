package ui

import (
	"sort"
	"sync"
	"time"

	"github.com/franksops/filerelay/engine"
	"github.com/franksops/filerelay/relay"
	"github.com/franksops/filerelay/reply"
)

// recentResults is how many finished relays the view lists.
const recentResults = 5

// Tracker aggregates relay events into a UIState. It implements
// relay.Observer and is safe for concurrent use.
type Tracker struct {
	mu sync.Mutex

	expected int
	workers  int
	started  time.Time
	now      func() time.Time

	active   map[string]*stream
	finished int
	failed   int
	declared int64
	written  int64 // bytes of finished relays
	recent   []string
	done     bool
}

type stream struct {
	name     string
	state    relay.State
	declared int64
	written  int64
	started  time.Time
}

var _ relay.Observer = (*Tracker)(nil)

// NewTracker creates a Tracker expecting the given number of relays run by
// workers concurrent workers. expected may be zero when unknown.
func NewTracker(expected, workers int) *Tracker {
	return &Tracker{
		expected: expected,
		workers:  workers,
		now:      time.Now,
		active:   make(map[string]*stream),
	}
}

func (t *Tracker) RelayStarted(id string, ref engine.FileReference) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	if t.started.IsZero() {
		t.started = now
	}
	t.active[id] = &stream{name: ref.DisplayName(), state: relay.StateIdle, declared: ref.DeclaredSize, started: now}
	t.declared += ref.DeclaredSize
}

func (t *Tracker) StateChanged(id string, state relay.State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.active[id]; ok {
		s.state = state
	}
}

func (t *Tracker) Progress(id string, _, bytesWritten int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.active[id]; ok {
		s.written = bytesWritten
	}
}

func (t *Tracker) RelayFinished(res relay.Result) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.active, res.ID)
	t.finished++
	if res.Status == relay.StatusFailed {
		t.failed++
	}
	t.written += res.BytesTransferred
	t.recent = append(t.recent, reply.Text(res))
	if len(t.recent) > recentResults {
		t.recent = t.recent[len(t.recent)-recentResults:]
	}
}

// MarkDone records that no more relays will start.
func (t *Tracker) MarkDone() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.done = true
}

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() *UIState {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	st := &UIState{
		TotalFiles:     int64(max(t.expected, t.finished+len(t.active))),
		TotalBytes:     t.declared,
		CompletedFiles: int64(t.finished),
		FailedFiles:    int64(t.failed),
		CompletedBytes: t.written,
		ActiveWorkers:  len(t.active),
		MaxWorkers:     t.workers,
		Recent:         append([]string(nil), t.recent...),
		Done:           t.done,
	}

	for id, s := range t.active {
		st.CompletedBytes += s.written
		as := &ActiveStream{JobID: id, FilePath: s.name, State: string(s.state), Written: s.written}
		if s.declared > 0 {
			as.Progress = min(float64(s.written)/float64(s.declared), 1)
		}
		if elapsed := now.Sub(s.started).Seconds(); elapsed > 0 {
			as.BytesSec = float64(s.written) / elapsed
		}
		st.ActiveStreams = append(st.ActiveStreams, as)
	}
	sort.Slice(st.ActiveStreams, func(i, j int) bool {
		return st.ActiveStreams[i].FilePath < st.ActiveStreams[j].FilePath
	})

	if ms := now.Sub(t.started).Milliseconds(); !t.started.IsZero() && ms > 0 {
		st.ThroughputBPms = float64(st.CompletedBytes) / float64(ms)
	}
	return st
}
