// Package detect decides when a held PageContext is stale. Navigation is
// signaled immediately; DOM mutation bursts are debounced and compared
// against a cheap content signature (rendered body text length).
package detect

import (
	"sync"
	"time"

	"github.com/ciciliostudio/sidekick/internal/logging"
)

const (
	// DefaultQuietPeriod is how long a mutation burst must go quiet before
	// the signature comparison runs.
	DefaultQuietPeriod = 500 * time.Millisecond

	// DefaultThreshold is the minimum absolute character-count delta that
	// counts as a significant content change.
	DefaultThreshold = 200
)

// Cause describes why a staleness signal fired.
type Cause string

const (
	CauseNavigation Cause = "navigation"
	CauseMutation   Cause = "mutation"
)

// Signal is one staleness notification.
type Signal struct {
	Cause Cause
	URL   string
	Delta int
}

// Detector tracks the last known URL and content signature. It is safe for
// concurrent use; signals are coalesced, never queued unboundedly.
type Detector struct {
	mu          sync.Mutex
	lastURL     string
	baseline    int // rendered body text length; -1 when unknown
	pendingSig  int
	quietPeriod time.Duration
	threshold   int
	timer       *time.Timer
	signals     chan Signal
}

// New creates a detector with the given debounce window and delta threshold.
// Zero values select the defaults.
func New(quietPeriod time.Duration, threshold int) *Detector {
	if quietPeriod <= 0 {
		quietPeriod = DefaultQuietPeriod
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Detector{
		baseline:    -1,
		quietPeriod: quietPeriod,
		threshold:   threshold,
		signals:     make(chan Signal, 4),
	}
}

// Signals delivers staleness notifications. A burst of mutations yields at
// most one signal.
func (d *Detector) Signals() <-chan Signal {
	return d.signals
}

// SetBaseline records the signature of the snapshot that was just extracted.
func (d *Detector) SetBaseline(bodyTextLen int) {
	d.mu.Lock()
	d.baseline = bodyTextLen
	d.mu.Unlock()
}

// OnNavigate reports a URL change (full navigation, hash/popstate, or a
// history-API route change). Any change signals staleness immediately and
// resets the signature baseline.
func (d *Detector) OnNavigate(url string) {
	d.mu.Lock()
	if url == d.lastURL {
		d.mu.Unlock()
		return
	}
	d.lastURL = url
	d.baseline = -1
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()

	logging.Debug("navigation detected: %s", url)
	d.emit(Signal{Cause: CauseNavigation, URL: url})
}

// OnMutation reports the current rendered text length after a DOM mutation.
// The comparison is deferred until the burst has been quiet for the full
// debounce window.
func (d *Detector) OnMutation(bodyTextLen int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pendingSig = bodyTextLen
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.quietPeriod, d.settle)
}

// settle runs once a mutation burst has gone quiet.
func (d *Detector) settle() {
	d.mu.Lock()
	d.timer = nil
	sig := d.pendingSig
	baseline := d.baseline
	delta := sig - baseline
	if delta < 0 {
		delta = -delta
	}
	significant := baseline < 0 || delta >= d.threshold
	if significant {
		d.baseline = sig
	}
	url := d.lastURL
	d.mu.Unlock()

	if !significant {
		logging.Debug("mutation burst below threshold (delta=%d)", delta)
		return
	}
	d.emit(Signal{Cause: CauseMutation, URL: url, Delta: delta})
}

func (d *Detector) emit(sig Signal) {
	select {
	case d.signals <- sig:
	default:
		// A consumer that has not drained earlier signals already knows
		// the context is stale.
	}
}
