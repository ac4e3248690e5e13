package extract

import (
	"time"
)

// Progress cadence bounds: aim for an event every ~5% of the walk, but
// never more than one per element stride below the floor (avoids event
// storms on tiny models) and never more often than the minimum interval.
const (
	progressStepPercent = 5
	minProgressStride   = 10
	minProgressInterval = 100 * time.Millisecond
)

// ProgressEvent reports how far a walk has come.
type ProgressEvent struct {
	Processed int     `json:"processed"`
	Total     int     `json:"total"`
	Percent   float64 `json:"progress"`
}

// ProgressEmitter decides when a progress event is due during one walk.
// Emitted percentages are monotonically non-decreasing and the final
// event always reports 100, exactly once, regardless of batch alignment.
type ProgressEmitter struct {
	total       int
	stride      int
	minInterval time.Duration
	lastEmitted int
	lastAt      time.Time
	finished    bool
	now         func() time.Time
}

// NewProgressEmitter sizes the cadence for a walk over total elements.
func NewProgressEmitter(total int) *ProgressEmitter {
	stride := total * progressStepPercent / 100
	if stride < minProgressStride {
		stride = minProgressStride
	}
	return &ProgressEmitter{
		total:       total,
		stride:      stride,
		minInterval: minProgressInterval,
		now:         time.Now,
	}
}

// Start returns the initial zero-progress event.
func (p *ProgressEmitter) Start() ProgressEvent {
	p.lastAt = p.now()
	return p.event(0)
}

// Tick reports whether an event is due after processing the given number
// of elements. The final element never ticks here; Finish owns it.
func (p *ProgressEmitter) Tick(processed int) (ProgressEvent, bool) {
	if p.finished || processed >= p.total {
		return ProgressEvent{}, false
	}
	if processed-p.lastEmitted < p.stride {
		return ProgressEvent{}, false
	}
	if now := p.now(); now.Sub(p.lastAt) < p.minInterval {
		return ProgressEvent{}, false
	} else {
		p.lastAt = now
	}
	p.lastEmitted = processed
	return p.event(processed), true
}

// Finish returns the terminal 100% event. It fires exactly once; further
// calls report false.
func (p *ProgressEmitter) Finish() (ProgressEvent, bool) {
	if p.finished {
		return ProgressEvent{}, false
	}
	p.finished = true
	return ProgressEvent{Processed: p.total, Total: p.total, Percent: 100}, true
}

func (p *ProgressEmitter) event(processed int) ProgressEvent {
	percent := 0.0
	if p.total > 0 {
		percent = float64(processed) / float64(p.total) * 100
	}
	return ProgressEvent{Processed: processed, Total: p.total, Percent: percent}
}
