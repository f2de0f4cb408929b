package watch

import (
	"cmp"
	"slices"
	"sync"

	"github.com/lixenwraith/barrager/geometry"
)

// Clearance is delivered once per observation
// BecameClear is false when the target vanished before clearing
type Clearance struct {
	BecameClear bool
}

// Target reports a fragment's current surface-relative bounds
// ok is false once the fragment no longer exists
type Target interface {
	Bounds() (r geometry.Rect, ok bool)
}

// TargetFunc adapts a function to Target
type TargetFunc func() (geometry.Rect, bool)

func (f TargetFunc) Bounds() (geometry.Rect, bool) { return f() }

// Watcher arms one-shot clearance observations
// fn fires at most once; cancel disarms it and is safe to call repeatedly
type Watcher interface {
	Observe(target Target, gap float64, fn func(Clearance)) (cancel func())
}

type observation struct {
	id     uint64
	target Target
	gap    float64
	fn     func(Clearance)
}

// Poller is a Watcher evaluated on every Poll call, typically once per frame
// A target is clear once its right edge is at least gap left of the surface's right edge
type Poller struct {
	mu      sync.Mutex
	surface geometry.SurfaceProvider
	nextID  uint64
	armed   map[uint64]*observation
}

// NewPoller creates a poller checking targets against surface
func NewPoller(surface geometry.SurfaceProvider) *Poller {
	return &Poller{
		surface: surface,
		armed:   make(map[uint64]*observation),
	}
}

// Observe arms an observation
func (p *Poller) Observe(target Target, gap float64, fn func(Clearance)) func() {
	p.mu.Lock()
	p.nextID++
	id := p.nextID
	p.armed[id] = &observation{id: id, target: target, gap: gap, fn: fn}
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.armed, id)
		p.mu.Unlock()
	}
}

// Armed returns the number of outstanding observations
func (p *Poller) Armed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.armed)
}

// Poll evaluates every armed observation and fires those that resolved
// Targets and callbacks run without the poller lock held, so both may call back into Observe or cancel
// Returns the number of observations fired
func (p *Poller) Poll() int {
	p.mu.Lock()
	obs := make([]*observation, 0, len(p.armed))
	for _, o := range p.armed {
		obs = append(obs, o)
	}
	p.mu.Unlock()

	// Observations fire in arming order so one lane's callbacks follow placement order
	slices.SortFunc(obs, func(a, b *observation) int { return cmp.Compare(a.id, b.id) })

	surface := p.surface.MeasureSurface()
	fired := 0
	for _, o := range obs {
		r, ok := o.target.Bounds()
		var result Clearance
		switch {
		case !ok:
			result = Clearance{BecameClear: false}
		case r.Right <= surface.Width-o.gap:
			result = Clearance{BecameClear: true}
		default:
			continue
		}

		// Disarm before firing; a concurrent cancel wins
		p.mu.Lock()
		_, still := p.armed[o.id]
		delete(p.armed, o.id)
		p.mu.Unlock()
		if !still {
			continue
		}

		o.fn(result)
		fired++
	}
	return fired
}

// Reset disarms every observation without firing
func (p *Poller) Reset() {
	p.mu.Lock()
	p.armed = make(map[uint64]*observation)
	p.mu.Unlock()
}
