package watch

import (
	"testing"

	"github.com/lixenwraith/barrager/geometry"
)

type movingTarget struct {
	right float64
	alive bool
}

func (m *movingTarget) Bounds() (geometry.Rect, bool) {
	return geometry.Rect{Width: 10, Height: 1, Left: m.right - 10, Right: m.right}, m.alive
}

func TestPollerFiresOnceWhenClear(t *testing.T) {
	p := NewPoller(geometry.Fixed(100, 10))
	target := &movingTarget{right: 110, alive: true}

	var got []Clearance
	p.Observe(target, 2, func(c Clearance) { got = append(got, c) })

	if n := p.Poll(); n != 0 {
		t.Fatalf("fired %d while entering", n)
	}

	target.right = 99 // inside, but within the gap
	p.Poll()
	if len(got) != 0 {
		t.Fatalf("fired inside gap margin: %+v", got)
	}

	target.right = 98
	if n := p.Poll(); n != 1 {
		t.Fatalf("Poll fired %d, want 1", n)
	}
	p.Poll()

	if len(got) != 1 || !got[0].BecameClear {
		t.Errorf("callbacks = %+v, want one BecameClear", got)
	}
	if p.Armed() != 0 {
		t.Errorf("Armed = %d after firing, want 0", p.Armed())
	}
}

func TestPollerVanishedTarget(t *testing.T) {
	p := NewPoller(geometry.Fixed(100, 10))
	target := &movingTarget{right: 150, alive: false}

	var got []Clearance
	p.Observe(target, 0, func(c Clearance) { got = append(got, c) })
	p.Poll()

	if len(got) != 1 || got[0].BecameClear {
		t.Errorf("callbacks = %+v, want one not-clear", got)
	}
}

func TestPollerCancel(t *testing.T) {
	p := NewPoller(geometry.Fixed(100, 10))
	target := &movingTarget{right: 0, alive: true}

	fired := false
	cancel := p.Observe(target, 0, func(Clearance) { fired = true })
	cancel()
	cancel()
	p.Poll()

	if fired {
		t.Error("cancelled observation fired")
	}
}

func TestPollerOrderAndReentrancy(t *testing.T) {
	p := NewPoller(geometry.Fixed(100, 10))

	var order []int
	for i := 0; i < 5; i++ {
		i := i
		p.Observe(&movingTarget{right: 0, alive: true}, 0, func(Clearance) {
			order = append(order, i)
			// Callbacks may arm further observations
			p.Observe(&movingTarget{right: 200, alive: true}, 0, func(Clearance) {})
		})
	}
	p.Poll()

	for i, v := range order {
		if v != i {
			t.Fatalf("fire order = %v, want arming order", order)
		}
	}
	if p.Armed() != 5 {
		t.Errorf("Armed = %d, want 5 re-armed observations", p.Armed())
	}
}

func TestPollerReset(t *testing.T) {
	p := NewPoller(geometry.Fixed(100, 10))
	p.Observe(&movingTarget{right: 0, alive: true}, 0, func(Clearance) { t.Error("fired after reset") })
	p.Reset()
	p.Poll()
}
