package render

// Placement describes where a fragment sits and how long its motion to the end offset takes
type Placement struct {
	ID       string
	Content  string
	Lane     int
	Top      float64 // lane top in surface units
	Width    float64
	Offset   float64 // left edge, surface-relative
	Duration float64 // seconds to reach the end offset, 0 when frozen
}

// Renderer applies motion decisions to a concrete surface
// Every call must be idempotent under repeats with identical arguments
type Renderer interface {
	// Place puts a new fragment at its starting offset and starts its motion
	Place(p Placement)
	// Freeze stops a fragment at offset
	Freeze(id string, offset float64)
	// Animate restarts a frozen fragment from p.Offset over p.Duration
	Animate(p Placement)
	// Remove discards a fragment
	Remove(id string)
}

// Nop discards every call; useful for headless schedulers
type Nop struct{}

func (Nop) Place(Placement)        {}
func (Nop) Freeze(string, float64) {}
func (Nop) Animate(Placement)      {}
func (Nop) Remove(string)          {}
