package engine

import (
	"github.com/lixenwraith/barrager/config"
	"github.com/lixenwraith/barrager/motion"
)

// Priority decides what happens to a push when no lane is idle
type Priority uint8

const (
	// Normal pushes are dropped when every lane is busy
	Normal Priority = iota
	// High pushes wait in the overflow queue
	High
)

func (p Priority) String() string {
	if p == High {
		return "high"
	}
	return "normal"
}

// FragmentState is the lifecycle stage of an in-flight fragment
type FragmentState uint8

const (
	// Pending fragments are placed but have not started moving
	Pending FragmentState = iota
	// Visible fragments are moving, or frozen after having moved
	Visible
	// Cleared fragments have released their lane and are finishing their traverse
	Cleared
)

func (s FragmentState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Visible:
		return "visible"
	case Cleared:
		return "cleared"
	}
	return "unknown"
}

// fragment is owned exclusively by the Barrager; the lane registry only holds its id
type fragment struct {
	id      string
	content string
	opts    config.Options
	lane    int
	top     float64
	state   FragmentState

	// width is captured once at placement
	width    float64
	duration float64
	velocity float64 // traverse velocity, kept across pauses

	motion motion.State
	paused bool // individually paused
	frozen bool // not moving, for any reason

	disarm func()
}

// Snapshot is a point-in-time copy of one active fragment
type Snapshot struct {
	ID       string
	Content  string
	Lane     int
	State    FragmentState
	Width    float64
	Duration float64
	Offset   float64
	Paused   bool
	Frozen   bool
	Options  config.Options
}
