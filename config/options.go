package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"k8s.io/utils/ptr"
)

const (
	// DefaultGap is the clearance margin in surface units between a fragment's
	// trailing edge and the surface's right edge
	DefaultGap = 1.0

	// DefaultResizeDebounce collapses bursts of resize notifications
	DefaultResizeDebounce = 100 * time.Millisecond
)

// Callback receives the identifier of the fragment that started or ended its motion
type Callback func(id string)

// LaneSpeed overrides the global speed for one lane index
type LaneSpeed struct {
	Speed float64 `toml:"speed"`
}

// Options is the merged configuration record for a surface and its fragments
// Zero values mean "unset"; Merge lets later non-zero values win
type Options struct {
	// TrackHeight is the lane height in surface units, 0 means one lane spanning the surface
	TrackHeight float64 `toml:"track_height"`

	// Speed in units per second; takes precedence over Duration
	Speed float64 `toml:"speed"`

	// Duration is the total transit time written as "<number>s", used only without a speed
	Duration string `toml:"duration"`

	// LaneSpeeds overrides Speed per lane index
	LaneSpeeds []LaneSpeed `toml:"lane_speeds"`

	PauseOnHover *bool `toml:"pause_on_hover"`
	PauseOnClick *bool `toml:"pause_on_click"`

	// Gap is the clearance margin used by the clearance watch
	Gap float64 `toml:"gap"`

	// ReuseRunningLanes enables placement into a running lane whose newest
	// fragment can no longer be caught by a new one
	ReuseRunningLanes *bool `toml:"reuse_running_lanes"`

	ResizeDebounce time.Duration `toml:"resize_debounce"`

	OnStart Callback `toml:"-"`
	OnEnd   Callback `toml:"-"`
}

// Defaults returns the built-in option layer
// Speed and Duration stay unset: a push without either is a configuration error
func Defaults() Options {
	return Options{
		PauseOnHover:      ptr.To(false),
		PauseOnClick:      ptr.To(false),
		ReuseRunningLanes: ptr.To(false),
		Gap:               DefaultGap,
		ResizeDebounce:    DefaultResizeDebounce,
	}
}

// Merge returns o overlaid with every set field of over
func (o Options) Merge(over Options) Options {
	out := o
	if over.TrackHeight != 0 {
		out.TrackHeight = over.TrackHeight
	}
	if over.Speed != 0 {
		out.Speed = over.Speed
	}
	if over.Duration != "" {
		out.Duration = over.Duration
	}
	if over.LaneSpeeds != nil {
		out.LaneSpeeds = append([]LaneSpeed(nil), over.LaneSpeeds...)
	}
	if over.PauseOnHover != nil {
		out.PauseOnHover = ptr.To(*over.PauseOnHover)
	}
	if over.PauseOnClick != nil {
		out.PauseOnClick = ptr.To(*over.PauseOnClick)
	}
	if over.Gap != 0 {
		out.Gap = over.Gap
	}
	if over.ReuseRunningLanes != nil {
		out.ReuseRunningLanes = ptr.To(*over.ReuseRunningLanes)
	}
	if over.ResizeDebounce != 0 {
		out.ResizeDebounce = over.ResizeDebounce
	}
	if over.OnStart != nil {
		out.OnStart = over.OnStart
	}
	if over.OnEnd != nil {
		out.OnEnd = over.OnEnd
	}
	return out
}

// Resolve layers defaults, instance options and call-site overrides, later wins
func Resolve(instance Options, overrides ...Options) Options {
	out := Defaults().Merge(instance)
	for _, o := range overrides {
		out = out.Merge(o)
	}
	return out
}

// HoverPauses reports whether hovering a fragment pauses it
func (o Options) HoverPauses() bool { return ptr.Deref(o.PauseOnHover, false) }

// ClickPauses reports whether clicking a fragment toggles its pause
func (o Options) ClickPauses() bool { return ptr.Deref(o.PauseOnClick, false) }

// ReusesRunningLanes reports whether the overtake heuristic is enabled
func (o Options) ReusesRunningLanes() bool { return ptr.Deref(o.ReuseRunningLanes, false) }

// LaneSpeed returns the speed override for lane, or 0 when none is set
func (o Options) LaneSpeed(lane int) float64 {
	if lane < 0 || lane >= len(o.LaneSpeeds) {
		return 0
	}
	return o.LaneSpeeds[lane].Speed
}

// file mirrors the on-disk layout, options live under [barrager]
type file struct {
	Barrager Options `toml:"barrager"`
}

// Load reads options from a TOML file; unknown keys are ignored
func Load(path string) (Options, error) {
	var f file
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return Options{}, fmt.Errorf("load config %s: %w", path, err)
	}
	return f.Barrager, nil
}

// Parse decodes options from TOML text
func Parse(data string) (Options, error) {
	var f file
	if _, err := toml.Decode(data, &f); err != nil {
		return Options{}, fmt.Errorf("parse config: %w", err)
	}
	return f.Barrager, nil
}
