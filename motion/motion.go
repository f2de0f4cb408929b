// Package motion holds the pure transit arithmetic for fragments crossing a surface.
// Coordinates are surface-relative: offset 0 is the surface's left edge and
// the surface's right edge sits at its width. Fragments travel toward
// negative offsets.
package motion

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/lixenwraith/barrager/config"
)

// ErrConfig reports options that cannot yield a transit duration
var ErrConfig = errors.New("invalid motion configuration")

// State is the motion of one fragment since its last (re)start
type State struct {
	Start     float64   // left-edge offset at StartedAt
	Velocity  float64   // units per second toward negative offsets, 0 when frozen
	StartedAt time.Time // clock reading when this leg began
	Width     float64   // fragment width, fixed at placement
	Distance  float64   // full traverse distance, fixed at placement
}

// Frame is the offset and transition duration handed to a renderer
type Frame struct {
	Offset   float64
	Duration float64 // seconds
}

// Speed resolves the effective speed for lane: lane override first, then the global speed
func Speed(opts config.Options, lane int) float64 {
	if s := opts.LaneSpeed(lane); s > 0 {
		return s
	}
	if opts.Speed > 0 {
		return opts.Speed
	}
	return 0
}

// ParseDuration reads a "<number><unit>" duration: the trailing unit character
// is stripped and the remainder parsed as seconds
// Zero, negative and non-finite values are rejected with ErrConfig along with
// unparsable ones, since they cannot time a traverse
func ParseDuration(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return 0, fmt.Errorf("%w: duration %q", ErrConfig, s)
	}
	v, err := strconv.ParseFloat(s[:len(s)-1], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: duration %q: %v", ErrConfig, s, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0, fmt.Errorf("%w: duration %q must be positive", ErrConfig, s)
	}
	return v, nil
}

// ComputeDuration returns the transit time in seconds for distance on lane
func ComputeDuration(opts config.Options, lane int, distance float64) (float64, error) {
	if speed := Speed(opts, lane); speed > 0 {
		return distance / speed, nil
	}
	return ParseDuration(opts.Duration)
}

// Check validates opts for a surface of lanes lanes before any state is touched
func Check(opts config.Options, lanes int) error {
	if opts.Speed > 0 {
		return nil
	}
	if _, err := ParseDuration(opts.Duration); err == nil {
		return nil
	} else if lanes == 0 {
		return err
	}

	for i := 0; i < lanes; i++ {
		if opts.LaneSpeed(i) <= 0 {
			return fmt.Errorf("%w: no speed for lane %d and duration %q unusable", ErrConfig, i, opts.Duration)
		}
	}
	return nil
}

// Distance is the full traverse: from fully off the right edge to fully off the left edge
func Distance(surfaceWidth, fragmentWidth float64) float64 {
	return surfaceWidth + fragmentWidth
}

// StartOffset places the fragment's left edge on the surface's right edge
func StartOffset(surfaceWidth float64) float64 {
	return surfaceWidth
}

// EndOffset is the offset at which the fragment has fully left the surface
func EndOffset(fragmentWidth float64) float64 {
	return -fragmentWidth
}

// Velocity converts a distance covered in duration seconds to units per second
func Velocity(distance, duration float64) float64 {
	if duration <= 0 {
		return 0
	}
	return distance / duration
}

// Begin starts a full traverse at now
func Begin(surfaceWidth, fragmentWidth, duration float64, now time.Time) State {
	distance := Distance(surfaceWidth, fragmentWidth)
	return State{
		Start:     StartOffset(surfaceWidth),
		Velocity:  Velocity(distance, duration),
		StartedAt: now,
		Width:     fragmentWidth,
		Distance:  distance,
	}
}

// OffsetAt returns the left-edge offset at now, clamped to the end offset
func (s State) OffsetAt(now time.Time) float64 {
	elapsed := now.Sub(s.StartedAt).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	off := s.Start - s.Velocity*elapsed
	if end := EndOffset(s.Width); off < end {
		return end
	}
	return off
}

// Remaining is the distance left from offset to full clearance of the left edge
func (s State) Remaining(offset float64) float64 {
	r := offset - EndOffset(s.Width)
	if r < 0 {
		return 0
	}
	return r
}

// Pause freezes the fragment at its current offset with a zero duration
func Pause(s State, now time.Time) (State, Frame) {
	off := s.OffsetAt(now)
	frozen := s
	frozen.Start = off
	frozen.Velocity = 0
	frozen.StartedAt = now
	return frozen, Frame{Offset: off}
}

// Resume restarts a frozen fragment at now. The remaining distance is timed by
// the same speed/duration rule as placement; a fixed duration is scaled by the
// remaining share of the full distance so the original velocity is preserved.
func Resume(opts config.Options, lane int, s State, now time.Time) (State, Frame, error) {
	off := s.Start
	remaining := s.Remaining(off)

	var duration float64
	if speed := Speed(opts, lane); speed > 0 {
		duration = remaining / speed
	} else {
		total, err := ParseDuration(opts.Duration)
		if err != nil {
			return s, Frame{}, err
		}
		if s.Distance > 0 {
			duration = total * remaining / s.Distance
		}
	}

	resumed := s
	resumed.Start = off
	resumed.StartedAt = now
	resumed.Velocity = Velocity(remaining, duration)
	return resumed, Frame{Offset: off, Duration: duration}, nil
}

const velocityTolerance = 1e-9

// SafeToFollow reports whether a fragment entering at the right edge with
// followerVelocity can never catch a leader whose trailing edge is at
// leaderRight moving at leaderVelocity
func SafeToFollow(surfaceWidth, leaderRight, leaderVelocity, followerVelocity float64) bool {
	if leaderRight > surfaceWidth {
		return false
	}
	if leaderVelocity <= 0 {
		// frozen leader: anything moving will eventually reach it
		return followerVelocity <= 0
	}
	// Equal speeds reached through different distance/duration pairs differ by rounding
	if followerVelocity <= leaderVelocity*(1+velocityTolerance) {
		return true
	}

	// Leader trailing edge leaves the left edge before the follower's leading edge gets there
	leaderExit := leaderRight / leaderVelocity
	followerArrival := surfaceWidth / followerVelocity
	return followerArrival >= leaderExit
}
