package audio

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"
	"k8s.io/utils/clock"
)

const sampleRate = beep.SampleRate(48000)

// Kind selects a cue sound
type Kind uint8

const (
	KindStart Kind = iota // fragment entered the surface
	KindEnd               // fragment left the surface
	KindDrop              // push was dropped or an overflow entry was lost
)

const (
	startNote1 = 60 * time.Millisecond
	startNote2 = 90 * time.Millisecond
	endLength  = 70 * time.Millisecond
	dropLength = 50 * time.Millisecond
	cueAttack  = 5 * time.Millisecond

	// minInterval throttles cues of one kind; a dense barrage would otherwise buzz
	minInterval = 40 * time.Millisecond
)

// Streamer builds the sound for kind at vol
func Streamer(kind Kind, vol float64, rate beep.SampleRate) beep.Streamer {
	switch kind {
	case KindStart:
		// E6 then B6, short square chime
		n1 := NewEnvelope(NewTone(1318.51, startNote1, WaveSquare, rate), startNote1, cueAttack, 40*time.Millisecond, rate)
		n2 := NewEnvelope(NewTone(1975.53, startNote2, WaveSquare, rate), startNote2, cueAttack, 70*time.Millisecond, rate)
		return withVolume(beep.Seq(n1, n2), vol*0.5)
	case KindEnd:
		s := NewEnvelope(NewTone(440, endLength, WaveSine, rate), endLength, cueAttack, 50*time.Millisecond, rate)
		return withVolume(s, vol*0.4)
	case KindDrop:
		s := NewEnvelope(NewTone(0, dropLength, WaveNoise, rate), dropLength, cueAttack, 30*time.Millisecond, rate)
		return withVolume(s, vol*0.3)
	}
	return nil
}

// Cue plays short sounds on fragment lifecycle events through the system speaker
// Until Init succeeds every call is a silent no-op
type Cue struct {
	mu          sync.Mutex
	mixer       *beep.Mixer
	clock       clock.PassiveClock
	volume      float64
	initialized bool
	last        [KindDrop + 1]time.Time

	played atomic.Int64
}

// NewCue creates a cue player at volume in [0, 1]
func NewCue(volume float64, clk clock.PassiveClock) *Cue {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Cue{
		mixer:  &beep.Mixer{},
		clock:  clk,
		volume: volume,
	}
}

// Init opens the speaker
func (c *Cue) Init() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized {
		return nil
	}
	if err := speaker.Init(sampleRate, sampleRate.N(100*time.Millisecond)); err != nil {
		return fmt.Errorf("audio init: %w", err)
	}
	speaker.Play(c.mixer)
	c.initialized = true
	return nil
}

// Close silences every queued cue
func (c *Cue) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized {
		return
	}
	speaker.Lock()
	c.mixer.Clear()
	speaker.Unlock()
	c.initialized = false
}

// Play queues kind unless the same kind played within minInterval
// Returns false when the cue was throttled or audio is not initialized
func (c *Cue) Play(kind Kind) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized || !c.accept(kind) {
		return false
	}
	s := Streamer(kind, c.volume, sampleRate)
	if s == nil {
		return false
	}
	speaker.Lock()
	c.mixer.Add(s)
	speaker.Unlock()
	c.played.Add(1)
	return true
}

// accept applies the per-kind throttle; called with mu held
func (c *Cue) accept(kind Kind) bool {
	if int(kind) >= len(c.last) {
		return false
	}
	now := c.clock.Now()
	if !c.last[kind].IsZero() && now.Sub(c.last[kind]) < minInterval {
		return false
	}
	c.last[kind] = now
	return true
}

// Start has the fragment callback signature and plays KindStart
func (c *Cue) Start(string) { c.Play(KindStart) }

// End has the fragment callback signature and plays KindEnd
func (c *Cue) End(string) { c.Play(KindEnd) }

// Drop plays KindDrop
func (c *Cue) Drop() { c.Play(KindDrop) }

// Played returns the number of cues handed to the speaker
func (c *Cue) Played() int64 {
	return c.played.Load()
}
