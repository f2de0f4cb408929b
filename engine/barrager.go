package engine

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"k8s.io/utils/clock"

	"github.com/lixenwraith/barrager/config"
	"github.com/lixenwraith/barrager/geometry"
	"github.com/lixenwraith/barrager/lane"
	"github.com/lixenwraith/barrager/metrics"
	"github.com/lixenwraith/barrager/motion"
	"github.com/lixenwraith/barrager/overflow"
	"github.com/lixenwraith/barrager/render"
	"github.com/lixenwraith/barrager/status"
	"github.com/lixenwraith/barrager/watch"
)

var (
	// ErrInit reports a surface or collaborator that cannot host a barrager
	ErrInit = errors.New("barrager: initialization failed")
	// ErrClosed is returned by operations on a closed barrager
	ErrClosed = errors.New("barrager: closed")
	// ErrUnknownFragment is returned for ids that are not in flight
	ErrUnknownFragment = errors.New("barrager: unknown fragment")
)

// Option configures a Barrager at construction
type Option func(*Barrager)

// WithClock sets the time source used for motion and resize debouncing
func WithClock(clk clock.WithDelayedExecution) Option {
	return func(b *Barrager) {
		if clk != nil {
			b.clock = clk
		}
	}
}

// WithLogger sets the logger; the default discards
func WithLogger(l logr.Logger) Option {
	return func(b *Barrager) { b.log = l }
}

// WithWatcher replaces the built-in polling clearance watch
func WithWatcher(w watch.Watcher) Option {
	return func(b *Barrager) {
		if w != nil {
			b.watcher = w
		}
	}
}

// WithStatus publishes live counters into reg
func WithStatus(reg *status.Registry) Option {
	return func(b *Barrager) {
		if reg != nil {
			b.status = reg
		}
	}
}

// WithMetrics records scheduler events into rec
func WithMetrics(rec *metrics.Recorder) Option {
	return func(b *Barrager) { b.metrics = rec }
}

// WithPicker sets the tie-break among idle lanes; the default is random
func WithPicker(p lane.Picker) Option {
	return func(b *Barrager) {
		if p != nil {
			b.pick = p
		}
	}
}

// WithIDs replaces the fragment identifier generator
func WithIDs(fn func() string) Option {
	return func(b *Barrager) {
		if fn != nil {
			b.newID = fn
		}
	}
}

// Barrager schedules fragments onto the lanes of one surface
// Every mutation of lanes, queue and fragments happens under mu as one reaction;
// render calls and user callbacks run after the reaction releases the lock
type Barrager struct {
	mu sync.Mutex

	surfaceProvider geometry.SurfaceProvider
	measurer        geometry.Measurer
	renderer        render.Renderer
	watcher         watch.Watcher
	poller          *watch.Poller
	clock           clock.WithDelayedExecution
	log             logr.Logger
	metrics         *metrics.Recorder
	status          *status.Registry
	newID           func() string
	pick            lane.Picker

	opts    config.Options
	surface geometry.Rect
	lanes   *lane.Registry
	queue   *overflow.Queue

	fragments map[string]*fragment
	order     []string // admission order
	trailing  []string // newest fragment placed on each lane, until it completes

	paused      bool
	closed      bool
	resizeTimer clock.Timer

	// Cached status pointers
	statAdmitted        *atomic.Int64
	statQueued          *atomic.Int64
	statDropped         *atomic.Int64
	statOverflowDropped *atomic.Int64
	statActive          *atomic.Int64
	statQueueDepth      *atomic.Int64
	statRunningLanes    *atomic.Int64
	statLastDuration    *status.AtomicFloat
}

// New measures the surface, creates its lanes and returns a ready scheduler
// opts is the instance layer merged over config.Defaults
func New(
	surface geometry.SurfaceProvider,
	measurer geometry.Measurer,
	renderer render.Renderer,
	opts config.Options,
	options ...Option,
) (*Barrager, error) {
	if surface == nil {
		return nil, fmt.Errorf("%w: missing surface", ErrInit)
	}
	if measurer == nil {
		return nil, fmt.Errorf("%w: missing measurer", ErrInit)
	}
	if renderer == nil {
		return nil, fmt.Errorf("%w: missing renderer", ErrInit)
	}

	rect := surface.MeasureSurface()
	if rect.Empty() || math.IsNaN(rect.Width) || math.IsNaN(rect.Height) {
		return nil, fmt.Errorf("%w: surface has no area (%vx%v)", ErrInit, rect.Width, rect.Height)
	}

	b := &Barrager{
		surfaceProvider: surface,
		measurer:        measurer,
		renderer:        renderer,
		clock:           clock.RealClock{},
		log:             logr.Discard(),
		newID:           uuid.NewString,
		pick:            rand.Intn,
		opts:            config.Resolve(opts),
		surface:         rect,
		queue:           overflow.New(),
		fragments:       make(map[string]*fragment),
	}
	for _, o := range options {
		o(b)
	}

	if b.watcher == nil {
		b.poller = watch.NewPoller(geometry.SurfaceFunc(b.Surface))
		b.watcher = b.poller
	}
	if b.status == nil {
		b.status = status.NewRegistry()
	}
	b.cacheStatus()

	b.lanes = lane.New(laneCount(rect.Height, b.opts.TrackHeight), b.pick)
	b.trailing = make([]string, b.lanes.Len())
	b.log.V(1).Info("barrager initialized",
		"lanes", b.lanes.Len(), "width", rect.Width, "height", rect.Height)
	b.publish()
	return b, nil
}

// laneCount divides the surface into whole lanes; at least one lane always exists
func laneCount(height, trackHeight float64) int {
	if trackHeight <= 0 {
		return 1
	}
	n := int(math.Floor(height / trackHeight))
	if n < 1 {
		return 1
	}
	return n
}

func (b *Barrager) cacheStatus() {
	b.statAdmitted = b.status.Ints.Get(status.KeyAdmitted)
	b.statQueued = b.status.Ints.Get(status.KeyQueued)
	b.statDropped = b.status.Ints.Get(status.KeyDropped)
	b.statOverflowDropped = b.status.Ints.Get(status.KeyOverflowDropped)
	b.statActive = b.status.Ints.Get(status.KeyActive)
	b.statQueueDepth = b.status.Ints.Get(status.KeyQueueDepth)
	b.statRunningLanes = b.status.Ints.Get(status.KeyRunningLanes)
	b.statLastDuration = b.status.Floats.Get(status.KeyLastDuration)
}

// effects are deferred until the reaction's lock is released
type effects []func()

func (fx *effects) add(f func()) { *fx = append(*fx, f) }

func (fx effects) run() {
	for _, f := range fx {
		f()
	}
}

// Push admits content onto an idle lane
// Returns the new fragment id, or "" when the fragment was queued (High) or dropped (Normal)
// A configuration error rejects the push before any state changes
func (b *Barrager) Push(content string, overrides *config.Options, priority Priority) (string, error) {
	var fx effects
	b.mu.Lock()
	id, err := b.push(content, overrides, priority, &fx)
	b.mu.Unlock()
	fx.run()
	return id, err
}

func (b *Barrager) push(content string, overrides *config.Options, priority Priority, fx *effects) (string, error) {
	if b.closed {
		return "", ErrClosed
	}

	opts := b.opts
	if overrides != nil {
		opts = opts.Merge(*overrides)
	}
	if err := motion.Check(opts, b.lanes.Len()); err != nil {
		b.metrics.ConfigError()
		return "", fmt.Errorf("push rejected: %w", err)
	}

	if id, ok := b.admit(content, opts, metrics.PathDirect, fx); ok {
		return id, nil
	}

	switch priority {
	case High:
		b.queue.Enqueue(overflow.Entry{Content: content, Options: opts})
		b.statQueued.Add(1)
		b.metrics.Queued()
		b.log.V(1).Info("no idle lane, queued", "depth", b.queue.Len())
	default:
		b.statDropped.Add(1)
		b.metrics.Dropped()
		b.log.V(2).Info("no idle lane, dropped")
	}
	b.publish()
	return "", nil
}

// admit places content on a lane if one is available
// An idle lane only qualifies when the fragment cannot catch the lane's last
// fragment, which may still be crossing after it released the lane
func (b *Barrager) admit(content string, opts config.Options, path string, fx *effects) (string, bool) {
	now := b.clock.Now()
	width := b.measurer.Measure(content).Width
	distance := motion.Distance(b.surface.Width, width)

	idx, ok := b.lanes.FindIdleLaneWhere(func(l int) bool {
		return b.safeBehind(l, opts, distance, now)
	})
	if !ok && opts.ReusesRunningLanes() {
		idx, ok = b.findReusable(opts, width, now)
		path = metrics.PathReuse
	}
	if !ok {
		return "", false
	}

	duration, err := motion.ComputeDuration(opts, idx, distance)
	if err != nil {
		// Check already validated opts; keep the lane consistent regardless
		if b.lanes.Abandon(idx) {
			b.drainOne(fx)
		}
		b.log.Error(err, "duration unavailable after validation", "lane", idx)
		return "", false
	}

	f := &fragment{
		id:       b.newID(),
		content:  content,
		opts:     opts,
		lane:     idx,
		top:      float64(idx) * opts.TrackHeight,
		width:    width,
		duration: duration,
		motion:   motion.Begin(b.surface.Width, width, duration, now),
	}
	f.velocity = f.motion.Velocity
	b.fragments[f.id] = f
	b.order = append(b.order, f.id)
	b.lanes.Add(idx, f.id)
	b.trailing[idx] = f.id

	id := f.id

	if b.paused {
		// Placed while globally paused: sits at the start offset until resume
		f.motion, _ = motion.Pause(f.motion, now)
		f.frozen = true
		p := b.placement(f, f.motion.Start, 0)
		fx.add(func() { b.renderer.Place(p) })
	} else {
		f.state = Visible
		p := b.placement(f, f.motion.Start, duration)
		fx.add(func() { b.renderer.Place(p) })
		if opts.OnStart != nil {
			fx.add(func() { opts.OnStart(id) })
		}
	}
	fx.add(func() { b.arm(id, opts.Gap) })

	b.statAdmitted.Add(1)
	b.statLastDuration.Set(duration)
	b.metrics.Admitted(path, duration)
	b.log.V(1).Info("admitted", "id", id, "lane", idx, "width", width, "duration", duration, "path", path)

	b.drainOne(fx)
	b.publish()
	return id, true
}

// safeBehind reports whether a fragment of distance entering lane l at now can
// never catch the last fragment placed on l
func (b *Barrager) safeBehind(l int, opts config.Options, distance float64, now time.Time) bool {
	lead, ok := b.fragments[b.trailing[l]]
	if !ok {
		return true
	}
	// Under a global pause both restart together at their traverse velocities
	if lead.frozen && !b.paused {
		return false
	}
	d, err := motion.ComputeDuration(opts, l, distance)
	if err != nil {
		return false
	}
	right := lead.motion.OffsetAt(now) + lead.width
	return motion.SafeToFollow(b.surface.Width, right, lead.velocity, motion.Velocity(distance, d))
}

// hasSafeLane reports whether admit would find an idle lane for content
func (b *Barrager) hasSafeLane(content string, opts config.Options) bool {
	now := b.clock.Now()
	distance := motion.Distance(b.surface.Width, b.measurer.Measure(content).Width)
	for l, s := range b.lanes.Statuses() {
		if s == lane.Idle && b.safeBehind(l, opts, distance, now) {
			return true
		}
	}
	return false
}

// arm starts the clearance watch for id
// It runs after the reaction unlocks so a watcher may read the target or fire at once
func (b *Barrager) arm(id string, gap float64) {
	cancel := b.watcher.Observe(b.target(id), gap, func(c watch.Clearance) {
		b.onClearance(id, c)
	})

	b.mu.Lock()
	f, ok := b.fragments[id]
	keep := ok && !b.closed && f.state != Cleared
	if keep {
		f.disarm = cancel
	}
	b.mu.Unlock()

	if !keep {
		cancel()
	}
}

// findReusable applies the overtake check to each running lane's newest fragment
func (b *Barrager) findReusable(opts config.Options, width float64, now time.Time) (int, bool) {
	distance := motion.Distance(b.surface.Width, width)

	return b.lanes.FindReusableLane(func(l int, newest string) bool {
		lead, ok := b.fragments[newest]
		if !ok || lead.frozen {
			return false
		}
		d, err := motion.ComputeDuration(opts, l, distance)
		if err != nil {
			return false
		}
		right := lead.motion.OffsetAt(now) + lead.width
		return motion.SafeToFollow(b.surface.Width, right, lead.motion.Velocity, motion.Velocity(distance, d))
	})
}

// drainOne admits the overflow head when an idle lane can take it
// The head stays queued while every idle lane is still unsafe to enter
// An entry that fails admission once dequeued is dropped, never re-queued
func (b *Barrager) drainOne(fx *effects) {
	if b.queue.Len() == 0 || !b.lanes.HasIdle() {
		return
	}
	head, _ := b.queue.Peek()
	if !b.hasSafeLane(head.Content, head.Options) {
		b.log.V(2).Info("idle lanes not yet safe, overflow head waits", "depth", b.queue.Len())
		return
	}
	e, _ := b.queue.Dequeue()
	if _, ok := b.admit(e.Content, e.Options, metrics.PathOverflow, fx); !ok {
		b.statOverflowDropped.Add(1)
		b.metrics.OverflowDropped()
		b.log.Info("overflow entry lost its lane, dropped", "content", e.Content)
	}
}

func (b *Barrager) placement(f *fragment, offset, duration float64) render.Placement {
	return render.Placement{
		ID:       f.id,
		Content:  f.content,
		Lane:     f.lane,
		Top:      f.top,
		Width:    f.width,
		Offset:   offset,
		Duration: duration,
	}
}

// target exposes a fragment's live bounds to the clearance watch
func (b *Barrager) target(id string) watch.Target {
	return watch.TargetFunc(func() (geometry.Rect, bool) {
		b.mu.Lock()
		defer b.mu.Unlock()

		f, ok := b.fragments[id]
		if !ok || b.closed {
			return geometry.Rect{}, false
		}
		off := f.motion.OffsetAt(b.clock.Now())
		return geometry.Rect{Width: f.width, Height: 1, Left: off, Right: off + f.width}, true
	})
}

// onClearance releases the fragment's lane membership once it is safely clear
func (b *Barrager) onClearance(id string, c watch.Clearance) {
	var fx effects
	b.mu.Lock()
	b.clear(id, c, &fx)
	b.mu.Unlock()
	fx.run()
}

func (b *Barrager) clear(id string, c watch.Clearance, fx *effects) {
	if b.closed || !c.BecameClear {
		return
	}
	f, ok := b.fragments[id]
	if !ok || f.state == Cleared {
		return
	}
	f.state = Cleared
	f.disarm = nil

	if b.lanes.Release(f.lane, id) {
		b.log.V(1).Info("lane idle", "lane", f.lane, "cleared", id)
		b.drainOne(fx)
	}
	b.publish()
}

// Complete is the motion-complete notification for id
// It fires OnEnd, drops the fragment and releases its lane if clearance never did
func (b *Barrager) Complete(id string) {
	var fx effects
	b.mu.Lock()
	b.complete(id, &fx)
	b.mu.Unlock()
	fx.run()
}

func (b *Barrager) complete(id string, fx *effects) {
	f, ok := b.fragments[id]
	if !ok {
		return
	}
	if f.disarm != nil {
		f.disarm()
		f.disarm = nil
	}
	released := false
	if f.state != Cleared {
		f.state = Cleared
		released = b.lanes.Release(f.lane, id)
	}
	trailing := b.trailing[f.lane] == id
	if trailing {
		b.trailing[f.lane] = ""
	}
	b.forget(id)
	if released || trailing {
		b.drainOne(fx)
	}

	if f.opts.OnEnd != nil {
		onEnd := f.opts.OnEnd
		fx.add(func() { onEnd(id) })
	}
	fx.add(func() { b.renderer.Remove(id) })
	b.log.V(1).Info("completed", "id", id, "lane", f.lane)
	b.publish()
}

func (b *Barrager) forget(id string) {
	delete(b.fragments, id)
	for i, v := range b.order {
		if v == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			return
		}
	}
}

// Pause freezes one fragment, or every fragment when id is empty
// A global pause also freezes fragments admitted while it lasts
func (b *Barrager) Pause(id string) error {
	var fx effects
	b.mu.Lock()
	err := b.pause(id, &fx)
	b.mu.Unlock()
	fx.run()
	return err
}

func (b *Barrager) pause(id string, fx *effects) error {
	if b.closed {
		return ErrClosed
	}
	now := b.clock.Now()

	if id == "" {
		b.paused = true
		for _, fid := range b.order {
			b.freeze(b.fragments[fid], now, fx)
		}
		b.log.V(1).Info("paused all", "fragments", len(b.order))
		return nil
	}

	f, ok := b.fragments[id]
	if !ok {
		return fmt.Errorf("pause %s: %w", id, ErrUnknownFragment)
	}
	f.paused = true
	b.freeze(f, now, fx)
	return nil
}

func (b *Barrager) freeze(f *fragment, now time.Time, fx *effects) {
	if f.frozen {
		return
	}
	var frame motion.Frame
	f.motion, frame = motion.Pause(f.motion, now)
	f.frozen = true
	f.duration = frame.Duration

	id, off := f.id, frame.Offset
	fx.add(func() { b.renderer.Freeze(id, off) })
	b.log.V(2).Info("frozen", "id", id, "offset", off)
}

// Resume restarts one fragment, or every fragment when id is empty
// Motion continues at the originally configured speed over the remaining distance
// A global resume also clears individual pauses; fragments are resumed in admission order,
// which callers should treat as unordered
func (b *Barrager) Resume(id string) error {
	var fx effects
	b.mu.Lock()
	err := b.resume(id, &fx)
	b.mu.Unlock()
	fx.run()
	return err
}

func (b *Barrager) resume(id string, fx *effects) error {
	if b.closed {
		return ErrClosed
	}
	now := b.clock.Now()

	if id == "" {
		b.paused = false
		var errs []error
		for _, fid := range b.order {
			f := b.fragments[fid]
			f.paused = false
			if err := b.thaw(f, now, fx); err != nil {
				errs = append(errs, err)
			}
		}
		b.log.V(1).Info("resumed all", "fragments", len(b.order))
		b.drainOne(fx)
		return errors.Join(errs...)
	}

	f, ok := b.fragments[id]
	if !ok {
		return fmt.Errorf("resume %s: %w", id, ErrUnknownFragment)
	}
	f.paused = false
	if b.paused {
		// Global pause still holds the fragment
		return nil
	}
	if err := b.thaw(f, now, fx); err != nil {
		return err
	}
	b.drainOne(fx)
	return nil
}

func (b *Barrager) thaw(f *fragment, now time.Time, fx *effects) error {
	if !f.frozen {
		return nil
	}
	st, frame, err := motion.Resume(f.opts, f.lane, f.motion, now)
	if err != nil {
		return fmt.Errorf("resume %s: %w", f.id, err)
	}
	f.motion = st
	f.frozen = false
	f.duration = frame.Duration

	p := b.placement(f, frame.Offset, frame.Duration)
	fx.add(func() { b.renderer.Animate(p) })

	if f.state == Pending {
		f.state = Visible
		if f.opts.OnStart != nil {
			onStart, id := f.opts.OnStart, f.id
			fx.add(func() { onStart(id) })
		}
	}
	b.log.V(2).Info("resumed", "id", f.id, "offset", frame.Offset, "duration", frame.Duration)
	return nil
}

// Resize schedules a debounced surface re-measure
// Only the cached geometry changes; lane count and in-flight fragments are untouched
func (b *Barrager) Resize() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	if b.resizeTimer != nil {
		b.resizeTimer.Stop()
	}
	b.resizeTimer = b.clock.AfterFunc(b.opts.ResizeDebounce, b.applyResize)
}

func (b *Barrager) applyResize() {
	rect := b.surfaceProvider.MeasureSurface()

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	if rect.Empty() {
		b.log.V(1).Info("ignoring empty surface measurement", "width", rect.Width, "height", rect.Height)
		return
	}
	b.surface = rect
	b.log.V(1).Info("surface re-measured", "width", rect.Width, "height", rect.Height)
}

// Close disarms every clearance watch, releases all lanes and drops the overflow queue
// Later calls return ErrClosed
func (b *Barrager) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true

	ids := b.order
	for _, id := range ids {
		if f := b.fragments[id]; f.disarm != nil {
			f.disarm()
			f.disarm = nil
		}
	}
	b.fragments = make(map[string]*fragment)
	b.order = nil
	clear(b.trailing)
	b.lanes.Reset()
	b.queue.Clear()
	if b.resizeTimer != nil {
		b.resizeTimer.Stop()
		b.resizeTimer = nil
	}
	b.publish()
	b.mu.Unlock()

	for _, id := range ids {
		b.renderer.Remove(id)
	}
	b.log.V(1).Info("closed", "removed", len(ids))
}

// Poll evaluates the built-in clearance watch, then offers the overflow head to
// idle lanes that have become safe since the last reaction
// The watch step is skipped when a watcher was supplied through WithWatcher
// Returns the number of clearance observations fired
func (b *Barrager) Poll() int {
	fired := 0
	if b.poller != nil {
		fired = b.poller.Poll()
	}

	var fx effects
	b.mu.Lock()
	if !b.closed {
		b.drainOne(&fx)
		b.publish()
	}
	b.mu.Unlock()
	fx.run()
	return fired
}

// ListActive returns a snapshot of in-flight fragments in admission order
func (b *Barrager) ListActive() []Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()
	out := make([]Snapshot, 0, len(b.order))
	for _, id := range b.order {
		f := b.fragments[id]
		out = append(out, Snapshot{
			ID:       f.id,
			Content:  f.content,
			Lane:     f.lane,
			State:    f.state,
			Width:    f.width,
			Duration: f.duration,
			Offset:   f.motion.OffsetAt(now),
			Paused:   f.paused,
			Frozen:   f.frozen,
			Options:  f.opts,
		})
	}
	return out
}

// Lanes returns every lane status
func (b *Barrager) Lanes() []lane.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lanes.Statuses()
}

// LaneMembers returns lane's membership in placement order
func (b *Barrager) LaneMembers(l int) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lanes.Members(l)
}

// QueueLen returns the overflow queue depth
func (b *Barrager) QueueLen() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queue.Len()
}

// Surface returns the cached surface measurement
func (b *Barrager) Surface() geometry.Rect {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.surface
}

// Paused reports the global pause flag
func (b *Barrager) Paused() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.paused
}

// Options returns the instance option layer
func (b *Barrager) Options() config.Options {
	return b.opts
}

// Status returns the live metrics registry
func (b *Barrager) Status() *status.Registry {
	return b.status
}

// publish refreshes occupancy gauges; called with mu held
func (b *Barrager) publish() {
	active, depth, running := len(b.fragments), b.queue.Len(), b.lanes.Running()
	b.statActive.Store(int64(active))
	b.statQueueDepth.Store(int64(depth))
	b.statRunningLanes.Store(int64(running))
	b.metrics.Occupancy(active, depth, running)
}
