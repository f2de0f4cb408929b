package main

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/go-logr/logr"

	"github.com/lixenwraith/barrager/config"
	"github.com/lixenwraith/barrager/engine"
	"github.com/lixenwraith/barrager/feed"
	"github.com/lixenwraith/barrager/lane"
	"github.com/lixenwraith/barrager/render"
	"github.com/lixenwraith/barrager/status"
)

const frameInterval = 16 * time.Millisecond // ~60 FPS

var samples = []string{
	"hello there",
	"first!",
	"this part again",
	"lanes never overlap",
	"( ´ ▽ ` )ﾉ",
	"弾幕",
	"what a finish",
	"slow down",
	"GG",
	"the music here is great",
	"look at the top lane",
	"speed up the demo",
}

// App drives one barrager on a terminal screen
type App struct {
	screen tcell.Screen
	term   *render.Terminal
	b      *engine.Barrager
	reg    *status.Registry
	opts   config.Options
	log    logr.Logger

	hovered string
	clicked map[string]bool

	// onDrop fires once per frame in which pushes were dropped or overflow entries lost
	onDrop  func()
	dropped int64
}

// NewApp wires an already built barrager to its screen
func NewApp(screen tcell.Screen, term *render.Terminal, b *engine.Barrager, reg *status.Registry, log logr.Logger) *App {
	return &App{
		screen:  screen,
		term:    term,
		b:       b,
		reg:     reg,
		opts:    b.Options(),
		log:     log,
		clicked: make(map[string]bool),
	}
}

// HandleEvent applies one terminal event; returns false to quit
func (a *App) HandleEvent(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		if ev.Key() == tcell.KeyEscape || ev.Key() == tcell.KeyCtrlC || ev.Key() == tcell.KeyCtrlQ {
			return false
		}
		if ev.Key() != tcell.KeyRune {
			return true
		}
		switch ev.Rune() {
		case 'q':
			return false
		case ' ':
			a.togglePause()
		case 'n':
			a.push(samples[rand.Intn(len(samples))], engine.Normal)
		case 'h':
			a.push(samples[rand.Intn(len(samples))], engine.High)
		}

	case *tcell.EventMouse:
		x, y := ev.Position()
		id, hit := a.term.HitTest(x, y)
		if ev.Buttons()&tcell.Button1 != 0 {
			if hit {
				a.click(id)
			}
			return true
		}
		a.hover(id, hit)

	case *tcell.EventResize:
		a.screen.Sync()
		a.b.Resize()
	}
	return true
}

func (a *App) togglePause() {
	var err error
	if a.b.Paused() {
		err = a.b.Resume("")
		clear(a.clicked)
	} else {
		err = a.b.Pause("")
	}
	if err != nil {
		a.log.Error(err, "toggle pause")
	}
}

// hover pauses the fragment under the pointer and resumes the one it left
func (a *App) hover(id string, hit bool) {
	if !a.opts.HoverPauses() || (hit && id == a.hovered) {
		return
	}
	if a.hovered != "" && !a.clicked[a.hovered] {
		// The fragment may have completed meanwhile
		a.b.Resume(a.hovered)
	}
	a.hovered = ""
	if hit {
		a.hovered = id
		a.b.Pause(id)
	}
}

// click toggles a fragment's pause
func (a *App) click(id string) {
	if !a.opts.ClickPauses() {
		return
	}
	if a.clicked[id] {
		delete(a.clicked, id)
		a.b.Resume(id)
		return
	}
	a.clicked[id] = true
	a.b.Pause(id)
}

func (a *App) push(content string, priority engine.Priority) {
	if _, err := a.b.Push(content, nil, priority); err != nil {
		a.log.Error(err, "push failed", "content", content)
	}
}

// Frame evaluates clearance, draws, and reports completed motion back to the barrager
func (a *App) Frame() {
	a.b.Poll()
	a.term.SetStatus(a.statusLine())
	for _, id := range a.term.Draw() {
		a.b.Complete(id)
		delete(a.clicked, id)
		if id == a.hovered {
			a.hovered = ""
		}
	}
	a.checkDrops()
}

func (a *App) checkDrops() {
	snap := a.reg.Snapshot()
	dropped := snap[status.KeyDropped] + snap[status.KeyOverflowDropped]
	if dropped > a.dropped && a.onDrop != nil {
		a.onDrop()
	}
	a.dropped = dropped
}

func (a *App) statusLine() string {
	snap := a.reg.Snapshot()
	running, total := 0, 0
	for _, s := range a.b.Lanes() {
		total++
		if s == lane.Running {
			running++
		}
	}
	state := "running"
	if a.b.Paused() {
		state = "PAUSED"
	}
	return fmt.Sprintf(" %s | lanes %d/%d | active %d | queued %d | admitted %d | dropped %d | lost %d | spc pause  n/h push  q quit",
		state, running, total,
		snap[status.KeyActive], snap[status.KeyQueueDepth], snap[status.KeyAdmitted],
		snap[status.KeyDropped], snap[status.KeyOverflowDropped])
}

// Run is the frame loop; it returns when ctx is done or a quit key arrives
func (a *App) Run(ctx context.Context, events <-chan tcell.Event) error {
	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok || !a.HandleEvent(ev) {
				return nil
			}
		case <-ticker.C:
			a.Frame()
		}
	}
}

// Generate pushes sample content every interval, one in every highEvery as high priority
func (a *App) Generate(ctx context.Context, interval time.Duration, highEvery int) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for n := 1; ; n++ {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			priority := engine.Normal
			if highEvery > 0 && n%highEvery == 0 {
				priority = engine.High
			}
			a.push(samples[rand.Intn(len(samples))], priority)
		}
	}
}

// Follow pushes every line appended to the feed file
func (a *App) Follow(ctx context.Context, tail *feed.Tail) error {
	return tail.Run(ctx, func(l feed.Line) {
		priority := engine.Normal
		if l.High {
			priority = engine.High
		}
		a.push(l.Text, priority)
	})
}
