package main

import (
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/go-logr/logr/testr"
	testclock "k8s.io/utils/clock/testing"
	"k8s.io/utils/ptr"

	"github.com/lixenwraith/barrager/config"
	"github.com/lixenwraith/barrager/engine"
	"github.com/lixenwraith/barrager/geometry"
	"github.com/lixenwraith/barrager/lane"
	"github.com/lixenwraith/barrager/render"
	"github.com/lixenwraith/barrager/status"
)

func newTestApp(t *testing.T, opts config.Options) (*App, *testclock.FakeClock) {
	t.Helper()
	screen := tcell.NewSimulationScreen("UTF-8")
	if err := screen.Init(); err != nil {
		t.Fatalf("screen init: %v", err)
	}
	t.Cleanup(screen.Fini)
	screen.SetSize(40, 4) // 3 lanes above the status bar

	clk := testclock.NewFakeClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	term := render.NewTerminal(screen, clk)
	reg := status.NewRegistry()
	b, err := engine.New(term, geometry.NewCellMeasurer(), term, opts,
		engine.WithClock(clk),
		engine.WithStatus(reg),
		engine.WithPicker(lane.First),
		engine.WithLogger(testr.New(t)),
	)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	t.Cleanup(b.Close)
	return NewApp(screen, term, b, reg, testr.New(t)), clk
}

func TestHandleEventQuitKeys(t *testing.T) {
	app, _ := newTestApp(t, config.Options{TrackHeight: 1, Speed: 10})

	quit := []*tcell.EventKey{
		tcell.NewEventKey(tcell.KeyEscape, 0, tcell.ModNone),
		tcell.NewEventKey(tcell.KeyCtrlC, 0, tcell.ModNone),
		tcell.NewEventKey(tcell.KeyRune, 'q', tcell.ModNone),
	}
	for _, ev := range quit {
		if app.HandleEvent(ev) {
			t.Errorf("key %v did not quit", ev.Name())
		}
	}
	if !app.HandleEvent(tcell.NewEventKey(tcell.KeyRune, 'x', tcell.ModNone)) {
		t.Error("unbound key quit")
	}
}

func TestSpaceTogglesGlobalPause(t *testing.T) {
	app, _ := newTestApp(t, config.Options{TrackHeight: 1, Speed: 10})
	space := tcell.NewEventKey(tcell.KeyRune, ' ', tcell.ModNone)

	app.HandleEvent(space)
	if !app.b.Paused() {
		t.Fatal("space did not pause")
	}
	app.HandleEvent(space)
	if app.b.Paused() {
		t.Fatal("space did not resume")
	}
}

func TestPushKeys(t *testing.T) {
	app, _ := newTestApp(t, config.Options{TrackHeight: 1, Speed: 10})

	for i := 0; i < 3; i++ {
		app.HandleEvent(tcell.NewEventKey(tcell.KeyRune, 'n', tcell.ModNone))
	}
	app.HandleEvent(tcell.NewEventKey(tcell.KeyRune, 'n', tcell.ModNone))
	app.HandleEvent(tcell.NewEventKey(tcell.KeyRune, 'h', tcell.ModNone))

	if n := len(app.b.ListActive()); n != 3 {
		t.Errorf("active = %d, want one per lane", n)
	}
	if q := app.b.QueueLen(); q != 1 {
		t.Errorf("queued = %d, want 1", q)
	}
	if d := app.reg.Snapshot()[status.KeyDropped]; d != 1 {
		t.Errorf("dropped = %d, want 1", d)
	}
}

func TestClickTogglesFragmentPause(t *testing.T) {
	app, clk := newTestApp(t, config.Options{TrackHeight: 1, Speed: 10, PauseOnClick: ptr.To(true)})

	id, _ := app.b.Push("hello", nil, engine.Normal)
	clk.Step(3 * time.Second) // left edge at 10 on row 0

	click := tcell.NewEventMouse(11, 0, tcell.Button1, tcell.ModNone)
	app.HandleEvent(click)
	if s := app.b.ListActive()[0]; s.ID != id || !s.Paused {
		t.Fatalf("fragment not paused by click: %+v", s)
	}

	app.HandleEvent(click)
	if app.b.ListActive()[0].Paused {
		t.Fatal("second click did not resume")
	}
}

func TestHoverPausesUntilPointerLeaves(t *testing.T) {
	app, clk := newTestApp(t, config.Options{TrackHeight: 1, Speed: 10, PauseOnHover: ptr.To(true)})

	app.b.Push("hello", nil, engine.Normal)
	clk.Step(3 * time.Second)

	app.HandleEvent(tcell.NewEventMouse(12, 0, tcell.ButtonNone, tcell.ModNone))
	if !app.b.ListActive()[0].Paused {
		t.Fatal("hover did not pause")
	}
	app.HandleEvent(tcell.NewEventMouse(30, 2, tcell.ButtonNone, tcell.ModNone))
	if app.b.ListActive()[0].Paused {
		t.Fatal("leaving did not resume")
	}
}

func TestHoverIgnoredWhenDisabled(t *testing.T) {
	app, clk := newTestApp(t, config.Options{TrackHeight: 1, Speed: 10})

	app.b.Push("hello", nil, engine.Normal)
	clk.Step(3 * time.Second)
	app.HandleEvent(tcell.NewEventMouse(12, 0, tcell.ButtonNone, tcell.ModNone))
	if app.b.ListActive()[0].Paused {
		t.Error("hover paused with PauseOnHover off")
	}
}

func TestFrameCompletesFragments(t *testing.T) {
	app, clk := newTestApp(t, config.Options{TrackHeight: 1, Speed: 10})

	// 40 + 5 cells at 10/s
	app.b.Push("hello", nil, engine.Normal)
	app.b.Push("queued", nil, engine.High)
	app.b.Push("queued", nil, engine.High)
	app.b.Push("queued", nil, engine.High)
	if app.b.QueueLen() != 1 {
		t.Fatalf("QueueLen = %d, want 1", app.b.QueueLen())
	}

	clk.Step(time.Second)
	app.Frame()
	if app.b.QueueLen() != 0 {
		t.Error("cleared lane did not drain the queue")
	}

	clk.Step(time.Minute)
	app.Frame()
	app.Frame()
	if n := len(app.b.ListActive()); n != 0 {
		t.Errorf("active = %d after every motion completed", n)
	}
	if app.term.Len() != 0 {
		t.Errorf("terminal still holds %d sprites", app.term.Len())
	}
}

func TestFramePlaysDropCueOnNewDrops(t *testing.T) {
	app, _ := newTestApp(t, config.Options{TrackHeight: 1, Speed: 10})
	drops := 0
	app.onDrop = func() { drops++ }

	for i := 0; i < 3; i++ {
		app.push("fill", engine.Normal)
	}
	app.Frame()
	if drops != 0 {
		t.Fatalf("drop cue played %d times without a drop", drops)
	}

	app.push("dropped", engine.Normal)
	app.push("dropped", engine.Normal)
	app.Frame()
	if drops != 1 {
		t.Errorf("drops = %d after one frame with drops, want 1", drops)
	}

	app.Frame()
	if drops != 1 {
		t.Errorf("drop cue replayed without new drops: %d", drops)
	}
}
