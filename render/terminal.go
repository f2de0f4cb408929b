package render

import (
	"math"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"
	"k8s.io/utils/clock"

	"github.com/lixenwraith/barrager/geometry"
	"github.com/lixenwraith/barrager/motion"
)

// statusRows is the number of rows reserved at the bottom for the status bar
const statusRows = 1

var (
	styleBackground = tcell.StyleDefault.Background(tcell.ColorReset)
	styleStatus     = tcell.StyleDefault.Background(tcell.NewRGBColor(30, 30, 46)).Foreground(tcell.NewRGBColor(205, 214, 244))
	styleFrozen     = tcell.StyleDefault.Foreground(tcell.NewRGBColor(249, 226, 175)).Bold(true)

	lanePalette = []tcell.Color{
		tcell.NewRGBColor(137, 180, 250),
		tcell.NewRGBColor(166, 227, 161),
		tcell.NewRGBColor(245, 194, 231),
		tcell.NewRGBColor(148, 226, 213),
		tcell.NewRGBColor(250, 179, 135),
		tcell.NewRGBColor(203, 166, 247),
	}
)

type sprite struct {
	content string
	lane    int
	row     int
	motion  motion.State
	done    bool
}

// Terminal renders fragments onto a tcell screen, one surface unit per cell
// It also acts as the surface provider: the screen minus the status bar row
type Terminal struct {
	mu      sync.Mutex
	screen  tcell.Screen
	clock   clock.PassiveClock
	sprites map[string]*sprite
	order   []string
	status  string
}

// NewTerminal creates a renderer drawing on screen with clk as its time source
func NewTerminal(screen tcell.Screen, clk clock.PassiveClock) *Terminal {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Terminal{
		screen:  screen,
		clock:   clk,
		sprites: make(map[string]*sprite),
	}
}

// MeasureSurface reports the drawable region above the status bar
func (t *Terminal) MeasureSurface() geometry.Rect {
	w, h := t.screen.Size()
	h -= statusRows
	if h < 0 {
		h = 0
	}
	return geometry.Rect{Width: float64(w), Height: float64(h), Right: float64(w)}
}

func (t *Terminal) Place(p Placement) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sprites[p.ID]
	if !ok {
		s = &sprite{}
		t.sprites[p.ID] = s
		t.order = append(t.order, p.ID)
	}
	s.content = p.Content
	s.lane = p.Lane
	s.row = int(p.Top)
	s.motion = t.leg(p)
	s.done = false
}

func (t *Terminal) Freeze(id string, offset float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sprites[id]
	if !ok {
		return
	}
	s.motion.Start = offset
	s.motion.Velocity = 0
	s.motion.StartedAt = t.clock.Now()
}

func (t *Terminal) Animate(p Placement) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sprites[p.ID]
	if !ok {
		return
	}
	s.motion = t.leg(p)
}

func (t *Terminal) Remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.sprites[id]; !ok {
		return
	}
	delete(t.sprites, id)
	for i, v := range t.order {
		if v == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

// leg converts a placement into motion starting now
func (t *Terminal) leg(p Placement) motion.State {
	remaining := p.Offset - motion.EndOffset(p.Width)
	return motion.State{
		Start:     p.Offset,
		Velocity:  motion.Velocity(remaining, p.Duration),
		StartedAt: t.clock.Now(),
		Width:     p.Width,
		Distance:  remaining,
	}
}

// SetStatus replaces the status bar text
func (t *Terminal) SetStatus(line string) {
	t.mu.Lock()
	t.status = line
	t.mu.Unlock()
}

// Draw renders one frame and returns the fragments whose motion completed since the last frame
// Each completed id is reported once
func (t *Terminal) Draw() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	w, h := t.screen.Size()
	surfaceRows := h - statusRows

	t.screen.Fill(' ', styleBackground)

	var completed []string
	for _, id := range t.order {
		s := t.sprites[id]
		off := s.motion.OffsetAt(now)
		if !s.done && off <= motion.EndOffset(s.motion.Width) && s.motion.Velocity > 0 {
			s.done = true
			completed = append(completed, id)
			continue
		}
		if s.row < 0 || s.row >= surfaceRows {
			continue
		}

		style := styleBackground.Foreground(lanePalette[s.lane%len(lanePalette)])
		if s.motion.Velocity == 0 {
			style = styleFrozen
		}
		t.drawText(int(math.Round(off)), s.row, w, s.content, style)
	}

	if surfaceRows >= 0 && h > 0 {
		for x := 0; x < w; x++ {
			t.screen.SetContent(x, h-1, ' ', nil, styleStatus)
		}
		t.drawText(0, h-1, w, t.status, styleStatus)
	}

	t.screen.Show()
	return completed
}

// HitTest returns the fragment drawn at cell (x, y)
func (t *Terminal) HitTest(x, y int) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	for i := len(t.order) - 1; i >= 0; i-- {
		s := t.sprites[t.order[i]]
		if s.row != y {
			continue
		}
		left := int(math.Round(s.motion.OffsetAt(now)))
		if x >= left && x < left+int(s.motion.Width) {
			return t.order[i], true
		}
	}
	return "", false
}

// Len returns the number of sprites on screen
func (t *Terminal) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sprites)
}

func (t *Terminal) drawText(x, y, width int, text string, style tcell.Style) {
	for _, r := range text {
		rw := runewidth.RuneWidth(r)
		if x >= 0 && x+rw <= width {
			t.screen.SetContent(x, y, r, nil, style)
		}
		x += rw
		if x >= width {
			return
		}
	}
}
