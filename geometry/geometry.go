package geometry

import (
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/mattn/go-runewidth"
)

// Rect is a bounding box in surface units
type Rect struct {
	Width, Height float64
	Left, Right   float64
}

// Empty reports a box with no area
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// SurfaceProvider measures the surface fragments traverse
type SurfaceProvider interface {
	MeasureSurface() Rect
}

// Measurer measures a fragment's rendered content before placement
type Measurer interface {
	Measure(content string) Rect
}

// SurfaceFunc adapts a function to SurfaceProvider
type SurfaceFunc func() Rect

func (f SurfaceFunc) MeasureSurface() Rect { return f() }

// Fixed is a surface of constant size, anchored at the origin
func Fixed(width, height float64) SurfaceFunc {
	r := Rect{Width: width, Height: height, Right: width}
	return func() Rect { return r }
}

const (
	widthCacheTTL      = 5 * time.Minute
	widthCacheCapacity = 4096
)

// CellMeasurer measures text in terminal cells, one row high
// Widths are cached per content string
type CellMeasurer struct {
	cache *ttlcache.Cache[string, int]
}

// NewCellMeasurer creates a measurer with a bounded width cache
func NewCellMeasurer() *CellMeasurer {
	return &CellMeasurer{
		cache: ttlcache.New(
			ttlcache.WithTTL[string, int](widthCacheTTL),
			ttlcache.WithCapacity[string, int](widthCacheCapacity),
		),
	}
}

// Measure returns the display width of content in cells
func (m *CellMeasurer) Measure(content string) Rect {
	w := m.width(content)
	return Rect{Width: float64(w), Height: 1, Right: float64(w)}
}

func (m *CellMeasurer) width(content string) int {
	if item := m.cache.Get(content); item != nil {
		return item.Value()
	}
	w := runewidth.StringWidth(content)
	m.cache.Set(content, w, ttlcache.DefaultTTL)
	return w
}

// Cached returns the number of cached widths
func (m *CellMeasurer) Cached() int {
	return m.cache.Len()
}
