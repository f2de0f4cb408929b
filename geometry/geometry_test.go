package geometry

import "testing"

func TestCellMeasurer(t *testing.T) {
	m := NewCellMeasurer()

	tests := []struct {
		content string
		want    float64
	}{
		{"hello", 5},
		{"", 0},
		{"弹幕", 4},
		{"rip....", 7},
	}
	for _, tt := range tests {
		r := m.Measure(tt.content)
		if r.Width != tt.want {
			t.Errorf("Measure(%q).Width = %v, want %v", tt.content, r.Width, tt.want)
		}
		if r.Height != 1 || r.Right != r.Width {
			t.Errorf("Measure(%q) = %+v, want one row anchored at origin", tt.content, r)
		}
	}

	if m.Cached() != len(tests) {
		t.Errorf("Cached = %d, want %d", m.Cached(), len(tests))
	}

	// Cached path returns the same width
	if r := m.Measure("hello"); r.Width != 5 {
		t.Errorf("cached width = %v", r.Width)
	}
}

func TestFixed(t *testing.T) {
	s := Fixed(80, 24).MeasureSurface()
	if s.Width != 80 || s.Height != 24 || s.Left != 0 || s.Right != 80 {
		t.Errorf("Fixed = %+v", s)
	}
	if s.Empty() {
		t.Error("fixed surface should not be empty")
	}
	if !(Rect{Width: 10}).Empty() {
		t.Error("zero-height rect should be empty")
	}
}
