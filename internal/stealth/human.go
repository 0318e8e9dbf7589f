// CLAUDE:SUMMARY Human-like interaction primitives: curved mouse paths, typed input with corrections, stepped scrolling.
package stealth

import (
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
)

// Humanizer drives a page with timing and motion patterns that resemble a
// person rather than a script. Randomness and sleeping are injectable so the
// path math is testable without a browser.
type Humanizer struct {
	// Rand01 returns a uniform value in [0,1).
	Rand01 func() float64
	// Sleep suspends between micro-actions.
	Sleep func(d time.Duration)
}

func (h *Humanizer) rand01() float64 {
	if h.Rand01 == nil {
		return 0.5
	}
	return h.Rand01()
}

func (h *Humanizer) pause(min, max time.Duration) {
	if h.Sleep == nil {
		return
	}
	h.Sleep(min + time.Duration(h.rand01()*float64(max-min)))
}

// TypeHuman enters text rune by rune with uneven inter-key delays, and
// occasionally types a stray character and corrects it with backspace.
func (h *Humanizer) TypeHuman(page *rod.Page, text string) error {
	for _, r := range text {
		// ~4% of keystrokes hit a neighbor first and get corrected.
		if h.rand01() < 0.04 {
			if err := page.InsertText("x"); err != nil {
				return err
			}
			h.pause(80*time.Millisecond, 250*time.Millisecond)
			if err := page.Keyboard.Type(input.Backspace); err != nil {
				return err
			}
			h.pause(60*time.Millisecond, 150*time.Millisecond)
		}
		if err := page.InsertText(string(r)); err != nil {
			return err
		}
		h.pause(40*time.Millisecond, 180*time.Millisecond)
	}
	return nil
}

// MoveMouseCurve moves the pointer along a quadratic Bézier from start to
// end with a randomly displaced control point, in small uneven steps.
func (h *Humanizer) MoveMouseCurve(page *rod.Page, start, end proto.Point, steps int) error {
	if steps < 2 {
		steps = 12
	}
	ctrl := bezierControl(start, end, h.rand01())
	for i := 1; i <= steps; i++ {
		t := float64(i) / float64(steps)
		p := bezierPoint(start, ctrl, end, t)
		if err := page.Mouse.MoveTo(p); err != nil {
			return err
		}
		h.pause(5*time.Millisecond, 25*time.Millisecond)
	}
	return nil
}

// bezierControl displaces the midpoint perpendicular-ish to the travel
// direction so paths bow instead of tracing a straight line.
func bezierControl(start, end proto.Point, r float64) proto.Point {
	return proto.Point{
		X: (start.X+end.X)/2 + (r-0.5)*120,
		Y: (start.Y+end.Y)/2 + (r-0.5)*80,
	}
}

// bezierPoint evaluates the quadratic Bézier at t in [0,1].
func bezierPoint(p0, p1, p2 proto.Point, t float64) proto.Point {
	u := 1 - t
	return proto.Point{
		X: u*u*p0.X + 2*u*t*p1.X + t*t*p2.X,
		Y: u*u*p0.Y + 2*u*t*p1.Y + t*t*p2.Y,
	}
}

// ScrollHuman scrolls down by total pixels in uneven steps with reading
// pauses, occasionally drifting back up a little the way a reader does.
func (h *Humanizer) ScrollHuman(page *rod.Page, total float64) error {
	scrolled := 0.0
	for scrolled < total {
		step := 80 + h.rand01()*240
		if scrolled+step > total {
			step = total - scrolled
		}
		if err := page.Mouse.Scroll(0, step, 1); err != nil {
			return err
		}
		scrolled += step
		h.pause(300*time.Millisecond, 1200*time.Millisecond)

		// Occasional short scroll-back while reading.
		if h.rand01() < 0.1 {
			back := 30 + h.rand01()*60
			if err := page.Mouse.Scroll(0, -back, 1); err != nil {
				return err
			}
			scrolled -= back
			h.pause(400*time.Millisecond, 900*time.Millisecond)
		}
	}
	return nil
}
