package arbor

import (
	"sort"

	"github.com/tanema/gween/ease"
)

// Interpolation selects how an AnimationCurve blends between keypoints.
type Interpolation uint8

const (
	InterpLinear Interpolation = iota // affine blend
	InterpStep                        // hold the left keypoint's value
	InterpBezier                      // cubic Bezier through tangent handles
	InterpEase                        // gween easing function between keypoints
)

// Handle is a Bezier control point given as an offset from its keypoint.
type Handle struct {
	DT, DV float64
}

// Keypoint is a (time, value) sample. Left and Right are optional Bezier
// handles; when nil they default to one third of the span toward the
// neighboring keypoint, flat in value.
type Keypoint struct {
	Time  float64
	Value float64
	Left  *Handle
	Right *Handle
}

// AnimationCurve is a time-ordered list of keypoints. Evaluation is pure.
type AnimationCurve struct {
	Type      Interpolation
	Keypoints []Keypoint
	// Easing is used by InterpEase. Defaults to ease.InOutQuad.
	Easing ease.TweenFunc
}

// NewAnimationCurve creates a curve and sorts the given keypoints by time.
func NewAnimationCurve(typ Interpolation, points ...Keypoint) *AnimationCurve {
	c := &AnimationCurve{Type: typ, Keypoints: append([]Keypoint(nil), points...)}
	sort.SliceStable(c.Keypoints, func(i, j int) bool {
		return c.Keypoints[i].Time < c.Keypoints[j].Time
	})
	return c
}

// AddKeypoint inserts p keeping the keypoints ordered by time. A keypoint
// with an equal time is inserted after the existing ones.
func (c *AnimationCurve) AddKeypoint(p Keypoint) {
	i := sort.Search(len(c.Keypoints), func(i int) bool { return c.Keypoints[i].Time > p.Time })
	c.Keypoints = append(c.Keypoints, Keypoint{})
	copy(c.Keypoints[i+1:], c.Keypoints[i:])
	c.Keypoints[i] = p
}

// Duration returns the time of the last keypoint, or 0 when empty.
func (c *AnimationCurve) Duration() float64 {
	if len(c.Keypoints) == 0 {
		return 0
	}
	return c.Keypoints[len(c.Keypoints)-1].Time
}

// Evaluate samples the curve at t. An empty curve yields 0; times outside
// the keypoint range clamp to the first or last value.
func (c *AnimationCurve) Evaluate(t float64) float64 {
	pts := c.Keypoints
	switch len(pts) {
	case 0:
		return 0
	case 1:
		return pts[0].Value
	}
	if t <= pts[0].Time {
		return pts[0].Value
	}
	last := pts[len(pts)-1]
	if t >= last.Time {
		return last.Value
	}

	// First keypoint strictly after t; its predecessor is p0.
	i := sort.Search(len(pts), func(i int) bool { return pts[i].Time > t })
	p0, p1 := pts[i-1], pts[i]
	span := p1.Time - p0.Time
	if span <= 0 {
		return p1.Value
	}
	u := (t - p0.Time) / span

	switch c.Type {
	case InterpStep:
		return p0.Value
	case InterpBezier:
		return evalBezier(p0, p1, t)
	case InterpEase:
		fn := c.Easing
		if fn == nil {
			fn = ease.InOutQuad
		}
		return p0.Value + float64(fn(float32(u), 0, 1, 1))*(p1.Value-p0.Value)
	default:
		return p0.Value + (p1.Value-p0.Value)*u
	}
}

// evalBezier solves the curve's time polynomial for t by bisection, then
// evaluates the value polynomial at the same parameter.
func evalBezier(p0, p1 Keypoint, t float64) float64 {
	span := p1.Time - p0.Time
	r := Handle{DT: span / 3}
	if p0.Right != nil {
		r = *p0.Right
	}
	l := Handle{DT: -span / 3}
	if p1.Left != nil {
		l = *p1.Left
	}

	x0, x1, x2, x3 := p0.Time, p0.Time+r.DT, p1.Time+l.DT, p1.Time
	y0, y1, y2, y3 := p0.Value, p0.Value+r.DV, p1.Value+l.DV, p1.Value

	lo, hi := 0.0, 1.0
	s := (t - p0.Time) / span
	for range 48 {
		x := cubic(x0, x1, x2, x3, s)
		if x < t {
			lo = s
		} else {
			hi = s
		}
		s = (lo + hi) / 2
	}
	return cubic(y0, y1, y2, y3, s)
}

func cubic(a, b, c, d, s float64) float64 {
	m := 1 - s
	return m*m*m*a + 3*m*m*s*b + 3*m*s*s*c + s*s*s*d
}

// Track binds a curve to a property path such as "position.x" or "opacity".
type Track struct {
	Path  string
	Curve *AnimationCurve
}

// AnimationLayer groups tracks under a blend weight. Layers affecting the
// same node are composed additively.
type AnimationLayer struct {
	Name    string
	Weight  float64
	Visible bool
	Tracks  []Track
}

// NewAnimationLayer creates a visible layer with weight 1.
func NewAnimationLayer(name string) *AnimationLayer {
	return &AnimationLayer{Name: name, Weight: 1, Visible: true}
}

// AddTrack appends a track to the layer.
func (l *AnimationLayer) AddTrack(path string, curve *AnimationCurve) {
	l.Tracks = append(l.Tracks, Track{Path: path, Curve: curve})
}

// Duration returns the longest track duration.
func (l *AnimationLayer) Duration() float64 {
	var d float64
	for _, tr := range l.Tracks {
		d = max(d, tr.Curve.Duration())
	}
	return d
}

// Evaluate returns each track's value at t scaled by the layer weight, keyed
// by path. It returns nil when the layer is invisible or has zero weight.
// Tracks sharing a path are summed.
func (l *AnimationLayer) Evaluate(t float64) map[string]float64 {
	if !l.Visible || l.Weight == 0 {
		return nil
	}
	out := make(map[string]float64, len(l.Tracks))
	for _, tr := range l.Tracks {
		if tr.Curve == nil {
			continue
		}
		out[tr.Path] += tr.Curve.Evaluate(t) * l.Weight
	}
	return out
}
