package arbor

import (
	"sort"
	"strings"

	"github.com/tanema/gween/ease"
)

// PositionKeyframe is one sample of a position clip.
type PositionKeyframe struct {
	Time     float64
	Position Vec3
}

// AnimationClip is a named, time-ordered list of position keyframes.
type AnimationClip struct {
	Name      string
	Keyframes []PositionKeyframe
}

// Duration returns the time of the last keyframe.
func (c *AnimationClip) Duration() float64 {
	if len(c.Keyframes) == 0 {
		return 0
	}
	return c.Keyframes[len(c.Keyframes)-1].Time
}

// sample linearly interpolates the position at t, clamped to the clip range.
func (c *AnimationClip) sample(t float64) Vec3 {
	kf := c.Keyframes
	if t <= kf[0].Time {
		return kf[0].Position
	}
	i := sort.Search(len(kf), func(i int) bool { return kf[i].Time > t })
	if i == len(kf) {
		return kf[len(kf)-1].Position
	}
	a, b := kf[i-1], kf[i]
	span := b.Time - a.Time
	if span <= 0 {
		return b.Position
	}
	u := (t - a.Time) / span
	return a.Position.Add(b.Position.Sub(a.Position).Mul(u))
}

// AnimatorComponent plays position clips, composes animation layers and
// drives tweens on its owner.
//
// Per tick the clip is applied first, then layers (which overwrite the paths
// they name with the sum of all visible layers), then tweens.
type AnimatorComponent struct {
	BaseComponent

	clips   map[string]*AnimationClip
	current *AnimationClip
	cursor  float64

	layers    []*AnimationLayer
	layerTime float64
	// LoopLayers wraps the layer clock at the longest layer duration.
	LoopLayers bool

	tweens []*TweenGroup
}

// NewAnimatorComponent creates an animator with no clips.
func NewAnimatorComponent() *AnimatorComponent {
	return &AnimatorComponent{clips: make(map[string]*AnimationClip)}
}

func (a *AnimatorComponent) Kind() ComponentKind { return KindAnimator }

// AddClip registers keyframes under name. Keyframes are sorted by time.
// A clip with no keyframes is ignored.
func (a *AnimatorComponent) AddClip(name string, keyframes ...PositionKeyframe) {
	if len(keyframes) == 0 {
		return
	}
	kf := append([]PositionKeyframe(nil), keyframes...)
	sort.SliceStable(kf, func(i, j int) bool { return kf[i].Time < kf[j].Time })
	a.clips[name] = &AnimationClip{Name: name, Keyframes: kf}
}

// Play starts the named clip from time 0. Returns false for unknown clips.
func (a *AnimatorComponent) Play(name string) bool {
	c, ok := a.clips[name]
	if !ok {
		return false
	}
	a.current = c
	a.cursor = 0
	return true
}

// Stop clears the current clip without touching the transform.
func (a *AnimatorComponent) Stop() {
	a.current = nil
	a.cursor = 0
}

// Playing returns the name of the current clip, or "".
func (a *AnimatorComponent) Playing() string {
	if a.current == nil {
		return ""
	}
	return a.current.Name
}

// Time returns the current clip's time cursor.
func (a *AnimatorComponent) Time() float64 { return a.cursor }

// AddLayer appends a layer to the additive composition.
func (a *AnimatorComponent) AddLayer(l *AnimationLayer) {
	a.layers = append(a.layers, l)
}

// Layers returns the layers in composition order.
func (a *AnimatorComponent) Layers() []*AnimationLayer { return a.layers }

// TweenPosition starts a position tween on the owner. Returns nil when detached.
func (a *AnimatorComponent) TweenPosition(to Vec3, duration float32, fn ease.TweenFunc) *TweenGroup {
	if a.owner == nil {
		return nil
	}
	return a.addTween(TweenPosition(a.owner, to, duration, fn))
}

// TweenRotation starts a rotation tween on the owner. Returns nil when detached.
func (a *AnimatorComponent) TweenRotation(to Vec3, duration float32, fn ease.TweenFunc) *TweenGroup {
	if a.owner == nil {
		return nil
	}
	return a.addTween(TweenRotation(a.owner, to, duration, fn))
}

// TweenScale starts a scale tween on the owner. Returns nil when detached.
func (a *AnimatorComponent) TweenScale(to Vec3, duration float32, fn ease.TweenFunc) *TweenGroup {
	if a.owner == nil {
		return nil
	}
	return a.addTween(TweenScale(a.owner, to, duration, fn))
}

func (a *AnimatorComponent) addTween(g *TweenGroup) *TweenGroup {
	a.tweens = append(a.tweens, g)
	return g
}

// ActiveTweens returns the number of tweens still running.
func (a *AnimatorComponent) ActiveTweens() int { return len(a.tweens) }

// OnDetach drops tweens bound to the previous owner.
func (a *AnimatorComponent) OnDetach() {
	a.tweens = nil
}

// Update advances the clip cursor, layer clock and tweens by dt.
func (a *AnimatorComponent) Update(dt float64) {
	if a.owner == nil {
		return
	}
	a.updateClip(dt)
	a.updateLayers(dt)
	a.updateTweens(dt)
}

func (a *AnimatorComponent) updateClip(dt float64) {
	if a.current == nil {
		return
	}
	a.cursor += dt
	if a.cursor > a.current.Duration() {
		a.owner.Transform.Position = a.current.Keyframes[len(a.current.Keyframes)-1].Position
		a.Stop()
		return
	}
	a.owner.Transform.Position = a.current.sample(a.cursor)
}

func (a *AnimatorComponent) updateLayers(dt float64) {
	if len(a.layers) == 0 {
		return
	}
	a.layerTime += dt
	if a.LoopLayers {
		var d float64
		for _, l := range a.layers {
			d = max(d, l.Duration())
		}
		if d > 0 {
			for a.layerTime > d {
				a.layerTime -= d
			}
		}
	}

	sum := make(map[string]float64)
	for _, l := range a.layers {
		for path, v := range l.Evaluate(a.layerTime) {
			sum[path] += v
		}
	}
	for path, v := range sum {
		applyAnimatedValue(a.owner, path, v)
	}
}

func (a *AnimatorComponent) updateTweens(dt float64) {
	live := a.tweens[:0]
	for _, g := range a.tweens {
		g.Update(float32(dt))
		if !g.Done {
			live = append(live, g)
		}
	}
	clear(a.tweens[len(live):])
	a.tweens = live
}

// applyAnimatedValue writes v to a transform component ("position.x",
// "rotation.z", "scale.y") or, for any other path, to the property bag.
func applyAnimatedValue(n *Node, path string, v float64) {
	field, axis, ok := strings.Cut(path, ".")
	if ok && len(axis) == 1 && axis[0] >= 'x' && axis[0] <= 'z' {
		i := int(axis[0] - 'x')
		switch field {
		case "position":
			n.Transform.Position[i] = v
			return
		case "rotation":
			n.Transform.Rotation[i] = v
			return
		case "scale":
			n.Transform.Scale[i] = v
			return
		}
	}
	n.SetProperty(path, v)
}
