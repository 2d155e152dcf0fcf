package arbor

import (
	"github.com/tanema/gween"
	"github.com/tanema/gween/ease"
)

// TweenGroup animates the three components of one transform vector on a
// Node. Create one via TweenPosition, TweenRotation or TweenScale and call
// Update(dt) each tick, or hand it to an AnimatorComponent. If the target
// node is disposed, the group stops immediately.
type TweenGroup struct {
	tweens [3]*gween.Tween
	field  *Vec3
	target *Node
	Done   bool
}

func newTweenGroup(node *Node, field *Vec3, to Vec3, duration float32, fn ease.TweenFunc) *TweenGroup {
	if fn == nil {
		fn = ease.Linear
	}
	g := &TweenGroup{field: field, target: node}
	for i := range g.tweens {
		g.tweens[i] = gween.New(float32(field[i]), float32(to[i]), duration, fn)
	}
	return g
}

// Update advances all tweens by dt seconds and writes the values to the
// target vector. If the target node has been disposed, Done is set to true
// and no writes occur.
func (g *TweenGroup) Update(dt float32) {
	if g.Done {
		return
	}
	if g.target != nil && g.target.IsDisposed() {
		g.Done = true
		return
	}

	allDone := true
	for i, tw := range g.tweens {
		val, finished := tw.Update(dt)
		g.field[i] = float64(val)
		if !finished {
			allDone = false
		}
	}
	g.Done = allDone
}

// TweenPosition creates a TweenGroup that animates node's position to the
// target over the specified duration using the easing function.
func TweenPosition(node *Node, to Vec3, duration float32, fn ease.TweenFunc) *TweenGroup {
	return newTweenGroup(node, &node.Transform.Position, to, duration, fn)
}

// TweenRotation creates a TweenGroup that animates node's rotation to the
// target over the specified duration using the easing function.
func TweenRotation(node *Node, to Vec3, duration float32, fn ease.TweenFunc) *TweenGroup {
	return newTweenGroup(node, &node.Transform.Rotation, to, duration, fn)
}

// TweenScale creates a TweenGroup that animates node's scale to the target
// over the specified duration using the easing function.
func TweenScale(node *Node, to Vec3, duration float32, fn ease.TweenFunc) *TweenGroup {
	return newTweenGroup(node, &node.Transform.Scale, to, duration, fn)
}
