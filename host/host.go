// Package host drives an arbor.Scene from an Ebitengine game loop.
//
// Rendering is out of scope for arbor; the window shows the scene hierarchy,
// the selection and the actual tick rate as debug text, which is enough to
// watch scripts and physics move nodes while editing.
package host

import (
	"context"
	"fmt"
	"image/color"
	"strings"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"

	"github.com/phanxgames/arbor"
)

// RunConfig configures Run.
type RunConfig struct {
	Title  string
	Width  int
	Height int
	// TPS is the tick rate. Zero keeps Ebitengine's default of 60.
	TPS int
	// Background fills the window before the overlay is drawn.
	Background color.Color
	// HideOverlay disables the hierarchy/TPS text.
	HideOverlay bool
	// OnTick, if set, runs after every Scene.Update.
	OnTick func(scene *arbor.Scene)
	// ShutdownGrace is how long in-flight scripts may finish after the
	// window closes. Defaults to 100ms.
	ShutdownGrace time.Duration
}

// Run opens a window and ticks scene until the window is closed. On exit,
// in-flight scripts get ShutdownGrace to finish, then every sandbox is torn
// down and the remaining runs are canceled.
func Run(scene *arbor.Scene, cfg RunConfig) error {
	if cfg.Width <= 0 {
		cfg.Width = 640
	}
	if cfg.Height <= 0 {
		cfg.Height = 480
	}
	if cfg.Title == "" {
		cfg.Title = scene.Name
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 100 * time.Millisecond
	}
	if cfg.TPS > 0 {
		ebiten.SetTPS(cfg.TPS)
	}
	ebiten.SetWindowTitle(cfg.Title)
	ebiten.SetWindowSize(cfg.Width, cfg.Height)

	g := &game{scene: scene, cfg: cfg}
	err := ebiten.RunGame(g)
	if serr := Settle(scene, cfg.ShutdownGrace); serr != nil {
		scene.Logger().Warn("scripts still running at shutdown", "err", serr)
	}
	if cerr := scene.Close(); err == nil {
		err = cerr
	}
	return err
}

// Settle gives in-flight scripts up to timeout to finish before shutdown.
func Settle(scene *arbor.Scene, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return scene.Settle(ctx)
}

type game struct {
	scene *arbor.Scene
	cfg   RunConfig
}

func (g *game) Update() error {
	dt := 1.0 / float64(ebiten.TPS())
	g.scene.Update(dt)
	if g.cfg.OnTick != nil {
		g.cfg.OnTick(g.scene)
	}
	return nil
}

func (g *game) Draw(screen *ebiten.Image) {
	if g.cfg.Background != nil {
		screen.Fill(g.cfg.Background)
	}
	if g.cfg.HideOverlay {
		return
	}
	ebitenutil.DebugPrint(screen, overlayText(g.scene, ebiten.ActualTPS()))
}

func (g *game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return outsideWidth, outsideHeight
}

// overlayText renders the tick counter, the selection and the hierarchy with
// each node's position.
func overlayText(scene *arbor.Scene, tps float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  tick %d  TPS %.1f\n", scene.Name, scene.Tick(), tps)
	if sel := scene.Selected(); sel != nil {
		fmt.Fprintf(&b, "selected: %s\n", sel.Name)
	}
	b.WriteString("\n")
	writeNode(&b, scene.Root(), 0)
	return b.String()
}

func writeNode(b *strings.Builder, n *arbor.Node, depth int) {
	p := n.Transform.Position
	fmt.Fprintf(b, "%s%s [%s] (%.2f, %.2f, %.2f)\n",
		strings.Repeat("  ", depth), n.Name, n.Type, p[0], p[1], p[2])
	for _, c := range n.Children() {
		writeNode(b, c, depth+1)
	}
}
