// Package render draws damage traces as top-down PNG plots.
package render

import (
	"fmt"
	"image/color"
	"io"
	"math"

	"github.com/fogleman/gg"

	"demoreel/internal/model"
)

type Point struct {
	Tick uint32
	X, Y float64
}

// TracePlot is a trace reduced to the victim and attacker paths.
type TracePlot struct {
	Title    string
	Victim   []Point
	Attacker []Point
	Bounds   *model.WorldBounds
}

type Options struct {
	Width  int
	Height int
	// Margin around the plotted area, in pixels.
	Margin float64
}

var (
	victimColor   = color.RGBA{220, 50, 47, 255}
	attackerColor = color.RGBA{38, 139, 210, 255}
	gridColor     = color.RGBA{220, 220, 225, 255}
)

// PlotFromTrace splits the trace states by side, in tick order.
func PlotFromTrace(t model.DamageTrace, bounds *model.WorldBounds) TracePlot {
	p := TracePlot{
		Title:  fmt.Sprintf("trace %d: %d -> %d @ %d", t.Seq, t.Event.AttackerUserID, t.Event.VictimUserID, t.Tick),
		Bounds: bounds,
	}
	// States are most recent first; walk backwards for tick order.
	for i := len(t.States) - 1; i >= 0; i-- {
		s := t.States[i]
		pt := Point{Tick: s.Tick, X: float64(s.Inner.Position.X), Y: float64(s.Inner.Position.Y)}
		if s.Inner.HasUserID(t.Event.VictimUserID) {
			p.Victim = append(p.Victim, pt)
		} else {
			p.Attacker = append(p.Attacker, pt)
		}
	}
	return p
}

// TracePNG renders p as a PNG into w.
func TracePNG(w io.Writer, p TracePlot, opts Options) error {
	if opts.Width <= 0 {
		opts.Width = 800
	}
	if opts.Height <= 0 {
		opts.Height = 800
	}
	if opts.Margin <= 0 {
		opts.Margin = 24
	}

	minX, minY, maxX, maxY := extent(p)
	sx := (float64(opts.Width) - 2*opts.Margin) / math.Max(maxX-minX, 1)
	sy := (float64(opts.Height) - 2*opts.Margin) / math.Max(maxY-minY, 1)
	scale := math.Min(sx, sy)
	// World Y grows up, image Y grows down.
	project := func(pt Point) (float64, float64) {
		return opts.Margin + (pt.X-minX)*scale, float64(opts.Height) - opts.Margin - (pt.Y-minY)*scale
	}

	dc := gg.NewContext(opts.Width, opts.Height)
	dc.SetColor(color.White)
	dc.Clear()

	dc.SetColor(gridColor)
	dc.SetLineWidth(1)
	x0, y0 := project(Point{X: minX, Y: minY})
	x1, y1 := project(Point{X: maxX, Y: maxY})
	dc.DrawRectangle(x0, y1, x1-x0, y0-y1)
	dc.Stroke()

	drawPath(dc, p.Attacker, attackerColor, project)
	drawPath(dc, p.Victim, victimColor, project)

	if p.Title != "" {
		dc.SetColor(color.Black)
		dc.DrawString(p.Title, opts.Margin, opts.Margin-8)
	}
	return dc.EncodePNG(w)
}

func drawPath(dc *gg.Context, pts []Point, c color.Color, project func(Point) (float64, float64)) {
	if len(pts) == 0 {
		return
	}
	dc.SetColor(c)
	dc.SetLineWidth(2)
	for i, pt := range pts {
		x, y := project(pt)
		if i == 0 {
			dc.MoveTo(x, y)
		} else {
			dc.LineTo(x, y)
		}
	}
	dc.Stroke()
	for _, pt := range pts {
		x, y := project(pt)
		dc.DrawCircle(x, y, 3)
		dc.Fill()
	}
	// Last sample is the moment of damage.
	x, y := project(pts[len(pts)-1])
	dc.DrawCircle(x, y, 6)
	dc.Stroke()
}

// extent is the world bounds when known, otherwise the data extent.
func extent(p TracePlot) (minX, minY, maxX, maxY float64) {
	if b := p.Bounds; b != nil && b.Max.X > b.Min.X && b.Max.Y > b.Min.Y {
		return float64(b.Min.X), float64(b.Min.Y), float64(b.Max.X), float64(b.Max.Y)
	}
	minX, minY = math.Inf(1), math.Inf(1)
	maxX, maxY = math.Inf(-1), math.Inf(-1)
	for _, side := range [][]Point{p.Victim, p.Attacker} {
		for _, pt := range side {
			minX, maxX = math.Min(minX, pt.X), math.Max(maxX, pt.X)
			minY, maxY = math.Min(minY, pt.Y), math.Max(maxY, pt.Y)
		}
	}
	if math.IsInf(minX, 1) {
		return 0, 0, 1, 1
	}
	return minX, minY, maxX, maxY
}
