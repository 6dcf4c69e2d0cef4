package render

import (
	"fmt"
	"image"
	"image/png"
	"io"
	"math"
	"time"

	"github.com/fogleman/gg"
	"trafficview/pkg/model"
)

// Vehicle marker geometry: radius grows with speed, clamped to a visible
// range so stopped vehicles stay clickable and fast ones stay proportionate.
const (
	minMarkerRadius = 3.0
	maxMarkerRadius = 8.0
	speedScale      = 2.0

	// waitingAlpha dims vehicles held at a signal.
	waitingAlpha = 0.7
)

// Palette. Signal colors are fixed per state; unknown states fall back to
// gray instead of failing the frame.
const (
	colorBackground = "#10141c"
	colorRoad       = "#2a2f3a"
	colorGuide      = "#3d4454"
	colorJunction   = "#4a5165"
	colorText       = "#e8e8e8"
	colorRed        = "#e74c3c"
	colorYellow     = "#f1c40f"
	colorGreen      = "#2ecc71"
	colorUnknown    = "#7f8c8d"
	colorBadge      = "#ffffff"
	colorVehicle    = "#4ecdc4" // fallback when a snapshot carries no usable color
)

// Config sizes the visual surface.
type Config struct {
	Width       int
	Height      int
	BlinkPeriod time.Duration
}

// DefaultConfig returns the standard 800x600 surface with a one second
// yellow-blink period.
func DefaultConfig() Config {
	return Config{Width: 800, Height: 600, BlinkPeriod: time.Second}
}

// Renderer maps an arbitrary-sized logical simulation grid onto a
// fixed-size raster surface. Rendering is a pure function of
// (snapshot, running flag, wall-clock time): every call repaints from
// scratch, so entities from a previous snapshot can never linger.
type Renderer struct {
	width       int
	height      int
	blinkPeriod time.Duration
}

// New creates a renderer for a fixed surface size.
func New(cfg Config) *Renderer {
	def := DefaultConfig()
	if cfg.Width <= 0 {
		cfg.Width = def.Width
	}
	if cfg.Height <= 0 {
		cfg.Height = def.Height
	}
	if cfg.BlinkPeriod <= 0 {
		cfg.BlinkPeriod = def.BlinkPeriod
	}
	return &Renderer{width: cfg.Width, height: cfg.Height, blinkPeriod: cfg.BlinkPeriod}
}

// Size returns the surface dimensions.
func (r *Renderer) Size() (int, int) {
	return r.width, r.height
}

// Render draws the snapshot onto a fresh surface. A nil snapshot produces
// the idle background with a waiting notice.
func (r *Renderer) Render(snap *model.Snapshot, running bool, now time.Time) image.Image {
	dc := gg.NewContext(r.width, r.height)
	dc.SetHexColor(colorBackground)
	dc.Clear()

	if snap == nil {
		dc.SetHexColor(colorText)
		dc.DrawStringAnchored("waiting for snapshot...", float64(r.width)/2, float64(r.height)/2, 0.5, 0.5)
		return dc.Image()
	}

	sx, sy := r.scale(snap.Config)
	r.drawBackground(dc)
	r.drawVehicles(dc, snap.Vehicles, sx, sy)
	r.drawSignals(dc, snap.TrafficLights, sx, sy, now)
	r.drawStatus(dc, snap, running)
	return dc.Image()
}

// EncodePNG writes img as PNG.
func (r *Renderer) EncodePNG(w io.Writer, img image.Image) error {
	return png.Encode(w, img)
}

// SurfaceToGrid maps a click at surface coordinates back into logical grid
// coordinates. No hit-testing happens here, only coordinate conversion.
func (r *Renderer) SurfaceToGrid(cx, cy float64, cfg model.SimulationConfig) (float64, float64) {
	gw, gh := float64(cfg.GridWidth), float64(cfg.GridHeight)
	if gw <= 0 || gh <= 0 {
		return 0, 0
	}
	return cx / float64(r.width) * gw, cy / float64(r.height) * gh
}

// MarkerRadius is the vehicle marker radius for a given speed:
// clamp(speed*2, 3, 8). Monotonic non-decreasing in speed.
func MarkerRadius(speed float64) float64 {
	radius := speed * speedScale
	if radius < minMarkerRadius {
		return minMarkerRadius
	}
	if radius > maxMarkerRadius {
		return maxMarkerRadius
	}
	return radius
}

// VehicleAlpha is full opacity for moving vehicles and dimmed for waiting
// ones, so stopped traffic reads at a glance.
func VehicleAlpha(waitingTime float64) float64 {
	if waitingTime > 0 {
		return waitingAlpha
	}
	return 1.0
}

// BlinkAlpha is the pulsing overlay opacity for yellow signals, a
// continuous function of wall-clock time so the blink animates between
// snapshot arrivals.
func (r *Renderer) BlinkAlpha(now time.Time) float64 {
	t := float64(now.UnixNano()) / float64(time.Second)
	period := r.blinkPeriod.Seconds()
	return 0.5 + 0.5*math.Sin(2*math.Pi*t/period)
}

// scale derives the grid-to-surface factors from the snapshot's config.
// Re-derived on every frame, so config updates take effect immediately.
func (r *Renderer) scale(cfg model.SimulationConfig) (float64, float64) {
	gw, gh := float64(cfg.GridWidth), float64(cfg.GridHeight)
	if gw <= 0 {
		gw = 1
	}
	if gh <= 0 {
		gh = 1
	}
	return float64(r.width) / gw, float64(r.height) / gh
}

// drawBackground paints the static road layout: center cross-axes, the
// junction box and dashed guide lines. Layout is constant, independent of
// entity data.
func (r *Renderer) drawBackground(dc *gg.Context) {
	w, h := float64(r.width), float64(r.height)
	cx, cy := w/2, h/2

	const roadWidth = 40.0
	dc.SetHexColor(colorRoad)
	dc.DrawRectangle(0, cy-roadWidth/2, w, roadWidth)
	dc.Fill()
	dc.DrawRectangle(cx-roadWidth/2, 0, roadWidth, h)
	dc.Fill()

	dc.SetHexColor(colorJunction)
	dc.DrawRectangle(cx-roadWidth/2, cy-roadWidth/2, roadWidth, roadWidth)
	dc.Fill()

	dc.SetHexColor(colorGuide)
	dc.SetLineWidth(1)
	dc.SetDash(6, 8)
	dc.DrawLine(0, cy, w, cy)
	dc.Stroke()
	dc.DrawLine(cx, 0, cx, h)
	dc.Stroke()
	dc.SetDash()
}

// drawVehicles draws one filled circle per vehicle at its scaled position.
func (r *Renderer) drawVehicles(dc *gg.Context, vehicles []model.Vehicle, sx, sy float64) {
	for i := range vehicles {
		v := &vehicles[i]
		px, py := v.X*sx, v.Y*sy
		radius := MarkerRadius(v.Speed)
		alpha := VehicleAlpha(v.WaitingTime)

		cr, cg, cb, ok := parseHexColor(v.Color)
		if !ok {
			cr, cg, cb, _ = parseHexColor(colorVehicle)
		}
		dc.SetRGBA(cr, cg, cb, alpha)
		dc.DrawCircle(px, py, radius)
		dc.Fill()

		if v.Speed > 0 {
			dc.SetHexColor(colorText)
			dc.DrawStringAnchored(fmt.Sprintf("%.1f", v.Speed), px, py-radius-8, 0.5, 0.5)
		}
	}
}

// drawSignals draws direction-oriented rectangles colored by state, a
// pulsing overlay for yellow and a queue badge when vehicles are held.
func (r *Renderer) drawSignals(dc *gg.Context, lights []model.TrafficLight, sx, sy float64, now time.Time) {
	for i := range lights {
		l := &lights[i]
		px, py := l.X*sx, l.Y*sy

		// Wide-and-short for horizontal flow, narrow-and-tall for vertical.
		bw, bh := 18.0, 10.0
		if l.Direction == model.DirectionVertical {
			bw, bh = 10.0, 18.0
		}

		dc.SetHexColor(signalColor(l.State))
		dc.DrawRectangle(px-bw/2, py-bh/2, bw, bh)
		dc.Fill()

		if l.State == model.LightYellow {
			cr, cg, cb, _ := parseHexColor(colorYellow)
			dc.SetRGBA(cr, cg, cb, r.BlinkAlpha(now))
			dc.DrawRectangle(px-bw/2-2, py-bh/2-2, bw+4, bh+4)
			dc.Fill()
		}

		if l.QueueLength > 0 {
			bx, by := px+bw/2+7, py-bh/2-7
			dc.SetHexColor(colorBadge)
			dc.DrawCircle(bx, by, 7)
			dc.Fill()
			dc.SetHexColor(colorBackground)
			dc.DrawStringAnchored(fmt.Sprintf("%d", l.QueueLength), bx, by, 0.5, 0.5)
		}
	}
}

// drawStatus overlays the step counter, entity counts, grid size, active
// algorithm and the running/paused indicator.
func (r *Renderer) drawStatus(dc *gg.Context, snap *model.Snapshot, running bool) {
	mode := "PAUSED"
	if running {
		mode = "RUNNING"
	}
	status := fmt.Sprintf("step %d | vehicles %d | grid %dx%d | %s | %s",
		snap.Steps, len(snap.Vehicles),
		snap.Config.GridWidth, snap.Config.GridHeight,
		snap.Config.Algorithm, mode)

	dc.SetHexColor(colorText)
	dc.DrawString(status, 10, 16)
}

// signalColor maps an engine light state to its fill color.
func signalColor(state string) string {
	switch state {
	case model.LightRed:
		return colorRed
	case model.LightYellow:
		return colorYellow
	case model.LightGreen:
		return colorGreen
	default:
		return colorUnknown
	}
}

// parseHexColor parses "#RRGGBB" into normalized components. Snapshot
// vehicle colors come from the engine as hex strings.
func parseHexColor(s string) (float64, float64, float64, bool) {
	if len(s) != 7 || s[0] != '#' {
		return 0, 0, 0, false
	}
	var cr, cg, cb uint8
	if _, err := fmt.Sscanf(s[1:], "%02x%02x%02x", &cr, &cg, &cb); err != nil {
		return 0, 0, 0, false
	}
	return float64(cr) / 255, float64(cg) / 255, float64(cb) / 255, true
}
