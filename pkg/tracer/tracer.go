// Package tracer records the robot's pose over time and draws the path it
// took.
package tracer

import (
	"context"
	"image"
	"math"
	"sync"
	"time"

	"github.com/fogleman/gg"
	"github.com/pkg/errors"
)

type PoseSource interface {
	X() float64
	Y() float64
	Theta() float64
}

type Sample struct {
	T     time.Duration
	X, Y  float64
	Theta float64
}

type Recorder struct {
	pose   PoseSource
	period time.Duration

	lock    sync.Mutex
	start   time.Time
	samples []Sample
}

func New(pose PoseSource, period time.Duration) *Recorder {
	return &Recorder{pose: pose, period: period, start: time.Now()}
}

// Record appends the current pose.
func (r *Recorder) Record() {
	s := Sample{X: r.pose.X(), Y: r.pose.Y(), Theta: r.pose.Theta()}
	r.lock.Lock()
	defer r.lock.Unlock()
	s.T = time.Since(r.start)
	r.samples = append(r.samples, s)
}

func (r *Recorder) Loop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	ticker := time.NewTicker(r.period)
	defer ticker.Stop()
	for {
		r.Record()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (r *Recorder) Samples() []Sample {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]Sample(nil), r.samples...)
}

const (
	margin     = 20.0
	gridInches = 12.0
	arrowSize  = 6.0
)

// Render draws the samples top-down, +Y up the image, with a one foot grid
// and an arrow at the final pose.
func Render(samples []Sample, size int) (image.Image, error) {
	if len(samples) == 0 {
		return nil, errors.New("no samples to draw")
	}
	minX, maxX := samples[0].X, samples[0].X
	minY, maxY := samples[0].Y, samples[0].Y
	for _, s := range samples {
		minX, maxX = math.Min(minX, s.X), math.Max(maxX, s.X)
		minY, maxY = math.Min(minY, s.Y), math.Max(maxY, s.Y)
	}
	span := math.Max(math.Max(maxX-minX, maxY-minY), gridInches)
	scale := (float64(size) - 2*margin) / span
	toImage := func(x, y float64) (float64, float64) {
		return margin + (x-minX)*scale, float64(size) - margin - (y-minY)*scale
	}

	dc := gg.NewContext(size, size)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	dc.SetRGBA(0, 0, 0, 0.15)
	dc.SetLineWidth(1)
	for g := math.Floor(minX/gridInches) * gridInches; g <= minX+span; g += gridInches {
		x, _ := toImage(g, 0)
		dc.DrawLine(x, 0, x, float64(size))
	}
	for g := math.Floor(minY/gridInches) * gridInches; g <= minY+span; g += gridInches {
		_, y := toImage(0, g)
		dc.DrawLine(0, y, float64(size), y)
	}
	dc.Stroke()

	dc.SetRGB(0.1, 0.3, 0.9)
	dc.SetLineWidth(2)
	for i, s := range samples {
		x, y := toImage(s.X, s.Y)
		if i == 0 {
			dc.MoveTo(x, y)
		} else {
			dc.LineTo(x, y)
		}
	}
	dc.Stroke()

	first := samples[0]
	x, y := toImage(first.X, first.Y)
	dc.SetRGB(0.1, 0.7, 0.2)
	dc.DrawCircle(x, y, 4)
	dc.Fill()

	last := samples[len(samples)-1]
	x, y = toImage(last.X, last.Y)
	dc.Push()
	dc.Translate(x, y)
	// Heading is clockwise from +Y, which points up the image, and so does
	// an unrotated triangle.
	dc.Rotate(gg.Radians(last.Theta))
	dc.SetRGB(0.9, 0.2, 0)
	dc.DrawRegularPolygon(3, 0, 0, arrowSize, 0)
	dc.Fill()
	dc.Pop()

	return dc.Image(), nil
}

// SavePNG renders the samples to a PNG file.
func SavePNG(path string, samples []Sample, size int) error {
	img, err := Render(samples, size)
	if err != nil {
		return err
	}
	if err := gg.SavePNG(path, img); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return nil
}
