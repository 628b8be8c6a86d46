package ingest

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/Nullkooland/Falling-Object-Detection/pkg/tracking"
)

const (
	velocityScale   = 0.2
	polylineStepX   = 4.0
	boxColorR       = 255
	arrowColorG     = 255
	parabolaColorRG = 255
)

// Annotate draws a trajectory's sample boxes, center markers, velocity
// arrows and fitted parabola onto frame, the same visualization
// original_source's Trajectory::draw produced, just expressed with gocv's
// drawing primitives instead of OpenCV's C++ ones. frame is mutated and
// returned for chaining; callers typically pass a clone since the core
// retains ownership of trajectory's own first-frame copy.
func Annotate(frame gocv.Mat, trajectory *tracking.Trajectory) gocv.Mat {
	samples := trajectory.Samples()

	boxColor := color.RGBA{R: boxColorR, G: 50, B: 100, A: 0}
	markerColor := color.RGBA{R: 255, A: 0}
	arrowColor := color.RGBA{G: arrowColorG, A: 0}

	xMin, xMax := samples[0].XCenter, samples[0].XCenter

	for _, s := range samples {
		if s.XCenter < xMin {
			xMin = s.XCenter
		}
		if s.XCenter > xMax {
			xMax = s.XCenter
		}

		box := image.Rect(int(s.X), int(s.Y), int(s.X+s.W), int(s.Y+s.H))
		gocv.Rectangle(frame, box, boxColor, 1)

		center := image.Pt(int(s.XCenter), int(s.YCenter))
		gocv.DrawMarker(frame, center, markerColor, gocv.MarkerTiltedCross, 6, 2, 0)

		tip := image.Pt(int(s.XCenter+velocityScale*s.XVelocity*10), int(s.YCenter+velocityScale*s.YVelocity*10))
		gocv.ArrowedLine(frame, center, tip, arrowColor, 1)
	}

	coeffs, ok := trajectory.FitParabola()
	if !ok {
		return frame
	}

	parabolaColor := color.RGBA{G: parabolaColorRG, B: parabolaColorRG, A: 0}
	prev := image.Point{}
	first := true
	for x := xMin; x <= xMax; x += polylineStepX {
		y := coeffs.A*x*x + coeffs.B*x + coeffs.C
		pt := image.Pt(int(x), int(y))
		if !first {
			gocv.Line(frame, prev, pt, parabolaColor, 1)
		}
		prev = pt
		first = false
	}

	return frame
}
