// Package tracking implements SORT-style multi-object tracking: a
// constant-velocity bounding-box state estimator (TrackedBox) associated to
// detections frame-over-frame by the Tracker, with confirmed tracks rolled
// up into Trajectory samples for falling-object detection.
package tracking

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/Nullkooland/Falling-Object-Detection/pkg/kalman"
)

// Rect is an axis-aligned bounding box in frame pixel coordinates. Negative
// x/y or a box extending past the frame edge is valid input and carried
// through unmodified.
type Rect struct {
	X, Y, W, H float64
}

// Velocity is a 2-D pixel-per-frame velocity estimate.
type Velocity struct {
	VX, VY float64
}

// Empty reports whether r is the zero rectangle, the sentinel
// measurementToRect returns for a degenerate (negative area or aspect
// ratio) state.
func (r Rect) Empty() bool {
	return r == Rect{}
}

// Center returns the rectangle's center point.
func (r Rect) Center() (cx, cy float64) {
	return r.X + r.W/2, r.Y + r.H/2
}

const stateDim = 7
const measurementDim = 4
const controlDim = 2

// rectToMeasurement packs a rect into the Kalman measurement vector
// (cx, cy, area, aspect-ratio).
func rectToMeasurement(r Rect) *mat.VecDense {
	return mat.NewVecDense(measurementDim, []float64{
		r.X + r.W*0.5,
		r.Y + r.H*0.5,
		r.W * r.H,
		r.W / r.H,
	})
}

// measurementToRect inverts rectToMeasurement. A negative area or aspect
// ratio component (can arise after a predict step with no matching update)
// has no sane rectangle, so it returns the zero rectangle.
func measurementToRect(z mat.Vector) Rect {
	area := z.AtVec(2)
	ratio := z.AtVec(3)
	if area < 0 || ratio < 0 {
		return Rect{}
	}

	w := math.Sqrt(area * ratio)
	h := area / w
	cx := z.AtVec(0)
	cy := z.AtVec(1)

	return Rect{
		X: cx - w*0.5,
		Y: cy - h*0.5,
		W: w,
		H: h,
	}
}

// TrackedBox is a single tracked object's bounding-box state estimator plus
// the bookkeeping SORT needs to decide when the track is confirmed and when
// it has gone stale.
type TrackedBox struct {
	kf *kalman.Filter

	age       int
	hits      int
	hitStreak int
}

// NewTrackedBox creates a track seeded from an initial detection, with zero
// initial velocity and a wide prior on the velocity components since
// nothing is yet known about the object's motion. dt is the filter's
// per-step time delta.
func NewTrackedBox(initial Rect, dt float64) *TrackedBox {
	z := rectToMeasurement(initial)
	x0 := mat.NewVecDense(stateDim, []float64{
		z.AtVec(0), z.AtVec(1), z.AtVec(2), z.AtVec(3), 0, 0, 0,
	})

	p0 := diag(stateDim, []float64{1e1, 1e1, 1e1, 1e1, 1e4, 1e4, 1e4})

	f := mat.NewDense(stateDim, stateDim, nil)
	for i := 0; i < stateDim; i++ {
		f.Set(i, i, 1)
	}
	f.Set(0, 4, dt)
	f.Set(1, 5, dt)
	f.Set(2, 6, dt)

	b := mat.NewDense(stateDim, controlDim, []float64{
		0.5 * dt * dt, 0,
		0, 0.5 * dt * dt,
		0, 0,
		0, 0,
		dt, 0,
		0, dt,
		0, 0,
	})

	q := diag(stateDim, []float64{1, 1, 1, 1e-2, 1e-2, 1e-2, 1e-4})

	h := mat.NewDense(measurementDim, stateDim, nil)
	for i := 0; i < measurementDim; i++ {
		h.Set(i, i, 1)
	}

	r := diag(measurementDim, []float64{1, 1, 10, 10})

	return &TrackedBox{
		kf: kalman.New(x0, p0, f, b, q, h, r),
	}
}

func diag(n int, values []float64) *mat.Dense {
	d := mat.NewDense(n, n, nil)
	for i, v := range values {
		d.Set(i, i, v)
	}
	return d
}

// Predict advances the track one frame under constant bias acceleration a
// and returns the predicted rectangle. It always increments age; callers
// decide whether the track survives based on the result.
func (t *TrackedBox) Predict(a Velocity) Rect {
	t.age++
	u := mat.NewVecDense(controlDim, []float64{a.VX, a.VY})
	state := t.kf.Predict(u)
	return measurementToRect(state.SliceVec(0, measurementDim))
}

// Update folds a matched detection into the track: resets age to zero,
// increments hits, and extends hitStreak only when the track was updated
// on the very next frame after its last update (age==1 at call time, i.e.
// before Predict's increment would have made it 2+).
func (t *TrackedBox) Update(detected Rect) Rect {
	t.hits++
	if t.age == 1 {
		t.hitStreak++
	} else {
		t.hitStreak = 0
	}
	t.age = 0

	z := rectToMeasurement(detected)
	state := t.kf.Update(z)
	return measurementToRect(state.SliceVec(0, measurementDim))
}

// Rect returns the track's current state as a rectangle, without altering
// any bookkeeping.
func (t *TrackedBox) Rect() Rect {
	return measurementToRect(t.kf.State().SliceVec(0, measurementDim))
}

// Velocity returns the track's current (vx, vy) estimate.
func (t *TrackedBox) Velocity() Velocity {
	state := t.kf.State()
	return Velocity{VX: state.AtVec(4), VY: state.AtVec(5)}
}

// Age returns the number of predict steps since the last update.
func (t *TrackedBox) Age() int { return t.age }

// Hits returns the lifetime count of updates applied to this track.
func (t *TrackedBox) Hits() int { return t.hits }

// HitStreak returns the current run of consecutive per-frame updates.
func (t *TrackedBox) HitStreak() int { return t.hitStreak }
