package tracking

import (
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
)

// SamplePoint is one observation folded into a Trajectory: a track's rect,
// derived center, velocity and the timestamp it was observed at.
type SamplePoint struct {
	X, Y, W, H float64
	XCenter    float64
	YCenter    float64
	XVelocity  float64
	YVelocity  float64
	Timestamp  time.Time
}

// Trajectory accumulates the ordered samples of a single tracked object
// identity from the frame it was first confirmed on through to the frame it
// stops being updated.
type Trajectory struct {
	firstFrame ClonedFrame
	samples    []SamplePoint
	age        int
}

// ClonedFrame is the narrow surface Trajectory needs from whatever frame
// representation the driver uses: an owned copy it must release when the
// trajectory is discarded. gocv.Mat.Clone satisfies this.
type ClonedFrame interface {
	Close() error
}

// NewTrajectory creates a trajectory anchored to firstFrame, which the
// caller must already own a clone of — Trajectory takes ownership and will
// Close it when Release is called.
func NewTrajectory(firstFrame ClonedFrame) *Trajectory {
	return &Trajectory{firstFrame: firstFrame}
}

// Add appends a new sample and resets age to zero.
func (tr *Trajectory) Add(rect Rect, vel Velocity, ts time.Time) {
	cx, cy := rect.Center()
	tr.samples = append(tr.samples, SamplePoint{
		X: rect.X, Y: rect.Y, W: rect.W, H: rect.H,
		XCenter:   cx,
		YCenter:   cy,
		XVelocity: vel.VX,
		YVelocity: vel.VY,
		Timestamp: ts,
	})
	tr.age = 0
}

// IncrementAge advances age by one frame without a new sample.
func (tr *Trajectory) IncrementAge() { tr.age++ }

// ForceEnd pushes age past any plausible maxTrajectoryAge threshold so the
// trajectory ends on the Tracker's next sweep, used when the underlying
// track is removed mid-frame.
func (tr *Trajectory) ForceEnd(maxTrajectoryAge int) {
	tr.age = maxTrajectoryAge + 1
}

// Age returns the number of frames since the last Add.
func (tr *Trajectory) Age() int { return tr.age }

// NumSamples returns the number of accumulated samples.
func (tr *Trajectory) NumSamples() int { return len(tr.samples) }

// Samples returns the accumulated samples in insertion order. The returned
// slice must not be mutated or retained past the end-callback's return.
func (tr *Trajectory) Samples() []SamplePoint { return tr.samples }

// FirstFrame returns the frame captured when the trajectory was created.
func (tr *Trajectory) FirstFrame() ClonedFrame { return tr.firstFrame }

// GetStartTime returns the timestamp of the first sample, or the zero time
// if the trajectory has no samples yet.
func (tr *Trajectory) GetStartTime() time.Time {
	if len(tr.samples) == 0 {
		return time.Time{}
	}
	return tr.samples[0].Timestamp
}

// GetRangeY returns the absolute vertical distance between the first and
// last sample's y-center, the "fall distance" used to qualify a trajectory.
func (tr *Trajectory) GetRangeY() float64 {
	if len(tr.samples) == 0 {
		return 0
	}
	first := tr.samples[0].YCenter
	last := tr.samples[len(tr.samples)-1].YCenter
	return math.Abs(last - first)
}

// Release closes the owned frame clone. Call exactly once, after the
// end-callback (if any) has returned.
func (tr *Trajectory) Release() error {
	if tr.firstFrame == nil {
		return nil
	}
	return tr.firstFrame.Close()
}

// ParabolaCoefficients is (a, b, c) for y = a*x^2 + b*x + c, fit in the
// trajectory's x-center/y-center sample space.
type ParabolaCoefficients struct {
	A, B, C float64
}

// FitParabola solves the weighted least-squares problem
// min ‖W·(A·θ − y)‖² over the trajectory's samples, with row i weighted by
// exp(-i/N), so earlier samples pull the fit harder than later ones. Used
// only for rendering; returns false if there are fewer than 3 samples (an
// underdetermined system).
func (tr *Trajectory) FitParabola() (ParabolaCoefficients, bool) {
	n := len(tr.samples)
	if n < 3 {
		return ParabolaCoefficients{}, false
	}

	a := mat.NewDense(n, 3, nil)
	y := mat.NewVecDense(n, nil)

	for i, s := range tr.samples {
		w := math.Exp(-float64(i) / float64(n))
		x := s.XCenter
		a.Set(i, 0, x*x*w)
		a.Set(i, 1, x*w)
		a.Set(i, 2, w)
		y.SetVec(i, s.YCenter*w)
	}

	// Normal equations: (A^T A) theta = A^T y, solved via Cholesky since
	// A^T A is symmetric positive semi-definite for any non-degenerate
	// sample set.
	var ata mat.Dense
	ata.Mul(a.T(), a)
	var aty mat.VecDense
	aty.MulVec(a.T(), y)

	var chol mat.Cholesky
	if ok := chol.Factorize(mat.NewSymDense(3, ata.RawMatrix().Data)); !ok {
		return ParabolaCoefficients{}, false
	}

	var theta mat.VecDense
	if err := chol.SolveVecTo(&theta, &aty); err != nil {
		return ParabolaCoefficients{}, false
	}

	return ParabolaCoefficients{A: theta.AtVec(0), B: theta.AtVec(1), C: theta.AtVec(2)}, true
}
