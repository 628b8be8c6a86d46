package kalman

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// identityFilter builds a D-dimensional filter with F=I, H=I, modest Q, and
// a caller-supplied R, for exercising the convergence property directly.
func identityFilter(d int, r float64) *Filter {
	f := mat.NewDense(d, d, nil)
	h := mat.NewDense(d, d, nil)
	q := mat.NewDense(d, d, nil)
	rr := mat.NewDense(d, d, nil)
	p0 := mat.NewDense(d, d, nil)
	for i := 0; i < d; i++ {
		f.Set(i, i, 1)
		h.Set(i, i, 1)
		q.Set(i, i, 1e-6)
		rr.Set(i, i, r)
		p0.Set(i, i, 1)
	}
	x0 := mat.NewVecDense(d, nil)
	return New(x0, p0, f, nil, q, h, rr)
}

func TestUpdate_ConvergesToMeasurementWhenNoiseFloorVanishes(t *testing.T) {
	kf := identityFilter(4, 1e-12)
	z := mat.NewVecDense(4, []float64{3.5, -2.0, 100.0, 0.25})

	kf.Update(z)

	for i := 0; i < 4; i++ {
		assert.InDelta(t, z.AtVec(i), kf.State().AtVec(i), 1e-4)
	}
}

func TestPredict_AdvancesStateThroughTransitionAndControl(t *testing.T) {
	// 2-state constant-velocity system: position, velocity.
	dt := 0.5
	f := mat.NewDense(2, 2, []float64{1, dt, 0, 1})
	b := mat.NewDense(2, 1, []float64{0.5 * dt * dt, dt})
	q := mat.NewDense(2, 2, []float64{1e-3, 0, 0, 1e-3})
	h := mat.NewDense(2, 2, []float64{1, 0, 0, 1})
	r := mat.NewDense(2, 2, []float64{1, 0, 0, 1})
	p0 := mat.NewDense(2, 2, []float64{1, 0, 0, 1})
	x0 := mat.NewVecDense(2, []float64{0, 0})

	kf := New(x0, p0, f, b, q, h, r)
	u := mat.NewVecDense(1, []float64{-9.80665})

	kf.Predict(u)

	wantPos := 0.5 * -9.80665 * dt * dt
	wantVel := -9.80665 * dt
	assert.InDelta(t, wantPos, kf.State().AtVec(0), 1e-9)
	assert.InDelta(t, wantVel, kf.State().AtVec(1), 1e-9)
}

func TestFilter_GravityTrackingStaysWithinNoiseBudget(t *testing.T) {
	const steps = 4096
	dt := 4.0 / 4096.0
	gravity := -9.80665
	rVariance := 1.0 // R[1,1]
	sigma := math.Sqrt(rVariance) * dt

	f := mat.NewDense(2, 2, []float64{1, dt, 0, 1})
	b := mat.NewDense(2, 1, []float64{0.5 * dt * dt, dt})
	q := mat.NewDense(2, 2, []float64{1e-2, 0, 0, 1e-2})
	h := mat.NewDense(2, 2, []float64{1, 0, 0, 1})
	r := mat.NewDense(2, 2, []float64{rVariance, 0, 0, rVariance})
	p0 := mat.NewDense(2, 2, []float64{10, 0, 0, 10})
	x0 := mat.NewVecDense(2, []float64{0, 0})

	kf := New(x0, p0, f, b, q, h, r)
	u := mat.NewVecDense(1, []float64{gravity})

	truePos, trueVel := 0.0, 0.0
	rng := newDeterministicNoise(1)

	for i := 0; i < steps; i++ {
		truePos += trueVel*dt + 0.5*gravity*dt*dt
		trueVel += gravity * dt

		kf.Predict(u)

		noiseStd := sigma
		z := mat.NewVecDense(2, []float64{
			truePos + rng.next()*noiseStd,
			trueVel + rng.next()*noiseStd,
		})
		kf.Update(z)
	}

	err := math.Abs(kf.State().AtVec(0) - truePos)
	require.Less(t, err, 5*sigma)
}

// deterministicNoise is a tiny reproducible standard-normal pseudo-noise
// source (Box-Muller over a linear-congruential uniform generator) so the
// gravity-tracking test above doesn't depend on math/rand's global state.
type deterministicNoise struct{ state uint64 }

func newDeterministicNoise(seed uint64) *deterministicNoise {
	return &deterministicNoise{state: seed*2654435761 + 1}
}

func (d *deterministicNoise) uniform() float64 {
	d.state = d.state*6364136223846793005 + 1442695040888963407
	return float64(d.state>>11) / float64(1<<53)
}

func (d *deterministicNoise) next() float64 {
	u1 := d.uniform()
	if u1 < 1e-12 {
		u1 = 1e-12
	}
	u2 := d.uniform()
	return math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
}
