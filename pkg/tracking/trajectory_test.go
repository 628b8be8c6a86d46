package tracking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFrame struct{ closed bool }

func (f *fakeFrame) Close() error {
	f.closed = true
	return nil
}

func TestTrajectory_AddResetsAgeAndTracksSamplesInOrder(t *testing.T) {
	tr := NewTrajectory(&fakeFrame{})

	base := time.Unix(0, 0)
	for k := 0; k < 5; k++ {
		tr.IncrementAge()
		tr.Add(Rect{X: 500, Y: 50 + 10*float64(k), W: 40, H: 60}, Velocity{VY: 10}, base.Add(time.Duration(k)*33*time.Millisecond))
		assert.Equal(t, 0, tr.Age())
	}

	require.Equal(t, 5, tr.NumSamples())
	samples := tr.Samples()
	for i := 1; i < len(samples); i++ {
		assert.False(t, samples[i].Timestamp.Before(samples[i-1].Timestamp))
	}
}

func TestTrajectory_GetRangeYIsAbsoluteFirstLastDelta(t *testing.T) {
	tr := NewTrajectory(&fakeFrame{})
	tr.Add(Rect{X: 0, Y: 0, W: 10, H: 10}, Velocity{}, time.Unix(0, 0))
	tr.Add(Rect{X: 0, Y: 300, W: 10, H: 10}, Velocity{}, time.Unix(1, 0))

	assert.Equal(t, 300.0, tr.GetRangeY())
}

func TestTrajectory_ForceEndPushesAgePastMax(t *testing.T) {
	tr := NewTrajectory(&fakeFrame{})
	tr.ForceEnd(15)
	assert.Greater(t, tr.Age(), 15)
}

func TestTrajectory_ReleaseClosesOwnedFrame(t *testing.T) {
	frame := &fakeFrame{}
	tr := NewTrajectory(frame)
	require.NoError(t, tr.Release())
	assert.True(t, frame.closed)
}

func TestTrajectory_FitParabolaRecoversKnownCoefficients(t *testing.T) {
	tr := NewTrajectory(&fakeFrame{})
	// y = 0.01x^2 - 2x + 50, sampled densely enough that the weighted fit
	// should recover coefficients close to the generator.
	for x := 0.0; x < 40; x += 2 {
		y := 0.01*x*x - 2*x + 50
		tr.Add(Rect{X: x - 5, Y: y - 5, W: 10, H: 10}, Velocity{}, time.Unix(0, 0))
	}

	coeffs, ok := tr.FitParabola()
	require.True(t, ok)
	assert.InDelta(t, 0.01, coeffs.A, 0.05)
	assert.InDelta(t, -2, coeffs.B, 1)
	assert.InDelta(t, 50, coeffs.C, 20)
}

func TestTrajectory_FitParabolaFailsWithTooFewSamples(t *testing.T) {
	tr := NewTrajectory(&fakeFrame{})
	tr.Add(Rect{X: 0, Y: 0, W: 10, H: 10}, Velocity{}, time.Unix(0, 0))
	tr.Add(Rect{X: 5, Y: 5, W: 10, H: 10}, Velocity{}, time.Unix(1, 0))

	_, ok := tr.FitParabola()
	assert.False(t, ok)
}
