package tracking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMeasurementRectRoundTrip(t *testing.T) {
	cases := []Rect{
		{X: 10, Y: 20, W: 40, H: 60},
		{X: -5, Y: -5, W: 12, H: 8},
		{X: 0, Y: 0, W: 1, H: 1},
		{X: 500, Y: 50, W: 40, H: 60},
	}

	for _, r := range cases {
		z := rectToMeasurement(r)
		got := measurementToRect(z)
		assert.InDelta(t, r.X, got.X, 1e-4)
		assert.InDelta(t, r.Y, got.Y, 1e-4)
		assert.InDelta(t, r.W, got.W, 1e-4)
		assert.InDelta(t, r.H, got.H, 1e-4)
	}
}

func TestTrackedBox_UpdateIncrementsHitStreakOnlyWhenAgeOne(t *testing.T) {
	tb := NewTrackedBox(Rect{X: 0, Y: 0, W: 10, H: 10}, 1.0/30)

	tb.Predict(Velocity{})
	tb.Update(Rect{X: 1, Y: 1, W: 10, H: 10})
	assert.Equal(t, 1, tb.HitStreak())
	assert.Equal(t, 0, tb.Age())

	tb.Predict(Velocity{})
	tb.Predict(Velocity{})
	tb.Update(Rect{X: 3, Y: 3, W: 10, H: 10})
	assert.Equal(t, 0, tb.HitStreak())
	assert.Equal(t, 2, tb.Hits())
}

func TestTrackedBox_PredictAdvancesAgeAndConvergesTowardDetections(t *testing.T) {
	tb := NewTrackedBox(Rect{X: 500, Y: 50, W: 40, H: 60}, 1.0)

	for k := 1; k < 10; k++ {
		predicted := tb.Predict(Velocity{})
		// Update resets age to 0, so each Predict advances it to 1.
		assert.Equal(t, 1, tb.Age())
		tb.Update(Rect{X: 500, Y: 50 + 10*float64(k), W: 40, H: 60})
		_ = predicted
	}

	rect := tb.Rect()
	assert.InDelta(t, 500, rect.X, 5)
}
