package assignment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestSolve_RectangularMinimizationMatchesWorkedExample(t *testing.T) {
	cost := mat.NewDense(5, 4, []float64{
		5, 10, 15, 20,
		15, 20, 30, 10,
		10, 20, 15, 30,
		20, 10, 10, 45,
		50, 50, 50, 50,
	})

	s := New()
	assign, reverse, total := s.Solve(cost, false)

	assert.Equal(t, []int{0, 3, 2, 1, -1}, assign)
	assert.Equal(t, 40.0, total)

	for i, j := range assign {
		if j == -1 {
			continue
		}
		require.Equal(t, i, reverse[j])
	}
}

func TestSolve_TotalMatchesSumOfAssignedCosts(t *testing.T) {
	cost := mat.NewDense(3, 3, []float64{
		4, 2, 8,
		4, 3, 7,
		3, 1, 6,
	})

	s := New()
	assign, _, total := s.Solve(cost, false)

	want := Total(cost, assign)
	assert.Equal(t, want, total)

	seen := make(map[int]bool)
	for _, j := range assign {
		require.False(t, seen[j], "column reused across rows: %d", j)
		if j >= 0 {
			seen[j] = true
		}
	}
}

func TestSolve_TransposeYieldsTransposedAssignment(t *testing.T) {
	cost := mat.NewDense(3, 4, []float64{
		7, 2, 1, 9,
		4, 6, 3, 8,
		5, 1, 9, 2,
	})

	s := New()
	assign, reverse, _ := s.Solve(cost, false)

	st := New()
	tAssign, tReverse, _ := st.Solve(mat.DenseCopyOf(cost.T()), false)

	assert.Equal(t, reverse, tAssign)
	assert.Equal(t, assign, tReverse)
}

func TestSolve_EmptyMatrixYieldsZeroTotal(t *testing.T) {
	s := New()
	// mat.NewDense panics on a zero dimension; the zero Dense is 0x0.
	assign, reverse, total := s.Solve(&mat.Dense{}, false)

	assert.Empty(t, assign)
	assert.Empty(t, reverse)
	assert.Equal(t, 0.0, total)
}

func TestSolve_MaximizeFindsHighestTotal(t *testing.T) {
	cost := mat.NewDense(3, 3, []float64{
		1, 9, 2,
		8, 3, 4,
		5, 6, 7,
	})

	s := New()
	assign, _, total := s.Solve(cost, true)

	assert.Equal(t, Total(cost, assign), total)
	assert.Equal(t, 9.0+8.0+7.0, total)
}
