// Package assignment implements the Hungarian (Kuhn-Munkres) algorithm for
// solving the linear assignment problem over a dense rectangular cost
// matrix: pair rows to columns, each at most once, minimizing (or
// maximizing) total cost.
package assignment

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

type marker uint8

const (
	markerNone marker = iota
	markerStar
	markerPrime
)

type point struct{ i, j int }

// Solver holds the scratch state for one or more calls to Solve. Reusing a
// Solver across frames reuses its augmenting-path buffer; the marker table
// and cover flags are reallocated on every call.
type Solver struct {
	m, n int

	workingCost *mat.Dense
	markerTable []marker

	coveredRow []bool
	coveredCol []bool

	hasStarredZeroInRow []bool
	hasStarredZeroInCol []bool

	hasNewlyStarredZeroInRow []bool
	hasNewlyStarredZeroInCol []bool

	paths []point
}

// New returns a ready-to-use Solver.
func New() *Solver {
	return &Solver{}
}

// Solve returns assign (assign[i] = j, or -1 if row i is unassigned),
// reverse (reverse[j] = i, or -1), and the total cost of the assignment. For
// m > n the matrix is solved transposed internally and the result restored.
// An empty cost matrix (m==0 or n==0) is not an error: it yields empty
// assignments and total 0.
func (s *Solver) Solve(cost *mat.Dense, maximize bool) (assign, reverse []int, total float64) {
	m, n := cost.Dims()

	assign = make([]int, m)
	reverse = make([]int, n)
	for i := range assign {
		assign[i] = -1
	}
	for j := range reverse {
		reverse[j] = -1
	}

	if m == 0 || n == 0 {
		return assign, reverse, 0
	}

	transposed := m > n
	var working *mat.Dense
	if transposed {
		working = mat.DenseCopyOf(cost.T())
		s.m, s.n = n, m
	} else {
		working = mat.DenseCopyOf(cost)
		s.m, s.n = m, n
	}

	if maximize {
		working.Scale(-1, working)
	}
	s.workingCost = working

	s.resetScratch()
	s.reduceRows()
	s.findInitialStarredZeros()

	for s.coverColsWithStarredZeros() != s.m {
		path0 := s.primeUncoveredZeros()
		s.findMaximalMatching(path0)
	}

	if transposed {
		total = s.assignStarred(cost.T(), reverse)
		for j := 0; j < s.m; j++ {
			assign[reverse[j]] = j
		}
	} else {
		total = s.assignStarred(cost, assign)
		for i := 0; i < s.m; i++ {
			reverse[assign[i]] = i
		}
	}

	return assign, reverse, total
}

func (s *Solver) idx(i, j int) int { return i*s.n + j }

func (s *Solver) resetScratch() {
	s.markerTable = make([]marker, s.m*s.n)
	s.coveredRow = make([]bool, s.m)
	s.coveredCol = make([]bool, s.n)
	s.hasStarredZeroInRow = make([]bool, s.m)
	s.hasStarredZeroInCol = make([]bool, s.n)
	s.hasNewlyStarredZeroInRow = make([]bool, s.m)
	s.hasNewlyStarredZeroInCol = make([]bool, s.n)
	s.paths = s.paths[:0]
}

func (s *Solver) reduceRows() {
	for i := 0; i < s.m; i++ {
		minVal := math.Inf(1)
		for j := 0; j < s.n; j++ {
			if v := s.workingCost.At(i, j); v < minVal {
				minVal = v
			}
		}
		for j := 0; j < s.n; j++ {
			s.workingCost.Set(i, j, s.workingCost.At(i, j)-minVal)
		}
	}
}

func (s *Solver) findInitialStarredZeros() {
	for i := 0; i < s.m; i++ {
		for j := 0; j < s.n; j++ {
			if !s.hasStarredZeroInCol[j] && s.workingCost.At(i, j) == 0 {
				s.markerTable[s.idx(i, j)] = markerStar
				s.hasStarredZeroInRow[i] = true
				s.hasStarredZeroInCol[j] = true
				break
			}
		}
	}
}

func (s *Solver) coverColsWithStarredZeros() int {
	covered := 0
	for j := 0; j < s.n; j++ {
		if s.hasStarredZeroInCol[j] {
			s.coveredCol[j] = true
			covered++
		}
	}
	return covered
}

// findUncoveredZero does a full row-major scan: the first qualifying zero
// (in row-major order) wins, deterministically.
func (s *Solver) findUncoveredZero() (int, int, bool) {
	for i := 0; i < s.m; i++ {
		if s.coveredRow[i] {
			continue
		}
		for j := 0; j < s.n; j++ {
			if !s.coveredCol[j] && s.workingCost.At(i, j) == 0 {
				return i, j, true
			}
		}
	}
	return 0, 0, false
}

func (s *Solver) locateStarredZeroInRow(i int) int {
	for j := 0; j < s.n; j++ {
		if s.markerTable[s.idx(i, j)] == markerStar {
			return j
		}
	}
	return -1
}

func (s *Solver) locateStarredZeroInCol(j int) int {
	for i := 0; i < s.m; i++ {
		if s.markerTable[s.idx(i, j)] == markerStar {
			return i
		}
	}
	return -1
}

func (s *Solver) locatePrimedZeroInRow(i int) int {
	for j := 0; j < s.n; j++ {
		if s.markerTable[s.idx(i, j)] == markerPrime {
			return j
		}
	}
	return -1
}

func (s *Solver) primeUncoveredZeros() point {
	for {
		i, j, ok := s.findUncoveredZero()
		if !ok {
			s.adjustCost()
			continue
		}

		s.markerTable[s.idx(i, j)] = markerPrime

		if s.hasStarredZeroInRow[i] {
			starCol := s.locateStarredZeroInRow(i)
			s.coveredRow[i] = true
			s.coveredCol[starCol] = false
		} else {
			return point{i, j}
		}
	}
}

func (s *Solver) findMaximalMatching(path0 point) {
	s.paths = append(s.paths, path0)

	for {
		last := s.paths[len(s.paths)-1]
		j := last.j
		if !s.hasStarredZeroInCol[j] {
			break
		}
		i := s.locateStarredZeroInCol(j)
		s.paths = append(s.paths, point{i, j})

		j = s.locatePrimedZeroInRow(i)
		s.paths = append(s.paths, point{i, j})
	}

	for k, pt := range s.paths {
		if k%2 == 0 {
			s.markerTable[s.idx(pt.i, pt.j)] = markerStar
			s.hasStarredZeroInRow[pt.i] = true
			s.hasStarredZeroInCol[pt.j] = true
			s.hasNewlyStarredZeroInRow[pt.i] = true
			s.hasNewlyStarredZeroInCol[pt.j] = true
		} else {
			s.markerTable[s.idx(pt.i, pt.j)] = markerNone
			if !s.hasNewlyStarredZeroInRow[pt.i] {
				s.hasStarredZeroInRow[pt.i] = false
			}
			if !s.hasNewlyStarredZeroInCol[pt.j] {
				s.hasStarredZeroInCol[pt.j] = false
			}
		}
	}

	s.paths = s.paths[:0]
	for i := range s.hasNewlyStarredZeroInRow {
		s.hasNewlyStarredZeroInRow[i] = false
	}
	for j := range s.hasNewlyStarredZeroInCol {
		s.hasNewlyStarredZeroInCol[j] = false
	}

	for i := 0; i < s.m; i++ {
		for j := 0; j < s.n; j++ {
			if s.markerTable[s.idx(i, j)] == markerPrime {
				s.markerTable[s.idx(i, j)] = markerNone
			}
		}
	}

	for i := range s.coveredRow {
		s.coveredRow[i] = false
	}
	for j := range s.coveredCol {
		s.coveredCol[j] = false
	}
}

func (s *Solver) adjustCost() {
	minUncovered := math.Inf(1)
	for i := 0; i < s.m; i++ {
		if s.coveredRow[i] {
			continue
		}
		for j := 0; j < s.n; j++ {
			if !s.coveredCol[j] {
				if v := s.workingCost.At(i, j); v < minUncovered {
					minUncovered = v
				}
			}
		}
	}

	if math.IsInf(minUncovered, 1) {
		panic("assignment: no uncovered entries left to adjust, cost matrix is degenerate")
	}

	for i := 0; i < s.m; i++ {
		for j := 0; j < s.n; j++ {
			v := s.workingCost.At(i, j)
			if s.coveredRow[i] {
				v += minUncovered
			}
			if !s.coveredCol[j] {
				v -= minUncovered
			}
			s.workingCost.Set(i, j, v)
		}
	}
}

// assignStarred reads off the final assignment from the marker table and
// sums the original (un-negated, untransposed) cost at each starred cell.
func (s *Solver) assignStarred(originalCost mat.Matrix, assign []int) float64 {
	total := 0.0
	for i := 0; i < s.m; i++ {
		for j := 0; j < s.n; j++ {
			if s.markerTable[s.idx(i, j)] == markerStar {
				assign[i] = j
				total += originalCost.At(i, j)
			}
		}
	}
	return total
}

// Total computes Σ cost[i, assign[i]] over assigned rows, useful for
// cross-checking Solve's returned total against an externally held cost
// matrix.
func Total(cost *mat.Dense, assign []int) float64 {
	total := 0.0
	for i, j := range assign {
		if j < 0 {
			continue
		}
		r, c := cost.Dims()
		if i >= r || j >= c {
			panic(fmt.Sprintf("assignment: index (%d,%d) out of bounds for %dx%d cost matrix", i, j, r, c))
		}
		total += cost.At(i, j)
	}
	return total
}
