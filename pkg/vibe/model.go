// Package vibe implements a per-pixel stochastic background model in the
// style of ViBe (Visual Background Extractor): each pixel keeps a small bag
// of recently observed colors and is classified as foreground when too few
// of those samples are close to the pixel's current color.
package vibe

import (
	"fmt"
	"math/rand"

	"gocv.io/x/gocv"
)

// Foreground/background labels written into the output mask.
const (
	BackgroundLabel uint8 = 0
	ForegroundLabel uint8 = 255
)

const (
	defaultNumSamples      = 16
	defaultThresholdL1     = 20
	defaultMinCloseSamples = 2
	defaultUpdateFactor    = 6
	noiseHalfRange         = 10
)

// Params configures a Model's dimensions and tuning constants. Zero values
// for the tuning fields fall back to ViBe's usual defaults.
type Params struct {
	Height int
	Width  int

	// NumSamples is N, the number of color samples kept per pixel. Default 16.
	NumSamples int
	// ThresholdL1 is the raw per-channel L1 distance threshold tau. The
	// effective threshold applied to the 3-channel summed distance is 3*tau.
	// Default 20 (effective 60).
	ThresholdL1 uint8
	// MinCloseSamples is kappa, the minimum number of close samples/history
	// matches required for a pixel to be classified as background. Default 2.
	MinCloseSamples int
	// UpdateFactor is phi; a background sample is refreshed with probability
	// roughly 1/UpdateFactor per call to Update. Default 6.
	UpdateFactor int
	// Seed seeds the model's PRNG. Zero uses a fixed default seed so runs are
	// reproducible; callers that want process-randomized behavior should pass
	// a seed derived from, e.g., time.Now().UnixNano().
	Seed int64

	// Parallel splits Segment's per-pixel loop into contiguous pixel ranges
	// run on Workers goroutines. The initial sample seeding always runs
	// sequentially, and so does Update: its
	// neighbor write crosses pixel boundaries and is not safe to parallelize
	// (see package vibe/parallel.go).
	Parallel bool
	Workers  int
}

func (p Params) withDefaults() Params {
	if p.NumSamples == 0 {
		p.NumSamples = defaultNumSamples
	}
	if p.ThresholdL1 == 0 {
		p.ThresholdL1 = defaultThresholdL1
	}
	if p.MinCloseSamples == 0 {
		p.MinCloseSamples = defaultMinCloseSamples
	}
	if p.UpdateFactor == 0 {
		p.UpdateFactor = defaultUpdateFactor
	}
	if p.Workers == 0 {
		p.Workers = 4
	}
	return p
}

// Model is a per-pixel ViBe-style background/foreground classifier. A Model
// owns all of its sample buffers; frames and masks passed into Segment and
// Update are borrowed for the duration of the call only.
type Model struct {
	h, w int
	n    int
	// threshold is the effective (channel-summed) L1 distance threshold,
	// i.e. 3 * Params.ThresholdL1.
	threshold int
	kappa     int
	phi       int

	h0, h1   []uint8 // history images, h*w*3 each
	samples  []uint8 // h*w*n*3, sample row i*n*3 .. i*n*3+n*3
	swapFlag bool

	jump     []int
	replace  []int
	neighbor []int

	rng         *rand.Rand
	initialized bool

	parallel bool
	workers  int
}

// New constructs a Model for the given dimensions and tuning parameters.
func New(p Params) *Model {
	p = p.withDefaults()
	if p.Height <= 0 || p.Width <= 0 {
		panic(fmt.Sprintf("vibe: invalid dimensions %dx%d", p.Height, p.Width))
	}

	tableSize := 2*p.Height + 1
	if p.Width > p.Height {
		tableSize = 2*p.Width + 1
	}

	m := &Model{
		h:         p.Height,
		w:         p.Width,
		n:         p.NumSamples,
		threshold: 3 * int(p.ThresholdL1),
		kappa:     p.MinCloseSamples,
		phi:       p.UpdateFactor,

		h0:       make([]uint8, p.Height*p.Width*3),
		h1:       make([]uint8, p.Height*p.Width*3),
		samples:  make([]uint8, p.Height*p.Width*p.NumSamples*3),
		jump:     make([]int, tableSize),
		replace:  make([]int, tableSize),
		neighbor: make([]int, tableSize),

		rng:      rand.New(rand.NewSource(p.Seed)),
		parallel: p.Parallel,
		workers:  p.Workers,
	}
	return m
}

// Clear marks the model uninitialized; the next call to Segment reseeds it
// from the frame passed to that call.
func (m *Model) Clear() {
	m.initialized = false
}

func (m *Model) checkFrame(frame gocv.Mat, name string) []byte {
	if frame.Empty() {
		panic(fmt.Sprintf("vibe: %s frame is empty", name))
	}
	if frame.Rows() != m.h || frame.Cols() != m.w {
		panic(fmt.Sprintf("vibe: %s frame dims %dx%d != model %dx%d", name, frame.Rows(), frame.Cols(), m.h, m.w))
	}
	if !frame.IsContinuous() {
		panic(fmt.Sprintf("vibe: %s frame is not contiguous", name))
	}
	data, err := frame.DataPtrUint8()
	if err != nil {
		panic(fmt.Sprintf("vibe: %s frame buffer unavailable: %v", name, err))
	}
	return data
}

// Segment classifies every pixel of frame as foreground or background,
// returning an 8-bit single-channel mask with values BackgroundLabel or
// ForegroundLabel. On the first call, or after Clear, the model seeds itself
// from frame before classifying it (seeded pixels always read back as
// background for that same frame).
func (m *Model) Segment(frame gocv.Mat) gocv.Mat {
	data := m.checkFrame(frame, "segment")

	if !m.initialized {
		m.seed(data)
	}

	fg := gocv.NewMatWithSize(m.h, m.w, gocv.MatTypeCV8U)
	fgData, err := fg.DataPtrUint8()
	if err != nil {
		panic(fmt.Sprintf("vibe: mask buffer unavailable: %v", err))
	}

	m.swapFlag = !m.swapFlag
	target := m.h0
	if m.swapFlag {
		target = m.h1
	}

	if m.parallel {
		m.segmentRangeParallel(data, fgData, target)
	} else {
		m.segmentRange(data, fgData, target, 0, m.h*m.w)
	}

	return fg
}

func (m *Model) segmentRangeParallel(data, fgData, target []uint8) {
	runParallel(m.h*m.w, m.workers, func(lo, hi int) {
		m.segmentRange(data, fgData, target, lo, hi)
	})
}

func (m *Model) segmentRange(data, fgData, target []uint8, lo, hi int) {
	for i := lo; i < hi; i++ {
		px := data[i*3 : i*3+3]

		counter := m.kappa - 1
		if l1Dist(px, m.h0[i*3:i*3+3]) > m.threshold {
			counter = m.kappa
		}
		if l1Dist(px, m.h1[i*3:i*3+3]) <= m.threshold {
			counter--
		}

		if counter > 0 {
			row := m.samples[i*m.n*3 : i*m.n*3+m.n*3]
			for k := 0; k < m.n && counter > 0; k++ {
				s := row[k*3 : k*3+3]
				if l1Dist(px, s) <= m.threshold {
					counter--
					swapPixel(s, target[i*3:i*3+3])
				}
			}
		}

		if counter > 0 {
			fgData[i] = ForegroundLabel
		} else {
			fgData[i] = BackgroundLabel
		}
	}
}

// Update sparsely rewrites background samples using pixels marked as
// background (zero) in updateMask, realizing ViBe's ~1/phi per-pixel update
// probability and its spatial propagation of stable samples to a random
// 1-D neighbor. This is always sequential: writes to i+delta cross pixel
// boundaries and are not safe to run concurrently with writes to i.
func (m *Model) Update(frame, updateMask gocv.Mat) {
	data := m.checkFrame(frame, "update")
	if updateMask.Empty() {
		panic("vibe: update mask is empty")
	}
	if updateMask.Rows() != m.h || updateMask.Cols() != m.w {
		panic(fmt.Sprintf("vibe: update mask dims %dx%d != model %dx%d", updateMask.Rows(), updateMask.Cols(), m.h, m.w))
	}
	if !updateMask.IsContinuous() {
		panic("vibe: update mask is not contiguous")
	}
	maskData, err := updateMask.DataPtrUint8()
	if err != nil {
		panic(fmt.Sprintf("vibe: update mask buffer unavailable: %v", err))
	}

	for y := 0; y < m.h; y++ {
		propagate := y > 0 && y < m.h-1
		m.updateRow(data, maskData, y, propagate)
	}

	m.updateEdgeColumns(data, maskData)
}

// updateEdgeColumns refreshes the first and last column of every row with a
// single-cell write, no neighbor propagation: updateRow's jump-table walk
// never lands on x==0 or x==m.w-1 (its first step is at least m.jump[shift]
// >= 1, and it stops strictly before m.w-1), so without this pass the edge
// columns' samples would only ever be seeded once and never refreshed.
func (m *Model) updateEdgeColumns(data, maskData []uint8) {
	for y := 0; y < m.h; y++ {
		m.updateSingleCell(data, maskData, y, 0)
		m.updateSingleCell(data, maskData, y, m.w-1)
	}
}

func (m *Model) updateSingleCell(data, maskData []uint8, y, x int) {
	i := y*m.w + x
	if maskData[i] != BackgroundLabel {
		return
	}
	slot := m.replace[m.rng.Intn(len(m.replace))]
	px := data[i*3 : i*3+3]
	m.writeSample(i, slot, px)
}

func (m *Model) updateRow(data, maskData []uint8, y int, propagate bool) {
	shift := m.rng.Intn(m.w)
	x := m.jump[shift]

	for x < m.w-1 {
		slot := m.replace[shift]
		delta := m.neighbor[shift]
		i := y*m.w + x

		if maskData[i] == BackgroundLabel {
			px := data[i*3 : i*3+3]
			m.writeSample(i, slot, px)

			if propagate {
				nx := x + delta
				if nx >= 0 && nx < m.w {
					m.writeSample(i+delta, slot, px)
				}
			}
		}

		shift++
		if shift >= len(m.jump) {
			shift = 0
		}
		x += m.jump[shift]
	}
}

func (m *Model) writeSample(i, slot int, px []uint8) {
	if slot < 2 {
		hist := m.h0
		if slot == 1 {
			hist = m.h1
		}
		copy(hist[i*3:i*3+3], px)
		return
	}
	k := slot - 2
	off := i*m.n*3 + k*3
	copy(m.samples[off:off+3], px)
}

func (m *Model) seed(data []uint8) {
	npix := m.h * m.w
	copy(m.h0, data[:npix*3])
	copy(m.h1, data[:npix*3])

	for i := 0; i < npix; i++ {
		px := data[i*3 : i*3+3]
		row := m.samples[i*m.n*3 : i*m.n*3+m.n*3]
		for k := 0; k < m.n; k++ {
			s := row[k*3 : k*3+3]
			for c := 0; c < 3; c++ {
				noise := m.rng.Intn(2*noiseHalfRange+1) - noiseHalfRange
				s[c] = clampUint8(int(px[c]) + noise)
			}
		}
	}

	for i := range m.jump {
		m.jump[i] = 1 + m.rng.Intn(2*m.phi)
		m.replace[i] = m.rng.Intn(m.n + 2)
		m.neighbor[i] = m.rng.Intn(3) - 1
	}

	m.initialized = true
}

func l1Dist(a, b []uint8) int {
	d0 := absDiff(a[0], b[0])
	d1 := absDiff(a[1], b[1])
	d2 := absDiff(a[2], b[2])
	return d0 + d1 + d2
}

func absDiff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}

func swapPixel(a, b []uint8) {
	a[0], b[0] = b[0], a[0]
	a[1], b[1] = b[1], a[1]
	a[2], b[2] = b[2], a[2]
}

func clampUint8(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
