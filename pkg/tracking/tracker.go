package tracking

import (
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/Nullkooland/Falling-Object-Detection/pkg/assignment"
)

// Default tuning constants, matching the SORT tracker's usual defaults.
const (
	DefaultMaxBBoxAge                = 2
	DefaultMinBBoxHitStreak          = 3
	DefaultMaxTrajectoryAge          = 15
	DefaultMinTrajectoryNumSamples   = 16
	DefaultMinTrajectoryFallDistance = 128.0
	DefaultIoUThreshold              = 0.25
	DefaultDt                        = 1.0
)

// biasAX/biasAY is the constant per-frame acceleration bias fed to every
// track's predict step: a little downward gravity, a little x-drift.
const (
	biasAX = 0.05
	biasAY = 0.7
)

// EndCallback is invoked synchronously from within Tracker.Update for every
// trajectory that ends and qualifies as a falling object. It must not
// retain trajectory beyond the call: the tracker releases it on return.
type EndCallback func(tag int64, trajectory *Trajectory)

// Params configures a Tracker's lifecycle thresholds. Zero values fall back
// to the package defaults.
type Params struct {
	MaxBBoxAge                int
	MinBBoxHitStreak          int
	MaxTrajectoryAge          int
	MinTrajectoryNumSamples   int
	MinTrajectoryFallDistance float64
	IoUThreshold              float64
	Dt                        float64
}

func (p Params) withDefaults() Params {
	if p.MaxBBoxAge == 0 {
		p.MaxBBoxAge = DefaultMaxBBoxAge
	}
	if p.MinBBoxHitStreak == 0 {
		p.MinBBoxHitStreak = DefaultMinBBoxHitStreak
	}
	if p.MaxTrajectoryAge == 0 {
		p.MaxTrajectoryAge = DefaultMaxTrajectoryAge
	}
	if p.MinTrajectoryNumSamples == 0 {
		p.MinTrajectoryNumSamples = DefaultMinTrajectoryNumSamples
	}
	if p.MinTrajectoryFallDistance == 0 {
		p.MinTrajectoryFallDistance = DefaultMinTrajectoryFallDistance
	}
	if p.IoUThreshold == 0 {
		p.IoUThreshold = DefaultIoUThreshold
	}
	if p.Dt == 0 {
		p.Dt = DefaultDt
	}
	return p
}

// Tracker is a SORT-style multi-object tracker: predicted track state is
// associated to per-frame detections via IoU-maximizing Hungarian
// assignment, and confirmed tracks roll their samples up into Trajectory
// accumulators the caller is notified about via EndCallback.
type Tracker struct {
	params Params

	tracks       map[int64]*TrackedBox
	trajectories map[int64]*Trajectory

	tagCount int64

	solver *assignment.Solver

	onEnded EndCallback

	// scratch, reused across calls to avoid reallocating every frame.
	predictedTags  []int64
	predictedRects []Rect
}

// New constructs a Tracker. onEnded may be nil, in which case qualifying
// trajectories are simply discarded.
func New(params Params, onEnded EndCallback) *Tracker {
	return &Tracker{
		params:       params.withDefaults(),
		tracks:       make(map[int64]*TrackedBox),
		trajectories: make(map[int64]*Trajectory),
		solver:       assignment.New(),
		onEnded:      onEnded,
	}
}

func (t *Tracker) nextTag() int64 {
	tag := t.tagCount
	t.tagCount++
	return tag
}

// Update runs one frame of tracking: predict existing tracks, associate
// them to detections, expire stale tracks, spawn tracks for unmatched
// detections, then roll confirmed tracks into trajectories and sweep
// trajectories that have gone stale. frame is cloned into any trajectory
// created this call; Update never retains frame itself.
func (t *Tracker) Update(detections []Rect, frame ClonedFrame, timestamp time.Time) {
	t.updateTracks(detections)
	t.updateTrajectories(frame, timestamp)
}

func (t *Tracker) updateTracks(detections []Rect) {
	if len(t.tracks) == 0 {
		for _, d := range detections {
			t.tracks[t.nextTag()] = NewTrackedBox(d, t.params.Dt)
		}
		return
	}

	t.predictedTags = t.predictedTags[:0]
	t.predictedRects = t.predictedRects[:0]
	for tag, track := range t.tracks {
		t.predictedTags = append(t.predictedTags, tag)
		t.predictedRects = append(t.predictedRects, track.Predict(Velocity{VX: biasAX, VY: biasAY}))
	}

	// With no detections there is nothing to associate (and gonum cannot
	// build an m x 0 matrix): every track goes unmatched.
	var iou *mat.Dense
	var matches, reverse []int
	if len(detections) > 0 {
		iou = buildIoUCostMatrix(t.predictedRects, detections)
		matches, reverse, _ = t.solver.Solve(iou, true)
	} else {
		matches = make([]int, len(t.predictedRects))
		for i := range matches {
			matches[i] = -1
		}
	}

	for i, j := range matches {
		tag := t.predictedTags[i]
		track := t.tracks[tag]

		if j != -1 {
			if iou.At(i, j) > t.params.IoUThreshold {
				track.Update(detections[j])
				continue
			}
			reverse[j] = -1
		}

		if !t.canKeep(track) {
			delete(t.tracks, tag)
			if trajectory, ok := t.trajectories[tag]; ok {
				trajectory.ForceEnd(t.params.MaxTrajectoryAge)
			}
		}
	}

	for j, i := range reverse {
		if i == -1 {
			t.tracks[t.nextTag()] = NewTrackedBox(detections[j], t.params.Dt)
		}
	}
}

func (t *Tracker) updateTrajectories(frame ClonedFrame, timestamp time.Time) {
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	for tag, track := range t.tracks {
		if !t.canPick(track) {
			continue
		}

		trajectory, ok := t.trajectories[tag]
		if !ok {
			trajectory = NewTrajectory(frame)
			t.trajectories[tag] = trajectory
		}
		trajectory.Add(track.Rect(), track.Velocity(), timestamp)
	}

	for tag, trajectory := range t.trajectories {
		if t.isEnded(trajectory) {
			if t.isFallingObjectTrajectory(trajectory) && t.onEnded != nil {
				t.onEnded(tag, trajectory)
			}
			trajectory.Release()
			delete(t.trajectories, tag)
			continue
		}
		trajectory.IncrementAge()
	}
}

// Clear drops all tracks and trajectories without firing callbacks.
func (t *Tracker) Clear() {
	for _, trajectory := range t.trajectories {
		trajectory.Release()
	}
	t.tracks = make(map[int64]*TrackedBox)
	t.trajectories = make(map[int64]*Trajectory)
}

// Empty reports whether the tracker currently holds no trajectories.
func (t *Tracker) Empty() bool { return len(t.trajectories) == 0 }

// NumTracks returns the number of live tracks, for metrics.
func (t *Tracker) NumTracks() int { return len(t.tracks) }

// NumTrajectories returns the number of in-flight trajectories, for metrics.
func (t *Tracker) NumTrajectories() int { return len(t.trajectories) }

func (t *Tracker) canKeep(track *TrackedBox) bool {
	return track.Age() <= t.params.MaxBBoxAge
}

func (t *Tracker) canPick(track *TrackedBox) bool {
	return track.HitStreak() >= t.params.MinBBoxHitStreak
}

func (t *Tracker) isEnded(trajectory *Trajectory) bool {
	return trajectory.Age() > t.params.MaxTrajectoryAge
}

func (t *Tracker) isFallingObjectTrajectory(trajectory *Trajectory) bool {
	if trajectory.NumSamples() < t.params.MinTrajectoryNumSamples {
		return false
	}
	if trajectory.GetRangeY() < t.params.MinTrajectoryFallDistance {
		return false
	}
	return true
}

// buildIoUCostMatrix computes IoU(predicted[i], detected[j]) for every pair,
// 0 where the boxes don't overlap.
func buildIoUCostMatrix(predicted, detected []Rect) *mat.Dense {
	m := len(predicted)
	n := len(detected)
	cost := mat.NewDense(m, n, nil)

	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			cost.Set(i, j, iou(predicted[i], detected[j]))
		}
	}
	return cost
}

func iou(a, b Rect) float64 {
	left := max(a.X, b.X)
	top := max(a.Y, b.Y)
	right := min(a.X+a.W, b.X+b.W)
	bottom := min(a.Y+a.H, b.Y+b.H)

	iw := right - left
	ih := bottom - top
	if iw <= 0 || ih <= 0 {
		return 0
	}

	areaI := iw * ih
	areaA := a.W * a.H
	areaB := b.W * b.H

	union := areaA + areaB - areaI
	if union <= 0 {
		return 0
	}
	return areaI / union
}
