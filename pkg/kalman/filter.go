// Package kalman implements a linear Gaussian (Kalman) filter over dense
// gonum matrices: a predict step advances the state through a linear
// transition plus control input, and an update step folds in a linear
// measurement.
package kalman

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Filter is a linear Kalman filter carrying state x, covariance P, and the
// fixed system matrices F (transition), B (control), Q (process noise), H
// (observation) and R (observation noise). Dimensions are whatever the
// caller's matrices agree on; TrackedBox instantiates one with D=7, M=4,
// C=2.
type Filter struct {
	x *mat.VecDense
	p *mat.Dense

	f *mat.Dense
	b *mat.Dense
	q *mat.Dense
	h *mat.Dense
	r *mat.Dense

	identity *mat.Dense
}

// New constructs a Filter. b may be nil if the system has no control input.
func New(x0 *mat.VecDense, p0, f, b, q, h, r *mat.Dense) *Filter {
	d, _ := f.Dims()
	id := mat.NewDense(d, d, nil)
	for i := 0; i < d; i++ {
		id.Set(i, i, 1)
	}
	return &Filter{
		x:        x0,
		p:        p0,
		f:        f,
		b:        b,
		q:        q,
		h:        h,
		r:        r,
		identity: id,
	}
}

// State returns the current state estimate.
func (kf *Filter) State() *mat.VecDense { return kf.x }

// Cov returns the current state covariance.
func (kf *Filter) Cov() *mat.Dense { return kf.p }

// SetState overwrites the state estimate directly, used at track creation
// to seed the filter from an initial measurement.
func (kf *Filter) SetState(x *mat.VecDense) { kf.x = x }

// SetCov overwrites the state covariance directly.
func (kf *Filter) SetCov(p *mat.Dense) { kf.p = p }

// Predict advances the filter one step: x <- F*x + B*u, P <- F*P*F^T + Q.
// u may be nil when the system has no control input for this step.
func (kf *Filter) Predict(u *mat.VecDense) *mat.VecDense {
	var xNext mat.VecDense
	xNext.MulVec(kf.f, kf.x)
	if kf.b != nil && u != nil {
		var bu mat.VecDense
		bu.MulVec(kf.b, u)
		xNext.AddVec(&xNext, &bu)
	}
	kf.x = &xNext

	var fp mat.Dense
	fp.Mul(kf.f, kf.p)
	var pNext mat.Dense
	pNext.Mul(&fp, kf.f.T())
	pNext.Add(&pNext, kf.q)
	kf.p = &pNext

	return kf.x
}

// Update folds measurement z into the filter: K <- P*H^T*(H*P*H^T+R)^-1,
// x <- x + K*(z-H*x), P <- (I-K*H)*P. The innovation covariance S=H*P*H^T+R
// is assumed positive-definite (guaranteed by a positive-definite R); if it
// turns out singular that's a programmer error, not a runtime condition the
// filter can recover from, so Update panics rather than returning an error.
func (kf *Filter) Update(z *mat.VecDense) *mat.VecDense {
	var hx mat.VecDense
	hx.MulVec(kf.h, kf.x)
	var innovation mat.VecDense
	innovation.SubVec(z, &hx)

	var hp mat.Dense
	hp.Mul(kf.h, kf.p)
	var s mat.Dense
	s.Mul(&hp, kf.h.T())
	s.Add(&s, kf.r)

	var sInv mat.Dense
	if err := sInv.Inverse(&s); err != nil {
		panic(fmt.Sprintf("kalman: singular innovation covariance: %v", err))
	}

	var pht mat.Dense
	pht.Mul(kf.p, kf.h.T())
	var k mat.Dense
	k.Mul(&pht, &sInv)

	var ky mat.VecDense
	ky.MulVec(&k, &innovation)
	var xNext mat.VecDense
	xNext.AddVec(kf.x, &ky)
	kf.x = &xNext

	var kh mat.Dense
	kh.Mul(&k, kf.h)
	var imkh mat.Dense
	imkh.Sub(kf.identity, &kh)
	var pNext mat.Dense
	pNext.Mul(&imkh, kf.p)
	kf.p = &pNext

	return kf.x
}
