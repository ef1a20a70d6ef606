package l3wrist

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrSingularInnovation is returned by Update when the innovation
// covariance cannot be inverted.
var ErrSingularInnovation = errors.New("l3wrist: singular innovation covariance")

// Kalman is a constant-velocity filter over the state [x, y, vx, vy] with a
// position-only measurement.
type Kalman struct {
	x *mat.VecDense // state
	p *mat.Dense    // state covariance

	f *mat.Dense // transition
	q *mat.Dense // process noise
	h *mat.Dense // measurement model
	r *mat.Dense // measurement noise

	p0 float64
}

// NewKalman builds a filter at the origin with covariance p0*I.
func NewKalman(dt, processNoise, measurementNoise, p0 float64) *Kalman {
	k := &Kalman{
		x: mat.NewVecDense(4, nil),
		f: mat.NewDense(4, 4, []float64{
			1, 0, dt, 0,
			0, 1, 0, dt,
			0, 0, 1, 0,
			0, 0, 0, 1,
		}),
		q: diag(4, processNoise),
		h: mat.NewDense(2, 4, []float64{
			1, 0, 0, 0,
			0, 1, 0, 0,
		}),
		r:  diag(2, measurementNoise),
		p0: p0,
	}
	k.p = diag(4, p0)
	return k
}

func diag(n int, v float64) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, v)
	}
	return m
}

// SetState overwrites the state vector and restores the initial covariance.
func (k *Kalman) SetState(x, y, vx, vy float64) {
	k.x = mat.NewVecDense(4, []float64{x, y, vx, vy})
	k.p = diag(4, k.p0)
}

// Predict advances one step: x = F x, P = F P Fᵀ + Q.
func (k *Kalman) Predict() {
	var x mat.VecDense
	x.MulVec(k.f, k.x)
	k.x = &x

	var p mat.Dense
	p.Product(k.f, k.p, k.f.T())
	p.Add(&p, k.q)
	k.p = &p
}

// Update corrects the state with a position measurement.
func (k *Kalman) Update(zx, zy float64) error {
	var s mat.Dense
	s.Product(k.h, k.p, k.h.T())
	s.Add(&s, k.r)

	var sInv mat.Dense
	if err := sInv.Inverse(&s); err != nil {
		return ErrSingularInnovation
	}

	var gain mat.Dense
	gain.Product(k.p, k.h.T(), &sInv)

	var hx mat.VecDense
	hx.MulVec(k.h, k.x)
	innovation := mat.NewVecDense(2, []float64{zx - hx.AtVec(0), zy - hx.AtVec(1)})

	var correction mat.VecDense
	correction.MulVec(&gain, innovation)
	var x mat.VecDense
	x.AddVec(k.x, &correction)
	k.x = &x

	var kh mat.Dense
	kh.Mul(&gain, k.h)
	var ikh mat.Dense
	ikh.Sub(diag(4, 1), &kh)
	var p mat.Dense
	p.Mul(&ikh, k.p)
	k.p = &p
	return nil
}

// State returns the current state vector.
func (k *Kalman) State() (x, y, vx, vy float64) {
	return k.x.AtVec(0), k.x.AtVec(1), k.x.AtVec(2), k.x.AtVec(3)
}

// Covariance returns P in row-major order.
func (k *Kalman) Covariance() [16]float64 {
	var out [16]float64
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			out[i*4+j] = k.p.At(i, j)
		}
	}
	return out
}

// finite reports whether the state vector and covariance diagonal are all
// finite.
func (k *Kalman) finite() bool {
	for i := 0; i < 4; i++ {
		if !isFinite(k.x.AtVec(i)) || !isFinite(k.p.At(i, i)) {
			return false
		}
	}
	return true
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
