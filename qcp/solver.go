// Package qcp implements the Quaternion Characteristic Polynomial method
// for finding the optimal rotation (and, optionally, translation) that
// superposes one weighted point cloud onto another with minimal RMSD.
// It is the numerical core every bone solve in package ik is built on.
package qcp

import (
	"math"

	"github.com/nyx-engine/ewbik/ikmath"
)

// DefaultEvecPrec is the minimum eigenvector-column norm accepted before
// falling back to the next adjoint-matrix column.
const DefaultEvecPrec = 1e-6

// DefaultEvalPrec is the Newton-iteration convergence tolerance, relative
// to the current eigenvalue estimate.
const DefaultEvalPrec = 1e-11

// DefaultMaxIterations bounds the Newton iteration used to refine the
// largest eigenvalue of the key 4x4 matrix.
const DefaultMaxIterations = 50

// Solver computes the weighted-superposition rotation between two point
// clouds. A Solver is reusable across calls: each WeightedSuperpose call
// overwrites its internal scratch state, so one Solver per concurrent
// caller is all that's needed (the package performs no pooling or
// allocation of its own beyond that single struct).
type Solver struct {
	EvecPrec      float64
	EvalPrec      float64
	MaxIterations int

	// inner-product matrix terms, set by innerProduct.
	sxx, sxy, sxz float64
	syx, syy, syz float64
	szx, szy, szz float64

	sxzpszx, syzpszy, sxypsyx float64
	syzmszy, sxzmszx, sxymsyx float64
	sxxpsyy, sxxmsyy          float64

	e0         float64
	eigenV     float64
	wsum       float64
	rmsd       float64
	lastMove   []ikmath.Vec3
	lastTarget []ikmath.Vec3
}

// NewSolver returns a Solver configured with the package defaults.
func NewSolver() *Solver {
	return &Solver{
		EvecPrec:      DefaultEvecPrec,
		EvalPrec:      DefaultEvalPrec,
		MaxIterations: DefaultMaxIterations,
	}
}

// WeightedSuperpose finds the rotation (and, if translate is true, the
// translation) that best maps moved onto target in a weighted
// least-squares sense. moved, target, and weights must be equal length
// and non-empty. When translate is true, both clouds are recentred on
// their weighted centroids first and the translation returned is
// targetCentroid - movedCentroid; the rotation result in that case maps
// the recentred clouds, not the originals.
//
// Callers that need the residual fit error should call RMSD after this
// returns; it reflects the most recent WeightedSuperpose call.
func (s *Solver) WeightedSuperpose(moved, target []ikmath.Vec3, weights []float64, translate bool) (ikmath.Quat, ikmath.Vec3, error) {
	if len(moved) != len(target) {
		return ikmath.QuatIdentity(), ikmath.Zero3, errMismatchedLengths
	}
	if len(moved) == 0 {
		return ikmath.QuatIdentity(), ikmath.Zero3, errEmptyInput
	}
	if weights != nil && len(weights) != len(moved) {
		return ikmath.QuatIdentity(), ikmath.Zero3, errMismatchedLengths
	}

	movedCopy := append(s.lastMove[:0], moved...)
	s.lastMove = movedCopy
	targetCopy := append(s.lastTarget[:0], target...)
	s.lastTarget = targetCopy

	var translation ikmath.Vec3
	s.wsum = 0

	if translate {
		movedCenter := weightedCentroid(movedCopy, weights, &s.wsum)
		s.wsum = 0
		targetCenter := weightedCentroid(targetCopy, weights, &s.wsum)
		translateInPlace(movedCopy, movedCenter.Negate())
		translateInPlace(targetCopy, targetCenter.Negate())
		translation = targetCenter.Sub(movedCenter)
	} else {
		if weights != nil {
			for _, w := range weights {
				s.wsum += w
			}
		} else {
			s.wsum = float64(len(movedCopy))
		}
	}
	if s.wsum == 0 {
		return ikmath.QuatIdentity(), ikmath.Zero3, errZeroTotalWeight
	}

	s.innerProduct(movedCopy, targetCopy, weights)
	rotation := s.calcRotation(movedCopy, targetCopy)
	return rotation, translation, nil
}

// RMSD returns the root-mean-square deviation of the most recent
// WeightedSuperpose call, computed via the same Newton-refined
// eigenvalue used for the rotation (for a single point pair, the
// distance left between the rotated point and its target).
func (s *Solver) RMSD() float64 {
	if len(s.lastMove) == 1 {
		return s.rmsd
	}
	s.calcRMSD(s.wsum)
	return s.rmsd
}

func weightedCentroid(points []ikmath.Vec3, weights []float64, wsum *float64) ikmath.Vec3 {
	var center ikmath.Vec3
	if weights != nil {
		for i, p := range points {
			center = center.Add(p.Scale(weights[i]))
			*wsum += weights[i]
		}
	} else {
		for _, p := range points {
			center = center.Add(p)
			*wsum++
		}
	}
	if *wsum == 0 {
		return ikmath.Zero3
	}
	return center.Scale(1.0 / *wsum)
}

func translateInPlace(points []ikmath.Vec3, delta ikmath.Vec3) {
	for i := range points {
		points[i] = points[i].Add(delta)
	}
}

func (s *Solver) innerProduct(coords1, coords2 []ikmath.Vec3, weights []float64) {
	s.sxx, s.sxy, s.sxz = 0, 0, 0
	s.syx, s.syy, s.syz = 0, 0, 0
	s.szx, s.szy, s.szz = 0, 0, 0

	var g1, g2 float64
	for i := range coords1 {
		c1, c2 := coords1[i], coords2[i]
		x1, y1, z1 := c1.X, c1.Y, c1.Z
		w := 1.0
		if weights != nil {
			w = weights[i]
		}
		x1, y1, z1 = x1*w, y1*w, z1*w
		g1 += x1*c1.X + y1*c1.Y + z1*c1.Z
		g2 += w * (c2.X*c2.X + c2.Y*c2.Y + c2.Z*c2.Z)

		s.sxx += x1 * c2.X
		s.sxy += x1 * c2.Y
		s.sxz += x1 * c2.Z

		s.syx += y1 * c2.X
		s.syy += y1 * c2.Y
		s.syz += y1 * c2.Z

		s.szx += z1 * c2.X
		s.szy += z1 * c2.Y
		s.szz += z1 * c2.Z
	}

	s.e0 = (g1 + g2) * 0.5

	s.sxzpszx = s.sxz + s.szx
	s.syzpszy = s.syz + s.szy
	s.sxypsyx = s.sxy + s.syx
	s.syzmszy = s.syz - s.szy
	s.sxzmszx = s.sxz - s.szx
	s.sxymsyx = s.sxy - s.syx
	s.sxxpsyy = s.sxx + s.syy
	s.sxxmsyy = s.sxx - s.syy
	s.eigenV = s.e0
}

// calcRMSD refines the largest eigenvalue via Newton iteration on the
// characteristic polynomial of the key matrix and derives RMSD from it.
func (s *Solver) calcRMSD(length float64) {
	if s.MaxIterations > 0 {
		sxx2, syy2, szz2 := s.sxx*s.sxx, s.syy*s.syy, s.szz*s.szz
		sxy2, syz2, sxz2 := s.sxy*s.sxy, s.syz*s.syz, s.sxz*s.sxz
		syx2, szy2, szx2 := s.syx*s.syx, s.szy*s.szy, s.szx*s.szx

		syzSzyMSyySzz2 := 2.0 * (s.syz*s.szy - s.syy*s.szz)
		sxx2Syy2Szz2Syz2Szy2 := syy2 + szz2 - sxx2 + syz2 + szy2

		c2 := -2.0 * (sxx2 + syy2 + szz2 + sxy2 + syx2 + sxz2 + szx2 + syz2 + szy2)
		c1 := 8.0 * (s.sxx*s.syz*s.szy + s.syy*s.szx*s.sxz + s.szz*s.sxy*s.syx -
			s.sxx*s.syy*s.szz - s.syz*s.szx*s.sxy - s.szy*s.syx*s.sxz)

		sxy2Sxz2Syx2Szx2 := sxy2 + sxz2 - syx2 - szx2

		c0 := sxy2Sxz2Syx2Szx2*sxy2Sxz2Syx2Szx2 +
			(sxx2Syy2Szz2Syz2Szy2+syzSzyMSyySzz2)*(sxx2Syy2Szz2Syz2Szy2-syzSzyMSyySzz2) +
			(-(s.sxzpszx)*(s.syzmszy)+(s.sxymsyx)*(s.sxxmsyy-s.szz))*(-(s.sxzmszx)*(s.syzpszy)+(s.sxymsyx)*(s.sxxmsyy+s.szz)) +
			(-(s.sxzpszx)*(s.syzpszy)-(s.sxypsyx)*(s.sxxpsyy-s.szz))*(-(s.sxzmszx)*(s.syzmszy)-(s.sxypsyx)*(s.sxxpsyy+s.szz)) +
			((s.sxypsyx)*(s.syzpszy)+(s.sxzpszx)*(s.sxxmsyy+s.szz))*(-(s.sxymsyx)*(s.syzmszy)+(s.sxzpszx)*(s.sxxpsyy+s.szz)) +
			((s.sxypsyx)*(s.syzmszy)+(s.sxzmszx)*(s.sxxmsyy-s.szz))*(-(s.sxymsyx)*(s.syzpszy)+(s.sxzmszx)*(s.sxxpsyy-s.szz))

		for i := 0; i < s.MaxIterations; i++ {
			oldg := s.eigenV
			y := 1 / s.eigenV
			y2 := y * y
			delta := (((y*c0+c1)*y+c2)*y2 + 1) / ((y*c1+2*c2)*y2*y + 4)
			s.eigenV -= delta

			if math.Abs(s.eigenV-oldg) < math.Abs(s.EvalPrec*s.eigenV) {
				break
			}
		}
	}

	if length == 0 {
		s.rmsd = 0
		return
	}
	s.rmsd = math.Sqrt(math.Abs(2.0 * (s.e0 - s.eigenV) / length))
}

// calcRotation recovers the optimal rotation quaternion from the
// refined eigenvalue, cascading through adjoint-matrix column fallbacks
// when the current one is numerically degenerate. moved/target are
// needed only for the n==1 shortest-arc special case.
func (s *Solver) calcRotation(moved, target []ikmath.Vec3) ikmath.Quat {
	if len(moved) == 1 {
		return s.singlePointRotation(moved[0], target[0])
	}

	s.calcRMSD(s.wsum)

	a11 := s.sxxpsyy + s.szz - s.eigenV
	a12 := s.syzmszy
	a13 := -s.sxzmszx
	a14 := s.sxymsyx
	a21 := s.syzmszy
	a22 := s.sxxmsyy - s.szz - s.eigenV
	a23 := s.sxypsyx
	a24 := s.sxzpszx
	a31 := a13
	a32 := a23
	a33 := s.syy - s.sxx - s.szz - s.eigenV
	a34 := s.syzpszy
	a41 := a14
	a42 := a24
	a43 := a34
	a44 := s.szz - s.sxxpsyy - s.eigenV

	a3344_4334 := a33*a44 - a43*a34
	a3244_4234 := a32*a44 - a42*a34
	a3243_4233 := a32*a43 - a42*a33
	a3143_4133 := a31*a43 - a41*a33
	a3144_4134 := a31*a44 - a41*a34
	a3142_4132 := a31*a42 - a41*a32

	q1 := a22*a3344_4334 - a23*a3244_4234 + a24*a3243_4233
	q2 := -a21*a3344_4334 + a23*a3144_4134 - a24*a3143_4133
	q3 := a21*a3244_4234 - a22*a3144_4134 + a24*a3142_4132
	q4 := -a21*a3243_4233 + a22*a3143_4133 - a23*a3142_4132
	qsqr := q1*q1 + q2*q2 + q3*q3 + q4*q4

	if qsqr < s.EvecPrec {
		q1 = a12*a3344_4334 - a13*a3244_4234 + a14*a3243_4233
		q2 = -a11*a3344_4334 + a13*a3144_4134 - a14*a3143_4133
		q3 = a11*a3244_4234 - a12*a3144_4134 + a14*a3142_4132
		q4 = -a11*a3243_4233 + a12*a3143_4133 - a13*a3142_4132
		qsqr = q1*q1 + q2*q2 + q3*q3 + q4*q4

		if qsqr < s.EvecPrec {
			a1324_1423 := a13*a24 - a14*a23
			a1224_1422 := a12*a24 - a14*a22
			a1223_1322 := a12*a23 - a13*a22
			a1124_1421 := a11*a24 - a14*a21
			a1123_1321 := a11*a23 - a13*a21
			a1122_1221 := a11*a22 - a12*a21

			q1 = a42*a1324_1423 - a43*a1224_1422 + a44*a1223_1322
			q2 = -a41*a1324_1423 + a43*a1124_1421 - a44*a1123_1321
			q3 = a41*a1224_1422 - a42*a1124_1421 + a44*a1122_1221
			q4 = -a41*a1223_1322 + a42*a1123_1321 - a43*a1122_1221
			qsqr = q1*q1 + q2*q2 + q3*q3 + q4*q4

			if qsqr < s.EvecPrec {
				q1 = a32*a1324_1423 - a33*a1224_1422 + a34*a1223_1322
				q2 = -a31*a1324_1423 + a33*a1124_1421 - a34*a1123_1321
				q3 = a31*a1224_1422 - a32*a1124_1421 + a34*a1122_1221
				q4 = -a31*a1223_1322 + a32*a1123_1321 - a33*a1122_1221
				qsqr = q1*q1 + q2*q2 + q3*q3 + q4*q4

				if qsqr < s.EvecPrec {
					return ikmath.QuatIdentity()
				}
			}
		}
	}

	min := q1
	if q2 < min {
		min = q2
	}
	if q3 < min {
		min = q3
	}
	if q4 < min {
		min = q4
	}

	q1m, q2m, q3m, q4m := q1/min, q2/min, q3/min, q4/min
	norm := math.Sqrt(q1m*q1m + q2m*q2m + q3m*q3m + q4m*q4m)
	return ikmath.Quat{W: q1m / norm, X: q2m / norm, Y: q3m / norm, Z: q4m / norm}.Normalized()
}

// singlePointRotation handles the degenerate n==1 case: QCP's quartic has
// no meaning for a single point pair, so the rotation is just the
// shortest arc from u to v, with an antipodal-vector special case.
func (s *Solver) singlePointRotation(u, v ikmath.Vec3) ikmath.Quat {
	s.rmsd = math.Abs(u.Length() - v.Length())

	normProduct := u.Length() * v.Length()
	if normProduct == 0 {
		return ikmath.QuatIdentity()
	}
	dot := u.Dot(v)
	if dot < (2.0e-15-1.0)*normProduct {
		w := u.Normalized()
		return ikmath.QuatFromAxisAngle(orthogonal(w), math.Pi)
	}

	q0 := math.Sqrt(0.5 * (1.0 + dot/normProduct))
	coeff := 1.0 / (2.0 * q0 * normProduct)
	q := u.Cross(v).Scale(coeff)
	return ikmath.Quat{W: q0, X: q.X, Y: q.Y, Z: q.Z}.Normalized()
}

// orthogonal returns an arbitrary unit vector perpendicular to unit
// vector w, used to pick a pi-rotation axis when u and v are antipodal.
func orthogonal(w ikmath.Vec3) ikmath.Vec3 {
	candidate := ikmath.Vec3{X: 1, Y: 0, Z: 0}
	if math.Abs(w.X) > 0.9 {
		candidate = ikmath.Vec3{X: 0, Y: 1, Z: 0}
	}
	return w.Cross(candidate).Normalized()
}
