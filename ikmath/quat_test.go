package ikmath

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuatFromAxisAngle_RotatesAsExpected(t *testing.T) {
	q := QuatFromAxisAngle(Vec3{Z: 1}, math.Pi/2)
	rotated := q.Xform(Vec3{X: 1})
	assert.InDelta(t, 0, rotated.X, 1e-9)
	assert.InDelta(t, 1, rotated.Y, 1e-9)
	assert.InDelta(t, 0, rotated.Z, 1e-9)
}

func TestQuat_InverseUndoesRotation(t *testing.T) {
	q := QuatFromAxisAngle(Vec3{X: 1, Y: 1, Z: 0}, 1.234)
	v := Vec3{X: 0.3, Y: -0.7, Z: 1.1}
	roundTrip := q.Inverse().Xform(q.Xform(v))
	assert.True(t, roundTrip.ApproxEqual(v, 1e-9))
}

func TestQuat_MulComposesRotations(t *testing.T) {
	a := QuatFromAxisAngle(Vec3{Z: 1}, math.Pi/2)
	b := QuatFromAxisAngle(Vec3{Z: 1}, math.Pi/2)
	combined := a.Mul(b)
	double := QuatFromAxisAngle(Vec3{Z: 1}, math.Pi)
	assert.True(t, combined.ApproxEqual(double, 1e-9) || combined.ApproxEqual(Quat{-double.W, -double.X, -double.Y, -double.Z}, 1e-9))
}

func TestQuat_SlerpEndpoints(t *testing.T) {
	a := QuatIdentity()
	b := QuatFromAxisAngle(Vec3{Y: 1}, math.Pi/2)

	assert.True(t, a.Slerp(b, 0).ApproxEqual(a, 1e-9))
	assert.True(t, a.Slerp(b, 1).ApproxEqual(b, 1e-9))
}

func TestQuat_ClampToAngle_NoOpWhenWithinLimit(t *testing.T) {
	q := QuatFromAxisAngle(Vec3{X: 1}, 0.1)
	clamped := q.ClampToAngle(0.5)
	assert.True(t, clamped.ApproxEqual(q, 1e-9))
}

func TestQuat_ClampToAngle_LimitsRotationMagnitude(t *testing.T) {
	q := QuatFromAxisAngle(Vec3{X: 1}, 1.5)
	clamped := q.ClampToAngle(0.2)
	assert.InDelta(t, 0.2, clamped.Angle(), 1e-6)
}

func TestQuat_AxisAngleRoundTrip(t *testing.T) {
	axis := Vec3{X: 1, Y: 2, Z: 3}.Normalized()
	q := QuatFromAxisAngle(axis, 0.77)
	assert.InDelta(t, 0.77, q.Angle(), 1e-9)
	assert.True(t, q.Axis().ApproxEqual(axis, 1e-9))
}
