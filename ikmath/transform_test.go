package ikmath

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransform3D_ToGlobalToLocalRoundTrip(t *testing.T) {
	tr := Transform3D{
		Rotation: QuatFromAxisAngle(Vec3{Y: 1}, math.Pi/3),
		Origin:   Vec3{X: 1, Y: 2, Z: 3},
	}
	p := Vec3{X: 4, Y: -1, Z: 0.5}
	global := tr.ToGlobal(p)
	local := tr.ToLocal(global)
	assert.True(t, local.ApproxEqual(p, 1e-9))
}

func TestTransform3D_ComposeThenRelativeToRecoversChild(t *testing.T) {
	parent := Transform3D{
		Rotation: QuatFromAxisAngle(Vec3{X: 1}, 0.4),
		Origin:   Vec3{X: 1},
	}
	child := Transform3D{
		Rotation: QuatFromAxisAngle(Vec3{Z: 1}, 0.9),
		Origin:   Vec3{Y: 2},
	}
	global := parent.Compose(child)
	recovered := global.RelativeTo(parent)
	assert.True(t, recovered.Origin.ApproxEqual(child.Origin, 1e-9))
	assert.True(t, recovered.Rotation.ApproxEqual(child.Rotation, 1e-9) ||
		recovered.Rotation.ApproxEqual(Quat{-child.Rotation.W, -child.Rotation.X, -child.Rotation.Y, -child.Rotation.Z}, 1e-9))
}

func TestTransform3D_LerpEndpoints(t *testing.T) {
	a := IdentityTransform
	b := Transform3D{Rotation: QuatFromAxisAngle(Vec3{X: 1}, 1.0), Origin: Vec3{X: 2}}

	assert.True(t, a.Lerp(b, 0).Origin.ApproxEqual(a.Origin, 1e-9))
	assert.True(t, a.Lerp(b, 1).Origin.ApproxEqual(b.Origin, 1e-9))
}
