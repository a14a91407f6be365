package ik

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nyx-engine/ewbik/ikmath"
)

func TestBone_GlobalComposesParentChain(t *testing.T) {
	root := NewBone(0)
	root.SetLocal(ikmath.Transform3D{Rotation: ikmath.QuatFromAxisAngle(ikmath.Vec3{Z: 1}, math.Pi/2), Origin: ikmath.Vec3{X: 1}})

	child := NewBone(1)
	child.Parent = root
	root.Children = append(root.Children, child)
	child.SetLocal(ikmath.Transform3D{Rotation: ikmath.QuatIdentity(), Origin: ikmath.Vec3{X: 1}})

	got := child.Global()
	want := root.Global().Compose(child.Local)
	assert.True(t, got.Origin.ApproxEqual(want.Origin, 1e-9))
	assert.True(t, got.Rotation.ApproxEqual(want.Rotation, 1e-9))
}

func TestBone_SetGlobalDerivesLocal(t *testing.T) {
	root := NewBone(0)
	root.SetLocal(ikmath.Transform3D{Rotation: ikmath.QuatIdentity(), Origin: ikmath.Vec3{X: 2}})

	child := NewBone(1)
	child.Parent = root
	root.Children = append(root.Children, child)

	target := ikmath.Transform3D{Rotation: ikmath.QuatFromAxisAngle(ikmath.Vec3{Y: 1}, 0.5), Origin: ikmath.Vec3{X: 5, Y: 1}}
	child.SetGlobal(target)

	got := root.Global().Compose(child.Local)
	assert.True(t, got.Origin.ApproxEqual(target.Origin, 1e-9))
	assert.True(t, got.Rotation.ApproxEqual(target.Rotation, 1e-9))
}

func TestBone_RotateLocalWithGlobal_AppliesInWorldFrame(t *testing.T) {
	b := NewBone(0)
	b.SetLocal(ikmath.IdentityTransform)

	q := ikmath.QuatFromAxisAngle(ikmath.Vec3{Z: 1}, math.Pi/2)
	b.RotateLocalWithGlobal(q)

	assert.True(t, b.Global().Rotation.ApproxEqual(q, 1e-9))
}

func TestBone_SetDampening_UpdatesCosHalfDampen(t *testing.T) {
	b := NewBone(0)
	b.SetDampening(math.Pi / 3)
	assert.InDelta(t, math.Cos(math.Pi/6), b.CosHalfDampen, 1e-9)
}

func TestBone_DirtyPropagatesToChildrenOnParentMove(t *testing.T) {
	root := NewBone(0)
	child := NewBone(1)
	child.Parent = root
	root.Children = append(root.Children, child)

	_ = child.Global() // force both caches fresh
	root.SetLocal(ikmath.Transform3D{Rotation: ikmath.QuatIdentity(), Origin: ikmath.Vec3{X: 9}})

	assert.True(t, child.Global().Origin.ApproxEqual(ikmath.Vec3{X: 9}, 1e-9))
}

func TestBone_CreateEffector_PinsToSelf(t *testing.T) {
	b := NewBone(0)
	eff := b.CreateEffector()
	assert.Same(t, b, eff.Tip)
	assert.Same(t, eff, b.Effector)
}
