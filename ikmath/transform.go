package ikmath

// Transform3D is a rigid transform: rotation about the origin followed by
// a translation. Bones never scale or shear, so this intentionally omits
// the scale component the teacher's GPU-facing Transform carries.
type Transform3D struct {
	Rotation Quat
	Origin   Vec3
}

// IdentityTransform is the transform with no rotation and no translation.
var IdentityTransform = Transform3D{Rotation: QuatIdentity()}

// ToGlobal maps a point expressed in this transform's local space into
// the space it is relative to.
func (t Transform3D) ToGlobal(localPoint Vec3) Vec3 {
	return t.Rotation.Xform(localPoint).Add(t.Origin)
}

// ToLocal maps a point expressed in the space t is relative to back into
// t's local space; the inverse of ToGlobal.
func (t Transform3D) ToLocal(globalPoint Vec3) Vec3 {
	return t.Rotation.Inverse().Xform(globalPoint.Sub(t.Origin))
}

// XformDirection rotates (but does not translate) dir — for headings and
// axis directions, which have no origin.
func (t Transform3D) XformDirection(dir Vec3) Vec3 {
	return t.Rotation.Xform(dir)
}

// Compose returns the transform equivalent to first applying o, then t —
// i.e. o expressed in t's parent space when t is o's parent frame.
func (t Transform3D) Compose(o Transform3D) Transform3D {
	return Transform3D{
		Rotation: t.Rotation.Mul(o.Rotation),
		Origin:   t.Rotation.Xform(o.Origin).Add(t.Origin),
	}
}

// Inverse returns the transform that maps t's global space back to local space.
func (t Transform3D) Inverse() Transform3D {
	invRot := t.Rotation.Inverse()
	return Transform3D{
		Rotation: invRot,
		Origin:   invRot.Xform(t.Origin.Negate()),
	}
}

// RelativeTo expresses t in the coordinate frame of parent, i.e.
// parent.Compose(result) == t.
func (t Transform3D) RelativeTo(parent Transform3D) Transform3D {
	return parent.Inverse().Compose(t)
}

// Lerp blends between t and o's origins and slerps their rotations by
// weight in [0, 1]. Used to apply a Modifier's blend strength to a solved
// bone pose without fully overwriting the host's current rotation.
func (t Transform3D) Lerp(o Transform3D, weight float64) Transform3D {
	return Transform3D{
		Rotation: t.Rotation.Slerp(o.Rotation, weight),
		Origin:   t.Origin.Add(o.Origin.Sub(t.Origin).Scale(weight)),
	}
}
