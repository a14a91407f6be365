package ik

import "github.com/nyx-engine/ewbik/ikmath"

// ConstraintHook is the joint-limit capability set a bone's constraint
// must provide. Concrete limit geometries (cones, twist ranges) are
// external collaborators; the core calls only these four methods.
type ConstraintHook interface {
	IsOrientationallyConstrained() bool
	IsAxiallyConstrained() bool

	// SnapToOrientation pulls local, the bone's local rotation, back
	// inside the constraint's orientation limit if it has strayed past
	// it, respecting the same damp/cosHalfDamp clamp the bone's last QCP
	// step was subject to.
	SnapToOrientation(local *ikmath.Quat, damp, cosHalfDamp float64)

	// SnapToTwist pulls local back inside the constraint's twist range
	// about the bone's own axis.
	SnapToTwist(local *ikmath.Quat, damp, cosHalfDamp float64)
}

// NoConstraint is the zero-value ConstraintHook: both predicates answer
// false and both snap methods are no-ops, so a Bone with no constraint
// never needs a nil check in Segment's solve step.
type NoConstraint struct{}

func (NoConstraint) IsOrientationallyConstrained() bool { return false }
func (NoConstraint) IsAxiallyConstrained() bool          { return false }
func (NoConstraint) SnapToOrientation(*ikmath.Quat, float64, float64) {}
func (NoConstraint) SnapToTwist(*ikmath.Quat, float64, float64)       {}
