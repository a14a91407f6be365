package ik

import "github.com/nyx-engine/ewbik/ikmath"

// Effector pins exactly one Bone (its tip) to a target. It resolves a
// goal transform each solve iteration and contributes a single antipodal
// heading pair to its segment's QCP fit — the "simplified version" that
// is the only live heading-generation path in the source this type is
// grounded on; the per-axis follow_x/y/z-gated variants it also exposes
// no longer gate heading count, but Segment still reads them to decide
// whether a tip is translation-only.
type Effector struct {
	Tip *Bone

	TargetNodePath        string
	TargetLocalTransform  ikmath.Transform3D
	UseTargetNodeRotation bool

	Priority     ikmath.Vec3
	Weight       float64
	DepthFalloff float64

	// Goal is the cached goal transform in the shadow skeleton's local
	// frame, recomputed by UpdateGoalTransform once per Modifier.Execute,
	// before the solve iterations run.
	Goal ikmath.Transform3D

	haveLastNode bool
	lastNode     ikmath.Transform3D
}

func newEffector(tip *Bone) *Effector {
	return &Effector{
		Tip:                  tip,
		TargetLocalTransform: ikmath.IdentityTransform,
		Priority:             ikmath.Vec3{X: 1, Y: 0, Z: 1},
		Weight:               1,
		DepthFalloff:         1,
	}
}

// FollowX reports whether the x priority axis is followed.
func (e *Effector) FollowX() bool { return e.Priority.X > 0 }

// FollowY reports whether the y priority axis is followed.
func (e *Effector) FollowY() bool { return e.Priority.Y > 0 }

// FollowZ reports whether the z priority axis is followed.
func (e *Effector) FollowZ() bool { return e.Priority.Z > 0 }

// IsTranslationOnly reports whether no priority axis is followed, i.e.
// this effector only cares about the tip's position, not its orientation.
func (e *Effector) IsTranslationOnly() bool {
	return !(e.FollowX() || e.FollowY() || e.FollowZ())
}

// NumHeadings is the number of heading-cloud slots this effector
// contributes: always 2, a single antipodal pair, per the resolved
// active heading-generation path.
func (e *Effector) NumHeadings() int { return 2 }

// UpdateGoalTransform recomputes Goal from the target node (if resolved)
// or the tip's current global pose otherwise, and reports whether the
// resolved world transform changed (beyond a small epsilon) since the
// last call — used by Modifier to short-circuit a tick where nothing
// moved.
func (e *Effector) UpdateGoalTransform(scene SceneGraph, skeletonGlobal ikmath.Transform3D) bool {
	node, ok := resolveNode(scene, e.TargetNodePath)
	if !ok {
		goal := e.Tip.Global().Compose(e.TargetLocalTransform)
		changed := !e.haveLastNode || !transformApproxEqual(goal, e.lastNode, 1e-6)
		e.Goal = goal
		e.lastNode = goal
		e.haveLastNode = true
		return changed
	}

	n := node.GlobalTransform()
	changed := !e.haveLastNode || !transformApproxEqual(n, e.lastNode, 1e-6)
	e.lastNode = n
	e.haveLastNode = true

	var goal ikmath.Transform3D
	if e.UseTargetNodeRotation {
		goal = skeletonGlobal.Inverse().Compose(n)
	} else {
		goal = ikmath.Transform3D{
			Rotation: ikmath.QuatIdentity(),
			Origin:   skeletonGlobal.ToLocal(n.Origin),
		}
	}
	e.Goal = e.TargetLocalTransform.Compose(goal)
	return changed
}

func resolveNode(scene SceneGraph, path string) (SpatialNode, bool) {
	if scene == nil || path == "" {
		return nil, false
	}
	return scene.Find(path)
}

func transformApproxEqual(a, b ikmath.Transform3D, eps float64) bool {
	return a.Origin.ApproxEqual(b.Origin, eps) && a.Rotation.ApproxEqual(b.Rotation, eps)
}

// WriteTargetHeadings writes this effector's antipodal target-heading
// pair into buf starting at *idx, advancing *idx by 2. forBone is the
// segment bone the headings are being generated relative to: when it is
// this effector's own tip, the heading is the goal's rotated weighted
// axis direction (translation cancels, since goal.ToGlobal(v)-goal.Origin
// reduces to goal.Rotation.Xform(v)); otherwise it is the offset from
// forBone's current global origin to the goal origin.
func (e *Effector) WriteTargetHeadings(buf []ikmath.Vec3, idx *int, forBone *Bone) {
	w := e.Weight
	var v ikmath.Vec3
	if forBone == e.Tip {
		v = e.Goal.Rotation.Xform(ikmath.Vec3{X: w, Y: w, Z: w})
	} else {
		v = e.Goal.Origin.Sub(forBone.Global().Origin)
	}
	buf[*idx] = v
	buf[*idx+1] = v.Negate()
	*idx += 2
}

// WriteTipHeadings writes this effector's antipodal tip-heading pair,
// symmetric to WriteTargetHeadings but built from the tip bone's actual
// current global transform rather than the goal.
func (e *Effector) WriteTipHeadings(buf []ikmath.Vec3, idx *int, forBone *Bone) {
	w := e.Weight
	var v ikmath.Vec3
	if forBone == e.Tip {
		v = e.Tip.Global().Rotation.Xform(ikmath.Vec3{X: w, Y: w, Z: w})
	} else {
		v = e.Tip.Global().Origin.Sub(forBone.Global().Origin)
	}
	buf[*idx] = v
	buf[*idx+1] = v.Negate()
	*idx += 2
}
