package ik

import (
	"math"

	"github.com/nyx-engine/ewbik/ikmath"
)

// DefaultDampening is the per-iteration rotation limit applied to every
// non-root bone unless overridden: 0.20944 rad, 12 degrees.
const DefaultDampening = 0.20944

// Bone is a node in the shadow skeleton: a local pose, cached global pose,
// parent/children links into the arena owned by Modifier, an optional
// Effector (present iff the bone is pinned), an optional constraint, and
// the per-bone dampening state the segment solve step consumes.
type Bone struct {
	Id BoneId

	Parent   *Bone
	Children []*Bone

	Local ikmath.Transform3D

	global      ikmath.Transform3D
	globalDirty bool

	Effector   *Effector
	Constraint ConstraintHook

	Dampening     float64
	CosHalfDampen float64

	// LastMSD is the best-so-far weighted mean squared deviation this
	// bone's segment achieved on a prior solve step; the monotonicity
	// gate in Segment.UpdateOptimalRotation compares against it.
	LastMSD float64
}

// NewBone constructs a bone with no parent, default (non-root) dampening,
// and a +Inf LastMSD, per the monotonicity-gate invariant. Callers wire
// Parent/Children themselves when assembling the shadow skeleton, since
// the arena (map[BoneId]*Bone) is built in a single pass from host
// topology and parent bones may not exist yet when a child is allocated.
func NewBone(id BoneId) *Bone {
	b := &Bone{
		Id:         id,
		Constraint: NoConstraint{},
		LastMSD:    math.Inf(1),
	}
	b.SetDampening(DefaultDampening)
	return b
}

// SetDampening sets the bone's per-iteration rotation limit and refreshes
// the cached half-angle cosine the clamp step reads.
func (b *Bone) SetDampening(rad float64) {
	b.Dampening = rad
	b.CosHalfDampen = math.Cos(rad / 2)
}

// Global returns the bone's cached global transform, recomputing it from
// the parent's (already-fresh, by traversal order) global if dirty.
func (b *Bone) Global() ikmath.Transform3D {
	if b.globalDirty {
		if b.Parent != nil {
			b.global = b.Parent.Global().Compose(b.Local)
		} else {
			b.global = b.Local
		}
		b.globalDirty = false
	}
	return b.global
}

// SetLocal sets the bone's local transform and marks its global (and its
// descendants') stale.
func (b *Bone) SetLocal(t ikmath.Transform3D) {
	b.Local = t
	b.markDirty()
}

// SetGlobal sets the bone's global transform directly, deriving the local
// transform relative to the parent's current global (identity parent for
// a root bone), and marks descendants stale.
func (b *Bone) SetGlobal(t ikmath.Transform3D) {
	b.global = t
	b.globalDirty = false
	if b.Parent != nil {
		b.Local = t.RelativeTo(b.Parent.Global())
	} else {
		b.Local = t
	}
	for _, c := range b.Children {
		c.markDirty()
	}
}

func (b *Bone) markDirty() {
	if b.globalDirty {
		return
	}
	b.globalDirty = true
	for _, c := range b.Children {
		c.markDirty()
	}
}

// RotateLocalWithGlobal composes q onto the bone's global rotation (q
// applied in world space) and re-derives the local transform from the
// result — the operation the segment solve step applies per QCP pass.
func (b *Bone) RotateLocalWithGlobal(q ikmath.Quat) {
	g := b.Global()
	g.Rotation = q.Mul(g.Rotation)
	b.SetGlobal(g)
}

// ToGlobal transforms a point from this bone's local space to the
// skeleton's global space.
func (b *Bone) ToGlobal(v ikmath.Vec3) ikmath.Vec3 {
	return b.Global().ToGlobal(v)
}

// ToLocal transforms a point from the skeleton's global space into this
// bone's local space.
func (b *Bone) ToLocal(v ikmath.Vec3) ikmath.Vec3 {
	return b.Global().ToLocal(v)
}

// CreateEffector attaches a freshly constructed Effector pinned to this
// bone and returns it. A bone may hold at most one effector; calling this
// again replaces the prior one.
func (b *Bone) CreateEffector() *Effector {
	eff := newEffector(b)
	b.Effector = eff
	return eff
}

// SetInitialPose copies the host's current local pose for hostId into the
// bone's shadow local transform. Called once per solve, before iteration,
// for every bone in the shadow skeleton.
func (b *Bone) SetInitialPose(host Host, hostId BoneId) {
	b.SetLocal(host.LocalPose(hostId))
}

// SetSkeletonBonePose writes the shadow local pose back to the host,
// blended toward the host's current pose by strength (0 leaves the host
// pose untouched, 1 fully adopts the shadow result).
func (b *Bone) SetSkeletonBonePose(host Host, hostId BoneId, strength float64) {
	host.SetLocalPoseOverride(hostId, b.Local, strength, false)
}

// resetMSD restores the +Inf monotonicity-gate baseline, used when a
// non-finite input forces this bone's solve step to be skipped for the
// current tick.
func (b *Bone) resetMSD() {
	b.LastMSD = math.Inf(1)
}
