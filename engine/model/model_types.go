// Package model provides the concrete skeleton/bone pose buffer that the
// host animation system owns and the IK core reads and writes through the
// ik.Host interface.
package model

import (
	"github.com/nyx-engine/ewbik/ik"
	"github.com/nyx-engine/ewbik/ikmath"
)

// Bone is a single joint in a Skeleton: its parent/child topology and its
// current local pose, plus the transient blend-weighted override the IK
// core writes through each tick.
type Bone struct {
	// Name is the bone's identifier, used for by-name lookups (e.g. root
	// bone resolution, target bone resolution).
	Name string

	// ParentIndex is the index of the parent bone, or -1 for a root bone.
	ParentIndex int32

	// ChildIndices are the indices of this bone's direct children.
	ChildIndices []int32

	// LocalPose is the bone's transform relative to its parent, as driven
	// by the animation system (or by a persistent IK override).
	LocalPose ikmath.Transform3D

	overridePose       ikmath.Transform3D
	overrideWeight     float64
	overridePersistent bool
}

// Skeleton is a bone hierarchy. It implements ik.Host directly, so an
// ik.Modifier can drive it without any adapter type.
type Skeleton struct {
	// Bones is the flat array of all bones in the skeleton, indexed by
	// ik.BoneId.
	Bones []Bone

	// RootBoneIndices are the indices of bones with no parent.
	RootBoneIndices []int32

	// BoneNameToIndex maps bone names to their indices for O(1) lookup.
	BoneNameToIndex map[string]int32

	// WorldTransform is the skeleton's own placement in the scene.
	WorldTransform ikmath.Transform3D
}

// BoneSpec describes one bone when building a Skeleton with NewSkeleton.
type BoneSpec struct {
	Name        string
	ParentIndex int32
	LocalPose   ikmath.Transform3D
}

// NewSkeleton builds a Skeleton from a flat bone spec list. specs must be
// ordered so that a bone's parent always appears at a lower index, as is
// conventional for glTF/FBX-style bone arrays.
func NewSkeleton(specs []BoneSpec) *Skeleton {
	s := &Skeleton{
		Bones:           make([]Bone, len(specs)),
		BoneNameToIndex: make(map[string]int32, len(specs)),
	}
	for i, spec := range specs {
		s.Bones[i] = Bone{
			Name:        spec.Name,
			ParentIndex: spec.ParentIndex,
			LocalPose:   spec.LocalPose,
		}
		s.BoneNameToIndex[spec.Name] = int32(i)
		if spec.ParentIndex == -1 {
			s.RootBoneIndices = append(s.RootBoneIndices, int32(i))
		}
	}
	for i := range s.Bones {
		p := s.Bones[i].ParentIndex
		if p >= 0 {
			s.Bones[p].ChildIndices = append(s.Bones[p].ChildIndices, int32(i))
		}
	}
	return s
}

// BoneCount implements ik.Host.
func (s *Skeleton) BoneCount() int {
	return len(s.Bones)
}

// BoneParent implements ik.Host.
func (s *Skeleton) BoneParent(id ik.BoneId) ik.BoneId {
	if int(id) < 0 || int(id) >= len(s.Bones) {
		return -1
	}
	return ik.BoneId(s.Bones[id].ParentIndex)
}

// BoneChildren implements ik.Host.
func (s *Skeleton) BoneChildren(id ik.BoneId) []ik.BoneId {
	if int(id) < 0 || int(id) >= len(s.Bones) {
		return nil
	}
	children := s.Bones[id].ChildIndices
	out := make([]ik.BoneId, len(children))
	for i, c := range children {
		out[i] = ik.BoneId(c)
	}
	return out
}

// BoneName implements ik.Host.
func (s *Skeleton) BoneName(id ik.BoneId) string {
	if int(id) < 0 || int(id) >= len(s.Bones) {
		return ""
	}
	return s.Bones[id].Name
}

// BoneByName implements ik.Host.
func (s *Skeleton) BoneByName(name string) (ik.BoneId, bool) {
	idx, ok := s.BoneNameToIndex[name]
	return ik.BoneId(idx), ok
}

// LocalPose implements ik.Host.
func (s *Skeleton) LocalPose(id ik.BoneId) ikmath.Transform3D {
	return s.Bones[id].LocalPose
}

// SetLocalPose implements ik.Host.
func (s *Skeleton) SetLocalPose(id ik.BoneId, t ikmath.Transform3D) {
	s.Bones[id].LocalPose = t
}

// SetLocalPoseOverride implements ik.Host. weight blends t onto the bone's
// current local pose (weight 0 leaves the pose untouched, weight 1 fully
// adopts t); persistent marks the override to survive the next
// non-persistent reset issued with weight 0 (used by the IK core to clear
// stale overrides at the start of a solve without disturbing a
// host-authored persistent pose).
func (s *Skeleton) SetLocalPoseOverride(id ik.BoneId, t ikmath.Transform3D, weight float64, persistent bool) {
	b := &s.Bones[id]
	if weight <= 0 {
		if !b.overridePersistent {
			b.overrideWeight = 0
		}
		return
	}
	b.LocalPose = b.LocalPose.Lerp(t, weight)
	b.overridePose = t
	b.overrideWeight = weight
	b.overridePersistent = persistent
}

// GlobalTransform implements ik.Host.
func (s *Skeleton) GlobalTransform() ikmath.Transform3D {
	return s.WorldTransform
}

// GlobalBonePose composes id's local pose up through its parent chain,
// for callers (debug output, tests) that need a bone's world transform
// rather than its pose relative to its parent.
func (s *Skeleton) GlobalBonePose(id ik.BoneId) ikmath.Transform3D {
	if int(id) < 0 || int(id) >= len(s.Bones) {
		return ikmath.IdentityTransform
	}
	b := &s.Bones[id]
	if b.ParentIndex < 0 {
		return s.WorldTransform.Compose(b.LocalPose)
	}
	return s.GlobalBonePose(ik.BoneId(b.ParentIndex)).Compose(b.LocalPose)
}
