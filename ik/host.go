package ik

import "github.com/nyx-engine/ewbik/ikmath"

// BoneId identifies a bone within a Host skeleton. -1 denotes "absent".
type BoneId int32

// NoBone is the sentinel BoneId meaning "no such bone".
const NoBone BoneId = -1

// Host is the narrow capability set the IK core needs from the animation
// system that owns the skeleton being solved. The core never depends on
// a concrete host type; engine/model.Skeleton is the one shipped here.
type Host interface {
	BoneCount() int
	BoneParent(id BoneId) BoneId
	BoneChildren(id BoneId) []BoneId
	BoneName(id BoneId) string
	BoneByName(name string) (BoneId, bool)
	LocalPose(id BoneId) ikmath.Transform3D
	SetLocalPose(id BoneId, t ikmath.Transform3D)
	SetLocalPoseOverride(id BoneId, t ikmath.Transform3D, weight float64, persistent bool)
	GlobalTransform() ikmath.Transform3D
}

// SpatialNode is a single named, transform-bearing node in the host scene
// graph, used to resolve an effector's target node path.
type SpatialNode interface {
	GlobalTransform() ikmath.Transform3D
}

// SceneGraph resolves a target node path to a SpatialNode. engine/scenegraph.Graph
// is the one shipped here.
type SceneGraph interface {
	Find(path string) (SpatialNode, bool)
}
