package ik

import (
	"fmt"
	"math"

	"github.com/nyx-engine/ewbik/common"
	"github.com/nyx-engine/ewbik/engine/profiler"
	"github.com/nyx-engine/ewbik/ikmath"
)

// DefaultIkIterations is the number of grouped-segment-solver passes a
// Modifier runs per solve.
const DefaultIkIterations = 10

// TargetConfig describes one pin the Modifier should establish: a bone
// (by name or index), an optional scene-graph node it should track, and
// the per-effector tuning spec.md §6 enumerates.
type TargetConfig struct {
	BoneName  string
	BoneIndex BoneId

	TargetNodePath        string
	UseTargetNodeRotation bool
	TargetLocalTransform  ikmath.Transform3D

	Priority     ikmath.Vec3
	Weight       float64
	DepthFalloff float64
}

func defaultTargetConfig() TargetConfig {
	return TargetConfig{
		BoneIndex:            NoBone,
		TargetLocalTransform: ikmath.IdentityTransform,
		Priority:             ikmath.Vec3{X: 1, Y: 0, Z: 1},
		Weight:               1,
		DepthFalloff:         1,
	}
}

// ModifierOption configures a Modifier at construction time, matching the
// teacher's WithX(...) functional-options convention.
type ModifierOption func(*Modifier)

// WithIkIterations sets the number of grouped-segment-solver passes per solve.
func WithIkIterations(n int) ModifierOption {
	return func(m *Modifier) { m.ikIterations = n }
}

// WithStabilisationPasses sets the number of extra per-descendant resolves
// GroupedSegmentSolver runs before recursing into a pinned descendant's children.
func WithStabilisationPasses(n int) ModifierOption {
	return func(m *Modifier) { m.stabilisationPasses = n }
}

// WithEnabled sets whether Execute does any work at all.
func WithEnabled(enabled bool) ModifierOption {
	return func(m *Modifier) { m.Enabled = enabled }
}

// WithStrength sets the blend strength Execute writes solved poses back
// to the host with.
func WithStrength(strength float64) ModifierOption {
	return func(m *Modifier) { m.Strength = strength }
}

// WithRootBoneName sets the root bone by name, like SetRootBone but
// without checking the name against the host; an unknown name surfaces
// as a missing-bone diagnostic at the first Execute.
func WithRootBoneName(name string) ModifierOption {
	return func(m *Modifier) { m.rootBoneName = name }
}

// WithSceneGraph attaches the scene-graph collaborator used to resolve
// effector target node paths.
func WithSceneGraph(scene SceneGraph) ModifierOption {
	return func(m *Modifier) { m.scene = scene }
}

// WithProfiler attaches a frame/alloc profiler that ticks once per solve,
// giving an operator a running log of whether the tick · iteration ·
// stabilisation-pass QCP budget (spec.md §5) is holding steady allocation
// at zero in production.
func WithProfiler(p *profiler.Profiler) ModifierOption {
	return func(m *Modifier) { m.profiler = p }
}

// Modifier is the facade: it owns the shadow skeleton, the segment tree,
// and the effector/target list, and drives one solve per Execute call,
// writing results back to the host skeleton.
type Modifier struct {
	Host  Host
	scene SceneGraph

	Enabled  bool
	Strength float64

	ikIterations        int
	stabilisationPasses int

	rootBoneName  string
	rootBoneIndex BoneId

	targets []TargetConfig

	dirty bool

	bones    map[BoneId]*Bone
	rootBone *Bone
	rootSeg  *Segment
	calcDone bool
	diag     diagnosticLog
	profiler *profiler.Profiler
}

// NewModifier constructs a Modifier with the package defaults
// (10 iterations, 0 stabilisation passes, enabled, full strength) and
// applies opts.
func NewModifier(host Host, opts ...ModifierOption) *Modifier {
	m := &Modifier{
		Host:          host,
		Enabled:       true,
		Strength:      1,
		ikIterations:  DefaultIkIterations,
		rootBoneIndex: NoBone,
		bones:         make(map[BoneId]*Bone),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.dirty = true
	return m
}

// SetRootBone sets the root bone by name. An empty name means "auto-pick
// the first rootless bone in the host", matching
// skeleton_modification_3d_ewbik.cpp::setup_modification's behavior when
// root_bone is unset. A non-empty name the host does not have is
// rejected and the prior root bone setting is left untouched.
func (m *Modifier) SetRootBone(name string) error {
	if name != "" {
		if _, ok := m.Host.BoneByName(name); !ok {
			return fmt.Errorf("root bone %s: %w", boneLabel(name, NoBone), errUnknownBoneName)
		}
	}
	m.rootBoneName = name
	m.rootBoneIndex = NoBone
	m.dirty = true
	return nil
}

// SetRootBoneIndex sets the root bone by host bone index.
func (m *Modifier) SetRootBoneIndex(id BoneId) error {
	if id < 0 {
		return errInvalidBoneIndex
	}
	m.rootBoneIndex = id
	m.rootBoneName = ""
	m.dirty = true
	return nil
}

// SetIkIterations sets the number of grouped-segment-solver passes per
// solve. n must be >= 1; on rejection prior state is untouched.
func (m *Modifier) SetIkIterations(n int) error {
	if n < 1 {
		return errInvalidIterations
	}
	m.ikIterations = n
	return nil
}

// SetStabilisationPasses sets the number of extra resolves per pinned
// descendant. n must be >= 0; on rejection prior state is untouched.
func (m *Modifier) SetStabilisationPasses(n int) error {
	if n < 0 {
		return errInvalidStabilisationPass
	}
	m.stabilisationPasses = n
	return nil
}

// SetTargetCount resizes the target list to n, truncating or filling new
// slots with the default target configuration as needed. n must be >= 0.
func (m *Modifier) SetTargetCount(n int) error {
	if n < 0 {
		return errInvalidTargetCount
	}
	for len(m.targets) < n {
		m.targets = append(m.targets, defaultTargetConfig())
	}
	m.targets = m.targets[:n]
	m.dirty = true
	return nil
}

// AddTarget appends a new target pin and returns its index. name must be
// non-empty; use SetTargetBoneIndex to select the bone by index instead.
func (m *Modifier) AddTarget(name string, nodePath string, useNodeRotation bool, localXform ikmath.Transform3D) (int, error) {
	if name == "" {
		return -1, errEmptyEffectorName
	}
	t := defaultTargetConfig()
	t.BoneName = name
	t.TargetNodePath = nodePath
	t.UseTargetNodeRotation = useNodeRotation
	t.TargetLocalTransform = localXform
	m.targets = append(m.targets, t)
	m.dirty = true
	return len(m.targets) - 1, nil
}

// SetTargetBoneIndex sets target i's pinned bone by host index directly,
// bypassing name resolution.
func (m *Modifier) SetTargetBoneIndex(i int, id BoneId) error {
	if i < 0 || i >= len(m.targets) {
		return errInvalidTargetIndex
	}
	m.targets[i].BoneIndex = id
	m.dirty = true
	return nil
}

// SetTargetNodePath sets target i's scene-graph node path.
func (m *Modifier) SetTargetNodePath(i int, path string) error {
	if i < 0 || i >= len(m.targets) {
		return errInvalidTargetIndex
	}
	m.targets[i].TargetNodePath = path
	m.dirty = true
	return nil
}

// SetTargetUseNodeRotation sets whether target i tracks its node's rotation.
func (m *Modifier) SetTargetUseNodeRotation(i int, use bool) error {
	if i < 0 || i >= len(m.targets) {
		return errInvalidTargetIndex
	}
	m.targets[i].UseTargetNodeRotation = use
	m.dirty = true
	return nil
}

// SetTargetLocalTransform sets target i's local offset from its resolved
// node (or tip bone, if no node resolves).
func (m *Modifier) SetTargetLocalTransform(i int, t ikmath.Transform3D) error {
	if i < 0 || i >= len(m.targets) {
		return errInvalidTargetIndex
	}
	m.targets[i].TargetLocalTransform = t
	m.dirty = true
	return nil
}

// SetTargetPriority sets target i's per-axis priority; each component must be >= 0.
func (m *Modifier) SetTargetPriority(i int, p ikmath.Vec3) error {
	if i < 0 || i >= len(m.targets) {
		return errInvalidTargetIndex
	}
	if p.X < 0 || p.Y < 0 || p.Z < 0 {
		return errInvalidWeight
	}
	m.targets[i].Priority = p
	m.dirty = true
	return nil
}

// SetTargetWeight sets target i's scalar weight; must be > 0.
func (m *Modifier) SetTargetWeight(i int, w float64) error {
	if i < 0 || i >= len(m.targets) {
		return errInvalidTargetIndex
	}
	if w <= 0 {
		return errInvalidWeight
	}
	m.targets[i].Weight = w
	m.dirty = true
	return nil
}

// SetTargetDepthFalloff sets target i's depth falloff; must be in (0, 1].
func (m *Modifier) SetTargetDepthFalloff(i int, f float64) error {
	if i < 0 || i >= len(m.targets) {
		return errInvalidTargetIndex
	}
	if f <= 0 || f > 1 {
		return errInvalidDepthFalloff
	}
	m.targets[i].DepthFalloff = f
	m.dirty = true
	return nil
}

// Diagnostics returns the non-fatal conditions recorded during the most
// recent Execute call.
func (m *Modifier) Diagnostics() []Diagnostic {
	return m.diag.entries
}

// Execute runs one tick: idempotent within a frame given unchanged
// inputs. If the configuration is dirty it rebuilds the shadow skeleton
// and segment tree first. If Enabled is false, or every effector's goal
// transform is unchanged since the last call, it does nothing this tick.
func (m *Modifier) Execute() error {
	m.diag.reset()
	if !m.Enabled {
		return nil
	}
	if m.dirty || m.Host.BoneCount() != len(m.bones) {
		if err := m.rebuild(); err != nil {
			return err
		}
	}
	if m.rootBone == nil {
		return nil
	}

	anyChanged := false
	for _, b := range m.bones {
		if b.Effector == nil {
			continue
		}
		if b.Effector.UpdateGoalTransform(m.scene, m.Host.GlobalTransform()) {
			anyChanged = true
		}
	}
	if !anyChanged && m.calcDone {
		return nil
	}

	m.solve()
	m.calcDone = true
	return nil
}

// solve is the three-step per-tick algorithm spec.md §4.7 documents:
// sync the shadow skeleton from the host, run ikIterations grouped
// solver passes, then blend results back to the host.
func (m *Modifier) solve() {
	if m.profiler != nil {
		m.profiler.Tick()
	}
	m.updateShadowBonesTransform()
	for i := 0; i < m.ikIterations; i++ {
		m.rootSeg.GroupedSegmentSolver(m.stabilisationPasses, &m.diag)
	}
	m.updateSkeletonBonesTransform()
}

func (m *Modifier) updateShadowBonesTransform() {
	for id, b := range m.bones {
		m.Host.SetLocalPoseOverride(id, b.Local, 0, false)
		b.SetInitialPose(m.Host, id)
	}
}

func (m *Modifier) updateSkeletonBonesTransform() {
	for id, b := range m.bones {
		b.SetSkeletonBonePose(m.Host, id, m.Strength)
	}
}

// rebuild reconstructs the shadow skeleton arena, wires effectors from
// targets, and regenerates the segment tree. Called once after any
// configuration change (root bone, target list, or host bone count).
func (m *Modifier) rebuild() error {
	m.dirty = false
	m.calcDone = false

	n := m.Host.BoneCount()
	m.bones = make(map[BoneId]*Bone, n)
	for i := 0; i < n; i++ {
		id := BoneId(i)
		m.bones[id] = NewBone(id)
	}
	for id, b := range m.bones {
		parent := m.Host.BoneParent(id)
		if parent != NoBone {
			if pb, ok := m.bones[parent]; ok {
				b.Parent = pb
				pb.Children = append(pb.Children, b)
			}
		}
	}

	root, err := m.resolveRootBone()
	if err != nil {
		m.diag.record(DiagMissingBone, NoBone, err.Error())
		m.rootBone = nil
		m.rootSeg = nil
		return nil
	}
	m.rootBone = root
	m.rootBone.SetDampening(math.Pi)

	for i := range m.targets {
		bone, err := m.resolveTargetBone(m.targets[i])
		if err != nil {
			m.diag.record(DiagMissingBone, NoBone, err.Error())
			continue
		}
		eff := bone.CreateEffector()
		eff.TargetNodePath = m.targets[i].TargetNodePath
		eff.UseTargetNodeRotation = m.targets[i].UseTargetNodeRotation
		eff.TargetLocalTransform = m.targets[i].TargetLocalTransform
		eff.Priority = m.targets[i].Priority
		eff.Weight = m.targets[i].Weight
		eff.DepthFalloff = m.targets[i].DepthFalloff
	}

	m.rootSeg = buildSegment(m.rootBone, nil)
	m.rootSeg.UpdatePinnedList()
	m.rootSeg.computeEffectorDirectDescendants()
	return nil
}

// boneLabel formats a bone selector for error messages: the configured
// name takes priority, falling back to the index only when no name was
// given, via common.Coalesce (the teacher's sole first-non-zero helper).
func boneLabel(name string, index BoneId) string {
	return common.Coalesce(name, fmt.Sprintf("index %d", index))
}

func (m *Modifier) resolveRootBone() (*Bone, error) {
	if m.rootBoneIndex != NoBone {
		b, ok := m.bones[m.rootBoneIndex]
		if !ok {
			return nil, fmt.Errorf("root bone %s: %w", boneLabel("", m.rootBoneIndex), errInvalidBoneIndex)
		}
		return b, nil
	}
	if m.rootBoneName != "" {
		id, ok := m.Host.BoneByName(m.rootBoneName)
		if !ok {
			return nil, fmt.Errorf("root bone %s: %w", boneLabel(m.rootBoneName, NoBone), errUnknownBoneName)
		}
		b, ok := m.bones[id]
		if !ok {
			return nil, fmt.Errorf("root bone %s: %w", boneLabel(m.rootBoneName, NoBone), errInvalidBoneIndex)
		}
		return b, nil
	}
	for i := 0; i < m.Host.BoneCount(); i++ {
		id := BoneId(i)
		if m.Host.BoneParent(id) == NoBone {
			return m.bones[id], nil
		}
	}
	return nil, errNoRootBone
}

func (m *Modifier) resolveTargetBone(t TargetConfig) (*Bone, error) {
	var id BoneId
	if t.BoneIndex != NoBone {
		id = t.BoneIndex
	} else if t.BoneName != "" {
		resolved, ok := m.Host.BoneByName(t.BoneName)
		if !ok {
			return nil, fmt.Errorf("target bone %s: %w", boneLabel(t.BoneName, NoBone), errUnknownBoneName)
		}
		id = resolved
	} else {
		return nil, errEmptyEffectorName
	}
	b, ok := m.bones[id]
	if !ok {
		return nil, fmt.Errorf("target bone %s: %w", boneLabel(t.BoneName, id), errInvalidBoneIndex)
	}
	if !isDescendantOf(b, m.rootBone) {
		return nil, fmt.Errorf("target bone %s: %w", boneLabel(t.BoneName, id), errTargetBoneUnreachable)
	}
	return b, nil
}

func isDescendantOf(b, root *Bone) bool {
	for cur := b; cur != nil; cur = cur.Parent {
		if cur == root {
			return true
		}
	}
	return false
}
