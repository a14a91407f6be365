package ik

import (
	"math"

	"github.com/nyx-engine/ewbik/ikmath"
	"github.com/nyx-engine/ewbik/qcp"
)

// DampDefault tells Segment.SegmentSolver and UpdateOptimalRotation to use
// each bone's own CosHalfDampen rather than a caller-supplied clamp angle.
const DampDefault = -1.0

// effectorEntry is one contributor in a segment's bottom-up effector
// list: the effector itself plus the accumulated depth-falloff scale it
// was appended under.
type effectorEntry struct {
	effector *Effector
	scale    float64
}

// Segment is a maximal pin-terminated bone chain: a contiguous run of
// bones from Root to Tip, where Tip is either pinned or a branch point.
// It owns the bone list tip-to-root, the bottom-up effector-descendant
// list, and the scratch heading buffers the per-bone QCP pass reads and
// writes every iteration.
type Segment struct {
	Root *Bone
	Tip  *Bone

	// Bones lists the segment's own bones, tip first, root last — the
	// order SegmentSolver visits them in.
	Bones []*Bone

	Parent   *Segment
	Children []*Segment

	// Effectors is the bottom-up effector-descendant list assembled by
	// UpdatePinnedList: every descendant segment's effectors, each scaled
	// by the accumulated chain of depth-falloffs between here and there,
	// followed by this segment's own pinned tip (if any).
	Effectors []effectorEntry

	// PinnedDescendants is true iff this segment or any descendant
	// segment is pinned.
	PinnedDescendants bool

	// directDescendants caches computeEffectorDirectDescendants' result.
	directDescendants []*Segment

	solver *qcp.Solver

	// Scratch buffers, sized by UpdatePinnedList to 2*len(Effectors) and
	// reused across every tick thereafter — no steady-state allocation.
	headingWeights []float64
	targetHeadings []ikmath.Vec3
	tipHeadings    []ikmath.Vec3
}

// buildSegment walks from root following the unique qualifying-child path
// (the segmentation rule: stop at a pin or a branch point), recursing
// into a new child Segment for every bone whose subtree contains a pin.
// Bones whose subtree contains no pin at all are pruned from the tree
// entirely (never appear in any Segment).
func buildSegment(root *Bone, parent *Segment) *Segment {
	s := &Segment{Root: root, Parent: parent, solver: qcp.NewSolver()}

	cur := root
	for {
		s.Bones = append(s.Bones, cur)
		if cur.Effector != nil {
			s.Tip = cur
			s.PinnedDescendants = true
			break
		}
		var qualifying []*Bone
		for _, c := range cur.Children {
			if hasPinnedDescendant(c) {
				qualifying = append(qualifying, c)
			}
		}
		if len(qualifying) != 1 {
			s.Tip = cur
			break
		}
		cur = qualifying[0]
	}
	// Bones was collected root to tip; store it tip first.
	for i, j := 0, len(s.Bones)-1; i < j; i, j = i+1, j-1 {
		s.Bones[i], s.Bones[j] = s.Bones[j], s.Bones[i]
	}

	for _, c := range s.Tip.Children {
		if !hasPinnedDescendant(c) {
			continue
		}
		child := buildSegment(c, s)
		s.Children = append(s.Children, child)
		if child.PinnedDescendants {
			s.PinnedDescendants = true
		}
	}
	return s
}

func hasPinnedDescendant(b *Bone) bool {
	if b.Effector != nil {
		return true
	}
	for _, c := range b.Children {
		if hasPinnedDescendant(c) {
			return true
		}
	}
	return false
}

// computeEffectorDirectDescendants populates directDescendants: this
// segment's child segments whose own tip is pinned (as opposed to a
// plain branch point) — the set GroupedSegmentSolver recurses into
// individually, per segment, rather than treating all descendants as one
// flat pass. Computed once per rebuild (the segment tree shape is
// static between rebuilds), so GroupedSegmentSolver never allocates.
func (s *Segment) computeEffectorDirectDescendants() {
	s.directDescendants = s.directDescendants[:0]
	for _, c := range s.Children {
		c.computeEffectorDirectDescendants()
		if c.Tip.Effector != nil {
			s.directDescendants = append(s.directDescendants, c)
		} else {
			s.directDescendants = append(s.directDescendants, c.directDescendants...)
		}
	}
}

// UpdatePinnedList rebuilds Effectors bottom-up and resizes the scratch
// heading buffers to match. Each child segment's contributions are scaled
// by that child's own tip DepthFalloff (1 if the child's tip is not
// pinned); this segment's own tip effector is appended at scale 1.
func (s *Segment) UpdatePinnedList() {
	s.Effectors = s.Effectors[:0]
	for _, child := range s.Children {
		child.UpdatePinnedList()
		childScale := 1.0
		if child.Tip.Effector != nil {
			childScale = child.Tip.Effector.DepthFalloff
		}
		for _, e := range child.Effectors {
			s.Effectors = append(s.Effectors, effectorEntry{effector: e.effector, scale: e.scale * childScale})
		}
	}
	if s.Tip.Effector != nil {
		s.Effectors = append(s.Effectors, effectorEntry{effector: s.Tip.Effector, scale: 1})
	}

	n := len(s.Effectors) * 2
	s.headingWeights = ensureLen(s.headingWeights, n)
	s.targetHeadings = ensureVecLen(s.targetHeadings, n)
	s.tipHeadings = ensureVecLen(s.tipHeadings, n)

	idx := 0
	for _, e := range s.Effectors {
		w := e.effector.Weight * e.scale
		s.headingWeights[idx] = w
		s.headingWeights[idx+1] = w
		idx += 2
	}
}

func ensureLen(buf []float64, n int) []float64 {
	if cap(buf) >= n {
		return buf[:n]
	}
	return make([]float64, n)
}

func ensureVecLen(buf []ikmath.Vec3, n int) []ikmath.Vec3 {
	if cap(buf) >= n {
		return buf[:n]
	}
	return make([]ikmath.Vec3, n)
}

// refreshHeadings asks every effector-descendant to rewrite its target
// and tip heading pair relative to forBone.
func (s *Segment) refreshHeadings(forBone *Bone) {
	ti, pi := 0, 0
	for _, e := range s.Effectors {
		e.effector.WriteTargetHeadings(s.targetHeadings, &ti, forBone)
		e.effector.WriteTipHeadings(s.tipHeadings, &pi, forBone)
	}
}

// weightedMeanSquaredDeviation computes the weighted MSD between the
// segment's current tip and target heading clouds.
func weightedMeanSquaredDeviation(tip, target []ikmath.Vec3, weights []float64) float64 {
	var sum, wsum float64
	for i := range tip {
		d := tip[i].DistanceTo(target[i])
		sum += weights[i] * d * d
		wsum += weights[i]
	}
	if wsum == 0 {
		return 0
	}
	return sum / wsum
}

// UpdateOptimalRotation is the per-bone solve step: refresh headings
// relative to forBone, gate on MSD monotonicity, run a QCP fit, clamp the
// result to the dampening cone, apply it, and snap to the bone's
// constraint if it has one. damp of DampDefault means "use forBone's own
// CosHalfDampen"; any other value is a caller-supplied clamp angle in
// radians, converted to cos(damp/2) (the root segment's unclamped pi pass
// uses this).
func (s *Segment) UpdateOptimalRotation(forBone *Bone, damp float64, translate bool, diag *diagnosticLog) {
	if !forBone.Local.Rotation.IsFinite() || !forBone.Local.Origin.IsFinite() {
		forBone.resetMSD()
		if diag != nil {
			diag.record(DiagNonFiniteInput, forBone.Id, "non-finite bone transform, skipping this tick")
		}
		return
	}

	s.refreshHeadings(forBone)

	m := weightedMeanSquaredDeviation(s.tipHeadings, s.targetHeadings, s.headingWeights)
	if m > forBone.LastMSD {
		return
	}

	rot, trans, err := s.solver.WeightedSuperpose(s.tipHeadings, s.targetHeadings, s.headingWeights, translate)
	if err != nil {
		if diag != nil {
			diag.record(DiagDegenerateQCP, forBone.Id, err.Error())
		}
		forBone.LastMSD = m
		return
	}

	var cosHalf float64
	if damp != DampDefault {
		cosHalf = math.Cos(damp / 2)
	} else {
		cosHalf = forBone.CosHalfDampen
	}
	rot = rot.ClampToQuadranceAngle(cosHalf)

	forBone.RotateLocalWithGlobal(rot)
	if translate {
		g := forBone.Global()
		g.Origin = g.Origin.Add(trans)
		forBone.SetGlobal(g)
	}

	if forBone.Constraint != nil {
		if forBone.Constraint.IsOrientationallyConstrained() {
			forBone.Constraint.SnapToOrientation(&forBone.Local.Rotation, damp, cosHalf)
		}
		if forBone.Constraint.IsAxiallyConstrained() {
			forBone.Constraint.SnapToTwist(&forBone.Local.Rotation, damp, cosHalf)
		}
		forBone.markDirty()
	}

	forBone.LastMSD = m
}

// SegmentSolver visits this segment's own bones tip-to-root, applying one
// UpdateOptimalRotation pass per bone. It does not recurse into child
// segments; that traversal belongs to GroupedSegmentSolver. translate
// marks this as the root segment's pass: only then, and only for the
// segment's own Root bone, is translation enabled with damp overridden
// to an unclamped pi — letting the root drift to satisfy positional
// targets without loosening every other bone's dampening.
func (s *Segment) SegmentSolver(damp float64, translate bool, diag *diagnosticLog) {
	for _, b := range s.Bones {
		d, t := damp, false
		if translate && b == s.Root {
			d, t = math.Pi, true
		}
		s.UpdateOptimalRotation(b, d, t, diag)
	}
}

// GroupedSegmentSolver runs one SegmentSolver pass over this segment,
// then for each of its direct effector-descendant segments runs
// stabilisationPasses extra SegmentSolver passes before recursing into
// that descendant's own children — grafted from the traversal shape of
// the older chain prototype this module also drew on, driving the newer
// per-bone MSD-gated solve step rather than that prototype's internal
// ungated stabilization loop. Descendants whose tip effector is
// translation-only get no stabilisation passes.
func (s *Segment) GroupedSegmentSolver(stabilisationPasses int, diag *diagnosticLog) {
	isRoot := s.Parent == nil
	s.SegmentSolver(DampDefault, isRoot, diag)

	for _, child := range s.directDescendants {
		if !child.Tip.Effector.IsTranslationOnly() {
			for i := 0; i < stabilisationPasses; i++ {
				child.SegmentSolver(DampDefault, false, diag)
			}
		}
		child.GroupedSegmentSolver(stabilisationPasses, diag)
	}
}
