package ik

import "errors"

var (
	errUnknownBoneName           = errors.New("ik: unknown bone name")
	errInvalidBoneIndex          = errors.New("ik: bone index out of range")
	errInvalidIterations         = errors.New("ik: ik_iterations must be >= 1")
	errInvalidStabilisationPass  = errors.New("ik: stabilisation_passes must be >= 0")
	errInvalidTargetIndex        = errors.New("ik: target index out of range")
	errInvalidTargetCount        = errors.New("ik: target count must be >= 0")
	errEmptyEffectorName         = errors.New("ik: target needs a bone name or a non-negative bone index")
	errInvalidWeight             = errors.New("ik: weight must be > 0")
	errInvalidDepthFalloff       = errors.New("ik: depth_falloff must be in (0, 1]")
	errNoRootBone                = errors.New("ik: no rootless bone found in host skeleton")
	errTargetBoneUnreachable     = errors.New("ik: target bone is not a descendant of the configured root bone")
)
