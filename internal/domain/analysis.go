package domain

import "fmt"

// Side selects which anatomical side of the body an analysis covers.
// Angle formulas are identical for left and right limbs; only keypoint
// names differ, so a single generic implementation serves both.
type Side string

const (
	SideLeft  Side = "left"
	SideRight Side = "right"
	SideBoth  Side = "both"
)

// ParseSide validates a client-supplied side value. An empty string
// defaults to the right side, matching a runner filmed from their right.
func ParseSide(s string) (Side, error) {
	switch Side(s) {
	case "":
		return SideRight, nil
	case SideLeft, SideRight, SideBoth:
		return Side(s), nil
	}
	return "", fmt.Errorf("domain: side must be left, right or both, got %q: %w", s, ErrValidation)
}

// Sides expands the selection into concrete sides to compute.
func (s Side) Sides() []Side {
	if s == SideBoth {
		return []Side{SideLeft, SideRight}
	}
	return []Side{s}
}

// AngleRange is the observed min and max of an angle series in degrees.
// Both bounds are exposed: amplitude (max-min) is derivable, but each
// bound is meaningful on its own for gait assessment.
type AngleRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// RunningAnalysis is the durable result of the analyze stage. Metrics that
// had no qualifying frame are absent from the maps, never reported as zero.
type RunningAnalysis struct {
	Side Side `json:"side"`
	// JointAngleMeans maps a side-qualified metric name ("right_knee",
	// "left_elbow", "right_trunk", ...) to its mean angle in degrees over
	// the frames where every required keypoint cleared the confidence
	// threshold.
	JointAngleMeans map[string]float64 `json:"joint_angle_means"`
	// ArmSwingAmplitude maps a side to the min/max of its
	// shoulder-elbow-wrist angle series over qualifying frames.
	ArmSwingAmplitude map[Side]AngleRange `json:"arm_swing_amplitude"`
}
