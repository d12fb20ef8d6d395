// Package analysis derives running-gait metrics from a keypoint sequence:
// time-averaged joint angles per anatomical side and the arm-swing
// amplitude range. Frames where any required keypoint is missing or below
// the confidence threshold are excluded from that metric's series rather
// than interpolated; fabricating angles from low-confidence points would
// bias the averages.
package analysis

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"gaitserver/internal/domain"
)

// DefaultConfidenceThreshold gates keypoints entering any computation.
const DefaultConfidenceThreshold = 0.5

// Engine computes RunningAnalysis values. The zero value is not usable;
// construct with NewEngine.
type Engine struct {
	threshold float64
}

// NewEngine returns an engine with the given confidence threshold;
// non-positive values fall back to the default.
func NewEngine(threshold float64) *Engine {
	if threshold <= 0 {
		threshold = DefaultConfidenceThreshold
	}
	return &Engine{threshold: threshold}
}

// metric defines one per-frame angle computed from named joints on a
// side. joints lists the side-relative names required above threshold;
// compute receives their positions in the same order.
type metric struct {
	name    string
	joints  []string
	compute func(p []vec, side domain.Side) float64
}

var metrics = []metric{
	{
		// Included angle at the knee between thigh and shank.
		name:   "knee",
		joints: []string{"hip", "knee", "ankle"},
		compute: func(p []vec, _ domain.Side) float64 {
			return angleBetween(p[0].sub(p[1]), p[2].sub(p[1]))
		},
	},
	{
		// Included angle at the hip between torso and thigh.
		name:   "hip",
		joints: []string{"shoulder", "hip", "knee"},
		compute: func(p []vec, _ domain.Side) float64 {
			return angleBetween(p[0].sub(p[1]), p[2].sub(p[1]))
		},
	},
	{
		// Included angle at the elbow between upper arm and forearm.
		// Its per-frame series also drives the arm-swing range.
		name:   "elbow",
		joints: []string{"shoulder", "elbow", "wrist"},
		compute: func(p []vec, _ domain.Side) float64 {
			return angleBetween(p[0].sub(p[1]), p[2].sub(p[1]))
		},
	},
	{
		// Trunk lean relative to vertical, forward positive.
		name:   "trunk",
		joints: []string{"shoulder", "hip"},
		compute: func(p []vec, side domain.Side) float64 {
			torso := p[0].sub(p[1])
			return signedBySide(angleBetween(torso, verticalUp), side, torso.x)
		},
	},
	{
		// Shank tilt relative to vertical, forward positive.
		name:   "shank",
		joints: []string{"knee", "ankle"},
		compute: func(p []vec, side domain.Side) float64 {
			shank := p[1].sub(p[0])
			return signedBySide(angleBetween(shank, verticalDown), side, shank.x)
		},
	},
	{
		// Overall leg posture: hip-to-ankle line against vertical.
		name:   "hip_ankle",
		joints: []string{"hip", "ankle"},
		compute: func(p []vec, _ domain.Side) float64 {
			return angleBetween(p[1].sub(p[0]), verticalDown)
		},
	},
	{
		// Head alignment: ear-to-eye line against the torso line.
		name:   "head",
		joints: []string{"ear", "eye", "shoulder", "hip"},
		compute: func(p []vec, _ domain.Side) float64 {
			return angleBetween(p[1].sub(p[0]), p[3].sub(p[2]))
		},
	},
}

// armSwingMetric is the metric whose series yields the swing range.
const armSwingMetric = "elbow"

// Analyze computes all metrics over the sequence for the requested side
// selection. Metrics with zero qualifying frames are absent from the
// result; if every metric on every requested side is absent the sequence
// carries no usable signal and the call fails with domain.ErrValidation.
func (e *Engine) Analyze(seq domain.KeypointSequence, side domain.Side) (domain.RunningAnalysis, error) {
	if len(seq.Frames) == 0 {
		return domain.RunningAnalysis{}, fmt.Errorf("analysis: sequence has no frames: %w", domain.ErrValidation)
	}

	result := domain.RunningAnalysis{
		Side:              side,
		JointAngleMeans:   map[string]float64{},
		ArmSwingAmplitude: map[domain.Side]domain.AngleRange{},
	}

	for _, s := range side.Sides() {
		for _, m := range metrics {
			series := e.series(seq, m, s)
			if len(series) == 0 {
				continue
			}
			result.JointAngleMeans[string(s)+"_"+m.name] = stat.Mean(series, nil)
			if m.name == armSwingMetric {
				result.ArmSwingAmplitude[s] = domain.AngleRange{
					Min: floats.Min(series),
					Max: floats.Max(series),
				}
			}
		}
	}

	if len(result.JointAngleMeans) == 0 {
		return domain.RunningAnalysis{}, fmt.Errorf("analysis: no frame passed the confidence threshold for any metric: %w", domain.ErrValidation)
	}
	return result, nil
}

// series collects one metric's qualifying per-frame values.
func (e *Engine) series(seq domain.KeypointSequence, m metric, side domain.Side) []float64 {
	var out []float64
	points := make([]vec, len(m.joints))
frames:
	for _, frame := range seq.Frames {
		for i, j := range m.joints {
			p, ok := point(frame.Joints, string(side)+"_"+j, e.threshold)
			if !ok {
				continue frames
			}
			points[i] = p
		}
		out = append(out, m.compute(points, side))
	}
	return out
}
