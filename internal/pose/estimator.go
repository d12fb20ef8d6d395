// Package pose models the external keypoint inference capability. The
// detection and keypoint-regression stack runs outside this process; the
// pipeline only consumes it as frame in, joints out.
package pose

import (
	"context"

	"gaitserver/internal/domain"
	"gaitserver/internal/video"
)

// Estimator turns one decoded frame into a set of named keypoints.
// An empty joint map is a valid result (no person in frame); an error
// aborts the whole estimation stage.
type Estimator interface {
	Infer(ctx context.Context, frame *video.Frame) (domain.Joints, error)
}

// EstimatorFunc adapts a plain function to the Estimator interface.
type EstimatorFunc func(ctx context.Context, frame *video.Frame) (domain.Joints, error)

func (f EstimatorFunc) Infer(ctx context.Context, frame *video.Frame) (domain.Joints, error) {
	return f(ctx, frame)
}
