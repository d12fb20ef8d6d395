package domain

import "fmt"

// Keypoint is one detected anatomical landmark in original image pixel
// space with a detection confidence in [0, 1].
type Keypoint struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Confidence float64 `json:"confidence"`
}

// Joints maps semantic keypoint names ("nose", "left_elbow", ...) to their
// detected positions. Empty when no person was found in the frame.
type Joints map[string]Keypoint

// KeypointFrame holds the detection result for a single decoded frame.
// FrameIndex counts decoded frames from zero; frames without a detection
// still appear, with an empty joint set.
type KeypointFrame struct {
	FrameIndex int    `json:"frame_index"`
	Joints     Joints `json:"joints"`
}

// KeypointSequence is the durable result of the estimation stage: one
// KeypointFrame per decoded input frame, ordered by strictly increasing
// FrameIndex, plus the sampling rate the frames were decoded at.
type KeypointSequence struct {
	SourceFPS float64         `json:"source_fps"`
	Frames    []KeypointFrame `json:"frames"`
}

// Validate enforces the sequence invariants: a positive sampling rate and
// frame indexes that start at zero and strictly increase.
func (s KeypointSequence) Validate() error {
	if s.SourceFPS <= 0 {
		return fmt.Errorf("domain: source fps %v must be positive: %w", s.SourceFPS, ErrValidation)
	}
	for i, f := range s.Frames {
		if f.FrameIndex != i {
			return fmt.Errorf("domain: frame %d has index %d: %w", i, f.FrameIndex, ErrValidation)
		}
	}
	return nil
}
