package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// VideoID uniquely identifies one uploaded video and joins all artifacts
// derived from it. Assigned once at upload, immutable afterwards.
type VideoID string

// NewVideoID mints a fresh random identifier.
func NewVideoID() VideoID {
	return VideoID(uuid.NewString())
}

// ParseVideoID validates an identifier received from a client.
func ParseVideoID(s string) (VideoID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("domain: invalid video id %q: %w", s, ErrValidation)
	}
	return VideoID(id.String()), nil
}

func (id VideoID) String() string { return string(id) }

// ArtifactKind names one of the four durable objects a video can own.
type ArtifactKind int

const (
	InputVideo ArtifactKind = iota
	OutputVideo
	EstimationData
	AnalysisData
)

// artifactNames holds the bucket-relative object name per kind.
var artifactNames = map[ArtifactKind]string{
	InputVideo:     "input.mp4",
	OutputVideo:    "output.mp4",
	EstimationData: "estimation.bin",
	AnalysisData:   "analysis.bin",
}

// AllArtifactKinds lists every kind in deletion order.
var AllArtifactKinds = []ArtifactKind{InputVideo, OutputVideo, EstimationData, AnalysisData}

// ArtifactKey maps a (video, kind) pair to its storage key. The mapping is
// pure and stable across restarts; keys are never reused across videos.
func ArtifactKey(id VideoID, kind ArtifactKind) string {
	return string(id) + "/" + artifactNames[kind]
}

func (k ArtifactKind) String() string {
	switch k {
	case InputVideo:
		return "input_video"
	case OutputVideo:
		return "output_video"
	case EstimationData:
		return "estimation_data"
	case AnalysisData:
		return "analysis_data"
	}
	return fmt.Sprintf("artifact_kind(%d)", int(k))
}
