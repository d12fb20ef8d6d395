package domain

import (
	"errors"
	"testing"
)

func TestArtifactKey(t *testing.T) {
	id := VideoID("a1b2c3d4-5678-90ef-1234-567890abcdef")

	tests := []struct {
		kind ArtifactKind
		want string
	}{
		{InputVideo, "a1b2c3d4-5678-90ef-1234-567890abcdef/input.mp4"},
		{OutputVideo, "a1b2c3d4-5678-90ef-1234-567890abcdef/output.mp4"},
		{EstimationData, "a1b2c3d4-5678-90ef-1234-567890abcdef/estimation.bin"},
		{AnalysisData, "a1b2c3d4-5678-90ef-1234-567890abcdef/analysis.bin"},
	}
	for _, tc := range tests {
		t.Run(tc.kind.String(), func(t *testing.T) {
			if got := ArtifactKey(id, tc.kind); got != tc.want {
				t.Fatalf("ArtifactKey() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestArtifactKeyDeterministic(t *testing.T) {
	id := NewVideoID()
	if ArtifactKey(id, EstimationData) != ArtifactKey(id, EstimationData) {
		t.Fatal("ArtifactKey is not stable for the same inputs")
	}
	other := NewVideoID()
	if ArtifactKey(id, InputVideo) == ArtifactKey(other, InputVideo) {
		t.Fatal("distinct videos share a storage key")
	}
}

func TestParseVideoID(t *testing.T) {
	if _, err := ParseVideoID("not-a-uuid"); !errors.Is(err, ErrValidation) {
		t.Fatalf("ParseVideoID(invalid) error = %v, want ErrValidation", err)
	}
	id, err := ParseVideoID("a1b2c3d4-5678-40ef-9234-567890abcdef")
	if err != nil {
		t.Fatalf("ParseVideoID(valid) error = %v", err)
	}
	if id.String() != "a1b2c3d4-5678-40ef-9234-567890abcdef" {
		t.Fatalf("ParseVideoID() = %q", id)
	}
}

func TestParseSide(t *testing.T) {
	tests := []struct {
		in      string
		want    Side
		wantErr bool
	}{
		{"", SideRight, false},
		{"left", SideLeft, false},
		{"right", SideRight, false},
		{"both", SideBoth, false},
		{"upside", "", true},
	}
	for _, tc := range tests {
		t.Run("side_"+tc.in, func(t *testing.T) {
			got, err := ParseSide(tc.in)
			if tc.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("ParseSide(%q) error = %v, want ErrValidation", tc.in, err)
				}
				return
			}
			if err != nil || got != tc.want {
				t.Fatalf("ParseSide(%q) = %v, %v, want %v", tc.in, got, err, tc.want)
			}
		})
	}
}

func TestSideSides(t *testing.T) {
	if got := SideBoth.Sides(); len(got) != 2 {
		t.Fatalf("SideBoth.Sides() = %v, want two sides", got)
	}
	if got := SideLeft.Sides(); len(got) != 1 || got[0] != SideLeft {
		t.Fatalf("SideLeft.Sides() = %v", got)
	}
}

func TestKeypointSequenceValidate(t *testing.T) {
	valid := KeypointSequence{
		SourceFPS: 30,
		Frames: []KeypointFrame{
			{FrameIndex: 0, Joints: Joints{}},
			{FrameIndex: 1, Joints: Joints{}},
		},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate(valid) = %v", err)
	}

	badFPS := KeypointSequence{SourceFPS: 0}
	if err := badFPS.Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("Validate(zero fps) = %v, want ErrValidation", err)
	}

	gap := KeypointSequence{
		SourceFPS: 30,
		Frames:    []KeypointFrame{{FrameIndex: 0}, {FrameIndex: 2}},
	}
	if err := gap.Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("Validate(index gap) = %v, want ErrValidation", err)
	}
}
