// Package codec defines the versioned binary envelope used for durable
// pipeline artifacts: a fixed magic marker, a format version, a payload
// kind tag and a JSON payload. The envelope lets readers tell a corrupt
// or foreign object apart from a missing one, and leaves room to evolve
// the payload schema behind the version byte.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gaitserver/internal/domain"
)

// magic marks every artifact written by this service.
var magic = [4]byte{'G', 'A', 'I', 'T'}

// Version is the current envelope format version.
const Version byte = 1

// Payload kind tags.
const (
	kindKeypointSequence byte = 1
	kindRunningAnalysis  byte = 2
)

const headerLen = 6 // magic + version + kind

// EncodeKeypointSequence wraps a keypoint sequence in the envelope.
// Encoding is total for any in-memory value.
func EncodeKeypointSequence(seq domain.KeypointSequence) []byte {
	return encode(kindKeypointSequence, seq)
}

// EncodeRunningAnalysis wraps an analysis result in the envelope.
func EncodeRunningAnalysis(a domain.RunningAnalysis) []byte {
	return encode(kindRunningAnalysis, a)
}

// DecodeKeypointSequence unwraps and parses a keypoint sequence.
// Any structural problem, including empty input or a sequence that
// breaks the frame-ordering invariant, yields domain.ErrSerialization.
func DecodeKeypointSequence(b []byte) (domain.KeypointSequence, error) {
	var seq domain.KeypointSequence
	if err := decode(b, kindKeypointSequence, &seq); err != nil {
		return domain.KeypointSequence{}, err
	}
	// Parsing alone does not prove the artifact is usable; a sequence
	// with gaps or out-of-order frames would pair frames with the wrong
	// joints downstream.
	if err := seq.Validate(); err != nil {
		return domain.KeypointSequence{}, fmt.Errorf("codec: sequence invariant: %v: %w", err, domain.ErrSerialization)
	}
	return seq, nil
}

// DecodeRunningAnalysis unwraps and parses an analysis result.
func DecodeRunningAnalysis(b []byte) (domain.RunningAnalysis, error) {
	var a domain.RunningAnalysis
	if err := decode(b, kindRunningAnalysis, &a); err != nil {
		return domain.RunningAnalysis{}, err
	}
	return a, nil
}

func encode(kind byte, v any) []byte {
	payload, err := json.Marshal(v)
	if err != nil {
		// Marshalling a domain value cannot fail: the types contain only
		// maps, slices and numbers.
		panic(fmt.Sprintf("codec: marshal: %v", err))
	}
	out := make([]byte, 0, headerLen+len(payload))
	out = append(out, magic[:]...)
	out = append(out, Version, kind)
	return append(out, payload...)
}

func decode(b []byte, wantKind byte, v any) error {
	if len(b) < headerLen {
		return fmt.Errorf("codec: %d bytes is too short for an envelope: %w", len(b), domain.ErrSerialization)
	}
	if !bytes.Equal(b[:4], magic[:]) {
		return fmt.Errorf("codec: bad magic %q: %w", b[:4], domain.ErrSerialization)
	}
	if b[4] != Version {
		return fmt.Errorf("codec: unsupported version %d: %w", b[4], domain.ErrSerialization)
	}
	if b[5] != wantKind {
		return fmt.Errorf("codec: payload kind %d, want %d: %w", b[5], wantKind, domain.ErrSerialization)
	}
	dec := json.NewDecoder(bytes.NewReader(b[headerLen:]))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("codec: parse payload: %v: %w", err, domain.ErrSerialization)
	}
	if dec.More() {
		return fmt.Errorf("codec: trailing data after payload: %w", domain.ErrSerialization)
	}
	return nil
}
