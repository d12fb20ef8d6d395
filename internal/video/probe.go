package video

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
)

// probeResult carries the stream geometry needed to size raw frames.
type probeResult struct {
	Width  int
	Height int
}

// probe runs a single ffprobe JSON call against src (a path or URL) and
// returns the first video stream's dimensions.
func probe(ctx context.Context, ffprobePath, src string) (*probeResult, error) {
	cmd := exec.CommandContext(ctx, ffprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height",
		"-of", "json",
		src,
	)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("video: ffprobe: %w", err)
	}
	return parseProbeJSON(out)
}

// parseProbeJSON converts raw ffprobe JSON output into a probeResult.
// Split out for testing without a real ffprobe binary.
func parseProbeJSON(data []byte) (*probeResult, error) {
	var raw struct {
		Streams []struct {
			Width  int `json:"width"`
			Height int `json:"height"`
		} `json:"streams"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("video: parse ffprobe JSON: %w", err)
	}
	if len(raw.Streams) == 0 {
		return nil, fmt.Errorf("video: no video stream in ffprobe output")
	}
	s := raw.Streams[0]
	if s.Width <= 0 || s.Height <= 0 {
		return nil, fmt.Errorf("video: ffprobe reported %dx%d stream", s.Width, s.Height)
	}
	return &probeResult{Width: s.Width, Height: s.Height}, nil
}
