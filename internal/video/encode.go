package video

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"
)

// EncodeOptions fix the geometry and quality of the output container.
type EncodeOptions struct {
	Width  int
	Height int
	FPS    float64
	// CRF is the libx264 constant rate factor, 0-51, lower is better.
	CRF int
}

// Encoder consumes frames from next until io.EOF and writes an encoded
// MP4 container to w. Any other error from next aborts the encode.
type Encoder interface {
	Encode(ctx context.Context, w io.Writer, opts EncodeOptions, next func() (*Frame, error)) error
}

// FFmpegEncoder pipes raw rgb24 frames into an ffmpeg child process that
// emits a fragmented MP4, so the container is streamable as it is
// produced and nothing is spooled to disk.
type FFmpegEncoder struct {
	FFmpegPath string
	Log        zerolog.Logger
}

func (e *FFmpegEncoder) Encode(ctx context.Context, w io.Writer, opts EncodeOptions, next func() (*Frame, error)) error {
	// libx264 requires even dimensions; odd inputs are trimmed by a pixel.
	width, height := opts.Width&^1, opts.Height&^1
	if width <= 0 || height <= 0 {
		return fmt.Errorf("video: cannot encode %dx%d frames", opts.Width, opts.Height)
	}

	cmd := exec.CommandContext(ctx, e.FFmpegPath,
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"-s", fmt.Sprintf("%dx%d", opts.Width, opts.Height),
		"-r", fmt.Sprintf("%g", opts.FPS),
		"-i", "pipe:0",
		"-vf", fmt.Sprintf("crop=%d:%d", width, height),
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", fmt.Sprintf("%d", opts.CRF),
		"-pix_fmt", "yuv420p",
		"-movflags", "frag_keyframe+empty_moov",
		"-f", "mp4",
		"-loglevel", "error",
		"pipe:1",
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.Stdout = w
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("video: encoder stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("video: start ffmpeg encode: %w", err)
	}

	feedErr := e.feed(stdin, next)
	waitErr := cmd.Wait()
	if feedErr != nil {
		// Frame production failed; the ffmpeg exit status is secondary.
		return feedErr
	}
	if waitErr != nil {
		msg := strings.TrimSpace(stderr.String())
		e.Log.Error().Str("side", "encode").Str("stderr", msg).Err(waitErr).Msg("ffmpeg encode failed")
		return fmt.Errorf("video: ffmpeg encode: %s: %w", msg, waitErr)
	}
	return nil
}

// feed pushes frames into stdin until next reports io.EOF, then closes
// stdin so ffmpeg can finalize the container.
func (e *FFmpegEncoder) feed(stdin io.WriteCloser, next func() (*Frame, error)) error {
	defer stdin.Close()
	for {
		f, err := next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if _, err := stdin.Write(f.Pix); err != nil {
			return fmt.Errorf("video: write frame %d to encoder: %w", f.Index, err)
		}
	}
}
