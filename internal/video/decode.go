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

// FrameSource yields decoded frames one at a time. Next returns io.EOF
// after the last frame. Close is idempotent; calls after the first
// return the first call's result.
type FrameSource interface {
	Next() (*Frame, error)
	Close() error
	Width() int
	Height() int
}

// Decoder opens a streaming decode of a video reachable at src, resampled
// to the requested frame rate.
type Decoder interface {
	Open(ctx context.Context, src string, fps float64) (FrameSource, error)
}

// FFmpegDecoder decodes via an ffmpeg child process writing raw rgb24
// frames to a pipe. Memory use is one frame regardless of video length.
type FFmpegDecoder struct {
	FFmpegPath  string
	FFprobePath string
	Log         zerolog.Logger
}

func (d *FFmpegDecoder) Open(ctx context.Context, src string, fps float64) (FrameSource, error) {
	info, err := probe(ctx, d.FFprobePath, src)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, d.FFmpegPath,
		"-i", src,
		"-vf", fmt.Sprintf("fps=%g", fps),
		"-pix_fmt", "rgb24",
		"-f", "rawvideo",
		"-loglevel", "error",
		"pipe:1",
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("video: decoder stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("video: start ffmpeg decode: %w", err)
	}

	return &ffmpegSource{
		cmd:    cmd,
		stdout: stdout,
		stderr: &stderr,
		width:  info.Width,
		height: info.Height,
		log:    d.Log,
	}, nil
}

type ffmpegSource struct {
	cmd      *exec.Cmd
	stdout   io.ReadCloser
	stderr   *bytes.Buffer
	width    int
	height   int
	next     int
	closed   bool
	closeErr error
	log      zerolog.Logger
}

func (s *ffmpegSource) Width() int  { return s.width }
func (s *ffmpegSource) Height() int { return s.height }

func (s *ffmpegSource) Next() (*Frame, error) {
	f := NewFrame(s.next, s.width, s.height)
	if _, err := io.ReadFull(s.stdout, f.Pix); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			// End of stream. A trailing partial frame is discarded, the
			// exit status is checked in Close.
			return nil, io.EOF
		}
		return nil, fmt.Errorf("video: read decoded frame %d: %w", s.next, err)
	}
	s.next++
	return f, nil
}

// Close reaps the child process. A non-zero exit is a decode-side
// failure; stderr is logged for diagnostics.
func (s *ffmpegSource) Close() error {
	if s.closed {
		return s.closeErr
	}
	s.closed = true
	s.stdout.Close()
	if err := s.cmd.Wait(); err != nil {
		msg := strings.TrimSpace(s.stderr.String())
		s.log.Error().Str("side", "decode").Str("stderr", msg).Err(err).Msg("ffmpeg decode failed")
		s.closeErr = fmt.Errorf("video: ffmpeg decode: %s: %w", msg, err)
	}
	return s.closeErr
}
