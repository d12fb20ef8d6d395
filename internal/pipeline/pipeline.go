// Package pipeline orchestrates the artifact lifecycle of one uploaded
// video: pose estimation, running analysis, annotated rendering, result
// retrieval and deletion. Stage state is never stored; preconditions are
// re-derived from artifact existence on every call, which makes each
// stage an idempotent, retryable overwrite.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"gaitserver/internal/analysis"
	"gaitserver/internal/codec"
	"gaitserver/internal/domain"
	"gaitserver/internal/pose"
	"gaitserver/internal/storage"
	"gaitserver/internal/video"
)

// Options wires the pipeline's collaborators.
type Options struct {
	Store     storage.Store
	Estimator pose.Estimator
	Engine    *analysis.Engine
	Decoder   video.Decoder
	Encoder   video.Encoder
	Annotator *video.Annotator
	Log       zerolog.Logger

	// PresignTTL bounds the lifetime of URLs handed to ffmpeg and to
	// download clients.
	PresignTTL time.Duration
	// MaxConcurrentEstimations caps estimate stages across all videos to
	// protect the inference capability from overload. Zero means 1.
	MaxConcurrentEstimations int
}

// Pipeline drives the per-video stage machine. Safe for concurrent use;
// stages on distinct videos run fully in parallel.
type Pipeline struct {
	store      storage.Store
	estimator  pose.Estimator
	engine     *analysis.Engine
	decoder    video.Decoder
	encoder    video.Encoder
	annotator  *video.Annotator
	locks      *lockRegistry
	inferSem   *semaphore.Weighted
	presignTTL time.Duration
	log        zerolog.Logger
}

// New constructs a Pipeline from its collaborators.
func New(opts Options) *Pipeline {
	workers := opts.MaxConcurrentEstimations
	if workers <= 0 {
		workers = 1
	}
	ttl := opts.PresignTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Pipeline{
		store:      opts.Store,
		estimator:  opts.Estimator,
		engine:     opts.Engine,
		decoder:    opts.Decoder,
		encoder:    opts.Encoder,
		annotator:  opts.Annotator,
		locks:      newLockRegistry(),
		inferSem:   semaphore.NewWeighted(int64(workers)),
		presignTTL: ttl,
		log:        opts.Log,
	}
}

// RenderParams control the render stage.
type RenderParams struct {
	FPS           float64
	CRF           int
	ShowKeypoints bool
	ShowSkeleton  bool
}

// Estimate decodes the input video at the requested sampling rate, runs
// inference on every frame and writes the keypoint sequence artifact,
// overwriting any prior one. A failure on any frame aborts the whole
// stage without writing.
func (p *Pipeline) Estimate(ctx context.Context, id domain.VideoID, fps float64) error {
	if fps <= 0 {
		return fmt.Errorf("pipeline: fps %v must be positive: %w", fps, domain.ErrValidation)
	}
	if err := p.locks.acquire(id); err != nil {
		return err
	}
	defer p.locks.release(id)

	if err := p.inferSem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("pipeline: estimation aborted while waiting for a worker slot: %w", domain.ErrCompute)
	}
	defer p.inferSem.Release(1)

	if err := p.requireArtifact(ctx, id, domain.InputVideo); err != nil {
		return err
	}

	seq, err := p.runEstimation(ctx, id, fps)
	if err != nil {
		return err
	}

	blob := codec.EncodeKeypointSequence(seq)
	key := domain.ArtifactKey(id, domain.EstimationData)
	if err := p.store.Put(ctx, key, bytes.NewReader(blob), int64(len(blob)), "application/octet-stream"); err != nil {
		return fmt.Errorf("pipeline: save estimation: %w", err)
	}
	p.log.Info().Str("video_id", id.String()).Int("frames", len(seq.Frames)).Msg("estimation complete")
	return nil
}

// runEstimation streams frames through the inference capability.
func (p *Pipeline) runEstimation(ctx context.Context, id domain.VideoID, fps float64) (domain.KeypointSequence, error) {
	var zero domain.KeypointSequence

	src, err := p.openInput(ctx, id, fps)
	if err != nil {
		return zero, err
	}
	defer src.Close()

	seq := domain.KeypointSequence{SourceFPS: fps}
	for {
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("pipeline: estimation canceled: %v: %w", err, domain.ErrCompute)
		}
		frame, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return zero, fmt.Errorf("pipeline: decode input: %v: %w", err, domain.ErrCompute)
		}
		joints, err := p.estimator.Infer(ctx, frame)
		if err != nil {
			return zero, fmt.Errorf("pipeline: inference on frame %d: %v: %w", frame.Index, err, domain.ErrCompute)
		}
		seq.Frames = append(seq.Frames, domain.KeypointFrame{FrameIndex: frame.Index, Joints: joints})
	}
	return seq, nil
}

// Analyze loads the keypoint sequence, runs the running-analysis engine
// for the requested side and writes the analysis artifact, overwriting
// any prior one (re-running with a different side replaces the result).
func (p *Pipeline) Analyze(ctx context.Context, id domain.VideoID, side domain.Side) (domain.RunningAnalysis, error) {
	var zero domain.RunningAnalysis
	if err := p.locks.acquire(id); err != nil {
		return zero, err
	}
	defer p.locks.release(id)

	if err := p.requireArtifact(ctx, id, domain.EstimationData); err != nil {
		return zero, err
	}
	seq, err := p.loadEstimation(ctx, id)
	if err != nil {
		return zero, err
	}

	result, err := p.engine.Analyze(seq, side)
	if err != nil {
		return zero, fmt.Errorf("pipeline: analyze video %s: %w", id, err)
	}

	blob := codec.EncodeRunningAnalysis(result)
	key := domain.ArtifactKey(id, domain.AnalysisData)
	if err := p.store.Put(ctx, key, bytes.NewReader(blob), int64(len(blob)), "application/octet-stream"); err != nil {
		return zero, fmt.Errorf("pipeline: save analysis: %w", err)
	}
	p.log.Info().Str("video_id", id.String()).Str("side", string(side)).Msg("analysis complete")
	return result, nil
}

// Render overlays the keypoint sequence onto the input video and streams
// the annotated MP4 into storage. The output object becomes visible only
// on full success; an encode or render failure aborts the Put, so a
// half-written video is never left under the canonical key.
func (p *Pipeline) Render(ctx context.Context, id domain.VideoID, params RenderParams) error {
	if params.FPS <= 0 {
		return fmt.Errorf("pipeline: fps %v must be positive: %w", params.FPS, domain.ErrValidation)
	}
	if err := p.locks.acquire(id); err != nil {
		return err
	}
	defer p.locks.release(id)

	if err := p.requireArtifact(ctx, id, domain.InputVideo); err != nil {
		return err
	}
	if err := p.requireArtifact(ctx, id, domain.EstimationData); err != nil {
		return err
	}
	seq, err := p.loadEstimation(ctx, id)
	if err != nil {
		return err
	}

	src, err := p.openInput(ctx, id, params.FPS)
	if err != nil {
		return err
	}
	defer src.Close()

	// Pull the first frame before any rendering work: an empty stream is
	// a validation failure, not a render failure.
	first, err := src.Next()
	if err == io.EOF {
		return fmt.Errorf("pipeline: input video has no frames: %w", domain.ErrValidation)
	}
	if err != nil {
		return fmt.Errorf("pipeline: decode input: %v: %w", err, domain.ErrCompute)
	}

	flags := video.RenderFlags{ShowKeypoints: params.ShowKeypoints, ShowSkeleton: params.ShowSkeleton}
	next := p.annotatedFrames(ctx, src, first, seq, params, flags)

	opts := video.EncodeOptions{Width: src.Width(), Height: src.Height(), FPS: params.FPS, CRF: params.CRF}
	if err := p.encodeToStorage(ctx, id, opts, next); err != nil {
		return err
	}
	if err := src.Close(); err != nil {
		return fmt.Errorf("pipeline: finish decode: %v: %w", err, domain.ErrCompute)
	}
	p.log.Info().Str("video_id", id.String()).Msg("render complete")
	return nil
}

// annotatedFrames returns a frame producer that annotates each decoded
// frame with its nearest-preceding estimation frame.
func (p *Pipeline) annotatedFrames(ctx context.Context, src video.FrameSource, first *video.Frame, seq domain.KeypointSequence, params RenderParams, flags video.RenderFlags) func() (*video.Frame, error) {
	pending := first
	return func() (*video.Frame, error) {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("pipeline: render canceled: %v: %w", err, domain.ErrCompute)
		}
		frame := pending
		if frame == nil {
			var err error
			frame, err = src.Next()
			if err != nil {
				return nil, err
			}
		}
		pending = nil

		est := video.MatchEstimationFrame(frame.Index, params.FPS, seq.SourceFPS)
		if est >= 0 && est < len(seq.Frames) {
			p.annotator.Annotate(frame, seq.Frames[est].Joints, flags)
		}
		return frame, nil
	}
}

// encodeToStorage runs the encoder and the storage upload as the two ends
// of one pipe. When encoding fails the pipe is closed with the error, the
// upload aborts and the object never appears.
func (p *Pipeline) encodeToStorage(ctx context.Context, id domain.VideoID, opts video.EncodeOptions, next func() (*video.Frame, error)) error {
	pr, pw := io.Pipe()
	encodeDone := make(chan error, 1)
	go func() {
		err := p.encoder.Encode(ctx, pw, opts, next)
		pw.CloseWithError(err)
		encodeDone <- err
	}()

	key := domain.ArtifactKey(id, domain.OutputVideo)
	putErr := p.store.Put(ctx, key, pr, -1, "video/mp4")
	if putErr != nil {
		// The upload can abort without draining the pipe; close the read
		// end so the encoder's next write fails and it exits.
		pr.CloseWithError(putErr)
	}
	encodeErr := <-encodeDone

	// An aborted upload propagates into the encoder through the closed
	// pipe; that induced write failure must report as the storage kind.
	if putErr != nil && (encodeErr == nil || errors.Is(encodeErr, domain.ErrStorageUnavailable)) {
		return fmt.Errorf("pipeline: save output video: %w", putErr)
	}
	if encodeErr != nil {
		if errors.Is(encodeErr, domain.ErrCompute) {
			return encodeErr
		}
		return fmt.Errorf("pipeline: render output: %v: %w", encodeErr, domain.ErrCompute)
	}
	if putErr != nil {
		return fmt.Errorf("pipeline: save output video: %w", putErr)
	}
	return nil
}

// FetchAnalysis loads and decodes the analysis artifact. A missing
// artifact and an unreadable one are reported as distinct failures.
func (p *Pipeline) FetchAnalysis(ctx context.Context, id domain.VideoID) (domain.RunningAnalysis, error) {
	var zero domain.RunningAnalysis
	blob, err := p.readArtifact(ctx, id, domain.AnalysisData)
	if err != nil {
		return zero, err
	}
	result, err := codec.DecodeRunningAnalysis(blob)
	if err != nil {
		return zero, fmt.Errorf("pipeline: analysis for video %s: %w", id, err)
	}
	return result, nil
}

// DownloadLink verifies the output video exists and presigns a
// time-limited URL for it. A presign failure is a processing failure,
// distinct from the artifact being absent.
func (p *Pipeline) DownloadLink(ctx context.Context, id domain.VideoID) (*url.URL, error) {
	if err := p.requireArtifact(ctx, id, domain.OutputVideo); err != nil {
		return nil, err
	}
	u, err := p.store.Presign(ctx, domain.ArtifactKey(id, domain.OutputVideo), p.presignTTL)
	if err != nil {
		return nil, fmt.Errorf("pipeline: presign output video: %v: %w", err, domain.ErrCompute)
	}
	return u, nil
}

// DeleteArtifacts removes every artifact of the video. Each deletion is
// individually idempotent; keys with no backing object are not errors.
// All four deletions are attempted even when one fails, and any transport
// failure fails the whole operation so callers treat it as incomplete.
func (p *Pipeline) DeleteArtifacts(ctx context.Context, id domain.VideoID) error {
	if err := p.locks.acquire(id); err != nil {
		return err
	}
	defer p.locks.release(id)

	var errs []error
	for _, kind := range domain.AllArtifactKinds {
		if err := p.store.Delete(ctx, domain.ArtifactKey(id, kind)); err != nil {
			errs = append(errs, fmt.Errorf("pipeline: delete %s: %w", kind, err))
		}
	}
	return errors.Join(errs...)
}

// requireArtifact enforces a stage precondition by checking existence.
func (p *Pipeline) requireArtifact(ctx context.Context, id domain.VideoID, kind domain.ArtifactKind) error {
	ok, err := p.store.Exists(ctx, domain.ArtifactKey(id, kind))
	if err != nil {
		return fmt.Errorf("pipeline: check %s: %w", kind, err)
	}
	if !ok {
		return fmt.Errorf("pipeline: %s for video %s: %w", kind, id, domain.ErrNotFound)
	}
	return nil
}

// openInput presigns the input video and opens a streaming decode of it.
func (p *Pipeline) openInput(ctx context.Context, id domain.VideoID, fps float64) (video.FrameSource, error) {
	u, err := p.store.Presign(ctx, domain.ArtifactKey(id, domain.InputVideo), p.presignTTL)
	if err != nil {
		return nil, fmt.Errorf("pipeline: presign input video: %w", err)
	}
	src, err := p.decoder.Open(ctx, u.String(), fps)
	if err != nil {
		return nil, fmt.Errorf("pipeline: open input video: %v: %w", err, domain.ErrCompute)
	}
	return src, nil
}

// readArtifact fetches a small artifact fully into memory.
func (p *Pipeline) readArtifact(ctx context.Context, id domain.VideoID, kind domain.ArtifactKind) ([]byte, error) {
	rc, err := p.store.Get(ctx, domain.ArtifactKey(id, kind))
	if err != nil {
		return nil, fmt.Errorf("pipeline: fetch %s: %w", kind, err)
	}
	defer rc.Close()
	blob, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("pipeline: read %s: %v: %w", kind, err, domain.ErrStorageUnavailable)
	}
	return blob, nil
}

// loadEstimation fetches and decodes the keypoint sequence artifact.
func (p *Pipeline) loadEstimation(ctx context.Context, id domain.VideoID) (domain.KeypointSequence, error) {
	blob, err := p.readArtifact(ctx, id, domain.EstimationData)
	if err != nil {
		return domain.KeypointSequence{}, err
	}
	seq, err := codec.DecodeKeypointSequence(blob)
	if err != nil {
		return domain.KeypointSequence{}, fmt.Errorf("pipeline: estimation for video %s: %w", id, err)
	}
	return seq, nil
}
