package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"gaitserver/internal/analysis"
	"gaitserver/internal/codec"
	"gaitserver/internal/domain"
	"gaitserver/internal/pose"
	"gaitserver/internal/storage"
	"gaitserver/internal/video"
)

// stubSource replays a fixed frame slice.
type stubSource struct {
	frames  []*video.Frame
	pos     int
	width   int
	height  int
	nextErr error
	closed  bool
	// gate, when set, blocks the first Next call until released. entered
	// is signaled once the call is in flight.
	gate    chan struct{}
	entered chan struct{}
}

func (s *stubSource) Next() (*video.Frame, error) {
	if s.gate != nil {
		g := s.gate
		s.gate = nil
		close(s.entered)
		<-g
	}
	if s.nextErr != nil {
		return nil, s.nextErr
	}
	if s.pos >= len(s.frames) {
		return nil, io.EOF
	}
	f := s.frames[s.pos]
	s.pos++
	return f, nil
}

func (s *stubSource) Close() error { s.closed = true; return nil }
func (s *stubSource) Width() int   { return s.width }
func (s *stubSource) Height() int  { return s.height }

// stubDecoder hands out a fresh stubSource per Open.
type stubDecoder struct {
	openErr error
	newSource func() *stubSource
	lastFPS float64
	lastSrc string
	opened  []*stubSource
}

func (d *stubDecoder) Open(ctx context.Context, src string, fps float64) (video.FrameSource, error) {
	d.lastSrc, d.lastFPS = src, fps
	if d.openErr != nil {
		return nil, d.openErr
	}
	s := d.newSource()
	d.opened = append(d.opened, s)
	return s, nil
}

// stubEncoder drains frames and writes a marker per frame, optionally
// failing after a set number of frames.
type stubEncoder struct {
	failAfter int
	err       error
	frames    int
}

func (e *stubEncoder) Encode(ctx context.Context, w io.Writer, opts video.EncodeOptions, next func() (*video.Frame, error)) error {
	for {
		if e.err != nil && e.frames == e.failAfter {
			return e.err
		}
		f, err := next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		e.frames++
		if _, err := fmt.Fprintf(w, "frame-%d;", f.Index); err != nil {
			return err
		}
	}
}

func testFrames(n, w, h int) []*video.Frame {
	out := make([]*video.Frame, n)
	for i := range out {
		out[i] = video.NewFrame(i, w, h)
	}
	return out
}

func kp(x, y float64) domain.Keypoint {
	return domain.Keypoint{X: x, Y: y, Confidence: 0.9}
}

// rightLegSeq builds a sequence whose right leg forms a right angle at
// the knee in every frame.
func rightLegSeq(frames int) domain.KeypointSequence {
	seq := domain.KeypointSequence{SourceFPS: 30}
	for i := 0; i < frames; i++ {
		seq.Frames = append(seq.Frames, domain.KeypointFrame{
			FrameIndex: i,
			Joints: domain.Joints{
				"right_hip":   kp(100, 100),
				"right_knee":  kp(100, 200),
				"right_ankle": kp(200, 200),
			},
		})
	}
	return seq
}

type testEnv struct {
	store     *storage.MemStore
	decoder   *stubDecoder
	encoder   *stubEncoder
	estimator pose.Estimator
	pipe      *Pipeline
	id        domain.VideoID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		store:   storage.NewMemStore(),
		decoder: &stubDecoder{newSource: func() *stubSource { return &stubSource{frames: testFrames(3, 4, 4), width: 4, height: 4} }},
		encoder: &stubEncoder{},
		estimator: pose.EstimatorFunc(func(ctx context.Context, f *video.Frame) (domain.Joints, error) {
			return domain.Joints{"nose": kp(float64(f.Index), 0)}, nil
		}),
		id: domain.NewVideoID(),
	}
	env.pipe = New(Options{
		Store:     env.store,
		Estimator: env.estimator,
		Engine:    analysis.NewEngine(0.5),
		Decoder:   env.decoder,
		Encoder:   env.encoder,
		Annotator: video.NewAnnotator(0.5),
		Log:       zerolog.Nop(),
	})
	return env
}

func (env *testEnv) seedInput() {
	env.store.SetObject(domain.ArtifactKey(env.id, domain.InputVideo), []byte("mp4 bytes"))
}

func (env *testEnv) seedEstimation(seq domain.KeypointSequence) {
	env.store.SetObject(domain.ArtifactKey(env.id, domain.EstimationData), codec.EncodeKeypointSequence(seq))
}

func TestEstimateWritesSequence(t *testing.T) {
	env := newTestEnv(t)
	env.seedInput()

	if err := env.pipe.Estimate(context.Background(), env.id, 15); err != nil {
		t.Fatalf("Estimate() error = %v", err)
	}
	if env.decoder.lastFPS != 15 {
		t.Fatalf("decoder opened at fps %v, want 15", env.decoder.lastFPS)
	}

	blob, ok := env.store.Object(domain.ArtifactKey(env.id, domain.EstimationData))
	if !ok {
		t.Fatal("estimation artifact not written")
	}
	seq, err := codec.DecodeKeypointSequence(blob)
	if err != nil {
		t.Fatalf("decode written sequence: %v", err)
	}
	if seq.SourceFPS != 15 || len(seq.Frames) != 3 {
		t.Fatalf("written sequence fps=%v frames=%d, want 15, 3", seq.SourceFPS, len(seq.Frames))
	}
	for i, f := range seq.Frames {
		if f.FrameIndex != i || f.Joints["nose"].X != float64(i) {
			t.Fatalf("frame %d = %+v, want per-frame inference result", i, f)
		}
	}
	if src := env.decoder.opened[0]; !src.closed {
		t.Fatal("decoder source not closed")
	}
}

func TestEstimateInvalidFPS(t *testing.T) {
	env := newTestEnv(t)
	env.seedInput()
	if err := env.pipe.Estimate(context.Background(), env.id, 0); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Estimate(fps=0) error = %v, want ErrValidation", err)
	}
}

func TestEstimateMissingInput(t *testing.T) {
	env := newTestEnv(t)
	if err := env.pipe.Estimate(context.Background(), env.id, 30); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Estimate() error = %v, want ErrNotFound", err)
	}
	if _, ok := env.store.Object(domain.ArtifactKey(env.id, domain.EstimationData)); ok {
		t.Fatal("estimation artifact written despite missing input")
	}
}

func TestEstimateInferenceFailure(t *testing.T) {
	env := newTestEnv(t)
	env.seedInput()
	boom := errors.New("model exploded")
	env.pipe.estimator = pose.EstimatorFunc(func(ctx context.Context, f *video.Frame) (domain.Joints, error) {
		if f.Index == 1 {
			return nil, boom
		}
		return domain.Joints{}, nil
	})

	err := env.pipe.Estimate(context.Background(), env.id, 30)
	if !errors.Is(err, domain.ErrCompute) {
		t.Fatalf("Estimate() error = %v, want ErrCompute", err)
	}
	if _, ok := env.store.Object(domain.ArtifactKey(env.id, domain.EstimationData)); ok {
		t.Fatal("partial estimation artifact written after inference failure")
	}
}

func TestAnalyzeBeforeEstimate(t *testing.T) {
	env := newTestEnv(t)
	env.seedInput()
	if _, err := env.pipe.Analyze(context.Background(), env.id, domain.SideRight); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Analyze() error = %v, want ErrNotFound", err)
	}
}

func TestAnalyzeWritesResult(t *testing.T) {
	env := newTestEnv(t)
	env.seedEstimation(rightLegSeq(4))

	result, err := env.pipe.Analyze(context.Background(), env.id, domain.SideRight)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if got := result.JointAngleMeans["right_knee"]; got < 89.99 || got > 90.01 {
		t.Fatalf("right_knee mean = %v, want 90", got)
	}

	blob, ok := env.store.Object(domain.ArtifactKey(env.id, domain.AnalysisData))
	if !ok {
		t.Fatal("analysis artifact not written")
	}
	stored, err := codec.DecodeRunningAnalysis(blob)
	if err != nil {
		t.Fatalf("decode written analysis: %v", err)
	}
	if !reflect.DeepEqual(stored, result) {
		t.Fatalf("stored analysis = %+v, want the returned result %+v", stored, result)
	}
}

func TestAnalyzeCorruptEstimation(t *testing.T) {
	env := newTestEnv(t)
	env.store.SetObject(domain.ArtifactKey(env.id, domain.EstimationData), []byte("not an artifact"))
	if _, err := env.pipe.Analyze(context.Background(), env.id, domain.SideRight); !errors.Is(err, domain.ErrSerialization) {
		t.Fatalf("Analyze() error = %v, want ErrSerialization", err)
	}
}

func TestRenderSuccess(t *testing.T) {
	env := newTestEnv(t)
	env.seedInput()
	env.seedEstimation(rightLegSeq(3))

	err := env.pipe.Render(context.Background(), env.id, RenderParams{FPS: 30, CRF: 23, ShowKeypoints: true, ShowSkeleton: true})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	blob, ok := env.store.Object(domain.ArtifactKey(env.id, domain.OutputVideo))
	if !ok {
		t.Fatal("output video not written")
	}
	if string(blob) != "frame-0;frame-1;frame-2;" {
		t.Fatalf("output = %q, want all three encoded frames", blob)
	}
	if src := env.decoder.opened[0]; !src.closed {
		t.Fatal("decoder source not closed")
	}
}

func TestRenderNoFrames(t *testing.T) {
	env := newTestEnv(t)
	env.seedInput()
	env.seedEstimation(rightLegSeq(1))
	env.decoder.newSource = func() *stubSource { return &stubSource{width: 4, height: 4} }

	err := env.pipe.Render(context.Background(), env.id, RenderParams{FPS: 30})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Render(empty video) error = %v, want ErrValidation", err)
	}
	if _, ok := env.store.Object(domain.ArtifactKey(env.id, domain.OutputVideo)); ok {
		t.Fatal("output video written for an empty input")
	}
}

func TestRenderMissingEstimation(t *testing.T) {
	env := newTestEnv(t)
	env.seedInput()
	if err := env.pipe.Render(context.Background(), env.id, RenderParams{FPS: 30}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Render() error = %v, want ErrNotFound", err)
	}
}

func TestRenderEncodeFailureWritesNothing(t *testing.T) {
	env := newTestEnv(t)
	env.seedInput()
	env.seedEstimation(rightLegSeq(3))
	env.encoder.failAfter = 1
	env.encoder.err = errors.New("encoder crashed")

	err := env.pipe.Render(context.Background(), env.id, RenderParams{FPS: 30})
	if !errors.Is(err, domain.ErrCompute) {
		t.Fatalf("Render() error = %v, want ErrCompute", err)
	}
	if _, ok := env.store.Object(domain.ArtifactKey(env.id, domain.OutputVideo)); ok {
		t.Fatal("partial output video became visible after an encode failure")
	}
}

// abortingPutStore fails a streamed Put after one byte without draining
// the rest of the reader, like an object store dropping the connection
// mid-upload.
type abortingPutStore struct {
	*storage.MemStore
}

func (s *abortingPutStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	buf := make([]byte, 1)
	r.Read(buf)
	return fmt.Errorf("storage: put %s: connection reset: %w", key, domain.ErrStorageUnavailable)
}

func TestRenderPutFailureMidStream(t *testing.T) {
	env := newTestEnv(t)
	env.seedInput()
	env.seedEstimation(rightLegSeq(3))
	env.decoder.newSource = func() *stubSource {
		return &stubSource{frames: testFrames(64, 4, 4), width: 4, height: 4}
	}
	env.pipe.store = &abortingPutStore{MemStore: env.store}

	done := make(chan error, 1)
	go func() { done <- env.pipe.Render(context.Background(), env.id, RenderParams{FPS: 30}) }()
	select {
	case err := <-done:
		if !errors.Is(err, domain.ErrStorageUnavailable) {
			t.Fatalf("Render() error = %v, want ErrStorageUnavailable", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Render() did not return after the upload failed mid-stream")
	}

	// The failed stage must have released the video for the next attempt.
	if err := env.pipe.DeleteArtifacts(context.Background(), env.id); errors.Is(err, domain.ErrBusy) {
		t.Fatalf("DeleteArtifacts(after failed render) = %v, lock still held", err)
	}
}

func TestFetchAnalysis(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.pipe.FetchAnalysis(context.Background(), env.id); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("FetchAnalysis(missing) error = %v, want ErrNotFound", err)
	}

	env.store.SetObject(domain.ArtifactKey(env.id, domain.AnalysisData), []byte("garbage"))
	if _, err := env.pipe.FetchAnalysis(context.Background(), env.id); !errors.Is(err, domain.ErrSerialization) {
		t.Fatalf("FetchAnalysis(corrupt) error = %v, want ErrSerialization", err)
	}

	want := domain.RunningAnalysis{
		Side:              domain.SideRight,
		JointAngleMeans:   map[string]float64{"right_knee": 90},
		ArmSwingAmplitude: map[domain.Side]domain.AngleRange{domain.SideRight: {Min: 10, Max: 40}},
	}
	env.store.SetObject(domain.ArtifactKey(env.id, domain.AnalysisData), codec.EncodeRunningAnalysis(want))
	got, err := env.pipe.FetchAnalysis(context.Background(), env.id)
	if err != nil {
		t.Fatalf("FetchAnalysis() error = %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("FetchAnalysis() = %+v, want %+v", got, want)
	}
}

func TestDownloadLink(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.pipe.DownloadLink(context.Background(), env.id); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("DownloadLink(missing) error = %v, want ErrNotFound", err)
	}

	key := domain.ArtifactKey(env.id, domain.OutputVideo)
	env.store.SetObject(key, []byte("mp4"))
	u, err := env.pipe.DownloadLink(context.Background(), env.id)
	if err != nil {
		t.Fatalf("DownloadLink() error = %v", err)
	}
	if got := u.String(); got != "memory://bucket/"+key {
		t.Fatalf("DownloadLink() = %q", got)
	}

	env.store.Fail["presign"] = true
	if _, err := env.pipe.DownloadLink(context.Background(), env.id); !errors.Is(err, domain.ErrCompute) {
		t.Fatalf("DownloadLink(presign failure) error = %v, want ErrCompute", err)
	}
}

func TestDeleteArtifacts(t *testing.T) {
	env := newTestEnv(t)
	for _, kind := range domain.AllArtifactKinds {
		env.store.SetObject(domain.ArtifactKey(env.id, kind), []byte("x"))
	}

	if err := env.pipe.DeleteArtifacts(context.Background(), env.id); err != nil {
		t.Fatalf("DeleteArtifacts() error = %v", err)
	}
	for _, kind := range domain.AllArtifactKinds {
		if _, ok := env.store.Object(domain.ArtifactKey(env.id, kind)); ok {
			t.Fatalf("%s survived deletion", kind)
		}
	}

	// Nothing left; a repeat must still succeed.
	if err := env.pipe.DeleteArtifacts(context.Background(), env.id); err != nil {
		t.Fatalf("DeleteArtifacts(again) error = %v, want nil", err)
	}
}

func TestDeleteArtifactsTransportFailure(t *testing.T) {
	env := newTestEnv(t)
	env.store.Fail["delete"] = true
	if err := env.pipe.DeleteArtifacts(context.Background(), env.id); !errors.Is(err, domain.ErrStorageUnavailable) {
		t.Fatalf("DeleteArtifacts() error = %v, want ErrStorageUnavailable", err)
	}
}

func TestStagesRejectConcurrentWork(t *testing.T) {
	env := newTestEnv(t)
	env.seedInput()

	gate := make(chan struct{})
	entered := make(chan struct{})
	env.decoder.newSource = func() *stubSource {
		return &stubSource{frames: testFrames(1, 4, 4), width: 4, height: 4, gate: gate, entered: entered}
	}

	done := make(chan error, 1)
	go func() { done <- env.pipe.Estimate(context.Background(), env.id, 30) }()
	<-entered

	if _, err := env.pipe.Analyze(context.Background(), env.id, domain.SideRight); !errors.Is(err, domain.ErrBusy) {
		t.Fatalf("Analyze(while estimating) error = %v, want ErrBusy", err)
	}
	if err := env.pipe.DeleteArtifacts(context.Background(), env.id); !errors.Is(err, domain.ErrBusy) {
		t.Fatalf("DeleteArtifacts(while estimating) error = %v, want ErrBusy", err)
	}

	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("Estimate() error = %v", err)
	}

	// Released: the next stage proceeds and the artifact is decodable.
	if _, err := env.pipe.Analyze(context.Background(), env.id, domain.SideRight); errors.Is(err, domain.ErrBusy) {
		t.Fatalf("Analyze(after release) still busy: %v", err)
	}
	blob, ok := env.store.Object(domain.ArtifactKey(env.id, domain.EstimationData))
	if !ok {
		t.Fatal("estimation artifact not written")
	}
	if _, err := codec.DecodeKeypointSequence(blob); err != nil {
		t.Fatalf("decode estimation after concurrent rejection: %v", err)
	}
}

func TestDistinctVideosDoNotContend(t *testing.T) {
	env := newTestEnv(t)
	env.seedInput()
	other := domain.NewVideoID()
	env.store.SetObject(domain.ArtifactKey(other, domain.InputVideo), []byte("mp4 bytes"))

	gate := make(chan struct{})
	entered := make(chan struct{})
	blocking := &stubSource{frames: testFrames(1, 4, 4), width: 4, height: 4, gate: gate, entered: entered}
	free := &stubSource{frames: testFrames(1, 4, 4), width: 4, height: 4}
	sources := []*stubSource{blocking, free}
	env.decoder.newSource = func() *stubSource {
		s := sources[0]
		sources = sources[1:]
		return s
	}
	// Two slots so the second estimation is not queued behind the first.
	env.pipe = New(Options{
		Store:                    env.store,
		Estimator:                env.estimator,
		Engine:                   analysis.NewEngine(0.5),
		Decoder:                  env.decoder,
		Encoder:                  env.encoder,
		Annotator:                video.NewAnnotator(0.5),
		Log:                      zerolog.Nop(),
		MaxConcurrentEstimations: 2,
	})

	done := make(chan error, 1)
	go func() { done <- env.pipe.Estimate(context.Background(), env.id, 30) }()
	<-entered

	if err := env.pipe.Estimate(context.Background(), other, 30); err != nil {
		t.Fatalf("Estimate(other video) error = %v, want it to run alongside", err)
	}

	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("Estimate(first video) error = %v", err)
	}
}
