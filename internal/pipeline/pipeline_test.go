package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/Vovarama1992/dubflow/internal/media"
	"github.com/Vovarama1992/dubflow/internal/ports"
	"github.com/Vovarama1992/dubflow/internal/transcribe"
	"github.com/Vovarama1992/dubflow/internal/translate"
)

// --- fakes -----------------------------------------------------------------

type memJobRepo struct {
	mu   sync.Mutex
	jobs map[string]*ports.Job
}

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{jobs: map[string]*ports.Job{}}
}

func (r *memJobRepo) Create(ctx context.Context, job *ports.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *job
	r.jobs[job.ID] = &cp
	return nil
}

func (r *memJobRepo) Get(ctx context.Context, id string) (*ports.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (r *memJobRepo) List(ctx context.Context, limit int) ([]ports.Job, error) { return nil, nil }

func (r *memJobRepo) ClaimPending(ctx context.Context) (*ports.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.jobs {
		if j.State == ports.JobPending {
			j.State = ports.JobTranscribing
			cp := *j
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memJobRepo) ListRunning(ctx context.Context) ([]ports.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ports.Job
	for _, j := range r.jobs {
		if j.State != ports.JobPending && !j.Terminal() {
			out = append(out, *j)
		}
	}
	return out, nil
}

func (r *memJobRepo) Advance(ctx context.Context, id, from, to string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok || j.State != from {
		return ports.ErrStaleState
	}
	j.State = to
	j.Attempts = 0
	return nil
}

func (r *memJobRepo) SetArtifact(ctx context.Context, id, column, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j := r.jobs[id]
	switch column {
	case artTranscript:
		j.Transcript = &key
	case artSubtitles:
		j.Subtitles = &key
	case artDubAudio:
		j.DubAudio = &key
	case artFinalVideo:
		j.FinalVideo = &key
	default:
		return fmt.Errorf("unknown column %q", column)
	}
	return nil
}

func (r *memJobRepo) BumpAttempts(ctx context.Context, id string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j := r.jobs[id]
	j.Attempts++
	return j.Attempts, nil
}

func (r *memJobRepo) MarkFailed(ctx context.Context, id, stage, msg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j := r.jobs[id]
	j.State = ports.JobFailed
	j.FailedStage = &stage
	j.Error = &msg
	return nil
}

func (r *memJobRepo) MarkDone(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[id].State = ports.JobDone
	return nil
}

func (r *memJobRepo) Requeue(ctx context.Context, id string) (*ports.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok || j.State != ports.JobFailed || j.FailedStage == nil {
		return nil, ports.ErrNotFound
	}
	j.State = *j.FailedStage
	j.FailedStage = nil
	j.Error = nil
	j.Attempts = 0
	cp := *j
	return &cp, nil
}

type memArtifacts struct {
	mu    sync.Mutex
	items map[string]string
}

func newMemArtifacts() *memArtifacts { return &memArtifacts{items: map[string]string{}} }

func artCacheKey(hash, stage, lang string) string { return hash + "/" + stage + "/" + lang }

func (a *memArtifacts) Lookup(ctx context.Context, hash, stage, lang string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if key, ok := a.items[artCacheKey(hash, stage, lang)]; ok {
		return key, nil
	}
	return "", ports.ErrNotFound
}

func (a *memArtifacts) Save(ctx context.Context, art ports.Artifact) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.items[artCacheKey(art.ContentHash, art.Stage, art.TargetLang)] = art.ObjectKey
	return nil
}

// memStorage holds objects in memory; file up/downloads shuttle bytes
// between the map and the local path.
type memStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemStorage() *memStorage { return &memStorage{objects: map[string][]byte{}} }

func (s *memStorage) PutObject(ctx context.Context, key string, r io.Reader, size int64, ct string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	return nil
}

func (s *memStorage) GetObject(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *memStorage) UploadFile(ctx context.Context, key, localPath, ct string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		// ffmpeg is faked in tests, outputs may not exist
		data = []byte("fake")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	return nil
}

func (s *memStorage) DownloadFile(ctx context.Context, key, localPath string) error {
	s.mu.Lock()
	data, ok := s.objects[key]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("object %s not found", key)
	}
	return os.WriteFile(localPath, data, 0644)
}

func (s *memStorage) PresignedGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	return "https://example.com/" + key, nil
}

// fakeRunner answers ffprobe with a fixed duration and treats every ffmpeg
// invocation as a success.
type fakeRunner struct {
	mu       sync.Mutex
	commands [][]string
	duration string
}

func (r *fakeRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	r.mu.Lock()
	r.commands = append(r.commands, append([]string{name}, args...))
	r.mu.Unlock()
	if name == "ffprobe" {
		return r.duration + "\n", nil
	}
	return "", nil
}

type fakeTranscriber struct {
	mu         sync.Mutex
	transcript *transcribe.Transcript
	err        error
	calls      int
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, filePath, language string) (*transcribe.Transcript, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.transcript, f.err
}

func (f *fakeTranscriber) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeSynth struct {
	mu    sync.Mutex
	texts []string
}

func (f *fakeSynth) Synthesize(ctx context.Context, text, outPath string) error {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.mu.Unlock()
	return os.WriteFile(outPath, []byte("audio"), 0644)
}

type recordingNotifier struct {
	mu     sync.Mutex
	stages []string
}

func (n *recordingNotifier) JobFailed(ctx context.Context, job *ports.Job, stage string, err error) {
	n.mu.Lock()
	n.stages = append(n.stages, stage)
	n.mu.Unlock()
}

type echoTranslator struct{}

func (echoTranslator) Translate(ctx context.Context, req translate.Request) (string, error) {
	return "JA:" + req.Text, nil
}

// --- tests -----------------------------------------------------------------

func testTranscript() *transcribe.Transcript {
	return &transcribe.Transcript{
		Language: "en",
		Duration: 10,
		Segments: []transcribe.Segment{
			{Start: 0.5, End: 2.5, Text: "hello there", Confidence: 0.9},
			{Start: 4, End: 6, Text: "general remarks", Confidence: 0.8},
		},
	}
}

type fixture struct {
	repo      *memJobRepo
	artifacts *memArtifacts
	storage   *memStorage
	trans     *fakeTranscriber
	synth     *fakeSynth
	notifier  *recordingNotifier
	runner    *fakeRunner
	pipe      *Pipeline
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:      newMemJobRepo(),
		artifacts: newMemArtifacts(),
		storage:   newMemStorage(),
		trans:     &fakeTranscriber{transcript: testTranscript()},
		synth:     &fakeSynth{},
		notifier:  &recordingNotifier{},
		runner:    &fakeRunner{duration: "1.5"},
	}
	f.pipe = New(
		f.repo, f.artifacts, f.storage,
		f.trans,
		translate.NewService(echoTranslator{}, 5.68, 2, 1),
		f.synth,
		media.NewFFmpeg(f.runner),
		f.notifier,
		1, 2, 0.25,
	)
	return f
}

func (f *fixture) seedJob(t *testing.T, state string) *ports.Job {
	t.Helper()
	job := &ports.Job{
		ID:          "job-1",
		SourceKey:   "sources/job-1/demo.mp4",
		SourceName:  "demo.mp4",
		ContentHash: "hash-1",
		SourceLang:  "en",
		TargetLang:  "ja",
		State:       state,
	}
	if err := f.repo.Create(context.Background(), job); err != nil {
		t.Fatal(err)
	}
	f.storage.objects[job.SourceKey] = []byte("video-bytes")
	return job
}

func TestRunJobHappyPath(t *testing.T) {
	f := newFixture(t)
	job := f.seedJob(t, ports.JobTranscribing)

	f.pipe.runJob(context.Background(), job.ID)

	got, err := f.repo.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.State != ports.JobDone {
		t.Fatalf("state = %s, want done (error: %v)", got.State, got.Error)
	}
	for name, key := range map[string]*string{
		"transcript": got.Transcript, "subtitles": got.Subtitles,
		"dub audio": got.DubAudio, "final video": got.FinalVideo,
	} {
		if key == nil {
			t.Errorf("%s artifact not recorded", name)
		}
	}

	// the subtitle artifact carries translated cues and the source duration
	var doc translate.Document
	data := f.storage.objects[*got.Subtitles]
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decode subtitles: %v", err)
	}
	if len(doc.Cues) != 2 || doc.Cues[0].Translated != "JA:hello there" {
		t.Errorf("cues = %+v", doc.Cues)
	}
	if doc.Duration != 10 {
		t.Errorf("doc duration = %v, want 10", doc.Duration)
	}

	// both cues were voiced
	if len(f.synth.texts) != 2 {
		t.Errorf("synthesized %d cues, want 2", len(f.synth.texts))
	}

	// the final mux used the original compose arguments
	var muxed bool
	for _, cmd := range f.runner.commands {
		if cmd[0] == "ffmpeg" && contains(cmd, "-c:v") && contains(cmd, "copy") && contains(cmd, "192k") {
			muxed = true
		}
	}
	if !muxed {
		t.Error("no copy-video mux command issued")
	}
}

func TestRunJobReusesCachedTranscript(t *testing.T) {
	f := newFixture(t)
	job := f.seedJob(t, ports.JobTranscribing)

	// another job already transcribed identical content
	cachedKey := "transcripts/hash-1.json"
	data, _ := json.Marshal(testTranscript())
	f.storage.objects[cachedKey] = data
	_ = f.artifacts.Save(context.Background(), ports.Artifact{
		ContentHash: "hash-1", Stage: artTranscript, ObjectKey: cachedKey,
	})

	f.pipe.runJob(context.Background(), job.ID)

	if f.trans.callCount() != 0 {
		t.Errorf("transcriber called %d times, want 0 (cache hit)", f.trans.callCount())
	}
	got, _ := f.repo.Get(context.Background(), job.ID)
	if got.State != ports.JobDone {
		t.Errorf("state = %s, want done", got.State)
	}
}

func TestRunJobNoSpeechFailsPermanently(t *testing.T) {
	f := newFixture(t)
	f.trans.transcript = &transcribe.Transcript{Duration: 10} // nothing recognized
	job := f.seedJob(t, ports.JobTranscribing)

	f.pipe.runJob(context.Background(), job.ID)

	got, _ := f.repo.Get(context.Background(), job.ID)
	if got.State != ports.JobFailed {
		t.Fatalf("state = %s, want failed", got.State)
	}
	if got.FailedStage == nil || *got.FailedStage != ports.JobTranscribing {
		t.Errorf("failed stage = %v, want transcribing", got.FailedStage)
	}
	// permanent errors must not burn retries
	if f.trans.callCount() != 1 {
		t.Errorf("transcriber called %d times, want 1", f.trans.callCount())
	}
	if len(f.notifier.stages) != 1 {
		t.Errorf("notifier called %d times, want 1", len(f.notifier.stages))
	}
}

func TestRunJobGivesUpAfterMaxAttempts(t *testing.T) {
	f := newFixture(t)
	f.storage = newMemStorage() // empty: source download keeps failing
	f.pipe.storage = f.storage
	job := &ports.Job{
		ID: "job-2", SourceKey: "missing", SourceName: "demo.mp4",
		ContentHash: "h", SourceLang: "en", TargetLang: "ja",
		State: ports.JobTranscribing,
	}
	_ = f.repo.Create(context.Background(), job)

	f.pipe.runJob(context.Background(), job.ID)

	got, _ := f.repo.Get(context.Background(), job.ID)
	if got.State != ports.JobFailed {
		t.Fatalf("state = %s, want failed", got.State)
	}
	if got.Error == nil || !strings.Contains(*got.Error, "gave up") {
		t.Errorf("error = %v, want give-up message", got.Error)
	}
}

func TestRunJobResumesFromRecordedState(t *testing.T) {
	f := newFixture(t)
	job := f.seedJob(t, ports.JobComposing)

	// artifacts from the run that died
	dub := "dub/hash-1_ja.wav"
	f.storage.objects[dub] = []byte("wav")
	_ = f.repo.SetArtifact(context.Background(), job.ID, artDubAudio, dub)

	f.pipe.runJob(context.Background(), job.ID)

	got, _ := f.repo.Get(context.Background(), job.ID)
	if got.State != ports.JobDone {
		t.Fatalf("state = %s, want done (error: %v)", got.State, got.Error)
	}
	if f.trans.callCount() != 0 {
		t.Errorf("compose-only resume still transcribed %d times", f.trans.callCount())
	}
	if got.FinalVideo == nil {
		t.Error("final video not recorded")
	}
}

func TestRunPicksUpRequeuedJob(t *testing.T) {
	f := newFixture(t)
	job := f.seedJob(t, ports.JobFailed)

	stage := ports.JobTranscribing
	msg := "stage transcribing gave up after 2 attempts"
	f.repo.mu.Lock()
	f.repo.jobs[job.ID].FailedStage = &stage
	f.repo.jobs[job.ID].Error = &msg
	f.repo.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.pipe.Run(ctx)

	if _, err := f.repo.Requeue(ctx, job.ID); err != nil {
		t.Fatal(err)
	}

	// the poll loop, not a process restart, must pick the job back up
	deadline := time.NewTimer(10 * time.Second)
	defer deadline.Stop()
	for {
		got, err := f.repo.Get(ctx, job.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.State == ports.JobDone {
			break
		}
		if got.State == ports.JobFailed {
			t.Fatalf("retried job failed again: %v", got.Error)
		}
		select {
		case <-deadline.C:
			t.Fatalf("retried job still at %s, transcriber called %d times",
				got.State, f.trans.callCount())
		case <-time.After(50 * time.Millisecond):
		}
	}

	if f.trans.callCount() == 0 {
		t.Error("retried job finished without transcribing")
	}
}

func TestErrorCuesAreNotVoiced(t *testing.T) {
	f := newFixture(t)
	job := f.seedJob(t, ports.JobSynthesizing)

	doc := translate.Document{
		SourceLang: "en", TargetLang: "ja", Duration: 10,
		Cues: []translate.Cue{
			{Start: 0, End: 2, Text: "ok", Translated: "JA:ok"},
			{Start: 3, End: 5, Text: "broken", Translated: translate.ErrorMarker + " broken"},
			{Start: 6, End: 7, Text: "um", Translated: "　"},
		},
	}
	data, _ := json.Marshal(doc)
	key := "subtitles/hash-1_ja.json"
	f.storage.objects[key] = data
	_ = f.repo.SetArtifact(context.Background(), job.ID, artSubtitles, key)

	f.pipe.runJob(context.Background(), job.ID)

	if len(f.synth.texts) != 1 || f.synth.texts[0] != "JA:ok" {
		t.Errorf("voiced %v, want only the good cue", f.synth.texts)
	}
	got, _ := f.repo.Get(context.Background(), job.ID)
	if got.State != ports.JobDone {
		t.Errorf("state = %s, want done (error: %v)", got.State, got.Error)
	}
}

func contains(args []string, want string) bool {
	for _, a := range args {
		if a == want {
			return true
		}
	}
	return false
}
