package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	json "github.com/goccy/go-json"

	"github.com/Vovarama1992/dubflow/internal/media"
	"github.com/Vovarama1992/dubflow/internal/ports"
	"github.com/Vovarama1992/dubflow/internal/transcribe"
	"github.com/Vovarama1992/dubflow/internal/translate"
)

// Artifact stage names double as jobs-table column selectors and cache keys.
const (
	artTranscript = "transcript"
	artSubtitles  = "subtitles"
	artDubAudio   = "dub_audio"
	artFinalVideo = "final_video"
)

func transcriptKey(hash string) string { return fmt.Sprintf("transcripts/%s.json", hash) }
func subtitlesKey(hash, lang string) string {
	return fmt.Sprintf("subtitles/%s_%s.json", hash, lang)
}
func dubKey(hash, lang string) string { return fmt.Sprintf("dub/%s_%s.wav", hash, lang) }

func finalKey(job *ports.Job) string {
	base := strings.TrimSuffix(job.SourceName, filepath.Ext(job.SourceName))
	return fmt.Sprintf("final/%s/%s_%s.mp4", job.ID, base, job.TargetLang)
}

// stageTranscribe produces the confidence-filtered transcript artifact.
func (p *Pipeline) stageTranscribe(ctx context.Context, job *ports.Job) error {
	if p.reuseCached(ctx, job, artTranscript, "") {
		return p.advance(ctx, job, ports.JobTranscribing, ports.JobTranslating)
	}

	wd, err := os.MkdirTemp("", "dubflow-transcribe-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(wd)

	videoPath := filepath.Join(wd, "source"+filepath.Ext(job.SourceName))
	if err := p.storage.DownloadFile(ctx, job.SourceKey, videoPath); err != nil {
		return err
	}

	audioPath := filepath.Join(wd, "audio.wav")
	if err := p.ffmpeg.ExtractAudio(ctx, videoPath, audioPath); err != nil {
		return err
	}

	var t *transcribe.Transcript
	err = retryProvider(ctx, func() error {
		var terr error
		t, terr = p.transcriber.Transcribe(ctx, audioPath, job.SourceLang)
		return terr
	})
	if err != nil {
		return fmt.Errorf("transcribe: %w", err)
	}

	t = transcribe.FilterLowConfidence(t, p.confidenceThreshold)
	if len(t.Segments) == 0 {
		return Permanent(fmt.Errorf("no usable speech in source audio"))
	}
	if t.Duration == 0 {
		if t.Duration, err = p.ffmpeg.Duration(ctx, audioPath); err != nil {
			return err
		}
	}

	key := transcriptKey(job.ContentHash)
	if err := p.putJSON(ctx, key, t); err != nil {
		return err
	}
	p.recordArtifact(ctx, job, artTranscript, "", key)

	return p.advance(ctx, job, ports.JobTranscribing, ports.JobTranslating)
}

// stageTranslate turns the transcript into a translated cue document.
func (p *Pipeline) stageTranslate(ctx context.Context, job *ports.Job) error {
	if p.reuseCached(ctx, job, artSubtitles, job.TargetLang) {
		return p.advance(ctx, job, ports.JobTranslating, ports.JobSynthesizing)
	}

	var t transcribe.Transcript
	if err := p.getJSON(ctx, artifactOr(job.Transcript, transcriptKey(job.ContentHash)), &t); err != nil {
		return fmt.Errorf("load transcript: %w", err)
	}

	cues, err := p.translator.TranslateTranscript(ctx, &t, job.SourceLang, job.TargetLang)
	if err != nil {
		return fmt.Errorf("translate: %w", err)
	}

	if n := countErrorCues(cues); n > 0 {
		log.Printf("[pipeline] job %s: %d of %d cues carry the error marker", job.ID, n, len(cues))
	}

	doc := translate.Document{
		SourceLang: job.SourceLang,
		TargetLang: job.TargetLang,
		Duration:   t.Duration,
		Cues:       cues,
	}

	key := subtitlesKey(job.ContentHash, job.TargetLang)
	if err := p.putJSON(ctx, key, doc); err != nil {
		return err
	}
	p.recordArtifact(ctx, job, artSubtitles, job.TargetLang, key)

	return p.advance(ctx, job, ports.JobTranslating, ports.JobSynthesizing)
}

// stageSynthesize voices each cue and assembles the dubbed track on the
// original timeline.
func (p *Pipeline) stageSynthesize(ctx context.Context, job *ports.Job) error {
	if p.reuseCached(ctx, job, artDubAudio, job.TargetLang) {
		return p.advance(ctx, job, ports.JobSynthesizing, ports.JobComposing)
	}

	var doc translate.Document
	if err := p.getJSON(ctx, artifactOr(job.Subtitles, subtitlesKey(job.ContentHash, job.TargetLang)), &doc); err != nil {
		return fmt.Errorf("load subtitles: %w", err)
	}

	wd, err := os.MkdirTemp("", "dubflow-synth-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(wd)

	var clips []media.Clip
	for i, cue := range doc.Cues {
		text := strings.TrimSpace(cue.Translated)
		if text == "" || translate.IsErrorCue(cue) {
			// stays silent in the dub; subtitles still show the source text
			continue
		}

		clipPath := filepath.Join(wd, fmt.Sprintf("clip_%04d.mp3", i))
		err := retryProvider(ctx, func() error {
			return p.synthesizer.Synthesize(ctx, text, clipPath)
		})
		if err != nil {
			return fmt.Errorf("synthesize cue %d: %w", i, err)
		}

		dur, err := p.ffmpeg.Duration(ctx, clipPath)
		if err != nil {
			return err
		}

		clips = append(clips, media.Clip{
			Path:      clipPath,
			SlotStart: cue.Start,
			SlotEnd:   cue.End,
			Duration:  dur,
		})
	}

	if len(clips) == 0 {
		return Permanent(fmt.Errorf("no cues left to voice"))
	}

	plan, err := media.PlanTimeline(clips, doc.Duration)
	if err != nil {
		return Permanent(fmt.Errorf("plan timeline: %w", err))
	}

	trackPath := filepath.Join(wd, "dub.wav")
	if err := p.ffmpeg.AssembleTrack(ctx, plan, wd, trackPath); err != nil {
		return err
	}

	key := dubKey(job.ContentHash, job.TargetLang)
	if err := p.storage.UploadFile(ctx, key, trackPath, "audio/wav"); err != nil {
		return err
	}
	p.recordArtifact(ctx, job, artDubAudio, job.TargetLang, key)

	return p.advance(ctx, job, ports.JobSynthesizing, ports.JobComposing)
}

// stageCompose muxes the dubbed track over the original video.
func (p *Pipeline) stageCompose(ctx context.Context, job *ports.Job) error {
	wd, err := os.MkdirTemp("", "dubflow-compose-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(wd)

	videoPath := filepath.Join(wd, "source"+filepath.Ext(job.SourceName))
	if err := p.storage.DownloadFile(ctx, job.SourceKey, videoPath); err != nil {
		return err
	}

	trackPath := filepath.Join(wd, "dub.wav")
	if err := p.storage.DownloadFile(ctx, artifactOr(job.DubAudio, dubKey(job.ContentHash, job.TargetLang)), trackPath); err != nil {
		return err
	}

	outPath := filepath.Join(wd, "final.mp4")
	if err := p.ffmpeg.Mux(ctx, videoPath, trackPath, outPath); err != nil {
		return err
	}

	key := finalKey(job)
	if err := p.storage.UploadFile(ctx, key, outPath, "video/mp4"); err != nil {
		return err
	}
	if err := p.repo.SetArtifact(ctx, job.ID, artFinalVideo, key); err != nil {
		return err
	}

	return p.repo.MarkDone(ctx, job.ID)
}

// reuseCached checks the artifact cache and, on a hit, records the key on
// the job. The caller still advances the state itself.
func (p *Pipeline) reuseCached(ctx context.Context, job *ports.Job, stage, lang string) bool {
	key, err := p.artifacts.Lookup(ctx, job.ContentHash, stage, lang)
	if err != nil {
		if !errors.Is(err, ports.ErrNotFound) {
			log.Printf("[pipeline] job %s: artifact cache lookup: %v", job.ID, err)
		}
		return false
	}

	log.Printf("[pipeline] job %s: reusing cached %s for hash %s", job.ID, stage, job.ContentHash)
	if err := p.repo.SetArtifact(ctx, job.ID, stage, key); err != nil {
		log.Printf("[pipeline] job %s: record cached artifact: %v", job.ID, err)
		return false
	}
	return true
}

func (p *Pipeline) recordArtifact(ctx context.Context, job *ports.Job, stage, lang, key string) {
	if err := p.repo.SetArtifact(ctx, job.ID, stage, key); err != nil {
		log.Printf("[pipeline] job %s: set artifact %s: %v", job.ID, stage, err)
	}
	err := p.artifacts.Save(ctx, ports.Artifact{
		ContentHash: job.ContentHash,
		Stage:       stage,
		TargetLang:  lang,
		ObjectKey:   key,
	})
	if err != nil {
		// cache misses just cost money next time, they break nothing
		log.Printf("[pipeline] job %s: save artifact cache: %v", job.ID, err)
	}
}

func (p *Pipeline) putJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return p.storage.PutObject(ctx, key, bytes.NewReader(data), int64(len(data)), "application/json")
}

func (p *Pipeline) getJSON(ctx context.Context, key string, v any) error {
	rc, err := p.storage.GetObject(ctx, key)
	if err != nil {
		return err
	}
	defer rc.Close()
	if err := json.NewDecoder(rc).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func artifactOr(key *string, fallback string) string {
	if key != nil && *key != "" {
		return *key
	}
	return fallback
}

func countErrorCues(cues []translate.Cue) int {
	n := 0
	for _, c := range cues {
		if translate.IsErrorCue(c) {
			n++
		}
	}
	return n
}

func retryProvider(ctx context.Context, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 2 * time.Second
	bo.MaxInterval = 30 * time.Second
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, 2), ctx))
}
