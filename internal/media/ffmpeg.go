package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Vovarama1992/dubflow/internal/ports"
)

// All intermediate audio is normalized to this format so concat can run
// without re-encoding each boundary.
const (
	dubSampleRate = "24000"
	asrSampleRate = "16000"
)

type FFmpeg struct {
	runner ports.Runner
}

func NewFFmpeg(runner ports.Runner) *FFmpeg {
	return &FFmpeg{runner: runner}
}

// ExtractAudio pulls a 16 kHz mono WAV out of the video, the layout the
// speech recognizer wants.
func (f *FFmpeg) ExtractAudio(ctx context.Context, videoPath, outPath string) error {
	_, err := f.runner.Run(ctx, "ffmpeg",
		"-i", videoPath,
		"-vn",
		"-ar", asrSampleRate,
		"-ac", "1",
		"-c:a", "pcm_s16le",
		"-y",
		outPath,
	)
	if err != nil {
		return fmt.Errorf("extract audio: %w", err)
	}
	return nil
}

// Duration reads a media file's duration via ffprobe.
func (f *FFmpeg) Duration(ctx context.Context, path string) (float64, error) {
	out, err := f.runner.Run(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, fmt.Errorf("probe %s: %w", path, err)
	}
	return strconv.ParseFloat(strings.TrimSpace(out), 64)
}

// AssembleTrack renders a planned timeline into a single WAV. Every entry
// is first normalized to mono dubSampleRate PCM, then stitched with the
// concat demuxer, which at that point is a pure copy.
func (f *FFmpeg) AssembleTrack(ctx context.Context, plan *Plan, workDir, outPath string) error {
	if len(plan.Entries) == 0 {
		return fmt.Errorf("empty timeline")
	}

	listPath := filepath.Join(workDir, "concat.txt")
	var list strings.Builder

	for i, e := range plan.Entries {
		piece := filepath.Join(workDir, fmt.Sprintf("piece_%04d.wav", i))

		var err error
		if e.Silence > 0 {
			err = f.renderSilence(ctx, e.Silence, piece)
		} else {
			err = f.renderClip(ctx, e, piece)
		}
		if err != nil {
			return fmt.Errorf("timeline entry %d: %w", i, err)
		}

		fmt.Fprintf(&list, "file '%s'\n", piece)
	}

	if err := os.WriteFile(listPath, []byte(list.String()), 0644); err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}

	_, err := f.runner.Run(ctx, "ffmpeg",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		"-y",
		outPath,
	)
	if err != nil {
		return fmt.Errorf("concat dub track: %w", err)
	}
	return nil
}

func (f *FFmpeg) renderSilence(ctx context.Context, seconds float64, outPath string) error {
	_, err := f.runner.Run(ctx, "ffmpeg",
		"-f", "lavfi",
		"-i", "anullsrc=channel_layout=mono:sample_rate="+dubSampleRate,
		"-t", strconv.FormatFloat(seconds, 'f', 3, 64),
		"-c:a", "pcm_s16le",
		"-y",
		outPath,
	)
	return err
}

func (f *FFmpeg) renderClip(ctx context.Context, e Entry, outPath string) error {
	args := []string{"-i", e.Path}
	if e.Tempo > 1.0001 {
		// maxTempo keeps us inside atempo's single-filter range
		args = append(args, "-filter:a", fmt.Sprintf("atempo=%.4f", e.Tempo))
	}
	args = append(args,
		"-ar", dubSampleRate,
		"-ac", "1",
		"-c:a", "pcm_s16le",
		"-y",
		outPath,
	)
	_, err := f.runner.Run(ctx, "ffmpeg", args...)
	return err
}

// Mux replaces the video's audio track with the dubbed one. The video
// stream is copied untouched; audio is re-encoded to AAC.
func (f *FFmpeg) Mux(ctx context.Context, videoPath, audioPath, outPath string) error {
	_, err := f.runner.Run(ctx, "ffmpeg",
		"-i", videoPath,
		"-i", audioPath,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c:v", "copy",
		"-c:a", "aac",
		"-b:a", "192k",
		"-y",
		outPath,
	)
	if err != nil {
		return fmt.Errorf("mux final video: %w", err)
	}
	return nil
}
