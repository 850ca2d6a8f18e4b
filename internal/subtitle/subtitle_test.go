package subtitle

import (
	"strings"
	"testing"

	"github.com/Vovarama1992/dubflow/internal/translate"
)

func TestRenderSRT(t *testing.T) {
	cues := []translate.Cue{
		{Start: 0, End: 1.5, Text: "hello", Translated: "こんにちは"},
		{Start: 61.25, End: 62, Text: "world", Translated: "世界"},
	}

	got := RenderSRT(cues)
	want := "1\n00:00:00,000 --> 00:00:01,500\nこんにちは\n\n" +
		"2\n00:01:01,250 --> 00:01:02,000\n世界\n\n"

	if got != want {
		t.Errorf("RenderSRT:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestRenderSRTSkipsEmptyCuesButKeepsNumbering(t *testing.T) {
	cues := []translate.Cue{
		{Start: 0, End: 1, Text: "", Translated: ""},
		{Start: 1, End: 2, Text: "kept", Translated: "残る"},
		{Start: 2, End: 3, Text: "", Translated: "　"}, // pure filler cue
		{Start: 3, End: 4, Text: "also kept", Translated: "これも"},
	}

	got := RenderSRT(cues)

	if strings.Contains(got, "00:00:00,000") {
		t.Error("empty cue rendered")
	}
	if !strings.Contains(got, "1\n00:00:01,000") {
		t.Errorf("first kept cue not numbered 1:\n%s", got)
	}
	if !strings.Contains(got, "2\n00:00:03,000") {
		t.Errorf("second kept cue not numbered 2:\n%s", got)
	}
}

func TestRenderSRTFallsBackToSourceText(t *testing.T) {
	cues := []translate.Cue{
		{Start: 0, End: 1, Text: "original line", Translated: ""},
	}

	if got := RenderSRT(cues); !strings.Contains(got, "original line") {
		t.Errorf("no fallback to source text:\n%s", got)
	}
}

func TestRenderSRTHidesFailedTranslations(t *testing.T) {
	cues := []translate.Cue{
		{Start: 0, End: 1, Text: "hello world", Translated: translate.ErrorMarker + " hello world"},
		{Start: 1, End: 2, Text: "", Translated: translate.ErrorMarker + " "},
	}

	got := RenderSRT(cues)

	if strings.Contains(got, translate.ErrorMarker) {
		t.Errorf("failure marker leaked into output:\n%s", got)
	}
	if !strings.Contains(got, "hello world") {
		t.Errorf("no fallback to source text for failed cue:\n%s", got)
	}
	// a failed cue with no source text either disappears entirely
	if strings.Contains(got, "2\n") {
		t.Errorf("textless failed cue rendered:\n%s", got)
	}
}

func TestRenderVTT(t *testing.T) {
	cues := []translate.Cue{
		{Start: 3661.007, End: 3662, Text: "x", Translated: "y"},
	}

	got := RenderVTT(cues)

	if !strings.HasPrefix(got, "WEBVTT\n\n") {
		t.Errorf("missing WEBVTT header:\n%s", got)
	}
	if !strings.Contains(got, "01:01:01.007 --> 01:01:02.000") {
		t.Errorf("bad timestamps:\n%s", got)
	}
}

func TestTimestampRounding(t *testing.T) {
	// 0.9995s rounds to the next full second, not 999.5ms
	if got := srtTimestamp(0.9995); got != "00:00:01,000" {
		t.Errorf("srtTimestamp(0.9995) = %q", got)
	}
	if got := srtTimestamp(-1); got != "00:00:00,000" {
		t.Errorf("negative timestamp = %q, want clamped to zero", got)
	}
}
