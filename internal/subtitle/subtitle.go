package subtitle

import (
	"fmt"
	"strings"
	"time"

	"github.com/Vovarama1992/dubflow/internal/translate"
)

// RenderSRT renders translated cues as SubRip text. Cues that hold neither
// translated nor source text are skipped; numbering stays contiguous.
func RenderSRT(cues []translate.Cue) string {
	var b strings.Builder
	n := 0
	for _, c := range cues {
		text := cueText(c)
		if text == "" {
			continue
		}
		n++
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n",
			n, srtTimestamp(c.Start), srtTimestamp(c.End), text)
	}
	return b.String()
}

// RenderVTT renders translated cues as WebVTT.
func RenderVTT(cues []translate.Cue) string {
	var b strings.Builder
	b.WriteString("WEBVTT\n\n")
	for _, c := range cues {
		text := cueText(c)
		if text == "" {
			continue
		}
		fmt.Fprintf(&b, "%s --> %s\n%s\n\n",
			vttTimestamp(c.Start), vttTimestamp(c.End), text)
	}
	return b.String()
}

// cueText prefers the translation but falls back to the source line when
// the translation is blank or failed, so the viewer still gets a caption
// and the failure marker never reaches the output.
func cueText(c translate.Cue) string {
	if translate.IsErrorCue(c) {
		return strings.TrimSpace(c.Text)
	}
	text := strings.TrimSpace(c.Translated)
	if text == "" {
		text = strings.TrimSpace(c.Text)
	}
	return text
}

func srtTimestamp(seconds float64) string {
	h, m, s, ms := splitTimestamp(seconds)
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

func vttTimestamp(seconds float64) string {
	h, m, s, ms := splitTimestamp(seconds)
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}

func splitTimestamp(seconds float64) (h, m, s, ms int) {
	if seconds < 0 {
		seconds = 0
	}
	d := time.Duration(seconds * float64(time.Second))
	d = d.Round(time.Millisecond)
	h = int(d / time.Hour)
	d -= time.Duration(h) * time.Hour
	m = int(d / time.Minute)
	d -= time.Duration(m) * time.Minute
	s = int(d / time.Second)
	d -= time.Duration(s) * time.Second
	ms = int(d / time.Millisecond)
	return
}
