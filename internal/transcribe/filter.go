package transcribe

import "strings"

// FilterLowConfidence drops words the recognizer was unsure about and
// rebuilds each segment's text from the survivors. Segments left without
// any text, or scored below the threshold themselves, are removed so the
// translator never sees hallucinated noise.
func FilterLowConfidence(t *Transcript, threshold float64) *Transcript {
	out := &Transcript{
		Language: t.Language,
		Duration: t.Duration,
	}

	for _, seg := range t.Segments {
		if seg.Confidence < threshold {
			continue
		}

		if len(seg.Words) == 0 {
			if strings.TrimSpace(seg.Text) != "" {
				out.Segments = append(out.Segments, seg)
			}
			continue
		}

		kept := make([]Word, 0, len(seg.Words))
		parts := make([]string, 0, len(seg.Words))
		for _, w := range seg.Words {
			if w.Confidence < threshold {
				continue
			}
			kept = append(kept, w)
			parts = append(parts, w.Text)
		}

		text := strings.TrimSpace(strings.Join(parts, " "))
		if text == "" {
			continue
		}

		seg.Words = kept
		seg.Text = text
		out.Segments = append(out.Segments, seg)
	}

	return out
}
