package translate

import "context"

type Request struct {
	Text       string
	SourceLang string
	TargetLang string
	MaxChars   int
}

type Translator interface {
	Translate(ctx context.Context, req Request) (string, error)
}

// Cue is one timed line of the translated script, consumed both by the
// subtitle renderers and the dubbing stage.
type Cue struct {
	Start      float64 `json:"start_time"`
	End        float64 `json:"end_time"`
	Text       string  `json:"text"`
	Translated string  `json:"translated_text"`
}

// Document is the translated-script artifact stored in object storage.
// Duration carries the source audio length so the dubbing stage can pad
// the assembled track without re-probing the video.
type Document struct {
	SourceLang string  `json:"source_lang"`
	TargetLang string  `json:"target_lang"`
	Duration   float64 `json:"duration"`
	Cues       []Cue   `json:"cues"`
}
