package translate

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/Vovarama1992/dubflow/internal/transcribe"
)

// ErrorMarker prefixes cues whose translation failed after all retries.
// The pipeline keeps going; the marker makes the bad cue easy to find.
const ErrorMarker = "[TRANSLATION_ERROR]"

// ideographicSpace stands in for deliberately empty lines (pure filler),
// so downstream stages still have a cue to keep the timeline aligned.
const ideographicSpace = "　"

var fillerWords = map[string]struct{}{
	"um": {}, "uh": {}, "so": {}, "well": {},
	"you know": {}, "i mean": {},
}

type Service struct {
	translator     Translator
	charsPerSecond float64
	parallel       int
	maxRetries     uint64
}

func NewService(translator Translator, charsPerSecond float64, parallel int, maxRetries int) *Service {
	if parallel < 1 {
		parallel = 1
	}
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Service{
		translator:     translator,
		charsPerSecond: charsPerSecond,
		parallel:       parallel,
		maxRetries:     uint64(maxRetries),
	}
}

// TranslateTranscript turns every transcript segment into a timed cue in
// the target language. Segment failures degrade to marker cues instead of
// failing the batch: one bad segment must not throw away a paid run over
// the rest of the video.
func (s *Service) TranslateTranscript(ctx context.Context, t *transcribe.Transcript, sourceLang, targetLang string) ([]Cue, error) {
	cues := make([]Cue, len(t.Segments))

	var wg sync.WaitGroup
	sem := make(chan struct{}, s.parallel)

	for i, seg := range t.Segments {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		wg.Add(1)
		go func(i int, seg transcribe.Segment) {
			defer wg.Done()
			defer func() { <-sem }()
			cues[i] = s.translateSegment(ctx, seg, sourceLang, targetLang)
		}(i, seg)
	}

	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return cues, nil
}

func (s *Service) translateSegment(ctx context.Context, seg transcribe.Segment, sourceLang, targetLang string) Cue {
	cue := Cue{Start: seg.Start, End: seg.End, Text: seg.Text}

	budget := int((seg.End - seg.Start) * s.charsPerSecond)
	if budget < 1 {
		budget = 1
	}

	req := Request{
		Text:       seg.Text,
		SourceLang: sourceLang,
		TargetLang: targetLang,
		MaxChars:   budget,
	}

	var translated string
	op := func() error {
		var err error
		translated, err = s.translator.Translate(ctx, req)
		return err
	}

	bo := backoff.WithContext(
		backoff.WithMaxRetries(newExponentialBackOff(), s.maxRetries),
		ctx,
	)
	if err := backoff.Retry(op, bo); err != nil {
		log.Printf("[translate] segment %.2f-%.2f failed: %v", seg.Start, seg.End, err)
		if isFiller(seg.Text) {
			cue.Translated = ideographicSpace
		} else {
			cue.Translated = ErrorMarker + " " + seg.Text
		}
		return cue
	}

	if translated == "" {
		// the model was told to return nothing for pure filler
		translated = ideographicSpace
	}
	cue.Translated = translated
	return cue
}

func newExponentialBackOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 30 * time.Second
	return bo
}

func isFiller(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	t = strings.Trim(t, ",.!? ")
	_, ok := fillerWords[t]
	return ok
}

// IsErrorCue reports whether a cue carries the failure marker.
func IsErrorCue(c Cue) bool {
	return strings.HasPrefix(c.Translated, ErrorMarker)
}
