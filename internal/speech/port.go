package speech

import "context"

type Synthesizer interface {
	// Synthesize renders text as speech and writes the audio to outPath.
	Synthesize(ctx context.Context, text, outPath string) error
}
