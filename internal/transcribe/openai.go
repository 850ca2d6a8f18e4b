package transcribe

import (
	"context"
	"fmt"
	"math"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// segments with this much no-speech probability are treated as noise
const noSpeechMax = 0.6

type WhisperClient struct {
	client *openai.Client
}

func NewWhisperClient(client *openai.Client) *WhisperClient {
	return &WhisperClient{client: client}
}

func (c *WhisperClient) Transcribe(ctx context.Context, filePath, language string) (*Transcript, error) {
	resp, err := c.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: filePath,
		Language: language,
		Format:   openai.AudioResponseFormatVerboseJSON,
		TimestampGranularities: []openai.TranscriptionTimestampGranularity{
			openai.TranscriptionTimestampGranularitySegment,
			openai.TranscriptionTimestampGranularityWord,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("whisper transcription: %w", err)
	}

	t := &Transcript{
		Language: resp.Language,
		Duration: resp.Duration,
	}

	for _, seg := range resp.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" || seg.NoSpeechProb > noSpeechMax {
			continue
		}

		// whisper reports an average log-probability per segment; map it to
		// a [0,1] confidence so the filter can treat all providers alike
		conf := math.Exp(seg.AvgLogprob)
		if conf > 1 {
			conf = 1
		}

		s := Segment{
			Start:      seg.Start,
			End:        seg.End,
			Text:       text,
			Confidence: conf,
		}

		// word timestamps come flat; fold them into their segment. Whisper
		// gives no per-word score, words inherit the segment's.
		for _, w := range resp.Words {
			if w.Start >= seg.Start && w.End <= seg.End+1e-6 {
				s.Words = append(s.Words, Word{
					Text:       strings.TrimSpace(w.Word),
					Start:      w.Start,
					End:        w.End,
					Confidence: conf,
				})
			}
		}

		t.Segments = append(t.Segments, s)
	}

	return t, nil
}
