package speech

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	openai "github.com/sashabaranov/go-openai"
)

type OpenAIClient struct {
	client *openai.Client
	voice  openai.SpeechVoice
}

func NewOpenAIClient(client *openai.Client, voice string) *OpenAIClient {
	if voice == "" {
		voice = string(openai.VoiceAlloy)
	}
	return &OpenAIClient{
		client: client,
		voice:  openai.SpeechVoice(voice),
	}
}

func (c *OpenAIClient) Synthesize(ctx context.Context, text, outPath string) error {
	resp, err := c.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.TTSModel1,
		Input:          text,
		Voice:          c.voice,
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return fmt.Errorf("openai tts: %w", err)
	}
	defer resp.Close()

	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return err
	}

	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, resp); err != nil {
		return fmt.Errorf("write tts audio: %w", err)
	}
	return nil
}
