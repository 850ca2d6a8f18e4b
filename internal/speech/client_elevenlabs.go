package speech

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	json "github.com/goccy/go-json"
)

const elevenLabsBase = "https://api.elevenlabs.io/v1/text-to-speech"

// eleven_multilingual_v2 is the only ElevenLabs model that voices
// Japanese and the other non-English targets acceptably.
const elevenLabsModel = "eleven_multilingual_v2"

type ElevenLabsClient struct {
	apiKey  string
	voiceID string
	lang    string
	client  *http.Client
}

func NewElevenLabsClient(apiKey, voiceID, lang string) *ElevenLabsClient {
	return &ElevenLabsClient{
		apiKey:  apiKey,
		voiceID: voiceID,
		lang:    lang,
		client:  &http.Client{Timeout: 2 * time.Minute},
	}
}

type elevenLabsRequest struct {
	Text         string `json:"text"`
	ModelID      string `json:"model_id"`
	LanguageCode string `json:"language_code,omitempty"`
}

// TEXT -> SPEECH
func (c *ElevenLabsClient) Synthesize(ctx context.Context, text, outPath string) error {
	payload, err := json.Marshal(elevenLabsRequest{
		Text:         text,
		ModelID:      elevenLabsModel,
		LanguageCode: c.lang,
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/%s", elevenLabsBase, c.voiceID)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("xi-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("tts failed (%d): %s", resp.StatusCode, string(b))
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return err
	}

	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, resp.Body)
	return err
}
