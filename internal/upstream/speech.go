package upstream

import (
	"context"
	"io"
	"time"

	openai "github.com/openai/openai-go/v3"
)

// MIMEType is the only audio format this service produces.
const MIMEType = "audio/mpeg"

// SpeechClient is the speech synthesizer adapter: one synthesis call per
// request, bounded by the configured timeout.
type SpeechClient struct {
	client  openai.Client
	model   string
	voice   string
	timeout time.Duration
}

func NewSpeechClient(cfg Config, model, voice string, timeout time.Duration) *SpeechClient {
	return &SpeechClient{
		client:  newClient(cfg),
		model:   model,
		voice:   voice,
		timeout: timeout,
	}
}

// Synthesize returns the raw MP3 bytes for text. Failures are *Error
// values; the response body is returned untransformed.
func (c *SpeechClient) Synthesize(ctx context.Context, text string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res, err := c.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Model:          openai.SpeechModel(c.model),
		Voice:          openai.AudioSpeechNewParamsVoice(c.voice),
		Input:          text,
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
	})
	if err != nil {
		return nil, classify(ServiceSpeech, err)
	}
	defer res.Body.Close()

	audio, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, classify(ServiceSpeech, err)
	}
	if len(audio) == 0 {
		return nil, &Error{Service: ServiceSpeech, Kind: KindMalformed}
	}
	return audio, nil
}
