// Package openai provides an asr.Recognizer backed by the OpenAI audio
// transcription API.
//
// The API returns plain transcript text without token-level timing or
// probabilities, so tokens are synthesised by splitting the text into words
// and distributing the clip duration evenly across them, with nil confidence.
// The consensus aggregation above this recognizer therefore falls back to
// majority voting for multi-pass runs.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/ATAboukhadra/T30-Mazad/pkg/media"
	"github.com/ATAboukhadra/T30-Mazad/pkg/provider/asr"
	"github.com/ATAboukhadra/T30-Mazad/pkg/provider/asr/whisper"
)

// DefaultModel is the default OpenAI transcription model.
const DefaultModel = oai.AudioModelWhisper1

// Compile-time assertion that Recognizer implements asr.Recognizer.
var _ asr.Recognizer = (*Recognizer)(nil)

// Recognizer implements asr.Recognizer using the OpenAI API.
type Recognizer struct {
	client oai.Client
	model  oai.AudioModel
}

// config holds optional configuration for the recognizer.
type config struct {
	baseURL string
	timeout time.Duration
}

// Option is a functional option for Recognizer.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs an OpenAI transcription Recognizer.
// If model is empty, DefaultModel (whisper-1) is used.
func New(apiKey string, model string, opts ...Option) (*Recognizer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai asr: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	client := oai.NewClient(reqOpts...)
	return &Recognizer{client: client, model: oai.AudioModel(model)}, nil
}

// Transcribe implements asr.Recognizer.
func (r *Recognizer) Transcribe(ctx context.Context, req asr.Request) (asr.PassResult, error) {
	if req.Task == asr.TaskTranslate {
		return asr.PassResult{}, fmt.Errorf("openai asr: translation is not supported by this pipeline")
	}

	f, err := os.Open(req.Clip.Path)
	if err != nil {
		return asr.PassResult{}, fmt.Errorf("openai asr: open clip %q: %w", req.Clip.Path, err)
	}
	defer f.Close()

	// Decode locally first: the clip duration anchors synthetic token timing.
	wav, err := media.DecodeWAVFile(req.Clip.Path)
	if err != nil {
		return asr.PassResult{}, err
	}

	params := oai.AudioTranscriptionNewParams{
		File:  oai.File(f, "audio.wav", "audio/wav"),
		Model: r.model,
	}
	if req.Language != "" {
		params.Language = param.NewOpt(req.Language)
	}
	if req.Prompt != "" {
		params.Prompt = param.NewOpt(req.Prompt)
	}
	if req.Temperature > 0 {
		params.Temperature = param.NewOpt(req.Temperature)
	}

	resp, err := r.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return asr.PassResult{}, &asr.BackendError{Backend: "openai", Err: err}
	}

	return asr.PassResult{
		Text:   resp.Text,
		Tokens: whisper.SegmentTokens(resp.Text, 0, wav.Duration(), nil),
	}, nil
}
