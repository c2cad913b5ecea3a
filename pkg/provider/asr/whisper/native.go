// This file contains the native Recognizer backed by the whisper.cpp CGO
// bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/ATAboukhadra/T30-Mazad/pkg/media"
	"github.com/ATAboukhadra/T30-Mazad/pkg/provider/asr"
)

// Compile-time assertion that Native satisfies asr.Recognizer.
var _ asr.Recognizer = (*Native)(nil)

// Native implements asr.Recognizer using the whisper.cpp Go bindings (CGO),
// eliminating server round-trips entirely. The model is loaded once at
// construction and shared across all concurrent passes; each pass creates its
// own whisper context because contexts are not thread-safe.
type Native struct {
	model    whisperlib.Model
	language string
}

// NativeOption is a functional option for configuring a Native recognizer.
type NativeOption func(*Native)

// WithNativeLanguage sets the default language code used when a request does
// not specify one. Defaults to "en".
func WithNativeLanguage(lang string) NativeOption {
	return func(n *Native) { n.language = lang }
}

// NewNative loads the whisper.cpp model from modelPath. The caller must call
// Close when the recognizer is no longer needed.
func NewNative(modelPath string, opts ...NativeOption) (*Native, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	n := &Native{
		model:    model,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(n)
	}
	return n, nil
}

// Close releases the whisper model.
func (n *Native) Close() error {
	if n.model != nil {
		return n.model.Close()
	}
	return nil
}

// Transcribe implements asr.Recognizer. It decodes the clip's WAV file,
// creates a fresh whisper context, and runs one inference pass.
func (n *Native) Transcribe(ctx context.Context, req asr.Request) (asr.PassResult, error) {
	if err := ctx.Err(); err != nil {
		return asr.PassResult{}, &asr.BackendError{Backend: "whisper-native", Err: err}
	}
	if req.Task == asr.TaskTranslate {
		return asr.PassResult{}, errors.New("whisper: translation is not supported by this pipeline")
	}

	wav, err := media.DecodeWAVFile(req.Clip.Path)
	if err != nil {
		return asr.PassResult{}, err
	}

	// Each pass gets its own context; the model itself is shared.
	wctx, err := n.model.NewContext()
	if err != nil {
		return asr.PassResult{}, &asr.BackendError{Backend: "whisper-native", Err: fmt.Errorf("create context: %w", err)}
	}

	lang := req.Language
	if lang == "" {
		lang = n.language
	}
	if err := wctx.SetLanguage(lang); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", lang, "error", err)
	}
	if req.Prompt != "" {
		wctx.SetInitialPrompt(req.Prompt)
	}
	wctx.SetTemperature(float32(req.Temperature))

	if err := wctx.Process(wav.Samples, nil, nil, nil); err != nil {
		return asr.PassResult{}, &asr.BackendError{Backend: "whisper-native", Err: fmt.Errorf("process audio: %w", err)}
	}

	var (
		parts  []string
		tokens []asr.Token
	)
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return asr.PassResult{}, &asr.BackendError{Backend: "whisper-native", Err: fmt.Errorf("read segment: %w", err)}
		}

		text := strings.TrimSpace(segment.Text)
		if text == "" {
			continue
		}
		parts = append(parts, text)

		conf := segmentConfidence(segment.Tokens)
		tokens = append(tokens, SegmentTokens(text, segment.Start.Seconds(), segment.End.Seconds(), conf)...)
	}

	return asr.PassResult{
		Text:   strings.Join(parts, " "),
		Tokens: tokens,
	}, nil
}

// segmentConfidence averages whisper's per-token probabilities into a single
// segment-level confidence. Special tokens (bracketed markers) are excluded.
// Returns nil when no usable tokens exist.
func segmentConfidence(toks []whisperlib.Token) *float64 {
	var (
		sum   float64
		count int
	)
	for _, t := range toks {
		if strings.HasPrefix(t.Text, "[_") {
			continue
		}
		sum += float64(t.P)
		count++
	}
	if count == 0 {
		return nil
	}
	v := sum / float64(count)
	return &v
}
