package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ATAboukhadra/T30-Mazad/pkg/provider/asr"
)

// Compile-time assertion that Server satisfies asr.Recognizer.
var _ asr.Recognizer = (*Server)(nil)

// Server implements asr.Recognizer against a running whisper-server binary,
// which exposes a REST API at POST /inference. Multiple passes may run
// concurrently; each is an independent HTTP request.
type Server struct {
	serverURL  string
	language   string
	httpClient *http.Client
}

// ServerOption is a functional option for configuring a Server recognizer.
type ServerOption func(*Server)

// WithServerLanguage sets the default language code used when a request does
// not specify one. Defaults to "en".
func WithServerLanguage(lang string) ServerOption {
	return func(s *Server) { s.language = lang }
}

// WithHTTPClient replaces the HTTP client. The default has a 120 s timeout,
// sized for large-model inference on long clips.
func WithHTTPClient(c *http.Client) ServerOption {
	return func(s *Server) { s.httpClient = c }
}

// NewServer creates a Server recognizer that connects to the whisper-server
// at serverURL (e.g., "http://localhost:8080"). serverURL must be non-empty.
func NewServer(serverURL string, opts ...ServerOption) (*Server, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	s := &Server{
		serverURL:  serverURL,
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// serverResponse is the whisper-server verbose JSON response shape. Only the
// fields the pipeline consumes are declared.
type serverResponse struct {
	Text     string `json:"text"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

// Transcribe implements asr.Recognizer. It uploads the clip's WAV file as
// multipart/form-data and converts the segment response into word tokens.
// The server does not expose token probabilities, so confidence is nil.
func (s *Server) Transcribe(ctx context.Context, req asr.Request) (asr.PassResult, error) {
	if req.Task == asr.TaskTranslate {
		return asr.PassResult{}, errors.New("whisper: translation is not supported by this pipeline")
	}

	wav, err := os.ReadFile(req.Clip.Path)
	if err != nil {
		return asr.PassResult{}, fmt.Errorf("whisper: read clip %q: %w", req.Clip.Path, err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return asr.PassResult{}, fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return asr.PassResult{}, fmt.Errorf("whisper: write wav data: %w", err)
	}

	lang := req.Language
	if lang == "" {
		lang = s.language
	}
	fields := map[string]string{
		"language":        lang,
		"temperature":     strconv.FormatFloat(req.Temperature, 'f', 2, 64),
		"response_format": "verbose_json",
	}
	if req.Prompt != "" {
		fields["prompt"] = req.Prompt
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return asr.PassResult{}, fmt.Errorf("whisper: write %s field: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return asr.PassResult{}, fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	endpoint := s.serverURL + "/inference"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return asr.PassResult{}, fmt.Errorf("whisper: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return asr.PassResult{}, &asr.BackendError{Backend: "whisper-server", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return asr.PassResult{}, &asr.BackendError{
			Backend: "whisper-server",
			Err:     fmt.Errorf("server returned HTTP %d", resp.StatusCode),
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return asr.PassResult{}, &asr.BackendError{Backend: "whisper-server", Err: fmt.Errorf("read response body: %w", err)}
	}

	var result serverResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return asr.PassResult{}, &asr.BackendError{Backend: "whisper-server", Err: fmt.Errorf("parse JSON response: %w", err)}
	}

	var tokens []asr.Token
	for _, seg := range result.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		tokens = append(tokens, SegmentTokens(text, seg.Start, seg.End, nil)...)
	}

	return asr.PassResult{
		Text:   strings.TrimSpace(result.Text),
		Tokens: tokens,
	}, nil
}
