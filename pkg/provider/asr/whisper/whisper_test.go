package whisper_test

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/ATAboukhadra/T30-Mazad/pkg/media"
	"github.com/ATAboukhadra/T30-Mazad/pkg/provider/asr"
	"github.com/ATAboukhadra/T30-Mazad/pkg/provider/asr/whisper"
)

func TestSegmentTokens(t *testing.T) {
	t.Parallel()

	conf := 0.9
	tokens := whisper.SegmentTokens("Lionel Messi, Cristiano Ronaldo.", 2.0, 6.0, &conf)

	want := []string{"Lionel", "Messi", "Cristiano", "Ronaldo"}
	if len(tokens) != len(want) {
		t.Fatalf("SegmentTokens: got %d tokens, want %d", len(tokens), len(want))
	}
	for i, tok := range tokens {
		if tok.Text != want[i] {
			t.Errorf("token[%d].Text = %q, want %q", i, tok.Text, want[i])
		}
		if tok.Confidence == nil || *tok.Confidence != conf {
			t.Errorf("token[%d].Confidence = %v, want %v", i, tok.Confidence, conf)
		}
	}
	if tokens[0].Start != 2.0 {
		t.Errorf("first token start = %v, want 2.0", tokens[0].Start)
	}
	if tokens[3].End != 6.0 {
		t.Errorf("last token end = %v, want 6.0", tokens[3].End)
	}
	// Evenly distributed: each token spans 1 s.
	if math.Abs(tokens[1].Start-3.0) > 1e-9 || math.Abs(tokens[1].End-4.0) > 1e-9 {
		t.Errorf("token[1] span = [%v, %v], want [3, 4]", tokens[1].Start, tokens[1].End)
	}
}

func TestSegmentTokens_Empty(t *testing.T) {
	t.Parallel()

	if got := whisper.SegmentTokens("...", 0, 1, nil); got != nil {
		t.Fatalf("SegmentTokens(punctuation only) = %v, want nil", got)
	}
}

func TestSegmentTokens_KeepsApostrophesAndHyphens(t *testing.T) {
	t.Parallel()

	tokens := whisper.SegmentTokens("O'Brien scored against Saint-Étienne", 0, 4, nil)
	want := []string{"O'Brien", "scored", "against", "Saint-Étienne"}
	if len(tokens) != len(want) {
		t.Fatalf("got %d tokens, want %d", len(tokens), len(want))
	}
	for i, tok := range tokens {
		if tok.Text != want[i] {
			t.Errorf("token[%d] = %q, want %q", i, tok.Text, want[i])
		}
	}
}

func TestServerTranscribe(t *testing.T) {
	t.Parallel()

	clipPath := writeTestClip(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/inference" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if got := r.FormValue("language"); got != "en" {
			t.Errorf("language field = %q, want %q", got, "en")
		}
		if got := r.FormValue("prompt"); got != "Football players mentioned: John Smith" {
			t.Errorf("prompt field = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"text": " John Smith plays defense.",
			"segments": [
				{"start": 0.0, "end": 2.0, "text": " John Smith"},
				{"start": 2.0, "end": 3.5, "text": " plays defense."}
			]
		}`))
	}))
	defer srv.Close()

	rec, err := whisper.NewServer(srv.URL)
	if err != nil {
		t.Fatalf("NewServer: unexpected error: %v", err)
	}

	result, err := rec.Transcribe(context.Background(), asr.Request{
		Clip:     media.Clip{Path: clipPath},
		Prompt:   "Football players mentioned: John Smith",
		Language: "en",
	})
	if err != nil {
		t.Fatalf("Transcribe: unexpected error: %v", err)
	}

	if result.Text != "John Smith plays defense." {
		t.Errorf("Text = %q", result.Text)
	}
	wantTokens := []string{"John", "Smith", "plays", "defense"}
	if len(result.Tokens) != len(wantTokens) {
		t.Fatalf("got %d tokens, want %d", len(result.Tokens), len(wantTokens))
	}
	for i, tok := range result.Tokens {
		if tok.Text != wantTokens[i] {
			t.Errorf("token[%d] = %q, want %q", i, tok.Text, wantTokens[i])
		}
		if tok.Confidence != nil {
			t.Errorf("token[%d].Confidence = %v, want nil (server exposes none)", i, tok.Confidence)
		}
	}
}

func TestServerTranscribe_HTTPError(t *testing.T) {
	t.Parallel()

	clipPath := writeTestClip(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	rec, err := whisper.NewServer(srv.URL)
	if err != nil {
		t.Fatalf("NewServer: unexpected error: %v", err)
	}

	_, err = rec.Transcribe(context.Background(), asr.Request{Clip: media.Clip{Path: clipPath}})
	var backendErr *asr.BackendError
	if !errors.As(err, &backendErr) {
		t.Fatalf("Transcribe: error = %v, want *asr.BackendError", err)
	}
	if backendErr.Backend != "whisper-server" {
		t.Errorf("Backend = %q, want %q", backendErr.Backend, "whisper-server")
	}
}

func TestServerTranscribe_RejectsTranslation(t *testing.T) {
	t.Parallel()

	rec, err := whisper.NewServer("http://localhost:1")
	if err != nil {
		t.Fatalf("NewServer: unexpected error: %v", err)
	}
	if _, err := rec.Transcribe(context.Background(), asr.Request{Task: asr.TaskTranslate}); err == nil {
		t.Fatal("Transcribe: expected error for translation task")
	}
}

// writeTestClip writes a tiny valid WAV file and returns its path.
func writeTestClip(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.wav")
	wav := media.EncodeWAV(make([]byte, 3200), 16000, 1)
	if err := os.WriteFile(path, wav, 0o644); err != nil {
		t.Fatalf("write test clip: %v", err)
	}
	return path
}
