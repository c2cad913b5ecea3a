package pipeline_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/ATAboukhadra/T30-Mazad/internal/knowledge"
	"github.com/ATAboukhadra/T30-Mazad/internal/match"
	"github.com/ATAboukhadra/T30-Mazad/internal/observe"
	"github.com/ATAboukhadra/T30-Mazad/internal/pipeline"
	"github.com/ATAboukhadra/T30-Mazad/internal/prompt"
	"github.com/ATAboukhadra/T30-Mazad/internal/transcribe"
	"github.com/ATAboukhadra/T30-Mazad/internal/verify"
	"github.com/ATAboukhadra/T30-Mazad/internal/verify/llmcheck"
	"github.com/ATAboukhadra/T30-Mazad/pkg/media"
	"github.com/ATAboukhadra/T30-Mazad/pkg/provider/asr"
	asrmock "github.com/ATAboukhadra/T30-Mazad/pkg/provider/asr/mock"
	"github.com/ATAboukhadra/T30-Mazad/pkg/provider/llm"
	llmmock "github.com/ATAboukhadra/T30-Mazad/pkg/provider/llm/mock"
)

// fakeExtractor stands in for ffmpeg.
type fakeExtractor struct {
	err error
}

func (f *fakeExtractor) Extract(_ context.Context, sourcePath string, seg media.Segment, _ string) (media.Clip, error) {
	if f.err != nil {
		return media.Clip{}, f.err
	}
	return media.Clip{Path: sourcePath, Segment: seg}, nil
}

func testStore(t *testing.T) *knowledge.Store {
	t.Helper()
	store, err := knowledge.New([]knowledge.Record{
		{ID: "1", Name: "John Smith", Nationality: "England", Position: "Defender", Clubs: []string{"Arsenal"}, FameScore: 80},
		{ID: "2", Name: "Jane Kowalski", Position: "Midfielder", FameScore: 60},
	})
	if err != nil {
		t.Fatalf("knowledge.New: %v", err)
	}
	return store
}

func commentaryTokens() []asr.Token {
	return []asr.Token{
		{Text: "John", Start: 0.0, End: 0.4},
		{Text: "Smith", Start: 0.4, End: 0.9},
		{Text: "scores", Start: 0.9, End: 1.4},
	}
}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func newPipeline(t *testing.T, dir string, extractor pipeline.Extractor, firstRec, secondRec asr.Recognizer, opts ...pipeline.Option) *pipeline.Pipeline {
	t.Helper()

	store := testStore(t)
	builder, err := prompt.New(store)
	if err != nil {
		t.Fatalf("prompt.New: %v", err)
	}
	tr, err := transcribe.New(firstRec, transcribe.WithPasses(1))
	if err != nil {
		t.Fatalf("transcribe.New: %v", err)
	}
	m, err := match.New(store)
	if err != nil {
		t.Fatalf("match.New: %v", err)
	}
	v, err := verify.New(secondRec, store)
	if err != nil {
		t.Fatalf("verify.New: %v", err)
	}

	opts = append(opts,
		pipeline.WithArtifacts(&pipeline.Artifacts{Dir: dir}),
		pipeline.WithMetrics(testMetrics(t)),
	)
	p, err := pipeline.New(extractor, builder, tr, m, v, opts...)
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}
	return p
}

func TestRun(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	pass := asr.PassResult{Text: "John Smith scores", Tokens: commentaryTokens()}
	firstRec := &asrmock.Recognizer{Results: []asr.PassResult{pass}}
	secondRec := &asrmock.Recognizer{Results: []asr.PassResult{pass}}

	p := newPipeline(t, dir, &fakeExtractor{}, firstRec, secondRec)

	out, err := p.Run(context.Background(), pipeline.Input{
		Source:  "match.mp4",
		Segment: media.Segment{Start: 10, End: 20, EndSet: true},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if out.Transcript.Text != "John Smith scores" {
		t.Errorf("transcript = %q", out.Transcript.Text)
	}
	if len(out.Candidates) != 1 || out.Candidates[0].RecordID != "1" {
		t.Fatalf("candidates = %+v, want one match for record 1", out.Candidates)
	}
	if len(out.Verified.Matches) != 1 {
		t.Fatalf("verified matches = %+v", out.Verified.Matches)
	}
	m := out.Verified.Matches[0]
	if !m.Agreement {
		t.Error("verification round should agree with stage two")
	}
	if m.FinalConfidence != 100 {
		t.Errorf("final confidence = %v, want 100 for exact agreement", m.FinalConfidence)
	}

	for _, name := range []string{
		pipeline.PromptFile,
		pipeline.TranscriptFile,
		pipeline.TokensFile,
		pipeline.CandidatesFile,
		pipeline.VerifiedFile,
	} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("artifact %s not written: %v", name, err)
		}
	}

	data, err := os.ReadFile(filepath.Join(dir, pipeline.TokensFile))
	if err != nil {
		t.Fatalf("read token table: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 4 {
		t.Errorf("token table has %d lines, want header plus 3 tokens", len(lines))
	}
	if lines[0] != "text,start,end,confidence,pass" {
		t.Errorf("token table header = %q", lines[0])
	}
	for i, line := range lines[1:] {
		if !strings.HasSuffix(line, ",0") {
			t.Errorf("token row %d = %q, want trailing pass index", i, line)
		}
	}
}

func TestRun_WithChecker(t *testing.T) {
	t.Parallel()

	pass := asr.PassResult{Text: "John Smith scores", Tokens: commentaryTokens()}
	firstRec := &asrmock.Recognizer{Results: []asr.PassResult{pass}}
	secondRec := &asrmock.Recognizer{Results: []asr.PassResult{pass}}

	llmProvider := &llmmock.Provider{
		Responses: []llm.CompletionResponse{{Content: `{"all_valid": true, "invalid_names": [], "reasoning": "supported"}`}},
	}
	checker, err := llmcheck.New(llmProvider)
	if err != nil {
		t.Fatalf("llmcheck.New: %v", err)
	}

	p := newPipeline(t, t.TempDir(), &fakeExtractor{}, firstRec, secondRec, pipeline.WithChecker(checker))

	out, err := p.Run(context.Background(), pipeline.Input{Source: "match.mp4"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Verdict == nil || !out.Verdict.AllValid {
		t.Errorf("verdict = %+v, want all-valid", out.Verdict)
	}
	if llmProvider.CallCount() != 1 {
		t.Errorf("llm calls = %d, want 1", llmProvider.CallCount())
	}
}

func TestRun_CheckerFailureIsAdvisory(t *testing.T) {
	t.Parallel()

	pass := asr.PassResult{Text: "John Smith scores", Tokens: commentaryTokens()}
	firstRec := &asrmock.Recognizer{Results: []asr.PassResult{pass}}
	secondRec := &asrmock.Recognizer{Results: []asr.PassResult{pass}}

	llmProvider := &llmmock.Provider{Errs: []error{errors.New("model unavailable")}}
	checker, err := llmcheck.New(llmProvider)
	if err != nil {
		t.Fatalf("llmcheck.New: %v", err)
	}

	p := newPipeline(t, t.TempDir(), &fakeExtractor{}, firstRec, secondRec, pipeline.WithChecker(checker))

	out, err := p.Run(context.Background(), pipeline.Input{Source: "match.mp4"})
	if err != nil {
		t.Fatalf("Run should not fail on an advisory check error, got %v", err)
	}
	if out.Verdict != nil {
		t.Errorf("verdict = %+v, want nil after check failure", out.Verdict)
	}
	if out.VerdictErr == nil {
		t.Error("VerdictErr should record the check failure")
	}
	if len(out.Verified.Matches) != 1 {
		t.Errorf("verified matches lost: %+v", out.Verified.Matches)
	}
}

func TestRun_StageFailurePreservesEarlierArtifacts(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	firstRec := &asrmock.Recognizer{Errs: []error{
		&asr.BackendError{Backend: "mock", Err: errors.New("decode failed")},
	}}

	p := newPipeline(t, dir, &fakeExtractor{}, firstRec, &asrmock.Recognizer{})

	_, err := p.Run(context.Background(), pipeline.Input{Source: "match.mp4"})
	if err == nil {
		t.Fatal("expected transcription failure")
	}
	var stageErr *pipeline.StageError
	if !errors.As(err, &stageErr) {
		t.Fatalf("error %T is not a *StageError", err)
	}
	if stageErr.Stage != pipeline.StageTranscribe {
		t.Errorf("failed stage = %q, want transcribe", stageErr.Stage)
	}

	if _, err := os.Stat(filepath.Join(dir, pipeline.PromptFile)); err != nil {
		t.Errorf("prompt artifact should survive the transcription failure: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, pipeline.TranscriptFile)); err == nil {
		t.Error("transcript artifact should not exist after the failure")
	}
}

func TestRun_ExtractFailure(t *testing.T) {
	t.Parallel()

	p := newPipeline(t, t.TempDir(), &fakeExtractor{err: errors.New("ffmpeg exploded")},
		&asrmock.Recognizer{}, &asrmock.Recognizer{})

	_, err := p.Run(context.Background(), pipeline.Input{Source: "match.mp4"})
	var stageErr *pipeline.StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != pipeline.StageExtract {
		t.Fatalf("err = %v, want StageError for extract", err)
	}
}

func TestRun_WriteOnce(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	pass := asr.PassResult{Text: "John Smith scores", Tokens: commentaryTokens()}

	run := func() error {
		firstRec := &asrmock.Recognizer{Results: []asr.PassResult{pass}}
		secondRec := &asrmock.Recognizer{Results: []asr.PassResult{pass}}
		p := newPipeline(t, dir, &fakeExtractor{}, firstRec, secondRec)
		_, err := p.Run(context.Background(), pipeline.Input{Source: "match.mp4"})
		return err
	}

	if err := run(); err != nil {
		t.Fatalf("first run: %v", err)
	}
	err := run()
	if !errors.Is(err, pipeline.ErrArtifactExists) {
		t.Fatalf("second run err = %v, want ErrArtifactExists", err)
	}
}
