package pipeline

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ATAboukhadra/T30-Mazad/internal/match"
	"github.com/ATAboukhadra/T30-Mazad/internal/transcribe"
	"github.com/ATAboukhadra/T30-Mazad/internal/verify"
	"github.com/ATAboukhadra/T30-Mazad/internal/verify/llmcheck"
)

// ErrArtifactExists is returned when a run would clobber an existing
// artifact and overwriting is disabled.
var ErrArtifactExists = errors.New("pipeline: artifact already exists")

// Artifact file names within the output directory.
const (
	PromptFile     = "prompt.txt"
	TranscriptFile = "transcript.txt"
	TokensFile     = "tokens.csv"
	CandidatesFile = "candidates.json"
	VerifiedFile   = "verified.json"
	VerdictFile    = "verdict.json"
)

// Artifacts writes per-stage outputs into a directory. Every write is
// write-once unless Overwrite is set. A nil *Artifacts disables writing;
// all methods are nil-safe no-ops.
type Artifacts struct {
	// Dir is the output directory, created on first write.
	Dir string

	// Overwrite permits replacing files from an earlier run.
	Overwrite bool
}

// WritePrompt stores the rendered recognition prompt.
func (a *Artifacts) WritePrompt(text string) error {
	return a.writeFile(PromptFile, []byte(text))
}

// WriteTranscript stores the consensus transcript text.
func (a *Artifacts) WriteTranscript(text string) error {
	return a.writeFile(TranscriptFile, []byte(text))
}

// WriteTokens stores the per-pass token table as CSV with columns
// text, start, end, confidence, pass. Dropped passes contribute no rows;
// tokens without confidence leave the column empty.
func (a *Artifacts) WriteTokens(passes []transcribe.Pass) error {
	if a == nil {
		return nil
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"text", "start", "end", "confidence", "pass"}); err != nil {
		return fmt.Errorf("pipeline: write token header: %w", err)
	}
	for _, p := range passes {
		if p.Dropped() {
			continue
		}
		for _, tok := range p.Result.Tokens {
			conf := ""
			if tok.Confidence != nil {
				conf = strconv.FormatFloat(*tok.Confidence, 'f', 4, 64)
			}
			row := []string{
				tok.Text,
				strconv.FormatFloat(tok.Start, 'f', 3, 64),
				strconv.FormatFloat(tok.End, 'f', 3, 64),
				conf,
				strconv.Itoa(p.Index),
			}
			if err := w.Write(row); err != nil {
				return fmt.Errorf("pipeline: write token row: %w", err)
			}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("pipeline: flush token table: %w", err)
	}
	return a.writeFile(TokensFile, buf.Bytes())
}

// WriteCandidates stores the stage-two candidate list as JSON.
func (a *Artifacts) WriteCandidates(cands []match.Candidate) error {
	return a.writeJSON(CandidatesFile, cands)
}

// WriteVerified stores the verification stage result as JSON.
func (a *Artifacts) WriteVerified(res verify.Result) error {
	return a.writeJSON(VerifiedFile, res)
}

// WriteVerdict stores the LLM plausibility verdict as JSON.
func (a *Artifacts) WriteVerdict(v llmcheck.Verdict) error {
	return a.writeJSON(VerdictFile, v)
}

func (a *Artifacts) writeJSON(name string, v any) error {
	if a == nil {
		return nil
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("pipeline: marshal %s: %w", name, err)
	}
	return a.writeFile(name, append(data, '\n'))
}

func (a *Artifacts) writeFile(name string, data []byte) error {
	if a == nil {
		return nil
	}
	if err := os.MkdirAll(a.Dir, 0o755); err != nil {
		return fmt.Errorf("pipeline: create artifact dir: %w", err)
	}

	path := filepath.Join(a.Dir, name)
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !a.Overwrite {
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%w: %s", ErrArtifactExists, path)
		}
		return fmt.Errorf("pipeline: write artifact %s: %w", name, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("pipeline: write artifact %s: %w", name, err)
	}
	return f.Close()
}
