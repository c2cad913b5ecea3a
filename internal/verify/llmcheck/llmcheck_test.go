package llmcheck_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ATAboukhadra/T30-Mazad/internal/verify"
	"github.com/ATAboukhadra/T30-Mazad/internal/verify/llmcheck"
	"github.com/ATAboukhadra/T30-Mazad/pkg/provider/llm"
	"github.com/ATAboukhadra/T30-Mazad/pkg/provider/llm/mock"
)

func matches(names ...string) []verify.Match {
	out := make([]verify.Match, len(names))
	for i, n := range names {
		out[i] = verify.Match{RecordID: n, Name: n, FinalConfidence: 90}
	}
	return out
}

func TestCheck_ParsesVerdict(t *testing.T) {
	t.Parallel()

	provider := &mock.Provider{
		Responses: []llm.CompletionResponse{{
			Content: "Here is my judgement:\n```json\n" +
				`{"all_valid": false, "invalid_names": ["Jane Kowalski"], "reasoning": "only Smith is supported"}` +
				"\n```",
		}},
	}

	c, err := llmcheck.New(provider)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	verdict, err := c.Check(context.Background(), "John Smith scores", matches("John Smith", "Jane Kowalski"))
	if err != nil {
		t.Fatalf("Check: unexpected error: %v", err)
	}
	if verdict.AllValid {
		t.Error("AllValid = true, want false")
	}
	if len(verdict.InvalidNames) != 1 || verdict.InvalidNames[0] != "Jane Kowalski" {
		t.Errorf("InvalidNames = %v, want [Jane Kowalski]", verdict.InvalidNames)
	}

	if provider.CallCount() != 1 {
		t.Fatalf("provider called %d times, want 1", provider.CallCount())
	}
	req := provider.Calls[0].Req
	content := req.Messages[0].Content
	if !strings.Contains(content, "John Smith scores") {
		t.Errorf("request missing transcript: %q", content)
	}
	if !strings.Contains(content, "- Jane Kowalski") {
		t.Errorf("request missing claimed name: %q", content)
	}
}

func TestCheck_EmptyMatches(t *testing.T) {
	t.Parallel()

	provider := &mock.Provider{}
	c, err := llmcheck.New(provider)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	verdict, err := c.Check(context.Background(), "whatever", nil)
	if err != nil {
		t.Fatalf("Check: unexpected error: %v", err)
	}
	if !verdict.AllValid {
		t.Error("AllValid = false, want true for empty match list")
	}
	if provider.CallCount() != 0 {
		t.Errorf("provider called %d times, want 0", provider.CallCount())
	}
}

func TestCheck_MalformedResponse(t *testing.T) {
	t.Parallel()

	provider := &mock.Provider{
		Responses: []llm.CompletionResponse{{Content: "I cannot answer that."}},
	}
	c, err := llmcheck.New(provider)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := c.Check(context.Background(), "t", matches("John Smith")); err == nil {
		t.Fatal("Check: expected error for a response without JSON")
	}
}

func TestCheck_ProviderError(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("rate limited")
	provider := &mock.Provider{Responses: []llm.CompletionResponse{{}}, Errs: []error{wantErr}}
	c, err := llmcheck.New(provider)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := c.Check(context.Background(), "t", matches("John Smith")); !errors.Is(err, wantErr) {
		t.Fatalf("Check: error = %v, want wrapped provider error", err)
	}
}
