// Command mazad resolves player mentions in a segment of spoken football
// commentary: it cuts the segment out of the source media, transcribes it
// with knowledge conditioning, matches the transcript against a player
// knowledge base, and verifies the matches with a second, stricter pass.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/ATAboukhadra/T30-Mazad/internal/config"
	"github.com/ATAboukhadra/T30-Mazad/internal/knowledge"
	"github.com/ATAboukhadra/T30-Mazad/internal/knowledge/semindex"
	"github.com/ATAboukhadra/T30-Mazad/internal/match"
	"github.com/ATAboukhadra/T30-Mazad/internal/observe"
	"github.com/ATAboukhadra/T30-Mazad/internal/pipeline"
	"github.com/ATAboukhadra/T30-Mazad/internal/prompt"
	"github.com/ATAboukhadra/T30-Mazad/internal/resilience"
	"github.com/ATAboukhadra/T30-Mazad/internal/transcribe"
	"github.com/ATAboukhadra/T30-Mazad/internal/verify"
	"github.com/ATAboukhadra/T30-Mazad/internal/verify/llmcheck"
	"github.com/ATAboukhadra/T30-Mazad/pkg/media"
	"github.com/ATAboukhadra/T30-Mazad/pkg/provider/asr"
	asropenai "github.com/ATAboukhadra/T30-Mazad/pkg/provider/asr/openai"
	"github.com/ATAboukhadra/T30-Mazad/pkg/provider/asr/whisper"
	"github.com/ATAboukhadra/T30-Mazad/pkg/provider/embeddings"
	ollamaembed "github.com/ATAboukhadra/T30-Mazad/pkg/provider/embeddings/ollama"
	oaembed "github.com/ATAboukhadra/T30-Mazad/pkg/provider/embeddings/openai"
	"github.com/ATAboukhadra/T30-Mazad/pkg/provider/llm"
	"github.com/ATAboukhadra/T30-Mazad/pkg/provider/llm/anyllm"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	audioPath := flag.String("audio", "", "source media file (video or audio)")
	startTS := flag.String("start", "", "segment start timestamp (SS, MM:SS.s, or H:MM:SS.s)")
	endTS := flag.String("end", "", "segment end timestamp; empty means until end of source")
	question := flag.String("question", "", "optional constraint question narrowing the player set")
	outDir := flag.String("out", "", "artifact output directory (overrides config)")
	overwrite := flag.Bool("overwrite", false, "allow replacing artifacts from an earlier run")
	reindex := flag.Bool("reindex", false, "rebuild the semantic index from the player database before running")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("mazad", version)
		return 0
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "mazad: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "mazad: %v\n", err)
		}
		return 1
	}
	if *outDir != "" {
		cfg.Output.Dir = *outDir
	}
	if *overwrite {
		cfg.Output.Overwrite = true
	}
	if *audioPath == "" && !*reindex {
		fmt.Fprintln(os.Stderr, "mazad: -audio is required")
		flag.Usage()
		return 2
	}

	seg, err := media.ParseSegment(*startTS, *endTS)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mazad: %v\n", err)
		return 2
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Observability ─────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "mazad",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Knowledge base ────────────────────────────────────────────────────────
	matchStore, err := knowledge.LoadFile(cfg.Knowledge.PlayerDB, logger)
	if err != nil {
		slog.Error("failed to load player database", "path", cfg.Knowledge.PlayerDB, "err", err)
		return 1
	}
	promptStore := matchStore
	if cfg.Knowledge.PromptDB != cfg.Knowledge.PlayerDB {
		promptStore, err = knowledge.LoadFile(cfg.Knowledge.PromptDB, logger)
		if err != nil {
			slog.Error("failed to load prompt database", "path", cfg.Knowledge.PromptDB, "err", err)
			return 1
		}
	}
	slog.Info("knowledge base loaded",
		"path", cfg.Knowledge.PlayerDB,
		"records", len(matchStore.Records()),
	)

	// ── Semantic index (optional) ─────────────────────────────────────────────
	var semIndex *semindex.Index
	if cfg.Knowledge.Semantic.PostgresDSN != "" {
		emb, err := buildEmbeddings(cfg.Providers.Embeddings)
		if err != nil {
			slog.Error("failed to build embeddings provider", "err", err)
			return 1
		}
		semIndex, err = semindex.Open(ctx, cfg.Knowledge.Semantic.PostgresDSN, emb)
		if err != nil {
			slog.Error("failed to open semantic index", "err", err)
			return 1
		}
		defer semIndex.Close()

		if *reindex {
			slog.Info("rebuilding semantic index", "records", len(matchStore.Records()))
			if err := semIndex.IndexStore(ctx, matchStore); err != nil {
				slog.Error("failed to index knowledge base", "err", err)
				return 1
			}
			slog.Info("semantic index rebuilt")
		}
	} else if *reindex {
		slog.Error("reindex requested but knowledge.semantic.postgres_dsn is not configured")
		return 1
	}
	if *audioPath == "" {
		return 0
	}

	// ── Providers ─────────────────────────────────────────────────────────────
	rec, err := buildRecognizer(cfg.Providers.ASR)
	if err != nil {
		slog.Error("failed to build recognizer", "name", cfg.Providers.ASR.Name, "err", err)
		return 1
	}
	if len(cfg.Providers.ASRFallbacks) > 0 {
		chain := resilience.NewRecognizer(rec, cfg.Providers.ASR.Name, resilience.BreakerConfig{})
		for _, entry := range cfg.Providers.ASRFallbacks {
			fb, err := buildRecognizer(entry)
			if err != nil {
				slog.Error("failed to build fallback recognizer", "name", entry.Name, "err", err)
				return 1
			}
			chain.AddFallback(entry.Name, fb)
			slog.Info("fallback recognizer registered", "name", entry.Name)
		}
		rec = chain
	}
	slog.Info("recognizer ready", "name", cfg.Providers.ASR.Name)

	var checker *llmcheck.Checker
	if cfg.Verify.LLMCheck {
		provider, err := buildLLM(cfg.Providers.LLM)
		if err != nil {
			slog.Error("failed to build llm provider", "name", cfg.Providers.LLM.Name, "err", err)
			return 1
		}
		checker, err = llmcheck.New(provider)
		if err != nil {
			slog.Error("failed to build llm checker", "err", err)
			return 1
		}
		slog.Info("llm plausibility check enabled", "name", cfg.Providers.LLM.Name)
	}

	// ── Pipeline assembly ─────────────────────────────────────────────────────
	p, err := buildPipeline(cfg, matchStore, promptStore, rec, checker, semIndex, logger)
	if err != nil {
		slog.Error("failed to assemble pipeline", "err", err)
		return 1
	}

	// ── Run ───────────────────────────────────────────────────────────────────
	out, err := p.Run(ctx, pipeline.Input{
		Source:   *audioPath,
		Segment:  seg,
		Question: *question,
	})
	if err != nil {
		var stageErr *pipeline.StageError
		if errors.As(err, &stageErr) {
			slog.Error("pipeline stage failed", "stage", stageErr.Stage, "err", stageErr.Err)
		} else {
			slog.Error("pipeline failed", "err", err)
		}
		return 1
	}

	printResult(out)
	return 0
}

// buildRecognizer constructs the ASR backend named in entry.
func buildRecognizer(entry config.ProviderEntry) (asr.Recognizer, error) {
	switch entry.Name {
	case "whisper-native":
		return whisper.NewNative(entry.Model)
	case "whisper-server":
		return whisper.NewServer(entry.BaseURL)
	case "openai":
		return asropenai.New(entry.APIKey, entry.Model)
	default:
		return nil, fmt.Errorf("unknown asr provider %q", entry.Name)
	}
}

// buildLLM constructs the completion backend for the plausibility check.
// ollama is a local server and takes only a base URL; the hosted providers
// take an API key and an optional base URL override.
func buildLLM(entry config.ProviderEntry) (llm.Provider, error) {
	var opts []anyllmlib.Option
	switch entry.Name {
	case "ollama":
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
	default:
		if entry.APIKey != "" {
			opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
		}
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
	}
	return anyllm.New(entry.Name, entry.Model, opts...)
}

// buildEmbeddings constructs the embeddings backend for the semantic index.
func buildEmbeddings(entry config.ProviderEntry) (embeddings.Provider, error) {
	switch entry.Name {
	case "openai":
		var opts []oaembed.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
		return oaembed.New(entry.APIKey, entry.Model, opts...)
	case "ollama":
		return ollamaembed.New(entry.BaseURL, entry.Model)
	default:
		return nil, fmt.Errorf("unknown embeddings provider %q", entry.Name)
	}
}

// buildPipeline wires the configured stages together.
func buildPipeline(cfg *config.Config, matchStore, promptStore *knowledge.Store, rec asr.Recognizer, checker *llmcheck.Checker, semIndex *semindex.Index, logger *slog.Logger) (*pipeline.Pipeline, error) {
	extractor := &media.Extractor{
		FFmpegPath: cfg.Audio.FFmpegPath,
		Slowdown:   cfg.Audio.Slowdown,
	}

	builder, err := prompt.New(promptStore,
		prompt.WithCharBudget(cfg.Transcribe.PromptCharBudget),
		prompt.WithRecordLimit(cfg.Transcribe.PromptLimit),
	)
	if err != nil {
		return nil, fmt.Errorf("prompt builder: %w", err)
	}

	transcriber, err := transcribe.New(rec,
		transcribe.WithPasses(cfg.Transcribe.Passes),
		transcribe.WithPassTimeout(cfg.Transcribe.PassTimeout.Std()),
		transcribe.WithTemperature(cfg.Transcribe.Temperature),
		transcribe.WithLanguage(cfg.Transcribe.Language),
		transcribe.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("transcriber: %w", err)
	}

	matcher, err := match.New(matchStore,
		match.WithGramRange(cfg.Match.MinGram, cfg.Match.MaxGram),
		match.WithThreshold(cfg.Match.Threshold),
		match.WithMaxSuggestions(cfg.Match.MaxSuggestions),
		match.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("matcher: %w", err)
	}

	verifier, err := verify.New(rec, matchStore,
		verify.WithGramRange(cfg.Match.MinGram, cfg.Match.MaxGram),
		verify.WithThreshold(cfg.Match.Threshold),
		verify.WithDisagreementPenalty(cfg.Verify.DisagreementPenalty),
		verify.WithCharBudget(cfg.Transcribe.PromptCharBudget),
		verify.WithLanguage(cfg.Transcribe.Language),
		verify.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("verifier: %w", err)
	}

	opts := []pipeline.Option{
		pipeline.WithArtifacts(&pipeline.Artifacts{
			Dir:       cfg.Output.Dir,
			Overwrite: cfg.Output.Overwrite,
		}),
		pipeline.WithCharBudget(cfg.Transcribe.PromptCharBudget),
		pipeline.WithLogger(logger),
	}
	if checker != nil {
		opts = append(opts, pipeline.WithChecker(checker))
	}
	if semIndex != nil {
		opts = append(opts, pipeline.WithSemanticIndex(semIndex, cfg.Knowledge.Semantic.TopK))
	}

	return pipeline.New(extractor, builder, transcriber, matcher, verifier, opts...)
}

// printResult writes the human-readable summary to stdout.
func printResult(out pipeline.Output) {
	fmt.Printf("Transcript: %s\n", out.Transcript.Text)
	if len(out.Verified.Matches) == 0 {
		fmt.Println("No player mentions resolved.")
		return
	}

	fmt.Println("\nResolved mentions:")
	for _, m := range out.Verified.Matches {
		mark := " "
		if m.Agreement {
			mark = "*"
		}
		fmt.Printf("  %s %-24s %6.1f  (heard %q at %.1fs)\n",
			mark, m.Name, m.FinalConfidence, m.Gram, m.SpanStart)
	}
	fmt.Println("  * = confirmed by the verification round")

	if out.Verdict != nil {
		if out.Verdict.AllValid {
			fmt.Println("\nLLM check: all names plausible")
		} else {
			fmt.Printf("\nLLM check: implausible names %v (%s)\n",
				out.Verdict.InvalidNames, out.Verdict.Reasoning)
		}
	}
	if out.VerdictErr != nil {
		fmt.Printf("\nLLM check failed: %v\n", out.VerdictErr)
	}
}

// newLogger builds the process logger at the configured level.
func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
