package media

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	// extractSampleRate is the output sample rate for extracted clips.
	// Whisper-family models expect 16 kHz mono.
	extractSampleRate = 16000

	// atempo supports factors in [0.5, 2.0] per filter instance; factors
	// outside that range are expressed as a chain.
	atempoMin = 0.5
	atempoMax = 2.0
)

// Clip is an extracted, decode-ready audio file: 16 kHz mono 16-bit PCM WAV.
type Clip struct {
	// Path is the location of the WAV file on disk.
	Path string

	// Segment is the source range the clip was cut from.
	Segment Segment
}

// Extractor cuts audio segments out of source media files using the ffmpeg
// binary. The zero value uses "ffmpeg" from PATH.
type Extractor struct {
	// FFmpegPath overrides the ffmpeg binary location. Empty means "ffmpeg".
	FFmpegPath string

	// Slowdown is an optional playback-speed factor applied during
	// extraction (0.5 = half speed). Zero or 1.0 means no adjustment.
	Slowdown float64
}

// Extract cuts seg out of sourcePath and writes a 16 kHz mono WAV into
// destDir. The output file name is derived from the source file name.
// The returned Clip points at the written file.
func (e *Extractor) Extract(ctx context.Context, sourcePath string, seg Segment, destDir string) (Clip, error) {
	if err := seg.Validate(0); err != nil {
		return Clip{}, err
	}

	bin := e.FFmpegPath
	if bin == "" {
		bin = "ffmpeg"
	}

	outPath := filepath.Join(destDir, strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath))+"_clip.wav")

	args := []string{"-y", "-i", sourcePath}
	if seg.Start > 0 {
		args = append(args, "-ss", formatSeconds(seg.Start))
	}
	if seg.EndSet {
		args = append(args, "-t", formatSeconds(seg.Duration()))
	}
	if chain := atempoChain(e.Slowdown); chain != "" {
		args = append(args, "-af", chain)
	}
	args = append(args,
		"-ar", strconv.Itoa(extractSampleRate),
		"-ac", "1",
		outPath,
	)

	cmd := exec.CommandContext(ctx, bin, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return Clip{}, fmt.Errorf("media: ffmpeg extract %q: %w (output: %s)", sourcePath, err, truncate(string(out), 512))
	}
	return Clip{Path: outPath, Segment: seg}, nil
}

// atempoChain renders a speed factor as a comma-separated chain of atempo
// filters, splitting factors outside the [0.5, 2.0] per-filter range.
// Returns "" when no adjustment is needed.
func atempoChain(speed float64) string {
	if speed <= 0 || speed == 1.0 {
		return ""
	}

	var factors []float64
	remaining := speed
	for remaining < atempoMin {
		factors = append(factors, atempoMin)
		remaining /= atempoMin
	}
	for remaining > atempoMax {
		factors = append(factors, atempoMax)
		remaining /= atempoMax
	}
	factors = append(factors, remaining)

	parts := make([]string, len(factors))
	for i, f := range factors {
		parts[i] = fmt.Sprintf("atempo=%.3f", f)
	}
	return strings.Join(parts, ",")
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
