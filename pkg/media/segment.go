// Package media handles the audio side of the pipeline: timestamp parsing,
// segment validation, ffmpeg-based audio extraction from source video or
// audio files, and WAV decoding for recognizers that consume raw samples.
//
// A Segment is a bounded time range of source media selected for processing.
// Extraction always produces 16 kHz mono 16-bit PCM WAV, the format every
// recognizer backend in pkg/provider/asr accepts.
package media

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidSegment is wrapped by all segment validation failures, including
// bad timestamp syntax, start ≥ end, and ranges outside the source duration.
var ErrInvalidSegment = errors.New("invalid audio segment")

// Segment is a bounded time range of source media, in seconds from the start
// of the source. End == 0 with EndSet == false means "until end of source".
type Segment struct {
	// Start is the segment start offset in seconds.
	Start float64

	// End is the segment end offset in seconds. Must be greater than Start
	// when EndSet is true.
	End float64

	// EndSet reports whether End was explicitly provided.
	EndSet bool
}

// Duration returns End−Start, or 0 when no explicit end was set.
func (s Segment) Duration() float64 {
	if !s.EndSet {
		return 0
	}
	return s.End - s.Start
}

// Validate checks the segment against the source media duration.
// sourceDuration ≤ 0 means the duration is unknown and only the internal
// ordering of the segment is checked.
func (s Segment) Validate(sourceDuration float64) error {
	if s.Start < 0 {
		return fmt.Errorf("%w: start %.3fs is negative", ErrInvalidSegment, s.Start)
	}
	if s.EndSet && s.Start >= s.End {
		return fmt.Errorf("%w: start %.3fs is not before end %.3fs", ErrInvalidSegment, s.Start, s.End)
	}
	if sourceDuration > 0 {
		if s.Start >= sourceDuration {
			return fmt.Errorf("%w: start %.3fs is beyond source duration %.3fs", ErrInvalidSegment, s.Start, sourceDuration)
		}
		if s.EndSet && s.End > sourceDuration {
			return fmt.Errorf("%w: end %.3fs is beyond source duration %.3fs", ErrInvalidSegment, s.End, sourceDuration)
		}
	}
	return nil
}

// ParseSegment builds a Segment from start/end timestamp strings.
// Either string may be empty: an empty start means 0, an empty end means
// "until end of source".
func ParseSegment(start, end string) (Segment, error) {
	var seg Segment
	if start != "" {
		v, err := ParseTimestamp(start)
		if err != nil {
			return Segment{}, err
		}
		seg.Start = v
	}
	if end != "" {
		v, err := ParseTimestamp(end)
		if err != nil {
			return Segment{}, err
		}
		seg.End = v
		seg.EndSet = true
	}
	if err := seg.Validate(0); err != nil {
		return Segment{}, err
	}
	return seg, nil
}

// ParseTimestamp parses "SS", "SS.s", "MM:SS.s", or "H:MM:SS.s" into seconds.
func ParseTimestamp(ts string) (float64, error) {
	parts := strings.Split(strings.TrimSpace(ts), ":")
	if len(parts) == 0 || len(parts) > 3 {
		return 0, fmt.Errorf("%w: timestamp %q", ErrInvalidSegment, ts)
	}

	var total float64
	for _, part := range parts {
		v, err := strconv.ParseFloat(part, 64)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("%w: timestamp %q", ErrInvalidSegment, ts)
		}
		total = total*60 + v
	}
	return total, nil
}
