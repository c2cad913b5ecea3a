package media

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// bitsPerSample is fixed at 16 for the signed little-endian PCM audio the
// recognizer backends expect.
const bitsPerSample = 16

// WAVData is decoded audio from a RIFF/WAV container.
type WAVData struct {
	// Samples is the decoded audio, downmixed to mono float32 in [-1, 1].
	Samples []float32

	// SampleRate is the sample rate in Hz.
	SampleRate int
}

// Duration returns the audio duration in seconds.
func (w WAVData) Duration() float64 {
	if w.SampleRate <= 0 {
		return 0
	}
	return float64(len(w.Samples)) / float64(w.SampleRate)
}

// DecodeWAVFile reads and decodes the 16-bit PCM WAV file at path.
func DecodeWAVFile(path string) (WAVData, error) {
	f, err := os.Open(path)
	if err != nil {
		return WAVData{}, fmt.Errorf("media: open wav %q: %w", path, err)
	}
	defer f.Close()
	return DecodeWAV(f)
}

// DecodeWAV decodes a 16-bit PCM RIFF/WAV stream into mono float32 samples.
// Multi-channel audio is downmixed by averaging channels.
func DecodeWAV(r io.Reader) (WAVData, error) {
	var header [12]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return WAVData{}, fmt.Errorf("media: read wav header: %w", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return WAVData{}, errors.New("media: not a RIFF/WAVE stream")
	}

	var (
		sampleRate int
		channels   int
		data       []byte
	)

	// Walk sub-chunks until "data" is found. Unknown chunks are skipped.
	for {
		var chunkHeader [8]byte
		if _, err := io.ReadFull(r, chunkHeader[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return WAVData{}, fmt.Errorf("media: read chunk header: %w", err)
		}
		id := string(chunkHeader[0:4])
		size := binary.LittleEndian.Uint32(chunkHeader[4:8])

		switch id {
		case "fmt ":
			buf := make([]byte, size)
			if _, err := io.ReadFull(r, buf); err != nil {
				return WAVData{}, fmt.Errorf("media: read fmt chunk: %w", err)
			}
			if len(buf) < 16 {
				return WAVData{}, errors.New("media: fmt chunk too short")
			}
			format := binary.LittleEndian.Uint16(buf[0:2])
			if format != 1 {
				return WAVData{}, fmt.Errorf("media: unsupported wav format %d (want PCM)", format)
			}
			channels = int(binary.LittleEndian.Uint16(buf[2:4]))
			sampleRate = int(binary.LittleEndian.Uint32(buf[4:8]))
			if bps := binary.LittleEndian.Uint16(buf[14:16]); bps != bitsPerSample {
				return WAVData{}, fmt.Errorf("media: unsupported bit depth %d (want %d)", bps, bitsPerSample)
			}
		case "data":
			data = make([]byte, size)
			if _, err := io.ReadFull(r, data); err != nil {
				return WAVData{}, fmt.Errorf("media: read data chunk: %w", err)
			}
		default:
			if _, err := io.CopyN(io.Discard, r, int64(size)); err != nil {
				return WAVData{}, fmt.Errorf("media: skip %q chunk: %w", id, err)
			}
		}

		if data != nil && sampleRate > 0 {
			break
		}
	}

	if sampleRate <= 0 || channels <= 0 {
		return WAVData{}, errors.New("media: missing fmt chunk")
	}
	if data == nil {
		return WAVData{}, errors.New("media: missing data chunk")
	}

	return WAVData{
		Samples:    pcmToFloat32Mono(data, channels),
		SampleRate: sampleRate,
	}, nil
}

// EncodeWAV wraps raw 16-bit signed little-endian PCM data in a standard
// RIFF/WAV container, suitable for direct upload to an HTTP recognizer.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8
	dataSize := len(pcm)

	buf := make([]byte, 44+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1)
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], uint16(bitsPerSample))

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)

	return buf
}

// pcmToFloat32Mono converts interleaved 16-bit signed little-endian PCM to
// mono float32 samples in [-1, 1], averaging across channels.
func pcmToFloat32Mono(pcm []byte, channels int) []float32 {
	if channels <= 0 {
		channels = 1
	}
	frames := len(pcm) / (2 * channels)
	out := make([]float32, 0, frames)
	for f := 0; f < frames; f++ {
		var sum float32
		for c := 0; c < channels; c++ {
			off := (f*channels + c) * 2
			sample := int16(binary.LittleEndian.Uint16(pcm[off : off+2]))
			sum += float32(sample) / 32768.0
		}
		out = append(out, sum/float32(channels))
	}
	return out
}
