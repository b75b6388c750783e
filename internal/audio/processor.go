// Package audio handles device discovery, PCM capture, format conversion, and WAV framing.
package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Format describes an interleaved PCM layout.
//
// BitDepth 16 means signed little-endian integers; 32 means little-endian IEEE floats.
type Format struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// Canonical is the only layout handed to transcription: 16 kHz mono PCM16.
var Canonical = Format{SampleRate: 16000, Channels: 1, BitDepth: 16}

// DefaultWaveformSamples is the bucket count used by waveform previews.
const DefaultWaveformSamples = 100

// FrameSize returns the byte size of one frame (all channels of one sample instant).
func (f Format) FrameSize() int {
	return f.Channels * (f.BitDepth / 8)
}

func (f Format) String() string {
	kind := "s16le"
	if f.BitDepth == 32 {
		kind = "f32le"
	}
	return fmt.Sprintf("%dHz/%dch/%s", f.SampleRate, f.Channels, kind)
}

func (f Format) validate() error {
	switch {
	case f.SampleRate <= 0:
		return fmt.Errorf("sample rate must be > 0 (got %d)", f.SampleRate)
	case f.Channels <= 0:
		return fmt.Errorf("channel count must be > 0 (got %d)", f.Channels)
	case f.BitDepth != 16 && f.BitDepth != 32:
		return fmt.Errorf("unsupported bit depth %d", f.BitDepth)
	}
	return nil
}

// Convert re-encodes interleaved PCM from one layout to another.
//
// Channels are averaged when down-mixing and duplicated when up-mixing from mono.
// Sample rates are converted by linear interpolation and the output holds
// floor(frames*to/from) frames, so callers that convert in chunks should use
// ConversionBlock-sized input to avoid cumulative drift.
func Convert(data []byte, from, to Format) ([]byte, error) {
	if err := from.validate(); err != nil {
		return nil, fmt.Errorf("%w: source %v", ErrConversionFailed, err)
	}
	if err := to.validate(); err != nil {
		return nil, fmt.Errorf("%w: target %v", ErrConversionFailed, err)
	}
	if len(data)%from.FrameSize() != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a whole number of %s frames", ErrConversionFailed, len(data), from)
	}
	if from == to {
		return append([]byte(nil), data...), nil
	}

	samples := decodeSamples(data, from.BitDepth)
	samples = remix(samples, from.Channels, to.Channels)
	samples = resample(samples, to.Channels, from.SampleRate, to.SampleRate)
	return encodeSamples(samples, to.BitDepth), nil
}

// ConversionBlock returns the smallest input frame count that converts to a
// whole number of output frames, along with that output frame count.
func ConversionBlock(from, to Format) (inFrames int, outFrames int) {
	if from.SampleRate <= 0 || to.SampleRate <= 0 {
		return 1, 1
	}
	g := gcd(from.SampleRate, to.SampleRate)
	return from.SampleRate / g, to.SampleRate / g
}

// GenerateWaveform reduces PCM16 mono audio to at most sampleCount RMS
// buckets normalized to [0,1]. Buckets of ceil(n/sampleCount) samples
// partition the input, so only the last may be shorter and fewer buckets
// come back when the input runs out early.
//
// Empty input yields an empty slice. Silent input yields zeros.
func GenerateWaveform(pcm16 []byte, sampleCount int) []float64 {
	n := len(pcm16) / 2
	if n == 0 || sampleCount <= 0 {
		return []float64{}
	}

	bucket := (n + sampleCount - 1) / sampleCount
	out := make([]float64, 0, sampleCount)
	peak := 0.0
	for start := 0; start < n && len(out) < sampleCount; start += bucket {
		end := min(start+bucket, n)
		level := RMS(int16Slice(pcm16[start*2 : end*2]))
		out = append(out, level)
		peak = math.Max(peak, level)
	}

	if peak == 0 {
		return out
	}
	for i := range out {
		out[i] = clamp01(out[i] / peak)
	}
	return out
}

// RMS returns the root-mean-square of samples normalized to [-1,1].
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s) / 32768
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

func int16Slice(pcm16 []byte) []int16 {
	out := make([]int16, len(pcm16)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm16[i*2:]))
	}
	return out
}

func decodeSamples(data []byte, bitDepth int) []float64 {
	switch bitDepth {
	case 32:
		out := make([]float64, len(data)/4)
		for i := range out {
			out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:])))
		}
		return out
	default:
		out := make([]float64, len(data)/2)
		for i := range out {
			out[i] = float64(int16(binary.LittleEndian.Uint16(data[i*2:]))) / 32768
		}
		return out
	}
}

func encodeSamples(samples []float64, bitDepth int) []byte {
	switch bitDepth {
	case 32:
		out := make([]byte, len(samples)*4)
		for i, s := range samples {
			binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(float32(s)))
		}
		return out
	default:
		out := make([]byte, len(samples)*2)
		for i, s := range samples {
			binary.LittleEndian.PutUint16(out[i*2:], uint16(floatToInt16(s)))
		}
		return out
	}
}

func floatToInt16(v float64) int16 {
	if math.IsNaN(v) {
		return 0
	}
	v = math.Max(-1, math.Min(1, v))
	if v < 0 {
		return int16(math.Round(v * 32768))
	}
	return int16(math.Round(v * 32767))
}

func remix(samples []float64, from, to int) []float64 {
	if from == to {
		return samples
	}
	frames := len(samples) / from
	out := make([]float64, frames*to)
	for f := range frames {
		frame := samples[f*from : (f+1)*from]
		if to == 1 {
			var sum float64
			for _, v := range frame {
				sum += v
			}
			out[f] = sum / float64(from)
			continue
		}
		for c := range to {
			out[f*to+c] = frame[c%from]
		}
	}
	return out
}

func resample(samples []float64, channels, fromRate, toRate int) []float64 {
	if fromRate == toRate {
		return samples
	}
	frames := len(samples) / channels
	outFrames := int(int64(frames) * int64(toRate) / int64(fromRate))
	out := make([]float64, outFrames*channels)
	step := float64(fromRate) / float64(toRate)
	for i := range outFrames {
		pos := float64(i) * step
		idx := int(pos)
		frac := pos - float64(idx)
		next := min(idx+1, frames-1)
		for c := range channels {
			a := samples[idx*channels+c]
			b := samples[next*channels+c]
			out[i*channels+c] = a + (b-a)*frac
		}
	}
	return out
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func clamp01(v float64) float64 {
	switch {
	case v < 0 || math.IsNaN(v):
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
