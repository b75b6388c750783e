package audio

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func float32Frames(frames int, channels int, value float32) []byte {
	out := make([]byte, frames*channels*4)
	for i := 0; i < frames*channels; i++ {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(value))
	}
	return out
}

func pcm16(samples ...int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func TestConvertOneSecondStereoFloatToCanonical(t *testing.T) {
	from := Format{SampleRate: 48000, Channels: 2, BitDepth: 32}
	out, err := Convert(float32Frames(48000, 2, 0), from, Canonical)
	require.NoError(t, err)
	require.Len(t, out, 32000)
	for _, b := range out {
		require.Zero(t, b)
	}
}

func TestConvertDownmixAveragesChannels(t *testing.T) {
	from := Format{SampleRate: 16000, Channels: 2, BitDepth: 32}
	data := make([]byte, 8)
	binary.LittleEndian.PutUint32(data[0:], math.Float32bits(0.5))
	binary.LittleEndian.PutUint32(data[4:], math.Float32bits(-0.5))

	out, err := Convert(data, from, Canonical)
	require.NoError(t, err)
	require.Equal(t, pcm16(0), out)
}

func TestConvertUpmixDuplicatesMono(t *testing.T) {
	to := Format{SampleRate: 16000, Channels: 2, BitDepth: 16}
	out, err := Convert(pcm16(1000, -2000), Canonical, to)
	require.NoError(t, err)
	require.Equal(t, pcm16(1000, 1000, -2000, -2000), out)
}

func TestConvertClampsFloatOverflow(t *testing.T) {
	from := Format{SampleRate: 16000, Channels: 1, BitDepth: 32}
	data := make([]byte, 8)
	binary.LittleEndian.PutUint32(data[0:], math.Float32bits(2.0))
	binary.LittleEndian.PutUint32(data[4:], math.Float32bits(-3.0))

	out, err := Convert(data, from, Canonical)
	require.NoError(t, err)
	require.Equal(t, pcm16(32767, -32768), out)
}

func TestConvertSameFormatCopies(t *testing.T) {
	in := pcm16(1, 2, 3)
	out, err := Convert(in, Canonical, Canonical)
	require.NoError(t, err)
	require.Equal(t, in, out)
	out[0] = 9
	require.NotEqual(t, in[0], out[0])
}

func TestConvertRejectsPartialFramesAndBadFormats(t *testing.T) {
	from := Format{SampleRate: 48000, Channels: 2, BitDepth: 32}
	_, err := Convert(make([]byte, 7), from, Canonical)
	require.ErrorIs(t, err, ErrConversionFailed)

	_, err = Convert(make([]byte, 4), Format{SampleRate: 16000, Channels: 1, BitDepth: 24}, Canonical)
	require.ErrorIs(t, err, ErrConversionFailed)

	_, err = Convert(make([]byte, 4), Canonical, Format{SampleRate: 0, Channels: 1, BitDepth: 16})
	require.ErrorIs(t, err, ErrConversionFailed)
}

func TestConversionBlock(t *testing.T) {
	in, out := ConversionBlock(Format{SampleRate: 48000}, Canonical)
	require.Equal(t, 3, in)
	require.Equal(t, 1, out)

	in, out = ConversionBlock(Format{SampleRate: 44100}, Canonical)
	require.Equal(t, 441, in)
	require.Equal(t, 160, out)
}

func TestGenerateWaveformEmptyInput(t *testing.T) {
	require.Empty(t, GenerateWaveform(nil, DefaultWaveformSamples))
	require.Empty(t, GenerateWaveform([]byte{1}, DefaultWaveformSamples))
}

func TestGenerateWaveformAllZero(t *testing.T) {
	waveform := GenerateWaveform(make([]byte, 32000), DefaultWaveformSamples)
	require.Len(t, waveform, DefaultWaveformSamples)
	for _, v := range waveform {
		require.Zero(t, v)
	}
}

func TestGenerateWaveformNormalizesToPeak(t *testing.T) {
	samples := make([]int16, 400)
	for i := range samples {
		switch {
		case i < 100:
			samples[i] = 1000
		case i < 200:
			samples[i] = -4000
		}
	}

	waveform := GenerateWaveform(pcm16(samples...), 4)
	require.Len(t, waveform, 4)
	require.InDelta(t, 0.25, waveform[0], 1e-9)
	require.InDelta(t, 1.0, waveform[1], 1e-9)
	require.Zero(t, waveform[2])
	require.Zero(t, waveform[3])
}

func TestGenerateWaveformRangeAndIdempotence(t *testing.T) {
	samples := make([]int16, 1601)
	for i := range samples {
		samples[i] = int16(math.Sin(float64(i)/7) * float64(i%300) * 100)
	}
	data := pcm16(samples...)

	first := GenerateWaveform(data, DefaultWaveformSamples)
	second := GenerateWaveform(data, DefaultWaveformSamples)
	require.Equal(t, first, second)
	require.Len(t, first, DefaultWaveformSamples)
	for _, v := range first {
		require.GreaterOrEqual(t, v, 0.0)
		require.LessOrEqual(t, v, 1.0)
	}
}

func TestGenerateWaveformFewerSamplesThanBuckets(t *testing.T) {
	waveform := GenerateWaveform(pcm16(100, 200), 5)
	require.Equal(t, []float64{0.5, 1.0}, roundAll(waveform))
}

func TestGenerateWaveformBucketsPartitionInput(t *testing.T) {
	samples := make([]int16, 150)
	for i := range samples {
		samples[i] = 8000
	}

	waveform := GenerateWaveform(pcm16(samples...), 100)
	require.Len(t, waveform, 75)
	for _, v := range waveform {
		require.InDelta(t, 1.0, v, 1e-9)
	}

	// 7 samples into 3 buckets of 3: the last bucket holds one sample.
	waveform = GenerateWaveform(pcm16(1000, 1000, 1000, 2000, 2000, 2000, 4000), 3)
	require.Equal(t, []float64{0.25, 0.5, 1.0}, roundAll(waveform))
}

func roundAll(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = math.Round(v*1e6) / 1e6
	}
	return out
}

func TestRMS(t *testing.T) {
	require.Zero(t, RMS(nil))
	require.InDelta(t, 0.5, RMS([]int16{16384, -16384}), 1e-9)
}
