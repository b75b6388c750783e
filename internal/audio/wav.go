package audio

import (
	"bytes"
	"encoding/binary"
	"io"
)

// WAVHeaderSize is the size of the canonical RIFF/WAVE header written by FrameWAV.
const WAVHeaderSize = 44

// FrameWAV wraps canonical PCM16 audio in a 44-byte RIFF/WAVE header.
func FrameWAV(pcm16 []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(WAVHeaderSize + len(pcm16))
	_ = WriteWAV(&buf, pcm16)
	return buf.Bytes()
}

// WriteWAV streams canonical PCM16 audio with a 44-byte RIFF/WAVE header.
func WriteWAV(w io.Writer, pcm16 []byte) error {
	const bitsPerSample = 16
	channels := Canonical.Channels
	sampleRate := Canonical.SampleRate
	byteRate := sampleRate * channels * (bitsPerSample / 8)
	blockAlign := channels * (bitsPerSample / 8)

	header := make([]byte, WAVHeaderSize)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(36+len(pcm16)))
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(header[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(header[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(header[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(header[34:36], bitsPerSample)
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(len(pcm16)))

	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err := w.Write(pcm16)
	return err
}

// UnwrapWAV strips a leading 44-byte header when the input starts with "RIFF".
//
// Files with extension chunks ahead of "data" (LIST, fact, WAVE_FORMAT_EXTENSIBLE)
// are not parsed; their extra header bytes stay in the returned PCM.
func UnwrapWAV(file []byte) []byte {
	if len(file) < 4 || string(file[0:4]) != "RIFF" {
		return file
	}
	if len(file) <= WAVHeaderSize {
		return []byte{}
	}
	return file[WAVHeaderSize:]
}
