package audio

import "encoding/binary"

// wavHeaderSize is the size of a canonical RIFF/WAVE header with a single
// PCM data chunk.
const wavHeaderSize = 44

// WAVHeader returns the 44-byte RIFF header for a PCM stream of dataLen
// bytes. Browsers and batch recognisers require a container; transports
// prepend this when a client asks for WAV-framed output.
func WAVHeader(dataLen, sampleRate, channels, bitsPerSample int) []byte {
	h := make([]byte, wavHeaderSize)
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	copy(h[0:4], "RIFF")
	binary.LittleEndian.PutUint32(h[4:8], uint32(36+dataLen))
	copy(h[8:12], "WAVE")
	copy(h[12:16], "fmt ")
	binary.LittleEndian.PutUint32(h[16:20], 16) // PCM fmt chunk size
	binary.LittleEndian.PutUint16(h[20:22], 1)  // audio format: PCM
	binary.LittleEndian.PutUint16(h[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(h[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(h[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(h[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(h[34:36], uint16(bitsPerSample))
	copy(h[36:40], "data")
	binary.LittleEndian.PutUint32(h[40:44], uint32(dataLen))
	return h
}

// WAV wraps pcm in a complete single-chunk WAV container.
func WAV(pcm []byte, sampleRate, channels, bitsPerSample int) []byte {
	out := make([]byte, 0, wavHeaderSize+len(pcm))
	out = append(out, WAVHeader(len(pcm), sampleRate, channels, bitsPerSample)...)
	return append(out, pcm...)
}
