package whisper

import (
	"encoding/binary"
	"math"
)

// pcmToFloat32Mono converts little-endian 16-bit PCM into the normalised
// float32 mono samples whisper.cpp consumes. Multi-channel input is downmixed
// by averaging across channels.
func pcmToFloat32Mono(pcm []byte, channels int) []float32 {
	if channels < 1 {
		channels = 1
	}
	frames := len(pcm) / 2 / channels
	out := make([]float32, 0, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			off := (i*channels + c) * 2
			s := int16(binary.LittleEndian.Uint16(pcm[off : off+2]))
			sum += float64(s)
		}
		out = append(out, float32(sum/float64(channels)/32768.0))
	}
	return out
}

// rms computes the root-mean-square energy of a 16-bit PCM chunk.
func rms(chunk []byte) float64 {
	n := len(chunk) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := float64(int16(binary.LittleEndian.Uint16(chunk[i*2 : i*2+2])))
		sum += s * s
	}
	return math.Sqrt(sum / float64(n))
}

// durationMs returns the playback duration of n PCM bytes in milliseconds.
func durationMs(n, sampleRate, channels int) int {
	bytesPerMs := sampleRate * channels * (bitsPerSample / 8) / 1000
	if bytesPerMs <= 0 {
		return 0
	}
	return n / bytesPerMs
}
