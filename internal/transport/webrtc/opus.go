package webrtc

import (
	"fmt"

	"layeh.com/gopus"
)

// WebRTC audio runs 48 kHz stereo Opus at 20 ms frame size.
const (
	wireSampleRate  = 48000
	wireChannels    = 2
	wireFrameMs     = 20
	// wireFrameSamples is samples per channel per 20 ms frame.
	wireFrameSamples = wireSampleRate * wireFrameMs / 1000 // 960
	// wireFrameBytes is the size of one PCM frame at the wire format.
	wireFrameBytes = wireFrameSamples * wireChannels * 2 // 3840
)

// opusDecoder wraps a gopus decoder for one peer stream. Each peer gets its
// own decoder so decoder state carries correctly across consecutive packets.
type opusDecoder struct {
	dec *gopus.Decoder
}

func newOpusDecoder() (*opusDecoder, error) {
	dec, err := gopus.NewDecoder(wireSampleRate, wireChannels)
	if err != nil {
		return nil, fmt.Errorf("webrtc: create opus decoder: %w", err)
	}
	return &opusDecoder{dec: dec}, nil
}

// decode decodes one Opus packet into interleaved little-endian int16 PCM.
func (d *opusDecoder) decode(packet []byte) ([]byte, error) {
	pcm, err := d.dec.Decode(packet, wireFrameSamples, false)
	if err != nil {
		return nil, fmt.Errorf("webrtc: opus decode: %w", err)
	}
	return int16sToBytes(pcm), nil
}

// opusEncoder wraps a gopus encoder for the outbound stream.
type opusEncoder struct {
	enc *gopus.Encoder
}

func newOpusEncoder() (*opusEncoder, error) {
	enc, err := gopus.NewEncoder(wireSampleRate, wireChannels, gopus.Audio)
	if err != nil {
		return nil, fmt.Errorf("webrtc: create opus encoder: %w", err)
	}
	return &opusEncoder{enc: enc}, nil
}

// encode encodes one wire-format PCM frame (interleaved little-endian int16)
// into an Opus packet. pcmBytes must hold exactly wireFrameBytes.
func (e *opusEncoder) encode(pcmBytes []byte) ([]byte, error) {
	pcm := bytesToInt16s(pcmBytes)
	packet, err := e.enc.Encode(pcm, wireFrameSamples, len(pcmBytes))
	if err != nil {
		return nil, fmt.Errorf("webrtc: opus encode: %w", err)
	}
	return packet, nil
}

func int16sToBytes(pcm []int16) []byte {
	b := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		b[i*2] = byte(s)
		b[i*2+1] = byte(s >> 8)
	}
	return b
}

func bytesToInt16s(b []byte) []int16 {
	pcm := make([]int16, len(b)/2)
	for i := range pcm {
		pcm[i] = int16(b[i*2]) | int16(b[i*2+1])<<8
	}
	return pcm
}
