package segment

import (
	"fmt"

	"github.com/hraban/opus"

	"github.com/JarrySand/whisper-discord-sub000/internal/pcm"
)

// Encoder compresses 16kHz mono PCM16LE into a transportable payload.
type Encoder interface {
	Encode(raw []byte) ([]byte, error)
	Format() Format
	Bitrate() int
}

// Resampler converts PCM to the target sample rate and channel layout.
type Resampler interface {
	To16kMono(raw []byte, sampleRate, channels int) []byte
}

// LinearResampler downmixes and linearly interpolates to 16kHz mono.
type LinearResampler struct{}

// To16kMono implements Resampler.
func (LinearResampler) To16kMono(raw []byte, sampleRate, channels int) []byte {
	samples := pcm.BytesToSamples(raw)
	if channels == 2 {
		samples = pcm.DownmixStereo(samples)
	}
	samples = pcm.Resample(samples, sampleRate, TargetSampleRate)
	return pcm.SamplesToBytes(samples)
}

// opusFrameSamples is 20ms of audio at the target rate.
const opusFrameSamples = 320

// opusFrameGranule is 20ms on the 48kHz Ogg granule clock.
const opusFrameGranule = 960

// OpusEncoder encodes 16kHz mono PCM into an Ogg/Opus stream.
type OpusEncoder struct {
	bitrate int
	serial  uint32
}

// NewOpusEncoder creates an Ogg/Opus encoder at the given bitrate.
func NewOpusEncoder(bitrate int) *OpusEncoder {
	if bitrate <= 0 {
		bitrate = 24000
	}
	return &OpusEncoder{bitrate: bitrate, serial: 0x5eb0}
}

// Encode implements Encoder.
func (e *OpusEncoder) Encode(raw []byte) ([]byte, error) {
	enc, err := opus.NewEncoder(TargetSampleRate, TargetChannels, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("opus encoder init: %w", err)
	}
	if err := enc.SetBitrate(e.bitrate); err != nil {
		return nil, fmt.Errorf("opus bitrate: %w", err)
	}

	samples := pcm.BytesToSamples(raw)
	var packets [][]byte
	frame := make([]int16, opusFrameSamples)
	out := make([]byte, 4000)
	for off := 0; off < len(samples); off += opusFrameSamples {
		end := off + opusFrameSamples
		if end > len(samples) {
			end = len(samples)
		}
		n := copy(frame, samples[off:end])
		for i := n; i < opusFrameSamples; i++ {
			frame[i] = 0 // pad the tail frame with silence
		}
		written, err := enc.Encode(frame, out)
		if err != nil {
			return nil, fmt.Errorf("opus encode: %w", err)
		}
		pkt := make([]byte, written)
		copy(pkt, out[:written])
		packets = append(packets, pkt)
	}
	if len(packets) == 0 {
		return nil, fmt.Errorf("opus encode: empty input")
	}
	return muxOgg(e.serial, TargetSampleRate, packets, opusFrameGranule), nil
}

// Format implements Encoder.
func (e *OpusEncoder) Format() Format { return FormatOpus }

// Bitrate implements Encoder.
func (e *OpusEncoder) Bitrate() int { return e.bitrate }

// WAVEncoder wraps PCM in a RIFF header without compression. It never
// fails and serves as the fallback when Opus encoding does.
type WAVEncoder struct{}

// Encode implements Encoder.
func (WAVEncoder) Encode(raw []byte) ([]byte, error) {
	return pcm.BuildWAV(raw, TargetSampleRate, TargetChannels, 16), nil
}

// Format implements Encoder.
func (WAVEncoder) Format() Format { return FormatWAV }

// Bitrate implements Encoder.
func (WAVEncoder) Bitrate() int { return TargetSampleRate * TargetChannels * 16 }
