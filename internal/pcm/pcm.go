// Package pcm provides helpers for 16-bit little-endian PCM audio.
package pcm

import (
	"bytes"
	"encoding/binary"
	"math"
)

// BytesToSamples decodes PCM16LE bytes into int16 samples. A trailing odd
// byte is ignored.
func BytesToSamples(b []byte) []int16 {
	n := len(b) / 2
	samples := make([]int16, n)
	for i := 0; i < n; i++ {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}

// SamplesToBytes encodes int16 samples as PCM16LE bytes.
func SamplesToBytes(samples []int16) []byte {
	b := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(s))
	}
	return b
}

// RMS computes root-mean-square energy of PCM16LE bytes, normalized to
// [0, 1] by dividing each sample by 32768.
func RMS(b []byte) float64 {
	samples := BytesToSamples(b)
	if len(samples) == 0 {
		return 0
	}
	var sumSq float64
	for _, s := range samples {
		v := float64(s) / 32768.0
		sumSq += v * v
	}
	return math.Sqrt(sumSq / float64(len(samples)))
}

// DownmixStereo averages interleaved stereo samples into mono. Input with an
// odd sample count drops the trailing sample.
func DownmixStereo(samples []int16) []int16 {
	out := make([]int16, len(samples)/2)
	for i := range out {
		l := int32(samples[i*2])
		r := int32(samples[i*2+1])
		out[i] = int16((l + r) / 2)
	}
	return out
}

// Resample converts mono samples from one rate to another using linear
// interpolation. Returns the input unchanged when rates match.
func Resample(samples []int16, fromRate, toRate int) []int16 {
	if fromRate == toRate || len(samples) == 0 {
		return samples
	}
	ratio := float64(fromRate) / float64(toRate)
	outLen := int(float64(len(samples)) / ratio)
	if outLen == 0 {
		return nil
	}
	out := make([]int16, outLen)
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := pos - float64(idx)
		a := float64(samples[idx])
		b := float64(samples[idx+1])
		out[i] = int16(a + (b-a)*frac)
	}
	return out
}

// BuildWAV wraps raw PCM16LE bytes in a RIFF/WAVE header. sampleRate in Hz,
// channels and bitsPerSample (commonly 16) populate the header.
func BuildWAV(raw []byte, sampleRate, channels, bitsPerSample int) []byte {
	byteRate := uint32(sampleRate * channels * bitsPerSample / 8)
	blockAlign := uint16(channels * bitsPerSample / 8)
	dataLen := uint32(len(raw))
	riffSize := uint32(4 + (8 + 16) + (8 + dataLen))

	buf := &bytes.Buffer{}
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, riffSize)
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1))
	binary.Write(buf, binary.LittleEndian, uint16(channels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, byteRate)
	binary.Write(buf, binary.LittleEndian, blockAlign)
	binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))
	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, dataLen)
	buf.Write(raw)
	return buf.Bytes()
}
