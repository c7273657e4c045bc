package audio

import (
	"fmt"
)

// The recognition service consumes mono 16-bit linear PCM, little-endian.
// These helpers normalize whatever the capture backend delivers into that
// format.

// Float32ToS16LE converts float32 samples in [-1, 1] to 16-bit little-endian
// PCM bytes. Out-of-range samples are clipped.
func Float32ToS16LE(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}
		v := int16(s * 32767)
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

// SamplesS16LE decodes 16-bit little-endian PCM bytes into int16 samples.
func SamplesS16LE(data []byte) ([]int16, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("pcm data length %d is not a whole number of 16-bit samples", len(data))
	}
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return samples, nil
}

// DownmixStereoS16LE averages interleaved stereo s16le frames into mono.
// Data that is not a whole number of stereo frames is an error.
func DownmixStereoS16LE(data []byte) ([]byte, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("stereo pcm data length %d is not a whole number of frames", len(data))
	}
	out := make([]byte, len(data)/2)
	for i := 0; i < len(data); i += 4 {
		left := int16(data[i]) | int16(data[i+1])<<8
		right := int16(data[i+2]) | int16(data[i+3])<<8
		mixed := int16((int32(left) + int32(right)) / 2)
		out[i/2] = byte(mixed)
		out[i/2+1] = byte(mixed >> 8)
	}
	return out, nil
}

// ChunkSizeBytes returns the size of one capture chunk for the given stream
// parameters, e.g. 16000 Hz * 1 channel * 200 ms -> 6400 bytes.
func ChunkSizeBytes(sampleRate, channels, intervalMillis int) int {
	return sampleRate * channels * 2 * intervalMillis / 1000
}
