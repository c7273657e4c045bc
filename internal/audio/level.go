package audio

import (
	"math"
	"sync"
)

// LevelConfig holds configuration for the input level meter.
type LevelConfig struct {
	EnergyThreshold float64 // RMS energy above which a chunk counts as speech
	SilenceChunks   int     // Consecutive quiet chunks before speech is considered ended
}

// DefaultLevelConfig returns thresholds tuned for 16 kHz mono dictation audio.
func DefaultLevelConfig() *LevelConfig {
	return &LevelConfig{
		EnergyThreshold: 500.0,
		SilenceChunks:   5, // ~1s at the default 200ms chunk interval
	}
}

// LevelMeter tracks the input level of the captured audio stream and exposes
// a speech-active flag for the recording indicator. It is fed one chunk per
// producer tick and read concurrently by status snapshots.
type LevelMeter struct {
	config *LevelConfig

	mu            sync.RWMutex
	rms           float64
	peak          float64
	silenceCount  int
	speechActive  bool
}

// NewLevelMeter creates a level meter; a nil config uses defaults.
func NewLevelMeter(config *LevelConfig) *LevelMeter {
	if config == nil {
		config = DefaultLevelConfig()
	}
	return &LevelMeter{config: config}
}

// Process updates the meter with one s16le chunk.
func (l *LevelMeter) Process(chunk []byte) {
	samples, err := SamplesS16LE(chunk)
	if err != nil || len(samples) == 0 {
		return
	}

	rms := CalculateRMS(samples)
	var peak int16
	for _, s := range samples {
		if s == math.MinInt16 {
			peak = math.MaxInt16
			break
		}
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.rms = rms
	l.peak = float64(peak) / 32767.0
	if rms > l.config.EnergyThreshold {
		l.silenceCount = 0
		l.speechActive = true
	} else {
		l.silenceCount++
		if l.silenceCount >= l.config.SilenceChunks {
			l.speechActive = false
		}
	}
}

// Level returns the most recent peak level normalized to [0, 1].
func (l *LevelMeter) Level() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.peak
}

// RMS returns the most recent RMS energy.
func (l *LevelMeter) RMS() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.rms
}

// SpeechActive reports whether recent chunks crossed the energy threshold.
func (l *LevelMeter) SpeechActive() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.speechActive
}

// Reset clears the meter between sessions.
func (l *LevelMeter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rms = 0
	l.peak = 0
	l.silenceCount = 0
	l.speechActive = false
}

// CalculateRMS computes the root-mean-square energy of PCM samples.
func CalculateRMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
