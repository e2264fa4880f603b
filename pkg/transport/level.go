package transport

import (
	"math"
	"sync"
	"time"

	"gopkg.in/hraban/opus.v2"
)

// LevelMeter decodes the remote Opus audio track and tracks speech
// energy, driving the "interviewer is speaking" indicator.
type LevelMeter struct {
	decoder *opus.Decoder
	pcm     []int16

	threshold float64
	hold      time.Duration

	mu         sync.Mutex
	level      float64
	lastActive time.Time

	// OnActiveChange fires when the active-speaker state flips.
	OnActiveChange func(active bool)

	active bool
}

// NewLevelMeter creates a meter for 48kHz mono Opus, the WebRTC
// default.
func NewLevelMeter() (*LevelMeter, error) {
	decoder, err := opus.NewDecoder(48000, 1)
	if err != nil {
		return nil, err
	}
	return &LevelMeter{
		decoder:   decoder,
		pcm:       make([]int16, 5760), // up to 120ms at 48kHz
		threshold: 0.015,
		hold:      300 * time.Millisecond,
	}, nil
}

// Feed decodes one Opus packet and updates the level.
func (m *LevelMeter) Feed(packet []byte) error {
	n, err := m.decoder.Decode(packet, m.pcm)
	if err != nil {
		return err
	}
	m.FeedPCM(m.pcm[:n])
	return nil
}

// FeedPCM updates the level from raw samples. Split out so tests can
// drive the meter without an Opus stream.
func (m *LevelMeter) FeedPCM(samples []int16) {
	if len(samples) == 0 {
		return
	}

	var sum float64
	for _, s := range samples {
		f := float64(s) / 32768.0
		sum += f * f
	}
	rms := math.Sqrt(sum / float64(len(samples)))

	m.mu.Lock()
	m.level = rms
	now := time.Now()
	if rms >= m.threshold {
		m.lastActive = now
	}
	active := now.Sub(m.lastActive) <= m.hold && !m.lastActive.IsZero()
	changed := active != m.active
	m.active = active
	cb := m.OnActiveChange
	m.mu.Unlock()

	if changed && cb != nil {
		cb(active)
	}
}

// Level returns the most recent RMS level in [0, 1].
func (m *LevelMeter) Level() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.level
}

// Active reports whether speech energy was seen within the hold window.
func (m *LevelMeter) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}
