package buzzer

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
)

// Speaker plays beeps on the default audio output device. It stands in for
// the piezo buzzer when running on a development machine.
type Speaker struct {
	ctx        *malgo.AllocatedContext
	sampleRate uint32
	volume     float32

	mu sync.Mutex // one tone at a time
}

// NewSpeaker opens an audio context. Call Close() when done.
func NewSpeaker(sampleRate uint32, volume float32) (*Speaker, error) {
	if sampleRate == 0 {
		return nil, fmt.Errorf("buzzer: speaker sample rate must be > 0")
	}
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("buzzer: initializing audio context: %w", err)
	}
	return &Speaker{
		ctx:        ctx,
		sampleRate: sampleRate,
		volume:     volume,
	}, nil
}

func (s *Speaker) Beep(freq uint16, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		return fmt.Errorf("buzzer: speaker closed")
	}

	samples := squareWave(freq, d, s.sampleRate, s.volume)
	if len(samples) == 0 {
		return nil
	}
	src := &sampleSource{samples: samples, done: make(chan struct{})}

	deviceCfg := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceCfg.Playback.Format = malgo.FormatF32
	deviceCfg.Playback.Channels = 1
	deviceCfg.SampleRate = s.sampleRate

	device, err := malgo.InitDevice(s.ctx.Context, deviceCfg, malgo.DeviceCallbacks{Data: src.onData})
	if err != nil {
		return fmt.Errorf("buzzer: initializing playback device: %w", err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		return fmt.Errorf("buzzer: starting playback device: %w", err)
	}

	// Allow a little slack for device latency before giving up.
	select {
	case <-src.done:
	case <-time.After(d + 500*time.Millisecond):
	}
	return nil
}

// Close releases the audio context.
func (s *Speaker) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		return nil
	}
	err := s.ctx.Uninit()
	s.ctx.Free()
	s.ctx = nil
	if err != nil {
		return fmt.Errorf("buzzer: uninitializing audio context: %w", err)
	}
	return nil
}

// sampleSource feeds float32 samples to a malgo playback callback.
type sampleSource struct {
	mu      sync.Mutex
	samples []float32
	pos     int
	done    chan struct{}
	closed  bool
}

// onData is the malgo callback; it fills pOutput with little-endian
// float32 frames and pads with silence once the tone is exhausted.
func (s *sampleSource) onData(pOutput, _ []byte, frameCount uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.fill(pOutput, frameCount)
	for i := n * 4; i < len(pOutput); i++ {
		pOutput[i] = 0
	}
	if s.pos >= len(s.samples) && !s.closed {
		s.closed = true
		close(s.done)
	}
}

// fill copies up to frameCount samples into out and returns how many were copied.
func (s *sampleSource) fill(out []byte, frameCount uint32) int {
	n := 0
	for ; n < int(frameCount) && s.pos < len(s.samples); n++ {
		off := n * 4
		if off+4 > len(out) {
			break
		}
		binary.LittleEndian.PutUint32(out[off:off+4], math.Float32bits(s.samples[s.pos]))
		s.pos++
	}
	return n
}
