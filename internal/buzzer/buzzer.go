// Package buzzer drives the jukebox's tone output. A Tone emits a square
// wave of a given frequency for a given duration and then goes silent;
// nothing is retained between calls.
package buzzer

import (
	"fmt"
	"time"
)

// Tone emits square-wave beeps. Beep blocks for the duration of the tone.
// A frequency of 0 keeps the output silent for the duration.
type Tone interface {
	Beep(freq uint16, d time.Duration) error
	Close() error
}

// Note is one beep in a cue.
type Note struct {
	Freq     uint16
	Duration time.Duration
}

// Play beeps each note in order, stopping at the first error.
func Play(t Tone, notes ...Note) error {
	for _, n := range notes {
		if err := t.Beep(n.Freq, n.Duration); err != nil {
			return err
		}
	}
	return nil
}

// Options selects and configures a tone backend.
type Options struct {
	Backend    string // "gpio", "audio", "wav" or "none"
	Chip       string // gpio: character device, e.g. "gpiochip0"
	Line       int    // gpio: line offset
	SampleRate uint32 // audio, wav
	Volume     float32
	WAVPath    string // wav
}

// New opens the backend named by opts.Backend.
func New(opts Options) (Tone, error) {
	switch opts.Backend {
	case "gpio":
		return NewGPIO(opts.Chip, opts.Line)
	case "audio":
		return NewSpeaker(opts.SampleRate, opts.Volume)
	case "wav":
		return NewWAV(opts.WAVPath, opts.SampleRate, opts.Volume)
	case "none", "":
		return NewSilent(), nil
	default:
		return nil, fmt.Errorf("buzzer: unknown backend %q", opts.Backend)
	}
}
