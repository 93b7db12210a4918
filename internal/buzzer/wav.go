package buzzer

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"sync"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const wavBitDepth = 16

// WAV renders beeps into a 16-bit mono PCM file instead of sounding them.
// Beep returns as soon as the samples are written. The file is finalised
// by Close.
type WAV struct {
	path       string
	sampleRate uint32
	volume     float32

	mu      sync.Mutex
	file    *os.File
	enc     *wav.Encoder
	written int
}

// NewWAV creates (or truncates) the file at path.
func NewWAV(path string, sampleRate uint32, volume float32) (*WAV, error) {
	if path == "" {
		return nil, fmt.Errorf("buzzer: wav path must not be empty")
	}
	if sampleRate == 0 {
		return nil, fmt.Errorf("buzzer: wav sample rate must be > 0")
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("buzzer: creating wav file: %w", err)
	}
	return &WAV{
		path:       path,
		sampleRate: sampleRate,
		volume:     volume,
		file:       f,
		enc:        wav.NewEncoder(f, int(sampleRate), wavBitDepth, 1, 1),
	}, nil
}

func (w *WAV) Beep(freq uint16, d time.Duration) error {
	samples := squareWave(freq, d, w.sampleRate, w.volume)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.enc == nil {
		return fmt.Errorf("buzzer: wav output closed")
	}
	if len(samples) == 0 {
		return nil
	}
	if err := w.enc.Write(w.intBuffer(samples)); err != nil {
		return fmt.Errorf("buzzer: writing wav samples: %w", err)
	}
	w.written += len(samples)
	slog.Debug("[BUZZER] tone rendered", "freq", freq, "duration", d, "samples", len(samples))
	return nil
}

func (w *WAV) intBuffer(samples []float32) *audio.IntBuffer {
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(math.Round(float64(s) * math.MaxInt16))
	}
	return &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: int(w.sampleRate)},
		Data:           data,
		SourceBitDepth: wavBitDepth,
	}
}

// Close writes the WAV headers and closes the file.
func (w *WAV) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.enc == nil {
		return nil
	}

	if w.written == 0 {
		// The encoder only emits headers on the first Write.
		if err := w.enc.Write(w.intBuffer(nil)); err != nil {
			w.file.Close()
			return fmt.Errorf("buzzer: writing wav header: %w", err)
		}
	}
	err := w.enc.Close()
	w.enc = nil
	if cerr := w.file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("buzzer: closing wav file: %w", err)
	}
	slog.Info("[BUZZER] wav written", "path", w.path, "samples", w.written)
	return nil
}
