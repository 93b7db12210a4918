package buzzer

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// lineSetter is the part of a GPIO line the buzzer needs.
type lineSetter interface {
	SetValue(value int) error
	Close() error
}

// GPIO toggles a character-device GPIO line at the tone frequency.
type GPIO struct {
	mu    sync.Mutex
	line  lineSetter
	sleep func(time.Duration)
}

// NewGPIO requests line on chip as an output, driven low.
func NewGPIO(chip string, line int) (*GPIO, error) {
	l, err := gpiocdev.RequestLine(chip, line,
		gpiocdev.AsOutput(0),
		gpiocdev.WithConsumer("jukebox-buzzer"))
	if err != nil {
		return nil, fmt.Errorf("buzzer: requesting %s line %d: %w", chip, line, err)
	}
	slog.Info("[BUZZER] gpio ready", "chip", chip, "line", line)
	return newGPIO(l, time.Sleep), nil
}

func newGPIO(line lineSetter, sleep func(time.Duration)) *GPIO {
	return &GPIO{line: line, sleep: sleep}
}

func (g *GPIO) Beep(freq uint16, d time.Duration) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.line == nil {
		return fmt.Errorf("buzzer: gpio line closed")
	}

	if freq == 0 || d <= 0 {
		if err := g.line.SetValue(0); err != nil {
			return fmt.Errorf("buzzer: silencing: %w", err)
		}
		if d > 0 {
			g.sleep(d)
		}
		return nil
	}

	half := time.Second / time.Duration(2*uint32(freq))
	toggles := halfPeriodToggles(freq, d)
	level := 1
	for i := 0; i < toggles; i++ {
		if err := g.line.SetValue(level); err != nil {
			_ = g.line.SetValue(0)
			return fmt.Errorf("buzzer: driving line: %w", err)
		}
		level ^= 1
		g.sleep(half)
	}
	if err := g.line.SetValue(0); err != nil {
		return fmt.Errorf("buzzer: silencing: %w", err)
	}
	return nil
}

// Close drives the line low and releases it.
func (g *GPIO) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.line == nil {
		return nil
	}
	_ = g.line.SetValue(0)
	err := g.line.Close()
	g.line = nil
	return err
}
