package buzzer

import (
	"log/slog"
	"time"
)

// Silent logs beeps and waits out their duration without producing sound.
type Silent struct {
	sleep func(time.Duration)
}

func NewSilent() *Silent {
	return &Silent{sleep: time.Sleep}
}

func (s *Silent) Beep(freq uint16, d time.Duration) error {
	slog.Info("[BUZZER] beep", "freq", freq, "duration", d)
	if d > 0 {
		s.sleep(d)
	}
	return nil
}

func (s *Silent) Close() error { return nil }
