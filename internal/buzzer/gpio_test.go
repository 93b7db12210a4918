package buzzer

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeLine records the levels written to a GPIO line.
type fakeLine struct {
	mu     sync.Mutex
	values []int
	closed bool
	failAt int // 1-based SetValue call that fails; 0 never fails
}

func (l *fakeLine) SetValue(v int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.values = append(l.values, v)
	if l.failAt > 0 && len(l.values) == l.failAt {
		return errors.New("line busy")
	}
	return nil
}

func (l *fakeLine) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

// sleepRecorder sums requested sleeps instead of sleeping.
type sleepRecorder struct {
	total time.Duration
	calls int
}

func (s *sleepRecorder) sleep(d time.Duration) {
	s.total += d
	s.calls++
}

func TestGPIOBeepToggles(t *testing.T) {
	line := &fakeLine{}
	sr := &sleepRecorder{}
	g := newGPIO(line, sr.sleep)

	if err := g.Beep(1000, 100*time.Millisecond); err != nil {
		t.Fatalf("Beep() error = %v", err)
	}

	// 200 half periods plus the final low.
	if len(line.values) != 201 {
		t.Fatalf("SetValue calls = %d, want 201", len(line.values))
	}
	for i := 0; i < 200; i++ {
		want := 1 - i%2
		if line.values[i] != want {
			t.Fatalf("values[%d] = %d, want %d", i, line.values[i], want)
		}
	}
	if last := line.values[len(line.values)-1]; last != 0 {
		t.Errorf("final level = %d, want 0", last)
	}
	if sr.total != 100*time.Millisecond {
		t.Errorf("slept %v, want 100ms", sr.total)
	}
}

func TestGPIOBeepZeroFrequency(t *testing.T) {
	line := &fakeLine{}
	sr := &sleepRecorder{}
	g := newGPIO(line, sr.sleep)

	if err := g.Beep(0, 50*time.Millisecond); err != nil {
		t.Fatalf("Beep() error = %v", err)
	}
	if len(line.values) != 1 || line.values[0] != 0 {
		t.Errorf("values = %v, want [0]", line.values)
	}
	if sr.total != 50*time.Millisecond {
		t.Errorf("slept %v, want 50ms", sr.total)
	}
}

func TestGPIOBeepNegativeDuration(t *testing.T) {
	line := &fakeLine{}
	sr := &sleepRecorder{}
	g := newGPIO(line, sr.sleep)

	if err := g.Beep(1000, -time.Second); err != nil {
		t.Fatalf("Beep() error = %v", err)
	}
	if len(line.values) != 1 || line.values[0] != 0 {
		t.Errorf("values = %v, want [0]", line.values)
	}
	if sr.calls != 0 {
		t.Errorf("sleep calls = %d, want 0", sr.calls)
	}
}

func TestGPIOBeepLineErrorSilences(t *testing.T) {
	line := &fakeLine{failAt: 3}
	g := newGPIO(line, func(time.Duration) {})

	if err := g.Beep(1000, 10*time.Millisecond); err == nil {
		t.Fatal("Beep() should fail when the line cannot be driven")
	}
	if last := line.values[len(line.values)-1]; last != 0 {
		t.Errorf("final level = %d, want 0", last)
	}
}

func TestGPIOClose(t *testing.T) {
	line := &fakeLine{}
	g := newGPIO(line, func(time.Duration) {})

	if err := g.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !line.closed {
		t.Error("line should be released")
	}
	if len(line.values) != 1 || line.values[0] != 0 {
		t.Errorf("values = %v, want [0]", line.values)
	}
	if err := g.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := g.Beep(1000, time.Millisecond); err == nil {
		t.Error("Beep() after Close() should fail")
	}
}
