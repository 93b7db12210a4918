package buzzer

import "time"

// squareWave renders freq Hz for d at sampleRate as mono float32 samples
// in [-volume, volume]. A zero frequency renders silence and a
// non-positive duration renders nothing.
func squareWave(freq uint16, d time.Duration, sampleRate uint32, volume float32) []float32 {
	if d <= 0 {
		return nil
	}
	n := int(uint64(d) * uint64(sampleRate) / uint64(time.Second))
	samples := make([]float32, n)
	if freq == 0 || n == 0 {
		return samples
	}

	// Phase is tracked in sample units scaled by 2*freq so integer math
	// flips the level exactly every half period.
	halfPeriods := uint64(2 * uint32(freq))
	for i := range samples {
		if (uint64(i)*halfPeriods/uint64(sampleRate))%2 == 0 {
			samples[i] = volume
		} else {
			samples[i] = -volume
		}
	}
	return samples
}

// halfPeriodToggles returns how many level changes a freq Hz square wave
// makes in d. A non-positive duration makes none.
func halfPeriodToggles(freq uint16, d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(uint64(d) * 2 * uint64(freq) / uint64(time.Second))
}
