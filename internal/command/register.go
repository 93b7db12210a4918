// Package command holds the jukebox's single-slot command mailbox and the
// controller that turns commands into buzzer cues.
package command

import (
	"context"
	"sync"
)

// Register is a single-slot mailbox for the most recent command byte.
// Every Store bumps a generation counter, so a reader can tell how many
// writes it missed. Last write wins.
type Register struct {
	mu    sync.Mutex
	value byte
	gen   uint64
	ch    chan struct{} // closed and replaced on every Store
}

func NewRegister() *Register {
	return &Register{ch: make(chan struct{})}
}

// Store records b and returns its generation. Generations start at 1.
func (r *Register) Store(b byte) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.value = b
	r.gen++
	close(r.ch)
	r.ch = make(chan struct{})
	return r.gen
}

// Load returns the current command and its generation. A generation of 0
// means nothing has been stored yet.
func (r *Register) Load() (byte, uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.value, r.gen
}

// Since returns the current command if it is newer than gen.
func (r *Register) Since(gen uint64) (byte, uint64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.value, r.gen, r.gen > gen
}

// Wait blocks until a command newer than gen is stored or ctx is done.
func (r *Register) Wait(ctx context.Context, gen uint64) (byte, uint64, error) {
	for {
		r.mu.Lock()
		if r.gen > gen {
			v, g := r.value, r.gen
			r.mu.Unlock()
			return v, g, nil
		}
		ch := r.ch
		r.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return 0, gen, ctx.Err()
		}
	}
}
