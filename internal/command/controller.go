package command

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/chaz8081/jukebox-ble/internal/buzzer"
)

// Commands understood by the controller.
const (
	Play = 'p'
	Next = 'n'
	Back = 'b'
)

// Cues sounded for each command.
var (
	PlayCue = []buzzer.Note{
		{Freq: 523, Duration: 100 * time.Millisecond},
		{Freq: 0, Duration: 30 * time.Millisecond},
		{Freq: 784, Duration: 150 * time.Millisecond},
	}
	NextCue = []buzzer.Note{
		{Freq: 880, Duration: 80 * time.Millisecond},
	}
	BackCue = []buzzer.Note{
		{Freq: 440, Duration: 80 * time.Millisecond},
	}
	StartupChime = []buzzer.Note{
		{Freq: 1000, Duration: 100 * time.Millisecond},
	}
)

// Controller consumes the command register and sounds a cue per command.
type Controller struct {
	reg  *Register
	tone buzzer.Tone
}

// NewController panics if reg or tone is nil.
func NewController(reg *Register, tone buzzer.Tone) *Controller {
	if reg == nil {
		panic("command: NewController called with nil register")
	}
	if tone == nil {
		panic("command: NewController called with nil tone")
	}
	return &Controller{reg: reg, tone: tone}
}

// Run handles commands until ctx is cancelled. Commands already stored
// before Run starts are ignored.
func (c *Controller) Run(ctx context.Context) error {
	_, seen := c.reg.Load()
	for {
		b, gen, err := c.reg.Wait(ctx, seen)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		if missed := gen - seen - 1; missed > 0 {
			slog.Warn("[JUKEBOX] commands overwritten before handling", "missed", missed)
		}
		seen = gen
		c.Handle(b)
	}
}

// Handle sounds the cue for b. Unknown commands are logged and ignored.
func (c *Controller) Handle(b byte) {
	var cue []buzzer.Note
	var action string
	switch lower(b) {
	case Play:
		cue, action = PlayCue, "play"
	case Next:
		cue, action = NextCue, "next"
	case Back:
		cue, action = BackCue, "back"
	default:
		slog.Info("[JUKEBOX] unknown command", "command", string(rune(b)), "byte", b)
		return
	}
	slog.Info("[JUKEBOX] command", "action", action)
	if err := buzzer.Play(c.tone, cue...); err != nil {
		slog.Error("[JUKEBOX] cue failed", "action", action, "error", err)
	}
}

func lower(b byte) byte {
	if 'A' <= b && b <= 'Z' {
		return b + 'a' - 'A'
	}
	return b
}
