package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chaz8081/jukebox-ble/internal/ble"
	"github.com/chaz8081/jukebox-ble/internal/buzzer"
	"github.com/chaz8081/jukebox-ble/internal/command"
	"github.com/chaz8081/jukebox-ble/internal/config"
	"github.com/chaz8081/jukebox-ble/internal/pairing"
	"github.com/chaz8081/jukebox-ble/internal/relay"
)

// BeepCmd is a manual test for the buzzer wiring.
type BeepCmd struct {
	Freq     uint16        `arg:"" optional:"" default:"1000" help:"Tone frequency in Hz."`
	Duration time.Duration `short:"d" default:"100ms" help:"Tone duration."`
	Cue      string        `help:"Play a named cue instead of a single tone (play, next, back, chime)."`
	Backend  string        `help:"Override buzzer.backend (gpio, audio, wav, none)."`
}

func (c *BeepCmd) Run(g *Globals) error {
	if c.Duration <= 0 {
		return fmt.Errorf("duration must be positive, got %s", c.Duration)
	}
	notes := []buzzer.Note{{Freq: c.Freq, Duration: c.Duration}}
	switch c.Cue {
	case "":
	case "play":
		notes = command.PlayCue
	case "next":
		notes = command.NextCue
	case "back":
		notes = command.BackCue
	case "chime":
		notes = command.StartupChime
	default:
		return fmt.Errorf("unknown cue %q", c.Cue)
	}

	cfg, err := g.load()
	if err != nil {
		return err
	}
	opts := buzzerOptions(cfg)
	if c.Backend != "" {
		opts.Backend = c.Backend
	}
	tone, err := buzzer.New(opts)
	if err != nil {
		return err
	}
	defer tone.Close()

	if err := buzzer.Play(tone, notes...); err != nil {
		return err
	}
	fmt.Println("Done!")
	return nil
}

type RelayCmd struct {
	Get  RelayGetCmd  `cmd:"" help:"GET with retries."`
	Post RelayPostCmd `cmd:"" help:"Single POST."`
}

// RelayArgs are shared by the relay subcommands.
type RelayArgs struct {
	ID    string `arg:"" help:"Device address, e.g. AA:BB:CC:DD:EE:FF."`
	Value string `arg:"" help:"Preference value."`
	Key   string `help:"Preference key (default: relay.key)."`
}

func (a *RelayArgs) client(g *Globals) (*relay.Client, string, error) {
	cfg, err := g.load()
	if err != nil {
		return nil, "", err
	}
	key := a.Key
	if key == "" {
		key = cfg.Relay.Key
	}
	return relay.NewClient(relayOptions(cfg)), key, nil
}

type RelayGetCmd struct {
	RelayArgs
}

func (c *RelayGetCmd) Run(g *Globals) error {
	client, key, err := c.client(g)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	body, err := client.Get(ctx, c.ID, key, c.Value)
	if err != nil {
		return err
	}
	fmt.Println(body)
	return nil
}

type RelayPostCmd struct {
	RelayArgs
}

func (c *RelayPostCmd) Run(g *Globals) error {
	client, key, err := c.client(g)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	status, body, err := client.Post(ctx, c.ID, key, c.Value)
	if err != nil {
		return err
	}
	fmt.Printf("%d %s\n", status, body)
	return nil
}

type PasskeyCmd struct {
	MAC string `help:"Adapter address for derived passkeys (default: read from the adapter)."`
}

func (c *PasskeyCmd) Run(g *Globals) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	mac := c.MAC
	if mac == "" && cfg.Security.PasskeyMode == pairing.ModeDerived {
		periph := ble.NewTinyGoPeripheral(cfg.Device.Adapter)
		if err := periph.Enable(); err != nil {
			return err
		}
		if mac, err = periph.Address(); err != nil {
			return err
		}
	}
	policy, err := pairing.NewPolicy(policyOptions(cfg), mac)
	if err != nil {
		return err
	}
	fmt.Println(pairing.FormatPasskey(policy.Passkey()))
	if !policy.ConfiguredPasskeyApplies() {
		fmt.Fprintf(os.Stderr, "note: with io_capability %s BlueZ generates the passkey; serve logs the one to enter\n",
			cfg.Security.IOCapability)
	}
	return nil
}

type ConfigCmd struct {
	Init ConfigInitCmd `cmd:"" help:"Write the default config file if none exists."`
}

type ConfigInitCmd struct{}

func (c *ConfigInitCmd) Run(g *Globals) error {
	path, err := config.WriteDefault()
	if err != nil {
		return err
	}
	if path == "" {
		fmt.Printf("Config already exists at %s\n", config.DefaultConfigPath())
		return nil
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}
