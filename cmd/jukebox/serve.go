package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os/signal"
	"sync"
	"syscall"

	"github.com/chaz8081/jukebox-ble/internal/ble"
	"github.com/chaz8081/jukebox-ble/internal/buzzer"
	"github.com/chaz8081/jukebox-ble/internal/command"
	"github.com/chaz8081/jukebox-ble/internal/config"
	"github.com/chaz8081/jukebox-ble/internal/pairing"
	"github.com/chaz8081/jukebox-ble/internal/relay"
)

type ServeCmd struct{}

func (c *ServeCmd) Run(g *Globals) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	printBanner(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tone, err := buzzer.New(buzzerOptions(cfg))
	if err != nil {
		return fmt.Errorf("buzzer: %w", err)
	}
	defer tone.Close()
	log.Printf("Buzzer ready (%s)", cfg.Buzzer.Backend)

	periph := ble.NewTinyGoPeripheral(cfg.Device.Adapter)
	if err := periph.Enable(); err != nil {
		return err
	}
	mac, err := periph.Address()
	if err != nil {
		if cfg.Security.PasskeyMode == pairing.ModeDerived {
			return fmt.Errorf("derived passkey needs the adapter address: %w", err)
		}
		slog.Warn("[BLE] adapter address unavailable", "error", err)
	}

	policy, err := pairing.NewPolicy(policyOptions(cfg), mac)
	if err != nil {
		return err
	}
	if !policy.ConfiguredPasskeyApplies() {
		slog.Warn("[PAIR] BlueZ generates the passkey for this io_capability; use the passkey it displays",
			"io_capability", cfg.Security.IOCapability)
	}
	var sec ble.LinkSecurity
	if cfg.Security.Agent {
		agent, err := pairing.NewAgent(policy, cfg.Device.Adapter)
		if err != nil {
			return err
		}
		if err := agent.Register(ctx); err != nil {
			agent.Close()
			return err
		}
		defer agent.Close()
		sec = agent
	}

	var wg sync.WaitGroup

	client := relay.NewClient(relayOptions(cfg))
	disp := relay.NewDispatcher(client, relay.DispatcherOptions{
		QueueSize: cfg.Relay.QueueSize,
		PostDelay: cfg.Relay.PostDelay,
	})
	wg.Add(1)
	go func() {
		defer wg.Done()
		disp.Run(ctx)
	}()

	reg := command.NewRegister()
	ctrl := command.NewController(reg, tone)
	if cfg.Jukebox.StartupChime {
		if err := buzzer.Play(tone, command.StartupChime...); err != nil {
			slog.Warn("[JUKEBOX] startup chime failed", "error", err)
		}
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := ctrl.Run(ctx); err != nil {
			slog.Error("[JUKEBOX] controller stopped", "error", err)
		}
	}()

	svc := ble.NewService(reg, disp, periph.Address, serviceOptions(cfg))
	srv := ble.NewServer(periph, svc, ble.NewLifecycle(periph, sec), cfg.Device.Name)
	if err := srv.Start(); err != nil {
		disp.Close()
		stop()
		wg.Wait()
		return err
	}

	log.Printf("Ready! Advertising as %q. Ctrl+C to quit.", cfg.Device.Name)
	<-ctx.Done()

	log.Println("Shutting down...")
	if err := srv.Stop(); err != nil {
		slog.Warn("[BLE] stopping advertising", "error", err)
	}
	disp.Close()
	wg.Wait()
	log.Println("Goodbye!")
	return nil
}

func buzzerOptions(cfg *config.Config) buzzer.Options {
	return buzzer.Options{
		Backend:    cfg.Buzzer.Backend,
		Chip:       cfg.Buzzer.Chip,
		Line:       cfg.Buzzer.Line,
		SampleRate: cfg.Buzzer.SampleRate,
		Volume:     cfg.Buzzer.Volume,
		WAVPath:    cfg.Buzzer.WAVPath,
	}
}

func policyOptions(cfg *config.Config) pairing.Options {
	return pairing.Options{
		Mode:         cfg.Security.PasskeyMode,
		Passkey:      cfg.Security.Passkey,
		Secret:       cfg.Security.Secret,
		IOCapability: cfg.Security.IOCapability,
		KeySize:      cfg.Security.KeySize,
	}
}

func relayOptions(cfg *config.Config) relay.Options {
	return relay.Options{
		BaseURL:        cfg.Relay.BaseURL,
		Path:           cfg.Relay.Path,
		Attempts:       cfg.Relay.Attempts,
		RetryDelay:     cfg.Relay.RetryDelay,
		AttemptTimeout: cfg.Relay.AttemptTimeout,
		Trust:          relay.TrustMode(cfg.Relay.Trust),
	}
}

func serviceOptions(cfg *config.Config) ble.ServiceOptions {
	return ble.ServiceOptions{
		CommandServiceUUID: cfg.BLE.CommandServiceUUID,
		CommandCharUUID:    cfg.BLE.CommandCharUUID,
		CommandInitial:     cfg.BLE.CommandInitial,
		DataServiceUUID:    cfg.BLE.DataServiceUUID,
		DataCharUUID:       cfg.BLE.DataCharUUID,
		DataInitial:        cfg.BLE.DataInitial,
		RelayKey:           cfg.Relay.Key,
	}
}
