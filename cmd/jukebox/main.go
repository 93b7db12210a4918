// Command jukebox runs the BLE jukebox: a GATT server whose command
// characteristic drives buzzer cues and whose data characteristic relays
// preferences to the jukebox web API.
//
// Usage:
//
//	jukebox [--config PATH] [serve]
//	jukebox beep [FREQ] [--duration 100ms]
//	jukebox relay get|post ID VALUE
//	jukebox passkey [--mac MAC]
//	jukebox config init
package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"github.com/chaz8081/jukebox-ble/internal/config"
	"github.com/chaz8081/jukebox-ble/internal/pairing"
)

// Globals are flags shared by every command.
type Globals struct {
	ConfigPath string `name:"config" short:"c" help:"Path to config file (default: ~/.config/jukebox/config.yaml)." type:"path" placeholder:"PATH"`
}

type CLI struct {
	Globals

	Serve   ServeCmd   `cmd:"" default:"1" help:"Advertise the jukebox and handle writes (default)."`
	Beep    BeepCmd    `cmd:"" help:"Sound a tone or cue on the configured buzzer."`
	Relay   RelayCmd   `cmd:"" help:"Send one preference to the relay API."`
	Passkey PasskeyCmd `cmd:"" help:"Print the pairing passkey."`
	Conf    ConfigCmd  `cmd:"" name:"config" help:"Manage the config file."`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("jukebox"),
		kong.Description("BLE jukebox with a preference relay."),
		kong.UsageOnError(),
	)
	err := ctx.Run(&cli.Globals)
	ctx.FatalIfErrorf(err)
}

// load reads and validates the config and installs the default logger.
func (g *Globals) load() (*config.Config, error) {
	cfg, err := loadConfig(g.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: config.ParseLogLevel(cfg.LogLevel),
	})))
	return cfg, nil
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		log.Printf("Config loaded from %s", defaultPath)
		return cfg, nil
	}

	log.Println("No config file found, using defaults")
	return config.Default(), nil
}

// passkeySummary names where the pairing passkey comes from.
func passkeySummary(sec config.SecurityConfig) string {
	if pairing.PasskeyRequested(sec.IOCapability) {
		return sec.PasskeyMode
	}
	return fmt.Sprintf("generated by BlueZ (%s), see log", sec.IOCapability)
}

// printBanner displays the startup configuration summary.
func printBanner(cfg *config.Config) {
	fmt.Println("=== jukebox ===")
	fmt.Printf("  Name:     %s (%s)\n", cfg.Device.Name, cfg.Device.Adapter)
	fmt.Printf("  Command:  %s\n", cfg.BLE.CommandServiceUUID)
	fmt.Printf("  Data:     %s\n", cfg.BLE.DataServiceUUID)
	fmt.Printf("  Passkey:  %s\n", passkeySummary(cfg.Security))
	fmt.Printf("  Relay:    %s%s (%s TLS)\n", cfg.Relay.BaseURL, cfg.Relay.Path, cfg.Relay.Trust)
	fmt.Printf("  Buzzer:   %s\n", cfg.Buzzer.Backend)
	fmt.Printf("  Log:      %s\n", cfg.LogLevel)
	fmt.Println("===============")
}
