package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/kliden/Lighthouse-Control/internal/ble"
	"github.com/kliden/Lighthouse-Control/internal/clipboard"
	"github.com/kliden/Lighthouse-Control/internal/config"
	"github.com/kliden/Lighthouse-Control/internal/launcher"
	"github.com/kliden/Lighthouse-Control/internal/lighthouse"
	"github.com/kliden/Lighthouse-Control/internal/tui"
)

func main() {
	// Support both -c and --config for config path
	var configPath string
	flag.StringVar(&configPath, "config", "lighthouse.yaml", "Path to configuration file")
	flag.StringVar(&configPath, "c", "lighthouse.yaml", "Path to configuration file (shorthand)")
	var scan bool
	flag.BoolVar(&scan, "scan", false, "Scan and report all lighthouses found")
	flag.BoolVar(&scan, "s", false, "Scan and report all lighthouses found (shorthand)")
	makeLaunchers := flag.Bool("launcher", false, "Write on/off launcher scripts for the given addresses")
	noWindow := flag.Bool("no-window", false, "Windows launchers hide the console window (.vbs)")
	timeout := flag.Duration("t", 0, "Override scan timeout")
	jsonLogs := flag.Bool("json", false, "JSON log output")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *timeout > 0 {
		cfg.Scan.Timeout = config.Duration(*timeout)
	}

	setupLogging(cfg.Log.GetLevel(), cfg.Log.UseJSON || *jsonLogs, cfg.Log.Colors)

	adapter := ble.NewAdapter(cfg.Connect.Timeout.Duration())
	controller := lighthouse.NewController(adapter, adapter, lighthouse.Options{
		ScanTimeout: cfg.Scan.Timeout.Duration(),
		Retries:     cfg.Connect.Retries,
	})

	ctx := signalContext()

	switch {
	case scan:
		err = runScan(ctx, controller, cfg)
	case *makeLaunchers:
		err = runLaunchers(cfg, flag.Args(), *noWindow)
	case flag.NArg() > 0:
		err = runPower(ctx, controller, cfg, flag.Args())
	default:
		// No command: open the interactive shell.
		err = tui.Run(ctx, tui.Options{
			Controller:     controller,
			LauncherFolder: cfg.Launcher.Folder,
			NoWindow:       cfg.Launcher.NoWindow || *noWindow,
		})
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// runScan discovers every lighthouse in range for the full scan timeout and
// copies the addresses to the clipboard, in discovery order.
func runScan(ctx context.Context, controller *lighthouse.Controller, cfg *config.Config) error {
	fmt.Printf("Scanning for lighthouses for maximum of %s...\n", controller.ScanTimeout())

	found, err := controller.Scan(ctx, func(lh lighthouse.Lighthouse) {
		fmt.Printf("Found %s\n", lh)
	})
	if err != nil {
		return err
	}
	if len(found) == 0 {
		fmt.Println("No lighthouses found.")
		return nil
	}

	if cfg.ClipboardEnabled() {
		addrs := make([]string, 0, len(found))
		for _, lh := range found {
			addrs = append(addrs, lh.Address)
		}
		if err := clipboard.CopyAddresses(addrs); err != nil {
			log.Warn().Err(err).Msg("Clipboard copy failed")
		} else {
			fmt.Println("Lighthouse MAC addresses copied to clipboard")
		}
	}
	return nil
}

// runPower parses "[on|off] <addresses...>", scans until every target is
// seen, then fans out the power writes.
func runPower(ctx context.Context, controller *lighthouse.Controller, cfg *config.Config, args []string) error {
	on := true
	switch args[0] {
	case "on":
		args = args[1:]
	case "off":
		on = false
		args = args[1:]
	}

	addresses := args
	if len(addresses) == 0 {
		addresses = cfg.Lighthouses
	}
	if len(addresses) == 0 {
		return fmt.Errorf("no lighthouse addresses given (arguments or config)")
	}
	for i, addr := range addresses {
		canonical, err := lighthouse.NormalizeAddress(addr)
		if err != nil {
			return err
		}
		addresses[i] = canonical
	}

	fmt.Printf("Scanning for lighthouses for maximum of %s...\n", controller.ScanTimeout())
	found, err := controller.ScanFor(ctx, addresses, func(lh lighthouse.Lighthouse) {
		fmt.Printf("Found %s\n", lh)
	})
	if err != nil {
		return err
	}

	verb := "off"
	if on {
		verb = "on"
	}
	for _, lh := range found {
		fmt.Printf("%s: turning %s\n", lh.Address, verb)
	}

	completed := make(map[string]bool, len(found))
	for _, res := range controller.SetPowerAll(ctx, found, on) {
		if res.Err != nil {
			fmt.Printf("%s: %v\n", res.Lighthouse.Address, res.Err)
			continue
		}
		fmt.Printf("%s: Done.\n", res.Lighthouse.Address)
		completed[res.Lighthouse.Address] = true
	}

	if len(found) != len(addresses) {
		fmt.Printf("Expected %d lighthouses, but found %d.\n", len(addresses), len(found))
	}
	failed := false
	for _, addr := range addresses {
		if !completed[addr] {
			fmt.Printf("WARNING: %s wasn't turned %s.\n", addr, verb)
			failed = true
		}
	}
	if failed {
		return fmt.Errorf("%d of %d lighthouses not switched %s", len(addresses)-len(completed), len(addresses), verb)
	}
	return nil
}

// runLaunchers writes the on/off shortcut scripts without touching the radio.
func runLaunchers(cfg *config.Config, args []string, noWindow bool) error {
	addresses := args
	if len(addresses) == 0 {
		addresses = cfg.Lighthouses
	}
	for i, addr := range addresses {
		canonical, err := lighthouse.NormalizeAddress(addr)
		if err != nil {
			return err
		}
		addresses[i] = canonical
	}

	folder := cfg.Launcher.Folder
	if folder == "" {
		folder = launcher.DefaultFolder()
	}
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve own path: %w", err)
	}
	pair, err := launcher.Create(folder, exe, addresses, noWindow || cfg.Launcher.NoWindow)
	if err != nil {
		return err
	}
	fmt.Printf("Launchers written:\n  %s\n  %s\n", pair.On, pair.Off)
	return nil
}

// signalContext creates a context that is cancelled when SIGINT or SIGTERM is received.
func signalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Warn().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	return ctx
}

func setupLogging(level string, useJSON bool, colors bool) {
	// ISO 8601 format with timezone
	zerolog.TimeFieldFormat = time.RFC3339

	if useJSON {
		// JSON output for production
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		// Text output (with optional colors)
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "2006-01-02T15:04:05.000Z07:00",
			NoColor:    !colors,
		})
	}

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
