// Command sarmctl drives a SARM 5-DOF arm over Bluetooth LE from the
// terminal. Type "help" at the prompt for the command list.
//
// Usage:
//
//	sarmctl [-config path] [-connect] [-init]
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/chaz8081/sarmctl/internal/ble"
	"github.com/chaz8081/sarmctl/internal/config"
	"github.com/chaz8081/sarmctl/internal/control"
	"github.com/chaz8081/sarmctl/internal/hotkey"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "path to config file (default: ~/.config/sarmctl/config.yaml)")
	autoConnect := flag.Bool("connect", false, "connect to the arm at startup")
	initConfig := flag.Bool("init", false, "write a default config file and exit")
	flag.Parse()

	if *initConfig {
		path := *configPath
		if path == "" {
			path = config.DefaultConfigPath()
		}
		if err := config.WriteDefault(path); err != nil {
			log.Fatalf("config: %v", err)
		}
		fmt.Println("Config written to", path)
		return
	}

	// Load configuration
	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("config validation: %v", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: config.ParseLogLevel(cfg.LogLevel),
	})))

	printBanner(cfg)

	session := ble.NewSession(ble.NewTinyGoAdapter(), channelsFrom(cfg), optionsFrom(cfg))
	ctrl := control.New(session)

	// Connect runs in the background so the prompt stays responsive.
	connectDone := make(chan error, 1)
	connect := func() {
		fmt.Println("Connecting...")
		go func() { connectDone <- ctrl.Connect(context.Background()) }()
	}

	// Optional global hotkeys
	var hotkeys <-chan hotkey.Event
	var listener *hotkey.Listener
	if cfg.Hotkey.Enabled {
		listener = hotkey.NewListener(hotkey.Bindings{
			hotkey.ActionHome:     cfg.Hotkey.Home,
			hotkey.ActionSendPose: cfg.Hotkey.SendPose,
			hotkey.ActionConnect:  cfg.Hotkey.Connect,
		})
		go listener.Start()
		hotkeys = listener.Events()
		log.Printf("Hotkeys ready (%s)", listener.Describe())
	}

	shutdown := func() {
		if listener != nil {
			listener.Stop()
		}
		if err := session.Close(); err != nil {
			slog.Warn("close session", "error", err)
		}
		fmt.Println("Goodbye!")
	}

	// Signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	lines := readLines(os.Stdin)

	if *autoConnect {
		connect()
	}
	fmt.Println(`Ready. Type "help" for commands.`)

	// Main event loop
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				shutdown()
				return
			}
			op, err := parseOperation(line)
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			switch op.kind {
			case opNone:
			case opConnect:
				connect()
			case opSetJoint:
				if err := ctrl.SetJoint(op.joint, op.angle); err != nil {
					fmt.Println("error:", err)
				}
			case opSetPose:
				ctrl.SetPose(op.pose)
			case opSendPose:
				ctrl.SendPose()
			case opHome:
				ctrl.GoHome()
			case opStatus:
				printStatus(ctrl.Snapshot())
			case opHelp:
				fmt.Println(helpText)
			case opQuit:
				shutdown()
				return
			}

		case ev, ok := <-hotkeys:
			if !ok {
				hotkeys = nil
				continue
			}
			slog.Debug("hotkey", "action", ev.Action)
			switch ev.Action {
			case hotkey.ActionHome:
				ctrl.GoHome()
			case hotkey.ActionSendPose:
				ctrl.SendPose()
			case hotkey.ActionConnect:
				connect()
			}

		case err := <-connectDone:
			if err != nil {
				fmt.Println("!!", describeConnectError(err))
				continue
			}
			if dev, ok := session.Device(); ok {
				fmt.Printf("Connected to %s (%s)\n", dev.Name, dev.MAC)
			}

		case snap := <-ctrl.Updates():
			printStatus(snap)

		case sig := <-sigCh:
			log.Printf("Received %s, shutting down...", sig)
			shutdown()
			return
		}
	}
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	// Try default config path
	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		log.Printf("Config loaded from %s", defaultPath)
		return cfg, nil
	}

	// No config file, use defaults
	log.Println("No config file found, using defaults")
	return config.Default(), nil
}

func channelsFrom(cfg *config.Config) ble.Channels {
	return ble.Channels{
		ServiceUUID: cfg.BLE.ServiceUUID,
		CommandUUID: cfg.BLE.CommandUUID,
		StatusUUID:  cfg.BLE.StatusUUID,
	}
}

func optionsFrom(cfg *config.Config) ble.SessionOptions {
	return ble.SessionOptions{
		ConnectTimeout:     cfg.BLE.ConnectTimeout,
		ScanWindow:         cfg.BLE.ScanWindow,
		DeviceName:         cfg.BLE.DeviceName,
		DeviceAddress:      cfg.BLE.DeviceAddress,
		AcknowledgedWrites: cfg.BLE.AcknowledgedWrites,
	}
}

// readLines streams lines from r until EOF.
func readLines(r io.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			ch <- sc.Text()
		}
	}()
	return ch
}

func printStatus(snap control.Snapshot) {
	fmt.Printf("[%s] %s\n", snap.State, formatPose(snap.Pose))
}

// printBanner displays the startup configuration summary.
func printBanner(cfg *config.Config) {
	device := "any"
	switch {
	case cfg.BLE.DeviceAddress != "":
		device = cfg.BLE.DeviceAddress
	case cfg.BLE.DeviceName != "":
		device = cfg.BLE.DeviceName + "*"
	}
	writeMode := "without response when available"
	if cfg.BLE.AcknowledgedWrites {
		writeMode = "acknowledged"
	}
	hotkeys := "off"
	if cfg.Hotkey.Enabled {
		hotkeys = "home=" + strings.Join(cfg.Hotkey.Home, "+")
	}

	fmt.Println("=== sarmctl ===")
	fmt.Printf("  Service: %s\n", cfg.BLE.ServiceUUID)
	fmt.Printf("  Device:  %s\n", device)
	fmt.Printf("  Timeout: %s (scan %s)\n", cfg.BLE.ConnectTimeout, cfg.BLE.ScanWindow)
	fmt.Printf("  Writes:  %s\n", writeMode)
	fmt.Printf("  Hotkeys: %s\n", hotkeys)
	fmt.Printf("  Log:     %s\n", cfg.LogLevel)
	fmt.Println("===============")
}
