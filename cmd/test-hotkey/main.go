// Command test-hotkey is a manual test for the global hotkey listener.
// Run it, then press the configured combos to see the actions fire.
// Press Ctrl+C to exit.
//
// Usage:
//
//	go run ./cmd/test-hotkey [--config path]
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/chaz8081/sarmctl/internal/config"
	"github.com/chaz8081/sarmctl/internal/hotkey"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default: built-in bindings)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		cfg = loaded
	}

	listener := hotkey.NewListener(hotkey.Bindings{
		hotkey.ActionHome:     cfg.Hotkey.Home,
		hotkey.ActionSendPose: cfg.Hotkey.SendPose,
		hotkey.ActionConnect:  cfg.Hotkey.Connect,
	})
	fmt.Printf("Listening for %s\n", listener.Describe())
	fmt.Println("Press Ctrl+C to exit.")

	// Handle Ctrl+C
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		fmt.Println("\nShutting down...")
		listener.Stop()
	}()

	// Read events
	go func() {
		for ev := range listener.Events() {
			fmt.Printf(">>> %s\n", ev.Action)
		}
		fmt.Println("Event channel closed.")
	}()

	// Blocks until stopped
	listener.Start()
	fmt.Println("Done.")
}
