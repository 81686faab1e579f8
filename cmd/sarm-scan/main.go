// Command sarm-scan lists nearby BLE peripherals advertising the arm's
// service, strongest signal first.
//
// Usage:
//
//	go run ./cmd/sarm-scan [--config path] [--timeout 5s]
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/chaz8081/sarmctl/internal/ble"
	"github.com/chaz8081/sarmctl/internal/config"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default: built-in service UUID)")
	timeout := flag.Duration("timeout", 5*time.Second, "how long to scan")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		cfg = loaded
	}

	fmt.Printf("Scanning for %s (%s)...\n", cfg.BLE.ServiceUUID, *timeout)
	devices, err := ble.ScanForDevices(ble.NewTinyGoAdapter(), cfg.BLE.ServiceUUID, *timeout)
	if err != nil {
		log.Fatalf("scan: %v", err)
	}
	if len(devices) == 0 {
		fmt.Println("No arms found.")
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tRSSI")
	for _, d := range devices {
		name := d.Name
		if name == "" {
			name = "(unnamed)"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\n", name, d.MAC, d.RSSI)
	}
	w.Flush()
}
