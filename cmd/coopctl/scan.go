package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/coopdoor/internal/discovery"
	"github.com/muurk/coopdoor/internal/transport"
	"github.com/muurk/coopdoor/internal/ui"
)

var scanTimeout time.Duration

var scanCmd = &cobra.Command{
	Use:         "scan",
	Short:       "Find radio bridges on the network",
	Annotations: map[string]string{"ui": "true"},
	Long: `Scan for coop radio bridges using mDNS/DNS-SD.

Lists every 'coopctl bridge' advertising on the local network with the
URL to use as radio.url.`,
	Example: `  # Scan for 5 seconds (default)
  coopctl scan

  # Longer scan for slow networks
  coopctl scan --timeout 15s`,
	RunE: runScan,
}

var portsCmd = &cobra.Command{
	Use:         "ports",
	Short:       "List serial ports",
	Annotations: map[string]string{"ui": "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		ports, err := transport.ListPorts()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(ports) == 0 {
			fmt.Fprintln(out, "No serial ports found.")
			return nil
		}
		for _, p := range ports {
			fmt.Fprintln(out, p)
		}
		return nil
	},
}

func init() {
	scanCmd.Flags().DurationVar(&scanTimeout, "timeout", discovery.DefaultScanTimeout, "Scan timeout")
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(portsCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	p := ui.NewPrinter(cmd.OutOrStdout())
	p.Printf("Scanning for radio bridges (timeout: %s)...\n\n", scanTimeout)

	scanner := discovery.NewScanner()
	scanner.Timeout = scanTimeout

	ctx, cancel := context.WithTimeout(cmd.Context(), scanTimeout+time.Second)
	defer cancel()

	bridges, err := scanner.Scan(ctx)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	if len(bridges) == 0 {
		p.PrintWarning("No radio bridges found")
		p.Println("\nTroubleshooting:")
		p.Println("  - Ensure 'coopctl bridge' is running on the radio host")
		p.Println("  - Check the bridge was not started with --no-advertise")
		p.Println("  - Check multicast (UDP 5353) is allowed on this network")
		p.Println("  - Try increasing --timeout")
		return nil
	}

	p.Printf("Found %d bridge(s):\n\n", len(bridges))
	for i, b := range bridges {
		p.Printf("%d. %s\n", i+1, b.Instance)
		p.Printf("   Door:    %s\n", b.ID)
		p.Printf("   URL:     %s\n", b.WebSocketURL())
		if v := b.GetMetadata("version"); v != "" {
			p.Printf("   Version: %s\n", v)
		}
		p.Newline()
	}
	return nil
}
