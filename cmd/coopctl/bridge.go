package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/muurk/coopdoor/internal/bridge"
	"github.com/muurk/coopdoor/internal/config"
	"github.com/muurk/coopdoor/internal/logging"
	"github.com/muurk/coopdoor/internal/metrics"
)

var (
	bridgeAddr        string
	bridgeNoAdvertise bool
)

var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Share the local radio over the network",
	Long: `Serve the locally attached HC-12 radio to one remote controller.

The bridge relays radio frames over a WebSocket at ws://<host>:<port>/radio
and advertises itself over mDNS as coopradio-<device id>, so controllers
configured with radio.kind: websocket and no URL find it automatically.
Prometheus metrics are served at /metrics on the same port.`,
	Example: `  # Bridge the default serial port
  coopctl bridge

  # Bridge a specific port on a specific address
  coopctl bridge --radio /dev/ttyAMA0 --addr :9000`,
	RunE: runBridge,
}

func init() {
	bridgeCmd.Flags().StringVar(&bridgeAddr, "addr", "", "Listen address (default from config, :8765)")
	bridgeCmd.Flags().BoolVar(&bridgeNoAdvertise, "no-advertise", false, "Do not advertise over mDNS")
	rootCmd.AddCommand(bridgeCmd)
}

func runBridge(cmd *cobra.Command, args []string) error {
	if cfg.Radio.Kind != config.RadioSerial {
		return fmt.Errorf("bridge needs a serial radio, got %s", cfg.Radio.Kind)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r, err := openRadio(ctx, cfg, simOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	addr := cfg.Bridge.Addr
	if bridgeAddr != "" {
		addr = bridgeAddr
	}

	srv := bridge.New(r, bridge.Config{
		Addr:           addr,
		ID:             cfg.Device.ID,
		Advertise:      cfg.Bridge.Advertise && !bridgeNoAdvertise,
		Logger:         logging.Named("bridge"),
		Metrics:        metrics.NewBridgeMetrics(registry),
		MetricsHandler: metrics.Handler(registry),
	})

	fmt.Fprintf(cmd.OutOrStdout(), "Bridging %s on %s (Ctrl+C to stop)\n", r.Describe, addr)
	return srv.Start(ctx)
}
