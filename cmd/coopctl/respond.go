package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/coopdoor/internal/config"
	"github.com/muurk/coopdoor/internal/door"
	"github.com/muurk/coopdoor/internal/logging"
	"github.com/muurk/coopdoor/internal/protocol"
	"github.com/muurk/coopdoor/internal/responder"
)

var respondCmd = &cobra.Command{
	Use:   "respond",
	Short: "Act as the door end of the radio link",
	Long: `Answer door commands heard on the radio with a simulated actuator.

Run this on a second machine with its own HC-12 to test a controller
end to end without a motorised door. Each command is executed once,
acknowledged, and the acknowledgment repeated until the controller
confirms it.`,
	Example: `  # Answer commands on a second HC-12
  coopctl respond --radio /dev/ttyUSB1 --log-level debug`,
	RunE: runRespond,
}

func init() {
	rootCmd.AddCommand(respondCmd)
}

func runRespond(cmd *cobra.Command, args []string) error {
	if cfg.Radio.Kind == config.RadioSim {
		return fmt.Errorf("respond needs a real radio; the simulated radio already includes a door")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	serveMetrics(ctx, cfg.Metrics.Addr)

	r, err := openRadio(ctx, cfg, simOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	initial := protocol.ReportedClosed
	if cfg.InitialState() == door.Open {
		initial = protocol.ReportedOpen
	}
	actuator := responder.NewSimulatedActuator(initial, cfg.Responder.Travel)

	resp := responder.New(r, actuator, responder.Options{
		AckTimeout:     cfg.Responder.AckTimeout,
		MaxAckAttempts: cfg.Responder.MaxAckAttempts,
		ReplayWindow:   cfg.Responder.ReplayWindow,
		Logger:         logging.Named("responder"),
	})

	logging.Info("Door responder started",
		zap.String("radio", r.Describe),
		zap.String("door", actuator.State().String()),
	)
	fmt.Fprintf(cmd.OutOrStdout(), "Answering door commands on %s (Ctrl+C to stop)\n", r.Describe)

	err = resp.Run(ctx)

	st := resp.Stats()
	logging.Info("Door responder stopped",
		zap.Int("executed", st.Executed),
		zap.Int("duplicates", st.Duplicates),
		zap.Int("replays", st.Replays),
		zap.Int("acks_sent", st.AcksSent),
	)
	return err
}
