package main

import (
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/muurk/coopdoor/internal/ui"
)

var watchDrop, watchCorrupt float64

var watchCmd = &cobra.Command{
	Use:         "watch",
	Short:       "Interactive door dashboard",
	Annotations: map[string]string{"ui": "true"},
	Long: `Open an interactive dashboard for the door.

Press o to open, c to close and q to quit. The dashboard shows the door
state, the attempt counter while a command is on the air and a log of
recent events.`,
	Example: `  # Watch the door through the configured radio
  coopctl watch

  # Try the dashboard against a simulated door on a bad link
  coopctl watch --radio sim --drop 0.4`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().Float64Var(&watchDrop, "drop", 0, "Simulated radio only: probability a frame is lost")
	watchCmd.Flags().Float64Var(&watchCorrupt, "corrupt", 0, "Simulated radio only: probability a frame is damaged")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	serveMetrics(ctx, cfg.Metrics.Addr)

	s, err := newSession(ctx, cfg, noTarget, simOptions{Loss: lossFlags(watchDrop, watchCorrupt)})
	if err != nil {
		ui.NewPrinter(cmd.OutOrStdout()).PrintError("Radio unavailable", err, radioTroubleshooting(cfg)...)
		return err
	}
	defer func() { _ = s.Close() }()

	opts := []tea.ProgramOption{tea.WithContext(ctx), tea.WithOutput(cmd.OutOrStdout())}
	if ui.IsTerminal() {
		opts = append(opts, tea.WithAltScreen())
	}

	err = ui.RunWatch(ui.WatchConfig{
		Door:        s.ctrl,
		Pending:     s.ctrl.Link().Pending,
		MaxAttempts: s.ctrl.Link().Policy().MaxAttempts,
		Context:     ctx,
	}, opts...)
	if ctx.Err() != nil {
		return nil
	}
	return err
}
