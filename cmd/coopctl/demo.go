package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/coopdoor/internal/config"
	"github.com/muurk/coopdoor/internal/door"
	"github.com/muurk/coopdoor/internal/transport"
	"github.com/muurk/coopdoor/internal/ui"
)

// Demo flags
var (
	demoCycles    int
	demoDrop      float64
	demoCorrupt   float64
	demoDropFirst int
	demoSeed      int64
	demoJam       bool
)

var demoCmd = &cobra.Command{
	Use:         "demo",
	Short:       "Open and close a simulated door over a lossy radio",
	Annotations: map[string]string{"ui": "true"},
	Long: `Run open/close cycles against an in-process simulated door.

No hardware is needed. The simulated radio loses and damages frames at the
requested rates so retries, duplicate suppression and unconfirmed commands
can be observed. Run with --log-level debug to see every frame.`,
	Example: `  # Five cycles on a clean link
  coopctl demo

  # A bad link: 30% loss, 10% damage
  coopctl demo --drop 0.3 --corrupt 0.1

  # Lose the first four commands, forcing retries
  coopctl demo --cycles 1 --drop-first 4

  # Lose everything: commands end unconfirmed after five attempts
  coopctl demo --cycles 1 --drop 1`,
	RunE: runDemo,
}

func init() {
	demoCmd.Flags().IntVar(&demoCycles, "cycles", 5, "Open/close cycles to run")
	demoCmd.Flags().Float64Var(&demoDrop, "drop", 0, "Probability a frame is lost")
	demoCmd.Flags().Float64Var(&demoCorrupt, "corrupt", 0, "Probability a frame is damaged")
	demoCmd.Flags().IntVar(&demoDropFirst, "drop-first", 0, "Lose this many command frames before any get through")
	demoCmd.Flags().Int64Var(&demoSeed, "seed", 0, "Random seed for loss injection (default: time based)")
	demoCmd.Flags().BoolVar(&demoJam, "jam", false, "The simulated door stalls and never reaches its target")
	demoCmd.Flags().DurationVar(&attemptTimeout, "attempt-timeout", 0, "Wait for an ack this long before resending (default from config, 1s)")
	demoCmd.Flags().IntVar(&maxAttempts, "max-attempts", 0, "Give up after this many sends (default from config, 5)")
	rootCmd.AddCommand(demoCmd)
}

// lossFlags builds the loss options for a simulated radio
func lossFlags(drop, corrupt float64) transport.LossyOptions {
	return transport.LossyOptions{
		DropRate:    drop,
		CorruptRate: corrupt,
		Seed:        time.Now().UnixNano(),
	}
}

// demoStep is the outcome of one simulated command
type demoStep struct {
	Target door.State
	Status door.Status
	Err    error
	Took   time.Duration
}

func runDemo(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	serveMetrics(ctx, cfg.Metrics.Addr)

	simCfg := *cfg
	simCfg.Radio = config.RadioConfig{Kind: config.RadioSim}

	loss := lossFlags(demoDrop, demoCorrupt)
	loss.DropFirst = demoDropFirst
	if cmd.Flags().Changed("seed") {
		loss.Seed = demoSeed
	}

	s, err := newSession(ctx, &simCfg, noTarget, simOptions{Loss: loss, Jam: demoJam})
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	p := ui.NewPrinter(cmd.OutOrStdout())
	policy := effectivePolicy(&simCfg)
	p.PrintHeader("Door demo", "coopctl demo",
		ui.Param{Key: "Radio", Value: s.radio.Describe},
		ui.Param{Key: "Cycles", Value: fmt.Sprint(demoCycles)},
		ui.Param{Key: "Retries", Value: fmt.Sprintf("%d × %s", policy.MaxAttempts, policy.AttemptTimeout)},
	)
	p.Newline()

	var steps []demoStep
	for i := 0; i < demoCycles && ctx.Err() == nil; i++ {
		for _, target := range []door.State{door.Open, door.Closed} {
			if ctx.Err() != nil {
				break
			}
			start := time.Now()
			var err error
			if target == door.Open {
				err = s.ctrl.Open(ctx)
			} else {
				err = s.ctrl.Close(ctx)
			}
			step := demoStep{Target: target, Status: s.ctrl.Status(), Err: err, Took: time.Since(start)}
			steps = append(steps, step)
			p.Println(formatStep(i+1, step))
		}
	}
	p.Newline()

	p.PrintResult(demoSummary(steps, s.radio))
	return nil
}

func formatStep(cycle int, st demoStep) string {
	marker := ui.SuccessTitleStyle.Render(ui.SuccessMarker)
	outcome := "confirmed"
	if st.Err != nil {
		marker = ui.ErrorTitleStyle.Render(ui.FailureMarker)
		outcome = st.Err.Error()
	}
	verb := "open "
	if st.Target == door.Closed {
		verb = "close"
	}
	return fmt.Sprintf("  %s  cycle %-3d %s  %-8s %-24s %s",
		marker, cycle, verb, st.Took.Round(time.Millisecond), ui.StateLabel(st.Status), outcome)
}

// demoSummary totals the run
func demoSummary(steps []demoStep, r *radio) *ui.Result {
	failed := 0
	for _, st := range steps {
		if st.Err != nil {
			failed++
		}
	}

	details := []ui.Param{
		{Key: "Commands", Value: fmt.Sprint(len(steps))},
		{Key: "Confirmed", Value: fmt.Sprint(len(steps) - failed)},
		{Key: "Unconfirmed", Value: fmt.Sprint(failed)},
	}
	if r.Door != nil {
		details = append(details, ui.Param{Key: "Door moves", Value: fmt.Sprint(r.Door.Drives())})
	}
	if r.Uplink != nil {
		up := r.Uplink.Stats()
		down := r.Downlink.Stats()
		details = append(details,
			ui.Param{Key: "Uplink", Value: fmt.Sprintf("%d sent, %d lost, %d damaged", up.Sent, up.Dropped, up.Corrupted)},
			ui.Param{Key: "Downlink", Value: fmt.Sprintf("%d sent, %d lost, %d damaged", down.Sent, down.Dropped, down.Corrupted)},
		)
	}

	if failed > 0 {
		return ui.NewWarningResult(fmt.Sprintf("%d of %d commands unconfirmed", failed, len(steps)), details...)
	}
	return ui.NewSuccessResult("All commands confirmed", details...)
}
