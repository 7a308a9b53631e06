package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/coopdoor/internal/config"
	"github.com/muurk/coopdoor/internal/cover"
	"github.com/muurk/coopdoor/internal/door"
	"github.com/muurk/coopdoor/internal/link"
	"github.com/muurk/coopdoor/internal/logging"
	"github.com/muurk/coopdoor/internal/metrics"
	"github.com/muurk/coopdoor/internal/protocol"
	"github.com/muurk/coopdoor/internal/ui"
)

// Door command flags
var (
	attemptTimeout time.Duration
	maxAttempts    int
)

func init() {
	for _, c := range []*cobra.Command{openCmd, closeCmd} {
		c.Flags().DurationVar(&attemptTimeout, "attempt-timeout", 0, "Wait for an ack this long before resending (default from config, 1s)")
		c.Flags().IntVar(&maxAttempts, "max-attempts", 0, "Give up after this many sends (default from config, 5)")
		rootCmd.AddCommand(c)
	}
}

var openCmd = &cobra.Command{
	Use:         "open",
	Short:       "Open the coop door",
	Annotations: map[string]string{"ui": "true"},
	Example: `  # Open using the configured radio
  coopctl open

  # Open through a specific serial port
  coopctl open --radio /dev/ttyUSB0

  # Open through a bridge, trying harder
  coopctl open --radio ws://coop-pi.local:8765/radio --max-attempts 8`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDoorCommand(cmd, door.Open)
	},
}

var closeCmd = &cobra.Command{
	Use:         "close",
	Short:       "Close the coop door",
	Annotations: map[string]string{"ui": "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDoorCommand(cmd, door.Closed)
	},
}

// effectivePolicy applies door command flags over the config
func effectivePolicy(c *config.Config) link.Policy {
	p := c.Link
	if attemptTimeout > 0 {
		p.AttemptTimeout = attemptTimeout
	}
	if maxAttempts > 0 {
		p.MaxAttempts = maxAttempts
	}
	return p
}

// session is a controller on an open radio together with the remembered
// door state it started from
type session struct {
	ctrl      *cover.Controller
	radio     *radio
	seq       *protocol.Sequencer
	firstSeq  uint16
	statePath string
}

// noTarget starts a session from the remembered or configured door state
const noTarget = door.State(-1)

// newSession opens the radio and builds a controller for it.
//
// A one-shot command cannot know where the door is unless a previous run
// confirmed it. Without that knowledge the controller starts at the
// opposite of target so the command is always transmitted.
func newSession(ctx context.Context, c *config.Config, target door.State, sim simOptions) (*session, error) {
	r, err := openRadio(ctx, c, sim)
	if err != nil {
		return nil, err
	}

	s := &session{radio: r}
	initial := c.InitialState()
	firstSeq := seedSequence(time.Now())

	if r.Door == nil {
		if s.statePath, err = config.StatePath(configPath); err != nil {
			_ = r.Close()
			return nil, err
		}
		saved, err := config.LoadState(s.statePath)
		if err != nil {
			logging.Warn("Ignoring unreadable door state", zap.Error(err))
		}
		if saved != nil {
			firstSeq = saved.LastSeq + 1
		}
		if resting, ok := saved.Resting(); ok {
			initial = resting
		} else if target == door.Open {
			initial = door.Closed
		} else if target == door.Closed {
			initial = door.Open
		}
	}

	s.firstSeq = firstSeq
	s.seq = protocol.NewSequencer(firstSeq)
	s.ctrl, err = cover.New(r, cover.Config{
		DeviceID:     c.Device.ID,
		Name:         c.Device.Name,
		InitialState: initial,
		Policy:       effectivePolicy(c),
		Sequencer:    s.seq,
		Logger:       logging.Named("cover"),
		LinkMetrics:  metrics.NewLinkMetrics(registry),
		DoorMetrics:  metrics.NewDoorMetrics(registry),
	})
	if err != nil {
		_ = r.Close()
		return nil, err
	}
	return s, nil
}

// seedSequence derives a starting sequence number from the clock, in tenths
// of a second. Successive runs then start after the previous run's numbers,
// which the door would otherwise discard as replays.
func seedSequence(now time.Time) uint16 {
	seq := uint16(now.UnixMilli() / 100)
	if seq == 0 {
		seq = 1
	}
	return seq
}

// Close remembers the door state and releases the radio
func (s *session) Close() error {
	if s.statePath != "" && s.seq.Last() != s.firstSeq-1 {
		st := &config.DoorState{}
		st.Record(s.ctrl.Status(), s.seq.Last())
		if err := st.Save(s.statePath); err != nil {
			logging.Warn("Failed to save door state", zap.Error(err))
		}
	}
	return s.radio.Close()
}

func runDoorCommand(cmd *cobra.Command, target door.State) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	serveMetrics(ctx, cfg.Metrics.Addr)

	p := ui.NewPrinter(cmd.OutOrStdout())
	title := "Open door"
	if target == door.Closed {
		title = "Close door"
	}
	policy := effectivePolicy(cfg)

	s, err := newSession(ctx, cfg, target, simOptions{})
	if err != nil {
		p.PrintError("Radio unavailable", err, radioTroubleshooting(cfg)...)
		return err
	}
	defer func() { _ = s.Close() }()

	p.PrintHeader(title, "coopctl "+cmd.Name(),
		ui.Param{Key: "Door", Value: s.ctrl.Name()},
		ui.Param{Key: "Radio", Value: s.radio.Describe},
		ui.Param{Key: "Retries", Value: fmt.Sprintf("%d × %s", policy.MaxAttempts, policy.AttemptTimeout)},
	)

	start := time.Now()
	if target == door.Open {
		err = s.ctrl.Open(ctx)
	} else {
		err = s.ctrl.Close(ctx)
	}

	p.PrintResult(doorResult(target, s.ctrl.Status(), err, time.Since(start)))
	return err
}

// doorResult turns the outcome of a door command into a result box
func doorResult(target door.State, st door.Status, err error, took time.Duration) *ui.Result {
	details := []ui.Param{
		{Key: "State", Value: ui.StateLabel(st)},
		{Key: "Took", Value: took.Round(time.Millisecond).String()},
	}

	var linkErr *link.Error
	if errors.As(err, &linkErr) && linkErr.Attempts > 0 {
		details = append(details, ui.Param{Key: "Attempts", Value: fmt.Sprint(linkErr.Attempts)})
	}

	switch {
	case err == nil:
		return ui.NewSuccessResult("Door "+target.String(), details...)

	case cover.IsRejected(err) && errors.Is(err, link.ErrBusy):
		return ui.NewFailureResult("Another command is in progress", err)

	case cover.IsRejected(err):
		r := ui.NewWarningResult("Door reported an unexpected state", details...)
		r.AddDetail("Error", err.Error())
		return r

	default:
		r := ui.NewFailureResult("Door command not confirmed", err,
			"The door may or may not have moved; check it before relying on it",
			"Run the command again: the door ignores repeats of a command it already executed",
			"Check the HC-12 antennas and that both modules use the same channel",
		)
		r.Details = details
		return r
	}
}

func radioTroubleshooting(c *config.Config) []string {
	switch c.Radio.Kind {
	case config.RadioSerial:
		return []string{
			"Check the HC-12 is plugged in ('coopctl ports' lists serial ports)",
			"Check you have permission to open " + c.Radio.Port,
		}
	case config.RadioWebSocket:
		return []string{
			"Check 'coopctl bridge' is running on the radio host",
			"Use 'coopctl scan' to list bridges on the network",
			"Only one controller may use a bridge at a time",
		}
	}
	return nil
}
