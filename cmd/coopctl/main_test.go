package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap/zaptest"

	"github.com/muurk/coopdoor/internal/bridge"
	"github.com/muurk/coopdoor/internal/config"
	"github.com/muurk/coopdoor/internal/cover"
	"github.com/muurk/coopdoor/internal/door"
	"github.com/muurk/coopdoor/internal/link"
	"github.com/muurk/coopdoor/internal/protocol"
	"github.com/muurk/coopdoor/internal/responder"
	"github.com/muurk/coopdoor/internal/transport"
	"github.com/muurk/coopdoor/internal/ui"
)

// resetFlags restores every flag to its default so commands run in one
// test do not leak settings into the next
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	t.Setenv("COOPDOOR_LOG_LEVEL", "")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(args)

	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "--config", filepath.Join(t.TempDir(), "config.yaml"), "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if !strings.HasPrefix(out, "coopctl ") || !strings.Contains(out, "platform:") {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestDemoCleanLink(t *testing.T) {
	out, err := execute(t,
		"--config", filepath.Join(t.TempDir(), "config.yaml"),
		"demo", "--cycles", "2", "--seed", "1",
	)
	if err != nil {
		t.Fatalf("demo error = %v\n%s", err, out)
	}
	for _, want := range []string{"DOOR DEMO", "All commands confirmed", "Door moves:", "4"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestDemoDeadLink(t *testing.T) {
	out, err := execute(t,
		"--config", filepath.Join(t.TempDir(), "config.yaml"),
		"demo", "--cycles", "1", "--drop", "1", "--attempt-timeout", "20ms",
	)
	if err != nil {
		t.Fatalf("demo error = %v", err)
	}
	if !strings.Contains(out, "2 of 2 commands unconfirmed") {
		t.Errorf("output missing unconfirmed summary:\n%s", out)
	}
	if !strings.Contains(out, "unacknowledged after 5 attempts") {
		t.Errorf("output missing attempt count:\n%s", out)
	}
}

func TestOpenSimulated(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, "--config", filepath.Join(dir, "config.yaml"), "--radio", "sim", "open")
	if err != nil {
		t.Fatalf("open error = %v\n%s", err, out)
	}
	if !strings.Contains(out, "OPEN DOOR") || !strings.Contains(out, "Door open") {
		t.Errorf("unexpected output:\n%s", out)
	}

	// The simulated door never touches the remembered state
	if _, err := os.Stat(filepath.Join(dir, "state.yaml")); !os.IsNotExist(err) {
		t.Errorf("state file written for simulated radio: %v", err)
	}
}

// startDoorBridge runs a bridge whose radio is answered by a simulated door
func startDoorBridge(t *testing.T) (string, *responder.SimulatedActuator) {
	t.Helper()

	radioEnd, doorEnd := transport.Pipe()
	actuator := responder.NewSimulatedActuator(protocol.ReportedClosed, 0)
	resp := responder.New(doorEnd, actuator, responder.Options{Logger: zaptest.NewLogger(t)})
	srv := bridge.New(radioEnd, bridge.Config{Logger: zaptest.NewLogger(t)})

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{}, 2)
	go func() { _ = resp.Run(ctx); done <- struct{}{} }()
	go func() { _ = srv.Serve(ctx, listener); done <- struct{}{} }()
	t.Cleanup(func() {
		cancel()
		<-done
		<-done
	})

	return "ws://" + listener.Addr().String() + "/radio", actuator
}

// waitForBridgeFree gives the bridge time to notice the previous client
// has gone
func waitForBridgeFree() {
	time.Sleep(200 * time.Millisecond)
}

func TestOpenThroughBridgeRemembersState(t *testing.T) {
	url, actuator := startDoorBridge(t)
	dir := t.TempDir()
	configFile := filepath.Join(dir, "config.yaml")

	out, err := execute(t, "--config", configFile, "--radio", url, "open")
	if err != nil {
		t.Fatalf("open error = %v\n%s", err, out)
	}
	if actuator.State() != protocol.ReportedOpen {
		t.Fatalf("door = %v, want open", actuator.State())
	}

	saved, err := config.LoadState(filepath.Join(dir, "state.yaml"))
	if err != nil || saved == nil {
		t.Fatalf("LoadState() = %v, %v", saved, err)
	}
	if st, ok := saved.Resting(); !ok || st != door.Open {
		t.Errorf("remembered %v, %v; want open", st, ok)
	}
	firstSeq := saved.LastSeq

	// Confirmed open already: a second open sends nothing
	waitForBridgeFree()
	if _, err := execute(t, "--config", configFile, "--radio", url, "open"); err != nil {
		t.Fatalf("second open error = %v", err)
	}
	if actuator.Drives() != 1 {
		t.Errorf("door driven %d times, want 1", actuator.Drives())
	}

	// Close continues the sequence after the remembered number
	waitForBridgeFree()
	if _, err := execute(t, "--config", configFile, "--radio", url, "close"); err != nil {
		t.Fatalf("close error = %v", err)
	}
	saved, _ = config.LoadState(filepath.Join(dir, "state.yaml"))
	if saved.LastSeq != firstSeq+1 {
		t.Errorf("LastSeq = %d, want %d", saved.LastSeq, firstSeq+1)
	}
	if actuator.State() != protocol.ReportedClosed {
		t.Errorf("door = %v, want closed", actuator.State())
	}
}

func TestConfigInitAndShow(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "config.yaml")

	out, err := execute(t, "--config", configFile, "config", "init")
	if err != nil {
		t.Fatalf("config init error = %v", err)
	}
	if !strings.Contains(out, "Wrote "+configFile) {
		t.Errorf("unexpected output: %q", out)
	}

	// Existing file, no --force, empty stdin: declined
	out, err = execute(t, "--config", configFile, "config", "init")
	if err != nil {
		t.Fatalf("second config init error = %v", err)
	}
	if strings.Contains(out, "Wrote") {
		t.Errorf("overwrote without confirmation:\n%s", out)
	}

	out, err = execute(t, "--config", configFile, "config", "show")
	if err != nil {
		t.Fatalf("config show error = %v", err)
	}
	for _, want := range []string{"# " + configFile, "attempt_timeout: 1s", "max_attempts: 5", "kind: serial"} {
		if !strings.Contains(out, want) {
			t.Errorf("config show missing %q:\n%s", want, out)
		}
	}
}

func TestApplyRadioFlag(t *testing.T) {
	tests := []struct {
		flag     string
		wantKind string
		check    func(c *config.Config) bool
	}{
		{"sim", config.RadioSim, func(c *config.Config) bool { return true }},
		{"ws://pi.local:8765/radio", config.RadioWebSocket, func(c *config.Config) bool { return c.Radio.URL == "ws://pi.local:8765/radio" }},
		{"/dev/ttyAMA0", config.RadioSerial, func(c *config.Config) bool { return c.Radio.Port == "/dev/ttyAMA0" }},
	}

	for _, tt := range tests {
		t.Run(tt.flag, func(t *testing.T) {
			c := config.Default()
			applyRadioFlag(c, tt.flag)
			if c.Radio.Kind != tt.wantKind || !tt.check(c) {
				t.Errorf("radio = %+v", c.Radio)
			}
		})
	}
}

func TestSeedSequence(t *testing.T) {
	now := time.Date(2026, 10, 18, 6, 30, 0, 0, time.UTC)
	a := seedSequence(now)
	b := seedSequence(now.Add(5 * time.Second))
	if !protocol.SeqAfter(b, a) {
		t.Errorf("seed %d five seconds later is not after %d", b, a)
	}
	if seedSequence(time.UnixMilli(0)) == 0 {
		t.Error("seedSequence returned 0")
	}
}

func TestDoorResult(t *testing.T) {
	exhausted := &link.Error{Kind: link.KindExhausted, Seq: 9, Attempts: 5}

	tests := []struct {
		name string
		err  error
		want ui.ResultType
		text string
	}{
		{"confirmed", nil, ui.ResultSuccess, "Door open"},
		{"unconfirmed", &cover.Fault{Kind: cover.FaultUnconfirmed, Target: door.Open, Err: exhausted}, ui.ResultFailure, "Attempts:"},
		{"busy", &cover.Fault{Kind: cover.FaultRejected, Target: door.Open, Err: link.NewBusy()}, ui.ResultFailure, "Another command"},
		{"other state", &cover.Fault{Kind: cover.FaultRejected, Target: door.Open, Err: errors.New("door reported closed")}, ui.ResultWarning, "door reported closed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := doorResult(door.Open, door.Status{State: door.Open}, tt.err, time.Second)
			if r.Type != tt.want {
				t.Errorf("Type = %v, want %v", r.Type, tt.want)
			}
			if out := r.SetWidth(100).Render(); !strings.Contains(out, tt.text) {
				t.Errorf("result missing %q:\n%s", tt.text, out)
			}
		})
	}
}

func TestDecode(t *testing.T) {
	frame := protocol.MustEncode(&protocol.Command{Seq: 42, Action: protocol.ActionOpen})
	good := hex.EncodeToString(frame)

	damaged := append([]byte(nil), frame...)
	damaged[3] ^= 0xFF

	rootCmd.SetIn(strings.NewReader(good + "\n\n" + hex.EncodeToString(damaged) + "\nzz\n"))
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "config.yaml"), "decode"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("decode error = %v", err)
	}

	got := out.String()
	for _, want := range []string{"seq=42", "invalid:", "not hex"} {
		if !strings.Contains(got, want) {
			t.Errorf("decode output missing %q:\n%s", want, got)
		}
	}
}
