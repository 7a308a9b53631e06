package ui

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/muurk/coopdoor/internal/door"
	"github.com/muurk/coopdoor/internal/link"
	"github.com/muurk/coopdoor/internal/protocol"
)

func TestHeaderRender(t *testing.T) {
	out := NewHeader("Open door", "coopctl open",
		Param{Key: "Radio", Value: "/dev/ttyUSB0"},
		Param{Key: "Door", Value: "7"},
	).SetWidth(80).Render()

	for _, want := range []string{"OPEN DOOR", "coopctl open", "Radio:", "/dev/ttyUSB0", "Door:"} {
		if !strings.Contains(out, want) {
			t.Errorf("header missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "Radio:") > strings.Index(out, "Door:") {
		t.Error("params rendered out of order")
	}
}

func TestResultRender(t *testing.T) {
	tests := []struct {
		name   string
		result *Result
		want   []string
	}{
		{
			name:   "success",
			result: NewSuccessResult("Door open", Param{Key: "Attempts", Value: "2"}),
			want:   []string{"SUCCESS", "Door open", "Attempts:", "2"},
		},
		{
			name:   "failure",
			result: NewFailureResult("Door not confirmed", errors.New("no ack"), "Check the radio"),
			want:   []string{"FAILED", "Door not confirmed", "Error: no ack", "Troubleshooting:", "Check the radio"},
		},
		{
			name:   "warning",
			result: NewWarningResult("Door reported another state").AddDetail("Reported", "closed"),
			want:   []string{"WARNING", "Reported:", "closed"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := tt.result.SetWidth(80).Render()
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("result missing %q:\n%s", w, out)
				}
			}
		})
	}
}

func TestPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintHeader("Close door", "coopctl close")
	p.PrintSuccess("Door closed")

	out := buf.String()
	if !strings.Contains(out, "CLOSE DOOR") || !strings.Contains(out, "Door closed") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
	}

	for _, tt := range tests {
		var out bytes.Buffer
		if got := Confirm(strings.NewReader(tt.input), &out, "Overwrite config"); got != tt.want {
			t.Errorf("Confirm(%q) = %v, want %v", tt.input, got, tt.want)
		}
		if !strings.Contains(out.String(), "Overwrite config") {
			t.Errorf("prompt missing title:\n%s", out.String())
		}
	}
}

func TestStateLabel(t *testing.T) {
	if got := StateLabel(door.Status{State: door.Opening, Unconfirmed: true}); !strings.Contains(got, "opening (unconfirmed)") {
		t.Errorf("StateLabel() = %q", got)
	}
	if got := StateLabel(door.Status{State: door.Closed}); !strings.Contains(got, "closed") {
		t.Errorf("StateLabel() = %q", got)
	}
}

type fakeDoor struct {
	status door.Status
	err    error
	opens  int
	closes int
}

func (d *fakeDoor) Open(ctx context.Context) error {
	d.opens++
	if d.err == nil {
		d.status = door.Status{State: door.Open, Target: door.Open}
	}
	return d.err
}

func (d *fakeDoor) Close(ctx context.Context) error {
	d.closes++
	if d.err == nil {
		d.status = door.Status{State: door.Closed, Target: door.Closed}
	}
	return d.err
}

func (d *fakeDoor) Status() door.Status { return d.status }
func (d *fakeDoor) Name() string        { return "Test coop" }

func press(m tea.Model, r rune) (tea.Model, tea.Cmd) {
	return m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
}

func TestWatchOpen(t *testing.T) {
	d := &fakeDoor{status: door.Status{State: door.Closed}}
	var m tea.Model = NewWatchModel(WatchConfig{Door: d})

	m, cmd := press(m, 'o')
	if cmd == nil {
		t.Fatal("pressing o returned no command")
	}
	if !m.(WatchModel).busy {
		t.Error("model not busy after o")
	}

	// A second key while busy is ignored
	_, second := press(m, 'c')
	if second != nil {
		t.Error("command started while busy")
	}

	m, _ = m.Update(cmd())
	wm := m.(WatchModel)
	if wm.busy {
		t.Error("model still busy after command finished")
	}
	if d.opens != 1 || d.closes != 0 {
		t.Errorf("opens=%d closes=%d, want 1/0", d.opens, d.closes)
	}
	if wm.status.State != door.Open {
		t.Errorf("status = %v, want open", wm.status.State)
	}

	view := wm.View()
	for _, want := range []string{"Test coop", "open", "Door open"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestWatchFailure(t *testing.T) {
	d := &fakeDoor{status: door.Status{State: door.Closed}, err: errors.New("no acknowledgment")}
	var m tea.Model = NewWatchModel(WatchConfig{Door: d})

	m, cmd := press(m, 'o')
	d.status = door.Status{State: door.Opening, Target: door.Open, Unconfirmed: true, LastError: "no acknowledgment"}
	m, _ = m.Update(cmd())

	view := m.View()
	for _, want := range []string{"Open failed", "no acknowledgment", "opening (unconfirmed)"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestWatchShowsAttempts(t *testing.T) {
	d := &fakeDoor{status: door.Status{State: door.Closed}}
	session := link.Session{Command: protocol.Command{Seq: 42, Action: protocol.ActionOpen}, Attempts: 3}

	var m tea.Model = NewWatchModel(WatchConfig{
		Door:        d,
		Pending:     func() (link.Session, bool) { return session, true },
		MaxAttempts: 5,
	})

	m, _ = press(m, 'o')
	m, _ = m.Update(refreshMsg{})

	view := m.View()
	if !strings.Contains(view, "seq 42") || !strings.Contains(view, "attempt 3/5") {
		t.Errorf("view missing attempt counter:\n%s", view)
	}
}

func TestWatchQuit(t *testing.T) {
	m := NewWatchModel(WatchConfig{Door: &fakeDoor{}})
	_, cmd := press(m, 'q')
	if cmd == nil {
		t.Fatal("q returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q did not quit")
	}
}
