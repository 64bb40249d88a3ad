package tray

import (
	"errors"
	"testing"
)

func TestTray_Toggle(t *testing.T) {
	tests := []struct {
		name      string
		start     bool
		err       error
		want      bool
		wantCalls []bool
	}{
		{name: "disable", start: true, want: false, wantCalls: []bool{false}},
		{name: "enable", start: false, want: true, wantCalls: []bool{true}},
		{name: "failure keeps state", start: false, err: errors.New("no camera"), want: false, wantCalls: []bool{true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := New(tt.start)

			var calls []bool
			tr.OnToggle(func(enabled bool) error {
				calls = append(calls, enabled)
				return tt.err
			})

			tr.handleToggle()

			if tr.IsEnabled() != tt.want {
				t.Errorf("IsEnabled() = %v, want %v", tr.IsEnabled(), tt.want)
			}
			if len(calls) != len(tt.wantCalls) || calls[0] != tt.wantCalls[0] {
				t.Errorf("OnToggle calls = %v, want %v", calls, tt.wantCalls)
			}
		})
	}
}

func TestTray_ToggleWithoutCallback(t *testing.T) {
	tr := New(true)
	tr.handleToggle()
	if tr.IsEnabled() {
		t.Error("toggle without callback should still flip the switch")
	}
}

func TestTray_Callbacks(t *testing.T) {
	tr := New(true)

	var opened, quit bool
	tr.OnOpen(func() { opened = true })
	tr.OnQuit(func() { quit = true })

	tr.handleOpen()
	tr.handleQuit()

	if !opened || !quit {
		t.Errorf("opened = %v, quit = %v", opened, quit)
	}
}

func TestTray_LastSignal(t *testing.T) {
	tr := New(true)
	if tr.LastSignal() != "" {
		t.Errorf("LastSignal() = %q, want empty", tr.LastSignal())
	}

	tr.SetLastSignal("shoot")
	if tr.LastSignal() != "shoot" {
		t.Errorf("LastSignal() = %q, want shoot", tr.LastSignal())
	}

	tests := []struct {
		in   string
		want string
	}{
		{"", "Last: none"},
		{"left", "Last: left"},
	}
	for _, tt := range tests {
		if got := lastTitle(tt.in); got != tt.want {
			t.Errorf("lastTitle(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if toggleTitle(true) == toggleTitle(false) {
		t.Error("toggle titles should differ")
	}
}
