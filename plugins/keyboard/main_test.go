package main

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestBuildAppleScript(t *testing.T) {
	tests := []struct {
		name      string
		action    string
		key       string
		modifiers []string
		want      string
		wantErr   bool
	}{
		{
			name:   "tap letter",
			action: "tap",
			key:    "f",
			want:   `tell application "System Events" to keystroke "f"`,
		},
		{
			name:   "tap arrow uses key code",
			action: "tap",
			key:    "Left",
			want:   `tell application "System Events" to key code 123`,
		},
		{
			name:   "hold",
			action: "hold",
			key:    "w",
			want:   `tell application "System Events" to key down "w"`,
		},
		{
			name:   "release space",
			action: "release",
			key:    "space",
			want:   `tell application "System Events" to key up 49`,
		},
		{
			name:      "shortcut with modifiers",
			action:    "shortcut",
			key:       "s",
			modifiers: []string{"cmd", "shift", "bogus"},
			want:      `tell application "System Events" to keystroke "s" using {command down, shift down}`,
		},
		{
			name:    "unknown action",
			action:  "wiggle",
			key:     "a",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildAppleScript(tt.action, tt.key, tt.modifiers)
			if (err != nil) != tt.wantErr {
				t.Fatalf("buildAppleScript() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("buildAppleScript() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildXdotool(t *testing.T) {
	tests := []struct {
		name      string
		action    string
		key       string
		modifiers []string
		want      []string
		wantErr   bool
	}{
		{name: "tap", action: "tap", key: "f", want: []string{"xdotool", "key", "f"}},
		{name: "hold arrow", action: "hold", key: "up", want: []string{"xdotool", "keydown", "Up"}},
		{name: "release", action: "release", key: "a", want: []string{"xdotool", "keyup", "a"}},
		{
			name:      "modifiers",
			action:    "tap",
			key:       "space",
			modifiers: []string{"ctrl", "alt"},
			want:      []string{"xdotool", "key", "ctrl+alt+space"},
		},
		{name: "unknown action", action: "wiggle", key: "a", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildXdotool(tt.action, tt.key, tt.modifiers)
			if (err != nil) != tt.wantErr {
				t.Fatalf("buildXdotool() error = %v, wantErr %v", err, tt.wantErr)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("buildXdotool() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
