// Package main provides a keyboard plugin that turns gesture signals into
// key presses. On macOS it drives System Events through AppleScript, on
// Linux it uses xdotool.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// Request represents the input from the plugin executor.
type Request struct {
	Action  string          `json:"action"`
	Channel string          `json:"channel"`
	Edge    string          `json:"edge"`
	Config  json.RawMessage `json:"config"`
	Params  json.RawMessage `json:"params"`
}

// Response represents the output to the plugin executor.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// KeyParams defines parameters for every action.
type KeyParams struct {
	Key       string   `json:"key"`
	Modifiers []string `json:"modifiers"` // command, option, control, shift
}

// modifierMap maps user-friendly modifier names to AppleScript equivalents.
var modifierMap = map[string]string{
	"command": "command down",
	"cmd":     "command down",
	"option":  "option down",
	"alt":     "option down",
	"control": "control down",
	"ctrl":    "control down",
	"shift":   "shift down",
}

// appleKeyCodes maps named keys that AppleScript cannot type as text.
var appleKeyCodes = map[string]int{
	"left":   123,
	"right":  124,
	"down":   125,
	"up":     126,
	"space":  49,
	"return": 36,
	"enter":  36,
	"escape": 53,
	"tab":    48,
}

// xdoKeys maps named keys to X keysyms.
var xdoKeys = map[string]string{
	"left":   "Left",
	"right":  "Right",
	"down":   "Down",
	"up":     "Up",
	"space":  "space",
	"return": "Return",
	"enter":  "Return",
	"escape": "Escape",
	"tab":    "Tab",
}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to decode request: %v", err))
		return
	}

	var p KeyParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &p); err != nil {
			writeErrorResponse(fmt.Sprintf("failed to parse params: %v", err))
			return
		}
	}
	if p.Key == "" {
		writeErrorResponse("key is required")
		return
	}

	var cmd []string
	var err error
	switch runtime.GOOS {
	case "darwin":
		var script string
		script, err = buildAppleScript(req.Action, p.Key, p.Modifiers)
		cmd = []string{"osascript", "-e", script}
	case "linux":
		cmd, err = buildXdotool(req.Action, p.Key, p.Modifiers)
	default:
		err = fmt.Errorf("unsupported platform %s", runtime.GOOS)
	}
	if err != nil {
		writeErrorResponse(fmt.Sprintf("action %s failed: %v", req.Action, err))
		return
	}

	if err := run(cmd); err != nil {
		writeErrorResponse(fmt.Sprintf("action %s failed: %v", req.Action, err))
		return
	}

	writeSuccessResponse()
}

// buildAppleScript generates an AppleScript for the action on key.
func buildAppleScript(action, key string, modifiers []string) (string, error) {
	var verb string
	switch action {
	case "tap", "keystroke", "shortcut":
		verb = "keystroke"
	case "hold":
		verb = "key down"
	case "release":
		verb = "key up"
	default:
		return "", fmt.Errorf("unknown action: %s", action)
	}

	target := fmt.Sprintf(`"%s"`, key)
	if code, ok := appleKeyCodes[strings.ToLower(key)]; ok {
		target = fmt.Sprint(code)
		if verb == "keystroke" {
			verb = "key code"
		}
	}

	var appleModifiers []string
	for _, mod := range modifiers {
		if appleMod, ok := modifierMap[strings.ToLower(mod)]; ok {
			appleModifiers = append(appleModifiers, appleMod)
		}
	}

	if len(appleModifiers) == 0 || verb != "keystroke" && verb != "key code" {
		return fmt.Sprintf(`tell application "System Events" to %s %s`, verb, target), nil
	}

	modifierList := strings.Join(appleModifiers, ", ")
	return fmt.Sprintf(`tell application "System Events" to %s %s using {%s}`, verb, target, modifierList), nil
}

// buildXdotool generates the xdotool command line for the action on key.
func buildXdotool(action, key string, modifiers []string) ([]string, error) {
	var verb string
	switch action {
	case "tap", "keystroke", "shortcut":
		verb = "key"
	case "hold":
		verb = "keydown"
	case "release":
		verb = "keyup"
	default:
		return nil, fmt.Errorf("unknown action: %s", action)
	}

	sym := key
	if s, ok := xdoKeys[strings.ToLower(key)]; ok {
		sym = s
	}

	var parts []string
	for _, mod := range modifiers {
		switch strings.ToLower(mod) {
		case "control", "ctrl":
			parts = append(parts, "ctrl")
		case "shift":
			parts = append(parts, "shift")
		case "option", "alt":
			parts = append(parts, "alt")
		case "command", "cmd":
			parts = append(parts, "super")
		}
	}
	parts = append(parts, sym)

	return []string{"xdotool", verb, strings.Join(parts, "+")}, nil
}

// writeErrorResponse writes an error response to stdout.
func writeErrorResponse(errMsg string) {
	resp := Response{
		Success: false,
		Error:   errMsg,
	}
	json.NewEncoder(os.Stdout).Encode(resp)
}

// writeSuccessResponse writes a success response to stdout.
func writeSuccessResponse() {
	resp := Response{
		Success: true,
	}
	json.NewEncoder(os.Stdout).Encode(resp)
}

// run executes a command and returns any error with its output.
func run(args []string) error {
	cmd := exec.Command(args[0], args[1:]...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, string(output))
	}
	return nil
}
