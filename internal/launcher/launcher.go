// Package launcher writes small on/off shortcut scripts that invoke the
// console binary with a pre-filled address list.
package launcher

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Pair holds the paths of the generated on and off launcher scripts.
type Pair struct {
	On  string
	Off string
}

// DefaultFolder picks where launchers land when no destination is
// configured: OneDrive desktop, plain desktop, then home.
func DefaultFolder() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	for _, candidate := range []string{
		filepath.Join(home, "OneDrive", "Desktop"),
		filepath.Join(home, "Desktop"),
	} {
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
	}
	return home
}

// Create writes lh_ON and lh_OFF scripts into folder. exePath is the console
// binary the scripts invoke; noWindow selects the windowless .vbs flavor on
// Windows.
func Create(folder, exePath string, addresses []string, noWindow bool) (Pair, error) {
	return create(folder, exePath, addresses, noWindow, runtime.GOOS)
}

func create(folder, exePath string, addresses []string, noWindow bool, goos string) (Pair, error) {
	if len(addresses) == 0 {
		return Pair{}, fmt.Errorf("no addresses to put in launcher")
	}

	onPath, err := writeScript(folder, exePath, "on", addresses, noWindow, goos)
	if err != nil {
		return Pair{}, err
	}
	offPath, err := writeScript(folder, exePath, "off", addresses, noWindow, goos)
	if err != nil {
		return Pair{}, err
	}
	return Pair{On: onPath, Off: offPath}, nil
}

func writeScript(folder, exePath, state string, addresses []string, noWindow bool, goos string) (string, error) {
	cmd := strings.Join(append([]string{exePath, state}, addresses...), " ")
	stem := "lh_" + strings.ToUpper(state)

	var filename, contents string
	var mode os.FileMode = 0o644
	switch {
	case goos == "windows" && noWindow:
		filename = stem + ".vbs"
		contents = fmt.Sprintf("CreateObject(\"Wscript.Shell\").Run \"%s\", 0, False\r\n", cmd)
	case goos == "windows":
		filename = stem + ".bat"
		contents = fmt.Sprintf("@echo off\r\n%s\r\n", cmd)
	default:
		filename = stem + ".sh"
		contents = fmt.Sprintf("#!/bin/bash\n%s\n", cmd)
		mode = 0o755
	}

	path := filepath.Join(folder, filename)
	if err := os.WriteFile(path, []byte(contents), mode); err != nil {
		return "", fmt.Errorf("write launcher %s: %w", path, err)
	}
	// WriteFile does not touch the mode of a pre-existing file.
	if err := os.Chmod(path, mode); err != nil {
		return "", fmt.Errorf("chmod launcher %s: %w", path, err)
	}
	return path, nil
}
