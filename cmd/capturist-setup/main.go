// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"os"

	"github.com/xmunder/capturist/internal/menu"
)

// Version information (set via ldflags during build).
var (
	Version   = "dev"
	GitCommit = "none"
	BuildDate = "unknown"
)

const exitError = 1

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitError)
	}
}

// run is the entry point, extracted for testability.
func run(args []string) error {
	if len(args) == 0 {
		return runMenu()
	}

	switch args[0] {
	case "help", "--help", "-h":
		return runHelp()
	case "version", "--version", "-v":
		return runVersion()
	case "menu":
		return runMenu()
	default:
		return fmt.Errorf("unknown command: %s (run 'capturist-setup help' for usage)", args[0])
	}
}

func runHelp() error {
	fmt.Print(`capturist-setup

An interactive picker for local capture diagnosis: browse capture
targets, audio input devices, and encoder capabilities without
memorizing capturist-host's subcommands. Shells out to capturist-host,
which must be reachable on PATH.

USAGE:
    capturist-setup [COMMAND]

COMMANDS:
    menu       Launch the interactive menu (default with no arguments)
    version    Show version information
    help       Show this help message
`)
	return nil
}

func runVersion() error {
	fmt.Printf("capturist-setup\n  Version:    %s\n  Git Commit: %s\n  Built:      %s\n", Version, GitCommit, BuildDate)
	return nil
}

// runMenu launches the interactive setup menu.
func runMenu() error {
	m := menu.CreateMainMenu()
	return m.Display()
}
