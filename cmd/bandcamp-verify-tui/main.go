package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/handiism/bandcamp-verificator/internal/config"
	"github.com/handiism/bandcamp-verificator/internal/logging"
	"github.com/handiism/bandcamp-verificator/internal/tui"
)

func main() {
	configFlag := flag.String("config", "config.json", "Path to config file (JSON or TOML)")
	flag.Parse()

	settings, err := config.Load(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	settings.ApplyEnv(os.Getenv)
	if err := settings.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// The screen belongs to the UI, so log to the configured file only.
	logger, err := logging.New(settings.Logging, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := tui.Run(settings, logger); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
