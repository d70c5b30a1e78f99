// Package main is the entry point for the scoremigrate CLI.
package main

import (
	"fmt"
	"os"

	"github.com/satishbabariya/scoremigrate/cmd/scoremigrate/commands"
	"github.com/satishbabariya/scoremigrate/internal/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	loader, err := config.NewLoader(config.AppFs)
	if err != nil {
		return fmt.Errorf("failed to initialize configuration: %w", err)
	}
	return commands.NewRootCommand(loader).Execute()
}
