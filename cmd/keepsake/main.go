package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "serve":
		if err := serve(args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "state":
		if err := state(args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "events":
		if err := events(args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "prove":
		if err := prove(args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "help", "-h", "--help":
		printUsage()
	case "version", "-v", "--version":
		fmt.Println("keepsake version 1.0.0")
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`keepsake - continuously taxed asset server

Usage:
  keepsake <command> [options]

Commands:
  serve      Run the API server with scheduled upkeep
  state      Fetch the asset state from a running server
  events     Show the event history from the event store
  prove      Generate and verify a solvency proof
  help       Show this help message
  version    Show version information

Examples:
  # Run the server
  keepsake serve --config config.yaml

  # Inspect current state
  keepsake state --addr http://localhost:8080

  # Show settlement events from the store
  keepsake events --db data/keepsake.db --type Settlement

For command-specific help, run:
  keepsake <command> --help`)
}
