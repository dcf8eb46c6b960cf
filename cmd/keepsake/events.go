package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/keepsake-xyz/keepsake/eventsource"
)

func events(args []string) error {
	fs := flag.NewFlagSet("events", flag.ExitOnError)
	dbPath := fs.String("db", "data/keepsake.db", "Path to the event store database")
	typeFilter := fs.String("type", "", "Filter by event type")
	limit := fs.Int("limit", 0, "Maximum number of events to show (0 = all)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: keepsake events [options]

Display the asset's event history from the event store.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  # Show all events
  keepsake events --db data/keepsake.db

  # Only settlements
  keepsake events --type Settlement
`)
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := eventsource.NewSQLiteStore(*dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	filter := eventsource.EventFilter{Limit: *limit}
	if *typeFilter != "" {
		filter.Types = []string{*typeFilter}
	}
	all, err := store.ReadAll(context.Background(), filter)
	if err != nil {
		return fmt.Errorf("read events: %w", err)
	}
	if len(all) == 0 {
		fmt.Println("No events recorded")
		return nil
	}

	for _, e := range all {
		fmt.Printf("%4d  %-28s  %s", e.Version, e.Type, e.Timestamp.Format("2006-01-02 15:04:05"))
		if len(e.Data) > 0 {
			fmt.Printf("  %s", string(e.Data))
		}
		fmt.Println()
	}
	return nil
}
