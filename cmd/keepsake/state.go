package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
)

func state(args []string) error {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "Server address")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: keepsake state [options]

Fetch and pretty-print the asset state from a running server.

Options:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	resp, err := http.Get(*addr + "/state")
	if err != nil {
		return fmt.Errorf("fetch state: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %s", resp.Status)
	}

	var v any
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return fmt.Errorf("decode state: %w", err)
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
