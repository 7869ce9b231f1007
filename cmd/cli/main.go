// Command clinextract-cli is a local command-line client for the clinical
// note extraction engine: useful for running one encounter against a
// transcript file without standing up the HTTP server.
package main

import (
	"fmt"
	"os"

	"github.com/brunobiangulo/clinextract/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
