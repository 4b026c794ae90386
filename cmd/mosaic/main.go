// Package main provides the entry point for the mosaic CLI.
package main

import (
	"os"

	"github.com/mosaicdocs/mosaic/cmd/mosaic/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
