package main

import (
	"fmt"
	"os"
)

// Version is set at build time via -ldflags.
var Version = "0.1.0-dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
