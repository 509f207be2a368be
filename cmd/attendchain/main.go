// Package main provides the attendchain command.
package main

import (
	"os"

	"github.com/iotsdd/attendchain/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
