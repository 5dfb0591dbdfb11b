// Package main is the pressbridge operator CLI.
package main

import (
	"os"

	"github.com/pressbridge/pressbridge/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
