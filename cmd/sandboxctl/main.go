// Package main is the entry point for the sandboxctl CLI binary.
package main

import (
	"os"

	cli "sandboxd/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
