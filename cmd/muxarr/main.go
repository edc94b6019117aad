// Package main is the entry point for the muxarr command.
package main

import (
	"os"

	"github.com/jmylchreest/muxarr/cmd/muxarr/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
