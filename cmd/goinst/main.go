package main

import (
	"os"

	"github.com/cwbudde/go-instrument/cmd/goinst/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
