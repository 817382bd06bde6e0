package main

import (
	"os"

	"github.com/parisxmas/kobodash/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
