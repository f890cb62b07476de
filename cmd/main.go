package main

import (
	"os"

	"github.com/pslgod1/DigitalTest/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
