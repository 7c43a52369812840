package main

import (
	"os"

	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
