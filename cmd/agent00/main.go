package main

import (
	"os"

	"github.com/dgr198213-ui/Agent00/cmd/agent00/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
