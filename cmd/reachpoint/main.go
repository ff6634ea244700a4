package main

import (
	"os"

	"github.com/reachpoint/reachpoint/cmd/reachpoint/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
