package main

import (
	"os"

	"github.com/formweave/formweave/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
