package main

import (
	"os"

	"github.com/kilianp07/taxidispatch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
