package main

import (
	"os"

	"github.com/ostraka/arena/cmd"
)

func main() {
	if err := cmd.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
