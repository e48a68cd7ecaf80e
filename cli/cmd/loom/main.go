package main

import (
	"os"

	_ "go.uber.org/automaxprocs"

	"github.com/loomworks/loom/go/cli/internal/cli/loom"
)

func main() {
	if err := loom.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
