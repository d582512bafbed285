package main

import (
	"os"

	"github.com/mbirkedal/vendorledger/internal/commands"
)

func main() {
	if err := commands.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
