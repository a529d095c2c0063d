package main

import (
	"os"

	"github.com/awnumar/memguard"

	"github.com/illarion/cryptvault/cmd"
)

func main() {
	// Wipe locked key memory on interrupt or exit
	memguard.CatchInterrupt()
	defer memguard.Purge()

	if err := cmd.Execute(); err != nil {
		cmd.PrintError(os.Stderr, err)
		memguard.SafeExit(1)
	}
}
