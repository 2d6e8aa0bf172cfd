package main

import (
	"os"

	"github.com/josh-kwaku/agency-ledger/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
