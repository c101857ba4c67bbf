package main

import (
	"fmt"
	"os"

	"github.com/dmitrymomot/rolloutkit/cmd/rolloutctl/commands"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	root := commands.NewRootCommand(&commands.App{
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	})
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
