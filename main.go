package main

import (
	"fmt"
	"os"

	"github.com/ubrun/ubrun/cli"
)

// Version information, set by goreleaser via ldflags
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	c := cli.New()
	c.SetVersion(version, commit, date)
	if err := c.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "ubrun:", err)
		os.Exit(1)
	}
}
