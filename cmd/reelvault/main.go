// Command reelvault serves the movie catalog and manages its API keys.
package main

import (
	"fmt"
	"os"

	"github.com/reelvault/reelvault/cmd/reelvault/cli"
)

// Overridden with -ldflags "-X main.version=..." by release builds.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := cli.Execute(version, commit, date); err != nil {
		fmt.Fprintf(os.Stderr, "reelvault: %v\n", err)
		os.Exit(1)
	}
}
