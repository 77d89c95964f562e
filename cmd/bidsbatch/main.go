// bidsbatch - manifest builder and job dispatcher for subject/session datasets
package main

import (
	"os"

	"github.com/nsap/bidsbatch/internal/cli"
	"github.com/nsap/bidsbatch/internal/version"
)

// Version information, set at build time with -ldflags "-X main.Version=..."
var (
	Version   = "v0.3.0"
	BuildTime = "2026-10-01"
)

func main() {
	version.Version = Version
	version.BuildTime = BuildTime

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
