// Package version holds the build identifiers shown by --version.
package version

// Version is replaced by cmd/bidsbatch at startup.
var Version = "v0.3.0-dev"

// BuildTime is set through -ldflags "-X main.BuildTime=..." on cmd/bidsbatch.
var BuildTime = "unknown"
