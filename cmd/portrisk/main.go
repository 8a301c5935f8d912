// Command portrisk scans hosts for open TCP ports and assesses their risk.
package main

import "github.com/anstrom/portrisk/cmd/cli"

// Build information, set by ldflags during build.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	cli.SetVersion(version, commit, buildTime)
	cli.Execute()
}
