package main

import "github.com/soundlattice/artistcrawl/internal/cmd"

// Populated by the linker at release time.
var (
	version   = "dev"
	commit    = "HEAD"
	buildDate = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, buildDate)
	cmd.Execute()
}
