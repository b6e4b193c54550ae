package main

import (
	"os"

	"github.com/tphakala/lensnet-go/cmd"
	"github.com/tphakala/lensnet-go/internal/buildinfo"
)

// Set at build time with -ldflags "-X main.version=... -X main.buildDate=...".
var (
	version   = "dev"
	buildDate = buildinfo.UnknownValue
)

func main() {
	rootCmd := cmd.RootCommand(buildinfo.NewContext(version, buildDate))
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
