package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/tcooper/warden/internal/cli"
)

// Set at build time via ldflags.
var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

func main() {
	// A missing .env is fine; environment overrides are optional.
	_ = godotenv.Load()

	cli.SetVersion(Version)
	cli.SetBuildInfo(Commit, Date)
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
