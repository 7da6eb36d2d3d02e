package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/masahif/sitedex/internal/cmd"
)

// Version information set by build flags
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// A missing .env file is fine; it only supplies OPENAI_API_KEY and SD_ overrides
	_ = godotenv.Load()

	cmd.SetVersionInfo(Version, BuildTime)

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
