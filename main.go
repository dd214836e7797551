package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/ekaya-inc/ekaya-querykit/pkg/cli"
	"github.com/ekaya-inc/ekaya-querykit/pkg/config"
	"github.com/ekaya-inc/ekaya-querykit/pkg/logging"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	// A missing .env is fine; the environment and config.yaml still apply.
	_ = godotenv.Load()

	cfg, err := config.Load(Version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	code := cli.Execute(cfg, logger)
	_ = logger.Sync()
	os.Exit(code)
}
