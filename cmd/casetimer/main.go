package main

import (
	"log/slog"
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"

	"casetimer/internal/cli"
)

func main() {
	// A missing .env is fine; the process environment still applies.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("could not read .env", slog.String("error", err.Error()))
	}

	parser := flags.NewParser(&cli.Opts, flags.Default)
	parser.SubcommandsOptional = false

	// flags.Default prints parse and command errors to stderr.
	if _, err := parser.Parse(); err != nil {
		if flags.WroteHelp(err) {
			os.Exit(0)
		}
		os.Exit(1)
	}
}
