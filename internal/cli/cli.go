package cli

import (
	"log/slog"
	"os"

	"casetimer/internal/config"
)

// CommandLineOpts is what go-flags parses the command line into.
type CommandLineOpts struct {
	Config  string `short:"c" long:"config" description:"path to a YAML config file (default $CASETIMER_CONFIG)" value-name:"<FILE>"`
	Verbose bool   `short:"v" long:"verbose" description:"enable debug logging"`

	ServeCommand   ServeCommand   `command:"serve" description:"run the time tracking REST API"`
	ShowCommand    ShowCommand    `command:"show" description:"print the stage times of a case"`
	TrackCommand   TrackCommand   `command:"track" description:"time a stage of a case until interrupted"`
	MigrateCommand MigrateCommand `command:"migrate" description:"apply or list MySQL migrations"`
}

var Opts CommandLineOpts

// setup loads configuration and installs the default logger.
func setup() (*slog.Logger, config.Config, error) {
	cfg, err := config.Load(Opts.Config)
	if err != nil {
		return nil, cfg, err
	}
	level := cfg.LogLevel()
	if Opts.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger, cfg, nil
}
