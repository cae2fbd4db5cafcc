package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"casetimer/internal/app"
	"casetimer/internal/domain"
	"casetimer/internal/timer"
)

// TrackCommand times one stage of a case. A session left running by an
// earlier, interrupted run is resumed rather than restarted.
type TrackCommand struct {
	Case  string `long:"case" description:"case id; omit for a local-only stopwatch" value-name:"<ID>"`
	Stage string `long:"stage" description:"stage key, e.g. inspection" value-name:"<STAGE>"`
	Quiet bool   `short:"q" long:"quiet" description:"do not print the running time"`
}

func (command *TrackCommand) Execute(args []string) error {
	log, cfg, err := setup()
	if err != nil {
		return err
	}
	var stage domain.Stage
	if command.Stage != "" {
		if stage, err = domain.ParseStage(command.Stage); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var opts []timer.Option
	if !command.Quiet {
		opts = append(opts, timer.WithTickHandler(func(elapsed time.Duration) {
			fmt.Fprintf(os.Stderr, "\r%s  ", timer.FormatDuration(elapsed))
		}))
	}
	t := app.NewStageTimer(ctx, log, cfg, command.Case, stage, opts...)
	defer t.Close()

	select {
	case <-t.Loaded():
	case <-ctx.Done():
		return nil
	}
	if t.Running() {
		fmt.Fprintf(os.Stderr, "resuming %s at %s\n", stage, t.FormattedElapsed())
	} else {
		t.Start()
		fmt.Fprintf(os.Stderr, "started %s at %s\n", stage, t.FormattedSaved())
	}

	<-ctx.Done()
	saveCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	res := t.Stop(saveCtx)
	fmt.Fprintf(os.Stderr, "\nsession %s, total %s\n", timer.FormatDuration(res.NewTime), timer.FormatDuration(res.TotalTime))
	return nil
}
