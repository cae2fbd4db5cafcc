package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"casetimer/internal/adapter/api"
	"casetimer/internal/domain"
	"casetimer/internal/ports"
	"casetimer/internal/timer"
)

// ShowCommand prints the stage times of one case.
type ShowCommand struct {
	Case string `long:"case" description:"case id" value-name:"<ID>" required:"true"`
}

func (command *ShowCommand) Execute(args []string) error {
	log, cfg, err := setup()
	if err != nil {
		return err
	}
	client := api.NewClient(cfg.API.BaseURL, ports.StaticToken(cfg.API.Token), log)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rec, err := client.FetchTimeTracking(ctx, command.Case)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STAGE\tTOTAL\tSTARTED\tENDED\tBY")
	for _, s := range domain.Stages {
		st, ok := rec.Stage(s)
		if !ok {
			continue
		}
		ended := "running"
		if st.EndTime != nil {
			ended = st.EndTime.Local().Format(time.DateTime)
		}
		started := "-"
		if st.StartTime != nil {
			started = st.StartTime.Local().Format(time.DateTime)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", s, timer.FormatDuration(st.TotalTime), started, ended, st.ActorName)
	}
	fmt.Fprintf(w, "total\t%s\t\t\t\n", timer.FormatDuration(rec.SumStages()))
	return w.Flush()
}
