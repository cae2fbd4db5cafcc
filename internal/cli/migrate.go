package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"casetimer/internal/migrate"
)

// MigrateCommand applies pending MySQL migrations, or lists them with --status.
type MigrateCommand struct {
	Status bool `long:"status" description:"list migrations instead of applying them"`
}

func (command *MigrateCommand) Execute(args []string) error {
	log, cfg, err := setup()
	if err != nil {
		return err
	}
	if cfg.MySQL.DSN == "" {
		return errors.New("MYSQL_DSN is required")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if command.Status {
		ms, err := migrate.Status(ctx, cfg.MySQL.DSN)
		if err != nil {
			return err
		}
		for _, m := range ms {
			state := "pending"
			if m.Applied {
				state = "applied"
			}
			fmt.Printf("%04d  %-8s %s\n", m.Version, state, m.Name)
		}
		return nil
	}
	n, err := migrate.Run(ctx, cfg.MySQL.DSN, log)
	if err != nil {
		return err
	}
	log.Info("migrations applied", slog.Int("count", n))
	return nil
}
