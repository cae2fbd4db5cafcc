package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

//go:embed sql/*.sql
var migrationsFS embed.FS

// Migration is one embedded schema file.
type Migration struct {
	Version int
	Name    string
	Applied bool
}

// Run applies pending migrations from internal/migrate/sql and returns how
// many were applied. Files are named like 0001_description.sql and run in
// version order, each as one batch, so the DSN needs multiStatements=true.
func Run(ctx context.Context, dsn string, log *slog.Logger) (int, error) {
	db, err := open(ctx, dsn)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	migrations, err := status(ctx, db)
	if err != nil {
		return 0, err
	}
	applied := 0
	for _, m := range migrations {
		if m.Applied {
			log.Debug("migration already applied", slog.Int("version", m.Version), slog.String("file", m.Name))
			continue
		}
		b, err := fs.ReadFile(migrationsFS, path.Join("sql", m.Name))
		if err != nil {
			return applied, err
		}
		log.Info("applying migration", slog.Int("version", m.Version), slog.String("file", m.Name))
		if _, err := db.ExecContext(ctx, string(b)); err != nil {
			return applied, fmt.Errorf("applying %s: %w", m.Name, err)
		}
		if _, err := db.ExecContext(ctx,
			"INSERT INTO schema_migrations(version, applied_at) VALUES(?, ?)", m.Version, time.Now().UTC(),
		); err != nil {
			return applied, err
		}
		applied++
	}
	return applied, nil
}

// Status lists the embedded migrations and whether each has been applied.
func Status(ctx context.Context, dsn string) ([]Migration, error) {
	db, err := open(ctx, dsn)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return status(ctx, db)
}

func open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	c, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(c); err != nil {
		db.Close()
		return nil, err
	}
	const ddl = `CREATE TABLE IF NOT EXISTS schema_migrations (
		version BIGINT PRIMARY KEY,
		applied_at DATETIME(6) NOT NULL
	) ENGINE=InnoDB;`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func status(ctx context.Context, db *sql.DB) ([]Migration, error) {
	migrations, err := embedded()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	done := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		done[v] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range migrations {
		migrations[i].Applied = done[migrations[i].Version]
	}
	return migrations, nil
}

// embedded returns the migration files sorted by version.
func embedded() ([]Migration, error) {
	files, err := fs.Glob(migrationsFS, "sql/*.sql")
	if err != nil {
		return nil, err
	}
	out := make([]Migration, 0, len(files))
	for _, f := range files {
		name := path.Base(f)
		v, err := parseVersion(name)
		if err != nil {
			return nil, fmt.Errorf("invalid migration filename %q: %w", name, err)
		}
		out = append(out, Migration{Version: v, Name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func parseVersion(name string) (int, error) {
	i := strings.IndexByte(name, '_')
	if i <= 0 {
		return 0, fmt.Errorf("missing version prefix")
	}
	return strconv.Atoi(name[:i])
}
