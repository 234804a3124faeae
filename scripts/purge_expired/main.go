// Command purge_expired removes rows whose retention deadline has passed:
// consumed or expired one-time tokens and archived announcements or
// assignments past their expiry. The API already filters these rows at
// read time, so the purge only reclaims storage and can run on any
// schedule.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/deptconnect/deptconnect-api/pkg/config"
	"github.com/deptconnect/deptconnect-api/pkg/database"
)

type purge struct {
	label string
	query string
}

func main() {
	var (
		dryRun  bool
		timeout time.Duration
	)
	flag.BoolVar(&dryRun, "dry-run", false, "report row counts without deleting")
	flag.DurationVar(&timeout, "timeout", time.Minute, "per-statement timeout")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer db.Close() //nolint:errcheck

	purges := []purge{
		{"one_time_tokens", `DELETE FROM one_time_tokens WHERE used = TRUE OR expires_at <= NOW()`},
		{"announcements", `DELETE FROM announcements WHERE expires_at IS NOT NULL AND expires_at <= NOW()`},
		{"assignments", `DELETE FROM assignments WHERE expires_at IS NOT NULL AND expires_at <= NOW()`},
	}

	for _, p := range purges {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		if dryRun {
			count, err := countExpired(ctx, db, p)
			cancel()
			if err != nil {
				log.Fatalf("%s: %v", p.label, err)
			}
			fmt.Printf("%s: %d rows eligible\n", p.label, count)
			continue
		}

		res, err := db.ExecContext(ctx, p.query)
		cancel()
		if err != nil {
			log.Fatalf("%s: %v", p.label, err)
		}
		affected, _ := res.RowsAffected()
		fmt.Printf("%s: %d rows purged\n", p.label, affected)
	}
}

func countExpired(ctx context.Context, db *sqlx.DB, p purge) (int64, error) {
	countQuery := "SELECT COUNT(*) " + p.query[len("DELETE "):]
	var count int64
	if err := db.GetContext(ctx, &count, countQuery); err != nil {
		return 0, err
	}
	return count, nil
}
