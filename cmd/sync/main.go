// Command sync runs one synchronisation pass from the command line and
// exits non-zero when any record type failed.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/lohithk/tallysync/internal/catalog"
	"github.com/lohithk/tallysync/internal/config"
	"github.com/lohithk/tallysync/internal/db"
	"github.com/lohithk/tallysync/internal/domain"
	"github.com/lohithk/tallysync/internal/persist"
	"github.com/lohithk/tallysync/internal/repository"
	syncengine "github.com/lohithk/tallysync/internal/sync"
	"github.com/lohithk/tallysync/internal/tally"
)

func main() {
	var (
		configPath = flag.String("config", ".", "directory containing config.yaml")
		typesFlag  = flag.String("types", "", "comma-separated record types (empty means all)")
		database   = flag.String("db", "", "destination database (empty means the configured default)")
		list       = flag.Bool("list", false, "list known record types and exit")
	)
	flag.Parse()

	if *list {
		for _, name := range catalog.Names() {
			fmt.Println(name)
		}
		return
	}

	var typeNames []string
	if trimmed := strings.TrimSpace(*typesFlag); trimmed != "" {
		for _, part := range strings.Split(trimmed, ",") {
			typeNames = append(typeNames, strings.TrimSpace(part))
		}
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()
	conn, err := db.NewConnection(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	manager := db.NewManager(cfg.Database, conn)
	defer manager.Close()

	if err := db.RunMigrations(cfg.Database, conn.Host); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	client := tally.NewClient(cfg.Tally.URL, cfg.Tally.Timeout)
	orchestrator := syncengine.NewOrchestrator(client)
	service := syncengine.NewService(orchestrator, &persisterProvider{manager: manager},
		repository.NewRunRepository(conn.Pool))

	run, err := service.RunAndRecord(ctx, nil, typeNames, *database)
	if err != nil {
		log.Fatalf("Sync failed to start: %v", err)
	}

	for _, outcome := range run.Outcomes {
		if outcome.Failed() {
			fmt.Printf("%-20s FAILED  %s\n", outcome.RecordType, outcome.Error)
			continue
		}
		fmt.Printf("%-20s %4d rows  +%d ~%d =%d\n", outcome.RecordType, outcome.Rows,
			outcome.Stats.Inserted, outcome.Stats.Updated, outcome.Stats.Skipped)
	}
	fmt.Printf("run %s: %s\n", run.ID, run.Status)

	if run.Status != domain.RunStatusSuccess {
		os.Exit(1)
	}
}

// persisterProvider resolves a run's destination database to a persister
// over that database's pool.
type persisterProvider struct {
	manager *db.Manager
}

func (p *persisterProvider) PersisterFor(ctx context.Context, database string) (syncengine.Persister, error) {
	conn, err := p.manager.Get(ctx, database)
	if err != nil {
		return nil, err
	}
	return persist.NewPersister(conn.Pool), nil
}
