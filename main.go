package main

import (
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/felo/mailgate/internal/config"
	"github.com/felo/mailgate/internal/db"
	"github.com/felo/mailgate/internal/fetcher"
	"github.com/felo/mailgate/internal/importer"
	"github.com/felo/mailgate/internal/logging"
	"github.com/felo/mailgate/internal/metrics"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	interval := flag.Duration("interval", 0, "poll interval; 0 runs a single fetch cycle and exits")
	importDir := flag.String("import", "", "import .eml files from a directory instead of polling")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Log.WithError(err).Fatal("Failed to load configuration")
	}

	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		logging.Log.WithError(err).Fatal("Failed to open database")
	}
	defer database.Close()
	logging.Log.WithField("path", cfg.Database.Path).Info("Database opened")
	if lastRun, err := database.GetSetting("last_run"); err == nil && lastRun != "" {
		logging.Log.WithField("last_run", lastRun).Info("Resuming after previous run")
	}

	// Configured accounts are re-seeded on every start so the config file
	// stays the source of truth for credentials.
	for _, acc := range cfg.Accounts {
		_, err := database.InsertAccount(&db.Account{
			Name:         acc.Name,
			ServerType:   acc.ServerType,
			Server:       acc.Server,
			Port:         acc.Port,
			IsSSL:        acc.SSL,
			Username:     acc.Username,
			Password:     acc.Password,
			Active:       acc.Active,
			Priority:     acc.Priority,
			Attach:       acc.Attach,
			KeepOriginal: acc.KeepOriginal,
			TargetModel:  acc.TargetModel,
		})
		if err != nil {
			logging.Log.WithError(err).WithField("account", acc.Name).Fatal("Failed to seed account")
		}
	}

	exporter := metrics.NewExporter()
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, exporter.Handler())
		go func() {
			logging.Log.WithField("addr", cfg.Metrics.Addr).Info("Serving metrics")
			if err := http.ListenAndServe(cfg.Metrics.Addr, mux); err != nil {
				logging.Log.WithError(err).Error("Metrics listener stopped")
			}
		}()
	}

	if *importDir != "" {
		result, err := importer.New(database, exporter).ImportDir(*importDir)
		if err != nil {
			logging.Log.WithError(err).Fatal("Import failed")
		}
		logging.Log.WithFields(map[string]interface{}{
			"found":    result.TotalFound,
			"imported": result.Imported,
			"skipped":  result.Skipped,
			"failed":   result.Failed,
		}).Info("Import completed")
		if result.Failed > 0 {
			os.Exit(1)
		}
		return
	}

	router := fetcher.NewStoreRouter(database, exporter)
	f := fetcher.New(database, router, exporter, cfg.Fetch)

	runCycle := func() bool {
		stats, err := f.FetchAll()
		if err != nil {
			logging.Log.WithError(err).Error("Fetch run failed")
			return false
		}

		if count, err := database.CountMessages(); err == nil {
			exporter.SetStoredTotal(float64(count))
		}
		if err := database.SetSetting("last_run", time.Now().UTC().Format(time.RFC3339)); err != nil {
			logging.Log.WithError(err).Warn("Failed to record last run")
		}

		logging.Log.WithFields(map[string]interface{}{
			"fetched":    stats.Fetched,
			"failed":     stats.Failed,
			"duplicates": stats.Duplicates,
		}).Info("Fetch run completed")
		return true
	}

	if *interval <= 0 {
		if !runCycle() {
			os.Exit(1)
		}
		return
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	runCycle()
	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			runCycle()
		case sig := <-sigChan:
			logging.Log.WithField("signal", sig.String()).Info("Shutting down")
			return
		}
	}
}
