// Package importer ingests .eml files from a local directory through the
// same parse-and-store path as fetched mail. It exists for migrations and
// for replaying mailboxes exported from another system.
package importer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/felo/mailgate/internal/db"
	"github.com/felo/mailgate/internal/fetcher"
	"github.com/felo/mailgate/internal/logging"
	"github.com/felo/mailgate/internal/metrics"
	"github.com/felo/mailgate/internal/parser"
)

// Importer imports messages from the filesystem
type Importer struct {
	router      fetcher.Router
	account     *db.Account
	concurrency int
}

func New(store *db.DB, exporter *metrics.Exporter) *Importer {
	return &Importer{
		router: fetcher.NewStoreRouter(store, exporter),
		// Imported files are not tied to a mailbox account; attachments are
		// kept since there is no account setting to consult.
		account:     &db.Account{Name: "import", ServerType: "file", Attach: true, TargetModel: "message"},
		concurrency: runtime.NumCPU() * 2,
	}
}

// WithConcurrency sets the number of concurrent file readers
func (imp *Importer) WithConcurrency(workers int) *Importer {
	if workers < 1 {
		workers = 1
	}
	imp.concurrency = workers
	return imp
}

// Result contains statistics about an import operation
type Result struct {
	TotalFound  int
	Imported    int
	Skipped     int
	Failed      int
	FailedFiles []string
}

type readResult struct {
	path string
	raw  []byte
	err  error
}

// ImportDir walks root for .eml files and ingests each one. File reads fan
// out across workers; routing stays on one goroutine because the store is a
// single-connection SQLite database and the dedup gate must see inserts in
// order.
func (imp *Importer) ImportDir(root string) (*Result, error) {
	files, err := listEMLFiles(root)
	if err != nil {
		return nil, fmt.Errorf("failed to scan for files: %w", err)
	}

	result := &Result{
		TotalFound:  len(files),
		FailedFiles: make([]string, 0),
	}

	fileChan := make(chan string, len(files))
	readChan := make(chan readResult, len(files))

	var wg sync.WaitGroup
	for i := 0; i < imp.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range fileChan {
				raw, err := os.ReadFile(path)
				readChan <- readResult{path: path, raw: raw, err: err}
			}
		}()
	}

	for _, file := range files {
		fileChan <- file
	}
	close(fileChan)

	go func() {
		wg.Wait()
		close(readChan)
	}()

	for res := range readChan {
		if res.err != nil {
			logging.Log.WithError(res.err).WithField("file", res.path).Error("Failed to read file")
			result.Failed++
			result.FailedFiles = append(result.FailedFiles, res.path)
			continue
		}

		switch err := imp.router.Route(imp.account, res.raw); {
		case err == nil:
			result.Imported++
		case errors.Is(err, parser.ErrDuplicate):
			result.Skipped++
		default:
			logging.Log.WithError(err).WithField("file", res.path).Error("Failed to import file")
			result.Failed++
			result.FailedFiles = append(result.FailedFiles, res.path)
		}
	}

	return result, nil
}

// listEMLFiles recursively collects the .eml files under root
func listEMLFiles(root string) ([]string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute root path: %w", err)
	}

	var files []string
	err = filepath.Walk(absRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return fmt.Errorf("error accessing path %s: %w", path, err)
		}
		if info.IsDir() {
			return nil
		}
		if strings.ToLower(filepath.Ext(path)) == ".eml" {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan directory: %w", err)
	}

	return files, nil
}
