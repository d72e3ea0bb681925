// Package cli implements the courierdesk CLI commands.
package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/cobra"

	"github.com/courierdesk/courierdesk/internal/capture"
	"github.com/courierdesk/courierdesk/internal/logging"
	"github.com/courierdesk/courierdesk/internal/model"
	"github.com/courierdesk/courierdesk/internal/parser"
	"github.com/courierdesk/courierdesk/internal/reconcile"
	"github.com/courierdesk/courierdesk/internal/store"
)

var dbPath string

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "courierdesk",
	Short: "Courier manifest billing from the command line",
	Long:  "Capture, import and price courier manifests. Tiered slab tariffs, SQLite-backed, single binary.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path (default: $COURIERDESK_DB or ~/.courierdesk/courierdesk.db)")
}

func getDBPath() string {
	if dbPath != "" {
		return dbPath
	}
	if env := os.Getenv("COURIERDESK_DB"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".courierdesk", "courierdesk.db")
}

func openStore() (*store.SQLiteStore, error) {
	return store.NewSQLiteStore(getDBPath())
}

func newReconciler(s *store.SQLiteStore) *reconcile.Reconciler {
	return reconcile.New(s, s.NewID, logging.Component("reconcile"))
}

func newCaptureManager(s *store.SQLiteStore) *capture.Manager {
	return capture.NewManager(s, &lazyParser{}, logging.Component("capture"))
}

// lazyParser defers client construction so capture commands that never
// reach the extraction service work without its environment configured.
type lazyParser struct {
	once   sync.Once
	client parser.Parser
	err    error
}

func (l *lazyParser) Parse(ctx context.Context, pages []model.Page, instruction string, hybrid bool, onProgress func(status string)) (*parser.Result, error) {
	l.once.Do(func() {
		l.client, l.err = parser.NewClientFromEnv()
	})
	if l.err != nil {
		return nil, l.err
	}
	return l.client.Parse(ctx, pages, instruction, hybrid, onProgress)
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
